// Package discord implements the announcement gateway on Discord.
//
// The operator talks to the bot over DM; announcements go to guild text
// channels as embeds with optional link buttons, files and vote reactions.
package discord

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"

	"announcer/internal/gateway"
	"announcer/pkg/logx"
)

type Config struct {
	Token string
}

type Adapter struct {
	log logx.Logger

	session *discordgo.Session
	http    *http.Client

	// Discord applies its own rate limits; pacing outbound REST calls keeps
	// us out of 429 retry loops during multi-part deliveries.
	limiter *rate.Limiter

	runMu     sync.Mutex
	running   bool
	runCancel context.CancelFunc

	// droppedUpdates counts inbound messages dropped because the consumer was
	// slower than the Discord event stream.
	droppedUpdates uint64

	nameMu   sync.Mutex
	channels map[string]string // lower(name) -> channel id
	roles    map[string]string // lower(name) -> role id
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("discord token is empty")
	}
	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	return &Adapter{
		log:      log,
		session:  s,
		http:     &http.Client{Timeout: 30 * time.Second},
		limiter:  rate.NewLimiter(rate.Limit(5), 5),
		channels: map[string]string{},
		roles:    map[string]string{},
	}, nil
}

func (a *Adapter) Start(ctx context.Context, inbox chan<- gateway.Inbound) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	rctx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel
	a.runMu.Unlock()

	a.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		// Only direct messages from humans reach the core.
		if m.Author == nil || m.Author.Bot || m.GuildID != "" {
			return
		}
		authorID, err := strconv.ParseInt(m.Author.ID, 10, 64)
		if err != nil {
			return
		}

		in := gateway.Inbound{
			AuthorID:   authorID,
			AuthorName: m.Author.Username,
			AuthorIcon: m.Author.AvatarURL(""),
			Text:       m.Content,
		}
		for _, att := range m.Attachments {
			data, err := a.download(rctx, att.URL)
			if err != nil {
				a.log.Warn("attachment download failed", logx.String("url", att.URL), logx.Err(err))
				continue
			}
			in.Attachments = append(in.Attachments, gateway.Attachment{Filename: att.Filename, Data: data})
		}

		select {
		case inbox <- in:
		default:
			atomic.AddUint64(&a.droppedUpdates, 1)
		}
	})

	if err := a.session.Open(); err != nil {
		return err
	}
	a.log.Info("discord session opened")

	go func() {
		<-rctx.Done()
		if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
			a.log.Warn("inbound messages dropped (channel full)", logx.Any("count", n))
		}
	}()
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	cancel := a.runCancel
	a.runCancel = nil
	wasRunning := a.running
	a.running = false
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	if cancel != nil {
		cancel()
	}
	return a.session.Close()
}

// Destinations lists text channel names across every guild the bot is in,
// refreshing the name -> id map used by Publish.
func (a *Adapter) Destinations(ctx context.Context) ([]string, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	guilds := a.guildIDs()
	names := make([]string, 0, 16)
	fresh := map[string]string{}
	for _, gid := range guilds {
		channels, err := a.session.GuildChannels(gid, discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("guild channels %s: %w", gid, err)
		}
		for _, ch := range channels {
			if ch.Type != discordgo.ChannelTypeGuildText {
				continue
			}
			names = append(names, ch.Name)
			fresh[strings.ToLower(ch.Name)] = ch.ID
		}
	}

	a.nameMu.Lock()
	a.channels = fresh
	a.nameMu.Unlock()
	return names, nil
}

// Roles lists role names across every guild, refreshing the map behind
// MentionToken.
func (a *Adapter) Roles(ctx context.Context) ([]string, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	names := make([]string, 0, 16)
	fresh := map[string]string{}
	for _, gid := range a.guildIDs() {
		roles, err := a.session.GuildRoles(gid, discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("guild roles %s: %w", gid, err)
		}
		for _, r := range roles {
			names = append(names, r.Name)
			fresh[strings.ToLower(r.Name)] = r.ID
		}
	}

	a.nameMu.Lock()
	a.roles = fresh
	a.nameMu.Unlock()
	return names, nil
}

func (a *Adapter) MentionToken(role string) string {
	a.nameMu.Lock()
	id, ok := a.roles[strings.ToLower(role)]
	a.nameMu.Unlock()
	if !ok {
		return "@" + role
	}
	return "<@&" + id + ">"
}

func (a *Adapter) Publish(ctx context.Context, destination string, msg gateway.Outbound) (gateway.MessageRef, error) {
	channelID, err := a.channelID(ctx, destination)
	if err != nil {
		return gateway.MessageRef{}, err
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return gateway.MessageRef{}, err
	}

	embed := &discordgo.MessageEmbed{
		Description: msg.Body,
		Color:       msg.Color,
		Timestamp:   time.Now().Format(time.RFC3339),
		Footer:      &discordgo.MessageEmbedFooter{Text: "Announcement"},
	}
	if msg.AuthorName != "" {
		embed.Author = &discordgo.MessageEmbedAuthor{Name: msg.AuthorName, IconURL: msg.AuthorIcon}
	}

	send := &discordgo.MessageSend{
		Content: spoilerBroadcast(msg.Sidecar),
		Embeds:  []*discordgo.MessageEmbed{embed},
	}
	for _, att := range msg.Attachments {
		send.Files = append(send.Files, &discordgo.File{
			Name:   att.Filename,
			Reader: bytes.NewReader(att.Data),
		})
	}
	if len(msg.Buttons) > 0 {
		row := discordgo.ActionsRow{}
		for _, b := range msg.Buttons {
			row.Components = append(row.Components, discordgo.Button{
				Style: discordgo.LinkButton,
				Label: b.Label,
				URL:   b.URL,
			})
		}
		send.Components = []discordgo.MessageComponent{row}
	}

	sent, err := a.session.ChannelMessageSendComplex(channelID, send, discordgo.WithContext(ctx))
	if err != nil {
		return gateway.MessageRef{}, err
	}
	return gateway.MessageRef{ChannelID: channelID, MessageID: sent.ID}, nil
}

func (a *Adapter) AddPollMarks(ctx context.Context, ref gateway.MessageRef) error {
	for _, emoji := range []string{"✅", "❌"} {
		if err := a.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := a.session.MessageReactionAdd(ref.ChannelID, ref.MessageID, emoji, discordgo.WithContext(ctx)); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) NotifyOperator(ctx context.Context, operatorID int64, text string) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	ch, err := a.session.UserChannelCreate(strconv.FormatInt(operatorID, 10), discordgo.WithContext(ctx))
	if err != nil {
		return err
	}
	_, err = a.session.ChannelMessageSend(ch.ID, text, discordgo.WithContext(ctx))
	return err
}

func (a *Adapter) guildIDs() []string {
	out := make([]string, 0, len(a.session.State.Guilds))
	for _, g := range a.session.State.Guilds {
		out = append(out, g.ID)
	}
	return out
}

// channelID resolves a destination name from the cached map, re-listing once
// when it is stale.
func (a *Adapter) channelID(ctx context.Context, name string) (string, error) {
	key := strings.ToLower(name)
	a.nameMu.Lock()
	id, ok := a.channels[key]
	a.nameMu.Unlock()
	if ok {
		return id, nil
	}
	if _, err := a.Destinations(ctx); err != nil {
		return "", err
	}
	a.nameMu.Lock()
	id, ok = a.channels[key]
	a.nameMu.Unlock()
	if !ok {
		return "", fmt.Errorf("unknown channel %q", name)
	}
	return id, nil
}

func (a *Adapter) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// spoilerBroadcast wraps the bare broadcast marker the way the announcement
// sidecar expects it rendered on Discord.
func spoilerBroadcast(sidecar string) string {
	if sidecar == "" {
		return ""
	}
	lines := strings.Split(sidecar, "\n")
	for i, l := range lines {
		if strings.TrimSpace(l) == "@everyone" {
			lines[i] = "||@everyone||"
		}
	}
	return strings.Join(lines, "\n")
}
