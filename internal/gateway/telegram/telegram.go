// Package telegram implements the announcement gateway on Telegram.
//
// Destinations are configured chat ids (Telegram has no channel listing for
// bots), buttons become an inline URL keyboard and poll marks are 👍/👎
// message reactions.
package telegram

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"
	"gopkg.in/telebot.v4/react"

	"announcer/internal/gateway"
	"announcer/pkg/logx"
)

type Config struct {
	Token        string
	PollTimeout  time.Duration
	Destinations map[string]int64
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot       *tele.Bot
	runCancel context.CancelFunc
	runWG     sync.WaitGroup
	runMu     sync.Mutex
	running   bool

	// droppedUpdates counts updates dropped because the consumer was slower
	// than the Telegram poll loop.
	droppedUpdates uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if len(cfg.Destinations) == 0 {
		return nil, errors.New("telegram destinations map is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{cfg: cfg, log: log, bot: b}, nil
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
	a.runWG.Add(1)
	a.runMu.Unlock()

	forward := func(in gateway.Inbound) {
		select {
		case inbox <- in:
		default:
			atomic.AddUint64(&a.droppedUpdates, 1)
		}
	}

	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil || m.Chat.Type != tele.ChatPrivate {
			return nil
		}
		forward(gateway.Inbound{
			AuthorID:   m.Sender.ID,
			AuthorName: senderName(m.Sender),
			Text:       m.Text,
		})
		return nil
	})

	a.bot.Handle(tele.OnDocument, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil || m.Chat.Type != tele.ChatPrivate || m.Document == nil {
			return nil
		}
		in := gateway.Inbound{
			AuthorID:   m.Sender.ID,
			AuthorName: senderName(m.Sender),
			Text:       m.Caption,
		}
		data, err := a.fileBytes(&m.Document.File)
		if err != nil {
			a.log.Warn("document download failed", logx.Err(err))
		} else {
			name := m.Document.FileName
			if name == "" {
				name = "document"
			}
			in.Attachments = append(in.Attachments, gateway.Attachment{Filename: name, Data: data})
		}
		forward(in)
		return nil
	})

	a.bot.Handle(tele.OnPhoto, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil || m.Chat.Type != tele.ChatPrivate || m.Photo == nil {
			return nil
		}
		in := gateway.Inbound{
			AuthorID:   m.Sender.ID,
			AuthorName: senderName(m.Sender),
			Text:       m.Caption,
		}
		data, err := a.fileBytes(&m.Photo.File)
		if err != nil {
			a.log.Warn("photo download failed", logx.Err(err))
		} else {
			in.Attachments = append(in.Attachments, gateway.Attachment{Filename: "photo.jpg", Data: data})
		}
		forward(in)
		return nil
	})

	go func() {
		defer a.runWG.Done()
		go func() {
			<-rctx.Done()
			a.bot.Stop()
		}()
		a.log.Info("polling started")
		a.bot.Start() // blocks until Stop() called
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
	if a.bot != nil {
		go a.bot.Stop()
	}

	done := make(chan struct{})
	go func() {
		a.runWG.Wait()
		close(done)
	}()

	// Grace window: keep shutdown snappy even if getUpdates long-poll is
	// still waiting.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	t := time.NewTimer(grace)
	defer t.Stop()

	select {
	case <-done:
		a.log.Info("polling stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		a.log.Warn("telegram stop grace elapsed; continuing shutdown")
		return nil
	}
}

func (a *Adapter) Destinations(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(a.cfg.Destinations))
	for name := range a.cfg.Destinations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Roles is empty on Telegram; there is no role system to mention.
func (a *Adapter) Roles(ctx context.Context) ([]string, error) {
	return nil, nil
}

func (a *Adapter) MentionToken(role string) string {
	return "@" + role
}

func (a *Adapter) Publish(ctx context.Context, destination string, msg gateway.Outbound) (gateway.MessageRef, error) {
	chatID, err := a.chatID(destination)
	if err != nil {
		return gateway.MessageRef{}, err
	}

	text := msg.Body
	if msg.Sidecar != "" {
		text = strings.TrimRight(text+"\n\n"+msg.Sidecar, "\n")
	}

	opt := &tele.SendOptions{}
	if len(msg.Buttons) > 0 {
		markup := &tele.ReplyMarkup{}
		rows := make([][]tele.InlineButton, 0, len(msg.Buttons))
		for _, b := range msg.Buttons {
			rows = append(rows, []tele.InlineButton{{Text: b.Label, URL: b.URL}})
		}
		markup.InlineKeyboard = rows
		opt.ReplyMarkup = markup
	}

	sent, err := a.bot.Send(tele.ChatID(chatID), text, opt)
	if err != nil {
		return gateway.MessageRef{}, err
	}

	for _, att := range msg.Attachments {
		doc := &tele.Document{
			File:     tele.FromReader(bytes.NewReader(att.Data)),
			FileName: att.Filename,
		}
		if _, err := a.bot.Send(tele.ChatID(chatID), doc); err != nil {
			a.log.Warn("attachment upload failed",
				logx.String("destination", destination),
				logx.String("filename", att.Filename),
				logx.Err(err))
		}
	}

	return gateway.MessageRef{
		ChannelID: strconv.FormatInt(chatID, 10),
		MessageID: strconv.Itoa(sent.ID),
	}, nil
}

// AddPollMarks reacts with 👍/👎; Telegram's reaction emoji set has no plain
// check mark.
func (a *Adapter) AddPollMarks(ctx context.Context, ref gateway.MessageRef) error {
	chatID, err := strconv.ParseInt(ref.ChannelID, 10, 64)
	if err != nil {
		return err
	}
	stored := tele.StoredMessage{ChatID: chatID, MessageID: ref.MessageID}
	return a.bot.React(tele.ChatID(chatID), stored, react.React(react.ThumbUp, react.ThumbDown))
}

func (a *Adapter) NotifyOperator(ctx context.Context, operatorID int64, text string) error {
	_, err := a.bot.Send(tele.ChatID(operatorID), text)
	return err
}

func (a *Adapter) chatID(destination string) (int64, error) {
	for name, id := range a.cfg.Destinations {
		if strings.EqualFold(name, destination) {
			return id, nil
		}
	}
	return 0, errors.New("unknown destination " + destination)
}

func (a *Adapter) fileBytes(f *tele.File) ([]byte, error) {
	rc, err := a.bot.File(f)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func senderName(u *tele.User) string {
	if u.Username != "" {
		return u.Username
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
