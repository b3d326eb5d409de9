// Package announce orchestrates the announcement lifecycle: parse an operator
// message, resolve its destination and mentions, then send, preview, schedule,
// edit, cancel or execute it.
package announce

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"announcer/internal/attachments"
	"announcer/internal/gateway"
	"announcer/internal/parser"
	"announcer/internal/resolve"
	"announcer/internal/storage"
	"announcer/pkg/logx"
)

type Deps struct {
	Store       *storage.Store
	Attachments *attachments.Manager
	Gateway     gateway.Gateway
	Log         logx.Logger
	Location    *time.Location
	OperatorID  int64

	// Now overrides the clock in tests. Defaults to time.Now.
	Now func() time.Time
}

type Service struct {
	store      *storage.Store
	blobs      *attachments.Manager
	gw         gateway.Gateway
	log        logx.Logger
	loc        *time.Location
	operatorID int64
	now        func() time.Time
}

func New(d Deps) *Service {
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	return &Service{
		store:      d.Store,
		blobs:      d.Attachments,
		gw:         d.Gateway,
		log:        d.Log,
		loc:        d.Location,
		operatorID: d.OperatorID,
		now:        d.Now,
	}
}

// HandleInbound processes one operator message. Messages from anyone but the
// configured operator are dropped. The caller runs these sequentially; the
// service assumes a single logical operator worker.
func (s *Service) HandleInbound(ctx context.Context, in gateway.Inbound) {
	if in.AuthorID != s.operatorID {
		s.log.Debug("ignoring message from non-operator", logx.Int64("author_id", in.AuthorID))
		return
	}

	text := strings.TrimSpace(in.Text)
	lower := strings.ToLower(text)

	switch {
	case lower == "help":
		s.notify(ctx, usageText)
	case lower == "template":
		s.notify(ctx, templateText)
	case lower == "list":
		s.list(ctx)
	case strings.HasPrefix(lower, "cancel:"):
		s.cancel(ctx, strings.TrimSpace(text[len("cancel:"):]))
	case strings.HasPrefix(lower, "edit:"):
		s.edit(ctx, in, text[len("edit:"):])
	default:
		s.announce(ctx, in, in.Text)
	}
}

// announce runs the create path: preview, schedule, or immediate send.
func (s *Service) announce(ctx context.Context, in gateway.Inbound, raw string) {
	now := s.now().In(s.loc)
	res := parser.Parse(raw, now)
	s.logIgnored(res.Ignored)
	cfg := res.Config

	if cfg.Preview {
		s.preview(ctx, in, cfg, res.Partition)
		return
	}

	dest, ok := s.resolveDestination(ctx, cfg.ChannelQuery)
	if !ok {
		if cfg.ChannelQuery == "" {
			s.notify(ctx, "❌ Please specify a channel using `channel: name`.")
		} else {
			s.notify(ctx, fmt.Sprintf("❌ Could not find any channel matching `%s`.", cfg.ChannelQuery))
		}
		return
	}

	if cfg.ScheduleAt != nil {
		s.schedule(ctx, in, cfg, raw, dest)
		return
	}

	s.sendNow(ctx, in, cfg, res.Partition, dest)
}

// schedule persists attachments first, then the record, so a crash between
// the two leaks at most orphan files rather than a record pointing nowhere.
func (s *Service) schedule(ctx context.Context, in gateway.Inbound, cfg parser.Config, raw, dest string) {
	paths := make([]string, 0, len(in.Attachments))
	for _, att := range in.Attachments {
		p, err := s.blobs.Persist(attachments.Blob{Filename: att.Filename, Data: att.Data})
		if err != nil {
			s.blobs.Release(paths)
			s.notify(ctx, fmt.Sprintf("❌ Could not store attachment `%s`: %v", att.Filename, err))
			return
		}
		paths = append(paths, p)
	}

	id, err := s.store.Insert(ctx, storage.Announcement{
		Content:         raw,
		RunAt:           *cfg.ScheduleAt,
		ChannelName:     cfg.ChannelQuery,
		AuthorID:        in.AuthorID,
		AttachmentPaths: paths,
	})
	if err != nil {
		s.blobs.Release(paths)
		s.log.Error("schedule insert failed", logx.Err(err))
		s.notify(ctx, fmt.Sprintf("❌ Could not schedule: %v", err))
		return
	}

	s.log.Info("announcement scheduled",
		logx.Int64("id", id),
		logx.String("destination", dest),
		logx.Time("run_at", *cfg.ScheduleAt))
	s.notify(ctx, fmt.Sprintf("⏳ Scheduled #%d for #%s at %s", id, dest, s.fmtTime(*cfg.ScheduleAt)))
}

// sendNow delivers immediately; attachment bytes pass straight through
// without touching storage.
func (s *Service) sendNow(ctx context.Context, in gateway.Inbound, cfg parser.Config, part parser.Partition, dest string) {
	tokens := s.resolveMentions(ctx, cfg.Mentions)

	out := s.compose(in.AuthorName, in.AuthorIcon, cfg, part, tokens, in.Attachments)
	ref, err := s.gw.Publish(ctx, dest, out)
	if err != nil {
		s.log.Error("delivery failed", logx.String("destination", dest), logx.Err(err))
		s.notify(ctx, fmt.Sprintf("❌ Error sending: %v", err))
		return
	}
	if cfg.Poll {
		if err := s.gw.AddPollMarks(ctx, ref); err != nil {
			s.log.Warn("poll marks failed", logx.Err(err))
		}
	}
	s.notify(ctx, fmt.Sprintf("✅ Sent to #%s!", dest))
}

// preview renders the composed announcement back to the operator.
// Destination resolution failures show inline and never block the preview.
func (s *Service) preview(ctx context.Context, in gateway.Inbound, cfg parser.Config, part parser.Partition) {
	destInfo := "❌ (No channel specified)"
	if cfg.ChannelQuery != "" {
		if dest, ok := s.resolveDestination(ctx, cfg.ChannelQuery); ok {
			destInfo = "#" + dest
		} else {
			destInfo = fmt.Sprintf("❌ (Could not find `%s`)", cfg.ChannelQuery)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "👀 Preview for %s:\n", destInfo)
	if part.Body != "" {
		b.WriteString(part.Body)
		b.WriteString("\n")
	}
	if part.Sidecar != "" {
		b.WriteString(part.Sidecar)
		b.WriteString("\n")
	}
	if len(cfg.Mentions) > 0 {
		fmt.Fprintf(&b, "(Mentions: %s)\n", strings.Join(cfg.Mentions, ", "))
	}
	if cfg.ScheduleAt != nil {
		fmt.Fprintf(&b, "(Scheduled for %s)\n", s.fmtTime(*cfg.ScheduleAt))
	}
	if n := len(in.Attachments); n > 0 {
		fmt.Fprintf(&b, "(%d attachment(s) included)\n", n)
	}
	s.notify(ctx, strings.TrimRight(b.String(), "\n"))
}

// Execute delivers one due record. On success (or permanently gone
// destination) the record is removed; on delivery failure it stays for the
// next tick, which gives at-least-once semantics.
func (s *Service) Execute(ctx context.Context, rec storage.Announcement) error {
	now := s.now().In(s.loc)
	res := parser.Parse(rec.Content, now)
	s.logIgnored(res.Ignored)
	cfg := res.Config

	dest, ok := s.resolveDestination(ctx, rec.ChannelName)
	if !ok {
		// Destination is gone for good; retrying can't fix it.
		s.log.Warn("dropping announcement with unresolvable destination",
			logx.Int64("id", rec.ID), logx.String("channel", rec.ChannelName))
		s.drop(ctx, rec)
		s.notify(ctx, fmt.Sprintf("❌ Dropped #%d: channel `%s` no longer resolves.", rec.ID, rec.ChannelName))
		return nil
	}

	tokens := s.resolveMentions(ctx, cfg.Mentions)

	// Missing blobs are skipped; the announcement still delivers.
	atts := make([]gateway.Attachment, 0, len(rec.AttachmentPaths))
	for _, p := range rec.AttachmentPaths {
		blob, err := s.blobs.Load(p)
		if err != nil {
			s.log.Warn("skipping unreadable attachment", logx.Int64("id", rec.ID), logx.String("path", p), logx.Err(err))
			continue
		}
		atts = append(atts, gateway.Attachment{Filename: blob.Filename, Data: blob.Data})
	}

	out := s.compose("", "", cfg, res.Partition, tokens, atts)
	ref, err := s.gw.Publish(ctx, dest, out)
	if err != nil {
		s.log.Error("scheduled delivery failed; will retry",
			logx.Int64("id", rec.ID), logx.String("destination", dest), logx.Err(err))
		s.notify(ctx, fmt.Sprintf("❌ Delivery of #%d failed (%v); will retry.", rec.ID, err))
		return err
	}
	if cfg.Poll {
		if err := s.gw.AddPollMarks(ctx, ref); err != nil {
			s.log.Warn("poll marks failed", logx.Int64("id", rec.ID), logx.Err(err))
		}
	}

	// Prompt deletion is what keeps redelivery windows small.
	s.drop(ctx, rec)
	s.notify(ctx, fmt.Sprintf("✅ Sent scheduled announcement #%d to #%s!", rec.ID, dest))
	return nil
}

// RunDue executes every record due at now, sequentially. Each record is
// re-fetched right before delivery so cancels and edits that landed after the
// due listing are honored.
func (s *Service) RunDue(ctx context.Context, now time.Time) {
	due, err := s.store.ListDue(ctx, now)
	if err != nil {
		s.log.Error("due listing failed", logx.Err(err))
		return
	}
	for _, rec := range due {
		cur, err := s.store.GetByID(ctx, rec.ID)
		if errors.Is(err, storage.ErrNotFound) {
			continue // cancelled since the listing
		}
		if err != nil {
			s.log.Error("due re-fetch failed", logx.Int64("id", rec.ID), logx.Err(err))
			continue
		}
		if cur.RunAt.After(now) {
			continue // edited to a later time since the listing
		}
		_ = s.Execute(ctx, cur)
	}
}

// drop removes the record and releases its blobs, both best-effort.
func (s *Service) drop(ctx context.Context, rec storage.Announcement) {
	if _, err := s.store.Delete(ctx, rec.ID); err != nil {
		s.log.Error("record delete failed", logx.Int64("id", rec.ID), logx.Err(err))
	}
	s.blobs.Release(rec.AttachmentPaths)
}

// compose assembles the final outbound message. Mention tokens append to the
// sidecar so they ping outside the rich body.
func (s *Service) compose(authorName, authorIcon string, cfg parser.Config, part parser.Partition, mentionTokens []string, atts []gateway.Attachment) gateway.Outbound {
	sidecar := part.Sidecar
	if len(mentionTokens) > 0 {
		joined := strings.Join(mentionTokens, " ")
		if sidecar != "" {
			sidecar += "\n" + joined
		} else {
			sidecar = joined
		}
	}

	buttons := make([]gateway.Button, 0, len(cfg.Buttons))
	for _, b := range cfg.Buttons {
		buttons = append(buttons, gateway.Button{Label: b.Label, URL: b.URL})
	}

	return gateway.Outbound{
		Body:        part.Body,
		Sidecar:     sidecar,
		Color:       cfg.Color,
		Buttons:     buttons,
		Attachments: atts,
		AuthorName:  authorName,
		AuthorIcon:  authorIcon,
	}
}

// resolveDestination maps a free-text channel query onto an actual
// destination name.
func (s *Service) resolveDestination(ctx context.Context, query string) (string, bool) {
	if query == "" {
		return "", false
	}
	names, err := s.gw.Destinations(ctx)
	if err != nil {
		s.log.Error("destination listing failed", logx.Err(err))
		return "", false
	}
	return resolve.Destination(query, names)
}

// resolveMentions maps each mention query onto a platform mention token.
// Misses are reported per query and never block the announcement.
func (s *Service) resolveMentions(ctx context.Context, queries []string) []string {
	if len(queries) == 0 {
		return nil
	}
	names, err := s.gw.Roles(ctx)
	if err != nil {
		s.log.Warn("role listing failed", logx.Err(err))
		names = nil
	}

	tokens := make([]string, 0, len(queries))
	for _, q := range queries {
		name, ok := resolve.Role(q, names)
		if !ok {
			s.notify(ctx, fmt.Sprintf("⚠️ Could not find role `%s`.", q))
			continue
		}
		tokens = append(tokens, s.gw.MentionToken(name))
	}
	return tokens
}

func (s *Service) notify(ctx context.Context, text string) {
	if err := s.gw.NotifyOperator(ctx, s.operatorID, text); err != nil {
		s.log.Warn("operator notification failed", logx.Err(err))
	}
}

func (s *Service) logIgnored(ignored []parser.IgnoredLine) {
	for _, ign := range ignored {
		s.log.Debug("ignored malformed key line",
			logx.String("key", ign.Key),
			logx.String("line", ign.Line),
			logx.String("reason", ign.Reason))
	}
}

func (s *Service) fmtTime(t time.Time) string {
	return t.In(s.loc).Format("2006-01-02 15:04:05")
}
