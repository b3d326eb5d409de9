package announce

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"announcer/internal/attachments"
	"announcer/internal/gateway"
	"announcer/internal/parser"
	"announcer/internal/storage"
	"announcer/pkg/logx"
)

// list reports every pending announcement, ordered by run time.
func (s *Service) list(ctx context.Context) {
	all, err := s.store.ListAll(ctx)
	if err != nil {
		s.log.Error("list failed", logx.Err(err))
		s.notify(ctx, fmt.Sprintf("❌ Could not list: %v", err))
		return
	}
	if len(all) == 0 {
		s.notify(ctx, "No pending announcements.")
		return
	}

	var b strings.Builder
	b.WriteString("📋 Pending announcements:\n")
	for _, rec := range all {
		fmt.Fprintf(&b, "#%d → #%s at %s", rec.ID, rec.ChannelName, s.fmtTime(rec.RunAt))
		if n := len(rec.AttachmentPaths); n > 0 {
			fmt.Fprintf(&b, " (%d attachment(s))", n)
		}
		b.WriteString("\n")
	}
	s.notify(ctx, strings.TrimRight(b.String(), "\n"))
}

// cancel deletes one pending announcement and releases its blobs.
func (s *Service) cancel(ctx context.Context, rawID string) {
	id, ok := s.parseID(ctx, rawID)
	if !ok {
		return
	}

	rec, err := s.store.GetByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		s.notify(ctx, fmt.Sprintf("❌ No scheduled announcement with id %d.", id))
		return
	}
	if err != nil {
		s.log.Error("cancel lookup failed", logx.Int64("id", id), logx.Err(err))
		s.notify(ctx, fmt.Sprintf("❌ Could not cancel #%d: %v", id, err))
		return
	}

	existed, err := s.store.Delete(ctx, id)
	if err != nil {
		s.log.Error("cancel delete failed", logx.Int64("id", id), logx.Err(err))
		s.notify(ctx, fmt.Sprintf("❌ Could not cancel #%d: %v", id, err))
		return
	}
	if !existed {
		// The poller beat us to it.
		s.notify(ctx, fmt.Sprintf("❌ No scheduled announcement with id %d.", id))
		return
	}

	// Cancellation owns the blobs; leaving them behind would leak storage.
	s.blobs.Release(rec.AttachmentPaths)
	s.log.Info("announcement cancelled", logx.Int64("id", id))
	s.notify(ctx, fmt.Sprintf("🗑️ Cancelled #%d.", id))
}

// edit replaces a pending announcement's content and, when the edited message
// carries them, its destination, run time and attachments.
func (s *Service) edit(ctx context.Context, in gateway.Inbound, rest string) {
	idLine, body, _ := strings.Cut(rest, "\n")
	id, ok := s.parseID(ctx, strings.TrimSpace(idLine))
	if !ok {
		return
	}

	rec, err := s.store.GetByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		s.notify(ctx, fmt.Sprintf("❌ No scheduled announcement with id %d.", id))
		return
	}
	if err != nil {
		s.log.Error("edit lookup failed", logx.Int64("id", id), logx.Err(err))
		s.notify(ctx, fmt.Sprintf("❌ Could not edit #%d: %v", id, err))
		return
	}

	now := s.now().In(s.loc)
	res := parser.Parse(body, now)
	s.logIgnored(res.Ignored)
	cfg := res.Config

	patch := storage.Patch{Content: &body}
	if cfg.ChannelQuery != "" {
		// Validate the new destination up front, like schedule does.
		if _, ok := s.resolveDestination(ctx, cfg.ChannelQuery); !ok {
			s.notify(ctx, fmt.Sprintf("❌ Could not find any channel matching `%s`.", cfg.ChannelQuery))
			return
		}
		patch.ChannelName = &cfg.ChannelQuery
	}
	if cfg.ScheduleAt != nil {
		patch.RunAt = cfg.ScheduleAt
	}

	// Only an edit that carries new attachments replaces the old ones.
	var newPaths []string
	if len(in.Attachments) > 0 {
		newPaths = make([]string, 0, len(in.Attachments))
		for _, att := range in.Attachments {
			p, err := s.blobs.Persist(attachments.Blob{Filename: att.Filename, Data: att.Data})
			if err != nil {
				s.blobs.Release(newPaths)
				s.notify(ctx, fmt.Sprintf("❌ Could not store attachment `%s`: %v", att.Filename, err))
				return
			}
			newPaths = append(newPaths, p)
		}
		patch.AttachmentPaths = &newPaths
	}

	if err := s.store.Update(ctx, id, patch); err != nil {
		s.blobs.Release(newPaths)
		if errors.Is(err, storage.ErrNotFound) {
			s.notify(ctx, fmt.Sprintf("❌ No scheduled announcement with id %d.", id))
			return
		}
		s.log.Error("edit update failed", logx.Int64("id", id), logx.Err(err))
		s.notify(ctx, fmt.Sprintf("❌ Could not edit #%d: %v", id, err))
		return
	}
	if patch.AttachmentPaths != nil {
		s.blobs.Release(rec.AttachmentPaths)
	}

	runAt := rec.RunAt
	if patch.RunAt != nil {
		runAt = *patch.RunAt
	}
	dest := rec.ChannelName
	if patch.ChannelName != nil {
		dest = *patch.ChannelName
	}
	s.log.Info("announcement edited", logx.Int64("id", id), logx.Time("run_at", runAt))
	s.notify(ctx, fmt.Sprintf("✏️ Updated #%d → #%s at %s", id, dest, s.fmtTime(runAt)))
}

func (s *Service) parseID(ctx context.Context, raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		s.notify(ctx, fmt.Sprintf("❌ `%s` is not a valid id.", raw))
		return 0, false
	}
	return id, true
}
