package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"announcer/pkg/logx"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "test.db")}, time.UTC, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestInsertGetRoundTrip(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	runAt := time.Date(2099, 1, 2, 3, 4, 5, 0, time.UTC)
	id, err := s.Insert(ctx, Announcement{
		Content:         "channel: general\nHello",
		RunAt:           runAt,
		ChannelName:     "general",
		AuthorID:        42,
		AttachmentPaths: []string{"/tmp/a.png", "/tmp/b.png"},
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if id <= 0 {
		t.Fatalf("id = %d, want positive", id)
	}

	got, err := s.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Content != "channel: general\nHello" || got.ChannelName != "general" || got.AuthorID != 42 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if !got.RunAt.Equal(runAt) {
		t.Fatalf("RunAt = %v, want %v", got.RunAt, runAt)
	}
	if len(got.AttachmentPaths) != 2 || got.AttachmentPaths[0] != "/tmp/a.png" {
		t.Fatalf("AttachmentPaths = %v", got.AttachmentPaths)
	}
}

func TestGetByIDNotFound(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	if _, err := s.GetByID(context.Background(), 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListDueOrdering(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mk := func(at time.Time) int64 {
		id, err := s.Insert(ctx, Announcement{Content: "x", RunAt: at, ChannelName: "general", AuthorID: 1})
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
		return id
	}
	late := mk(now.Add(time.Hour))
	early := mk(now.Add(-time.Hour))
	exact := mk(now)

	due, err := s.ListDue(ctx, now)
	if err != nil {
		t.Fatalf("ListDue: %v", err)
	}
	if len(due) != 2 || due[0].ID != early || due[1].ID != exact {
		t.Fatalf("due = %+v, want [%d %d]", due, early, exact)
	}

	// Idempotent re-read before deletion.
	again, err := s.ListDue(ctx, now)
	if err != nil {
		t.Fatalf("ListDue again: %v", err)
	}
	if len(again) != 2 {
		t.Fatalf("second ListDue = %d rows, want 2", len(again))
	}

	all, err := s.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(all) != 3 || all[2].ID != late {
		t.Fatalf("all = %+v", all)
	}
}

func TestUpdatePartial(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	runAt := time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)
	id, err := s.Insert(ctx, Announcement{Content: "old", RunAt: runAt, ChannelName: "general", AuthorID: 1})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	content := "new"
	newRun := runAt.Add(time.Hour)
	if err := s.Update(ctx, id, Patch{Content: &content, RunAt: &newRun}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := s.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Content != "new" || !got.RunAt.Equal(newRun) {
		t.Fatalf("patched row = %+v", got)
	}
	// Untouched fields survive.
	if got.ChannelName != "general" || got.AuthorID != 1 {
		t.Fatalf("unpatched fields changed: %+v", got)
	}

	paths := []string{"/tmp/new.png"}
	if err := s.Update(ctx, id, Patch{AttachmentPaths: &paths}); err != nil {
		t.Fatalf("Update paths: %v", err)
	}
	got, _ = s.GetByID(ctx, id)
	if len(got.AttachmentPaths) != 1 || got.AttachmentPaths[0] != "/tmp/new.png" {
		t.Fatalf("AttachmentPaths = %v", got.AttachmentPaths)
	}

	if err := s.Update(ctx, 999, Patch{Content: &content}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Update missing = %v, want ErrNotFound", err)
	}
	if err := s.Update(ctx, id, Patch{}); err != nil {
		t.Fatalf("empty patch should be a no-op, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, Announcement{Content: "x", RunAt: time.Now().UTC(), ChannelName: "c", AuthorID: 1})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	existed, err := s.Delete(ctx, id)
	if err != nil || !existed {
		t.Fatalf("Delete = %v, %v; want true, nil", existed, err)
	}
	existed, err = s.Delete(ctx, id)
	if err != nil || existed {
		t.Fatalf("second Delete = %v, %v; want false, nil", existed, err)
	}

	// Deleted rows never come back from ListDue.
	due, err := s.ListDue(ctx, time.Now().UTC().Add(24*time.Hour))
	if err != nil {
		t.Fatalf("ListDue: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("due = %+v, want empty", due)
	}
}
