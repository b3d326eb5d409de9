package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned by id-keyed operations when no row matches.
var ErrNotFound = errors.New("scheduled announcement not found")

// Config configures the store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // sqlite busy_timeout; 0 means default
}

// Announcement is one pending scheduled delivery.
//
// Content holds the original unparsed message body; it is re-parsed at
// execution time so edits stay trivial and the parser stays the single
// source of truth.
type Announcement struct {
	ID              int64
	Content         string
	RunAt           time.Time
	ChannelName     string // free-text destination query, re-resolved at execution
	AuthorID        int64
	AttachmentPaths []string
}

// Patch is a partial update for Update(). Nil fields are left unchanged.
type Patch struct {
	Content         *string
	RunAt           *time.Time
	ChannelName     *string
	AttachmentPaths *[]string
}
