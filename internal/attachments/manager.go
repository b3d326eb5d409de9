// Package attachments persists announcement attachments on disk for the time
// between scheduling and delivery. Immediate sends never touch it.
package attachments

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"announcer/pkg/logx"
)

// Blob is one attachment payload with its original filename.
type Blob struct {
	Filename string
	Data     []byte
}

type Manager struct {
	dir string
	log logx.Logger
}

// NewManager ensures dir exists and returns a manager rooted there.
func NewManager(dir string, log logx.Logger) (*Manager, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("attachments dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{dir: dir, log: log}, nil
}

// Persist writes the blob under a collision-proof name and returns its path.
// Ownership of the stored file transfers to the scheduled announcement that
// references the returned path.
func (m *Manager) Persist(blob Blob) (string, error) {
	name := fmt.Sprintf("%d-%s-%s",
		time.Now().UnixMilli(),
		uuid.NewString()[:8],
		sanitizeName(blob.Filename),
	)
	path := filepath.Join(m.dir, name)
	if err := os.WriteFile(path, blob.Data, 0o644); err != nil {
		return "", err
	}
	m.log.Debug("attachment persisted", logx.String("path", path), logx.Int("bytes", len(blob.Data)))
	return path, nil
}

// Load reads a persisted blob back, restoring its original filename.
// A missing file surfaces as os.ErrNotExist so callers can skip it.
func (m *Manager) Load(path string) (Blob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Blob{}, err
	}
	return Blob{Filename: originalName(path), Data: data}, nil
}

// Release deletes the given files best-effort. Missing files are fine;
// other failures are logged and skipped, never returned.
func (m *Manager) Release(paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			m.log.Warn("attachment release failed", logx.String("path", p), logx.Err(err))
		}
	}
}

// sanitizeName keeps only the base name and strips characters that could
// escape the storage directory or confuse downstream uploads.
func sanitizeName(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == string(filepath.Separator) || name == "" {
		return "attachment"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
}

// originalName strips the "<millis>-<uuid8>-" prefix Persist added.
func originalName(path string) string {
	base := filepath.Base(path)
	parts := strings.SplitN(base, "-", 3)
	if len(parts) == 3 {
		return parts[2]
	}
	return base
}
