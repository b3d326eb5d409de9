package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"announcer/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// runAtLayout is the persisted run_at format. It sorts lexicographically in
// chronological order, so ORDER BY and <= comparisons work on the text column.
const runAtLayout = "2006-01-02 15:04:05"

type Store struct {
	db  *sql.DB
	loc *time.Location
	log logx.Logger
}

// Open opens (creating if needed) the sqlite store.
// loc is the fixed zone run_at values are stored and interpreted in.
func Open(cfg Config, loc *time.Location, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if loc == nil {
		loc = time.UTC
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	s := &Store{db: db, loc: loc, log: log}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Insert stores a new scheduled announcement and returns its assigned id.
func (s *Store) Insert(ctx context.Context, a Announcement) (int64, error) {
	paths, err := marshalPaths(a.AttachmentPaths)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled(content, run_at, channel_name, author_id, attachment_paths)
		 VALUES(?,?,?,?,?)`,
		a.Content, a.RunAt.In(s.loc).Format(runAtLayout), a.ChannelName, a.AuthorID, paths,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetByID returns one announcement or ErrNotFound.
func (s *Store) GetByID(ctx context.Context, id int64) (Announcement, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, content, run_at, channel_name, author_id, attachment_paths
		 FROM scheduled WHERE id = ?`, id)
	a, err := s.scan(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Announcement{}, ErrNotFound
	}
	return a, err
}

// ListAll returns every pending announcement ordered by run time ascending.
func (s *Store) ListAll(ctx context.Context) ([]Announcement, error) {
	return s.list(ctx,
		`SELECT id, content, run_at, channel_name, author_id, attachment_paths
		 FROM scheduled ORDER BY run_at ASC, id ASC`)
}

// ListDue returns announcements whose run time is at or before now,
// ordered by run time ascending. Calling it again before due rows are
// deleted returns the same rows; not re-processing them is the caller's
// responsibility (prompt deletion after send).
func (s *Store) ListDue(ctx context.Context, now time.Time) ([]Announcement, error) {
	return s.list(ctx,
		`SELECT id, content, run_at, channel_name, author_id, attachment_paths
		 FROM scheduled WHERE run_at <= ? ORDER BY run_at ASC, id ASC`,
		now.In(s.loc).Format(runAtLayout))
}

// Update applies a partial patch inside a transaction.
// Returns ErrNotFound when the id doesn't exist.
func (s *Store) Update(ctx context.Context, id int64, p Patch) error {
	sets := make([]string, 0, 4)
	args := make([]any, 0, 5)
	if p.Content != nil {
		sets = append(sets, "content = ?")
		args = append(args, *p.Content)
	}
	if p.RunAt != nil {
		sets = append(sets, "run_at = ?")
		args = append(args, p.RunAt.In(s.loc).Format(runAtLayout))
	}
	if p.ChannelName != nil {
		sets = append(sets, "channel_name = ?")
		args = append(args, *p.ChannelName)
	}
	if p.AttachmentPaths != nil {
		paths, err := marshalPaths(*p.AttachmentPaths)
		if err != nil {
			return err
		}
		sets = append(sets, "attachment_paths = ?")
		args = append(args, paths)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE scheduled SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// Delete removes one row, reporting whether it existed.
func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scheduled WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// withTx runs fn in a transaction that is finalized on every exit path:
// commit on success, rollback on error or panic.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback() // no-op after a successful Commit
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]Announcement, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Announcement
	for rows.Next() {
		a, err := s.scan(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) scan(scan func(dest ...any) error) (Announcement, error) {
	var (
		a     Announcement
		runAt string
		paths sql.NullString
	)
	if err := scan(&a.ID, &a.Content, &runAt, &a.ChannelName, &a.AuthorID, &paths); err != nil {
		return Announcement{}, err
	}
	t, err := time.ParseInLocation(runAtLayout, runAt, s.loc)
	if err != nil {
		return Announcement{}, fmt.Errorf("bad run_at %q: %w", runAt, err)
	}
	a.RunAt = t
	if paths.Valid && paths.String != "" {
		if err := json.Unmarshal([]byte(paths.String), &a.AttachmentPaths); err != nil {
			return Announcement{}, fmt.Errorf("bad attachment_paths: %w", err)
		}
	}
	return a, nil
}

func marshalPaths(paths []string) (any, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(paths)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
