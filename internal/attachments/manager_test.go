package attachments

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"announcer/pkg/logx"
)

func TestPersistLoadRoundTrip(t *testing.T) {
	t.Parallel()
	m, err := NewManager(t.TempDir(), logx.Nop())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	path, err := m.Persist(Blob{Filename: "notes.pdf", Data: []byte("payload")})
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}

	got, err := m.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Filename != "notes.pdf" {
		t.Fatalf("Filename = %q, want notes.pdf", got.Filename)
	}
	if string(got.Data) != "payload" {
		t.Fatalf("Data = %q", got.Data)
	}
}

func TestPersistAvoidsCollisions(t *testing.T) {
	t.Parallel()
	m, err := NewManager(t.TempDir(), logx.Nop())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	p1, err := m.Persist(Blob{Filename: "same.png", Data: []byte("a")})
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	p2, err := m.Persist(Blob{Filename: "same.png", Data: []byte("b")})
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if p1 == p2 {
		t.Fatalf("expected distinct paths, both %q", p1)
	}
}

func TestPersistSanitizesName(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	m, err := NewManager(dir, logx.Nop())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	path, err := m.Persist(Blob{Filename: "../../etc/pass:wd", Data: []byte("x")})
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Fatalf("path escaped storage dir: %q", path)
	}
}

func TestReleaseBestEffort(t *testing.T) {
	t.Parallel()
	m, err := NewManager(t.TempDir(), logx.Nop())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	path, err := m.Persist(Blob{Filename: "a.txt", Data: []byte("x")})
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}

	// One real file, one long gone; neither may panic or error.
	m.Release([]string{path, filepath.Join(t.TempDir(), "missing.txt")})

	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("file still present after Release: %v", err)
	}
}

func TestLoadMissingSurfacesNotExist(t *testing.T) {
	t.Parallel()
	m, err := NewManager(t.TempDir(), logx.Nop())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if _, err := m.Load(filepath.Join(t.TempDir(), "nope.bin")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want ErrNotExist", err)
	}
}
