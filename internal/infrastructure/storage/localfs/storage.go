package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kirillkom/labreport-analyzer/internal/core/ports"
)

// Storage hands out one scratch directory per analysis under basePath.
type Storage struct {
	basePath string
}

func New(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = filepath.Join(os.TempDir(), "labreport-analyzer")
	}
	if err := os.MkdirAll(basePath, 0o700); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{basePath: basePath}, nil
}

func (s *Storage) NewWorkspace(_ context.Context, id string) (ports.Workspace, error) {
	dir, err := os.MkdirTemp(s.basePath, safeKey(id)+"-")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{dir: dir}, nil
}

// Workspace is a private directory removed as a whole on Release.
type Workspace struct {
	dir string

	mu       sync.Mutex
	released bool
}

func (w *Workspace) Dir() string {
	return w.dir
}

func (w *Workspace) Save(_ context.Context, key string, data io.Reader) error {
	path, err := w.path(key)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, data); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

func (w *Workspace) Open(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := w.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

// Release removes the workspace directory. It is safe to call more than once.
func (w *Workspace) Release() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.released {
		return nil
	}
	w.released = true
	if err := os.RemoveAll(w.dir); err != nil {
		return fmt.Errorf("remove workspace %s: %w", w.dir, err)
	}
	return nil
}

func (w *Workspace) path(key string) (string, error) {
	w.mu.Lock()
	released := w.released
	w.mu.Unlock()
	if released {
		return "", errors.New("workspace already released")
	}
	return filepath.Join(w.dir, safeKey(key)), nil
}

func safeKey(key string) string {
	key = filepath.Base(strings.TrimSpace(key))
	if key == "" || key == "." || key == string(filepath.Separator) {
		return "artifact"
	}
	return key
}
