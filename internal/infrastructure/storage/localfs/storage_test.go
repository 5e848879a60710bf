package localfs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWorkspaceRoundTripAndRelease(t *testing.T) {
	storage, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ws, err := storage.NewWorkspace(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("NewWorkspace() error = %v", err)
	}
	if err := ws.Save(context.Background(), "upload.png", strings.NewReader("bitmap")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	rc, err := ws.Open(context.Background(), "upload.png")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	payload, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil || string(payload) != "bitmap" {
		t.Fatalf("unexpected payload %q, err=%v", payload, err)
	}

	dir := ws.(*Workspace).Dir()
	if err := ws.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("expected workspace dir to be removed, stat err=%v", err)
	}
	if err := ws.Release(); err != nil {
		t.Fatalf("second Release() error = %v", err)
	}
	if err := ws.Save(context.Background(), "late.png", strings.NewReader("x")); err == nil {
		t.Fatalf("expected save after release to fail")
	}
}

func TestWorkspaceKeysCannotEscape(t *testing.T) {
	base := t.TempDir()
	storage, err := New(base)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ws, err := storage.NewWorkspace(context.Background(), "../doc")
	if err != nil {
		t.Fatalf("NewWorkspace() error = %v", err)
	}
	defer ws.Release()

	if err := ws.Save(context.Background(), "../../escape.txt", strings.NewReader("x")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(base, "escape.txt")); !os.IsNotExist(err) {
		t.Fatalf("key escaped the workspace")
	}
	if _, err := os.Stat(filepath.Join(ws.(*Workspace).Dir(), "escape.txt")); err != nil {
		t.Fatalf("expected file inside workspace: %v", err)
	}
}

func TestWorkspacesAreIsolated(t *testing.T) {
	storage, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	first, _ := storage.NewWorkspace(context.Background(), "same")
	second, _ := storage.NewWorkspace(context.Background(), "same")
	defer first.Release()
	defer second.Release()

	if first.(*Workspace).Dir() == second.(*Workspace).Dir() {
		t.Fatalf("expected distinct directories for concurrent workspaces")
	}
}
