package internal

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/pagegraph/internal/apperr"
)

func TestLoadGraph(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "pages"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "pages", "a.md"), []byte("- [[b]]\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	cfg.Graph.Root = root
	svc, err := LoadGraph(context.Background(), WithConfig(cfg), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatalf("LoadGraph: %v", err)
	}
	stats := svc.Stats()
	if stats.Pages != 1 || stats.DanglingLinks != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestLoadGraphMissingRoot(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Graph.Root = filepath.Join(t.TempDir(), "absent")
	_, err := LoadGraph(context.Background(), WithConfig(cfg), WithLogOutput(io.Discard))
	if !errors.Is(err, apperr.ErrIO) {
		t.Fatalf("err = %v, want ErrIO", err)
	}
}

func TestRunRequiresConfig(t *testing.T) {
	if err := Run(context.Background()); !errors.Is(err, errConfigRequired) {
		t.Fatalf("err = %v, want errConfigRequired", err)
	}
	if _, err := LoadGraph(context.Background()); !errors.Is(err, errConfigRequired) {
		t.Fatalf("err = %v, want errConfigRequired", err)
	}
}
