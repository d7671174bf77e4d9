package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func makeProject(t *testing.T, name string) (string, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), name)
	if err := os.MkdirAll(filepath.Join(dir, "Properties"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	settings := filepath.Join(dir, "Properties", "launchSettings.json")
	if err := os.WriteFile(settings, []byte(`{"profiles": {}}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return filepath.Join(dir, name+".csproj"), settings
}

func TestWatcherReportsSettingsChanges(t *testing.T) {
	changed := make(chan string, 8)
	w, err := New(func(id string) { changed <- id }, Options{Debounce: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	id, settings := makeProject(t, "Api")
	other, _ := makeProject(t, "Web")
	w.Sync([]string{id, other})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// Several quick writes collapse into one notification.
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(settings, []byte(`{"profiles": {"Api": {}}}`), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	// Unrelated files in the same directory are ignored.
	if err := os.WriteFile(filepath.Join(filepath.Dir(settings), "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case got := <-changed:
		if got != id {
			t.Errorf("expected change for %s, got %s", id, got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no change reported")
	}

	select {
	case got := <-changed:
		t.Errorf("expected a single debounced change, got another for %s", got)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestSyncDropsProjects(t *testing.T) {
	w, err := New(func(string) {}, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	id, _ := makeProject(t, "Api")
	missing := filepath.Join(t.TempDir(), "NoProps", "NoProps.csproj")
	w.Sync([]string{id, missing})
	if len(w.dirs) != 1 {
		t.Fatalf("expected one watched dir, got %v", w.dirs)
	}

	w.Sync(nil)
	if len(w.dirs) != 0 || len(w.settings) != 0 {
		t.Errorf("expected nothing watched after Sync(nil)")
	}
}
