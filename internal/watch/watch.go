// Package watch reports edits to the launchSettings.json files of tracked
// projects.
package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/harshul/microrun/internal/launchsettings"
)

const DefaultDebounce = 300 * time.Millisecond

type Options struct {
	Debounce time.Duration
	Logger   *slog.Logger
}

// Watcher calls OnChange with a project id after its settings file settles.
type Watcher struct {
	fs       *fsnotify.Watcher
	onChange func(id string)
	debounce time.Duration
	log      *slog.Logger

	mu       sync.Mutex
	dirs     map[string]bool
	settings map[string]string // settings file -> project id
}

// New creates a watcher. Call Sync to choose the projects and Run to deliver
// events.
func New(onChange func(id string), opts Options) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Watcher{
		fs:       fw,
		onChange: onChange,
		debounce: opts.Debounce,
		log:      opts.Logger.With("component", "watch"),
		dirs:     make(map[string]bool),
		settings: make(map[string]string),
	}, nil
}

// Sync watches the settings directories of ids and drops all others. The
// directory is watched rather than the file so editors that replace the file
// are still seen. Projects without a Properties directory are skipped.
func (w *Watcher) Sync(ids []string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	settings := make(map[string]string, len(ids))
	wantDirs := make(map[string]bool, len(ids))
	for _, id := range ids {
		path := filepath.Clean(launchsettings.SettingsPath(id))
		dir := filepath.Dir(path)
		if !isDir(dir) {
			continue
		}
		settings[path] = id
		wantDirs[dir] = true
	}

	for dir := range w.dirs {
		if !wantDirs[dir] {
			_ = w.fs.Remove(dir)
			delete(w.dirs, dir)
		}
	}
	for dir := range wantDirs {
		if w.dirs[dir] {
			continue
		}
		if err := w.fs.Add(dir); err != nil {
			w.log.Warn("watch failed", "dir", dir, "err", err)
			delete(settings, filepath.Join(dir, "launchSettings.json"))
			continue
		}
		w.dirs[dir] = true
	}
	w.settings = settings
}

// Run delivers debounced changes until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	pending := map[string]bool{}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if id, ok := w.match(ev); ok {
				pending[id] = true
				resetTimer(timer, w.debounce)
			}
		case <-timer.C:
			for id := range pending {
				w.log.Debug("launch settings changed", "project", id)
				w.onChange(id)
			}
			pending = map[string]bool{}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", "err", err)
		}
	}
}

func (w *Watcher) match(ev fsnotify.Event) (string, bool) {
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return "", false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	id, ok := w.settings[filepath.Clean(ev.Name)]
	return id, ok
}

func resetTimer(timer *time.Timer, d time.Duration) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(d)
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
