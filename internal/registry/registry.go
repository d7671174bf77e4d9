// Package registry persists the list of tracked projects.
//
// The in-memory list is authoritative for the session. Every mutation is
// written through to a JSON file before it returns; when that write fails the
// mutation is kept and a PersistenceFailed error is returned.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/harshul/microrun/internal/failure"
	"github.com/harshul/microrun/internal/project"
)

// FileName is the registry file inside the data directory.
const FileName = "projects.json"

// Record is one persisted project entry.
type Record struct {
	FilePath              string `json:"filePath"`
	SelectedConfiguration string `json:"selectedConfiguration"`
	IsChecked             bool   `json:"isChecked"`
}

// ID is the project id of the record.
func (r Record) ID() string {
	id, err := project.ID(r.FilePath)
	if err != nil {
		return r.FilePath
	}
	return id
}

// Stopper stops the process of a project before it leaves the registry.
type Stopper interface {
	Stop(ctx context.Context, id string) error
}

// Options configures a Registry.
type Options struct {
	Stopper Stopper
	Logger  *slog.Logger
}

// Registry is the ordered list of tracked projects backed by a file.
type Registry struct {
	path string
	opts Options
	log  *slog.Logger

	mu      sync.RWMutex
	records []Record

	saveMu sync.Mutex
}

// Open loads the registry at path. A missing file is an empty registry; a
// file that cannot be parsed is an error and is left untouched.
func Open(path string, opts Options) (*Registry, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	r := &Registry{
		path: path,
		opts: opts,
		log:  opts.Logger.With("component", "registry"),
	}
	if err := r.Load(); err != nil {
		return nil, err
	}
	return r, nil
}

// Path is the backing file.
func (r *Registry) Path() string { return r.path }

// Load replaces the in-memory list with the file content.
func (r *Registry) Load() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			r.mu.Lock()
			r.records = nil
			r.mu.Unlock()
			return nil
		}
		return failure.New(failure.PersistenceFailed, "", fmt.Errorf("read %s: %w", r.path, err))
	}

	var records []Record
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &records); err != nil {
			return failure.New(failure.PersistenceFailed, "", fmt.Errorf("parse %s: %w", r.path, err))
		}
	}

	seen := make(map[string]bool, len(records))
	clean := records[:0]
	for _, rec := range records {
		id := rec.ID()
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		rec.FilePath = id
		clean = append(clean, rec)
	}

	r.mu.Lock()
	r.records = clean
	r.mu.Unlock()
	r.log.Debug("registry loaded", "path", r.path, "projects", len(clean))
	return nil
}

// Save writes the current list. Saves are serialized and the list is read
// under the save lock, so the last completed save holds the newest state.
func (r *Registry) Save() error {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	r.mu.RLock()
	records := make([]Record, len(r.records))
	copy(records, r.records)
	r.mu.RUnlock()

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return failure.New(failure.PersistenceFailed, "", err)
	}
	data = append(data, '\n')
	if err := writeFileAtomic(r.path, data, 0o644); err != nil {
		r.log.Warn("registry save failed", "path", r.path, "err", err)
		return failure.New(failure.PersistenceFailed, "", err)
	}
	return nil
}

// List returns a copy of the records in order.
func (r *Registry) List() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

// Get returns the record of id.
func (r *Registry) Get(id string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.indexLocked(id); i >= 0 {
		return r.records[i], true
	}
	return Record{}, false
}

func (r *Registry) indexLocked(id string) int {
	for i, rec := range r.records {
		if rec.FilePath == id {
			return i
		}
	}
	return -1
}

// Add tracks filePath. The stored path is absolute.
func (r *Registry) Add(filePath string) (Record, error) {
	id, err := project.ID(filePath)
	if err != nil {
		return Record{}, fmt.Errorf("resolve %s: %w", filePath, err)
	}
	if id == "" {
		return Record{}, errors.New("project path is required")
	}

	r.mu.Lock()
	if r.indexLocked(id) >= 0 {
		r.mu.Unlock()
		return Record{}, failure.New(failure.AlreadyTracked, id, nil)
	}
	rec := Record{FilePath: id}
	r.records = append(r.records, rec)
	r.mu.Unlock()

	r.log.Info("project added", "project", id)
	return rec, r.Save()
}

// Remove stops the project's process and then drops it. A failed stop keeps
// the project tracked.
func (r *Registry) Remove(ctx context.Context, id string) error {
	if _, ok := r.Get(id); !ok {
		return failure.New(failure.NotTracked, id, nil)
	}
	if r.opts.Stopper != nil {
		if err := r.opts.Stopper.Stop(ctx, id); err != nil {
			return err
		}
	}

	r.mu.Lock()
	i := r.indexLocked(id)
	if i < 0 {
		r.mu.Unlock()
		return nil
	}
	r.records = append(r.records[:i], r.records[i+1:]...)
	r.mu.Unlock()

	r.log.Info("project removed", "project", id)
	return r.Save()
}

// Replace points the entry of id at newPath, keeping its list position and
// batch flag. The old process is stopped and the selection cleared.
func (r *Registry) Replace(ctx context.Context, id, newPath string) (Record, error) {
	newID, err := project.ID(newPath)
	if err != nil {
		return Record{}, fmt.Errorf("resolve %s: %w", newPath, err)
	}
	if newID == "" {
		return Record{}, errors.New("project path is required")
	}
	if _, ok := r.Get(id); !ok {
		return Record{}, failure.New(failure.NotTracked, id, nil)
	}
	if newID != id {
		if _, ok := r.Get(newID); ok {
			return Record{}, failure.New(failure.AlreadyTracked, newID, nil)
		}
	}
	if r.opts.Stopper != nil {
		if err := r.opts.Stopper.Stop(ctx, id); err != nil {
			return Record{}, err
		}
	}

	r.mu.Lock()
	i := r.indexLocked(id)
	if i < 0 {
		r.mu.Unlock()
		return Record{}, failure.New(failure.NotTracked, id, nil)
	}
	rec := Record{FilePath: newID, IsChecked: r.records[i].IsChecked}
	r.records[i] = rec
	r.mu.Unlock()

	r.log.Info("project path changed", "from", id, "to", newID)
	return rec, r.Save()
}

// UpdateSelection records the selected launch profile of id.
func (r *Registry) UpdateSelection(id, profile string) error {
	return r.update(id, func(rec *Record) { rec.SelectedConfiguration = profile })
}

// SetBatchSelected records whether id takes part in batch operations.
func (r *Registry) SetBatchSelected(id string, checked bool) error {
	return r.update(id, func(rec *Record) { rec.IsChecked = checked })
}

func (r *Registry) update(id string, fn func(*Record)) error {
	r.mu.Lock()
	i := r.indexLocked(id)
	if i < 0 {
		r.mu.Unlock()
		return failure.New(failure.NotTracked, id, nil)
	}
	before := r.records[i]
	fn(&r.records[i])
	changed := before != r.records[i]
	r.mu.Unlock()

	if !changed {
		return nil
	}
	return r.Save()
}
