package project

import (
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// RunState is the lifecycle state of a tracked project.
type RunState int

const (
	Stopped RunState = iota
	Building
	Starting
	Running
)

func (s RunState) String() string {
	switch s {
	case Building:
		return "Building"
	case Starting:
		return "Starting"
	case Running:
		return "Running"
	default:
		return "Stopped"
	}
}

// Busy reports whether a start is in flight.
func (s RunState) Busy() bool {
	return s == Building || s == Starting
}

// ID returns the stable identity of a project file: its cleaned absolute path.
func ID(filePath string) (string, error) {
	filePath = strings.TrimSpace(filePath)
	if filePath == "" {
		return "", nil
	}
	abs, err := filepath.Abs(filePath)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}

// Name is the display name of a project: the file name without extension.
func Name(id string) string {
	base := filepath.Base(id)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Dir is the project directory.
func Dir(id string) string {
	return filepath.Dir(id)
}

// Snapshot is an immutable view of one tracked project. New snapshots are only
// produced by Apply.
type Snapshot struct {
	ID              string
	FilePath        string
	SelectedProfile string
	Profiles        []string
	BatchSelected   bool
	State           RunState
	Loading         bool
	PID             int
	Err             error
	UpdatedAt       time.Time
}

// Name is the display name of the project.
func (s Snapshot) Name() string { return Name(s.ID) }

// EventKind enumerates the transitions a snapshot accepts.
type EventKind int

const (
	EventProfilesLoaded EventKind = iota
	EventProfilesFailed
	EventSelectionChanged
	EventBatchToggled
	EventBuildStarted
	EventLaunchStarted
	EventStarted
	EventStopped
	EventFailed
	EventLoading
)

// Event drives one transition. Only the fields relevant to Kind are read.
type Event struct {
	Kind     EventKind
	Profiles []string
	Profile  string
	Checked  bool
	PID      int
	Loading  bool
	Err      error
	At       time.Time
}

// Apply returns the snapshot that results from e. s is never modified.
func (s Snapshot) Apply(e Event) Snapshot {
	next := s
	next.Profiles = slices.Clone(s.Profiles)
	if e.At.IsZero() {
		next.UpdatedAt = time.Now()
	} else {
		next.UpdatedAt = e.At
	}

	switch e.Kind {
	case EventProfilesLoaded:
		next.Profiles = slices.Clone(e.Profiles)
		next.SelectedProfile = e.Profile
		next.Err = nil
	case EventProfilesFailed:
		next.Err = e.Err
	case EventSelectionChanged:
		next.SelectedProfile = e.Profile
	case EventBatchToggled:
		next.BatchSelected = e.Checked
	case EventBuildStarted:
		next.State = Building
		next.Loading = true
		next.Err = nil
	case EventLaunchStarted:
		next.State = Starting
		next.Loading = true
		next.Err = nil
	case EventStarted:
		next.State = Running
		next.PID = e.PID
		next.Loading = false
		next.Err = nil
	case EventStopped:
		next.State = Stopped
		next.PID = 0
		next.Loading = false
		if e.Err != nil {
			next.Err = e.Err
		}
	case EventFailed:
		if next.State.Busy() {
			next.State = Stopped
			next.PID = 0
		}
		next.Loading = false
		next.Err = e.Err
	case EventLoading:
		next.Loading = e.Loading
	}
	return next
}

// Result is the per-project outcome of a batch operation.
type Result struct {
	ID      string
	Skipped bool
	Err     error
}

// Usage is a resource sample of a running project process.
type Usage struct {
	PID        int
	CPUPercent float64
	RSS        uint64
	StartedAt  time.Time
}
