// Package failure defines the error kinds MicroRun reports to the user.
//
// Every error that crosses a component boundary is a *Error carrying a Kind
// and the project it concerns, so callers can branch with errors.Is:
//
//	if errors.Is(err, failure.AlreadyRunning) { ... }
package failure

import (
	"errors"
	"fmt"
	"path/filepath"
)

// Kind classifies a failure. Kind implements error so a bare kind can be used
// as an errors.Is target.
type Kind int

const (
	Unknown Kind = iota
	ConfigNotFound
	ConfigMalformed
	NoProfileSelected
	UnsupportedCommandKind
	MissingDependency
	BuildFailed
	AlreadyRunning
	LaunchFailed
	PersistenceFailed
	NotTracked
	AlreadyTracked
)

var kindNames = map[Kind]string{
	Unknown:                "error",
	ConfigNotFound:         "launch settings not found",
	ConfigMalformed:        "launch settings malformed",
	NoProfileSelected:      "no launch profile selected",
	UnsupportedCommandKind: "unsupported command kind",
	MissingDependency:      "missing dependency",
	BuildFailed:            "build failed",
	AlreadyRunning:         "already running",
	LaunchFailed:           "launch failed",
	PersistenceFailed:      "persistence failed",
	NotTracked:             "project not tracked",
	AlreadyTracked:         "project already tracked",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) Error() string { return k.String() }

// Error is a classified failure for one project.
type Error struct {
	Kind    Kind
	Project string // project id (absolute project file path), may be empty
	Err     error
}

// New classifies err. A nil err still yields an error carrying only the kind.
func New(kind Kind, project string, err error) error {
	return &Error{Kind: kind, Project: project, Err: err}
}

// Newf is New with a formatted cause.
func Newf(kind Kind, project string, format string, args ...any) error {
	return &Error{Kind: kind, Project: project, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Project != "" {
		return filepath.Base(e.Project) + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches a bare Kind target.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// KindOf returns the kind of the outermost *Error in err's chain, or Unknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

// ProjectOf returns the project id carried by err, if any.
func ProjectOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Project
	}
	return ""
}
