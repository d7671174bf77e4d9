package ui

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"

	"github.com/harshul/microrun/internal/failure"
	"github.com/harshul/microrun/internal/project"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#00AA00", Dark: "#00FF00"})
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#FF8800", Dark: "#FFAA00"})
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#CC0000", Dark: "#FF4444"})
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#999999", Dark: "#666666"})
)

// Out is where the console helpers print. Tests swap it.
var Out io.Writer = os.Stdout

// Spinner prints a start and a done line around a slow step. It does not
// animate; output is often piped.
type Spinner struct {
	msg     string
	running bool
}

func NewSpinner(message string) *Spinner {
	return &Spinner{msg: message}
}

func (s *Spinner) Start() {
	if s == nil || s.running {
		return
	}
	s.running = true
	fmt.Fprintln(Out, "⏳", s.msg)
}

func (s *Spinner) Stop() {
	if s == nil || !s.running {
		return
	}
	s.running = false
	fmt.Fprintln(Out, dimStyle.Render("done"))
}

func Success(msg string) {
	fmt.Fprintln(Out, successStyle.Render("✅ "+msg))
}

func Info(msg string) {
	fmt.Fprintln(Out, "ℹ️ ", msg)
}

func Warn(msg string) {
	fmt.Fprintln(Out, warnStyle.Render("⚠️  "+msg))
}

func Error(msg string) {
	fmt.Fprintln(Out, errorStyle.Render("❌ "+msg))
}

// Describe renders err for a person: the failure kind first, then the
// project it concerns, then the cause.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var fe *failure.Error
	if !errors.As(err, &fe) {
		return err.Error()
	}
	msg := fe.Kind.String()
	if fe.Project != "" {
		msg = fmt.Sprintf("%s (%s)", msg, project.Name(fe.Project))
	}
	if fe.Err != nil {
		msg += ": " + fe.Err.Error()
	}
	return msg
}

// Report prints err with Error and returns it so callers can write
// `return ui.Report(err)`.
func Report(err error) error {
	if err != nil {
		Error(Describe(err))
	}
	return err
}
