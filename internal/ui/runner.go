package ui

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/harshul/microrun/internal/browser"
	"github.com/harshul/microrun/internal/project"
)

// DefaultShutdownTimeout bounds the stop of all projects when the dashboard
// exits.
const DefaultShutdownTimeout = 15 * time.Second

// DashboardConfig holds configuration for the dashboard
type DashboardConfig struct {
	Controller      Controller
	Logs            *LogMultiplexer
	Opener          browser.Opener
	ShutdownTimeout time.Duration
	FallbackMode    bool // print state changes instead of drawing the TUI
	Out             io.Writer
}

// DashboardRunner manages the TUI dashboard lifecycle
type DashboardRunner struct {
	cfg       DashboardConfig
	dashboard *DashboardModel
	program   *tea.Program
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.Mutex
	running   bool
}

// NewDashboardRunner creates a new dashboard runner
func NewDashboardRunner(parent context.Context, cfg DashboardConfig) *DashboardRunner {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	ctx, cancel := context.WithCancel(parent)
	dr := &DashboardRunner{cfg: cfg, ctx: ctx, cancel: cancel}
	if !cfg.FallbackMode {
		dr.dashboard = NewDashboard(ctx, cfg.Controller, cfg.Logs, cfg.Opener)
	}
	return dr
}

// Start runs until the user quits, ctx is cancelled or a signal arrives, then
// stops every running project.
func (dr *DashboardRunner) Start() error {
	dr.mu.Lock()
	if dr.running {
		dr.mu.Unlock()
		return fmt.Errorf("dashboard already running")
	}
	dr.running = true
	dr.mu.Unlock()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			dr.Stop()
		case <-dr.ctx.Done():
			dr.Stop()
		}
	}()

	var err error
	if dr.cfg.FallbackMode {
		WatchStates(dr.ctx, dr.cfg.Controller, dr.cfg.Out)
	} else {
		dr.mu.Lock()
		dr.program = tea.NewProgram(
			dr.dashboard,
			tea.WithAltScreen(),
			tea.WithMouseCellMotion(),
		)
		program := dr.program
		dr.mu.Unlock()
		_, err = program.Run()
	}

	dr.cancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), dr.cfg.ShutdownTimeout)
	defer cancel()
	if serr := dr.cfg.Controller.Shutdown(shutdownCtx); serr != nil && err == nil {
		err = serr
	}
	return err
}

// Stop ends the dashboard. Projects are stopped by Start on its way out.
func (dr *DashboardRunner) Stop() {
	dr.mu.Lock()
	defer dr.mu.Unlock()

	if !dr.running {
		return
	}
	dr.running = false
	dr.cancel()
	if dr.program != nil {
		dr.program.Quit()
	}
}

// RunDashboard runs a dashboard until it exits.
func RunDashboard(ctx context.Context, cfg DashboardConfig) error {
	return NewDashboardRunner(ctx, cfg).Start()
}

// WatchStates prints a line for every state change of a tracked project until
// ctx is done.
func WatchStates(ctx context.Context, ctrl Controller, out io.Writer) {
	ch, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	last := map[string]project.Snapshot{}
	for {
		select {
		case <-ctx.Done():
			return
		case list, ok := <-ch:
			if !ok {
				return
			}
			for _, p := range list {
				prev, seen := last[p.ID]
				last[p.ID] = p
				if line, changed := describeTransition(prev, p, seen); changed {
					fmt.Fprintln(out, line)
				}
			}
		}
	}
}

func describeTransition(prev, next project.Snapshot, seen bool) (string, bool) {
	if seen && prev.State == next.State && errorText(prev.Err) == errorText(next.Err) {
		return "", false
	}
	if !seen && next.State == project.Stopped && next.Err == nil {
		return "", false
	}

	line := fmt.Sprintf("%s %s", projectPrefix(next.ID), next.State)
	switch {
	case next.State == project.Running && next.PID > 0:
		line += fmt.Sprintf(" (pid %d)", next.PID)
	case next.Err != nil:
		line += ": " + errorStyle.Render(Describe(next.Err))
	}
	return line, true
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
