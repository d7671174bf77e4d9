package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harshul/microrun/internal/logging"
	"github.com/harshul/microrun/internal/orchestrator"
	"github.com/harshul/microrun/internal/project"
	"github.com/harshul/microrun/internal/ui"
	"github.com/harshul/microrun/internal/watch"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [project...]",
	Short: "Start projects and stream their output",
	Long: `The run command builds and starts the given projects, or every checked
project when none is given, using each project's selected launch profile.

Output of all projects is streamed with a [name] prefix. Ctrl+C stops every
project that was started. The command also returns once all of them have
exited on their own.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().Bool("skip-build", false, "Run the last build output without building")
	runCmd.Flags().BoolP("watch", "w", false, "Reload launch profiles when launchSettings.json changes")
}

func runRun(cmd *cobra.Command, args []string) error {
	skipBuild, _ := cmd.Flags().GetBool("skip-build")
	watchSettings, _ := cmd.Flags().GetBool("watch")

	a, err := openApp(cmd, appOptions{mode: logging.ModeCLI, skipBuild: skipBuild})
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.load(ctx)
	ids, err := runTargets(a, args)
	if err != nil {
		return err
	}

	a.logs.SetTee(os.Stdout)
	defer a.logs.Flush()
	go ui.WatchStates(ctx, a.orch, os.Stdout)

	if watchSettings {
		w, err := watch.New(func(id string) {
			if err := a.orch.ReloadProfiles(id); err != nil {
				ui.Warn(ui.Describe(err))
			}
		}, watch.Options{Logger: a.log})
		if err != nil {
			return fmt.Errorf("watch launch settings: %w", err)
		}
		defer w.Close()
		w.Sync(ids)
		go w.Run(ctx)
	}

	results := a.orch.StartProjects(ctx, ids)
	started := 0
	var firstErr error
	for _, r := range results {
		switch {
		case r.Err != nil:
			ui.Error(ui.Describe(r.Err))
			if firstErr == nil {
				firstErr = r.Err
			}
		case r.Skipped:
			ui.Info(project.Name(r.ID) + " is already running")
		default:
			started++
		}
	}
	if started == 0 {
		return firstErr
	}

	ui.Info("Press Ctrl+C to stop")
	waitStopped(ctx, a.orch, ids)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ui.DefaultShutdownTimeout)
	defer cancel()
	if err := a.orch.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return firstErr
}

// runTargets resolves the arguments, or falls back to the checked projects.
func runTargets(a *app, args []string) ([]string, error) {
	if len(args) > 0 {
		return a.resolveAll(args)
	}
	var ids []string
	for _, p := range a.orch.Projects() {
		if p.BatchSelected {
			ids = append(ids, p.ID)
		}
	}
	if len(ids) == 0 {
		return nil, usagef("no project given and none checked; use `microrun check <project>` or name projects to run")
	}
	return ids, nil
}

// waitStopped returns when ctx is done or none of ids is running or
// starting any more.
func waitStopped(ctx context.Context, orch *orchestrator.Orchestrator, ids []string) {
	ch, unsubscribe := orch.Subscribe()
	defer unsubscribe()

	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for {
		select {
		case <-ctx.Done():
			return
		case list, ok := <-ch:
			if !ok {
				return
			}
			active := false
			for _, p := range list {
				if want[p.ID] && (p.State == project.Running || p.State.Busy()) {
					active = true
				}
			}
			if !active {
				return
			}
		}
	}
}
