package main

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/harshul/microrun/internal/browser"
	"github.com/harshul/microrun/internal/logging"
	"github.com/harshul/microrun/internal/ui"
	"github.com/harshul/microrun/internal/watch"
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	Aliases: []string{"ui"},
	Short:   "Interactive dashboard for the tracked projects",
	Long: `The dashboard lists every tracked project with its selected profile and
state. Start and stop projects, check them for start-all, cycle profiles and
follow their logs. Quitting stops every project the dashboard started.

The dashboard logs to the log file, not to the terminal. When stdout is not a
terminal, state changes are printed instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		noTUI, _ := cmd.Flags().GetBool("no-tui")
		a, err := openApp(cmd, appOptions{mode: logging.ModeDashboard})
		if err != nil {
			return err
		}
		defer a.close()

		ctx := cmd.Context()
		a.load(ctx)

		w, err := watch.New(func(id string) {
			if err := a.orch.ReloadProfiles(id); err != nil {
				a.log.Warn("reload profiles failed", "project", id, "err", err)
			}
		}, watch.Options{Logger: a.log})
		if err != nil {
			a.log.Warn("launch settings watch disabled", "err", err)
		} else {
			defer w.Close()
			ids := make([]string, 0)
			for _, p := range a.orch.Projects() {
				ids = append(ids, p.ID)
			}
			w.Sync(ids)
			go w.Run(ctx)
		}

		fallback := noTUI || !isatty.IsTerminal(os.Stdout.Fd())
		if fallback {
			a.logs.SetTee(os.Stdout)
			defer a.logs.Flush()
		}
		return ui.RunDashboard(ctx, ui.DashboardConfig{
			Controller:   a.orch,
			Logs:         a.logs,
			Opener:       browser.System{},
			FallbackMode: fallback,
			Out:          os.Stdout,
		})
	},
}

func init() {
	dashboardCmd.Flags().Bool("no-tui", false, "Print state changes instead of drawing the dashboard")
}
