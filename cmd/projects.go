package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/harshul/microrun/internal/logging"
	"github.com/harshul/microrun/internal/ui"
)

var addCmd = &cobra.Command{
	Use:   "add <project file>",
	Short: "Track a .NET project file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, appOptions{mode: logging.ModeCLI})
		if err != nil {
			return err
		}
		defer a.close()

		snap, err := a.orch.AddProject(args[0])
		if err != nil && snap.ID == "" {
			return err
		}
		ui.Success(fmt.Sprintf("Tracking %s", snap.FilePath))
		if snap.Err != nil {
			ui.Warn(ui.Describe(snap.Err))
		} else if snap.SelectedProfile != "" {
			ui.Info(fmt.Sprintf("Profile: %s (%d available)", snap.SelectedProfile, len(snap.Profiles)))
		}
		return err
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <project>",
	Short: "Stop tracking a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, appOptions{mode: logging.ModeCLI})
		if err != nil {
			return err
		}
		defer a.close()

		id, err := a.resolve(args[0])
		if err != nil {
			return err
		}
		if err := a.orch.RemoveProject(cmd.Context(), id); err != nil {
			return err
		}
		ui.Success(fmt.Sprintf("Removed %s", id))
		return nil
	},
}

var setPathCmd = &cobra.Command{
	Use:   "set-path <project> <new project file>",
	Short: "Point a tracked project at a different project file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, appOptions{mode: logging.ModeCLI})
		if err != nil {
			return err
		}
		defer a.close()

		id, err := a.resolve(args[0])
		if err != nil {
			return err
		}
		snap, err := a.orch.SetProjectPath(cmd.Context(), id, args[1])
		if err != nil && snap.ID == "" {
			return err
		}
		ui.Success(fmt.Sprintf("%s now tracks %s", snap.Name(), snap.FilePath))
		if snap.Err != nil {
			ui.Warn(ui.Describe(snap.Err))
		}
		return err
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "Show tracked projects",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, appOptions{mode: logging.ModeCLI})
		if err != nil {
			return err
		}
		defer a.close()

		a.load(cmd.Context())
		ui.PrintProjects(os.Stdout, a.orch.Projects())
		return nil
	},
}

var selectCmd = &cobra.Command{
	Use:   "select <project> <profile>",
	Short: "Select the launch profile a project starts with",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, appOptions{mode: logging.ModeCLI})
		if err != nil {
			return err
		}
		defer a.close()

		id, err := a.resolve(args[0])
		if err != nil {
			return err
		}
		if err := a.orch.ReloadProfiles(id); err != nil {
			return err
		}
		if err := a.orch.SelectConfiguration(id, args[1]); err != nil {
			return err
		}
		ui.Success(fmt.Sprintf("%s will start with profile %s", args[0], args[1]))
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check <project>...",
	Short: "Include projects in start-all and stop-all",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		off, _ := cmd.Flags().GetBool("off")
		a, err := openApp(cmd, appOptions{mode: logging.ModeCLI})
		if err != nil {
			return err
		}
		defer a.close()

		ids, err := a.resolveAll(args)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := a.orch.SetBatchSelected(id, !off); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	checkCmd.Flags().Bool("off", false, "Exclude the projects instead")
}
