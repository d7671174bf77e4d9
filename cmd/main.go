package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/harshul/microrun/internal/ui"
)

// Version information (can be set at build time)
var (
	version = "0.1.0"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "microrun",
	Short: "Build, start and stop several .NET projects from their launch profiles",
	Long: `MicroRun tracks local .NET project files, reads the launch profiles in
Properties/launchSettings.json, builds each project and runs it as a child
process (or under IIS Express), keeping track of which projects are running.

Usage:
  microrun add <project file>   Track a project
  microrun list                 Show tracked projects and their state
  microrun run [project...]     Start projects and stream their output
  microrun dashboard            Interactive dashboard`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to config.yaml (default: user config dir)")
	rootCmd.PersistentFlags().String("registry", "", "Path to the project registry file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(addCmd, removeCmd, setPathCmd, listCmd, selectCmd, checkCmd, profilesCmd)
	rootCmd.AddCommand(runCmd, dashboardCmd, doctorCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		ui.Out = os.Stderr
		ui.Report(err)
		os.Exit(exitCode(err))
	}
}

// exitCode is 2 for usage errors and 1 for everything else.
func exitCode(err error) int {
	var ue usageError
	if errors.As(err, &ue) {
		return 2
	}
	return 1
}

type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}
