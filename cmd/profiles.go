package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harshul/microrun/internal/launchsettings"
	"github.com/harshul/microrun/internal/logging"
	"github.com/harshul/microrun/internal/project"
	"github.com/harshul/microrun/internal/ui"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles <project>",
	Short: "List the launch profiles of a project",
	Long: `List the profiles declared in Properties/launchSettings.json. The
argument is a tracked project or any project file path; the selected profile
of a tracked project is marked with *.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		showEnv, _ := cmd.Flags().GetBool("env")
		a, err := openApp(cmd, appOptions{mode: logging.ModeCLI})
		if err != nil {
			return err
		}
		defer a.close()

		var snap project.Snapshot
		var set launchsettings.Set
		if id, rerr := a.resolve(args[0]); rerr == nil {
			if err := a.orch.ReloadProfiles(id); err != nil {
				return err
			}
			snap, _ = a.orch.Project(id)
			set, _ = a.orch.Profiles(id)
		} else {
			id, err := project.ID(args[0])
			if err != nil {
				return err
			}
			if set, err = launchsettings.Load(id); err != nil {
				return err
			}
			snap = project.Snapshot{ID: id, FilePath: id, Profiles: set.Names()}
		}

		ui.PrintProfiles(os.Stdout, snap, func(name string) string {
			p, ok := set.Get(name)
			if !ok {
				return ""
			}
			return describeProfile(p, showEnv)
		})
		return nil
	},
}

func init() {
	profilesCmd.Flags().Bool("env", false, "Show environment variables (long values masked)")
}

func describeProfile(p launchsettings.Profile, showEnv bool) string {
	parts := []string{p.CommandName}
	if p.Kind == launchsettings.KindUnknown {
		parts[0] += " (unsupported)"
	}
	if url := p.ListenURL(); url != "" {
		parts = append(parts, url)
	}
	if p.CommandLineArgs != "" {
		parts = append(parts, "args: "+p.CommandLineArgs)
	}
	if showEnv && len(p.EnvironmentVariables) > 0 {
		keys := make([]string, 0, len(p.EnvironmentVariables))
		for k := range p.EnvironmentVariables {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", k, maskEnvValue(p.EnvironmentVariables[k])))
		}
	}
	return strings.Join(parts, "  ")
}

// maskEnvValue masks sensitive values for display
func maskEnvValue(value string) string {
	// URLs are usually not secret
	if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") ||
		strings.HasPrefix(value, "ws://") || strings.HasPrefix(value, "wss://") {
		return value
	}
	if len(value) <= 10 {
		return value
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}
