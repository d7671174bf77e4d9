package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/harshul/microrun/internal/config"
	"github.com/harshul/microrun/internal/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create or show the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config.yaml with the default settings",
	Long: `The init command writes the built-in defaults to config.yaml so they
can be edited: the build command and configuration, the runtime host, the
IIS Express location, the browser policy and logging.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(&cfg)
		if err != nil {
			return err
		}
		reg, err := cfg.Registry()
		if err != nil {
			return err
		}
		fmt.Printf("# %s\n# registry: %s\n%s", path, reg, data)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolP("force", "f", false, "Overwrite an existing config.yaml")
	configCmd.AddCommand(configInitCmd, configShowCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		var err error
		if path, err = config.Path(); err != nil {
			return err
		}
	}

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("configuration file already exists at %s. Use --force to overwrite", path)
	}
	if err := config.Write(path, config.Default()); err != nil {
		return fmt.Errorf("failed to write configuration: %w", err)
	}

	ui.Success(fmt.Sprintf("Configuration written to %s", path))
	ui.Info("Run 'microrun add <project file>' to track a project")
	return nil
}
