package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harshul/microrun/internal/doctor"
	"github.com/harshul/microrun/internal/logging"
	"github.com/harshul/microrun/internal/project"
	"github.com/harshul/microrun/internal/thermal"
	"github.com/harshul/microrun/internal/ui"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the .NET tooling and every tracked project",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, appOptions{mode: logging.ModeCLI})
		if err != nil {
			return err
		}
		defer a.close()

		var targets []doctor.Target
		for _, p := range a.orch.Projects() {
			targets = append(targets, doctor.Target{ID: p.ID, SelectedProfile: p.SelectedProfile})
		}
		host := a.cfg.Runtime.Host
		if host == "" {
			host = a.cfg.Build.Command
		}
		d := doctor.Diagnose(targets, doctor.Options{RuntimeHost: host, IISExpressPath: a.cfg.Runtime.IISExpressPath})

		hw := thermal.DetectHardware()
		status := thermal.GetThermalStatus(hw)
		ui.Info(fmt.Sprintf("%s: %s", thermal.FormatHardwareInfo(hw), status.Message))

		printRuntime(d.Runtime)
		printRuntime(d.IISExpress)
		for _, issue := range d.Issues {
			ui.Error(issue)
		}
		for _, p := range d.Projects {
			if len(p.Issues) == 0 {
				ui.Success(fmt.Sprintf("%s: %s (%s)", project.Name(p.ID), p.SelectedProfile, p.Kind))
				continue
			}
			ui.Warn(project.Name(p.ID))
			for _, issue := range p.Issues {
				fmt.Fprintln(ui.Out, "   •", issue)
			}
		}
		if !d.Healthy {
			return errors.New("problems found")
		}
		return nil
	},
}

func printRuntime(r doctor.RuntimeStatus) {
	switch {
	case r.Installed && r.Version != "":
		ui.Success(fmt.Sprintf("%s %s (%s)", r.Name, r.Version, r.Path))
	case r.Installed:
		ui.Success(fmt.Sprintf("%s (%s)", r.Name, r.Path))
	default:
		ui.Warn(r.Name + " not found")
	}
}
