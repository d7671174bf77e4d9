package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harshul/microrun/internal/browser"
	"github.com/harshul/microrun/internal/build"
	"github.com/harshul/microrun/internal/config"
	"github.com/harshul/microrun/internal/doctor"
	"github.com/harshul/microrun/internal/failure"
	"github.com/harshul/microrun/internal/logging"
	"github.com/harshul/microrun/internal/orchestrator"
	"github.com/harshul/microrun/internal/project"
	"github.com/harshul/microrun/internal/supervisor"
	"github.com/harshul/microrun/internal/thermal"
	"github.com/harshul/microrun/internal/ui"
)

// app is everything a command needs, built from config and flags.
type app struct {
	cfg      config.Config
	log      *slog.Logger
	logs     *ui.LogMultiplexer
	orch     *orchestrator.Orchestrator
	closeLog func() error
}

type appOptions struct {
	mode      logging.Mode
	skipBuild bool
}

func loadConfig(cmd *cobra.Command) (config.Config, string, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		var err error
		if path, err = config.Path(); err != nil {
			return config.Config{}, "", err
		}
	}
	cfg, err := config.Read(path)
	if err != nil {
		return config.Config{}, "", err
	}
	if reg, _ := cmd.Flags().GetString("registry"); reg != "" {
		cfg.RegistryPath = reg
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = &level
	}
	return cfg, path, nil
}

func openApp(cmd *cobra.Command, opts appOptions) (*app, error) {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if opts.skipBuild {
		cfg.Build.Skip = true
	}

	dataDir, err := config.DataDir()
	if err != nil {
		return nil, err
	}
	logger, closeLog, err := logging.Init(cfg.Logging, logging.InitOptions{
		Mode:        opts.mode,
		Version:     version,
		DefaultFile: filepath.Join(dataDir, config.LogFile),
	})
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	regPath, err := cfg.Registry()
	if err != nil {
		closeLog()
		return nil, err
	}

	hw := thermal.DetectHardware()
	plan := thermal.PlanBuilds(hw, cfg.Batch.Concurrency, thermal.GetThermalStatus(hw))
	logger.Debug("build plan", "hardware", thermal.FormatHardwareInfo(hw), "concurrency", plan.Concurrency, "build_cpus", plan.BuildCPUs)

	logs := ui.NewLogMultiplexer(ui.DefaultLogLines)
	output := func(id string) io.Writer { return logs.Writer(id) }

	builder := build.NewDotNet(build.Options{
		Command:       cfg.Build.Command,
		Configuration: cfg.Build.Configuration,
		Framework:     cfg.Build.DefaultFramework,
		Extension:     cfg.Build.ArtifactExtension,
		Timeout:       cfg.Build.Timeout,
		Skip:          cfg.Build.Skip,
		MaxCPUCount:   plan.BuildCPUs,
		Output:        output,
		Logger:        logger,
	})

	iisOverride := cfg.Runtime.IISExpressPath
	orch, err := orchestrator.New(orchestrator.Options{
		RegistryPath: regPath,
		Builder:      builder,
		Logger:       logger,
		Concurrency:  plan.Concurrency,
		Supervisor: supervisor.Options{
			Logger:           logger,
			RuntimeHost:      cfg.Runtime.Host,
			LocateIISExpress: func() (string, error) { return doctor.LocateIISExpress(iisOverride) },
			Browser:          browser.System{},
			BrowserPolicy:    cfg.BrowserPolicy(),
			Output:           output,
			GracePeriod:      cfg.StopGracePeriod,
			Concurrency:      plan.Concurrency,
		},
	})
	if err != nil {
		closeLog()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		log:      logger,
		logs:     logs,
		orch:     orch,
		closeLog: closeLog,
	}, nil
}

// load reads the launch profiles of every tracked project.
func (a *app) load(ctx context.Context) {
	a.orch.Load(ctx)
}

func (a *app) close() {
	if a.closeLog != nil {
		_ = a.closeLog()
	}
}

// resolve maps a command-line project argument to a tracked project id. The
// argument may be a path to the project file, its file name, or its name
// without extension.
func (a *app) resolve(arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "", usagef("empty project argument")
	}
	list := a.orch.Projects()

	if id, err := project.ID(arg); err == nil {
		for _, p := range list {
			if p.ID == id {
				return id, nil
			}
		}
	}

	var matches []string
	for _, p := range list {
		base := filepath.Base(p.ID)
		if strings.EqualFold(base, arg) || strings.EqualFold(p.Name(), arg) {
			matches = append(matches, p.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", failure.Newf(failure.NotTracked, "", "no tracked project matches %q", arg)
	case 1:
		return matches[0], nil
	default:
		return "", usagef("%q matches several projects, use the full path:\n  %s", arg, strings.Join(matches, "\n  "))
	}
}

func (a *app) resolveAll(args []string) ([]string, error) {
	ids := make([]string, 0, len(args))
	for _, arg := range args {
		id, err := a.resolve(arg)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
