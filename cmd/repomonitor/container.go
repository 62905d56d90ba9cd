package repomonitor

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.uber.org/dig"

	"github.com/skaphos/repomonitor/internal/config"
	"github.com/skaphos/repomonitor/internal/discovery"
	"github.com/skaphos/repomonitor/internal/monitor"
	"github.com/skaphos/repomonitor/internal/probe"
	"github.com/skaphos/repomonitor/internal/status"
	"github.com/skaphos/repomonitor/internal/vcs"
)

// runtimeConfig is the loaded configuration plus the command-line overrides
// that decide what gets monitored.
type runtimeConfig struct {
	Path     string
	Config   *config.Config
	Projects []string
	Roots    []string
}

// app is everything a command needs, resolved from the container.
type app struct {
	dig.In

	Runtime runtimeConfig
	Config  *config.Config
	Log     logrus.FieldLogger
	Adapter vcs.Adapter
	Lister  monitor.RepositoryLister
	Board   *status.Board
	Monitor *monitor.Monitor
}

// loadRuntimeConfig resolves and loads the config for cmd. Positional
// args replace the configured projects and roots. With nothing configured
// the current directory is monitored.
func loadRuntimeConfig(cmd *cobra.Command, args []string) (runtimeConfig, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return runtimeConfig{}, err
	}
	cfgPath, err := config.ResolveConfigPath(flagConfig, cwd)
	if err != nil {
		return runtimeConfig{}, err
	}
	cfg, found, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		return runtimeConfig{}, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	if found {
		debugf(cmd, "using config %s", cfgPath)
	} else {
		debugf(cmd, "no config at %s; using defaults", cfgPath)
	}
	if err := applyCommandOverrides(cmd, cfg); err != nil {
		return runtimeConfig{}, err
	}

	rt := runtimeConfig{Path: cfgPath, Config: cfg}
	if len(args) > 0 {
		rt.Projects = args
		return rt, nil
	}
	rt.Projects = config.EffectiveProjects(cfgPath, cfg)
	rt.Roots = config.EffectiveRoots(cfgPath, cfg)
	if len(rt.Projects) == 0 && len(rt.Roots) == 0 {
		rt.Projects = []string{cwd}
	}
	return rt, nil
}

func applyCommandOverrides(cmd *cobra.Command, cfg *config.Config) error {
	if raw := getStringFlag(cmd, "vcs"); strings.TrimSpace(raw) != "" {
		cfg.Backend = raw
	}
	if f := cmd.Flags().Lookup("now"); f != nil && f.Changed {
		if now, _ := cmd.Flags().GetBool("now"); now {
			cfg.Monitor.StartDelay = 0
		}
	}
	if f := cmd.Flags().Lookup("concurrency"); f != nil && f.Changed {
		n, _ := cmd.Flags().GetInt("concurrency")
		cfg.Monitor.Concurrency = n
	}
	return cfg.Validate()
}

func monitorOptions(cfg *config.Config) monitor.Options {
	return monitor.Options{
		Delay:        cfg.Monitor.Delay.Std(),
		StartDelay:   cfg.Monitor.StartDelay.Std(),
		ProbeTimeout: cfg.Monitor.ProbeTimeout.Std(),
		Concurrency:  cfg.Monitor.Concurrency,
		PublishBusy:  cfg.Monitor.BusyEnabled(),
	}
}

// registerProviders registers the monitoring pipeline, bottom-up:
// config -> logger -> adapter -> lister/probe -> board -> monitor.
func registerProviders(container *dig.Container, rt runtimeConfig, log logrus.FieldLogger) error {
	providers := []any{
		func() runtimeConfig { return rt },
		func(rt runtimeConfig) *config.Config { return rt.Config },
		func() logrus.FieldLogger { return log },
		func(cfg *config.Config) (vcs.Adapter, error) {
			return vcs.NewAdapterForSelection(cfg.Backend, cfg.Remote)
		},
		func(rt runtimeConfig, adapter vcs.Adapter, log logrus.FieldLogger) monitor.RepositoryLister {
			return &discovery.Lister{
				Projects:       rt.Projects,
				Roots:          rt.Roots,
				Exclude:        rt.Config.Exclude,
				FollowSymlinks: rt.Config.FollowSymlinks,
				Adapter:        adapter,
				Log:            log.WithField("component", "discovery"),
			}
		},
		func(cfg *config.Config, adapter vcs.Adapter, log logrus.FieldLogger) monitor.Prober {
			return probe.New(adapter, cfg.Monitor.MaxSearchDepth, log.WithField("component", "probe"))
		},
		func(log logrus.FieldLogger) *status.Board {
			return status.NewBoard(log.WithField("component", "status"))
		},
		func(cfg *config.Config, lister monitor.RepositoryLister, prober monitor.Prober, board *status.Board, log logrus.FieldLogger) *monitor.Monitor {
			return monitor.New(lister, prober, board, monitorOptions(cfg), log.WithField("component", "monitor"))
		},
	}
	for _, provider := range providers {
		if err := container.Provide(provider); err != nil {
			return err
		}
	}
	return nil
}

// newApp loads the config for cmd and assembles the monitoring pipeline.
func newApp(cmd *cobra.Command, args []string) (*app, error) {
	rt, err := loadRuntimeConfig(cmd, args)
	if err != nil {
		return nil, err
	}
	container := dig.New()
	if err := registerProviders(container, rt, newLogger(cmd)); err != nil {
		return nil, err
	}
	var a app
	if err := container.Invoke(func(resolved app) { a = resolved }); err != nil {
		return nil, fmt.Errorf("assemble monitor: %w", dig.RootCause(err))
	}
	return &a, nil
}

func getStringFlag(cmd *cobra.Command, name string) string {
	if cmd.Flags().Lookup(name) == nil {
		return ""
	}
	value, _ := cmd.Flags().GetString(name)
	return value
}

func addVCSFlag(cmd *cobra.Command) {
	cmd.Flags().String("vcs", "", "backends to use: git, go-git, or a comma-separated list (overrides config)")
}
