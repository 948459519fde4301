package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"rpp/daemon"
	"rpp/internal/config"
	"rpp/internal/logging"
	"rpp/internal/metrics"
	"rpp/plugin"
	"rpp/runtime/web"
	"rpp/sink"

	// Presences and sinks register themselves in init
	_ "rpp/presences/browser"
	_ "rpp/presences/clock"
	_ "rpp/sinks/rest"
	_ "rpp/sinks/telegram"
	_ "rpp/sinks/tui"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "rpp",
		Short:        "Rich presence daemon",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringP("config", "c", "config.yaml", "path to configuration file")

	root.AddCommand(newRunCmd(), newListCmd(), newVersionCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var (
		mode string
		dev  bool
		dir  string
	)

	c := &cobra.Command{
		Use:   "run",
		Short: "Discover presences and run them until interrupted",
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if mode != "" {
				cfg.Mode = plugin.Mode(mode)
			}
			if c.Flags().Changed("dev") {
				cfg.Daemon.DevMode = dev
			}
			if dir != "" {
				cfg.Presences.Dir = dir
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			ctx, stop := signal.NotifyContext(c.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}

	c.Flags().StringVarP(&mode, "mode", "m", "", "execution mode (daemon or interactive)")
	c.Flags().BoolVar(&dev, "dev", false, "enable dev mode for every presence")
	c.Flags().StringVarP(&dir, "presences", "p", "", "presences directory")
	return c
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List compiled-in presences and sinks",
		Run: func(c *cobra.Command, args []string) {
			out := c.OutOrStdout()

			names := plugin.GetRegistry().Names()
			fmt.Fprintf(out, "Presences (%d):\n", len(names))
			for _, name := range names {
				fmt.Fprintf(out, "  - %s\n", name)
			}

			sinks := sink.GetRegistry().All()
			fmt.Fprintf(out, "Sinks (%d):\n", len(sinks))
			for _, s := range sinks {
				fmt.Fprintf(out, "  - %s\n", s.Name())
			}
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(c *cobra.Command, args []string) {
			fmt.Fprintf(c.OutOrStdout(), "rpp v%s\n", version)
		},
	}
}

func loadConfig(c *cobra.Command) (*config.Config, error) {
	path, err := c.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	level := cfg.Daemon.LogLevel
	if cfg.Mode == plugin.ModeInteractive {
		// the dashboard owns the terminal
		level = "error"
	}
	logger, err := logging.New(level, cfg.Daemon.DevMode)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	collector := metrics.NewCollector()

	if err := os.MkdirAll(cfg.Presences.Dir, 0o755); err != nil {
		return fmt.Errorf("create presences dir: %w", err)
	}

	loader := plugin.NewLoader(
		plugin.WithEntryPoint(cfg.Presences.EntryPoint),
		plugin.WithDevMode(cfg.Daemon.DevMode),
		plugin.WithDefaultInterval(cfg.Presences.DefaultInterval),
		plugin.WithLoaderLogger(logger),
	)
	result := loader.Load(ctx, cfg.Presences.Dir)
	collector.AddDiscoveryErrors(len(result.Errors))

	var rt plugin.Runtime
	if cfg.Runtime.Enabled && result.RequiresRuntime {
		browser := web.New(cfg.Runtime.Addr, logger)
		if err := browser.Start(ctx); err != nil {
			logger.Warn("web runtime unavailable", zap.Error(err))
		} else {
			rt = browser
			defer func() {
				if err := browser.Close(context.WithoutCancel(ctx)); err != nil {
					logger.Warn("error closing web runtime", zap.Error(err))
				}
			}()
		}
	}

	broker := daemon.NewBroker(logger, collector)
	broker.SetPublishTimeout(cfg.Daemon.PublishTimeout)
	broker.Retain(plugin.TopicActivity)
	defer broker.Close()

	d := daemon.New(result, rt,
		daemon.WithPoolSize(cfg.Daemon.PoolSize),
		daemon.WithRuntimeInterval(cfg.Daemon.RuntimeInterval),
		daemon.WithTickInterval(cfg.Daemon.TickInterval),
		daemon.WithLogger(logger),
		daemon.WithMetrics(collector),
		daemon.WithBroker(broker),
	)

	sinks := sink.NewManager(cfg, logger)
	for _, s := range sink.GetRegistry().All() {
		if err := sinks.Add(s); err != nil {
			logger.Warn("failed to add sink", zap.String("sink", s.Name()), zap.Error(err))
		}
	}
	sinks.Start(ctx, sink.Env{
		Broker:  broker,
		Daemon:  d,
		Config:  cfg,
		Metrics: collector,
		Logger:  logger,
	})
	defer func() {
		if err := sinks.Stop(); err != nil {
			logger.Warn("error stopping sinks", zap.Error(err))
		}
	}()

	if err := d.Start(ctx); err != nil {
		if errors.Is(err, daemon.ErrNoPresences) {
			return nil
		}
		return err
	}
	return nil
}
