package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"mercator-hq/relay/pkg/cli"
	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/telemetry"
)

// telemetryFlushTimeout bounds flushing spans on exit.
const telemetryFlushTimeout = 5 * time.Second

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
	noWatch       bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the relay",
	Long: `Start the relay with the specified configuration.

The relay listens on the configured address, pairs browser sessions, and
forwards decoded requests to the configured origin. Editing the config file
or sending SIGHUP reloads the log level and CORS settings; everything else
needs a restart.

Examples:
  # Start with default config
  relay run

  # Start with custom config
  relay run --config /etc/relay/config.yaml

  # Override listen address
  relay run --listen 0.0.0.0:8080

  # Validate config and startup checks without starting
  relay run --dry-run`,
	RunE: runRelay,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the relay")
	runCmd.Flags().BoolVar(&runFlags.noWatch, "no-watch", false, "do not reload the config file when it changes")
}

func runRelay(cmd *cobra.Command, args []string) error {
	if err := config.Initialize(cfgFile); err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	cfg := config.GetConfig()

	// Apply flag overrides
	if runFlags.listenAddress != "" {
		cfg.Proxy.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	cfg.Telemetry.Logging.Level = logLevel(cfg)

	if err := config.StartupChecks(cfg); err != nil {
		return cli.NewConfigError("", err.Error())
	}

	if runFlags.dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration valid")
		return nil
	}

	tel, err := telemetry.New(&cfg.Telemetry, Version)
	if err != nil {
		return cli.NewConfigError("telemetry", err.Error())
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), telemetryFlushTimeout)
		defer cancel()
		if err := tel.Shutdown(flushCtx); err != nil {
			slog.Warn("Failed to flush telemetry", "error", err)
		}
	}()
	logger := tel.Logger().Slog()

	ctx, stop := cli.ShutdownContext(cmd.Context())
	defer stop()

	r, err := newRelay(ctx, cfg, tel)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer r.close(context.WithoutCancel(ctx))

	if err := r.start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}

	logger.Info("Relay starting",
		"version", Version,
		"config", cfgFile,
		"relay_id", cfg.Relay.InstanceID,
		"upstream", cfg.Proxy.Upstream,
		"durable", r.states.Durable(),
		"usage", cfg.Usage.Enabled,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.server.ListenAndServe(gctx)
	})
	if !runFlags.noWatch {
		g.Go(func() error {
			// A config that cannot be watched is not worth stopping for.
			if err := config.NewWatcher(cfgFile, 0, logger).Watch(gctx, r.applyConfig); err != nil {
				logger.Warn("Config watcher stopped", "error", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		reload := cli.ReloadSignals(gctx)
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-reload:
				next, err := config.ReloadConfig()
				if err != nil {
					logger.Error("Config reload failed", "error", err)
					continue
				}
				r.applyConfig(next)
			}
		}
	})

	if err := g.Wait(); err != nil {
		return cli.NewCommandError("run", err)
	}
	logger.Info("Relay shut down")
	return nil
}
