package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/galpt/wanctl/internal/autorate"
	"github.com/galpt/wanctl/internal/config"
	"github.com/galpt/wanctl/internal/health"
	"github.com/galpt/wanctl/internal/metrics"
	"github.com/galpt/wanctl/internal/router"
	"github.com/galpt/wanctl/internal/stateio"
	"github.com/galpt/wanctl/internal/version"
	"github.com/galpt/wanctl/internal/wlog"
)

var (
	configPath   string
	validateOnly bool
	runOnce      bool
	dryRun       bool
	debug        bool
	rootCmd      = &cobra.Command{
		Use:     "wanctl-autorate",
		Short:   "Adaptive CAKE rate controller for one WAN",
		Version: version.Version,
		RunE:    run,
	}
)

func init() {
	// Version field above makes cobra register --version with a -v
	// shorthand automatically; --verbose intentionally has none so it
	// doesn't contend for -v.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "/etc/wanctl/autorate.yaml", "path to WAN config file")
	rootCmd.Flags().BoolVar(&validateOnly, "validate-config", false, "validate the config file and exit")
	rootCmd.Flags().BoolVar(&runOnce, "once", false, "run a single cycle and exit")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "run cycles and log decisions but never push rates to the router")
	rootCmd.Flags().BoolVar(&debug, "verbose", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	wlog.Init(os.Stderr, debug)
	logger := wlog.For("autorate")

	cfg, err := config.LoadAutorate(configPath)
	if err != nil {
		logger.Error().Err(err).Msg("config load failed")
		return err
	}
	if validateOnly {
		fmt.Println("config OK")
		return nil
	}

	lock, err := stateio.Acquire(cfg.LockFile)
	if err != nil {
		logger.Error().Err(err).Msg("failed to acquire instance lock")
		return err
	}
	defer lock.Release()

	backend, err := router.New(cfg.Router, cfg.Queues, "")
	if err != nil {
		logger.Error().Err(err).Msg("router backend init failed")
		return err
	}
	defer backend.Close()

	var store *metrics.Store
	if cfg.Metrics.Enabled {
		store, err = metrics.Open(cfg.Storage.DBPath)
		if err != nil {
			logger.Error().Err(err).Msg("metrics store open failed")
			return err
		}
		defer store.Close()
	}

	ctrl := autorate.NewController(cfg, backend, store)
	ctrl.DryRun = dryRun
	ctrl.LoadState()

	shutdown := stateio.NewShutdownEvent()
	stop := stateio.NotifySignals(shutdown)
	defer stop()

	ctx := context.Background()
	hsrv := health.Start(cfg.Health.Host, cfg.Health.Port, ctrl, health.HistoryHandler(store))
	defer hsrv.Shutdown()

	logger.Info().Str("wan", cfg.WANName).Msg("wanctl-autorate starting")

	if runOnce {
		if _, err := ctrl.RunCycle(ctx); err != nil {
			logger.Error().Err(err).Msg("cycle failed")
			return err
		}
		return nil
	}

	if shutdown.IsSet() {
		return nil
	}
	code := ctrl.RunDaemon(ctx, shutdown)
	if code != 0 {
		os.Exit(code)
	}
	return nil
}
