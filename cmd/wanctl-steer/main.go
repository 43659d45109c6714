package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/galpt/wanctl/internal/cakestats"
	"github.com/galpt/wanctl/internal/config"
	"github.com/galpt/wanctl/internal/health"
	"github.com/galpt/wanctl/internal/metrics"
	"github.com/galpt/wanctl/internal/router"
	"github.com/galpt/wanctl/internal/stateio"
	"github.com/galpt/wanctl/internal/steer"
	"github.com/galpt/wanctl/internal/version"
	"github.com/galpt/wanctl/internal/wlog"
)

var (
	configPath   string
	validateOnly bool
	runOnce      bool
	dryRun       bool
	debug        bool
	pingHosts    []string
	queueID      string
	cakeIface    string
	rootCmd      = &cobra.Command{
		Use:     "wanctl-steer",
		Short:   "Cross-WAN congestion steering daemon",
		Version: version.Version,
		RunE:    run,
	}
)

func init() {
	// Version field above makes cobra register --version with a -v
	// shorthand automatically; --verbose intentionally has none so it
	// doesn't contend for -v.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "/etc/wanctl/steer.yaml", "path to steering config file")
	rootCmd.Flags().BoolVar(&validateOnly, "validate-config", false, "validate the config file and exit")
	rootCmd.Flags().BoolVar(&runOnce, "once", false, "run a single cycle and exit")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "run cycles and log decisions but never toggle the router's steering rule")
	rootCmd.Flags().BoolVar(&debug, "verbose", false, "enable debug logging")
	rootCmd.Flags().StringSliceVar(&pingHosts, "ping-hosts", []string{"1.1.1.1", "8.8.8.8"}, "hosts to ping for steering's own RTT sample")
	rootCmd.Flags().StringVar(&queueID, "cake-queue", "", "queue-tree identifier to read CAKE stats from via the router backend")
	rootCmd.Flags().StringVar(&cakeIface, "cake-iface", "", "local interface to read CAKE stats from via tc, instead of the router backend")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	wlog.Init(os.Stderr, debug)
	logger := wlog.For("steer")

	cfg, err := config.LoadSteer(configPath)
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

	backend, err := router.New(cfg.Router, config.Queues{}, cfg.MangleComment)
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

	ctrl := steer.NewController(cfg, backend, store, pingHosts, 3, 2*time.Second, 20)
	ctrl.DryRun = dryRun
	if cfg.CakeAwareEnabled {
		switch {
		case cakeIface != "":
			ctrl.QueueStats = func(ctx context.Context) (*router.QueueStats, error) {
				return cakestats.Read(ctx, cakeIface)
			}
		case queueID != "":
			ctrl.QueueStats = func(ctx context.Context) (*router.QueueStats, error) {
				return backend.GetQueueStats(ctx, queueID)
			}
		default:
			logger.Warn().Msg("cake_aware_enabled is set but neither --cake-queue nor --cake-iface was given; running in legacy (RTT-only) mode")
		}
	}
	ctrl.LoadState()

	shutdown := stateio.NewShutdownEvent()
	stop := stateio.NotifySignals(shutdown)
	defer stop()

	ctx := context.Background()
	hsrv := health.Start(cfg.Health.Host, cfg.Health.Port, ctrl, health.HistoryHandler(store))
	defer hsrv.Shutdown()

	logger.Info().Msg("wanctl-steer starting")

	if runOnce {
		if err := ctrl.RunCycle(ctx); err != nil {
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
