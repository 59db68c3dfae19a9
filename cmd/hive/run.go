package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/hive/internal/config"
	"github.com/zulandar/hive/internal/coordinator"
	"github.com/zulandar/hive/internal/dashboard"
	"github.com/zulandar/hive/internal/db"
	"github.com/zulandar/hive/internal/health"
	"github.com/zulandar/hive/internal/journal"
	"github.com/zulandar/hive/internal/queue"
	"github.com/zulandar/hive/internal/status"
)

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func newRunCmd() *cobra.Command {
	var (
		configPath  string
		port        int
		noDashboard bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the coordinator daemon",
		Long: `Runs inbox routing, message delivery, liveness checks and health evaluation
on their configured schedules, with the dashboard API alongside. Only one
coordinator per database runs at a time.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCoordinator(cmd, configPath, port, noDashboard)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to hive config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "dashboard port (default from config)")
	cmd.Flags().BoolVar(&noDashboard, "no-dashboard", false, "do not serve the dashboard API")
	return cmd
}

func runCoordinator(cmd *cobra.Command, configPath string, port int, noDashboard bool) error {
	out := cmd.OutOrStdout()
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}

	notifier, err := coordinator.BuildNotifier(cfg.Telegraph)
	if err != nil {
		return err
	}
	if notifier != nil {
		for _, s := range notifier.Sinks() {
			fmt.Fprintf(out, "Alerts to %s (min level %s)\n", s.Name(), cfg.Telegraph.MinLevel)
		}
	}

	coord, err := coordinator.New(coordinator.Opts{
		Config:   cfg,
		DB:       gormDB,
		Notifier: notifier,
		Out:      out,
	})
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	dashErr := make(chan error, 1)
	if !noDashboard {
		if port <= 0 {
			port = cfg.Dashboard.Port
		}
		go func() {
			dashErr <- dashboard.Start(ctx, dashboard.StartOpts{
				Monitor:   coord.Monitor(),
				Queues:    coord.Queues(),
				Messenger: coord.Messenger(),
				Tracker:   coord.Tracker(),
				DB:        gormDB,
				Port:      port,
				Out:       out,
			})
		}()
	}

	runErr := coord.Run(ctx)
	cancel()
	if !noDashboard {
		if err := <-dashErr; err != nil && runErr == nil {
			runErr = err
		}
	}
	return runErr
}

func newDashboardCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Serve the dashboard API without the coordinator",
		Long: `Serves agents, journal and on-disk queue state over HTTP. Health stays at
no_data and messenger routes are unavailable, since both live in the
coordinator process; use "hive run" for the full API.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDashboard(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to hive config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (default from config)")
	return cmd
}

func runDashboard(cmd *cobra.Command, configPath string, port int) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	queues, err := queue.NewRegistry(cfg.QueueDir, journal.DBMirror{DB: gormDB})
	if err != nil {
		return err
	}
	tracker, err := status.NewTracker(gormDB, timeoutsFromConfig(cfg))
	if err != nil {
		return err
	}
	if port <= 0 {
		port = cfg.Dashboard.Port
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	return dashboard.Start(ctx, dashboard.StartOpts{
		Monitor: health.New(cfg.LogDir),
		Queues:  queues,
		Tracker: tracker,
		DB:      gormDB,
		Port:    port,
		Out:     cmd.OutOrStdout(),
	})
}
