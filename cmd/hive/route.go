package main

import (
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/hive/internal/config"
	"github.com/zulandar/hive/internal/journal"
	"github.com/zulandar/hive/internal/queue"
	"github.com/zulandar/hive/internal/router"
	"github.com/zulandar/hive/internal/status"
	"github.com/zulandar/hive/internal/wire"
	"gorm.io/gorm"
)

// newRouter wires a router over cfg's directories, with the database as
// journal mirror and agent availability.
func newRouter(cmd *cobra.Command, cfg *config.Config, gormDB *gorm.DB) (*router.Router, error) {
	queues, err := queue.NewRegistry(cfg.QueueDir, journal.DBMirror{DB: gormDB})
	if err != nil {
		return nil, err
	}
	tracker, err := status.NewTracker(gormDB, timeoutsFromConfig(cfg))
	if err != nil {
		return nil, err
	}
	return router.New(router.Opts{
		InboxDir:     cfg.InboxDir,
		Queues:       queues,
		Availability: tracker,
		Out:          cmd.OutOrStdout(),
	})
}

func newRouteCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "route",
		Short: "Route every inbox file once",
		Long: `Runs a single inbox pass and reports what each queue received.
Routing state is not persisted, so every file currently in the inbox is routed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			rt, err := newRouter(cmd, cfg, gormDB)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			n := rt.ProcessInbox()
			fmt.Fprintf(out, "Routed %d messages\n", n)
			if n == 0 {
				return nil
			}

			sizes := rt.Queues().Sizes()
			ids := make([]string, 0, len(sizes))
			for id := range sizes {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "AGENT\tRECEIVED")
			for _, id := range ids {
				fmt.Fprintf(w, "%s\t%d\n", id, sizes[id])
			}
			w.Flush()
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to hive config file")
	return cmd
}

func newWatchCmd() *cobra.Command {
	var (
		configPath string
		interval   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the inbox and print routed messages",
		Long:  "Polls the inbox until interrupted, printing each routed message in priority order.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			every := cfg.Router.PollInterval.D()
			if interval > 0 {
				every = interval
			}
			rt, err := newRouter(cmd, cfg, gormDB)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd)
			defer cancel()

			out := cmd.OutOrStdout()
			rt.Watch(ctx, every, func(msg wire.Message) {
				fmt.Fprintf(out, "  [P%d] %s -> %s %s: %s\n",
					msg.Priority(), msg.From, msg.To, msg.Type, msg.Subject)
			})
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to hive config file")
	cmd.Flags().DurationVar(&interval, "interval", 0, "poll interval (default from config)")
	return cmd
}
