package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/hive/internal/config"
	"github.com/zulandar/hive/internal/status"
)

func newAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Agent liveness commands",
	}

	cmd.AddCommand(newAgentRegisterCmd())
	cmd.AddCommand(newAgentHeartbeatCmd())
	cmd.AddCommand(newAgentListCmd())
	cmd.AddCommand(newAgentCheckCmd())
	return cmd
}

func trackerFromConfig(configPath string) (*status.Tracker, error) {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return nil, err
	}
	return status.NewTracker(gormDB, timeoutsFromConfig(cfg))
}

func timeoutsFromConfig(cfg *config.Config) status.Timeouts {
	return status.Timeouts{
		OfflineAfter:   cfg.Agents.OfflineAfter.D(),
		WaitingTimeout: cfg.Agents.WaitingTimeout.D(),
		BusyTimeout:    cfg.Agents.BusyTimeout.D(),
	}
}

func newAgentRegisterCmd() *cobra.Command {
	var (
		configPath string
		role       string
	)

	cmd := &cobra.Command{
		Use:   "register <id>",
		Short: "Register an agent as idle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tracker, err := trackerFromConfig(configPath)
			if err != nil {
				return err
			}
			agent, err := tracker.Register(args[0], role)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s as %s (%s)\n", agent.ID, agent.Role, agent.Status)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to hive config file")
	cmd.Flags().StringVar(&role, "role", status.RoleWorker, "agent role (coordinator, queen, worker, drone)")
	return cmd
}

func newAgentHeartbeatCmd() *cobra.Command {
	var (
		configPath string
		state      string
		task       string
	)

	cmd := &cobra.Command{
		Use:   "heartbeat <id>",
		Short: "Record that an agent is alive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tracker, err := trackerFromConfig(configPath)
			if err != nil {
				return err
			}
			if err := tracker.Heartbeat(args[0], state, task); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Heartbeat %s: %s\n", args[0], state)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to hive config file")
	cmd.Flags().StringVar(&state, "status", status.StatusIdle, "current status (idle, busy, waiting, paused)")
	cmd.Flags().StringVar(&task, "task", "", "task currently being worked on")
	return cmd
}

func newAgentListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			tracker, err := trackerFromConfig(configPath)
			if err != nil {
				return err
			}
			agents, err := tracker.All()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(agents) == 0 {
				fmt.Fprintln(out, "No agents registered")
				return nil
			}
			now := time.Now()
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tROLE\tSTATUS\tTASK\tLAST HEARTBEAT")
			for _, a := range agents {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					a.ID, a.Role, colorize(out, a.Status), orDash(a.CurrentTask),
					formatAge(now, a.LastHeartbeat))
			}
			w.Flush()

			sum, err := tracker.Summarize()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\n%d agents: %d active, %d busy, load %.0f%%\n",
				sum.Total, sum.Active(), sum.Busy, sum.Load()*100)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to hive config file")
	return cmd
}

func newAgentCheckCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Apply the liveness timeouts once",
		Long:  "Marks silent or stuck agents offline and returns long-waiting agents to idle.",
		RunE: func(cmd *cobra.Command, args []string) error {
			tracker, err := trackerFromConfig(configPath)
			if err != nil {
				return err
			}
			trans, err := tracker.CheckHeartbeats(time.Now())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(trans) == 0 {
				fmt.Fprintln(out, "All agents within timeouts")
				return nil
			}
			for _, t := range trans {
				fmt.Fprintf(out, "%s: %s -> %s (%s)\n", t.AgentID, t.From, colorize(out, t.To), t.Reason)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to hive config file")
	return cmd
}
