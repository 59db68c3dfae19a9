package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/hive/internal/config"
	"github.com/zulandar/hive/internal/queue"
	"github.com/zulandar/hive/internal/wire"
)

func newQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and drain agent queues",
		Long: `Queue commands work on a running coordinator's live queues through its
dashboard API. Without a coordinator they read the message copies kept in
each agent's queue directory.

status always counts the copies on disk.`,
	}

	cmd.AddCommand(newQueueStatusCmd())
	cmd.AddCommand(newQueueListCmd())
	cmd.AddCommand(newQueuePeekCmd())
	cmd.AddCommand(newQueuePopCmd())
	return cmd
}

func queueIDs() []string {
	ids := make([]string, 0, len(wire.Agents())+1)
	for _, a := range wire.Agents() {
		ids = append(ids, a.String())
	}
	return append(ids, wire.PendingAssignment)
}

func newQueueStatusCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "status [agent]",
		Short: "Show queued message counts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			ids := queueIDs()
			if len(args) == 1 {
				ids = args
			}

			out := cmd.OutOrStdout()
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "AGENT\tQUEUED\tDIR")
			total := 0
			for _, id := range ids {
				info, err := queue.DirStatus(cfg.QueueDir, id)
				if err != nil {
					return err
				}
				total += info.QueueSize
				fmt.Fprintf(w, "%s\t%d\t%s\n", id, info.QueueSize, info.QueueDir)
			}
			w.Flush()
			fmt.Fprintf(out, "\nTotal: %d\n", total)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to hive config file")
	return cmd
}

// queueSource serves queue reads from a running coordinator's live queues,
// or from the queue directories when no coordinator is running.
type queueSource struct {
	cfg *config.Config
	api *queueAPI
}

// openQueues picks the source for configPath. A non-empty addr always
// talks to the coordinator at addr.
func openQueues(configPath, addr string) (*queueSource, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	src := &queueSource{cfg: cfg}
	if addr != "" {
		src.api = newQueueAPI(cfg, addr)
		return src, nil
	}
	holder, err := liveCoordinator(cfg)
	if err != nil {
		return nil, err
	}
	if holder != "" {
		src.api = newQueueAPI(cfg, "")
	}
	return src, nil
}

func (s *queueSource) list(agentID string) ([]wire.Message, error) {
	if s.api != nil {
		return s.api.list(agentID)
	}
	return queue.DirMessages(s.cfg.QueueDir, agentID)
}

func (s *queueSource) peek(agentID string) (wire.Message, bool, error) {
	if s.api != nil {
		return s.api.next(agentID, false)
	}
	msgs, err := queue.DirMessages(s.cfg.QueueDir, agentID)
	if err != nil || len(msgs) == 0 {
		return wire.Message{}, false, err
	}
	return msgs[0], true, nil
}

// pop dequeues from the live queue, keeping its copy on disk. Without a
// coordinator the copy itself is what gets consumed.
func (s *queueSource) pop(agentID string) (wire.Message, bool, error) {
	if s.api != nil {
		return s.api.next(agentID, true)
	}
	return s.peek(agentID)
}

func addQueueFlags(cmd *cobra.Command, configPath, addr *string) {
	cmd.Flags().StringVarP(configPath, "config", "c", config.DefaultPath, "path to hive config file")
	cmd.Flags().StringVar(addr, "addr", "", "coordinator dashboard URL (default: detected from the lease and config)")
}

func newQueueListCmd() *cobra.Command {
	var configPath, addr string

	cmd := &cobra.Command{
		Use:   "list <agent>",
		Short: "List an agent's queued messages in dequeue order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := openQueues(configPath, addr)
			if err != nil {
				return err
			}
			msgs, err := src.list(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(msgs) == 0 {
				fmt.Fprintf(out, "No queued messages for %s\n", args[0])
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PRIORITY\tTYPE\tFROM\tTO\tSUBJECT\tCREATED")
			for _, m := range msgs {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
					m.Priority(), m.Type, m.From, m.To, m.Subject,
					m.Timestamp.Format("2006-01-02 15:04"))
			}
			w.Flush()
			return nil
		},
	}

	addQueueFlags(cmd, &configPath, &addr)
	return cmd
}

func newQueuePeekCmd() *cobra.Command {
	var configPath, addr string

	cmd := &cobra.Command{
		Use:   "peek <agent>",
		Short: "Show the next message without removing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := openQueues(configPath, addr)
			if err != nil {
				return err
			}
			msg, ok, err := src.peek(args[0])
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "No queued messages for %s\n", args[0])
				return nil
			}
			return printMessage(cmd, msg)
		},
	}

	addQueueFlags(cmd, &configPath, &addr)
	return cmd
}

func newQueuePopCmd() *cobra.Command {
	var configPath, addr string

	cmd := &cobra.Command{
		Use:   "pop <agent>",
		Short: "Print and remove the next message",
		Long: `Prints the most urgent queued message and removes it from the queue.

With a coordinator running, the message is dequeued from its live queue and
the copy in the queue directory stays as the audit record. Otherwise the copy
is deleted. The inbox original is never touched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := openQueues(configPath, addr)
			if err != nil {
				return err
			}
			next, ok, err := src.pop(args[0])
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "No queued messages for %s\n", args[0])
				return nil
			}
			if err := printMessage(cmd, next); err != nil {
				return err
			}
			if src.api == nil {
				if err := os.Remove(next.Path); err != nil {
					return fmt.Errorf("remove %s: %w", next.Filename, err)
				}
			}
			return nil
		},
	}

	addQueueFlags(cmd, &configPath, &addr)
	return cmd
}

func printMessage(cmd *cobra.Command, m wire.Message) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "File:     %s\n", m.Filename)
	fmt.Fprintf(out, "From:     %s\n", m.From)
	fmt.Fprintf(out, "To:       %s\n", m.To)
	fmt.Fprintf(out, "Type:     %s (priority %d)\n", m.Type, m.Priority())
	fmt.Fprintf(out, "Subject:  %s\n", m.Subject)
	fmt.Fprintf(out, "Created:  %s\n", m.Timestamp.Format("2006-01-02 15:04"))

	if m.Path == "" {
		return nil
	}
	body, err := os.ReadFile(m.Path)
	if err != nil {
		return fmt.Errorf("read %s: %w", m.Filename, err)
	}
	if len(body) > 0 {
		fmt.Fprintf(out, "\n%s\n", body)
	}
	return nil
}
