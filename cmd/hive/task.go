package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/hive/internal/config"
	"github.com/zulandar/hive/internal/wire"
)

func newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Durable task file commands",
	}

	cmd.AddCommand(newTaskCreateCmd())
	cmd.AddCommand(newTaskValidateCmd())
	return cmd
}

func newTaskCreateCmd() *cobra.Command {
	var (
		configPath  string
		from        string
		to          string
		typ         string
		subject     string
		content     string
		contentFile string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Write a task file into the inbox",
		Long: `Writes a correctly named message file into the inbox for the router to pick up.
--to accepts an agent id, ALL (broadcast) or ANY (best available).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			fromAgent, ok := wire.ParseAgent(from)
			if !ok || fromAgent.IsSentinel() {
				return fmt.Errorf("unknown sender %q (known: %s)", from, knownAgents())
			}
			toAgent, ok := wire.ParseAgent(to)
			if !ok {
				return fmt.Errorf("unknown recipient %q (known: %s, ALL, ANY)", to, knownAgents())
			}
			msgType, ok := wire.ParseType(strings.ToUpper(typ))
			if !ok {
				return fmt.Errorf("unknown type %q (known: %s)", typ, knownTypes())
			}
			if contentFile != "" {
				data, err := os.ReadFile(contentFile)
				if err != nil {
					return fmt.Errorf("read content: %w", err)
				}
				content = string(data)
			}

			path, err := wire.CreateTaskFile(cfg.InboxDir, time.Now(), fromAgent, toAgent, msgType, subject, content)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to hive config file")
	cmd.Flags().StringVar(&from, "from", "", "sending agent (required)")
	cmd.Flags().StringVar(&to, "to", "", "recipient agent, ALL or ANY (required)")
	cmd.Flags().StringVar(&typ, "type", "TASK", "message type")
	cmd.Flags().StringVar(&subject, "subject", "", "short subject (required)")
	cmd.Flags().StringVar(&content, "content", "", "message body")
	cmd.Flags().StringVar(&contentFile, "content-file", "", "read the message body from a file")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")
	cmd.MarkFlagRequired("subject")
	return cmd
}

func newTaskValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <filename>",
		Short: "Check a message filename",
		Long:  "Reports every problem with a message filename. Exits non-zero when the name is invalid.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			ok, problems := wire.Validate(args[0])
			if ok {
				msg, _ := wire.Decode(args[0])
				fmt.Fprintf(out, "valid: %s -> %s %s (priority %d) %q\n",
					msg.From, msg.To, msg.Type, msg.Priority(), msg.Subject)
				return nil
			}
			for _, p := range problems {
				fmt.Fprintf(out, "  - %s\n", p)
			}
			return fmt.Errorf("invalid filename %s", args[0])
		},
	}
}

func knownAgents() string {
	names := make([]string, 0, len(wire.Agents()))
	for _, a := range wire.Agents() {
		names = append(names, a.String())
	}
	return strings.Join(names, ", ")
}

func knownTypes() string {
	names := make([]string, 0, len(wire.Types()))
	for _, t := range wire.Types() {
		names = append(names, t.String())
	}
	return strings.Join(names, ", ")
}
