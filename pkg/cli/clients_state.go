package cli

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/getmockd/wshub/pkg/cli/internal/output"
	"github.com/getmockd/wshub/pkg/registry"
)

var (
	pingInterval    time.Duration
	pingOff         bool
	queueEnable     bool
	queueDisable    bool
	queueClear      bool
	queueMaxEntries int
	queueMaxAge     time.Duration
	searchOp        string
)

var clientsCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Count connections, optionally on --route",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := newAdminClient().CountClients(cmd.Context(), clientsRoute)
		if err != nil {
			return err
		}
		return printResult(cmd, map[string]int{"count": n}, func() {
			fmt.Fprintln(cmd.OutOrStdout(), n)
		})
	},
}

var clientsTagsCmd = &cobra.Command{
	Use:   "tags [id]",
	Short: "List the tags of one connection, or every tag in use",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newAdminClient()
		var (
			tags []string
			err  error
		)
		if len(args) == 1 {
			tags, err = c.TagsOf(cmd.Context(), args[0])
		} else {
			tags, err = c.ListTags(cmd.Context())
		}
		if err != nil {
			return err
		}
		return printResult(cmd, tags, func() {
			for _, tag := range tags {
				fmt.Fprintln(cmd.OutOrStdout(), tag)
			}
		})
	},
}

var clientsTaggedCmd = &cobra.Command{
	Use:   "tagged <tag>",
	Short: "List connections carrying a tag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := newAdminClient().ClientsWithTag(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printResult(cmd, ids, func() {
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
		})
	},
}

var clientsSendTagCmd = &cobra.Command{
	Use:   "send-tag <tag> <message>",
	Short: "Send a message to every connection carrying a tag",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := newAdminClient().SendToTag(cmd.Context(), args[0], []byte(args[1]), clientsRoute)
		if err != nil {
			return err
		}
		return printResult(cmd, map[string]int{"sent": n}, func() {
			fmt.Fprintf(cmd.OutOrStdout(), "sent to %d connection(s)\n", n)
		})
	},
}

var clientsSendMatchCmd = &cobra.Command{
	Use:     "send-match <tag-expression> <message>",
	Short:   "Send a message to every connection whose tags satisfy an expression",
	Example: `  wshub clients send-match 'vip&!muted' 'hello'`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := newAdminClient().SendToTagExpression(cmd.Context(), args[0], []byte(args[1]), clientsRoute)
		if err != nil {
			return err
		}
		return printResult(cmd, map[string]int{"sent": n}, func() {
			fmt.Fprintf(cmd.OutOrStdout(), "sent to %d connection(s)\n", n)
		})
	},
}

var clientsInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Read and write per-connection info",
}

var clientsInfoGetCmd = &cobra.Command{
	Use:   "get <id> [key]",
	Short: "Print one info value, or all of them",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newAdminClient()
		if len(args) == 2 {
			v, err := c.Info(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printResult(cmd, map[string]string{"key": args[1], "value": v}, func() {
				fmt.Fprintln(cmd.OutOrStdout(), v)
			})
		}
		info, err := c.AllInfo(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printResult(cmd, info, func() {
			keys := make([]string, 0, len(info))
			for k := range info {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			tw := output.Table(cmd.OutOrStdout())
			for _, k := range keys {
				fmt.Fprintf(tw, "%s\t%s\n", k, info[k])
			}
			_ = tw.Flush()
		})
	},
}

var clientsInfoSetCmd = &cobra.Command{
	Use:   "set <id> <key> <value>",
	Short: "Store an info value on a connection",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newAdminClient().SetInfo(cmd.Context(), args[0], args[1], args[2]); err != nil {
			return err
		}
		return printResult(cmd, map[string]string{"id": args[0], "key": args[1]}, func() {
			fmt.Fprintf(cmd.OutOrStdout(), "set %s on %s\n", args[1], args[0])
		})
	},
}

var clientsInfoRmCmd = &cobra.Command{
	Use:   "rm <id> [key]",
	Short: "Delete one info value, or all of them",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newAdminClient()
		var err error
		if len(args) == 2 {
			err = c.DeleteInfo(cmd.Context(), args[0], args[1])
		} else {
			err = c.ClearInfo(cmd.Context(), args[0])
		}
		if err != nil {
			return err
		}
		return printResult(cmd, map[string]string{"id": args[0]}, func() {
			fmt.Fprintf(cmd.OutOrStdout(), "removed info from %s\n", args[0])
		})
	},
}

var clientsInfoSearchCmd = &cobra.Command{
	Use:   "search <key> <value>",
	Short: "List connections whose info key matches value",
	Example: `  wshub clients info search user alice
  wshub clients info search user ali --op iprefix`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := newAdminClient().SearchInfo(cmd.Context(), args[0], searchOp, args[1], clientsRoute)
		if err != nil {
			return err
		}
		return printResult(cmd, ids, func() {
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
		})
	},
}

var clientsPingCmd = &cobra.Command{
	Use:   "ping <id>",
	Short: "Schedule keep-alive pings and print the last round trip",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newAdminClient()
		if pingOff {
			if err := c.DisablePing(cmd.Context(), args[0]); err != nil {
				return err
			}
			return printResult(cmd, map[string]string{"id": args[0], "ping": "off"}, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "ping disabled for %s\n", args[0])
			})
		}
		if err := c.EnablePing(cmd.Context(), args[0], pingInterval); err != nil {
			return err
		}
		rtt, err := c.PingTime(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printResult(cmd, map[string]any{"id": args[0], "latencyMs": float64(rtt) / float64(time.Millisecond)}, func() {
			fmt.Fprintf(cmd.OutOrStdout(), "last ping %s\n", rtt)
		})
	},
}

var clientsQueueCmd = &cobra.Command{
	Use:   "queue <id>",
	Short: "Show or control the outbound message log of a connection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newAdminClient()
		id := args[0]
		if queueEnable && queueDisable {
			return errors.New("--enable and --disable cannot be combined")
		}
		switch {
		case queueEnable:
			if err := c.EnableQueue(cmd.Context(), id, queueMaxEntries, queueMaxAge); err != nil {
				return err
			}
		case queueDisable:
			if err := c.DisableQueue(cmd.Context(), id); err != nil {
				return err
			}
		}
		if queueClear {
			if err := c.ClearQueue(cmd.Context(), id); err != nil {
				return err
			}
		}

		counter, err := c.QueueCounter(cmd.Context(), id)
		if err != nil {
			return err
		}
		msgs, err := c.Queue(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printResult(cmd, map[string]any{"counter": counter, "messages": msgs}, func() {
			fmt.Fprintf(cmd.OutOrStdout(), "counter %d\n", counter)
			tw := output.Table(cmd.OutOrStdout())
			for _, m := range msgs {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", m.SentAt.Format("15:04:05.000"), via(m), string(m.Payload))
			}
			_ = tw.Flush()
		})
	},
}

func via(m registry.QueuedMessage) string {
	if m.Target == "" {
		return m.Via
	}
	return m.Via + ":" + m.Target
}

var clientsGhostCmd = &cobra.Command{
	Use:   "ghost <id>",
	Short: "Keep a connection registered after its socket goes away",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newAdminClient().ActivateGhost(cmd.Context(), args[0]); err != nil {
			return err
		}
		return printResult(cmd, map[string]any{"id": args[0], "ghost": true}, func() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s is a ghost\n", args[0])
		})
	},
}

var clientsUnghostCmd = &cobra.Command{
	Use:   "unghost <id>",
	Short: "End ghost mode and close the connection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newAdminClient().ReleaseGhost(cmd.Context(), args[0]); err != nil {
			return err
		}
		return printResult(cmd, map[string]string{"released": args[0]}, func() {
			fmt.Fprintf(cmd.OutOrStdout(), "released %s\n", args[0])
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{clientsCountCmd, clientsSendTagCmd, clientsSendMatchCmd, clientsInfoSearchCmd} {
		c.Flags().StringVar(&clientsRoute, "route", "", "Limit to connections on this route")
	}
	clientsInfoSearchCmd.Flags().StringVar(&searchOp, "op", registry.OpEq,
		"Comparison: "+strings.Join(registry.Operators, ", "))

	clientsPingCmd.Flags().DurationVar(&pingInterval, "interval", 0, "Ping every interval (0 pings once)")
	clientsPingCmd.Flags().BoolVar(&pingOff, "off", false, "Stop pinging")

	clientsQueueCmd.Flags().BoolVar(&queueEnable, "enable", false, "Start logging outbound messages")
	clientsQueueCmd.Flags().BoolVar(&queueDisable, "disable", false, "Stop logging outbound messages")
	clientsQueueCmd.Flags().BoolVar(&queueClear, "clear", false, "Drop the logged messages")
	clientsQueueCmd.Flags().IntVar(&queueMaxEntries, "max-entries", 0, "Keep at most this many messages (0 uses the server default)")
	clientsQueueCmd.Flags().DurationVar(&queueMaxAge, "max-age", 0, "Drop messages older than this (0 keeps them)")

	clientsInfoCmd.AddCommand(clientsInfoGetCmd, clientsInfoSetCmd, clientsInfoRmCmd, clientsInfoSearchCmd)
	clientsCmd.AddCommand(
		clientsCountCmd,
		clientsTagsCmd,
		clientsTaggedCmd,
		clientsSendTagCmd,
		clientsSendMatchCmd,
		clientsInfoCmd,
		clientsPingCmd,
		clientsQueueCmd,
		clientsGhostCmd,
		clientsUnghostCmd,
	)
}
