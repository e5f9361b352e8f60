package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/getmockd/wshub/pkg/cli/internal/output"
)

var (
	clientsRoute string
	kickReason   string
)

var clientsCmd = &cobra.Command{
	Use:     "clients",
	Aliases: []string{"client"},
	Short:   "Inspect and drive connections through the admin API",
}

var clientsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List connection ids",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := newAdminClient().ListClients(cmd.Context(), clientsRoute)
		if err != nil {
			return err
		}
		return printResult(cmd, ids, func() {
			if len(ids) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no connections")
				return
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
		})
	},
}

var clientsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Describe one connection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := newAdminClient().Describe(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printResult(cmd, info, func() {
			tw := output.Table(cmd.OutOrStdout())
			fmt.Fprintf(tw, "ID\t%s\n", info.ID)
			fmt.Fprintf(tw, "Route\t%s\n", info.Route)
			fmt.Fprintf(tw, "Remote\t%s\n", info.RemoteAddr)
			fmt.Fprintf(tw, "Opened\t%s\n", info.OpenedAt.Format("2006-01-02 15:04:05"))
			fmt.Fprintf(tw, "State\t%s\n", info.State)
			fmt.Fprintf(tw, "Tags\t%s\n", strings.Join(info.Tags, ", "))
			fmt.Fprintf(tw, "Last ping\t%s\n", info.LastPing)
			fmt.Fprintf(tw, "Sent (counted)\t%d\n", info.MessageCounter)
			_ = tw.Flush()
		})
	},
}

var clientsSendCmd = &cobra.Command{
	Use:   "send <id> <message>",
	Short: "Send a message to one connection",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newAdminClient().Send(cmd.Context(), args[0], []byte(args[1]), clientsRoute); err != nil {
			return err
		}
		return printResult(cmd, map[string]int{"sent": 1}, func() {
			fmt.Fprintf(cmd.OutOrStdout(), "sent to %s\n", args[0])
		})
	},
}

var clientsBroadcastCmd = &cobra.Command{
	Use:   "broadcast <message>",
	Short: "Send a message to every connection, or to those on --route",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := newAdminClient().Broadcast(cmd.Context(), []byte(args[0]), clientsRoute)
		if err != nil {
			return err
		}
		return printResult(cmd, map[string]int{"sent": n}, func() {
			fmt.Fprintf(cmd.OutOrStdout(), "sent to %d connection(s)\n", n)
		})
	},
}

var clientsKickCmd = &cobra.Command{
	Use:   "kick <id>",
	Short: "Close a connection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newAdminClient().Close(cmd.Context(), args[0], kickReason); err != nil {
			return err
		}
		return printResult(cmd, map[string]string{"closed": args[0]}, func() {
			fmt.Fprintf(cmd.OutOrStdout(), "closed %s\n", args[0])
		})
	},
}

var clientsRenameCmd = &cobra.Command{
	Use:   "rename <id> <new-id>",
	Short: "Give a connection a new id (once per connection)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newAdminClient().Rename(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		return printResult(cmd, map[string]string{"from": args[0], "to": args[1]}, func() {
			fmt.Fprintf(cmd.OutOrStdout(), "renamed %s to %s\n", args[0], args[1])
		})
	},
}

var clientsTagCmd = &cobra.Command{
	Use:   "tag <id> <tag>...",
	Short: "Attach tags to a connection",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newAdminClient()
		for _, tag := range args[1:] {
			if err := c.Tag(cmd.Context(), args[0], tag); err != nil {
				return fmt.Errorf("tag %q: %w", tag, err)
			}
		}
		return printResult(cmd, map[string]any{"id": args[0], "tagged": args[1:]}, func() {
			fmt.Fprintf(cmd.OutOrStdout(), "tagged %s: %s\n", args[0], strings.Join(args[1:], ", "))
		})
	},
}

var clientsUntagCmd = &cobra.Command{
	Use:   "untag <id> <tag>...",
	Short: "Remove tags from a connection",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newAdminClient()
		for _, tag := range args[1:] {
			if err := c.Untag(cmd.Context(), args[0], tag); err != nil {
				return fmt.Errorf("untag %q: %w", tag, err)
			}
		}
		return printResult(cmd, map[string]any{"id": args[0], "untagged": args[1:]}, func() {
			fmt.Fprintf(cmd.OutOrStdout(), "untagged %s: %s\n", args[0], strings.Join(args[1:], ", "))
		})
	},
}

var clientsMatchCmd = &cobra.Command{
	Use:   "match <tag-expression>",
	Short: "List connections whose tags satisfy an expression",
	Example: `  wshub clients match 'grp_*&!admin'
  wshub clients match '(lyon|grenoble)&vip'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := newAdminClient().ClientsByTagExpression(cmd.Context(), args[0])
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

func init() {
	for _, c := range []*cobra.Command{clientsListCmd, clientsSendCmd, clientsBroadcastCmd} {
		c.Flags().StringVar(&clientsRoute, "route", "", "Limit to connections on this route")
	}
	clientsKickCmd.Flags().StringVar(&kickReason, "reason", "", "Close reason sent to the client")

	clientsCmd.AddCommand(
		clientsListCmd,
		clientsShowCmd,
		clientsSendCmd,
		clientsBroadcastCmd,
		clientsKickCmd,
		clientsRenameCmd,
		clientsTagCmd,
		clientsUntagCmd,
		clientsMatchCmd,
	)
	rootCmd.AddCommand(clientsCmd)
}
