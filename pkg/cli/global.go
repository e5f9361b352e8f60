package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var globalTTL time.Duration

var globalCmd = &cobra.Command{
	Use:   "global",
	Short: "Read and write the hub-wide key/value store",
}

var globalGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a global value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := newAdminClient().Global(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printResult(cmd, map[string]string{"key": args[0], "value": v}, func() {
			fmt.Fprintln(cmd.OutOrStdout(), v)
		})
	},
}

var globalSetCmd = &cobra.Command{
	Use:     "set <key> <value>",
	Short:   "Store a global value",
	Example: `  wshub global set motd 'maintenance at 22:00' --ttl 2h`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newAdminClient().SetGlobal(cmd.Context(), args[0], args[1], globalTTL); err != nil {
			return err
		}
		return printResult(cmd, map[string]string{"key": args[0]}, func() {
			fmt.Fprintf(cmd.OutOrStdout(), "set %s\n", args[0])
		})
	},
}

var globalExistsCmd = &cobra.Command{
	Use:   "exists <key>",
	Short: "Report whether a global key is set",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ok, err := newAdminClient().GlobalExists(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printResult(cmd, map[string]any{"key": args[0], "exists": ok}, func() {
			fmt.Fprintln(cmd.OutOrStdout(), ok)
		})
	},
}

var globalRmCmd = &cobra.Command{
	Use:   "rm <key>",
	Short: "Delete a global key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newAdminClient().DeleteGlobal(cmd.Context(), args[0]); err != nil {
			return err
		}
		return printResult(cmd, map[string]string{"deleted": args[0]}, func() {
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
		})
	},
}

func init() {
	globalSetCmd.Flags().DurationVar(&globalTTL, "ttl", 0, "Expire the value after this long (0 keeps it)")

	globalCmd.AddCommand(globalGetCmd, globalSetCmd, globalExistsCmd, globalRmCmd)
	rootCmd.AddCommand(globalCmd)
}
