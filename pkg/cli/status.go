package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/getmockd/wshub/pkg/cli/internal/output"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a summary of the running hub",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := newAdminClient().Status(cmd.Context())
		if err != nil {
			return fmt.Errorf("cannot reach admin API at %s: %w", adminURL, err)
		}
		return printResult(cmd, st, func() {
			tw := output.Table(cmd.OutOrStdout())
			fmt.Fprintf(tw, "Version\t%s\n", st.Version)
			fmt.Fprintf(tw, "Uptime\t%ds\n", st.Uptime)
			fmt.Fprintf(tw, "Connections\t%d\n", st.Registry.Connections)
			fmt.Fprintf(tw, "Ghosts\t%d\n", st.Registry.Ghosts)
			fmt.Fprintf(tw, "Routes\t%d\n", st.Registry.Routes)
			fmt.Fprintf(tw, "Tags\t%d\n", st.Registry.Tags)
			fmt.Fprintf(tw, "Global keys\t%d\n", st.GlobalKeys)
			_ = tw.Flush()
		})
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check if the hub is healthy and reachable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		type healthResult struct {
			Status   string `json:"status"`
			AdminURL string `json:"adminUrl"`
			Error    string `json:"error,omitempty"`
		}

		if err := newAdminClient().Health(cmd.Context()); err != nil {
			result := healthResult{Status: "unhealthy", AdminURL: adminURL, Error: err.Error()}
			_ = printResult(cmd, result, func() {
				fmt.Fprintf(cmd.ErrOrStderr(), "unhealthy: %v\n", err)
			})
			return errors.New("hub is not healthy")
		}

		result := healthResult{Status: "healthy", AdminURL: adminURL}
		return printResult(cmd, result, func() {
			fmt.Fprintln(cmd.OutOrStdout(), "healthy")
		})
	},
}

func init() {
	rootCmd.AddCommand(statusCmd, healthCmd)
}
