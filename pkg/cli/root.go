// Package cli implements the wshub command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/getmockd/wshub/pkg/admin/client"
	"github.com/getmockd/wshub/pkg/cli/internal/output"
)

// DefaultAdminURL is used when neither --admin-url nor WSHUB_ADMIN_URL is set.
const DefaultAdminURL = "http://127.0.0.1:2019"

var (
	// Persistent flags available to all subcommands
	adminURL   string
	jsonOutput bool

	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
	// BuildDate is injected during build
	BuildDate = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "wshub",
	Short: "wshub is a WebSocket connection hub with a control API",
	Long: `wshub accepts WebSocket connections, tracks them in a registry and lets
operators tag, inspect, message and close them through a REST admin API.

Start a hub with 'wshub serve' and drive it with 'wshub clients'.`,
	SilenceUsage:  true,
	SilenceErrors: true, // We handle errors in Execute()
}

// Execute runs the root command. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&adminURL, "admin-url", defaultAdminURL(), "Admin API base URL (env WSHUB_ADMIN_URL)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output command results in JSON format")
}

func defaultAdminURL() string {
	if v := os.Getenv("WSHUB_ADMIN_URL"); v != "" {
		return v
	}
	return DefaultAdminURL
}

// newAdminClient returns a client for the --admin-url server.
func newAdminClient() *client.Client {
	return client.New(adminURL)
}

// printResult writes data as JSON when --json is set, otherwise calls
// textFn. In JSON mode nothing else goes to stdout.
func printResult(cmd *cobra.Command, data any, textFn func()) error {
	if jsonOutput {
		return output.JSON(cmd.OutOrStdout(), data)
	}
	textFn()
	return nil
}
