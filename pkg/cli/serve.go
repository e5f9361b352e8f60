package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/getmockd/wshub/pkg/cli/internal/output"
	"github.com/getmockd/wshub/pkg/config"
	"github.com/getmockd/wshub/pkg/server"
)

// shutdownTimeout is the default time allowed for graceful shutdown.
const shutdownTimeout = 30 * time.Second

// serveFlags holds the serve command flags. Only flags the user set
// override the configuration file.
type serveFlags struct {
	configFile      string
	listen          string
	routes          []string
	maxConnections  int
	maxMessageSize  int64
	messageType     string
	originPatterns  []string
	adminListen     string
	noAdmin         bool
	logLevel        string
	logFormat       string
	tlsCert         string
	tlsKey          string
	tlsAuto         bool
	rateLimit       float64
	rateBurst       int
	shutdownTimeout time.Duration
}

// serveFlagVals is the package-level instance bound to cobra flags.
var serveFlagVals serveFlags

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the WebSocket hub (foreground)",
	Long: `Start the WebSocket hub and, unless disabled, the admin API.

Settings come from the configuration file when one is given, then from
flags. The hub stops on SIGINT or SIGTERM, closing every connection first.`,
	Example: `  # Start with defaults (ws on :5000, admin on 127.0.0.1:2019)
  wshub serve

  # Start from a configuration file and override the listener
  wshub serve --config wshub.yaml --listen :8080

  # Accept only chat rooms, text frames
  wshub serve --route '/chat/**' --message-type text

  # Serve wss with a throwaway certificate, 5 upgrades/s per address
  wshub serve --tls-auto --rate-limit 5`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadServeConfig(cmd, &serveFlagVals)
		if err != nil {
			return err
		}

		srv, err := server.New(cfg, server.WithVersion(buildVersion().Version))
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return srv.Run(ctx, serveFlagVals.shutdownTimeout)
	},
}

// loadServeConfig reads the configuration file, or the defaults, and applies
// the flags the user set.
func loadServeConfig(cmd *cobra.Command, f *serveFlags) (*config.Config, error) {
	cfg := config.Default()
	if f.configFile != "" {
		loaded, err := config.LoadFromFile(f.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("listen") {
		cfg.WebSocket.Listen = f.listen
	}
	if flags.Changed("route") {
		cfg.WebSocket.Routes = f.routes
	}
	if flags.Changed("max-connections") {
		cfg.WebSocket.MaxConnections = f.maxConnections
	}
	if flags.Changed("max-message-size") {
		cfg.WebSocket.MaxMessageSize = f.maxMessageSize
	}
	if flags.Changed("message-type") {
		cfg.WebSocket.MessageType = f.messageType
	}
	if flags.Changed("allow-origin") {
		cfg.WebSocket.OriginPatterns = f.originPatterns
	}
	if flags.Changed("admin-listen") {
		cfg.Admin.Listen = f.adminListen
	}
	if f.noAdmin {
		if flags.Changed("admin-listen") {
			output.Warn(cmd.ErrOrStderr(), "--admin-listen is ignored with --no-admin")
		}
		cfg.Admin.Enabled = false
	}
	if flags.Changed("tls-cert") || flags.Changed("tls-key") || f.tlsAuto {
		cfg.WebSocket.TLS.Enabled = true
		if flags.Changed("tls-cert") {
			cfg.WebSocket.TLS.CertFile = f.tlsCert
		}
		if flags.Changed("tls-key") {
			cfg.WebSocket.TLS.KeyFile = f.tlsKey
		}
		if f.tlsAuto {
			cfg.WebSocket.TLS.AutoGenerate = true
		}
	}
	if flags.Changed("rate-limit") {
		cfg.WebSocket.RateLimit.Rate = f.rateLimit
	}
	if flags.Changed("rate-burst") {
		cfg.WebSocket.RateLimit.Burst = f.rateBurst
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = f.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func addServeFlags(cmd *cobra.Command, f *serveFlags) {
	d := config.Default()

	cmd.Flags().StringVarP(&f.configFile, "config", "c", "", "Path to configuration file (.yaml, .yml or .json)")
	cmd.Flags().StringVarP(&f.listen, "listen", "l", d.WebSocket.Listen, "WebSocket listen address")
	cmd.Flags().StringSliceVarP(&f.routes, "route", "r", d.WebSocket.Routes, "Accepted upgrade path pattern (repeatable, doublestar glob)")
	cmd.Flags().IntVar(&f.maxConnections, "max-connections", 0, "Maximum concurrent sockets (0 = unlimited)")
	cmd.Flags().Int64Var(&f.maxMessageSize, "max-message-size", d.WebSocket.MaxMessageSize, "Maximum inbound message size in bytes")
	cmd.Flags().StringVar(&f.messageType, "message-type", d.WebSocket.MessageType, "Outbound frame type (binary, text)")
	cmd.Flags().StringSliceVar(&f.originPatterns, "allow-origin", nil, "Host pattern allowed to upgrade cross-origin (repeatable, e.g. '*.example.com')")
	cmd.Flags().StringVar(&f.adminListen, "admin-listen", d.Admin.Listen, "Admin API listen address")
	cmd.Flags().BoolVar(&f.noAdmin, "no-admin", false, "Disable the admin API")
	cmd.Flags().StringVar(&f.logLevel, "log-level", d.Log.Level, "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&f.logFormat, "log-format", d.Log.Format, "Log format (text, json)")
	cmd.Flags().StringVar(&f.tlsCert, "tls-cert", "", "TLS certificate file for wss")
	cmd.Flags().StringVar(&f.tlsKey, "tls-key", "", "TLS private key file for wss")
	cmd.Flags().BoolVar(&f.tlsAuto, "tls-auto", false, "Serve wss with a generated self-signed certificate")
	cmd.Flags().Float64Var(&f.rateLimit, "rate-limit", 0, "Upgrades per second allowed per client address (0 = unlimited)")
	cmd.Flags().IntVar(&f.rateBurst, "rate-burst", 0, "Upgrade burst per client address (0 = ceil of --rate-limit)")
	cmd.Flags().DurationVar(&f.shutdownTimeout, "shutdown-timeout", shutdownTimeout, "Time allowed for graceful shutdown")
}

func init() {
	addServeFlags(serveCmd, &serveFlagVals)
	rootCmd.AddCommand(serveCmd)
}
