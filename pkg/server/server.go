// Package server assembles a running hub from a configuration: the
// WebSocket listener, the connection registry, the event dispatcher, the
// global store and the admin API.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/getmockd/wshub/pkg/admin"
	"github.com/getmockd/wshub/pkg/audit"
	"github.com/getmockd/wshub/pkg/config"
	"github.com/getmockd/wshub/pkg/events"
	"github.com/getmockd/wshub/pkg/kvstore"
	"github.com/getmockd/wshub/pkg/logging"
	"github.com/getmockd/wshub/pkg/metrics"
	"github.com/getmockd/wshub/pkg/ratelimit"
	"github.com/getmockd/wshub/pkg/registry"
	wstls "github.com/getmockd/wshub/pkg/tls"
	"github.com/getmockd/wshub/pkg/transport"
)

// ShutdownReason is the close reason sent to clients on shutdown.
const ShutdownReason = "server shutting down"

// ErrNotStarted is returned by Shutdown before Start.
var ErrNotStarted = errors.New("server not started")

// Server owns every component of a running hub.
type Server struct {
	cfg     *config.Config
	log     *slog.Logger
	version string

	metricsRegistry *metrics.Registry
	hub             *metrics.Hub
	dispatcher      *events.Dispatcher
	audit           audit.Logger
	reg             *registry.Registry
	global          *kvstore.Store
	ws              *transport.Handler
	limiter         *ratelimit.Limiter
	tlsConfig       *tls.Config
	wsServer        *http.Server
	admin           *admin.API

	mu         sync.Mutex
	started    bool
	wsListener net.Listener
	cancel     context.CancelFunc
	background sync.WaitGroup
}

// Option configures a Server.
type Option func(*options)

type options struct {
	log      *slog.Logger
	logOut   io.Writer
	version  string
	handlers []events.Handler
}

// WithLogger uses log instead of building one from the log section.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithLogOutput sets where the configured logger writes. Ignored with
// WithLogger.
func WithLogOutput(w io.Writer) Option {
	return func(o *options) { o.logOut = w }
}

// WithVersion sets the version reported by the admin API.
func WithVersion(v string) Option {
	return func(o *options) { o.version = v }
}

// WithEventHandler adds a handler that receives every connection event
// after the logging handler.
func WithEventHandler(h events.Handler) Option {
	return func(o *options) {
		if h != nil {
			o.handlers = append(o.handlers, h)
		}
	}
}

// New validates cfg and builds a Server. Nothing listens until Start.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	o := options{version: "dev"}
	for _, opt := range opts {
		opt(&o)
	}
	log := o.log
	if log == nil {
		log = logging.New(logging.Config{
			Level:  logging.ParseLevel(cfg.Log.Level),
			Format: logging.ParseFormat(cfg.Log.Format),
			Output: o.logOut,
		})
	}

	s := &Server{
		cfg:             cfg,
		log:             log,
		version:         o.version,
		metricsRegistry: metrics.NewRegistry(),
	}
	s.hub = metrics.NewHub(s.metricsRegistry)

	proxies, err := ratelimit.ParseProxies(cfg.WebSocket.RateLimit.TrustedProxies)
	if err != nil {
		return nil, err
	}
	if t := cfg.WebSocket.TLS; t.Enabled {
		s.tlsConfig, err = wstls.ServerConfig(wstls.Options{
			CertFile:     t.CertFile,
			KeyFile:      t.KeyFile,
			AutoGenerate: t.AutoGenerate,
			Hosts:        wstls.HostsFor(cfg.WebSocket.Listen),
		})
		if err != nil {
			return nil, fmt.Errorf("websocket TLS: %w", err)
		}
	}

	handlers := []events.Handler{events.LogHandler(logging.Component(log, "events"))}
	s.audit = audit.NopLogger{}
	if a := cfg.Audit; a.Enabled {
		l, err := audit.NewLogger(audit.Options{Output: a.Output})
		if err != nil {
			return nil, err
		}
		s.audit = l
		types := make([]events.Type, len(a.Events))
		for i, name := range a.Events {
			types[i] = events.Type(name)
		}
		handlers = append(handlers, audit.Handler(l,
			audit.WithEvents(types...),
			audit.WithPayloadPreview(a.PayloadPreview),
			audit.WithLogger(logging.Component(log, "audit")),
		))
	}
	handlers = append(handlers, o.handlers...)
	s.dispatcher = events.NewDispatcher(events.Multi(handlers...),
		events.WithBuffer(cfg.Registry.EventBuffer),
		events.WithLogger(logging.Component(log, "dispatcher")),
		events.WithMetrics(s.hub),
	)

	s.reg = registry.New(
		registry.WithConfig(registry.Config{
			BeforeCloseTimeout: cfg.Registry.BeforeCloseTimeout.D(),
			FanoutConcurrency:  cfg.Registry.FanoutConcurrency,
			PingTimeout:        cfg.Registry.PingTimeout.D(),
			QueueMaxEntries:    cfg.Registry.QueueMaxEntries,
			WriteTimeout:       cfg.WebSocket.WriteTimeout.D(),
		}),
		registry.WithLogger(logging.Component(log, "registry")),
		registry.WithEmitter(s.dispatcher),
		registry.WithMetrics(s.hub),
	)

	s.global = kvstore.New(kvstore.WithLogger(logging.Component(log, "global")))

	s.ws = transport.NewHandler(s.reg,
		transport.WithRoutes(cfg.WebSocket.Routes...),
		transport.WithMaxMessageSize(cfg.WebSocket.MaxMessageSize),
		transport.WithMessageType(cfg.WebSocket.MessageType),
		transport.WithOriginPatterns(cfg.WebSocket.OriginPatterns...),
		transport.WithRemoteAddr(func(r *http.Request) string {
			return ratelimit.ClientIP(r, proxies)
		}),
		transport.WithLogger(logging.Component(log, "transport")),
	)

	var wsHandler http.Handler = s.ws
	if rl := cfg.WebSocket.RateLimit; rl.Enabled() {
		limitLog := logging.Component(log, "ratelimit")
		s.limiter, err = ratelimit.New(ratelimit.Config{
			Rate:           rl.Rate,
			Burst:          rl.Burst,
			TrustedProxies: rl.TrustedProxies,
		}, ratelimit.WithLogger(limitLog))
		if err != nil {
			_ = s.audit.Close()
			return nil, err
		}
		wsHandler = ratelimit.Middleware(s.limiter, func(r *http.Request, ip string, retry time.Duration) {
			s.hub.UpgradeRejected("rate_limited")
			limitLog.Debug("upgrade rate limited", "clientIP", ip, "path", r.URL.Path, "retryAfter", retry)
		})(wsHandler)
	}

	s.wsServer = &http.Server{
		Handler:           wsHandler,
		ReadHeaderTimeout: 10 * time.Second,
		TLSConfig:         s.tlsConfig,
	}
	if s.tlsConfig != nil {
		// Upgrades need HTTP/1.1 hijacking; never negotiate h2.
		s.wsServer.TLSNextProto = map[string]func(*http.Server, *tls.Conn, http.Handler){}
	}

	if cfg.Admin.Enabled {
		s.admin = admin.NewAPI(cfg.Admin.Listen, s.reg,
			admin.WithGlobalStore(s.global),
			admin.WithMetrics(s.metricsRegistry, s.hub),
			admin.WithLogger(logging.Component(log, "admin")),
			admin.WithVersion(o.version),
		)
	}
	return s, nil
}

// Start binds the listeners and starts the background workers. It returns
// once the hub accepts connections.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("server already started")
	}

	ln, err := transport.Listen(s.cfg.WebSocket.Listen, s.cfg.WebSocket.MaxConnections)
	if err != nil {
		return fmt.Errorf("websocket listen %s: %w", s.cfg.WebSocket.Listen, err)
	}

	if s.admin != nil {
		if err := s.admin.Start(); err != nil {
			_ = ln.Close()
			return err
		}
	}

	bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.wsListener = ln
	s.started = true

	s.background.Add(2)
	go func() {
		defer s.background.Done()
		_ = s.dispatcher.Run(bg)
	}()
	go func() {
		defer s.background.Done()
		s.global.Run(bg, s.cfg.Global.SweepInterval.D())
	}()
	if s.limiter != nil {
		s.background.Add(1)
		go func() {
			defer s.background.Done()
			s.limiter.Run(bg)
		}()
	}

	serve := s.wsServer.Serve
	if s.tlsConfig != nil {
		serve = func(l net.Listener) error { return s.wsServer.ServeTLS(l, "", "") }
	}
	go func() {
		if err := serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("websocket server error", "error", err)
		}
	}()

	s.log.Info("wshub started",
		"websocket", ln.Addr().String(),
		"tls", s.tlsConfig != nil,
		"routes", s.cfg.WebSocket.Routes,
		"admin", s.AdminAddr(),
		"version", s.version,
	)
	return nil
}

// Shutdown stops accepting sockets, closes every connection so handlers see
// their beforeClose and close events, then stops the admin API and the
// background workers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.started = false
	s.mu.Unlock()

	var errs []error
	if err := s.wsServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("websocket server: %w", err))
	}

	n := s.reg.CloseAll(ctx, ShutdownReason)
	s.log.Info("closed connections", "count", n)

	done := make(chan struct{})
	go func() {
		s.ws.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("waiting for read loops: %w", ctx.Err()))
	}

	if s.admin != nil {
		if err := s.admin.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("admin API: %w", err))
		}
	}

	s.dispatcher.Close()
	s.cancel()
	s.background.Wait()
	if err := s.audit.Close(); err != nil {
		errs = append(errs, fmt.Errorf("audit journal: %w", err))
	}

	s.log.Info("wshub stopped")
	return errors.Join(errs...)
}

// Run starts the server, blocks until ctx is done, then shuts down within
// timeout.
func (s *Server) Run(ctx context.Context, timeout time.Duration) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.log.Info("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// WebSocketAddr returns the bound WebSocket address, or the configured one
// before Start.
func (s *Server) WebSocketAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wsListener != nil {
		return s.wsListener.Addr().String()
	}
	return s.cfg.WebSocket.Listen
}

// AdminAddr returns the admin API address, or "" when it is disabled.
func (s *Server) AdminAddr() string {
	if s.admin == nil {
		return ""
	}
	return s.admin.Addr()
}

// Registry returns the connection registry.
func (s *Server) Registry() *registry.Registry { return s.reg }

// GlobalStore returns the global key/value store.
func (s *Server) GlobalStore() *kvstore.Store { return s.global }

// Metrics returns the metrics registry.
func (s *Server) Metrics() *metrics.Registry { return s.metricsRegistry }

// Logger returns the server logger.
func (s *Server) Logger() *slog.Logger { return s.log }
