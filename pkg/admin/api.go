package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/getmockd/wshub/pkg/kvstore"
	"github.com/getmockd/wshub/pkg/logging"
	"github.com/getmockd/wshub/pkg/metrics"
	"github.com/getmockd/wshub/pkg/registry"
)

// DefaultMaxBodySize caps request bodies (payloads and stored values).
const DefaultMaxBodySize int64 = 1 << 20

// API exposes the registry over HTTP.
type API struct {
	reg             *registry.Registry
	global          *kvstore.Store
	metricsRegistry *metrics.Registry
	hub             *metrics.Hub
	log             *slog.Logger
	version         string
	maxBodySize     int64
	startTime       time.Time

	addr       string
	handler    http.Handler
	httpServer *http.Server

	mu       sync.Mutex
	listener net.Listener
}

// NewAPI creates an API serving reg on addr. Nothing listens until Start.
func NewAPI(addr string, reg *registry.Registry, opts ...Option) *API {
	a := &API{
		reg:         reg,
		log:         logging.Nop(),
		version:     "dev",
		maxBodySize: DefaultMaxBodySize,
		startTime:   time.Now(),
		addr:        addr,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.global == nil {
		a.global = kvstore.New()
	}

	mux := http.NewServeMux()
	a.registerRoutes(mux)
	a.handler = a.withMiddleware(mux)

	a.httpServer = &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return a
}

// Handler returns the API with its middleware applied.
func (a *API) Handler() http.Handler {
	return a.handler
}

// GlobalStore returns the key/value store behind /global.
func (a *API) GlobalStore() *kvstore.Store {
	return a.global
}

// Start binds the listen address and serves in the background.
func (a *API) Start() error {
	ln, err := net.Listen("tcp", a.addr)
	if err != nil {
		return fmt.Errorf("admin listen %s: %w", a.addr, err)
	}
	a.mu.Lock()
	a.listener = ln
	a.mu.Unlock()

	a.log.Info("starting admin API", "addr", ln.Addr().String())
	go func() {
		if err := a.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("admin API error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address once started, or the configured one.
func (a *API) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return a.addr
}

// Stop gracefully shuts down the HTTP server.
func (a *API) Stop(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	return a.httpServer.Shutdown(ctx)
}

// Uptime returns the API uptime in seconds.
func (a *API) Uptime() int {
	return int(time.Since(a.startTime).Seconds())
}
