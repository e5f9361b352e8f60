package transport

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	ws "github.com/coder/websocket"
	"golang.org/x/net/netutil"

	"github.com/getmockd/wshub/pkg/logging"
	"github.com/getmockd/wshub/pkg/registry"
)

// DefaultMaxMessageSize is the inbound frame limit when none is configured.
const DefaultMaxMessageSize = 64 * 1024

// Handler is an http.Handler that upgrades matching requests and runs one
// read loop per socket.
type Handler struct {
	reg            *registry.Registry
	routes         []string
	maxMessageSize int64
	msgType        ws.MessageType
	originPatterns []string
	remoteAddr     func(*http.Request) string
	log            *slog.Logger

	active sync.WaitGroup
}

// Option configures a Handler.
type Option func(*Handler)

// WithRoutes sets the doublestar patterns of accepted paths.
func WithRoutes(patterns ...string) Option {
	return func(h *Handler) {
		if len(patterns) > 0 {
			h.routes = patterns
		}
	}
}

// WithMaxMessageSize sets the inbound frame limit in bytes.
func WithMaxMessageSize(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxMessageSize = n
		}
	}
}

// WithMessageType selects "binary" or "text" frames for outbound messages.
func WithMessageType(t string) Option {
	return func(h *Handler) {
		if strings.EqualFold(t, "text") {
			h.msgType = ws.MessageText
		} else {
			h.msgType = ws.MessageBinary
		}
	}
}

// WithOriginPatterns lists the host patterns (path.Match syntax, e.g.
// "*.example.com") whose cross-origin upgrades are accepted. Without any,
// only same-host browsers and clients sending no Origin are accepted.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Handler) { h.originPatterns = patterns }
}

// WithRemoteAddr sets how the address recorded on a connection is derived
// from the upgrade request. The default is r.RemoteAddr.
func WithRemoteAddr(fn func(*http.Request) string) Option {
	return func(h *Handler) {
		if fn != nil {
			h.remoteAddr = fn
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(h *Handler) {
		if log != nil {
			h.log = log
		}
	}
}

// NewHandler creates a Handler feeding reg.
func NewHandler(reg *registry.Registry, opts ...Option) *Handler {
	h := &Handler{
		reg:            reg,
		routes:         []string{"/**"},
		maxMessageSize: DefaultMaxMessageSize,
		msgType:        ws.MessageBinary,
		remoteAddr:     func(r *http.Request) string { return r.RemoteAddr },
		log:            logging.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Accepts reports whether path matches one of the route patterns.
func (h *Handler) Accepts(path string) bool {
	for _, pattern := range h.routes {
		if ok, err := doublestar.Match(pattern, path); err == nil && ok {
			return true
		}
	}
	return false
}

// ServeHTTP implements http.Handler. It returns once the socket is closed.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !isWebSocketUpgrade(r) {
		http.Error(w, "WebSocket upgrade required", http.StatusUpgradeRequired)
		return
	}
	route := r.URL.Path
	if !h.Accepts(route) {
		http.Error(w, "WebSocket route not found", http.StatusNotFound)
		return
	}

	conn, err := ws.Accept(w, r, &ws.AcceptOptions{
		OriginPatterns:  h.originPatterns,
		CompressionMode: ws.CompressionDisabled,
	})
	if err != nil {
		h.log.Debug("upgrade failed", "route", route, "remoteAddr", r.RemoteAddr, "error", err)
		return
	}
	conn.SetReadLimit(h.maxMessageSize)

	h.active.Add(1)
	defer h.active.Done()

	sock := newSocket(conn, h.msgType)
	c, err := h.reg.Open(route, sock, h.remoteAddr(r))
	if err != nil {
		h.log.Error("failed to register connection", "route", route, "error", err)
		_ = sock.Close("registration failed")
		return
	}

	h.readLoop(c, sock)
}

func (h *Handler) readLoop(c *registry.Conn, sock *socket) {
	for {
		data, err := sock.read()
		if err != nil {
			h.reg.HandleDisconnect(c, disconnectCause(err))
			sock.abort()
			return
		}
		h.reg.HandleMessage(c, data)
	}
}

// disconnectCause returns nil for an orderly close and err otherwise.
func disconnectCause(err error) error {
	switch ws.CloseStatus(err) {
	case ws.StatusNormalClosure, ws.StatusGoingAway:
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Wait blocks until every read loop has returned.
func (h *Handler) Wait() {
	h.active.Wait()
}

// Listen opens a TCP listener on addr that accepts at most maxConns
// concurrent connections. maxConns <= 0 means no limit.
func Listen(addr string, maxConns int) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if maxConns > 0 {
		ln = netutil.LimitListener(ln, maxConns)
	}
	return ln, nil
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade") &&
		strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}
