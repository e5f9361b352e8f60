package registry

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/getmockd/wshub/internal/id"
	"github.com/getmockd/wshub/pkg/events"
	"github.com/getmockd/wshub/pkg/logging"
	"github.com/getmockd/wshub/pkg/metrics"
	"github.com/getmockd/wshub/pkg/tagindex"
)

// Config holds registry tunables.
type Config struct {
	// BeforeCloseTimeout bounds how long teardown waits for the
	// beforeClose handler.
	BeforeCloseTimeout time.Duration
	// FanoutConcurrency is the number of parallel writers per fan-out.
	FanoutConcurrency int
	// PingTimeout bounds a single keep-alive probe.
	PingTimeout time.Duration
	// QueueMaxEntries is used when EnableQueueCounter gets maxEntries <= 0.
	QueueMaxEntries int
	// WriteTimeout bounds a single transport write. Zero disables it.
	WriteTimeout time.Duration
}

// DefaultConfig returns the default registry tunables.
func DefaultConfig() Config {
	return Config{
		BeforeCloseTimeout: 5 * time.Second,
		FanoutConcurrency:  32,
		PingTimeout:        10 * time.Second,
		QueueMaxEntries:    100,
		WriteTimeout:       5 * time.Second,
	}
}

// Registry tracks every live connection.
type Registry struct {
	cfg     Config
	log     *slog.Logger
	events  events.Emitter
	metrics *metrics.Hub
	newID   func() string
	now     func() time.Time

	mu     sync.RWMutex
	conns  map[string]*Conn
	routes map[string]map[*Conn]struct{}
	tags   *tagindex.Index[*Conn]
}

// Option configures a Registry.
type Option func(*Registry)

// WithConfig sets the tunables. Zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(r *Registry) {
		if cfg.BeforeCloseTimeout > 0 {
			r.cfg.BeforeCloseTimeout = cfg.BeforeCloseTimeout
		}
		if cfg.FanoutConcurrency > 0 {
			r.cfg.FanoutConcurrency = cfg.FanoutConcurrency
		}
		if cfg.PingTimeout > 0 {
			r.cfg.PingTimeout = cfg.PingTimeout
		}
		if cfg.QueueMaxEntries > 0 {
			r.cfg.QueueMaxEntries = cfg.QueueMaxEntries
		}
		if cfg.WriteTimeout > 0 {
			r.cfg.WriteTimeout = cfg.WriteTimeout
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

// WithEmitter sets where lifecycle events go.
func WithEmitter(e events.Emitter) Option {
	return func(r *Registry) {
		if e != nil {
			r.events = e
		}
	}
}

// WithMetrics sets the metrics hub.
func WithMetrics(h *metrics.Hub) Option {
	return func(r *Registry) { r.metrics = h }
}

// WithIDGenerator replaces the connection id generator.
func WithIDGenerator(fn func() string) Option {
	return func(r *Registry) {
		if fn != nil {
			r.newID = fn
		}
	}
}

// WithClock replaces the clock used for timestamps and queue ageing.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		cfg:    DefaultConfig(),
		log:    logging.Nop(),
		events: nopEmitter{},
		newID:  id.Connection,
		now:    time.Now,
		conns:  make(map[string]*Conn),
		routes: make(map[string]map[*Conn]struct{}),
		tags:   tagindex.New[*Conn](),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Config returns the effective tunables.
func (r *Registry) Config() Config { return r.cfg }

type nopEmitter struct{}

func (nopEmitter) Emit(context.Context, events.Event) bool { return true }
func (nopEmitter) EmitAndWait(context.Context, events.Event) error { return nil }

// Open registers a connection accepted on route and emits open.
func (r *Registry) Open(route string, t Transport, remoteAddr string) (*Conn, error) {
	c := newConn(r.newID(), route, remoteAddr, t, r.now())

	r.mu.Lock()
	if _, exists := r.conns[c.ID()]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrConflict, c.ID())
	}
	r.conns[c.ID()] = c
	set := r.routes[route]
	if set == nil {
		set = make(map[*Conn]struct{})
		r.routes[route] = set
	}
	set[c] = struct{}{}
	r.mu.Unlock()

	r.metrics.ConnectionOpened(route)
	r.log.Debug("connection opened", "id", c.ID(), "route", route, "remoteAddr", remoteAddr)

	c.emitMu.Lock()
	r.emit(context.Background(), c, events.TypeOpen, nil, nil)
	c.emitMu.Unlock()
	return c, nil
}

// Lookup returns the live connection with the given id.
func (r *Registry) Lookup(id string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

// withConn runs fn on the connection while holding the registry read lock,
// so fn never observes a connection that teardown already removed. fn must
// not block.
func (r *Registry) withConn(id string, fn func(c *Conn) error) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return fn(c)
}

// Message reports an inbound message on the connection with the given id.
func (r *Registry) Message(id string, payload []byte) {
	if c, ok := r.Lookup(id); ok {
		r.HandleMessage(c, payload)
	}
}

// HandleMessage reports an inbound message on c. Messages that arrive once
// a teardown started are dropped.
func (r *Registry) HandleMessage(c *Conn, payload []byte) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	if c.isClosing() {
		return
	}
	r.metrics.MessageReceived(c.route)
	r.emit(context.Background(), c, events.TypeMessage, payload, nil)
}

// Disconnect reports that the transport of the connection with the given
// id went away.
func (r *Registry) Disconnect(id string, cause error) {
	if c, ok := r.Lookup(id); ok {
		r.HandleDisconnect(c, cause)
	}
}

// HandleDisconnect reports that c's transport went away. A ghost keeps its
// record and emits nothing; an active connection runs the close sequence.
func (r *Registry) HandleDisconnect(c *Conn, cause error) {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return
	}
	c.gone = true
	if c.state == StateGhost {
		c.mu.Unlock()
		r.log.Debug("ghost transport disconnected", "id", c.ID(), "error", cause)
		return
	}
	c.closing = true
	c.mu.Unlock()

	r.teardown(context.Background(), c, teardownOpts{
		reason: metrics.ReasonDisconnected,
		cause:  cause,
	})
}

// Close kills the connection: beforeClose is emitted, the transport is
// closed, the record is removed and close is emitted. It returns false when
// the id is unknown or a teardown already started.
func (r *Registry) Close(ctx context.Context, id, reason string) bool {
	c, ok := r.Lookup(id)
	if !ok {
		return false
	}
	prev, gone, ok := c.beginClose()
	if !ok {
		return false
	}
	if prev == StateGhost {
		r.metrics.GhostDelta(-1)
	}
	r.teardown(ctx, c, teardownOpts{
		reason:         metrics.ReasonClosed,
		closeTransport: !gone,
		closeReason:    reason,
	})
	return true
}

// CloseAll closes every live connection and returns how many were closed.
func (r *Registry) CloseAll(ctx context.Context, reason string) int {
	n := 0
	for _, id := range r.ListClients("") {
		if r.Close(ctx, id, reason) {
			n++
		}
	}
	return n
}

type teardownOpts struct {
	reason         string
	cause          error
	ghostRelease   bool
	closeTransport bool
	closeReason    string
}

// teardown runs the close sequence for c. The caller already marked c as
// closing.
func (r *Registry) teardown(ctx context.Context, c *Conn, o teardownOpts) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	if o.ghostRelease {
		r.emit(ctx, c, events.TypeGhostConnectionClose, nil, nil)
	}

	bctx, cancel := context.WithTimeout(ctx, r.cfg.BeforeCloseTimeout)
	err := r.events.EmitAndWait(bctx, r.event(c, events.TypeBeforeClose, nil, o.cause))
	cancel()
	if err != nil {
		r.log.Warn("beforeClose handler did not finish", "id", c.ID(), "error", err)
	}

	if o.closeTransport {
		if err := c.transport.Close(o.closeReason); err != nil {
			r.log.Debug("transport close failed", "id", c.ID(), "error", err)
		}
	}

	r.remove(c)
	r.metrics.ConnectionClosed(c.route, o.reason)
	r.log.Debug("connection closed", "id", c.ID(), "route", c.route, "reason", o.reason)

	r.emit(ctx, c, events.TypeClose, nil, o.cause)
}

// remove drops c from every index in one write-locked section, then stops
// its pinger.
func (r *Registry) remove(c *Conn) {
	r.mu.Lock()
	if cur, ok := r.conns[c.ID()]; ok && cur == c {
		delete(r.conns, c.ID())
	}
	if set := r.routes[c.route]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(r.routes, c.route)
		}
	}
	r.tags.RemoveAll(c)
	r.mu.Unlock()

	if p := c.release(); p != nil {
		p.stop()
	}
}

// Rename moves the connection oldID to newID. A connection can be renamed
// once.
func (r *Registry) Rename(oldID, newID string) error {
	if newID == "" {
		return fmt.Errorf("%w: empty id", ErrConflict)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[oldID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, oldID)
	}
	if _, taken := r.conns[newID]; taken {
		return fmt.Errorf("%w: %s", ErrConflict, newID)
	}

	c.mu.Lock()
	switch {
	case c.closing:
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, oldID)
	case c.renamed:
		c.mu.Unlock()
		return fmt.Errorf("%w: %s was already renamed", ErrInvalidState, oldID)
	}
	c.renamed = true
	c.mu.Unlock()

	delete(r.conns, oldID)
	r.conns[newID] = c
	c.id.Store(&newID)

	r.log.Info("connection renamed", "from", oldID, "to", newID)
	return nil
}

// ListClients returns the sorted ids of live connections, limited to route
// when it is not empty.
func (r *Registry) ListClients(route string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.conns))
	if route != "" {
		for c := range r.routes[route] {
			ids = append(ids, c.ID())
		}
	} else {
		for id := range r.conns {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// ClientsCount returns the number of live connections, limited to route
// when it is not empty.
func (r *Registry) ClientsCount(route string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if route != "" {
		return len(r.routes[route])
	}
	return len(r.conns)
}

// ListRoutes returns the sorted routes that have at least one connection.
func (r *Registry) ListRoutes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	routes := make([]string, 0, len(r.routes))
	for route := range r.routes {
		routes = append(routes, route)
	}
	slices.Sort(routes)
	return routes
}

// Describe returns a snapshot of one connection.
func (r *Registry) Describe(id string) (ConnInfo, error) {
	var info ConnInfo
	err := r.withConn(id, func(c *Conn) error {
		tags := r.tags.TagsOf(c)
		if tags == nil {
			tags = []string{}
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		info = ConnInfo{
			ID:             c.ID(),
			Route:          c.route,
			RemoteAddr:     c.remoteAddr,
			OpenedAt:       c.openedAt,
			State:          c.state.String(),
			Renamed:        c.renamed,
			Tags:           tags,
			InfoKeys:       len(c.info),
			PingInterval:   c.pingInterval,
			LastPing:       time.Duration(c.lastRTT.Load()),
			QueueEnabled:   c.queue.enabled,
			MessageCounter: c.queue.counter,
		}
		return nil
	})
	return info, err
}

// Stats summarises the registry.
type Stats struct {
	Connections int `json:"connections"`
	Routes      int `json:"routes"`
	Tags        int `json:"tags"`
	Ghosts      int `json:"ghosts"`
}

// Stats returns a point-in-time summary.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Stats{
		Connections: len(r.conns),
		Routes:      len(r.routes),
		Tags:        len(r.tags.Tags()),
	}
	for _, c := range r.conns {
		if c.State() == StateGhost {
			s.Ghosts++
		}
	}
	return s
}

func (r *Registry) event(c *Conn, typ events.Type, payload []byte, cause error) events.Event {
	return events.Event{
		Type:         typ,
		ConnectionID: c.ID(),
		Route:        c.route,
		RemoteAddr:   c.remoteAddr,
		Payload:      payload,
		Err:          cause,
		Time:         r.now(),
	}
}

// emit queues one event. The caller holds c.emitMu.
func (r *Registry) emit(ctx context.Context, c *Conn, typ events.Type, payload []byte, cause error) {
	if !r.events.Emit(ctx, r.event(c, typ, payload, cause)) {
		r.log.Debug("event dropped", "event", string(typ), "id", c.ID())
	}
}
