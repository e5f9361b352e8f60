package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Transport is the write side of one client socket.
type Transport interface {
	// Write sends one frame.
	Write(ctx context.Context, p []byte) error
	// Ping sends a keep-alive probe and waits for the reply.
	Ping(ctx context.Context) error
	// Close closes the socket with a normal closure status.
	Close(reason string) error
}

// State is the ghost sub-state of a connection.
type State int

const (
	// StateActive is the initial state; a transport disconnect tears down.
	StateActive State = iota
	// StateGhost keeps the connection alive across a transport disconnect.
	StateGhost
)

// String returns "active" or "ghost".
func (s State) String() string {
	if s == StateGhost {
		return "ghost"
	}
	return "active"
}

// Conn is a live connection record. Its fields are owned by the Registry;
// callers only read through the accessors.
type Conn struct {
	id         atomic.Pointer[string]
	route      string
	remoteAddr string
	openedAt   time.Time
	transport  Transport

	// emitMu serialises event emission for this connection.
	emitMu sync.Mutex

	mu           sync.Mutex
	state        State
	renamed      bool
	closing      bool
	gone         bool
	info         map[string]string
	queue        queue
	pinger       *pinger
	pingInterval time.Duration

	lastRTT atomic.Int64
}

func newConn(id, route, remoteAddr string, t Transport, now time.Time) *Conn {
	c := &Conn{
		route:      route,
		remoteAddr: remoteAddr,
		openedAt:   now,
		transport:  t,
		info:       make(map[string]string),
	}
	c.id.Store(&id)
	return c
}

// ID returns the current identifier. It changes at most once, on Rename.
func (c *Conn) ID() string { return *c.id.Load() }

// Route returns the path the connection was accepted on.
func (c *Conn) Route() string { return c.route }

// RemoteAddr returns the client address reported by the transport.
func (c *Conn) RemoteAddr() string { return c.remoteAddr }

// OpenedAt returns when the connection was registered.
func (c *Conn) OpenedAt() time.Time { return c.openedAt }

// State returns the ghost sub-state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// beginClose marks the connection as tearing down. It returns false if a
// teardown already started, and reports the state the connection was in.
func (c *Conn) beginClose() (prev State, gone, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing {
		return c.state, c.gone, false
	}
	prev = c.state
	c.closing = true
	c.state = StateActive
	return prev, c.gone, true
}

func (c *Conn) isClosing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closing
}

// release drops per-connection state after the record left every index and
// returns the pinger so the caller can stop it without holding c.mu.
func (c *Conn) release() *pinger {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.pinger
	c.pinger = nil
	c.pingInterval = 0
	c.info = make(map[string]string)
	c.queue = queue{}
	return p
}

// ConnInfo is a point-in-time description of a connection.
type ConnInfo struct {
	ID             string        `json:"id"`
	Route          string        `json:"route"`
	RemoteAddr     string        `json:"remoteAddr,omitempty"`
	OpenedAt       time.Time     `json:"openedAt"`
	State          string        `json:"state"`
	Renamed        bool          `json:"renamed"`
	Tags           []string      `json:"tags"`
	InfoKeys       int           `json:"infoKeys"`
	PingInterval   time.Duration `json:"pingInterval"`
	LastPing       time.Duration `json:"lastPing"`
	QueueEnabled   bool          `json:"queueEnabled"`
	MessageCounter int64         `json:"messageCounter"`
}
