package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/getmockd/wshub/pkg/events"
)

var errWrite = errors.New("write failed")

// fakeTransport records writes and pings.
type fakeTransport struct {
	mu          sync.Mutex
	writes      [][]byte
	closed      bool
	closeReason string

	writeErr  error
	block     bool // Write waits for ctx
	pingErr   error
	pingDelay time.Duration
	pings     atomic.Int32
}

func (f *fakeTransport) Write(ctx context.Context, p []byte) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, append([]byte(nil), p...))
	return nil
}

func (f *fakeTransport) Ping(ctx context.Context) error {
	f.pings.Add(1)
	if f.pingDelay > 0 {
		select {
		case <-time.After(f.pingDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.pingErr
}

func (f *fakeTransport) Close(reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.closeReason = reason
	return nil
}

func (f *fakeTransport) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.writes))
	for i, w := range f.writes {
		out[i] = string(w)
	}
	return out
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// recorder is a synchronous events.Emitter.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
	// onBeforeClose runs inside EmitAndWait, like a handler would.
	onBeforeClose func(ev events.Event)
}

func (r *recorder) Emit(_ context.Context, ev events.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return true
}

func (r *recorder) EmitAndWait(ctx context.Context, ev events.Event) error {
	r.Emit(ctx, ev)
	if ev.Type == events.TypeBeforeClose && r.onBeforeClose != nil {
		r.onBeforeClose(ev)
	}
	return nil
}

// typesFor returns the event types emitted for one connection id.
func (r *recorder) typesFor(id string) []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Type
	for _, ev := range r.events {
		if ev.ConnectionID == id {
			out = append(out, ev.Type)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("c%d", n.Add(1)) }
}

func newTestRegistry(t *testing.T, opts ...Option) (*Registry, *recorder) {
	t.Helper()
	rec := &recorder{}
	base := []Option{WithEmitter(rec), WithIDGenerator(sequentialIDs())}
	return New(append(base, opts...)...), rec
}

func openConn(t *testing.T, r *Registry, route string) (*Conn, *fakeTransport) {
	t.Helper()
	ft := &fakeTransport{}
	c, err := r.Open(route, ft, "127.0.0.1:1234")
	require.NoError(t, err)
	return c, ft
}
