package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/getmockd/wshub/pkg/logging"
	"github.com/getmockd/wshub/pkg/metrics"
)

// ErrClosed is returned when emitting on a closed dispatcher.
var ErrClosed = errors.New("dispatcher closed")

// DefaultBuffer is the queue size used when none is configured.
const DefaultBuffer = 1024

// Emitter is what the registry needs from a dispatcher.
//
// ctx tells the dispatcher who is emitting. A handler that calls back into
// the registry must pass the ctx it was given, so that events raised from
// the dispatcher goroutine are delivered there instead of waiting on
// themselves.
type Emitter interface {
	// Emit queues ev. It blocks while the queue is full and reports false
	// once the dispatcher is closed.
	Emit(ctx context.Context, ev Event) bool
	// EmitAndWait queues ev and waits until its handler returned.
	EmitAndWait(ctx context.Context, ev Event) error
}

type dispatcherKey struct{}

// Dispatcher queues events on a bounded channel and hands them to a Handler
// from a single goroutine started by Run.
type Dispatcher struct {
	queue   chan Event
	handler Handler
	log     *slog.Logger
	now     func() time.Time

	metrics *metrics.Hub

	stop     chan struct{}
	stopOnce sync.Once
	emitters sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

var _ Emitter = (*Dispatcher)(nil)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithBuffer sets the queue capacity. Values below one are ignored.
func WithBuffer(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan Event, n)
		}
	}
}

// WithLogger sets the logger used for handler panics.
func WithLogger(log *slog.Logger) Option {
	return func(d *Dispatcher) {
		if log != nil {
			d.log = log
		}
	}
}

// WithMetrics counts refused events and handler panics on h.
func WithMetrics(h *metrics.Hub) Option {
	return func(d *Dispatcher) { d.metrics = h }
}

// NewDispatcher creates a dispatcher delivering to h. A nil h discards
// events.
func NewDispatcher(h Handler, opts ...Option) *Dispatcher {
	if h == nil {
		h = HandlerFunc(func(context.Context, Event) {})
	}
	d := &Dispatcher{
		queue:   make(chan Event, DefaultBuffer),
		handler: h,
		log:     logging.Nop(),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Emit implements Emitter. Called from one of d's handlers with a full
// queue, it delivers queued events in place until there is room.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) bool {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		d.metrics.EventDropped(string(ev.Type))
		return false
	}
	d.emitters.Add(1)
	d.mu.RUnlock()
	defer d.emitters.Done()

	if ev.Time.IsZero() {
		ev.Time = d.now()
	}
	if d.inside(ctx) {
		for {
			select {
			case d.queue <- ev:
				return true
			default:
			}
			select {
			case queued := <-d.queue:
				d.deliver(ctx, queued)
			default:
			}
		}
	}
	select {
	case d.queue <- ev:
		return true
	case <-d.stop:
		d.metrics.EventDropped(string(ev.Type))
		return false
	}
}

// EmitAndWait implements Emitter. It returns ctx.Err() if the handler has
// not finished before ctx is done.
//
// Called from one of d's handlers, it delivers everything already queued
// and then ev on the calling goroutine, so the wait cannot block on the
// caller itself.
func (d *Dispatcher) EmitAndWait(ctx context.Context, ev Event) error {
	if d.inside(ctx) {
		d.mu.RLock()
		closed := d.closed
		d.mu.RUnlock()
		if closed {
			d.metrics.EventDropped(string(ev.Type))
			return ErrClosed
		}
		if ev.Time.IsZero() {
			ev.Time = d.now()
		}
		d.drain(ctx)
		d.deliver(ctx, ev)
		return nil
	}

	ev.done = make(chan struct{})
	if !d.Emit(ctx, ev) {
		return ErrClosed
	}
	select {
	case <-ev.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.stop:
		return ErrClosed
	}
}

// Run delivers events until ctx is cancelled or Close is called, then
// handles whatever is still queued and returns.
func (d *Dispatcher) Run(ctx context.Context) error {
	ctx = context.WithValue(ctx, dispatcherKey{}, d)
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ctx, ev)
		case <-ctx.Done():
			d.drain(context.WithoutCancel(ctx))
			return ctx.Err()
		case <-d.stop:
			d.drain(ctx)
			return nil
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ctx, ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev Event) {
	defer func() {
		if ev.done != nil {
			close(ev.done)
		}
		if r := recover(); r != nil {
			d.metrics.EventHandlerPanic(string(ev.Type))
			d.log.Error("event handler panicked", "event", string(ev.Type), "id", ev.ConnectionID, "panic", r)
		}
	}()
	d.handler.HandleEvent(ctx, ev)
}

// inside reports whether ctx was handed to a handler by d.
func (d *Dispatcher) inside(ctx context.Context) bool {
	owner, _ := ctx.Value(dispatcherKey{}).(*Dispatcher)
	return owner == d
}

// Close stops accepting events and unblocks pending emitters. Run returns
// after handling what was already queued.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.stopOnce.Do(func() { close(d.stop) })
	d.emitters.Wait()
}
