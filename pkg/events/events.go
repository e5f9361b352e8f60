package events

import (
	"context"
	"log/slog"
	"time"
)

// Type identifies a lifecycle event.
type Type string

// Event types.
const (
	TypeOpen                 Type = "open"
	TypeMessage              Type = "message"
	TypeBeforeClose          Type = "beforeClose"
	TypeClose                Type = "close"
	TypeGhostConnectionClose Type = "ghostConnectionClose"
)

// ValidType reports whether t is one of the event types above.
func ValidType(t Type) bool {
	switch t {
	case TypeOpen, TypeMessage, TypeBeforeClose, TypeClose, TypeGhostConnectionClose:
		return true
	}
	return false
}

// Event is one lifecycle notification for a connection.
type Event struct {
	Type         Type
	ConnectionID string
	Route        string
	RemoteAddr   string
	Payload      []byte
	Err          error
	Time         time.Time

	done chan struct{}
}

// Handler consumes events. HandleEvent is called from the dispatcher
// goroutine only. A handler that closes or releases a connection through
// the registry passes its ctx along; the resulting events are then
// delivered from within that call.
type Handler interface {
	HandleEvent(ctx context.Context, ev Event)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev Event)

// HandleEvent calls f(ctx, ev).
func (f HandlerFunc) HandleEvent(ctx context.Context, ev Event) { f(ctx, ev) }

// LogHandler logs every event through log.
func LogHandler(log *slog.Logger) Handler {
	return HandlerFunc(func(ctx context.Context, ev Event) {
		attrs := []any{"event", string(ev.Type), "id", ev.ConnectionID, "route", ev.Route}
		switch ev.Type {
		case TypeMessage:
			log.DebugContext(ctx, "connection event", append(attrs, "bytes", len(ev.Payload))...)
		case TypeOpen:
			log.InfoContext(ctx, "connection event", append(attrs, "remoteAddr", ev.RemoteAddr)...)
		default:
			if ev.Err != nil {
				attrs = append(attrs, "error", ev.Err)
			}
			log.InfoContext(ctx, "connection event", attrs...)
		}
	})
}

// Multi fans one event out to several handlers in order.
func Multi(handlers ...Handler) Handler {
	return HandlerFunc(func(ctx context.Context, ev Event) {
		for _, h := range handlers {
			h.HandleEvent(ctx, ev)
		}
	})
}
