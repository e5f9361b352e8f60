package audit

import (
	"context"
	"log/slog"

	"github.com/getmockd/wshub/pkg/events"
	"github.com/getmockd/wshub/pkg/logging"
)

type handlerConfig struct {
	types   map[events.Type]bool
	preview int
	log     *slog.Logger
}

// HandlerOption configures Handler.
type HandlerOption func(*handlerConfig)

// WithEvents records only the given event types. By default every type
// is recorded.
func WithEvents(types ...events.Type) HandlerOption {
	return func(c *handlerConfig) {
		if len(types) == 0 {
			return
		}
		c.types = make(map[events.Type]bool, len(types))
		for _, t := range types {
			c.types[t] = true
		}
	}
}

// WithPayloadPreview keeps up to n bytes of message payloads.
func WithPayloadPreview(n int) HandlerOption {
	return func(c *handlerConfig) { c.preview = n }
}

// WithLogger sets where write failures are reported.
func WithLogger(log *slog.Logger) HandlerOption {
	return func(c *handlerConfig) {
		if log != nil {
			c.log = log
		}
	}
}

// Handler returns an events.Handler that journals events to l.
func Handler(l Logger, opts ...HandlerOption) events.Handler {
	cfg := &handlerConfig{log: logging.Nop()}
	for _, opt := range opts {
		opt(cfg)
	}
	return events.HandlerFunc(func(ctx context.Context, ev events.Event) {
		if cfg.types != nil && !cfg.types[ev.Type] {
			return
		}
		if err := l.Log(FromEvent(ev, cfg.preview)); err != nil {
			cfg.log.WarnContext(ctx, "audit write failed", "event", string(ev.Type), "id", ev.ConnectionID, "error", err)
		}
	})
}
