// Option functions for configuring API.

package admin

import (
	"log/slog"

	"github.com/getmockd/wshub/pkg/kvstore"
	"github.com/getmockd/wshub/pkg/logging"
	"github.com/getmockd/wshub/pkg/metrics"
)

// Option configures an API.
type Option func(*API)

// WithLogger sets the operational logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *API) {
		if log != nil {
			a.log = log
		} else {
			a.log = logging.Nop()
		}
	}
}

// WithGlobalStore sets the store behind /global. A private store is created
// when unset.
func WithGlobalStore(s *kvstore.Store) Option {
	return func(a *API) {
		a.global = s
	}
}

// WithMetrics exposes r on /metrics and records request counts on h.
// Either may be nil.
func WithMetrics(r *metrics.Registry, h *metrics.Hub) Option {
	return func(a *API) {
		a.metricsRegistry = r
		a.hub = h
	}
}

// WithVersion sets the version reported by /status.
func WithVersion(v string) Option {
	return func(a *API) {
		if v != "" {
			a.version = v
		}
	}
}

// WithMaxBodySize caps request bodies. Non-positive values are ignored.
func WithMaxBodySize(n int64) Option {
	return func(a *API) {
		if n > 0 {
			a.maxBodySize = n
		}
	}
}
