package admin

import (
	"time"

	"github.com/getmockd/wshub/pkg/httputil"
	"github.com/getmockd/wshub/pkg/registry"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse = httputil.ErrorBody

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Uptime int    `json:"uptime"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Version    string         `json:"version"`
	Uptime     int            `json:"uptime"`
	StartedAt  time.Time      `json:"startedAt"`
	Registry   registry.Stats `json:"registry"`
	GlobalKeys int            `json:"globalKeys"`
}

// ClientListResponse lists connection ids.
type ClientListResponse struct {
	Clients []string `json:"clients"`
	Count   int      `json:"count"`
}

// CountResponse carries a single count.
type CountResponse struct {
	Count int `json:"count"`
}

// RouteListResponse lists routes with live connections.
type RouteListResponse struct {
	Routes []string `json:"routes"`
	Count  int      `json:"count"`
}

// TagListResponse lists tags.
type TagListResponse struct {
	Tags  []string `json:"tags"`
	Count int      `json:"count"`
}

// KeyListResponse lists stored keys.
type KeyListResponse struct {
	Keys  []string `json:"keys"`
	Count int      `json:"count"`
}

// SendResponse reports how many writes succeeded.
type SendResponse struct {
	Sent int `json:"sent"`
}

// RenameResponse is returned after a successful rename.
type RenameResponse struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ValueResponse carries one stored value.
type ValueResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ExistsResponse reports whether a key is stored.
type ExistsResponse struct {
	Key    string `json:"key"`
	Exists bool   `json:"exists"`
}

// PingResponse reports the last probe round trip.
type PingResponse struct {
	Latency   string  `json:"latency"`
	LatencyMs float64 `json:"latencyMs"`
}

// QueueResponse lists the logged outbound messages.
type QueueResponse struct {
	Messages []registry.QueuedMessage `json:"messages"`
	Count    int                      `json:"count"`
}

// CounterResponse carries the outbound message counter.
type CounterResponse struct {
	Counter int64 `json:"counter"`
}

// GhostResponse reports ghost mode.
type GhostResponse struct {
	Ghost bool `json:"ghost"`
}
