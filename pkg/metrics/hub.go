package metrics

import (
	"runtime"
	"time"
)

// Close reasons used as the "reason" label of wshub_connections_closed_total.
const (
	ReasonClosed       = "closed"
	ReasonDisconnected = "disconnected"
	ReasonGhostRelease = "ghost_release"
)

// Hub bundles the instruments updated by the connection registry, the
// transport and the admin API. A nil *Hub is valid and records nothing.
type Hub struct {
	ConnectionsActive  *Gauge
	ConnectionsOpened  *Counter
	ConnectionsClosed  *Counter
	GhostConnections   *Gauge
	MessagesReceived   *Counter
	MessagesSent       *Counter
	SendFailures       *Counter
	PingRTT            *Histogram
	FanoutDuration     *Histogram
	AdminRequests      *Counter
	UpgradesRejected   *Counter
	EventsDropped      *Counter
	EventHandlerPanics *Counter
	Goroutines         *Gauge
	Uptime             *Gauge

	start time.Time
}

// NewHub registers the wshub instruments on r.
func NewHub(r *Registry) *Hub {
	h := &Hub{
		ConnectionsActive:  r.NewGauge("wshub_connections_active", "Live connections per route", "route"),
		ConnectionsOpened:  r.NewCounter("wshub_connections_opened_total", "Connections opened per route", "route"),
		ConnectionsClosed:  r.NewCounter("wshub_connections_closed_total", "Connections torn down by reason", "reason"),
		GhostConnections:   r.NewGauge("wshub_ghost_connections", "Connections currently in ghost state"),
		MessagesReceived:   r.NewCounter("wshub_messages_received_total", "Inbound messages per route", "route"),
		MessagesSent:       r.NewCounter("wshub_messages_sent_total", "Outbound messages delivered by dispatch kind", "via"),
		SendFailures:       r.NewCounter("wshub_send_failures_total", "Outbound writes that failed by dispatch kind", "via"),
		PingRTT:            r.NewHistogram("wshub_ping_rtt_seconds", "Round trip time of successful pings", LatencyBuckets),
		FanoutDuration:     r.NewHistogram("wshub_fanout_duration_seconds", "Wall time of a fan-out send", LatencyBuckets, "via"),
		AdminRequests:      r.NewCounter("wshub_admin_requests_total", "Admin API requests", "method", "status"),
		UpgradesRejected:   r.NewCounter("wshub_upgrades_rejected_total", "WebSocket upgrades refused before accept", "reason"),
		EventsDropped:      r.NewCounter("wshub_events_dropped_total", "Events refused because the dispatcher was closed", "event"),
		EventHandlerPanics: r.NewCounter("wshub_event_handler_panics_total", "Event handler panics recovered by the dispatcher", "event"),
		Goroutines:         r.NewGauge("go_goroutines", "Number of goroutines that currently exist"),
		Uptime:             r.NewGauge("wshub_uptime_seconds", "Seconds since the process started"),
		start:              time.Now(),
	}
	return h
}

// ConnectionOpened records a new connection on route.
func (h *Hub) ConnectionOpened(route string) {
	if h == nil {
		return
	}
	_ = h.ConnectionsOpened.Inc(route)
	_ = h.ConnectionsActive.Add(1, route)
}

// ConnectionClosed records a teardown of a connection on route.
func (h *Hub) ConnectionClosed(route, reason string) {
	if h == nil {
		return
	}
	_ = h.ConnectionsClosed.Inc(reason)
	_ = h.ConnectionsActive.Add(-1, route)
}

// GhostDelta adjusts the ghost gauge by delta.
func (h *Hub) GhostDelta(delta float64) {
	if h == nil {
		return
	}
	_ = h.GhostConnections.Add(delta)
}

// MessageReceived counts one inbound message on route.
func (h *Hub) MessageReceived(route string) {
	if h == nil {
		return
	}
	_ = h.MessagesReceived.Inc(route)
}

// Sent records the outcome of one outbound write.
func (h *Hub) Sent(via string, err error) {
	if h == nil {
		return
	}
	if err != nil {
		_ = h.SendFailures.Inc(via)
		return
	}
	_ = h.MessagesSent.Inc(via)
}

// Ping records a successful probe round trip.
func (h *Hub) Ping(rtt time.Duration) {
	if h == nil {
		return
	}
	_ = h.PingRTT.Observe(rtt.Seconds())
}

// Fanout records how long one fan-out took.
func (h *Hub) Fanout(via string, d time.Duration) {
	if h == nil {
		return
	}
	_ = h.FanoutDuration.Observe(d.Seconds(), via)
}

// AdminRequest counts one admin API request.
func (h *Hub) AdminRequest(method, status string) {
	if h == nil {
		return
	}
	_ = h.AdminRequests.Inc(method, status)
}

// UpgradeRejected counts one refused upgrade.
func (h *Hub) UpgradeRejected(reason string) {
	if h == nil {
		return
	}
	_ = h.UpgradesRejected.Inc(reason)
}

// EventDropped counts one event the dispatcher refused.
func (h *Hub) EventDropped(event string) {
	if h == nil {
		return
	}
	_ = h.EventsDropped.Inc(event)
}

// EventHandlerPanic counts one recovered handler panic.
func (h *Hub) EventHandlerPanic(event string) {
	if h == nil {
		return
	}
	_ = h.EventHandlerPanics.Inc(event)
}

// CollectRuntime refreshes process gauges. The admin API calls it before
// serving /metrics.
func (h *Hub) CollectRuntime() {
	if h == nil {
		return
	}
	_ = h.Goroutines.Set(float64(runtime.NumGoroutine()))
	_ = h.Uptime.Set(time.Since(h.start).Seconds())
}
