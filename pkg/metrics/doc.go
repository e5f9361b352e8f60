// Package metrics provides Prometheus-compatible counters, gauges and
// histograms for wshub, rendered in the text exposition format
// (text/plain; version=0.0.4).
//
// A Registry owns a set of metrics and serves them over HTTP:
//
//	reg := metrics.NewRegistry()
//	hub := metrics.NewHub(reg)
//	hub.ConnectionOpened("/chat")
//	http.Handle("/metrics", reg.Handler())
//
// Hub bundles the connection registry's instruments. Its methods are safe
// on a nil receiver so components can be built without metrics.
package metrics
