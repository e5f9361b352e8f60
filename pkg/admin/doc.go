// Package admin provides a REST API for inspecting and driving the
// connection registry at runtime.
//
// Every registry operation is reachable over HTTP. Payloads and stored
// values travel as raw request bodies; everything else is JSON. Failures
// use a common body:
//
//	{"error": "not_found", "message": "Connection not found"}
//
// Endpoints:
//
//	GET    /health                      - Liveness check
//	GET    /status                      - Registry summary
//	GET    /metrics                     - Prometheus metrics
//	GET    /clients                     - List connections (?route=)
//	GET    /clients/{id}                - Describe one connection
//	DELETE /clients/{id}                - Close a connection
//	POST   /clients/{id}/send           - Send the body to one connection
//	POST   /broadcast                   - Send the body to every connection
//	POST   /clients/{id}/rename/{newId} - Rename a connection
//	...                                 - Tags, info, global store, ping,
//	                                      queue counter and ghost mode
//
// Usage:
//
//	api := admin.NewAPI("127.0.0.1:2019", reg,
//		admin.WithGlobalStore(kv),
//		admin.WithMetrics(metricsRegistry, hub),
//		admin.WithLogger(log),
//	)
//	if err := api.Start(); err != nil {
//		return err
//	}
//	defer api.Stop(context.Background())
package admin
