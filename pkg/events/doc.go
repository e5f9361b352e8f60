// Package events defines the lifecycle events produced by the connection
// registry and the dispatcher that delivers them to application code.
//
// Events are queued on a bounded channel and handled by a single goroutine,
// so events for one connection are observed in the order they were emitted.
package events
