// Package registry is the authoritative table of live WebSocket connections
// and the state attached to them: tags, stored information, ping schedule,
// outbound queue counter and ghost mode.
//
// # Identity
//
// Every Conn is reached through the id table. Other indexes (routes, tags)
// are keyed by the *Conn handle, so Rename swaps one map entry and nothing
// else moves.
//
// # Locking
//
// Locks are taken in the order registry, tag index, connection. Reads of the
// tag index hold the registry read lock; teardown and rename hold the write
// lock, so readers never see a half-removed or half-renamed connection.
// Transport writes and pings run with no registry lock held.
//
// # Lifecycle events
//
// Open, message, beforeClose, close and ghostConnectionClose events are
// handed to an events.Emitter. Emission for one connection is serialised and
// the close sequence is never interleaved with other events for it.
package registry
