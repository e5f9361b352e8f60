// Package transport accepts WebSocket upgrades and connects each socket to
// the connection registry.
//
// The Handler upgrades requests whose path matches one of the configured
// doublestar patterns, registers the socket, feeds inbound frames to the
// registry and reports read failures as disconnects. Outbound frames are
// written by the registry through the registry.Transport adapter.
package transport
