// Package id generates identifiers for connections and admin requests.
//
// Connection identifiers are random version 4 UUIDs rendered as 32 hex
// characters without dashes, so they are safe in URL path segments and
// short enough to read in logs.
package id
