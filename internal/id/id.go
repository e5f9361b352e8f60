package id

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// UUID returns a random UUID in canonical dashed form.
func UUID() string {
	return uuid.NewString()
}

// Connection returns a new connection identifier: a v4 UUID as 32
// lowercase hex characters.
func Connection() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// Short returns the first 16 hex characters of a random UUID. Suitable for
// request ids where brevity matters more than collision resistance.
func Short() string {
	return Connection()[:16]
}

// Valid reports whether s is a connection identifier produced by
// Connection or a dashed UUID.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
