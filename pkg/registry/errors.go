package registry

import "errors"

// Common errors for the registry package.
var (
	// ErrNotFound indicates the connection id is not live.
	ErrNotFound = errors.New("connection not found")
	// ErrConflict indicates a rename target or a new id is already in use.
	ErrConflict = errors.New("connection id already in use")
	// ErrInvalidState indicates the operation does not apply to the
	// connection's current state.
	ErrInvalidState = errors.New("invalid connection state")
	// ErrRouteMismatch indicates the connection is not on the requested route.
	ErrRouteMismatch = errors.New("connection not on route")
	// ErrInvalidTag indicates an empty tag.
	ErrInvalidTag = errors.New("invalid tag")
	// ErrInvalidOperator indicates an unknown search operator or a pattern
	// that does not compile.
	ErrInvalidOperator = errors.New("invalid search operator")
	// ErrTransportGone indicates the transport reported a disconnect while
	// the connection was held as a ghost.
	ErrTransportGone = errors.New("transport gone")
)
