package registry

import (
	"context"
	"fmt"

	"github.com/getmockd/wshub/pkg/metrics"
)

// ActivateGhost switches the connection to ghost mode. It is a no-op for a
// connection that already is a ghost.
func (r *Registry) ActivateGhost(id string) error {
	var changed bool
	err := r.withConn(id, func(c *Conn) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closing {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if c.state == StateGhost {
			return nil
		}
		c.state = StateGhost
		changed = true
		return nil
	})
	if changed {
		r.metrics.GhostDelta(1)
		r.log.Info("ghost mode activated", "id", id)
	}
	return err
}

// ReleaseGhost ends ghost mode and tears the connection down, emitting
// ghostConnectionClose, beforeClose and close in that order. Event handlers
// calling it pass their own ctx.
func (r *Registry) ReleaseGhost(ctx context.Context, id string) error {
	c, ok := r.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	c.mu.Lock()
	switch {
	case c.closing:
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	case c.state != StateGhost:
		c.mu.Unlock()
		return fmt.Errorf("%w: %s is not a ghost", ErrInvalidState, id)
	}
	c.state = StateActive
	c.closing = true
	gone := c.gone
	c.mu.Unlock()

	r.metrics.GhostDelta(-1)
	r.log.Info("ghost released", "id", id, "transportGone", gone)

	r.teardown(ctx, c, teardownOpts{
		reason:         metrics.ReasonGhostRelease,
		ghostRelease:   true,
		closeTransport: !gone,
		closeReason:    "ghost released",
	})
	return nil
}

// IsGhost reports whether the connection is in ghost mode. Unknown ids are
// not ghosts.
func (r *Registry) IsGhost(id string) bool {
	ghost := false
	_ = r.withConn(id, func(c *Conn) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		ghost = c.state == StateGhost
		return nil
	})
	return ghost
}
