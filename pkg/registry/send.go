package registry

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Send writes payload to one connection. When route is not empty the
// connection must be on it. Failures are logged and returned; they never
// affect other connections.
func (r *Registry) Send(ctx context.Context, id string, payload []byte, route string) error {
	c, ok := r.Lookup(id)
	if !ok {
		r.log.Warn("send to unknown connection", "id", id)
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if route != "" && c.route != route {
		r.log.Warn("send route mismatch", "id", id, "route", route, "connRoute", c.route)
		return fmt.Errorf("%w: %s is on %s", ErrRouteMismatch, id, c.route)
	}
	if err := r.deliver(ctx, c, payload, ViaDirect, id); err != nil {
		r.log.Warn("send failed", "id", id, "error", err)
		return err
	}
	return nil
}

// SendAll writes payload to every connection, or to those on route, and
// returns how many writes succeeded.
func (r *Registry) SendAll(ctx context.Context, payload []byte, route string) int {
	r.mu.RLock()
	targets := r.candidatesLocked(route)
	r.mu.RUnlock()
	return r.fanout(ctx, targets, payload, ViaBroadcast, route)
}

// SendToTag writes payload to every connection holding tag, optionally
// limited to route, and returns how many writes succeeded.
func (r *Registry) SendToTag(ctx context.Context, tag string, payload []byte, route string) int {
	r.mu.RLock()
	targets := r.tags.KeysWith(tag)
	r.mu.RUnlock()
	return r.fanout(ctx, filterRoute(targets, route), payload, ViaTag, tag)
}

// SendToTagExpression writes payload to every connection matching expr,
// optionally limited to route. Parse errors abort before any write.
func (r *Registry) SendToTagExpression(ctx context.Context, expr string, payload []byte, route string) (int, error) {
	targets, err := r.matchExpression(expr, route)
	if err != nil {
		return 0, err
	}
	return r.fanout(ctx, targets, payload, ViaExpression, expr), nil
}

func filterRoute(conns []*Conn, route string) []*Conn {
	if route == "" {
		return conns
	}
	out := conns[:0]
	for _, c := range conns {
		if c.route == route {
			out = append(out, c)
		}
	}
	return out
}

// fanout writes payload to targets with at most FanoutConcurrency writes in
// flight. Each write has its own timeout, so a slow recipient only delays
// its own slot.
func (r *Registry) fanout(ctx context.Context, targets []*Conn, payload []byte, via, target string) int {
	if len(targets) == 0 {
		return 0
	}
	start := time.Now()

	var (
		g    errgroup.Group
		sent atomic.Int64
	)
	g.SetLimit(r.cfg.FanoutConcurrency)
	for _, c := range targets {
		g.Go(func() error {
			if err := r.deliver(ctx, c, payload, via, target); err != nil {
				r.log.Debug("fan-out write failed", "id", c.ID(), "via", via, "error", err)
				return nil
			}
			sent.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	n := int(sent.Load())
	r.metrics.Fanout(via, time.Since(start))
	if failed := len(targets) - n; failed > 0 {
		r.log.Warn("fan-out incomplete", "via", via, "target", target, "sent", n, "failed", failed)
	}
	return n
}

// deliver records the send on the queue counter, then writes to the
// transport unless it is gone.
func (r *Registry) deliver(ctx context.Context, c *Conn, payload []byte, via, target string) error {
	if r.recordSend(c, payload, via, target) {
		r.metrics.Sent(via, ErrTransportGone)
		return ErrTransportGone
	}
	if r.cfg.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.WriteTimeout)
		defer cancel()
	}
	err := c.transport.Write(ctx, payload)
	r.metrics.Sent(via, err)
	return err
}
