package registry

import (
	"context"
	"fmt"
	"time"
)

// pinger is the handle of one probe goroutine.
type pinger struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// stop cancels the goroutine and waits for it to exit.
func (p *pinger) stop() {
	p.cancel()
	<-p.done
}

// EnablePing schedules keep-alive probes. An interval of zero issues one
// probe right away; a positive interval probes every interval and replaces
// any earlier schedule. Negative intervals count as zero.
func (r *Registry) EnablePing(id string, interval time.Duration) error {
	if interval < 0 {
		interval = 0
	}
	c, ok := r.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &pinger{cancel: cancel, done: make(chan struct{})}

	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		cancel()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	prev := c.pinger
	c.pinger = p
	c.pingInterval = interval
	c.mu.Unlock()

	if prev != nil {
		prev.stop()
	}
	go r.runPinger(ctx, c, p, interval)

	r.log.Debug("ping enabled", "id", id, "interval", interval)
	return nil
}

// DisablePing stops the probe schedule. When it returns no further probe
// is sent. Disabling with no active schedule succeeds.
func (r *Registry) DisablePing(id string) error {
	c, ok := r.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	c.mu.Lock()
	p := c.pinger
	c.pinger = nil
	c.pingInterval = 0
	c.mu.Unlock()

	if p != nil {
		p.stop()
		r.log.Debug("ping disabled", "id", id)
	}
	return nil
}

// PingTime returns the round trip of the last successful probe, or zero.
func (r *Registry) PingTime(id string) time.Duration {
	c, ok := r.Lookup(id)
	if !ok {
		return 0
	}
	return time.Duration(c.lastRTT.Load())
}

func (r *Registry) runPinger(ctx context.Context, c *Conn, p *pinger, interval time.Duration) {
	defer close(p.done)

	if interval == 0 {
		r.probe(ctx, c)
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.probe(ctx, c)
		}
	}
}

// probe sends one ping. Ghosts and connections whose transport is gone are
// skipped; failures keep the previous round trip.
func (r *Registry) probe(ctx context.Context, c *Conn) {
	if ctx.Err() != nil {
		return
	}
	c.mu.Lock()
	skip := c.state == StateGhost || c.gone
	c.mu.Unlock()
	if skip {
		return
	}

	pctx, cancel := context.WithTimeout(ctx, r.cfg.PingTimeout)
	defer cancel()

	start := time.Now()
	if err := c.transport.Ping(pctx); err != nil {
		r.log.Debug("ping failed", "id", c.ID(), "error", err)
		return
	}
	rtt := time.Since(start)
	c.lastRTT.Store(int64(rtt))
	r.metrics.Ping(rtt)
}
