package registry

import "time"

// Dispatch kinds recorded in QueuedMessage.Via.
const (
	ViaDirect     = "direct"
	ViaBroadcast  = "broadcast"
	ViaTag        = "tag"
	ViaExpression = "expression"
)

// QueuedMessage is one outbound payload recorded by the queue counter.
type QueuedMessage struct {
	Payload []byte    `json:"payload"`
	SentAt  time.Time `json:"sentAt"`
	Via     string    `json:"via"`
	Target  string    `json:"target,omitempty"`
}

// queue is the per-connection counter and bounded log. Guarded by Conn.mu.
type queue struct {
	enabled    bool
	maxEntries int
	maxAge     time.Duration
	counter    int64
	entries    []QueuedMessage
}

func (q *queue) record(m QueuedMessage, now time.Time) {
	if !q.enabled {
		return
	}
	q.counter++
	q.entries = append(q.entries, m)
	q.evict(now)
}

// evict drops entries older than maxAge, then the oldest beyond maxEntries.
func (q *queue) evict(now time.Time) {
	drop := 0
	if q.maxAge > 0 {
		for drop < len(q.entries) && now.Sub(q.entries[drop].SentAt) > q.maxAge {
			drop++
		}
	}
	if over := len(q.entries) - drop - q.maxEntries; q.maxEntries > 0 && over > 0 {
		drop += over
	}
	if drop > 0 {
		q.entries = append(q.entries[:0:0], q.entries[drop:]...)
	}
}

// EnableQueueCounter starts counting and logging outbound messages for the
// connection. maxEntries <= 0 uses the configured default; maxAge <= 0
// disables age eviction. Re-enabling updates the bounds and keeps state.
func (r *Registry) EnableQueueCounter(id string, maxEntries int, maxAge time.Duration) error {
	if maxEntries <= 0 {
		maxEntries = r.cfg.QueueMaxEntries
	}
	if maxAge < 0 {
		maxAge = 0
	}
	return r.withConn(id, func(c *Conn) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.queue.enabled = true
		c.queue.maxEntries = maxEntries
		c.queue.maxAge = maxAge
		c.queue.evict(r.now())
		return nil
	})
}

// DisableQueueCounter stops tracking. The counter and the logged messages
// are kept.
func (r *Registry) DisableQueueCounter(id string) error {
	return r.withConn(id, func(c *Conn) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.queue.enabled = false
		return nil
	})
}

// MessageCounter returns how many sends were recorded for the connection.
func (r *Registry) MessageCounter(id string) int64 {
	var n int64
	_ = r.withConn(id, func(c *Conn) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		n = c.queue.counter
		return nil
	})
	return n
}

// MessageQueue returns the logged messages, oldest first.
func (r *Registry) MessageQueue(id string) []QueuedMessage {
	var out []QueuedMessage
	_ = r.withConn(id, func(c *Conn) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.queue.enabled {
			c.queue.evict(r.now())
		}
		out = append([]QueuedMessage(nil), c.queue.entries...)
		return nil
	})
	return out
}

// ClearMessageQueue drops the logged messages. The counter is kept.
func (r *Registry) ClearMessageQueue(id string) error {
	return r.withConn(id, func(c *Conn) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.queue.entries = nil
		return nil
	})
}

// recordSend logs an outbound send on c and reports whether the transport
// is gone.
func (r *Registry) recordSend(c *Conn, payload []byte, via, target string) (gone bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.queue.enabled {
		now := r.now()
		c.queue.record(QueuedMessage{
			Payload: append([]byte(nil), payload...),
			SentAt:  now,
			Via:     via,
			Target:  target,
		}, now)
	}
	return c.gone
}
