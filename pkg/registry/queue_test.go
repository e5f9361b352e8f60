package registry

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payloads(q []QueuedMessage) []string {
	out := make([]string, len(q))
	for i, m := range q {
		out[i] = string(m.Payload)
	}
	return out
}

func TestQueueCounter_EvictsOldestBeyondMax(t *testing.T) {
	r, _ := newTestRegistry(t)
	c, _ := openConn(t, r, "/")
	id := c.ID()
	require.NoError(t, r.EnableQueueCounter(id, 3, 0))

	for i := 1; i <= 5; i++ {
		require.NoError(t, r.Send(context.Background(), id, []byte(fmt.Sprintf("m%d", i)), ""))
	}

	assert.Equal(t, int64(5), r.MessageCounter(id))
	q := r.MessageQueue(id)
	assert.Equal(t, []string{"m3", "m4", "m5"}, payloads(q))
	assert.Equal(t, ViaDirect, q[0].Via)
	assert.Equal(t, id, q[0].Target)
}

func TestQueueCounter_CountsEveryDispatchKind(t *testing.T) {
	r, _ := newTestRegistry(t)
	c, _ := openConn(t, r, "/chat")
	id := c.ID()
	require.NoError(t, r.Tag(id, "grp_a"))
	require.NoError(t, r.EnableQueueCounter(id, 0, 0))

	ctx := context.Background()
	require.NoError(t, r.Send(ctx, id, []byte("1"), ""))
	r.SendAll(ctx, []byte("2"), "/chat")
	r.SendToTag(ctx, "grp_a", []byte("3"), "")
	_, err := r.SendToTagExpression(ctx, "grp_*", []byte("4"), "")
	require.NoError(t, err)

	q := r.MessageQueue(id)
	require.Len(t, q, 4)
	assert.Equal(t, []string{ViaDirect, ViaBroadcast, ViaTag, ViaExpression},
		[]string{q[0].Via, q[1].Via, q[2].Via, q[3].Via})
	assert.Equal(t, "grp_*", q[3].Target)
}

func TestQueueCounter_DefaultMaxEntries(t *testing.T) {
	r, _ := newTestRegistry(t, WithConfig(Config{QueueMaxEntries: 2}))
	c, _ := openConn(t, r, "/")
	require.NoError(t, r.EnableQueueCounter(c.ID(), 0, 0))

	for i := 0; i < 4; i++ {
		r.SendAll(context.Background(), []byte{byte('a' + i)}, "")
	}
	assert.Equal(t, []string{"c", "d"}, payloads(r.MessageQueue(c.ID())))
}

func TestQueueCounter_MaxAge(t *testing.T) {
	var (
		mu  sync.Mutex
		now = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}

	r, _ := newTestRegistry(t, WithClock(clock))
	c, _ := openConn(t, r, "/")
	id := c.ID()
	require.NoError(t, r.EnableQueueCounter(id, 10, 10*time.Second))

	require.NoError(t, r.Send(context.Background(), id, []byte("old"), ""))
	advance(8 * time.Second)
	require.NoError(t, r.Send(context.Background(), id, []byte("new"), ""))
	advance(5 * time.Second)

	assert.Equal(t, []string{"new"}, payloads(r.MessageQueue(id)))
	assert.Equal(t, int64(2), r.MessageCounter(id))
}

func TestQueueCounter_ClearKeepsCounter(t *testing.T) {
	r, _ := newTestRegistry(t)
	c, _ := openConn(t, r, "/")
	id := c.ID()
	require.NoError(t, r.EnableQueueCounter(id, 5, 0))
	r.SendAll(context.Background(), []byte("x"), "")
	r.SendAll(context.Background(), []byte("y"), "")

	require.NoError(t, r.ClearMessageQueue(id))
	assert.Empty(t, r.MessageQueue(id))
	assert.Equal(t, int64(2), r.MessageCounter(id))
}

func TestQueueCounter_DisableKeepsState(t *testing.T) {
	r, _ := newTestRegistry(t)
	c, _ := openConn(t, r, "/")
	id := c.ID()
	require.NoError(t, r.EnableQueueCounter(id, 5, 0))
	r.SendAll(context.Background(), []byte("x"), "")

	require.NoError(t, r.DisableQueueCounter(id))
	r.SendAll(context.Background(), []byte("y"), "")

	assert.Equal(t, int64(1), r.MessageCounter(id))
	assert.Equal(t, []string{"x"}, payloads(r.MessageQueue(id)))
}

func TestQueueCounter_NotEnabledRecordsNothing(t *testing.T) {
	r, _ := newTestRegistry(t)
	c, _ := openConn(t, r, "/")
	r.SendAll(context.Background(), []byte("x"), "")

	assert.Zero(t, r.MessageCounter(c.ID()))
	assert.Empty(t, r.MessageQueue(c.ID()))
}

func TestQueueCounter_UnknownConnection(t *testing.T) {
	r, _ := newTestRegistry(t)

	assert.ErrorIs(t, r.EnableQueueCounter("x", 1, 0), ErrNotFound)
	assert.ErrorIs(t, r.DisableQueueCounter("x"), ErrNotFound)
	assert.ErrorIs(t, r.ClearMessageQueue("x"), ErrNotFound)
	assert.Zero(t, r.MessageCounter("x"))
	assert.Nil(t, r.MessageQueue("x"))
}

func TestQueueCounter_PayloadIsCopied(t *testing.T) {
	r, _ := newTestRegistry(t)
	c, _ := openConn(t, r, "/")
	require.NoError(t, r.EnableQueueCounter(c.ID(), 5, 0))

	buf := []byte("abc")
	require.NoError(t, r.Send(context.Background(), c.ID(), buf, ""))
	buf[0] = 'X'

	assert.Equal(t, []string{"abc"}, payloads(r.MessageQueue(c.ID())))
}
