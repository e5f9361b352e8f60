package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/wshub/pkg/admin"
	"github.com/getmockd/wshub/pkg/registry"
)

type sink struct {
	mu     sync.Mutex
	writes []string
}

func (s *sink) Write(_ context.Context, p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, string(p))
	return nil
}

func (s *sink) Ping(context.Context) error { return nil }
func (s *sink) Close(string) error         { return nil }

func (s *sink) written() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.writes...)
}

func newServer(t *testing.T) (*Client, *registry.Registry) {
	t.Helper()
	reg := registry.New()
	ts := httptest.NewServer(admin.NewAPI("", reg).Handler())
	t.Cleanup(ts.Close)
	return New(ts.URL, WithTimeout(5*time.Second)), reg
}

func TestNew(t *testing.T) {
	c := New("127.0.0.1:2019/")
	assert.Equal(t, "http://127.0.0.1:2019", c.baseURL)
	assert.Equal(t, 30*time.Second, c.httpClient.Timeout)

	c = New("https://hub.example.com", WithTimeout(time.Second))
	assert.Equal(t, "https://hub.example.com", c.baseURL)
	assert.Equal(t, time.Second, c.httpClient.Timeout)
}

func TestClient_RoundTrip(t *testing.T) {
	c, reg := newServer(t)
	ctx := context.Background()

	s := &sink{}
	conn, err := reg.Open("/chat", s, "")
	require.NoError(t, err)
	id := conn.ID()

	require.NoError(t, c.Health(ctx))

	status, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Registry.Connections)

	ids, err := c.ListClients(ctx, "/chat")
	require.NoError(t, err)
	assert.Equal(t, []string{id}, ids)

	routes, err := c.ListRoutes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/chat"}, routes)

	require.NoError(t, c.Send(ctx, id, []byte("direct"), ""))
	n, err := c.Broadcast(ctx, []byte("all"), "/chat")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, c.Tag(ctx, id, "vip"))
	matched, err := c.ClientsByTagExpression(ctx, "vip")
	require.NoError(t, err)
	assert.Equal(t, []string{id}, matched)
	n, err = c.SendToTagExpression(ctx, "vip", []byte("tagged"), "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, c.Untag(ctx, id, "vip"))

	assert.Equal(t, []string{"direct", "all", "tagged"}, s.written())

	require.NoError(t, c.Rename(ctx, id, "alice"))
	info, err := c.Describe(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, info.Renamed)
	assert.Empty(t, info.Tags)

	require.NoError(t, c.Close(ctx, "alice", "bye"))
	assert.Zero(t, reg.ClientsCount(""))
}

func TestClient_Errors(t *testing.T) {
	c, reg := newServer(t)
	ctx := context.Background()

	_, err := c.Describe(ctx, "nope")
	require.ErrorIs(t, err, ErrNotFound)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "not_found", apiErr.Code)

	a, err := reg.Open("/chat", &sink{}, "")
	require.NoError(t, err)
	b, err := reg.Open("/chat", &sink{}, "")
	require.NoError(t, err)
	require.ErrorIs(t, c.Rename(ctx, a.ID(), b.ID()), ErrConflict)

	_, err = c.ClientsByTagExpression(ctx, "a&")
	require.Error(t, err)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "invalid_expression", apiErr.Code)
}

func TestClient_NonJSONError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(ts.Close)

	err := New(ts.URL).Health(context.Background())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "status 500"))
}

func TestClient_TagsAndCount(t *testing.T) {
	c, reg := newServer(t)
	ctx := context.Background()

	a, b := &sink{}, &sink{}
	ca, err := reg.Open("/chat", a, "")
	require.NoError(t, err)
	cb, err := reg.Open("/news", b, "")
	require.NoError(t, err)

	n, err := c.CountClients(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = c.CountClients(ctx, "/news")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, c.Tag(ctx, ca.ID(), "vip"))
	require.NoError(t, c.Tag(ctx, ca.ID(), "beta"))
	require.NoError(t, c.Tag(ctx, cb.ID(), "vip"))

	tags, err := c.ListTags(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"vip", "beta"}, tags)

	tags, err = c.TagsOf(ctx, ca.ID())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"vip", "beta"}, tags)

	ids, err := c.ClientsWithTag(ctx, "vip")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{ca.ID(), cb.ID()}, ids)

	n, err = c.TagCount(ctx, "vip")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = c.SendToTag(ctx, "vip", []byte("hi"), "/chat")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"hi"}, a.written())
	assert.Empty(t, b.written())

	n, err = c.SendToTagExpression(ctx, "vip&!beta", []byte("only b"), "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"only b"}, b.written())

	require.NoError(t, c.ClearTags(ctx, ca.ID()))
	n, err = c.TagCount(ctx, "beta")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = c.TagsOf(ctx, "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestClient_Info(t *testing.T) {
	c, reg := newServer(t)
	ctx := context.Background()

	ca, err := reg.Open("/chat", &sink{}, "")
	require.NoError(t, err)
	cb, err := reg.Open("/chat", &sink{}, "")
	require.NoError(t, err)

	require.NoError(t, c.SetInfo(ctx, ca.ID(), "user", "alice"))
	require.NoError(t, c.SetInfo(ctx, ca.ID(), "team", "red"))
	require.NoError(t, c.SetInfo(ctx, cb.ID(), "user", "Alicia"))

	v, err := c.Info(ctx, ca.ID(), "user")
	require.NoError(t, err)
	assert.Equal(t, "alice", v)

	all, err := c.AllInfo(ctx, ca.ID())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"user": "alice", "team": "red"}, all)

	keys, err := c.InfoKeys(ctx, ca.ID())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"user", "team"}, keys)

	ids, err := c.SearchInfo(ctx, "user", "", "alice", "")
	require.NoError(t, err)
	assert.Equal(t, []string{ca.ID()}, ids)

	ids, err = c.SearchInfo(ctx, "user", registry.OpIPrefix, "ALI", "/chat")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{ca.ID(), cb.ID()}, ids)

	require.NoError(t, c.DeleteInfo(ctx, ca.ID(), "team"))
	_, err = c.Info(ctx, ca.ID(), "team")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, c.DeleteInfo(ctx, ca.ID(), "team"), ErrNotFound)

	require.NoError(t, c.ClearInfo(ctx, ca.ID()))
	all, err = c.AllInfo(ctx, ca.ID())
	require.NoError(t, err)
	assert.Empty(t, all)

	_, err = c.SearchInfo(ctx, "user", "bogus", "x", "")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestClient_Global(t *testing.T) {
	c, _ := newServer(t)
	ctx := context.Background()

	require.NoError(t, c.SetGlobal(ctx, "motd", "hello", 0))
	v, err := c.Global(ctx, "motd")
	require.NoError(t, err)
	assert.Equal(t, "hello", v)

	ok, err := c.GlobalExists(ctx, "motd")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.SetGlobal(ctx, "flash", "soon gone", 50*time.Millisecond))
	assert.Eventually(t, func() bool {
		ok, err := c.GlobalExists(ctx, "flash")
		return err == nil && !ok
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, c.DeleteGlobal(ctx, "motd"))
	_, err = c.Global(ctx, "motd")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, c.DeleteGlobal(ctx, "motd"), ErrNotFound)
}

func TestClient_PingQueueGhost(t *testing.T) {
	c, reg := newServer(t)
	ctx := context.Background()

	s := &sink{}
	conn, err := reg.Open("/chat", s, "")
	require.NoError(t, err)
	id := conn.ID()

	require.NoError(t, c.EnablePing(ctx, id, time.Minute))
	rtt, err := c.PingTime(ctx, id)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, rtt, time.Duration(0))
	require.NoError(t, c.DisablePing(ctx, id))

	require.NoError(t, c.EnableQueue(ctx, id, 1, time.Hour))
	require.NoError(t, c.Send(ctx, id, []byte("one"), ""))
	require.NoError(t, c.Send(ctx, id, []byte("two"), ""))

	counter, err := c.QueueCounter(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counter)

	msgs, err := c.Queue(ctx, id)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "two", string(msgs[0].Payload))

	require.NoError(t, c.ClearQueue(ctx, id))
	msgs, err = c.Queue(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	require.NoError(t, c.DisableQueue(ctx, id))

	ghost, err := c.IsGhost(ctx, id)
	require.NoError(t, err)
	assert.False(t, ghost)

	require.NoError(t, c.ActivateGhost(ctx, id))
	ghost, err = c.IsGhost(ctx, id)
	require.NoError(t, err)
	assert.True(t, ghost)

	reg.Disconnect(id, nil)
	n, err := c.CountClients(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, c.ReleaseGhost(ctx, id))
	n, err = c.CountClients(ctx, "")
	require.NoError(t, err)
	assert.Zero(t, n)
	require.ErrorIs(t, c.ReleaseGhost(ctx, id), ErrNotFound)
}
