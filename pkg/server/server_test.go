package server

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/wshub/pkg/admin/client"
	"github.com/getmockd/wshub/pkg/audit"
	"github.com/getmockd/wshub/pkg/config"
	"github.com/getmockd/wshub/pkg/events"
	"github.com/getmockd/wshub/pkg/logging"
)

type typeLog struct {
	mu    sync.Mutex
	types []events.Type
}

func (l *typeLog) HandleEvent(_ context.Context, ev events.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.types = append(l.types, ev.Type)
}

func (l *typeLog) snapshot() []events.Type {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]events.Type(nil), l.types...)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.WebSocket.Listen = "127.0.0.1:0"
	cfg.WebSocket.Routes = []string{"/chat/**"}
	cfg.Admin.Listen = "127.0.0.1:0"
	return cfg
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.WebSocket.MessageType = "morse"
	_, err := New(cfg)
	require.Error(t, err)
	var verrs config.ValidationErrors
	assert.ErrorAs(t, err, &verrs)
}

func TestShutdown_NotStarted(t *testing.T) {
	s, err := New(testConfig(), WithLogger(logging.Nop()))
	require.NoError(t, err)
	assert.ErrorIs(t, s.Shutdown(context.Background()), ErrNotStarted)
}

func TestServer_EndToEnd(t *testing.T) {
	evs := &typeLog{}
	s, err := New(testConfig(), WithLogOutput(io.Discard), WithVersion("test"), WithEventHandler(evs))
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+s.WebSocketAddr()+"/chat/lobby", nil)
	require.NoError(t, err)
	defer conn.Close()

	api := client.New(s.AdminAddr(), client.WithTimeout(5*time.Second))
	ctx := context.Background()

	var ids []string
	require.Eventually(t, func() bool {
		ids, err = api.ListClients(ctx, "/chat/lobby")
		return err == nil && len(ids) == 1
	}, 2*time.Second, 10*time.Millisecond)

	status, err := api.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "test", status.Version)

	n, err := api.Broadcast(ctx, []byte("hello"), "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	typ, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, typ)
	assert.Equal(t, "hello", string(msg))

	// gorilla answers the close handshake only while a read is in progress.
	readErr := make(chan error, 1)
	go func() {
		_, _, err := conn.ReadMessage()
		readErr <- err
	}()

	require.NoError(t, s.Shutdown(context.Background()))

	select {
	case err := <-readErr:
		var closeErr *websocket.CloseError
		require.ErrorAs(t, err, &closeErr)
		assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
		assert.Equal(t, ShutdownReason, closeErr.Text)
	case <-time.After(5 * time.Second):
		t.Fatal("client did not observe the close")
	}

	assert.Zero(t, s.Registry().ClientsCount(""))
	assert.Equal(t, []events.Type{events.TypeOpen, events.TypeBeforeClose, events.TypeClose}, evs.snapshot())
}

func TestServer_RejectsUnknownRoute(t *testing.T) {
	s, err := New(testConfig(), WithLogger(logging.Nop()))
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })

	_, resp, err := websocket.DefaultDialer.Dial("ws://"+s.WebSocketAddr()+"/feed", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestServer_AdminDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Admin.Enabled = false
	s, err := New(cfg, WithLogger(logging.Nop()))
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	assert.Empty(t, s.AdminAddr())
	require.NoError(t, s.Shutdown(context.Background()))
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	s, err := New(testConfig(), WithLogger(logging.Nop()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, 5*time.Second) }()

	require.Eventually(t, func() bool {
		return s.WebSocketAddr() != "127.0.0.1:0"
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestServer_TLSAutoGenerate(t *testing.T) {
	cfg := testConfig()
	cfg.WebSocket.TLS = config.TLSConfig{Enabled: true, AutoGenerate: true}
	cfg.Admin.Enabled = false

	s, err := New(cfg, WithLogger(logging.Nop()))
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer func() { _ = s.Shutdown(context.Background()) }()

	_, _, err = websocket.DefaultDialer.Dial("wss://"+s.WebSocketAddr()+"/chat/a", nil)
	require.Error(t, err, "self-signed certificate is not trusted by default")

	dialer := *websocket.DefaultDialer
	dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	conn, _, err := dialer.Dial("wss://"+s.WebSocketAddr()+"/chat/a", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.Registry().ClientsCount("") == 1 }, 2*time.Second, 10*time.Millisecond)
	info, err := s.Registry().Describe(s.Registry().ListClients("")[0])
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", info.RemoteAddr)
}

func TestServer_UpgradeRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.WebSocket.RateLimit = config.RateLimitConfig{Rate: 0.01, Burst: 1}

	s, err := New(cfg, WithLogger(logging.Nop()))
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer func() { _ = s.Shutdown(context.Background()) }()

	url := "ws://" + s.WebSocketAddr() + "/chat/a"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	_ = resp.Body.Close()

	assert.Equal(t, float64(1), s.hub.UpgradesRejected.Value("rate_limited"))
}

func TestNew_TLSMissingFiles(t *testing.T) {
	cfg := testConfig()
	cfg.WebSocket.TLS = config.TLSConfig{Enabled: true, CertFile: "/nonexistent/c.pem", KeyFile: "/nonexistent/k.pem"}
	_, err := New(cfg, WithLogger(logging.Nop()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "websocket TLS")
}

func TestServer_AuditJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	cfg := testConfig()
	cfg.Admin.Enabled = false
	cfg.Audit = config.AuditConfig{Enabled: true, Output: path, Events: []string{"open", "close"}}

	s, err := New(cfg, WithLogger(logging.Nop()))
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+s.WebSocketAddr()+"/chat/audit", nil)
	require.NoError(t, err)
	defer conn.Close()
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	require.Eventually(t, func() bool { return s.Registry().ClientsCount("") == 1 }, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2, string(data))

	var open, closed audit.Entry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &open))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &closed))
	assert.Equal(t, "open", open.Event)
	assert.Equal(t, "/chat/audit", open.Route)
	assert.Equal(t, int64(1), open.Sequence)
	assert.Equal(t, "close", closed.Event)
	assert.Equal(t, open.ConnectionID, closed.ConnectionID)
}
