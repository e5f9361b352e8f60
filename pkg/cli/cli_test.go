package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/wshub/pkg/admin"
	"github.com/getmockd/wshub/pkg/registry"
)

type recordingTransport struct {
	mu     sync.Mutex
	writes []string
	reason string
}

func (r *recordingTransport) Write(_ context.Context, p []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = append(r.writes, string(p))
	return nil
}

func (r *recordingTransport) Ping(context.Context) error { return nil }

func (r *recordingTransport) Close(reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reason = reason
	return nil
}

func (r *recordingTransport) written() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.writes...)
}

// startAdmin serves an admin API over a fresh registry and points
// --admin-url at it.
func startAdmin(t *testing.T) *registry.Registry {
	t.Helper()
	var n atomic.Int64
	reg := registry.New(registry.WithIDGenerator(func() string {
		return fmt.Sprintf("c%d", n.Add(1))
	}))
	api := admin.NewAPI("127.0.0.1:0", reg, admin.WithVersion("9.9.9"))
	ts := httptest.NewServer(api.Handler())
	t.Cleanup(ts.Close)
	adminURL = ts.URL
	return reg
}

func resetFlags() {
	jsonOutput = false
	clientsRoute = ""
	kickReason = ""
	pingInterval, pingOff = 0, false
	queueEnable, queueDisable, queueClear = false, false, false
	queueMaxEntries, queueMaxAge = 0, 0
	searchOp = ""
	globalTTL = 0
}

// run executes the root command with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	url := adminURL
	t.Cleanup(func() {
		resetFlags()
		adminURL = DefaultAdminURL
	})
	resetFlags()

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(append(args, "--admin-url", url))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := rootCmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestVersion_JSON(t *testing.T) {
	out, err := run(t, "version", "--json")
	require.NoError(t, err)

	var v VersionOutput
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	assert.NotEmpty(t, v.Version)
	assert.NotEmpty(t, v.Go)
	assert.NotEmpty(t, v.OS)
	assert.NotEmpty(t, v.Arch)
}

func TestLoadServeConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wshub.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
websocket:
  listen: ":7000"
  messageType: text
log:
  level: debug
`), 0o600))

	cmd := &cobra.Command{Use: "serve"}
	f := &serveFlags{}
	addServeFlags(cmd, f)
	require.NoError(t, cmd.ParseFlags([]string{
		"--config", path,
		"--route", "/a/**,/b",
		"--max-connections", "10",
		"--allow-origin", "*.example.com",
	}))

	cfg, err := loadServeConfig(cmd, f)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.WebSocket.Listen, "file value kept when flag unset")
	assert.Equal(t, "text", cfg.WebSocket.MessageType)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"/a/**", "/b"}, cfg.WebSocket.Routes)
	assert.Equal(t, 10, cfg.WebSocket.MaxConnections)
	assert.Equal(t, []string{"*.example.com"}, cfg.WebSocket.OriginPatterns)
	assert.True(t, cfg.Admin.Enabled)
	assert.False(t, cfg.WebSocket.TLS.Enabled)
	assert.False(t, cfg.WebSocket.RateLimit.Enabled())
}

func TestLoadServeConfig_TLSAndRateLimit(t *testing.T) {
	cmd := &cobra.Command{Use: "serve"}
	f := &serveFlags{}
	addServeFlags(cmd, f)
	require.NoError(t, cmd.ParseFlags([]string{"--tls-auto", "--rate-limit", "2.5", "--rate-burst", "5"}))

	cfg, err := loadServeConfig(cmd, f)
	require.NoError(t, err)
	assert.True(t, cfg.WebSocket.TLS.Enabled)
	assert.True(t, cfg.WebSocket.TLS.AutoGenerate)
	assert.Equal(t, 2.5, cfg.WebSocket.RateLimit.Rate)
	assert.Equal(t, 5, cfg.WebSocket.RateLimit.Burst)

	cmd = &cobra.Command{Use: "serve"}
	f = &serveFlags{}
	addServeFlags(cmd, f)
	require.NoError(t, cmd.ParseFlags([]string{"--tls-cert", "hub.pem"}))
	_, err = loadServeConfig(cmd, f)
	require.Error(t, err, "a certificate needs its key")
}

func TestLoadServeConfig_NoAdminAndInvalid(t *testing.T) {
	cmd := &cobra.Command{Use: "serve"}
	var errOut bytes.Buffer
	cmd.SetErr(&errOut)
	f := &serveFlags{}
	addServeFlags(cmd, f)
	require.NoError(t, cmd.ParseFlags([]string{"--no-admin", "--admin-listen", "bogus"}))

	cfg, err := loadServeConfig(cmd, f)
	require.NoError(t, err)
	assert.False(t, cfg.Admin.Enabled)
	assert.Contains(t, errOut.String(), "ignored")

	cmd = &cobra.Command{Use: "serve"}
	f = &serveFlags{}
	addServeFlags(cmd, f)
	require.NoError(t, cmd.ParseFlags([]string{"--message-type", "xml"}))
	_, err = loadServeConfig(cmd, f)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "websocket.messageType")
}

func TestCutHeader(t *testing.T) {
	tests := []struct {
		in     string
		k, v   string
		wantOK bool
	}{
		{"Authorization: Bearer x", "Authorization", "Bearer x", true},
		{"X-Trace:abc", "X-Trace", "abc", true},
		{"X-Empty:", "X-Empty", "", true},
		{"no-colon", "no-colon", "", false},
		{": value", "", "value", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			k, v, ok := cutHeader(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.k, k)
				assert.Equal(t, tt.v, v)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.json")
	require.NoError(t, os.WriteFile(good, []byte(`{"websocket":{"listen":":5001"}}`), 0o600))
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("websocket:\n  maxMessageSize: -1\n"), 0o600))

	out, err := run(t, "config", "validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, "ok")

	out, err = run(t, "config", "validate", bad, "--json")
	require.Error(t, err)
	var res ValidateResult
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	assert.False(t, res.Valid)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "websocket.maxMessageSize")
}

func TestConfigPrint(t *testing.T) {
	out, err := run(t, "config", "print")
	require.NoError(t, err)
	assert.Contains(t, out, "websocket:")
	assert.Contains(t, out, "messageType: binary")

	out, err = run(t, "config", "print", "--json")
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &m), out)
	assert.Contains(t, m, "websocket")
}

func TestStatusAndHealth(t *testing.T) {
	reg := startAdmin(t)
	_, err := reg.Open("/chat", &recordingTransport{}, "")
	require.NoError(t, err)

	out, err := run(t, "status", "--json")
	require.NoError(t, err)
	var st admin.StatusResponse
	require.NoError(t, json.Unmarshal([]byte(out), &st), out)
	assert.Equal(t, "9.9.9", st.Version)
	assert.Equal(t, 1, st.Registry.Connections)

	out, err = run(t, "health")
	require.NoError(t, err)
	assert.Equal(t, "healthy\n", out)
}

func TestHealth_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	ts.Close()
	adminURL = ts.URL

	out, err := run(t, "health", "--json")
	require.Error(t, err)
	assert.Contains(t, out, `"unhealthy"`)
}

func TestClientsCommands(t *testing.T) {
	reg := startAdmin(t)
	chat := &recordingTransport{}
	game := &recordingTransport{}
	_, err := reg.Open("/chat", chat, "")
	require.NoError(t, err)
	_, err = reg.Open("/game", game, "")
	require.NoError(t, err)

	out, err := run(t, "clients", "list")
	require.NoError(t, err)
	assert.Equal(t, "c1\nc2\n", out)

	out, err = run(t, "clients", "list", "--route", "/game", "--json")
	require.NoError(t, err)
	var ids []string
	require.NoError(t, json.Unmarshal([]byte(out), &ids))
	assert.Equal(t, []string{"c2"}, ids)

	_, err = run(t, "clients", "send", "c1", "hi")
	require.NoError(t, err)
	assert.Equal(t, []string{"hi"}, chat.written())

	out, err = run(t, "clients", "broadcast", "all")
	require.NoError(t, err)
	assert.Contains(t, out, "sent to 2")
	assert.Equal(t, []string{"all"}, game.written())

	_, err = run(t, "clients", "tag", "c1", "vip", "grp_a")
	require.NoError(t, err)
	out, err = run(t, "clients", "match", "grp_*&vip")
	require.NoError(t, err)
	assert.Equal(t, "c1\n", out)

	_, err = run(t, "clients", "untag", "c1", "vip")
	require.NoError(t, err)
	out, err = run(t, "clients", "match", "vip")
	require.NoError(t, err)
	assert.Empty(t, strings.TrimSpace(out))

	out, err = run(t, "clients", "show", "c1")
	require.NoError(t, err)
	assert.Contains(t, out, "/chat")
	assert.Contains(t, out, "grp_a")

	_, err = run(t, "clients", "rename", "c1", "alice")
	require.NoError(t, err)
	_, err = run(t, "clients", "rename", "alice", "bob")
	require.Error(t, err, "a connection can be renamed only once")

	_, err = run(t, "clients", "kick", "alice", "--reason", "bye")
	require.NoError(t, err)
	_, err = run(t, "clients", "show", "alice")
	require.Error(t, err)
	assert.Eventually(t, func() bool {
		chat.mu.Lock()
		defer chat.mu.Unlock()
		return chat.reason == "bye"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRunListen(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var gotHeader atomic.Value
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader.Store(r.Header.Get("X-Room"))
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}
		_ = c.WriteMessage(websocket.TextMessage, append([]byte("echo:"), msg...))
		_ = c.WriteMessage(websocket.BinaryMessage, []byte("second"))
		_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
		_, _, _ = c.ReadMessage()
	}))
	defer ts.Close()

	var out, errOut bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	err := runListen(context.Background(), cmd, url, &listenFlags{
		send:    []string{"hello"},
		timeout: 5 * time.Second,
		headers: []string{"X-Room: lobby"},
	})
	require.NoError(t, err)
	assert.Equal(t, "echo:hello\nsecond\n", out.String())
	assert.Contains(t, errOut.String(), "closed by server: 1000 done")
	assert.Equal(t, "lobby", gotHeader.Load())
}

func TestRunListen_BadHeader(t *testing.T) {
	err := runListen(context.Background(), &cobra.Command{}, "ws://127.0.0.1:1/", &listenFlags{
		headers: []string{"broken"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid header")
}

func TestClientsStateCommands(t *testing.T) {
	reg := startAdmin(t)
	chat := &recordingTransport{}
	_, err := reg.Open("/chat", chat, "")
	require.NoError(t, err)
	_, err = reg.Open("/game", &recordingTransport{}, "")
	require.NoError(t, err)

	out, err := run(t, "clients", "count")
	require.NoError(t, err)
	assert.Equal(t, "2\n", out)
	out, err = run(t, "clients", "count", "--route", "/game", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":1}`, out)

	_, err = run(t, "clients", "tag", "c1", "vip")
	require.NoError(t, err)
	_, err = run(t, "clients", "tag", "c2", "vip", "muted")
	require.NoError(t, err)

	out, err = run(t, "clients", "tags")
	require.NoError(t, err)
	assert.Equal(t, "muted\nvip\n", out)
	out, err = run(t, "clients", "tags", "c2")
	require.NoError(t, err)
	assert.Contains(t, out, "muted")
	out, err = run(t, "clients", "tagged", "vip")
	require.NoError(t, err)
	assert.Equal(t, "c1\nc2\n", out)

	out, err = run(t, "clients", "send-tag", "vip", "to vips", "--route", "/chat")
	require.NoError(t, err)
	assert.Contains(t, out, "sent to 1")
	out, err = run(t, "clients", "send-match", "vip&!muted", "unmuted")
	require.NoError(t, err)
	assert.Contains(t, out, "sent to 1")
	assert.Equal(t, []string{"to vips", "unmuted"}, chat.written())

	_, err = run(t, "clients", "info", "set", "c1", "user", "alice")
	require.NoError(t, err)
	out, err = run(t, "clients", "info", "get", "c1", "user")
	require.NoError(t, err)
	assert.Equal(t, "alice\n", out)
	out, err = run(t, "clients", "info", "search", "user", "ALI", "--op", "iprefix")
	require.NoError(t, err)
	assert.Equal(t, "c1\n", out)
	_, err = run(t, "clients", "info", "rm", "c1", "user")
	require.NoError(t, err)
	_, err = run(t, "clients", "info", "get", "c1", "user")
	require.Error(t, err)

	out, err = run(t, "clients", "ping", "c1", "--interval", "1m")
	require.NoError(t, err)
	assert.Contains(t, out, "last ping")
	out, err = run(t, "clients", "ping", "c1", "--off")
	require.NoError(t, err)
	assert.Contains(t, out, "ping disabled")

	_, err = run(t, "clients", "queue", "c1", "--enable", "--max-entries", "5")
	require.NoError(t, err)
	_, err = run(t, "clients", "send", "c1", "logged")
	require.NoError(t, err)
	out, err = run(t, "clients", "queue", "c1")
	require.NoError(t, err)
	assert.Contains(t, out, "counter 1")
	assert.Contains(t, out, "logged")
	_, err = run(t, "clients", "queue", "c1", "--enable", "--disable")
	require.Error(t, err)

	_, err = run(t, "clients", "ghost", "c1")
	require.NoError(t, err)
	reg.Disconnect("c1", nil)
	out, err = run(t, "clients", "count")
	require.NoError(t, err)
	assert.Equal(t, "2\n", out)
	_, err = run(t, "clients", "unghost", "c1")
	require.NoError(t, err)
	out, err = run(t, "clients", "count")
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)
}

func TestGlobalCommands(t *testing.T) {
	startAdmin(t)

	_, err := run(t, "global", "set", "motd", "hello")
	require.NoError(t, err)
	out, err := run(t, "global", "get", "motd")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out)
	out, err = run(t, "global", "exists", "motd", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"motd","exists":true}`, out)

	_, err = run(t, "global", "set", "flash", "x", "--ttl", "20ms")
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)
	out, err = run(t, "global", "exists", "flash")
	require.NoError(t, err)
	assert.Equal(t, "false\n", out)

	_, err = run(t, "global", "rm", "motd")
	require.NoError(t, err)
	_, err = run(t, "global", "get", "motd")
	require.Error(t, err)
}
