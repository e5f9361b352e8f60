package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	ws "github.com/coder/websocket"

	"github.com/getmockd/wshub/pkg/registry"
)

// ErrSocketClosed is returned by writes on a closed socket.
var ErrSocketClosed = errors.New("socket closed")

// maxCloseReason is the longest close reason a control frame can carry.
const maxCloseReason = 123

// socket adapts a coder/websocket connection to registry.Transport.
type socket struct {
	conn    *ws.Conn
	msgType ws.MessageType
	ctx     context.Context
	cancel  context.CancelFunc

	// closeMu coordinates writes and pings with Close.
	closeMu sync.RWMutex
	closed  atomic.Bool
}

var _ registry.Transport = (*socket)(nil)

func newSocket(conn *ws.Conn, msgType ws.MessageType) *socket {
	ctx, cancel := context.WithCancel(context.Background())
	return &socket{conn: conn, msgType: msgType, ctx: ctx, cancel: cancel}
}

// Write sends p as one frame of the configured type.
func (s *socket) Write(ctx context.Context, p []byte) error {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed.Load() {
		return ErrSocketClosed
	}
	return s.conn.Write(ctx, s.msgType, p)
}

// Ping sends a ping frame and waits for the pong. The read loop must be
// running for the pong to be observed.
func (s *socket) Ping(ctx context.Context) error {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed.Load() {
		return ErrSocketClosed
	}
	return s.conn.Ping(ctx)
}

// Close sends a normal closure with reason and stops the read loop.
func (s *socket) Close(reason string) error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed.Swap(true) {
		return ErrSocketClosed
	}
	err := s.conn.Close(ws.StatusNormalClosure, truncateReason(reason))
	s.cancel()
	return err
}

// truncateReason cuts reason to maxCloseReason bytes on a rune boundary.
func truncateReason(reason string) string {
	if len(reason) <= maxCloseReason {
		return reason
	}
	n := maxCloseReason
	for n > 0 && !utf8.RuneStart(reason[n]) {
		n--
	}
	return reason[:n]
}

// abort tears the socket down without a close handshake.
func (s *socket) abort() {
	if s.closed.Swap(true) {
		return
	}
	s.cancel()
	_ = s.conn.CloseNow()
}

// read returns the next frame payload.
func (s *socket) read() ([]byte, error) {
	_, data, err := s.conn.Read(s.ctx)
	return data, err
}
