package cli

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

type listenFlags struct {
	send     []string
	count    int
	timeout  time.Duration
	headers  []string
	insecure bool
}

var listenFlagVals listenFlags

// ListenMessage is one received frame in --json mode.
type ListenMessage struct {
	Type    string    `json:"type"`
	Payload string    `json:"payload"`
	Time    time.Time `json:"time"`
}

var listenCmd = &cobra.Command{
	Use:   "listen <ws-url>",
	Short: "Connect to a hub as a client and print what it receives",
	Example: `  # Print every message sent to this client
  wshub listen ws://localhost:5000/chat/lobby

  # Send a greeting, wait for one reply, then exit
  wshub listen ws://localhost:5000/chat --send hello --count 1`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runListen(ctx, cmd, args[0], &listenFlagVals)
	},
}

func runListen(ctx context.Context, cmd *cobra.Command, url string, f *listenFlags) error {
	header := http.Header{}
	for _, h := range f.headers {
		k, v, ok := cutHeader(h)
		if !ok {
			return fmt.Errorf("invalid header %q, want Name: value", h)
		}
		header.Add(k, v)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second
	if f.insecure {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for self-signed hubs
	}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("connect %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return fmt.Errorf("connect %s: %w", url, err)
	}
	defer conn.Close()

	if !jsonOutput {
		fmt.Fprintf(cmd.ErrOrStderr(), "connected to %s\n", url)
	}

	for _, msg := range f.send {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			return fmt.Errorf("send: %w", err)
		}
	}

	// Unblock the read when ctx ends.
	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(time.Second))
		_ = conn.SetReadDeadline(time.Now())
	}()

	if f.timeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(f.timeout))
	}

	received := 0
	for f.count <= 0 || received < f.count {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			switch {
			case errors.As(err, &ce):
				if !jsonOutput {
					fmt.Fprintf(cmd.ErrOrStderr(), "closed by server: %d %s\n", ce.Code, ce.Text)
				}
				return nil
			case ctx.Err() != nil:
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		received++

		msg := ListenMessage{Type: "binary", Payload: string(data), Time: time.Now().UTC()}
		if typ == websocket.TextMessage {
			msg.Type = "text"
		}
		if err := printResult(cmd, msg, func() {
			fmt.Fprintln(cmd.OutOrStdout(), msg.Payload)
		}); err != nil {
			return err
		}
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return nil
}

func cutHeader(h string) (string, string, bool) {
	k, v, ok := strings.Cut(h, ":")
	k = strings.TrimSpace(k)
	return k, strings.TrimSpace(v), ok && k != ""
}

func init() {
	f := &listenFlagVals
	listenCmd.Flags().StringArrayVarP(&f.send, "send", "s", nil, "Text message to send after connecting (repeatable)")
	listenCmd.Flags().IntVarP(&f.count, "count", "n", 0, "Exit after this many messages (0 = until closed)")
	listenCmd.Flags().DurationVar(&f.timeout, "timeout", 0, "Give up reading after this long (0 = no limit)")
	listenCmd.Flags().StringArrayVarP(&f.headers, "header", "H", nil, "Extra handshake header, Name: value (repeatable)")
	listenCmd.Flags().BoolVarP(&f.insecure, "insecure", "k", false, "Skip TLS certificate verification for wss URLs")
	rootCmd.AddCommand(listenCmd)
}
