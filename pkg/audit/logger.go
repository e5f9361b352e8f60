package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// ErrClosed is returned by Log after Close.
var ErrClosed = errors.New("audit: logger is closed")

// Logger records journal entries. Implementations must be safe for
// concurrent use.
type Logger interface {
	Log(entry Entry) error
	Close() error
}

// NopLogger discards every entry.
type NopLogger struct{}

// Log discards the entry.
func (NopLogger) Log(Entry) error { return nil }

// Close does nothing.
func (NopLogger) Close() error { return nil }

// WriterLogger encodes entries as JSON lines on a writer and assigns
// sequence numbers starting at 1.
type WriterLogger struct {
	mu       sync.Mutex
	enc      *json.Encoder
	closer   io.Closer
	sequence int64
	closed   bool
}

// NewWriterLogger writes to w. Close closes w when it is an io.Closer
// other than os.Stdout.
func NewWriterLogger(w io.Writer) *WriterLogger {
	l := &WriterLogger{enc: json.NewEncoder(w)}
	if c, ok := w.(io.Closer); ok && w != os.Stdout {
		l.closer = c
	}
	return l
}

// NewFileLogger appends to the file at path, creating it and its directory.
func NewFileLogger(path string) (*WriterLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("audit: create directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit: open log file: %w", err)
	}
	return NewWriterLogger(f), nil
}

// Log writes entry with the next sequence number.
func (l *WriterLogger) Log(entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.sequence++
	entry.Sequence = l.sequence
	if err := l.enc.Encode(entry); err != nil {
		return fmt.Errorf("audit: encode entry: %w", err)
	}
	return nil
}

// Close stops the logger and closes the underlying file, if any.
func (l *WriterLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if l.closer == nil {
		return nil
	}
	if f, ok := l.closer.(*os.File); ok {
		_ = f.Sync()
	}
	return l.closer.Close()
}

// Options selects the journal output.
type Options struct {
	// Output is a file path, or "-" for stdout. Empty disables the journal.
	Output string
}

// NewLogger returns a Logger for o: NopLogger when Output is empty.
func NewLogger(o Options) (Logger, error) {
	switch o.Output {
	case "":
		return NopLogger{}, nil
	case "-":
		return NewWriterLogger(os.Stdout), nil
	default:
		return NewFileLogger(o.Output)
	}
}
