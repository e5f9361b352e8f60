package audit

import (
	"time"
	"unicode/utf8"

	"github.com/getmockd/wshub/pkg/events"
)

// Entry is one journal record.
type Entry struct {
	Sequence       int64     `json:"sequence"`
	Timestamp      time.Time `json:"timestamp"`
	Event          string    `json:"event"`
	ConnectionID   string    `json:"connectionId"`
	Route          string    `json:"route,omitempty"`
	RemoteAddr     string    `json:"remoteAddr,omitempty"`
	PayloadSize    int       `json:"payloadSize,omitempty"`
	PayloadPreview string    `json:"payloadPreview,omitempty"`
	Error          string    `json:"error,omitempty"`
}

// FromEvent converts ev. Up to preview bytes of the payload are kept,
// cut back to a rune boundary; zero keeps none.
func FromEvent(ev events.Event, preview int) Entry {
	e := Entry{
		Timestamp:    ev.Time,
		Event:        string(ev.Type),
		ConnectionID: ev.ConnectionID,
		Route:        ev.Route,
		RemoteAddr:   ev.RemoteAddr,
		PayloadSize:  len(ev.Payload),
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if ev.Err != nil {
		e.Error = ev.Err.Error()
	}
	if preview > 0 && len(ev.Payload) > 0 {
		p := ev.Payload
		if len(p) > preview {
			p = p[:preview]
			for len(p) > 0 && !utf8.Valid(p) {
				p = p[:len(p)-1]
			}
		}
		e.PayloadPreview = string(p)
	}
	return e
}
