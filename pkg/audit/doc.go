// Package audit writes a journal of connection lifecycle events as JSON
// lines, one Entry per event, each stamped with a sequence number.
//
// The journal plugs into the event dispatcher as an events.Handler:
//
//	l, err := audit.NewLogger(audit.Options{Output: "/var/log/wshub/audit.jsonl"})
//	if err != nil {
//		return err
//	}
//	defer l.Close()
//	handler := audit.Handler(l, audit.WithEvents(events.TypeOpen, events.TypeClose))
//
// Output "-" writes to stdout. Message payloads are not recorded unless a
// preview length is set, and then only their first bytes.
package audit
