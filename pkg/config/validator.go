package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/getmockd/wshub/pkg/events"
	"github.com/getmockd/wshub/pkg/ratelimit"
)

// ValidationError describes one invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationErrors collects every invalid field of a Config.
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, v := range e {
		msgs[i] = v.Error()
	}
	return strings.Join(msgs, "; ")
}

// Unwrap exposes the individual errors to errors.As.
func (e ValidationErrors) Unwrap() []error {
	out := make([]error, len(e))
	for i, v := range e {
		out[i] = v
	}
	return out
}

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "warning": true, "error": true,
}

// Validate checks every field and returns ValidationErrors, or nil.
func (c *Config) Validate() error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	ws := c.WebSocket
	if err := validateListen(ws.Listen); err != nil {
		add("websocket.listen", "%v", err)
	}
	if len(ws.Routes) == 0 {
		add("websocket.routes", "at least one route pattern is required")
	}
	for i, route := range ws.Routes {
		switch {
		case !strings.HasPrefix(route, "/"):
			add(fmt.Sprintf("websocket.routes[%d]", i), "must start with '/': %q", route)
		case !doublestar.ValidatePattern(route):
			add(fmt.Sprintf("websocket.routes[%d]", i), "invalid glob pattern: %q", route)
		}
	}
	if ws.MaxConnections < 0 {
		add("websocket.maxConnections", "must not be negative")
	}
	if ws.MaxMessageSize <= 0 {
		add("websocket.maxMessageSize", "must be positive")
	}
	if ws.MessageType != MessageTypeBinary && ws.MessageType != MessageTypeText {
		add("websocket.messageType", "must be %q or %q, got %q", MessageTypeBinary, MessageTypeText, ws.MessageType)
	}
	if ws.WriteTimeout < 0 {
		add("websocket.writeTimeout", "must not be negative")
	}
	for i, p := range ws.OriginPatterns {
		if p == "" || !doublestar.ValidatePattern(p) {
			add(fmt.Sprintf("websocket.originPatterns[%d]", i), "invalid origin pattern: %q", p)
		}
	}
	if ws.RateLimit.Rate < 0 {
		add("websocket.rateLimit.rate", "must not be negative")
	}
	if ws.RateLimit.Burst < 0 {
		add("websocket.rateLimit.burst", "must not be negative")
	}
	if _, err := ratelimit.ParseProxies(ws.RateLimit.TrustedProxies); err != nil {
		add("websocket.rateLimit.trustedProxies", "%v", err)
	}
	if t := ws.TLS; t.Enabled {
		switch {
		case (t.CertFile == "") != (t.KeyFile == ""):
			add("websocket.tls", "certFile and keyFile must be set together")
		case t.CertFile == "" && !t.AutoGenerate:
			add("websocket.tls", "certFile and keyFile are required unless autoGenerate is set")
		}
	}

	if c.Admin.Enabled {
		if err := validateListen(c.Admin.Listen); err != nil {
			add("admin.listen", "%v", err)
		}
	}

	reg := c.Registry
	if reg.EventBuffer <= 0 {
		add("registry.eventBuffer", "must be positive")
	}
	if reg.BeforeCloseTimeout <= 0 {
		add("registry.beforeCloseTimeout", "must be positive")
	}
	if reg.FanoutConcurrency <= 0 {
		add("registry.fanoutConcurrency", "must be positive")
	}
	if reg.PingTimeout <= 0 {
		add("registry.pingTimeout", "must be positive")
	}
	if reg.QueueMaxEntries <= 0 {
		add("registry.queueMaxEntries", "must be positive")
	}

	if c.Global.SweepInterval <= 0 {
		add("global.sweepInterval", "must be positive")
	}

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		add("log.level", "unknown level %q", c.Log.Level)
	}
	if f := strings.ToLower(c.Log.Format); f != "text" && f != "json" {
		add("log.format", "must be text or json, got %q", c.Log.Format)
	}

	if a := c.Audit; a.Enabled {
		if a.Output == "" {
			add("audit.output", "required when the audit journal is enabled")
		}
		for i, name := range a.Events {
			if !events.ValidType(events.Type(name)) {
				add(fmt.Sprintf("audit.events[%d]", i), "unknown event %q", name)
			}
		}
		if a.PayloadPreview < 0 {
			add("audit.payloadPreview", "must not be negative")
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

func validateListen(addr string) error {
	if addr == "" {
		return fmt.Errorf("address is required")
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}
	return nil
}
