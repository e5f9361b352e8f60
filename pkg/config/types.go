package config

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root of the configuration file.
type Config struct {
	WebSocket WebSocketConfig `json:"websocket" yaml:"websocket"`
	Admin     AdminConfig     `json:"admin" yaml:"admin"`
	Registry  RegistryConfig  `json:"registry" yaml:"registry"`
	Global    GlobalConfig    `json:"global" yaml:"global"`
	Log       LogConfig       `json:"log" yaml:"log"`
	Audit     AuditConfig     `json:"audit" yaml:"audit"`
}

// WebSocketConfig configures the client-facing listener.
type WebSocketConfig struct {
	Listen string `json:"listen" yaml:"listen"`
	// Routes are doublestar glob patterns of accepted upgrade paths.
	Routes []string `json:"routes" yaml:"routes"`
	// MaxConnections caps concurrent sockets. Zero means unlimited.
	MaxConnections int   `json:"maxConnections" yaml:"maxConnections"`
	MaxMessageSize int64 `json:"maxMessageSize" yaml:"maxMessageSize"`
	// MessageType is the frame type of outbound messages: binary or text.
	MessageType  string   `json:"messageType" yaml:"messageType"`
	WriteTimeout Duration `json:"writeTimeout" yaml:"writeTimeout"`
	// OriginPatterns are host patterns allowed to upgrade cross-origin.
	// Empty accepts only same-host origins and clients sending no Origin.
	OriginPatterns []string        `json:"originPatterns,omitempty" yaml:"originPatterns,omitempty"`
	RateLimit      RateLimitConfig `json:"rateLimit" yaml:"rateLimit"`
	TLS            TLSConfig       `json:"tls" yaml:"tls"`
}

// RateLimitConfig limits upgrade attempts per client address. A zero Rate
// disables limiting.
type RateLimitConfig struct {
	Rate           float64  `json:"rate" yaml:"rate"`
	Burst          int      `json:"burst" yaml:"burst"`
	TrustedProxies []string `json:"trustedProxies,omitempty" yaml:"trustedProxies,omitempty"`
}

// Enabled reports whether upgrades are rate limited.
func (r RateLimitConfig) Enabled() bool { return r.Rate > 0 }

// TLSConfig serves the WebSocket listener over TLS (wss).
type TLSConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	CertFile string `json:"certFile,omitempty" yaml:"certFile,omitempty"`
	KeyFile  string `json:"keyFile,omitempty" yaml:"keyFile,omitempty"`
	// AutoGenerate creates a self-signed certificate, stored at CertFile and
	// KeyFile when they are set.
	AutoGenerate bool `json:"autoGenerate" yaml:"autoGenerate"`
}

// AdminConfig configures the REST admin API.
type AdminConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Listen  string `json:"listen" yaml:"listen"`
}

// RegistryConfig holds connection registry tunables.
type RegistryConfig struct {
	EventBuffer        int      `json:"eventBuffer" yaml:"eventBuffer"`
	BeforeCloseTimeout Duration `json:"beforeCloseTimeout" yaml:"beforeCloseTimeout"`
	FanoutConcurrency  int      `json:"fanoutConcurrency" yaml:"fanoutConcurrency"`
	PingTimeout        Duration `json:"pingTimeout" yaml:"pingTimeout"`
	QueueMaxEntries    int      `json:"queueMaxEntries" yaml:"queueMaxEntries"`
}

// GlobalConfig configures the process-wide key/value store.
type GlobalConfig struct {
	SweepInterval Duration `json:"sweepInterval" yaml:"sweepInterval"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// AuditConfig configures the connection event journal.
type AuditConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	// Output is a file path, or "-" for stdout.
	Output string `json:"output,omitempty" yaml:"output,omitempty"`
	// Events limits the journal to these event types. Empty records all.
	Events []string `json:"events,omitempty" yaml:"events,omitempty"`
	// PayloadPreview keeps up to this many bytes of each message payload.
	PayloadPreview int `json:"payloadPreview,omitempty" yaml:"payloadPreview,omitempty"`
}

// Message types.
const (
	MessageTypeBinary = "binary"
	MessageTypeText   = "text"
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		WebSocket: WebSocketConfig{
			Listen:         ":5000",
			Routes:         []string{"/**"},
			MaxMessageSize: 64 * 1024,
			MessageType:    MessageTypeBinary,
			WriteTimeout:   Duration(5 * time.Second),
		},
		Admin: AdminConfig{
			Enabled: true,
			Listen:  "127.0.0.1:2019",
		},
		Registry: RegistryConfig{
			EventBuffer:        1024,
			BeforeCloseTimeout: Duration(5 * time.Second),
			FanoutConcurrency:  32,
			PingTimeout:        Duration(10 * time.Second),
			QueueMaxEntries:    100,
		},
		Global: GlobalConfig{
			SweepInterval: Duration(30 * time.Second),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Duration is a time.Duration written as a duration string.
type Duration time.Duration

// D returns d as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// String returns the duration string.
func (d Duration) String() string { return time.Duration(d).String() }

// MarshalJSON encodes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return d.set(v)
}

// MarshalYAML encodes the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// UnmarshalYAML accepts a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	return d.set(v)
}

func (d *Duration) set(v any) error {
	switch val := v.(type) {
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", val, err)
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(time.Duration(val))
	case int:
		*d = Duration(time.Duration(val))
	default:
		return fmt.Errorf("invalid duration %v", v)
	}
	return nil
}
