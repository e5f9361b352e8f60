// Package ratelimit limits how often each client address may open a
// WebSocket connection. Every address owns a token bucket that refills at
// Rate tokens per second up to Burst tokens.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/getmockd/wshub/pkg/logging"
)

// DefaultEntryTTL is how long an idle address keeps its bucket.
const DefaultEntryTTL = time.Minute

// Config configures a Limiter.
type Config struct {
	// Rate is the refill rate in tokens per second. Must be positive.
	Rate float64
	// Burst is the bucket capacity. Zero means ceil(Rate), at least 1.
	Burst int
	// TrustedProxies lists CIDR ranges or single addresses whose
	// X-Forwarded-For and X-Real-IP headers are believed.
	TrustedProxies []string
	// EntryTTL drops buckets idle for longer than this on Sweep.
	EntryTTL time.Duration
}

type bucket struct {
	tokens float64
	last   time.Time
}

// Limiter is a per-address token bucket limiter. It is safe for concurrent
// use.
type Limiter struct {
	rate     float64
	burst    float64
	entryTTL time.Duration
	proxies  []*net.IPNet
	now      func() time.Time
	log      *slog.Logger

	mu      sync.Mutex
	buckets map[string]*bucket
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets the logger used by Run.
func WithLogger(log *slog.Logger) Option {
	return func(l *Limiter) {
		if log != nil {
			l.log = log
		}
	}
}

// New builds a Limiter. It fails on a non-positive rate or an unparsable
// trusted proxy.
func New(cfg Config, opts ...Option) (*Limiter, error) {
	if cfg.Rate <= 0 || math.IsInf(cfg.Rate, 0) || math.IsNaN(cfg.Rate) {
		return nil, fmt.Errorf("ratelimit: rate must be positive, got %v", cfg.Rate)
	}
	burst := float64(cfg.Burst)
	if burst <= 0 {
		burst = math.Max(1, math.Ceil(cfg.Rate))
	}
	proxies, err := ParseProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}
	l := &Limiter{
		rate:     cfg.Rate,
		burst:    burst,
		entryTTL: cfg.EntryTTL,
		proxies:  proxies,
		now:      time.Now,
		log:      logging.Nop(),
		buckets:  make(map[string]*bucket),
	}
	if l.entryTTL <= 0 {
		l.entryTTL = DefaultEntryTTL
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// ParseProxies parses CIDR ranges and single IP addresses.
func ParseProxies(specs []string) ([]*net.IPNet, error) {
	var out []*net.IPNet
	for _, spec := range specs {
		spec = strings.TrimSpace(spec)
		if _, network, err := net.ParseCIDR(spec); err == nil {
			out = append(out, network)
			continue
		}
		ip := net.ParseIP(spec)
		if ip == nil {
			return nil, fmt.Errorf("ratelimit: invalid trusted proxy %q", spec)
		}
		bits := 128
		if ip.To4() != nil {
			ip, bits = ip.To4(), 32
		}
		out = append(out, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return out, nil
}

// Burst returns the bucket capacity.
func (l *Limiter) Burst() int { return int(l.burst) }

// Allow takes one token from key's bucket. When the bucket is empty it
// returns false and how long until a token is available.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.burst, last: now}
		l.buckets[key] = b
	}
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens = math.Min(l.burst, b.tokens+elapsed*l.rate)
	}
	b.last = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	wait := time.Duration((1 - b.tokens) / l.rate * float64(time.Second))
	return false, wait
}

// Len returns the number of tracked addresses.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Sweep drops buckets idle for longer than the entry TTL and returns how
// many were dropped.
func (l *Limiter) Sweep() int {
	cutoff := l.now().Add(-l.entryTTL)

	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for key, b := range l.buckets {
		if b.last.Before(cutoff) {
			delete(l.buckets, key)
			n++
		}
	}
	return n
}

// Run sweeps idle buckets every entry TTL until ctx is done.
func (l *Limiter) Run(ctx context.Context) {
	ticker := time.NewTicker(l.entryTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Sweep(); n > 0 {
				l.log.Debug("swept idle rate limit buckets", "count", n)
			}
		}
	}
}

// ClientIP returns the address r came from. Forwarding headers are only
// honoured when the peer is a trusted proxy.
func (l *Limiter) ClientIP(r *http.Request) string {
	return ClientIP(r, l.proxies)
}

// ClientIP returns the peer address of r, or the first X-Forwarded-For
// entry (then X-Real-IP) when the peer is in proxies.
func ClientIP(r *http.Request, proxies []*net.IPNet) string {
	remote := r.RemoteAddr
	if host, _, err := net.SplitHostPort(remote); err == nil {
		remote = host
	}
	if !trusted(remote, proxies) {
		return remote
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); net.ParseIP(ip) != nil {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(ip) != nil {
		return ip
	}
	return remote
}

func trusted(addr string, proxies []*net.IPNet) bool {
	if len(proxies) == 0 {
		return false
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, network := range proxies {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
