package metrics

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// ErrLabelCountMismatch is returned when the number of label values doesn't match the defined labels.
var ErrLabelCountMismatch = errors.New("label count mismatch")

// ErrDuplicateMetric is returned when registering a metric with a name that is already registered.
var ErrDuplicateMetric = errors.New("duplicate metric name")

// atomicFloat64 stores the bits of a float64 in a uint64 for atomic access.
type atomicFloat64 struct {
	bits atomic.Uint64
}

func (a *atomicFloat64) Load() float64 { return math.Float64frombits(a.bits.Load()) }

func (a *atomicFloat64) Store(v float64) { a.bits.Store(math.Float64bits(v)) }

func (a *atomicFloat64) Add(delta float64) {
	for {
		old := a.bits.Load()
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if a.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

// MetricType represents the type of a metric.
type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeGauge     MetricType = "gauge"
	MetricTypeHistogram MetricType = "histogram"
)

// Metric is the interface implemented by all metric types.
type Metric interface {
	Name() string
	Help() string
	Type() MetricType
	// Collect returns all metric samples for exposition.
	Collect() []Sample
}

// Sample represents a single metric sample with labels.
type Sample struct {
	Name   string
	Labels map[string]string
	Value  float64
}

// family holds one child per distinct label-value combination.
type family[T any] struct {
	name       string
	help       string
	labelNames []string

	mu       sync.RWMutex
	children map[string]*child[T]
	newValue func() *T
}

type child[T any] struct {
	labels map[string]string
	value  *T
}

func newFamily[T any](name, help string, labelNames []string, newValue func() *T) *family[T] {
	return &family[T]{
		name:       name,
		help:       help,
		labelNames: labelNames,
		children:   make(map[string]*child[T]),
		newValue:   newValue,
	}
}

func (f *family[T]) get(values []string) (*T, error) {
	if len(values) != len(f.labelNames) {
		return nil, fmt.Errorf("%w: %s expected %d labels, got %d", ErrLabelCountMismatch, f.name, len(f.labelNames), len(values))
	}
	key := strings.Join(values, "\x00")

	f.mu.RLock()
	c, ok := f.children[key]
	f.mu.RUnlock()
	if ok {
		return c.value, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok = f.children[key]; ok {
		return c.value, nil
	}
	labels := make(map[string]string, len(values))
	for i, n := range f.labelNames {
		labels[n] = values[i]
	}
	c = &child[T]{labels: labels, value: f.newValue()}
	f.children[key] = c
	return c.value, nil
}

func (f *family[T]) each(fn func(labels map[string]string, v *T)) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	keys := make([]string, 0, len(f.children))
	for k := range f.children {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		c := f.children[k]
		fn(c.labels, c.value)
	}
}

// Counter is a monotonically increasing metric.
type Counter struct {
	*family[atomicFloat64]
}

func (c *Counter) Name() string      { return c.name }
func (c *Counter) Help() string      { return c.help }
func (c *Counter) Type() MetricType  { return MetricTypeCounter }
func (c *Counter) Collect() []Sample { return collectScalar(c.family) }

// Inc adds one to the child selected by values. A label mismatch is
// reported as an error and nothing is counted.
func (c *Counter) Inc(values ...string) error {
	return c.Add(1, values...)
}

// Add adds delta to the child selected by values. Negative deltas are ignored.
func (c *Counter) Add(delta float64, values ...string) error {
	v, err := c.get(values)
	if err != nil {
		return err
	}
	if delta > 0 {
		v.Add(delta)
	}
	return nil
}

// Value returns the current value of the child selected by values.
func (c *Counter) Value(values ...string) float64 {
	v, err := c.get(values)
	if err != nil {
		return 0
	}
	return v.Load()
}

// Gauge is a metric that can go up and down.
type Gauge struct {
	*family[atomicFloat64]
}

func (g *Gauge) Name() string      { return g.name }
func (g *Gauge) Help() string      { return g.help }
func (g *Gauge) Type() MetricType  { return MetricTypeGauge }
func (g *Gauge) Collect() []Sample { return collectScalar(g.family) }

// Set sets the child selected by values.
func (g *Gauge) Set(value float64, values ...string) error {
	v, err := g.get(values)
	if err != nil {
		return err
	}
	v.Store(value)
	return nil
}

// Add adds delta, which may be negative, to the child selected by values.
func (g *Gauge) Add(delta float64, values ...string) error {
	v, err := g.get(values)
	if err != nil {
		return err
	}
	v.Add(delta)
	return nil
}

// Value returns the current value of the child selected by values.
func (g *Gauge) Value(values ...string) float64 {
	v, err := g.get(values)
	if err != nil {
		return 0
	}
	return v.Load()
}

func collectScalar(f *family[atomicFloat64]) []Sample {
	var out []Sample
	f.each(func(labels map[string]string, v *atomicFloat64) {
		out = append(out, Sample{Name: f.name, Labels: labels, Value: v.Load()})
	})
	return out
}

// Histogram tracks the distribution of observed values.
type Histogram struct {
	*family[histogramValue]
	buckets []float64
}

type histogramValue struct {
	counts []atomic.Uint64
	sum    atomicFloat64
	count  atomic.Uint64
}

func (h *Histogram) Name() string     { return h.name }
func (h *Histogram) Help() string     { return h.help }
func (h *Histogram) Type() MetricType { return MetricTypeHistogram }

// Observe records value in the child selected by values.
func (h *Histogram) Observe(value float64, values ...string) error {
	hv, err := h.get(values)
	if err != nil {
		return err
	}
	for i, b := range h.buckets {
		if value <= b {
			hv.counts[i].Add(1)
		}
	}
	hv.sum.Add(value)
	hv.count.Add(1)
	return nil
}

// Collect returns cumulative bucket, sum and count samples.
func (h *Histogram) Collect() []Sample {
	var out []Sample
	h.each(func(labels map[string]string, hv *histogramValue) {
		for i, b := range h.buckets {
			out = append(out, Sample{
				Name:   h.name + "_bucket",
				Labels: withLabel(labels, "le", formatFloat(b)),
				Value:  float64(hv.counts[i].Load()),
			})
		}
		out = append(out,
			Sample{Name: h.name + "_bucket", Labels: withLabel(labels, "le", "+Inf"), Value: float64(hv.count.Load())},
			Sample{Name: h.name + "_sum", Labels: labels, Value: hv.sum.Load()},
			Sample{Name: h.name + "_count", Labels: labels, Value: float64(hv.count.Load())},
		)
	})
	return out
}

func withLabel(labels map[string]string, k, v string) map[string]string {
	out := make(map[string]string, len(labels)+1)
	for lk, lv := range labels {
		out[lk] = lv
	}
	out[k] = v
	return out
}

// Registry holds all registered metrics.
type Registry struct {
	mu      sync.RWMutex
	metrics []Metric
	names   map[string]struct{}
}

// NewRegistry creates a new metric registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// NewCounter creates and registers a new counter.
func (r *Registry) NewCounter(name, help string, labels ...string) *Counter {
	c := &Counter{newFamily(name, help, labels, func() *atomicFloat64 { return &atomicFloat64{} })}
	r.register(c)
	return c
}

// NewGauge creates and registers a new gauge.
func (r *Registry) NewGauge(name, help string, labels ...string) *Gauge {
	g := &Gauge{newFamily(name, help, labels, func() *atomicFloat64 { return &atomicFloat64{} })}
	r.register(g)
	return g
}

// NewHistogram creates and registers a new histogram with the given
// ascending buckets.
func (r *Registry) NewHistogram(name, help string, buckets []float64, labels ...string) *Histogram {
	b := append([]float64(nil), buckets...)
	sort.Float64s(b)
	h := &Histogram{
		family: newFamily(name, help, labels, func() *histogramValue {
			return &histogramValue{counts: make([]atomic.Uint64, len(b))}
		}),
		buckets: b,
	}
	r.register(h)
	return h
}

// register panics on a duplicate name, since duplicates produce invalid
// exposition output.
func (r *Registry) register(m Metric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.names[m.Name()]; exists {
		panic(fmt.Sprintf("%s: %s", ErrDuplicateMetric, m.Name()))
	}
	r.names[m.Name()] = struct{}{}
	r.metrics = append(r.metrics, m)
}

// WriteTo writes every metric with at least one sample in text format.
func (r *Registry) WriteTo(w io.Writer) (int64, error) {
	r.mu.RLock()
	ms := append([]Metric(nil), r.metrics...)
	r.mu.RUnlock()

	var b strings.Builder
	for _, m := range ms {
		samples := m.Collect()
		if len(samples) == 0 {
			continue
		}
		fmt.Fprintf(&b, "# HELP %s %s\n", m.Name(), escapeHelp(m.Help()))
		fmt.Fprintf(&b, "# TYPE %s %s\n", m.Name(), m.Type())
		for _, s := range samples {
			if len(s.Labels) == 0 {
				fmt.Fprintf(&b, "%s %s\n", s.Name, formatFloat(s.Value))
				continue
			}
			fmt.Fprintf(&b, "%s{%s} %s\n", s.Name, formatLabels(s.Labels), formatFloat(s.Value))
		}
	}
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

// Handler returns an http.Handler that serves the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = r.WriteTo(w)
	})
}

func formatLabels(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + `="` + escapeLabelValue(labels[k]) + `"`
	}
	return strings.Join(parts, ",")
}

func formatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	case v == math.Trunc(v) && math.Abs(v) < 1e15:
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%g", v)
}

func escapeHelp(s string) string {
	return strings.NewReplacer(`\`, `\\`, "\n", `\n`).Replace(s)
}

func escapeLabelValue(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`).Replace(s)
}

// LatencyBuckets are histogram buckets in seconds for ping round trips and
// fan-out durations.
var LatencyBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
