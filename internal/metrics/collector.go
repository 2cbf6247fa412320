// Package metrics exposes dispatch counters in the Prometheus text exposition
// format.
package metrics

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the process-wide registry.
var Collector = NewCollector()

// Registry aggregates counters, gauges and histograms keyed by name and labels.
type Registry struct {
	mu         sync.Mutex
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
	startTime  time.Time
}

// NewCollector creates an empty registry.
func NewCollector() *Registry {
	return &Registry{
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
		startTime:  time.Now(),
	}
}

// Uptime returns how long the registry has existed.
func (r *Registry) Uptime() time.Duration {
	return time.Since(r.startTime)
}

type series struct {
	name   string
	help   string
	labels string
}

// Counter is a monotonically increasing counter.
type Counter struct {
	series
	value atomic.Int64
}

func (c *Counter) Inc()         { c.value.Add(1) }
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge is a value that can go up and down.
type Gauge struct {
	series
	value atomic.Int64
}

func (g *Gauge) Inc()         { g.value.Add(1) }
func (g *Gauge) Dec()         { g.value.Add(-1) }
func (g *Gauge) Value() int64 { return g.value.Load() }

// Histogram tracks a distribution over fixed upper bounds.
type Histogram struct {
	series
	mu      sync.Mutex
	count   int64
	sum     float64
	bounds  []float64
	buckets []int64
}

// Observe records one value.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, le := range h.bounds {
		if v <= le {
			h.buckets[i]++
		}
	}
}

// Count returns the number of observations.
func (h *Histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Labels renders label pairs in argument order: Labels("action", "send").
func Labels(kv ...string) string {
	parts := make([]string, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		parts = append(parts, fmt.Sprintf("%s=%q", kv[i], kv[i+1]))
	}
	return strings.Join(parts, ",")
}

func key(name, labels string) string { return name + "{" + labels + "}" }

// Counter returns or creates the counter for name and labels.
func (r *Registry) Counter(name, help, labels string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(name, labels)
	if c, ok := r.counters[k]; ok {
		return c
	}
	c := &Counter{series: series{name, help, labels}}
	r.counters[k] = c
	return c
}

// Gauge returns or creates the gauge for name and labels.
func (r *Registry) Gauge(name, help, labels string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(name, labels)
	if g, ok := r.gauges[k]; ok {
		return g
	}
	g := &Gauge{series: series{name, help, labels}}
	r.gauges[k] = g
	return g
}

// Histogram returns or creates the histogram for name and labels.
func (r *Registry) Histogram(name, help, labels string, bounds []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(name, labels)
	if h, ok := r.histograms[k]; ok {
		return h
	}
	b := append([]float64(nil), bounds...)
	sort.Float64s(b)
	h := &Histogram{series: series{name, help, labels}, bounds: b, buckets: make([]int64, len(b))}
	r.histograms[k] = h
	return h
}

// Handler renders every series in Prometheus text format.
func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		r.WriteTo(w)
	}
}

// WriteTo writes the exposition text, series sorted by name then labels.
func (r *Registry) WriteTo(w io.Writer) (int64, error) {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# HELP ragdesk_uptime_seconds Time since start in seconds\n")
	fmt.Fprintf(&sb, "# TYPE ragdesk_uptime_seconds gauge\n")
	fmt.Fprintf(&sb, "ragdesk_uptime_seconds %d\n", int64(r.Uptime().Seconds()))

	r.mu.Lock()
	counters := sortedValues(r.counters)
	gauges := sortedValues(r.gauges)
	histograms := sortedValues(r.histograms)
	r.mu.Unlock()

	written := map[string]bool{}
	header := func(s series, kind string) {
		if written[s.name] {
			return
		}
		written[s.name] = true
		fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s %s\n", s.name, s.help, s.name, kind)
	}

	for _, c := range counters {
		header(c.series, "counter")
		fmt.Fprintf(&sb, "%s %d\n", sample(c.name, c.labels), c.Value())
	}
	for _, g := range gauges {
		header(g.series, "gauge")
		fmt.Fprintf(&sb, "%s %d\n", sample(g.name, g.labels), g.Value())
	}
	for _, h := range histograms {
		header(h.series, "histogram")
		h.mu.Lock()
		for i, le := range h.bounds {
			bound := fmt.Sprintf("%g", le)
			if math.IsInf(le, 1) {
				bound = "+Inf"
			}
			lbl := Labels("le", bound)
			if h.labels != "" {
				lbl = h.labels + "," + lbl
			}
			fmt.Fprintf(&sb, "%s_bucket{%s} %d\n", h.name, lbl, h.buckets[i])
		}
		fmt.Fprintf(&sb, "%s %d\n", sample(h.name+"_count", h.labels), h.count)
		fmt.Fprintf(&sb, "%s %f\n", sample(h.name+"_sum", h.labels), h.sum)
		h.mu.Unlock()
	}

	n, err := io.WriteString(w, sb.String())
	return int64(n), err
}

func sample(name, labels string) string {
	if labels == "" {
		return name
	}
	return name + "{" + labels + "}"
}

func sortedValues[T any](m map[string]T) []T {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}

var latencyBounds = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, math.Inf(1)}

// Dispatch records dispatch outcomes for one registry.
type Dispatch struct {
	reg      *Registry
	Inflight *Gauge
}

// NewDispatch binds the dispatch series to reg.
func NewDispatch(reg *Registry) *Dispatch {
	return &Dispatch{
		reg:      reg,
		Inflight: reg.Gauge("ragdesk_inflight_actions", "Actions dispatched and not yet settled", ""),
	}
}

// Started marks one action as in flight.
func (d *Dispatch) Started() { d.Inflight.Inc() }

// Settled records the outcome ("ok" or "error") and latency of one action.
func (d *Dispatch) Settled(action, outcome string, elapsed time.Duration) {
	d.Inflight.Dec()
	d.Total(action, outcome).Inc()
	d.reg.Histogram("ragdesk_dispatch_latency_seconds", "Dispatch latency in seconds",
		Labels("action", action), latencyBounds).Observe(elapsed.Seconds())
}

// Total returns the counter for one action and outcome.
func (d *Dispatch) Total(action, outcome string) *Counter {
	return d.reg.Counter("ragdesk_dispatch_total", "Dispatched actions by outcome",
		Labels("action", action, "outcome", outcome))
}
