// Package metrics provides a lightweight, Prometheus-compatible metrics
// collector for the pipeline. It outputs text/plain in Prometheus exposition format.
package metrics

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the process-wide collector.
var Collector = NewMetricsCollector()

type kind string

const (
	kindCounter   kind = "counter"
	kindGauge     kind = "gauge"
	kindHistogram kind = "histogram"
)

// family groups every labelled series of one metric name.
type family struct {
	name   string
	help   string
	kind   kind
	series map[string]any // labels -> *Counter | *Gauge | *Histogram
}

// MetricsCollector owns metric families and renders them.
type MetricsCollector struct {
	mu        sync.RWMutex
	families  map[string]*family
	startTime time.Time
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{families: make(map[string]*family), startTime: time.Now()}
}

// Uptime returns how long the collector has been running.
func (c *MetricsCollector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

// Counter is a monotonically increasing counter.
type Counter struct{ value atomic.Int64 }

func (c *Counter) Inc()         { c.value.Add(1) }
func (c *Counter) Add(n int64)  { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge is a value that can go up and down.
type Gauge struct{ value atomic.Int64 }

func (g *Gauge) Set(v int64)  { g.value.Store(v) }
func (g *Gauge) Inc()         { g.value.Add(1) }
func (g *Gauge) Dec()         { g.value.Add(-1) }
func (g *Gauge) Value() int64 { return g.value.Load() }

// Histogram counts observations into cumulative upper-bound buckets.
type Histogram struct {
	mu     sync.Mutex
	bounds []float64
	counts []int64 // counts[i] observations <= bounds[i]
	count  int64
	sum    float64
}

// Observe records a value in the histogram.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, b := range h.bounds {
		if v <= b {
			h.counts[i]++
		}
	}
}

// series returns the series for name+labels, creating it with mk on first use.
// A name is bound to the kind it was first registered with.
func (c *MetricsCollector) series(name, help, labels string, k kind, mk func() any) any {
	c.mu.RLock()
	if f, ok := c.families[name]; ok {
		if s, ok := f.series[labels]; ok {
			c.mu.RUnlock()
			return s
		}
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.families[name]
	if !ok {
		f = &family{name: name, help: help, kind: k, series: make(map[string]any)}
		c.families[name] = f
	}
	if f.kind != k {
		panic(fmt.Sprintf("metrics: %s registered as %s, requested as %s", name, f.kind, k))
	}
	s, ok := f.series[labels]
	if !ok {
		s = mk()
		f.series[labels] = s
	}
	return s
}

// Counter returns or creates a counter. labels is the rendered label set,
// e.g. `route="echo"`.
func (c *MetricsCollector) Counter(name, help, labels string) *Counter {
	return c.series(name, help, labels, kindCounter, func() any { return &Counter{} }).(*Counter)
}

// Gauge returns or creates a gauge.
func (c *MetricsCollector) Gauge(name, help, labels string) *Gauge {
	return c.series(name, help, labels, kindGauge, func() any { return &Gauge{} }).(*Gauge)
}

// Histogram returns or creates a histogram. Buckets apply on creation only.
func (c *MetricsCollector) Histogram(name, help, labels string, buckets []float64) *Histogram {
	return c.series(name, help, labels, kindHistogram, func() any {
		bounds := append([]float64(nil), buckets...)
		sort.Float64s(bounds)
		return &Histogram{bounds: bounds, counts: make([]int64, len(bounds))}
	}).(*Histogram)
}

// Handler serves every family in name order.
func (c *MetricsCollector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		c.Render(w)
	}
}

// Render writes the exposition text.
func (c *MetricsCollector) Render(w io.Writer) {
	fmt.Fprintf(w, "# HELP personabot_uptime_seconds Time since start in seconds\n")
	fmt.Fprintf(w, "# TYPE personabot_uptime_seconds gauge\n")
	fmt.Fprintf(w, "personabot_uptime_seconds %d\n", int64(c.Uptime().Seconds()))

	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.families))
	for name := range c.families {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		f := c.families[name]
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", f.name, f.help, f.name, f.kind)

		labelSets := make([]string, 0, len(f.series))
		for l := range f.series {
			labelSets = append(labelSets, l)
		}
		sort.Strings(labelSets)

		for _, labels := range labelSets {
			switch s := f.series[labels].(type) {
			case *Counter:
				fmt.Fprintf(w, "%s%s %d\n", f.name, braces(labels), s.Value())
			case *Gauge:
				fmt.Fprintf(w, "%s%s %d\n", f.name, braces(labels), s.Value())
			case *Histogram:
				writeHistogram(w, f.name, labels, s)
			}
		}
	}
}

func writeHistogram(w io.Writer, name, labels string, h *Histogram) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sep := ""
	if labels != "" {
		sep = ","
	}
	for i, b := range h.bounds {
		if math.IsInf(b, 1) {
			continue
		}
		fmt.Fprintf(w, "%s_bucket{%s%sle=\"%g\"} %d\n", name, labels, sep, b, h.counts[i])
	}
	fmt.Fprintf(w, "%s_bucket{%s%sle=\"+Inf\"} %d\n", name, labels, sep, h.count)
	fmt.Fprintf(w, "%s_count%s %d\n", name, braces(labels), h.count)
	fmt.Fprintf(w, "%s_sum%s %g\n", name, braces(labels), h.sum)
}

func braces(labels string) string {
	if labels == "" {
		return ""
	}
	return "{" + labels + "}"
}

// Pipeline metrics.
var (
	RunsTotal        = Collector.Counter("personabot_pipeline_runs_total", "Total pipeline runs started", "")
	RepliesSent      = Collector.Counter("personabot_replies_sent_total", "Total terminal send calls", "")
	DoubleResponses  = Collector.Counter("personabot_double_responses_total", "Terminal calls rejected because the request already responded", "")
	HandlerFailures  = Collector.Counter("personabot_error_handler_failures_total", "Error handlers that failed or panicked", "")
	MemoriesWritten  = Collector.Counter("personabot_memories_written_total", "Total memory records inserted", "")
	DeliveryFailures = Collector.Counter("personabot_delivery_failures_total", "Channel deliveries that failed", "")
	ActiveRuns       = Collector.Gauge("personabot_active_runs", "Pipeline runs currently in flight", "")

	RunLatency = Collector.Histogram("personabot_pipeline_latency_seconds", "End-to-end pipeline latency in seconds", "",
		[]float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60})
	LLMLatency = Collector.Histogram("personabot_llm_latency_seconds", "LLM request latency in seconds", "",
		[]float64{0.5, 1, 2, 5, 10, 30, 60, 120})
)

// RunErrors returns the error counter for one stage; errors raised outside a
// tagged stage count under stage="handler".
func RunErrors(stage string) *Counter {
	if stage == "" {
		stage = "handler"
	}
	return Collector.Counter("personabot_pipeline_errors_total", "Errors routed to the response error path by stage", fmt.Sprintf("stage=%q", stage))
}

// RouteDispatches returns the dispatch counter for one route.
func RouteDispatches(route string) *Counter {
	return Collector.Counter("personabot_route_dispatches_total", "Total handler dispatches by route", fmt.Sprintf("route=%q", route))
}

// ChannelInputs returns the intake counter for one source channel.
func ChannelInputs(source string) *Counter {
	return Collector.Counter("personabot_channel_inputs_total", "Total inputs received by channel", fmt.Sprintf("source=%q", source))
}
