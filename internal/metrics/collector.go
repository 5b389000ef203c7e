// Package metrics keeps wagate's counters, gauges and the send latency
// histogram, and renders them in the Prometheus text exposition format.
package metrics

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"net/http"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the process-wide registry.
var Collector = NewMetricsCollector()

type kind string

const (
	kindCounter   kind = "counter"
	kindGauge     kind = "gauge"
	kindHistogram kind = "histogram"
)

// series is one labelled time series inside a family.
type series interface {
	write(w io.Writer, name, labels string)
}

type family struct {
	name   string
	help   string
	kind   kind
	series map[string]series // label set -> series
}

// MetricsCollector is a registry of metric families. Families and their
// label sets are rendered in sorted order so scrapes are stable.
type MetricsCollector struct {
	mu       sync.Mutex
	families map[string]*family
	started  time.Time
}

// NewMetricsCollector creates an empty registry.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{families: make(map[string]*family), started: time.Now()}
}

// Uptime returns how long the registry has existed.
func (c *MetricsCollector) Uptime() time.Duration {
	return time.Since(c.started)
}

// lookup returns the series for name and labels, creating it with mk on
// first use. Reusing a name with a different kind is a programming error.
func (c *MetricsCollector) lookup(name, help, labels string, k kind, mk func() series) series {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.families[name]
	if !ok {
		f = &family{name: name, help: help, kind: k, series: make(map[string]series)}
		c.families[name] = f
	} else if f.kind != k {
		panic(fmt.Sprintf("metrics: %s registered as %s, requested as %s", name, f.kind, k))
	}
	s, ok := f.series[labels]
	if !ok {
		s = mk()
		f.series[labels] = s
	}
	return s
}

// Counter is a monotonically increasing count.
type Counter struct{ value atomic.Int64 }

func (c *Counter) Inc()         { c.value.Add(1) }
func (c *Counter) Add(n int64)  { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }
func (c *Counter) write(w io.Writer, name, labels string) {
	fmt.Fprintf(w, "%s %d\n", seriesName(name, labels), c.Value())
}

// Gauge is a value that moves both ways.
type Gauge struct{ value atomic.Int64 }

func (g *Gauge) Set(v int64)  { g.value.Store(v) }
func (g *Gauge) Inc()         { g.value.Add(1) }
func (g *Gauge) Dec()         { g.value.Add(-1) }
func (g *Gauge) Value() int64 { return g.value.Load() }
func (g *Gauge) write(w io.Writer, name, labels string) {
	fmt.Fprintf(w, "%s %d\n", seriesName(name, labels), g.Value())
}

// Histogram counts observations into cumulative buckets. The +Inf bucket
// is always present and equals the observation count.
type Histogram struct {
	mu     sync.Mutex
	bounds []float64
	counts []int64
	count  int64
	sum    float64
}

// Observe records one value.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, le := range h.bounds {
		if v <= le {
			h.counts[i]++
		}
	}
}

func (h *Histogram) write(w io.Writer, name, labels string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, le := range h.bounds {
		fmt.Fprintf(w, "%s %d\n", seriesName(name+"_bucket", labels, `le="`+formatBound(le)+`"`), h.counts[i])
	}
	fmt.Fprintf(w, "%s %d\n", seriesName(name+"_bucket", labels, `le="+Inf"`), h.count)
	fmt.Fprintf(w, "%s %s\n", seriesName(name+"_sum", labels), strconv.FormatFloat(h.sum, 'g', -1, 64))
	fmt.Fprintf(w, "%s %d\n", seriesName(name+"_count", labels), h.count)
}

// Counter returns the counter for name and labels, creating it if needed.
// labels is a preformatted label list such as `result="success"`.
func (c *MetricsCollector) Counter(name, help, labels string) *Counter {
	return c.lookup(name, help, labels, kindCounter, func() series { return &Counter{} }).(*Counter)
}

// Gauge returns the gauge for name and labels, creating it if needed.
func (c *MetricsCollector) Gauge(name, help, labels string) *Gauge {
	return c.lookup(name, help, labels, kindGauge, func() series { return &Gauge{} }).(*Gauge)
}

// Histogram returns the histogram for name and labels. buckets only apply
// on first registration; an explicit +Inf bound is folded into the
// implicit one.
func (c *MetricsCollector) Histogram(name, help, labels string, buckets []float64) *Histogram {
	return c.lookup(name, help, labels, kindHistogram, func() series {
		bounds := make([]float64, 0, len(buckets))
		for _, b := range buckets {
			if !math.IsInf(b, 1) {
				bounds = append(bounds, b)
			}
		}
		sort.Float64s(bounds)
		bounds = slices.Compact(bounds)
		return &Histogram{bounds: bounds, counts: make([]int64, len(bounds))}
	}).(*Histogram)
}

// WriteTo renders every family in the text exposition format.
func (c *MetricsCollector) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: bufio.NewWriter(w)}

	fmt.Fprintf(cw, "# HELP wagate_uptime_seconds Time since start in seconds\n")
	fmt.Fprintf(cw, "# TYPE wagate_uptime_seconds gauge\n")
	fmt.Fprintf(cw, "wagate_uptime_seconds %d\n", int64(c.Uptime().Seconds()))

	c.mu.Lock()
	names := make([]string, 0, len(c.families))
	for name := range c.families {
		names = append(names, name)
	}
	sort.Strings(names)
	fams := make([]*family, len(names))
	for i, name := range names {
		fams[i] = c.families[name]
	}
	c.mu.Unlock()

	for _, f := range fams {
		c.mu.Lock()
		labelSets := make([]string, 0, len(f.series))
		for ls := range f.series {
			labelSets = append(labelSets, ls)
		}
		sort.Strings(labelSets)
		members := make([]series, len(labelSets))
		for i, ls := range labelSets {
			members[i] = f.series[ls]
		}
		c.mu.Unlock()

		fmt.Fprintf(cw, "# HELP %s %s\n", f.name, f.help)
		fmt.Fprintf(cw, "# TYPE %s %s\n", f.name, f.kind)
		for i, s := range members {
			s.write(cw, f.name, labelSets[i])
		}
	}
	if err := cw.w.Flush(); err != nil && cw.err == nil {
		cw.err = err
	}
	return cw.n, cw.err
}

// Handler serves the registry for scraping.
func (c *MetricsCollector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		c.WriteTo(w)
	}
}

// seriesName joins a metric name with its label list and any extra labels.
func seriesName(name, labels string, extra ...string) string {
	parts := make([]string, 0, 1+len(extra))
	if labels != "" {
		parts = append(parts, labels)
	}
	parts = append(parts, extra...)
	if len(parts) == 0 {
		return name
	}
	return name + "{" + strings.Join(parts, ",") + "}"
}

func formatBound(le float64) string {
	return strconv.FormatFloat(le, 'g', -1, 64)
}

type countingWriter struct {
	w   *bufio.Writer
	n   int64
	err error
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	if cw.err != nil {
		return 0, cw.err
	}
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	cw.err = err
	return n, err
}

var (
	CommandsDispatched = Collector.Counter("wagate_commands_dispatched_total", "Inbound messages that matched a command", "")
	CommandFailures    = Collector.Counter("wagate_command_failures_total", "Command handlers that returned an error", "")
	MessagesReceived   = Collector.Counter("wagate_messages_received_total", "Inbound messages received from the chat client", "")
	Reconnects         = Collector.Counter("wagate_session_reconnects_total", "Client reinitializations after a disconnect", "")
	CallsRejected      = Collector.Counter("wagate_calls_rejected_total", "Incoming calls rejected automatically", "")
	SessionState       = Collector.Gauge("wagate_session_state", "Current session state (0=unauthenticated 1=qr_pending 2=authenticated 3=ready 4=disconnected)", "")
	Observers          = Collector.Gauge("wagate_observers", "Connected console observers", "")

	SendLatency = Collector.Histogram("wagate_send_latency_seconds", "Chat client send latency in seconds", "",
		[]float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30})
)

// Delivery returns the delivery counter for one result kind.
func Delivery(result string) *Counter {
	return Collector.Counter("wagate_deliveries_total", "Outbound delivery attempts by result", `result="`+result+`"`)
}
