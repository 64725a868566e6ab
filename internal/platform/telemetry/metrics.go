// Package telemetry records service metrics and serves them in the
// Prometheus text exposition format.
package telemetry

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
)

// DurationBuckets are the request latency bucket bounds in seconds.
var DurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

const labelSep = "\xff"

type metric interface {
	write(b *strings.Builder)
}

// Registry owns a set of named metrics. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	names   []string
	metrics map[string]metric
}

func NewRegistry() *Registry {
	return &Registry{metrics: make(map[string]metric)}
}

func (r *Registry) register(name string, m metric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.metrics[name]; dup {
		panic(fmt.Sprintf("telemetry: metric %s registered twice", name))
	}
	r.names = append(r.names, name)
	r.metrics[name] = m
}

type desc struct {
	name   string
	help   string
	labels []string
}

func (d desc) header(b *strings.Builder, typ string) {
	fmt.Fprintf(b, "# HELP %s %s\n", d.name, d.help)
	fmt.Fprintf(b, "# TYPE %s %s\n", d.name, typ)
}

// labelString renders {a="x",b="y"} for a stored key; extra is appended
// verbatim (used for le).
func (d desc) labelString(key, extra string) string {
	var parts []string
	if len(d.labels) > 0 {
		values := strings.Split(key, labelSep)
		for i, l := range d.labels {
			parts = append(parts, fmt.Sprintf("%s=%q", l, values[i]))
		}
	}
	if extra != "" {
		parts = append(parts, extra)
	}
	if len(parts) == 0 {
		return ""
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func (d desc) key(values []string) string {
	if len(values) != len(d.labels) {
		panic(fmt.Sprintf("telemetry: %s takes %d label values, got %d", d.name, len(d.labels), len(values)))
	}
	return strings.Join(values, labelSep)
}

// Counter is a monotonically increasing count per label combination.
type Counter struct {
	desc
	mu    sync.RWMutex
	items map[string]*int64
}

func (r *Registry) Counter(name, help string, labels ...string) *Counter {
	c := &Counter{desc: desc{name: name, help: help, labels: labels}, items: make(map[string]*int64)}
	r.register(name, c)
	return c
}

// Inc adds one for the given label values.
func (c *Counter) Inc(values ...string) {
	key := c.key(values)
	c.mu.RLock()
	p, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		c.mu.Lock()
		if p, ok = c.items[key]; !ok {
			p = new(int64)
			c.items[key] = p
		}
		c.mu.Unlock()
	}
	atomic.AddInt64(p, 1)
}

// Value returns the current count for the given label values.
func (c *Counter) Value(values ...string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if p, ok := c.items[c.key(values)]; ok {
		return atomic.LoadInt64(p)
	}
	return 0
}

func (c *Counter) write(b *strings.Builder) {
	c.header(b, "counter")
	c.mu.RLock()
	keys := sortedKeys(c.items)
	for _, k := range keys {
		fmt.Fprintf(b, "%s%s %d\n", c.name, c.labelString(k, ""), atomic.LoadInt64(c.items[k]))
	}
	c.mu.RUnlock()
}

// GaugeFunc reports the value of fn at scrape time.
type GaugeFunc struct {
	desc
	fn func() float64
}

func (r *Registry) GaugeFunc(name, help string, fn func() float64) {
	r.register(name, &GaugeFunc{desc: desc{name: name, help: help}, fn: fn})
}

func (g *GaugeFunc) write(b *strings.Builder) {
	g.header(b, "gauge")
	fmt.Fprintf(b, "%s %g\n", g.name, g.fn())
}

// Histogram counts observations into fixed buckets per label combination.
type Histogram struct {
	desc
	bounds []float64
	mu     sync.RWMutex
	items  map[string]*histogram
}

func (r *Registry) Histogram(name, help string, bounds []float64, labels ...string) *Histogram {
	h := &Histogram{desc: desc{name: name, help: help, labels: labels}, bounds: bounds, items: make(map[string]*histogram)}
	r.register(name, h)
	return h
}

func (h *Histogram) Observe(v float64, values ...string) {
	key := h.key(values)
	h.mu.RLock()
	hist, ok := h.items[key]
	h.mu.RUnlock()
	if !ok {
		h.mu.Lock()
		if hist, ok = h.items[key]; !ok {
			hist = newHistogram(h.bounds)
			h.items[key] = hist
		}
		h.mu.Unlock()
	}
	hist.observe(v)
}

// Count returns the number of observations for the given label values.
func (h *Histogram) Count(values ...string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if hist, ok := h.items[h.key(values)]; ok {
		return atomic.LoadInt64(&hist.count)
	}
	return 0
}

func (h *Histogram) write(b *strings.Builder) {
	h.header(b, "histogram")
	h.mu.RLock()
	keys := sortedKeys(h.items)
	for _, k := range keys {
		hist := h.items[k]
		cum := hist.cumulative()
		total := atomic.LoadInt64(&hist.count)
		for i, bound := range h.bounds {
			fmt.Fprintf(b, "%s_bucket%s %d\n", h.name, h.labelString(k, fmt.Sprintf("le=\"%g\"", bound)), cum[i])
		}
		fmt.Fprintf(b, "%s_bucket%s %d\n", h.name, h.labelString(k, `le="+Inf"`), total)
		fmt.Fprintf(b, "%s_sum%s %g\n", h.name, h.labelString(k, ""), hist.sum())
		fmt.Fprintf(b, "%s_count%s %d\n", h.name, h.labelString(k, ""), total)
	}
	h.mu.RUnlock()
}

// histogram stores non-cumulative bucket counts; cumulative counts are
// computed at export.
type histogram struct {
	bounds  []float64
	mu      sync.Mutex
	buckets []int64
	count   int64
	sumBits uint64
}

func newHistogram(bounds []float64) *histogram {
	return &histogram{bounds: bounds, buckets: make([]int64, len(bounds))}
}

func (h *histogram) observe(v float64) {
	atomic.AddInt64(&h.count, 1)
	for {
		old := atomic.LoadUint64(&h.sumBits)
		next := math.Float64bits(math.Float64frombits(old) + v)
		if atomic.CompareAndSwapUint64(&h.sumBits, old, next) {
			break
		}
	}
	h.mu.Lock()
	for i, bound := range h.bounds {
		if v <= bound {
			h.buckets[i]++
			break
		}
	}
	h.mu.Unlock()
}

func (h *histogram) sum() float64 {
	return math.Float64frombits(atomic.LoadUint64(&h.sumBits))
}

func (h *histogram) cumulative() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	cum := make([]int64, len(h.buckets))
	var running int64
	for i, c := range h.buckets {
		running += c
		cum[i] = running
	}
	return cum
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Handler serves every registered metric in registration order.
func (r *Registry) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		var b strings.Builder
		r.mu.RLock()
		for _, name := range r.names {
			r.metrics[name].write(&b)
			b.WriteByte('\n')
		}
		r.mu.RUnlock()
		return c.Blob(http.StatusOK, "text/plain; version=0.0.4; charset=utf-8", []byte(b.String()))
	}
}

// HTTPMetrics records request counts and latency by route pattern.
type HTTPMetrics struct {
	requests *Counter
	duration *Histogram
}

func NewHTTPMetrics(r *Registry) *HTTPMetrics {
	return &HTTPMetrics{
		requests: r.Counter("http_requests_total", "HTTP requests by method, route and status.", "method", "route", "status"),
		duration: r.Histogram("http_request_duration_seconds", "HTTP request latency in seconds.", DurationBuckets, "method", "route"),
	}
}

func (m *HTTPMetrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			} else if err != nil {
				status = http.StatusInternalServerError
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.requests.Inc(c.Request().Method, route, fmt.Sprintf("%d", status))
			m.duration.Observe(time.Since(start).Seconds(), c.Request().Method, route)
			return err
		}
	}
}
