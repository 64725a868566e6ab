package telemetry

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
)

func scrape(t *testing.T, r *Registry) string {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	if err := r.Handler()(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content type = %q", ct)
	}
	return rec.Body.String()
}

func TestCounter_IncAndExport(t *testing.T) {
	r := NewRegistry()
	c := r.Counter("intake_decisions_total", "Decisions.", "risk", "source")
	c.Inc("HIGH", "rule_override")
	c.Inc("HIGH", "rule_override")
	c.Inc("LOW", "ml_model")

	if got := c.Value("HIGH", "rule_override"); got != 2 {
		t.Errorf("HIGH count = %d, want 2", got)
	}
	if got := c.Value("MEDIUM", "ml_model"); got != 0 {
		t.Errorf("unseen labels = %d, want 0", got)
	}

	out := scrape(t, r)
	for _, want := range []string{
		"# HELP intake_decisions_total Decisions.",
		"# TYPE intake_decisions_total counter",
		`intake_decisions_total{risk="HIGH",source="rule_override"} 2`,
		`intake_decisions_total{risk="LOW",source="ml_model"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, `risk="HIGH"`) > strings.Index(out, `risk="LOW"`) {
		t.Error("series should be sorted by label values")
	}
}

func TestCounter_WrongLabelCountPanics(t *testing.T) {
	c := NewRegistry().Counter("c_total", "c", "a")
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	c.Inc("x", "y")
}

func TestRegistry_DuplicateNamePanics(t *testing.T) {
	r := NewRegistry()
	r.Counter("dup_total", "d")
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	r.Counter("dup_total", "d")
}

func TestGaugeFunc_ReadAtScrape(t *testing.T) {
	r := NewRegistry()
	v := 0.0
	r.GaugeFunc("intake_model_loaded", "Model loaded.", func() float64 { return v })

	if out := scrape(t, r); !strings.Contains(out, "intake_model_loaded 0\n") {
		t.Errorf("unexpected output:\n%s", out)
	}
	v = 1
	if out := scrape(t, r); !strings.Contains(out, "intake_model_loaded 1\n") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestHistogram_CumulativeBuckets(t *testing.T) {
	r := NewRegistry()
	h := r.Histogram("latency_seconds", "Latency.", []float64{0.1, 1}, "route")
	h.Observe(0.0625, "/a")
	h.Observe(0.5, "/a")
	h.Observe(2, "/a")

	if got := h.Count("/a"); got != 3 {
		t.Errorf("count = %d, want 3", got)
	}
	out := scrape(t, r)
	for _, want := range []string{
		"# TYPE latency_seconds histogram",
		`latency_seconds_bucket{route="/a",le="0.1"} 1`,
		`latency_seconds_bucket{route="/a",le="1"} 2`,
		`latency_seconds_bucket{route="/a",le="+Inf"} 3`,
		`latency_seconds_sum{route="/a"} 2.5625`,
		`latency_seconds_count{route="/a"} 3`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestHistogram_ConcurrentObserve(t *testing.T) {
	h := NewRegistry().Histogram("h", "h", DurationBuckets)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				h.Observe(0.01)
			}
		}()
	}
	wg.Wait()
	if got := h.Count(); got != 1000 {
		t.Errorf("count = %d, want 1000", got)
	}
}

func TestHTTPMetrics_Middleware(t *testing.T) {
	r := NewRegistry()
	m := NewHTTPMetrics(r)
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/api/v1/queue/:id", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/boom", func(c echo.Context) error { return errors.New("boom") })
	e.GET("/bad", func(c echo.Context) error { return echo.NewHTTPError(http.StatusBadRequest, "bad") })

	for _, path := range []string{"/api/v1/queue/1", "/api/v1/queue/2", "/boom", "/bad"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := m.requests.Value(http.MethodGet, "/api/v1/queue/:id", "200"); got != 2 {
		t.Errorf("route pattern count = %d, want 2", got)
	}
	if got := m.requests.Value(http.MethodGet, "/boom", "500"); got != 1 {
		t.Errorf("500 count = %d, want 1", got)
	}
	if got := m.requests.Value(http.MethodGet, "/bad", "400"); got != 1 {
		t.Errorf("400 count = %d, want 1", got)
	}
	if got := m.duration.Count(http.MethodGet, "/api/v1/queue/:id"); got != 2 {
		t.Errorf("duration count = %d, want 2", got)
	}
}
