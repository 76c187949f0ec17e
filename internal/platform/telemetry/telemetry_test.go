package telemetry

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddleware_RecordsRoutePattern(t *testing.T) {
	p := NewProvider()
	e := echo.New()
	e.Use(p.Middleware())
	e.GET("/api/v1/medicines/:id", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/medicines/abc", nil))

	if got := testutil.CollectAndCount(p.requestDuration); got != 1 {
		t.Fatalf("expected 1 series, got %d", got)
	}
	expected := `remedios_http_request_duration_seconds_count{method="GET",route="/api/v1/medicines/:id",status="200"} 1`
	if !strings.Contains(scrape(t, p), expected) {
		t.Errorf("expected scrape to contain %q", expected)
	}
	if testutil.ToFloat64(p.activeRequests) != 0 {
		t.Error("expected active requests back to 0")
	}
}

func TestMiddleware_ErrorStatus(t *testing.T) {
	p := NewProvider()
	e := echo.New()
	e.Use(p.Middleware())
	e.GET("/boom", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusTeapot, "nope")
	})
	e.GET("/fail", func(c echo.Context) error {
		return errors.New("internal")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("expected 418, got %d", rec.Code)
	}
	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fail", nil))

	out := scrape(t, p)
	for _, want := range []string{`route="/boom",status="418"`, `route="/fail",status="500"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected scrape to contain %s", want)
		}
	}
}

func TestDomainCounters(t *testing.T) {
	p := NewProvider()
	p.DoseClassified("missed", 2)
	p.DoseClassified("taken", 0)
	p.CacheHit()
	p.CacheMiss()
	p.CacheMiss()
	p.IntakeLogged()
	p.ReminderOutcome("sent")

	if got := testutil.ToFloat64(p.dosesClassified.WithLabelValues("missed")); got != 2 {
		t.Errorf("expected 2 missed, got %v", got)
	}
	if got := testutil.ToFloat64(p.adherenceCache.WithLabelValues("miss")); got != 2 {
		t.Errorf("expected 2 misses, got %v", got)
	}
	if got := testutil.ToFloat64(p.intakesLogged); got != 1 {
		t.Errorf("expected 1 intake, got %v", got)
	}
	if got := testutil.ToFloat64(p.remindersSent.WithLabelValues("sent")); got != 1 {
		t.Errorf("expected 1 reminder, got %v", got)
	}
}

func TestNilProvider(t *testing.T) {
	var p *Provider
	p.DoseClassified("missed", 1)
	p.CacheHit()
	p.IntakeLogged()
	p.ReminderOutcome("failed")
	p.RegisterPool(nil)

	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	err := p.Middleware()(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func scrape(t *testing.T, p *Provider) string {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/metrics", nil), rec)
	if err := p.Handler()(c); err != nil {
		t.Fatalf("metrics handler: %v", err)
	}
	return rec.Body.String()
}
