// Package telemetry exposes Prometheus metrics for the HTTP server, the
// adherence engine and the reminder sweep.
package telemetry

import (
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "remedios"

// Provider owns a metrics registry and the collectors registered on it.
// A nil *Provider is valid and records nothing, so services can be built
// without metrics in tests.
type Provider struct {
	registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	activeRequests  prometheus.Gauge
	dosesClassified *prometheus.CounterVec
	adherenceCache  *prometheus.CounterVec
	intakesLogged   prometheus.Counter
	remindersSent   *prometheus.CounterVec
	sweepDuration   prometheus.Histogram
}

func NewProvider() *Provider {
	reg := prometheus.NewRegistry()
	p := &Provider{
		registry: reg,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests by method, route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		activeRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_active_requests",
			Help:      "Number of HTTP requests being served.",
		}),
		dosesClassified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "doses_classified_total",
			Help:      "Doses produced by day reconciliation, by status.",
		}, []string{"status"}),
		adherenceCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adherence_cache_requests_total",
			Help:      "Adherence summary cache lookups, by result.",
		}, []string{"result"}),
		intakesLogged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intakes_logged_total",
			Help:      "Intake logs recorded.",
		}),
		remindersSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_total",
			Help:      "Missed-dose reminders, by outcome.",
		}, []string{"outcome"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reminder_sweep_duration_seconds",
			Help:      "Duration of reminder sweeps.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		p.requestDuration, p.activeRequests, p.dosesClassified,
		p.adherenceCache, p.intakesLogged, p.remindersSent, p.sweepDuration,
	)
	return p
}

// RegisterPool exports connection pool gauges read at scrape time.
func (p *Provider) RegisterPool(pool *pgxpool.Pool) {
	if p == nil || pool == nil {
		return
	}
	p.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "db_pool_acquired_connections",
			Help: "Connections currently acquired from the pool.",
		}, func() float64 { return float64(pool.Stat().AcquiredConns()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "db_pool_idle_connections",
			Help: "Idle connections in the pool.",
		}, func() float64 { return float64(pool.Stat().IdleConns()) }),
	)
}

// Middleware records request duration labelled by route pattern.
func (p *Provider) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if p == nil {
				return next(c)
			}
			p.activeRequests.Inc()
			defer p.activeRequests.Dec()

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			status := strconv.Itoa(c.Response().Status)
			p.requestDuration.WithLabelValues(c.Request().Method, route, status).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Provider) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))
}

func (p *Provider) DoseClassified(status string, n int) {
	if p == nil || n == 0 {
		return
	}
	p.dosesClassified.WithLabelValues(status).Add(float64(n))
}

func (p *Provider) CacheHit() {
	if p != nil {
		p.adherenceCache.WithLabelValues("hit").Inc()
	}
}

func (p *Provider) CacheMiss() {
	if p != nil {
		p.adherenceCache.WithLabelValues("miss").Inc()
	}
}

func (p *Provider) IntakeLogged() {
	if p != nil {
		p.intakesLogged.Inc()
	}
}

// ReminderOutcome counts one reminder as "sent", "failed" or "skipped".
func (p *Provider) ReminderOutcome(outcome string) {
	if p != nil {
		p.remindersSent.WithLabelValues(outcome).Inc()
	}
}

func (p *Provider) ObserveSweep(d time.Duration) {
	if p != nil {
		p.sweepDuration.Observe(d.Seconds())
	}
}
