// Package metrics exposes graphview's Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	graphview "github.com/saulfrancisco-ruizacevedo/go-graphview"
	"github.com/saulfrancisco-ruizacevedo/go-graphview/models"
)

// Collector holds all Prometheus metrics for the application. It implements
// graphview.Observer.
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Query metrics
	Queries       *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec

	// Normalization metrics
	Records     *prometheus.CounterVec
	Synthesized prometheus.Counter
}

// NewCollector creates a collector with its own registry, so that several
// collectors can coexist in tests.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		Queries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queries_total",
				Help:      "Total number of graph queries by operation and outcome",
			},
			[]string{"op", "status"},
		),
		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_duration_seconds",
				Help:      "Graph query duration in seconds",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"op"},
		),
		Records: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_total",
				Help:      "Result records seen by the normalizer, by classification",
			},
			[]string{"kind"},
		),
		Synthesized: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "synthesized_nodes_total",
				Help:      "Nodes synthesized from edge endpoints",
			},
		),
	}

	registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.Queries,
		c.QueryDuration,
		c.Records,
		c.Synthesized,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// QueryDone records the outcome and duration of one query.
func (c *Collector) QueryDone(op string, elapsed time.Duration, err error) {
	c.Queries.WithLabelValues(op, Outcome(err)).Inc()
	c.QueryDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// Normalized records the counters of one normalization pass.
func (c *Collector) Normalized(report models.Report) {
	c.Records.WithLabelValues("vertex").Add(float64(report.Vertices))
	c.Records.WithLabelValues("edge").Add(float64(report.Edges))
	c.Records.WithLabelValues("unrecognized").Add(float64(report.Unrecognized))
	c.Records.WithLabelValues("duplicate").Add(float64(report.Duplicates))
	c.Synthesized.Add(float64(report.Synthesized))
}

// Outcome maps a runner error to a low-cardinality status label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, graphview.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, graphview.ErrConnection):
		return "connection"
	case errors.Is(err, graphview.ErrQuery):
		return "query"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	return "error"
}

// Middleware records the count and duration of HTTP requests, labelled by
// chi route pattern.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		c.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		c.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry returns the Prometheus registry for this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
