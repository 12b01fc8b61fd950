package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	graphview "github.com/saulfrancisco-ruizacevedo/go-graphview"
	"github.com/saulfrancisco-ruizacevedo/go-graphview/models"
)

func TestOutcome(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{fmt.Errorf("%w: slow", graphview.ErrTimeout), "timeout"},
		{context.DeadlineExceeded, "timeout"},
		{fmt.Errorf("%w: refused", graphview.ErrConnection), "connection"},
		{&graphview.QueryError{Code: 597}, "query"},
		{context.Canceled, "canceled"},
		{errors.New("other"), "error"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Outcome(c.err))
	}
}

func TestCollectorObservesQueries(t *testing.T) {
	c := NewCollector("graphview")

	c.QueryDone("query", 20*time.Millisecond, nil)
	c.QueryDone("query", time.Second, fmt.Errorf("%w: slow", graphview.ErrTimeout))
	c.Normalized(models.Report{Vertices: 2, Edges: 3, Unrecognized: 1, Synthesized: 4})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.Queries.WithLabelValues("query", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Queries.WithLabelValues("query", "timeout")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.Records.WithLabelValues("edge")))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.Synthesized))

	// Two independent collectors do not collide.
	assert.NotPanics(t, func() { NewCollector("graphview") })
}

func TestMiddlewareAndHandler(t *testing.T) {
	c := NewCollector("graphview")

	r := chi.NewRouter()
	r.Use(c.Middleware)
	r.Get("/nodes/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Handle("/metrics", c.Handler())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nodes/42", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.HTTPRequests.WithLabelValues("GET", "/nodes/{id}", "418")))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "graphview_http_requests_total")
}
