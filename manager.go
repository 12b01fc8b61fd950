package graphview

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/saulfrancisco-ruizacevedo/go-graphview/logger"
	"github.com/saulfrancisco-ruizacevedo/go-graphview/models"
)

// DefaultTestTimeout bounds the probe query of a connection test.
const DefaultTestTimeout = 5 * time.Second

// Observer receives a notification for every query an Explorer runs.
// Implementations must be safe for concurrent use.
type Observer interface {
	// QueryDone is called once per query with its operation name ("query",
	// "expand" or "test"), its duration and its error, if any.
	QueryDone(op string, elapsed time.Duration, err error)

	// Normalized is called with the counters of every successful normalization.
	Normalized(report models.Report)
}

// Explorer is the central orchestrator of graphview. It runs queries through
// a QueryRunner and turns their raw results into a canonical graph.
type Explorer struct {
	runner   QueryRunner
	opts     Options
	observer Observer
}

// NewExplorer creates a new Explorer that runs queries through runner.
func NewExplorer(runner QueryRunner, opts Options) *Explorer {
	return &Explorer{runner: runner, opts: opts}
}

// SetObserver attaches an Observer. A nil observer disables notifications.
func (e *Explorer) SetObserver(o Observer) {
	e.observer = o
}

// Query executes a query and normalizes its result.
//
// The result of a query that matches nothing is an empty graph, not an
// error.
//
// Parameters:
//   - ctx: The context for the query execution.
//   - query: The query text, in the runner's language (Gremlin or Cypher).
//   - bindings: Query parameters; may be nil.
//
// Returns:
//   - A pointer to a models.QueryResult holding the raw payload, the
//     de-duplicated nodes and edges, and the normalization report.
//   - Any error returned by the runner (ErrConnection, ErrTimeout, ErrQuery).
func (e *Explorer) Query(ctx context.Context, query string, bindings map[string]interface{}) (*models.QueryResult, error) {
	return e.run(ctx, "query", query, bindings)
}

// Expand fetches the neighborhood of a single vertex. Gremlin servers answer
// with the incident edges only; their endpoints are synthesized by the
// normalizer.
//
// Parameters:
//   - ctx: The context for the query execution.
//   - vertexID: The id of the vertex to expand, as found in Node.ID.
//
// Returns:
//
//	The normalized neighborhood, or an error if the runner cannot expand
//	vertices or the query fails.
func (e *Explorer) Expand(ctx context.Context, vertexID string) (*models.QueryResult, error) {
	if vertexID == "" {
		return nil, fmt.Errorf("vertex id is required")
	}
	exp, ok := e.runner.(Expander)
	if !ok {
		return nil, fmt.Errorf("runner %T cannot expand vertices", e.runner)
	}
	query, bindings, err := exp.NeighborhoodQuery(vertexID)
	if err != nil {
		return nil, fmt.Errorf("could not build neighborhood query: %w", err)
	}
	return e.run(ctx, "expand", query, bindings)
}

func (e *Explorer) run(ctx context.Context, op, query string, bindings map[string]interface{}) (*models.QueryResult, error) {
	start := time.Now()
	raw, err := e.runner.Run(ctx, query, bindings)
	elapsed := time.Since(start)
	if e.observer != nil {
		e.observer.QueryDone(op, elapsed, err)
	}
	if err != nil {
		logger.Debug("Query failed", "op", op, "elapsed", elapsed, "error", err)
		return nil, err
	}

	graph, report := NormalizeWith(raw, e.opts)
	if e.observer != nil {
		e.observer.Normalized(report)
	}
	logger.Debug("Query normalized",
		"op", op,
		"elapsed", elapsed,
		"records", report.Records,
		"nodes", len(graph.Nodes),
		"edges", len(graph.Edges),
		"synthesized", report.Synthesized,
	)

	return &models.QueryResult{Raw: raw, GraphResult: graph, Report: report}, nil
}

// Close closes the underlying runner.
func (e *Explorer) Close(ctx context.Context) error {
	return e.runner.Close(ctx)
}

//---

// TestConnection dials conn, runs a probe query and closes the connection.
// It never returns an error: failures are reported in the TestResult.
//
// Parameters:
//   - ctx: The context for the whole test.
//   - conn: The server endpoint and credentials.
//   - opts: Dial options; the probe is additionally bounded by timeout.
//   - timeout: The probe bound. Zero means DefaultTestTimeout.
func TestConnection(ctx context.Context, conn Connection, opts DialOptions, timeout time.Duration) models.TestResult {
	runner, err := Dial(ctx, conn, opts)
	if err != nil {
		return models.TestResult{Success: false, Error: err.Error()}
	}
	defer func() {
		if cerr := runner.Close(context.Background()); cerr != nil {
			logger.Debug("Closing test connection failed", "error", cerr)
		}
	}()
	return Probe(ctx, runner, timeout)
}

// Probe runs the runner's probe query ("g.V().limit(1)" for Gremlin servers)
// bounded by timeout, and reports the outcome.
func Probe(ctx context.Context, runner QueryRunner, timeout time.Duration) models.TestResult {
	if timeout <= 0 {
		timeout = DefaultTestTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	data, err := runner.Run(ctx, probeQueryFor(runner), nil)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout) {
			return models.TestResult{Success: false, Error: "Connection timeout"}
		}
		return models.TestResult{Success: false, Error: err.Error()}
	}
	return models.TestResult{Success: true, Message: "Connection successful", Data: data}
}

type prober interface {
	probeQuery() string
}

// probeQueryFor returns the cheapest query that proves the server answers.
func probeQueryFor(r QueryRunner) string {
	if p, ok := r.(prober); ok {
		return p.probeQuery()
	}
	return "g.V().limit(1)"
}
