// Package graphview normalizes graph database query results into a single
// node/edge model for visualization and inspection, and provides the query
// runners (Gremlin over WebSocket, Neo4j) that produce those results.
package graphview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// QueryRunner defines the interface for a graph query executor.
// It abstracts the transport that runs a query text against a server, allowing
// for different backends or mocking in tests.
type QueryRunner interface {
	// Run executes a query with bindings and returns the raw, fully-buffered
	// result payload. Failures wrap ErrConnection, ErrTimeout or ErrQuery.
	Run(ctx context.Context, query string, bindings map[string]interface{}) (any, error)

	// Close releases the connection held by the runner.
	Close(ctx context.Context) error
}

// Expander is implemented by runners that know how to ask their server for
// the neighborhood of a single vertex.
type Expander interface {
	NeighborhoodQuery(vertexID string) (string, map[string]interface{}, error)
}

//---

// Neo4jExecutor is a QueryRunner backed by the official Neo4j Go driver. It
// manages the driver instance and the target database name, and converts
// Cypher results into raw graph records.
type Neo4jExecutor struct {
	Driver neo4j.DriverWithContext
	DBName string

	// Timeout bounds every Run. Zero means the caller's context alone decides.
	Timeout time.Duration

	// IDProperty, when set, makes neighborhood queries match vertices on this
	// property instead of their element id.
	IDProperty string
}

// NewNeo4jExecutor creates and initializes a new Neo4jExecutor.
// It establishes a connection driver with the provided credentials.
//
// Parameters:
//   - uri: The connection URI for the Neo4j instance (e.g., "neo4j://localhost:7687").
//   - username: The username for authentication.
//   - password: The password for authentication.
//   - dbName: The name of the database to connect to (e.g., "neo4j").
//
// Returns:
//
//	A pointer to the newly created Neo4jExecutor or an error if the driver creation fails.
func NewNeo4jExecutor(uri, username, password, dbName string) (*Neo4jExecutor, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("%w: could not create Neo4j driver: %w", ErrConnection, err)
	}
	return &Neo4jExecutor{Driver: driver, DBName: dbName}, nil
}

// Verify checks the connectivity to the Neo4j database.
//
// Returns:
//
//	An error wrapping ErrConnection if the server cannot be reached.
func (e *Neo4jExecutor) Verify(ctx context.Context) error {
	if err := e.Driver.VerifyConnectivity(ctx); err != nil {
		return classifyNeo4jError(err)
	}
	return nil
}

// Run executes a Cypher query using ExecuteQuery, which handles session and
// transaction management automatically. Every node, relationship and path in
// the result is converted into a raw graph record (see neo4jRecords), so the
// returned payload can be handed to Normalize like any Gremlin result.
//
// Parameters:
//   - ctx: The context for the query execution.
//   - query: The Cypher query string to execute.
//   - params: A map of parameters to be used in the query.
//
// Returns:
//
//	A []any of raw records, or an error wrapping ErrConnection, ErrTimeout or
//	ErrQuery if the execution fails.
func (e *Neo4jExecutor) Run(ctx context.Context, query string, params map[string]interface{}) (any, error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	result, err := neo4j.ExecuteQuery(
		ctx,
		e.Driver,
		query,
		params,
		neo4j.EagerResultTransformer, // Buffers all results in memory before returning.
		neo4j.ExecuteQueryWithDatabase(e.DBName),
	)
	if err != nil {
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: neo4j query exceeded %s", ErrTimeout, e.Timeout)
		}
		return nil, classifyNeo4jError(err)
	}

	return neo4jRecords(result), nil
}

// Close closes the underlying driver.
func (e *Neo4jExecutor) Close(ctx context.Context) error {
	return e.Driver.Close(ctx)
}

// NeighborhoodQuery returns a Cypher query for the vertex and its outgoing
// relationships.
func (e *Neo4jExecutor) NeighborhoodQuery(vertexID string) (string, map[string]interface{}, error) {
	if e.IDProperty != "" {
		return NeighborhoodQuery(e.IDProperty, vertexID)
	}
	query := "MATCH (n)-[r]->(m) WHERE elementId(n) = $id RETURN n, r, m"
	return query, map[string]interface{}{"id": vertexID}, nil
}

func (e *Neo4jExecutor) probeQuery() string {
	return "MATCH (n) RETURN n LIMIT 1"
}

// IsNeo4jURI reports whether the connection string addresses a Neo4j server.
func IsNeo4jURI(uri string) bool {
	for _, scheme := range []string{"neo4j://", "neo4j+s://", "neo4j+ssc://", "bolt://", "bolt+s://", "bolt+ssc://"} {
		if strings.HasPrefix(uri, scheme) {
			return true
		}
	}
	return false
}

// classifyNeo4jError maps driver errors onto the runner error taxonomy.
func classifyNeo4jError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	if neo4j.IsConnectivityError(err) {
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}
	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) {
		if strings.HasPrefix(neoErr.Code, "Neo.ClientError.Security.") {
			return fmt.Errorf("%w: %w", ErrConnection, err)
		}
		return &QueryError{Status: neoErr.Code, Message: neoErr.Msg}
	}
	return fmt.Errorf("%w: error executing neo4j query: %w", ErrQuery, err)
}
