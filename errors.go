package graphview

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the query runners. Callers match them with
// errors.Is; the concrete errors wrap the underlying cause.
var (
	// ErrConnection is returned when the server cannot be reached, credentials
	// are missing or rejected, or the endpoint's circuit breaker is open.
	ErrConnection = errors.New("graph connection error")

	// ErrTimeout is returned when a query does not complete within its bound.
	// It is terminal for that call and never retried automatically.
	ErrTimeout = errors.New("query timeout")

	// ErrQuery is returned when the server rejects or fails to execute a query.
	ErrQuery = errors.New("query failed")
)

// QueryError describes a query the server refused or failed to execute.
// It unwraps to ErrQuery.
type QueryError struct {
	// Code is the Gremlin Server status code (e.g. 597), zero for Neo4j.
	Code int
	// Status is the server's symbolic error code, when it has one
	// (e.g. "Neo.ClientError.Statement.SyntaxError").
	Status    string
	Message   string
	RequestID string
}

func (e *QueryError) Error() string {
	switch {
	case e.Code != 0:
		return fmt.Sprintf("query failed with status %d: %s", e.Code, e.Message)
	case e.Status != "":
		return fmt.Sprintf("query failed with %s: %s", e.Status, e.Message)
	}
	return "query failed: " + e.Message
}

func (e *QueryError) Unwrap() error {
	return ErrQuery
}
