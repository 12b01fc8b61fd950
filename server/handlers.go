package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	graphview "github.com/saulfrancisco-ruizacevedo/go-graphview"
	"github.com/saulfrancisco-ruizacevedo/go-graphview/logger"
	"github.com/saulfrancisco-ruizacevedo/go-graphview/models"
)

const (
	msgMissingQuery  = "Missing query or connection string"
	msgMissingVertex = "Missing vertex id or connection string"
	msgMissingCosmos = "Missing Cosmos DB credentials."
)

type queryRequest struct {
	Query    string                 `json:"query" validate:"required"`
	Bindings map[string]interface{} `json:"bindings,omitempty"`
	graphview.Connection
}

type expandRequest struct {
	VertexID string `json:"vertexId" validate:"required"`
	graphview.Connection
}

type testRequest struct {
	graphview.Connection
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// query runs a Gremlin (or Cypher) query and returns the raw payload with
// its normalized nodes and edges.
func (s *Server) query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.Connection = s.withDefaults(req.Connection)
	if err := s.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, msgMissingQuery)
		return
	}
	if missingCosmosCredentials(req.Connection) {
		respondError(w, http.StatusBadRequest, msgMissingCosmos)
		return
	}

	res, err := s.explore(r.Context(), req.Connection, func(e *graphview.Explorer) (*models.QueryResult, error) {
		return e.Query(r.Context(), req.Query, req.Bindings)
	})
	if err != nil {
		s.respondRunError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// expand returns the neighborhood of one vertex.
func (s *Server) expand(w http.ResponseWriter, r *http.Request) {
	var req expandRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.Connection = s.withDefaults(req.Connection)
	if err := s.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, msgMissingVertex)
		return
	}
	if missingCosmosCredentials(req.Connection) {
		respondError(w, http.StatusBadRequest, msgMissingCosmos)
		return
	}

	res, err := s.explore(r.Context(), req.Connection, func(e *graphview.Explorer) (*models.QueryResult, error) {
		return e.Expand(r.Context(), req.VertexID)
	})
	if err != nil {
		s.respondRunError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// testConnection dials the server and runs a probe query. Failures are
// reported in the body with status 200.
func (s *Server) testConnection(w http.ResponseWriter, r *http.Request) {
	var req testRequest
	if !s.decode(w, r, &req) {
		return
	}
	conn := s.withDefaults(req.Connection)
	if err := s.validate.Struct(conn); err != nil {
		respondError(w, http.StatusBadRequest, "Missing connection string")
		return
	}

	runner, err := s.dial(r.Context(), conn, s.cfg.DialOptions())
	if err != nil {
		respondJSON(w, http.StatusOK, models.TestResult{Success: false, Error: err.Error()})
		return
	}
	defer closeRunner(runner)

	respondJSON(w, http.StatusOK, graphview.Probe(r.Context(), runner, s.cfg.Graph.TestTimeout))
}

// normalize converts a raw result payload posted as the request body. The
// flatten query parameter overrides the configured property flattening.
func (s *Server) normalize(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "Payload too large")
		return
	}

	opts := s.cfg.NormalizeOptions()
	if v := r.URL.Query().Get("flatten"); v != "" {
		flatten, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid flatten value %q", v))
			return
		}
		opts.FlattenProperties = flatten
	}

	graph, report, err := graphview.NormalizeJSON(data, opts)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.metrics.Normalized(report)
	respondJSON(w, http.StatusOK, graph)
}

//---

// explore dials the server, runs fn on an Explorer and closes the
// connection, all through the endpoint's circuit breaker.
func (s *Server) explore(ctx context.Context, conn graphview.Connection, fn func(*graphview.Explorer) (*models.QueryResult, error)) (*models.QueryResult, error) {
	breaker := s.breakers.For(conn.ConnectionString)
	out, err := breaker.Do(func() (any, error) {
		runner, err := s.dial(ctx, conn, s.cfg.DialOptions())
		if err != nil {
			return nil, err
		}
		defer closeRunner(runner)

		explorer := graphview.NewExplorer(runner, s.cfg.NormalizeOptions())
		explorer.SetObserver(s.metrics)
		return fn(explorer)
	})
	if err != nil {
		return nil, err
	}
	return out.(*models.QueryResult), nil
}

// withDefaults fills unset connection fields from the configuration. Cosmos
// DB credentials always fall back; the SASL user and password only when the
// request targets the configured server.
func (s *Server) withDefaults(conn graphview.Connection) graphview.Connection {
	g := s.cfg.Graph
	if conn.ConnectionString == "" {
		conn.ConnectionString = g.ConnectionString
	}
	if conn.ConnectionString == g.ConnectionString {
		if conn.Username == "" {
			conn.Username = g.Username
		}
		if conn.Password == "" {
			conn.Password = g.Password
		}
		if conn.MimeType == "" {
			conn.MimeType = g.MimeType
		}
	}
	if conn.CosmosKey == "" {
		conn.CosmosKey = g.CosmosKey
	}
	if conn.CosmosDatabase == "" {
		conn.CosmosDatabase = g.CosmosDatabase
	}
	if conn.CosmosCollection == "" {
		conn.CosmosCollection = g.CosmosCollection
	}
	return conn
}

func missingCosmosCredentials(conn graphview.Connection) bool {
	if graphview.IsNeo4jURI(conn.ConnectionString) || !conn.IsCosmos() {
		return false
	}
	return conn.CosmosKey == "" || conn.CosmosDatabase == "" || conn.CosmosCollection == ""
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}

// respondRunError maps runner errors onto HTTP statuses: timeouts are 504,
// unreachable or rejected servers 502, everything else 500.
func (s *Server) respondRunError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, graphview.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, graphview.ErrConnection):
		status = http.StatusBadGateway
	}
	logger.Warn("Graph query failed", "path", r.URL.Path, "status", status, "error", err)
	respondError(w, status, err.Error())
}

func closeRunner(runner graphview.QueryRunner) {
	if err := runner.Close(context.Background()); err != nil {
		logger.Debug("Closing graph connection failed", "error", err)
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Could not encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}
