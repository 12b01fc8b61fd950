// Package models contains the canonical graph structures produced by the
// graphview normalizer. They are designed to be serialized to JSON for
// frontend graph visualization libraries or other services.
package models

// Node represents a canonical vertex, whatever dialect the query server spoke.
// It captures the identity of the vertex, its label and its property bag.
type Node struct {
	// ID is the vertex identifier rendered as a string. It is never empty and
	// unique within a GraphResult.
	ID string `json:"id"`

	// Label is the vertex label (e.g. "person"). Empty when unresolvable.
	Label string `json:"label"`

	// Properties holds the vertex properties. It is kept apart from ID and
	// Label so that a property named "id" or "label" cannot shadow them.
	Properties map[string]interface{} `json:"properties"`
}

// Edge represents a canonical edge between two vertices. Source is the id of
// the out vertex and Target the id of the in vertex.
type Edge struct {
	// ID is the edge identifier rendered as a string.
	ID string `json:"id"`

	// Label is the edge label (e.g. "knows").
	Label string `json:"label"`

	// Source is the id of the vertex the edge starts at (outV).
	Source string `json:"source"`

	// Target is the id of the vertex the edge ends at (inV).
	Target string `json:"target"`

	// SourceLabel and TargetLabel are label hints for the endpoints as reported
	// by the server (outVLabel / inVLabel). They are used when an endpoint has
	// to be synthesized.
	SourceLabel string `json:"sourceLabel,omitempty"`
	TargetLabel string `json:"targetLabel,omitempty"`

	// Properties holds the edge properties.
	Properties map[string]interface{} `json:"properties"`
}

// GraphResult is a top-level container for a normalized query result.
// Nodes and Edges are never nil, so they serialize as empty JSON arrays.
type GraphResult struct {
	// Nodes contains all the unique vertices of the result.
	Nodes []*Node `json:"nodes"`

	// Edges contains all the unique edges of the result.
	Edges []*Edge `json:"edges"`
}

// NewGraphResult returns an empty GraphResult with non-nil slices.
func NewGraphResult() *GraphResult {
	return &GraphResult{
		Nodes: make([]*Node, 0),
		Edges: make([]*Edge, 0),
	}
}

// NodeByID returns the node with the given id, or nil.
func (g *GraphResult) NodeByID(id string) *Node {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// Dangling returns the edges whose source or target does not resolve to a
// node of the result.
func (g *GraphResult) Dangling() []*Edge {
	ids := make(map[string]struct{}, len(g.Nodes))
	for _, n := range g.Nodes {
		ids[n.ID] = struct{}{}
	}
	var out []*Edge
	for _, e := range g.Edges {
		_, okSource := ids[e.Source]
		_, okTarget := ids[e.Target]
		if !okSource || !okTarget {
			out = append(out, e)
		}
	}
	return out
}

// Report carries diagnostic counters for a single normalization pass.
type Report struct {
	Records      int `json:"records"`
	Vertices     int `json:"vertices"`
	Edges        int `json:"edges"`
	Unrecognized int `json:"unrecognized"`
	Duplicates   int `json:"duplicates"`
	Synthesized  int `json:"synthesized"`
}

// QueryResult pairs a normalized graph with the raw payload it came from.
// The embedded GraphResult serializes its nodes and edges at the top level,
// next to raw.
type QueryResult struct {
	// Raw is the payload exactly as the server returned it.
	Raw any `json:"raw"`

	*GraphResult

	Report Report `json:"-"`
}

// TestResult is the outcome of a connection test.
type TestResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	// Data is the probe query's raw result.
	Data any `json:"data,omitempty"`
}
