package graphview

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/saulfrancisco-ruizacevedo/go-graphview/models"
)

// Options tunes a normalization pass.
type Options struct {
	// FlattenProperties unwraps GraphSON vertex property lists
	// ([{"id":..,"value":v}]) and typed values ({"@type":..,"@value":v})
	// into plain values. Off by default so properties pass through untouched.
	FlattenProperties bool
}

// Normalize converts a raw Gremlin query payload into canonical nodes and
// edges. It accepts a bare sequence of records or any of the known result
// envelopes, understands both Cosmos DB (GraphSON, type-tagged) and plain
// TinkerPop records, and never fails: records it cannot recognize are
// dropped. A nil payload yields an empty result.
//
// When the payload holds edges but no vertices, the endpoints referenced by
// the edges are synthesized as nodes so every edge resolves.
func Normalize(payload any) *models.GraphResult {
	graph, _ := NormalizeWith(payload, Options{})
	return graph
}

// NormalizeWith is Normalize with options. It also returns a Report with
// per-pass counters for logging and metrics.
func NormalizeWith(payload any, opts Options) (*models.GraphResult, models.Report) {
	n := &normalizer{
		opts:    opts,
		graph:   models.NewGraphResult(),
		nodeIDs: make(map[string]struct{}),
		edgeIDs: make(map[string]struct{}),
	}
	for _, item := range extractRecords(payload) {
		n.add(item)
	}
	n.repair()
	return n.graph, n.report
}

// NormalizeJSON decodes a JSON payload and normalizes it. Only malformed JSON
// produces an error.
func NormalizeJSON(data []byte, opts Options) (*models.GraphResult, models.Report, error) {
	payload, err := DecodePayload(data)
	if err != nil {
		return models.NewGraphResult(), models.Report{}, err
	}
	graph, report := NormalizeWith(payload, opts)
	return graph, report, nil
}

// DecodePayload decodes a JSON document into generic values. Numbers are kept
// as json.Number so numeric ids keep their exact textual form. Empty input
// decodes to nil.
func DecodePayload(data []byte) (any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("could not decode payload: %w", err)
	}
	return payload, nil
}

// normalizer holds the call-local state of one pass.
type normalizer struct {
	opts    Options
	graph   *models.GraphResult
	report  models.Report
	nodeIDs map[string]struct{}
	edgeIDs map[string]struct{}
}

func (n *normalizer) add(item any) {
	n.report.Records++

	rec, r := classify(item)
	if r == nil {
		n.report.Unrecognized++
		return
	}

	switch r.Kind {
	case KindVertex:
		node := n.vertex(rec, r)
		if node == nil {
			n.report.Unrecognized++
			return
		}
		if _, seen := n.nodeIDs[node.ID]; seen {
			n.report.Duplicates++
			return
		}
		n.nodeIDs[node.ID] = struct{}{}
		n.graph.Nodes = append(n.graph.Nodes, node)
		n.report.Vertices++

	case KindEdge:
		edge := n.edge(rec, r)
		if edge == nil {
			n.report.Unrecognized++
			return
		}
		if _, seen := n.edgeIDs[edge.ID]; seen {
			n.report.Duplicates++
			return
		}
		n.edgeIDs[edge.ID] = struct{}{}
		n.graph.Edges = append(n.graph.Edges, edge)
		n.report.Edges++
	}
}

func (n *normalizer) vertex(rec map[string]any, r *recognizer) *models.Node {
	id := identity(rec)
	if id == "" {
		return nil
	}
	return &models.Node{
		ID:         id,
		Label:      lookupString(rec, keyLabel),
		Properties: n.properties(rec, r),
	}
}

func (n *normalizer) edge(rec map[string]any, r *recognizer) *models.Edge {
	id := identity(rec)
	source := lookupString(rec, keyOutV)
	target := lookupString(rec, keyInV)
	if id == "" || source == "" || target == "" {
		return nil
	}
	return &models.Edge{
		ID:          id,
		Label:       lookupString(rec, keyLabel),
		Source:      source,
		Target:      target,
		SourceLabel: lookupString(rec, keyOutVLabel),
		TargetLabel: lookupString(rec, keyInVLabel),
		Properties:  n.properties(rec, r),
	}
}

func (n *normalizer) properties(rec map[string]any, r *recognizer) map[string]any {
	if r.Loose && lookup(rec, keyProperties) == nil {
		return looseProperties(rec, n.opts.FlattenProperties)
	}
	return propertyBag(rec, n.opts.FlattenProperties)
}
