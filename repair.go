package graphview

import "github.com/saulfrancisco-ruizacevedo/go-graphview/models"

// repair synthesizes endpoint vertices for edges-only results, which servers
// return for traversals such as g.V(id).bothE(). It runs only when no vertex
// was extracted at all; a partial vertex list is left as the server sent it.
//
// Endpoints are appended in discovery order: per edge the source before the
// target, edges in input order. Labels come from the edge's endpoint label
// hints and default to "".
func (n *normalizer) repair() {
	if len(n.graph.Nodes) > 0 || len(n.graph.Edges) == 0 {
		return
	}

	seen := make(map[string]struct{})
	for _, e := range n.graph.Edges {
		n.synthesize(seen, e.Source, e.SourceLabel)
		n.synthesize(seen, e.Target, e.TargetLabel)
	}
}

func (n *normalizer) synthesize(seen map[string]struct{}, id, label string) {
	if id == "" {
		return
	}
	if _, ok := seen[id]; ok {
		return
	}
	seen[id] = struct{}{}
	n.graph.Nodes = append(n.graph.Nodes, &models.Node{
		ID:         id,
		Label:      label,
		Properties: make(map[string]interface{}),
	})
	n.report.Synthesized++
}
