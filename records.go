package graphview

import (
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/saulfrancisco-ruizacevedo/gocypher"
)

// neo4jRecords translates an eager Cypher result into raw graph records in
// the TinkerPop dialect: nodes become vertex records, relationships edge
// records and paths both. Remaining scalar columns of a row are kept together
// as one plain record, which the normalizer ignores unless it looks like a
// vertex or an edge.
//
// Relationship records carry the labels of their endpoints when the same row
// also returned those nodes, so edges-only repairs get proper labels.
func neo4jRecords(result *neo4j.EagerResult) []any {
	records := make([]any, 0, len(result.Records))
	for _, record := range result.Records {
		labels := make(map[string]string)
		for _, value := range record.Values {
			switch v := value.(type) {
			case neo4j.Node:
				labels[v.ElementId] = firstLabel(v)
			case neo4j.Path:
				for _, n := range v.Nodes {
					labels[n.ElementId] = firstLabel(n)
				}
			}
		}

		row := make(map[string]any)
		for i, value := range record.Values {
			switch v := value.(type) {
			case neo4j.Node:
				records = append(records, nodeRecord(v))
			case neo4j.Relationship:
				records = append(records, relationshipRecord(v, labels))
			case neo4j.Path:
				for _, n := range v.Nodes {
					records = append(records, nodeRecord(n))
				}
				for _, r := range v.Relationships {
					records = append(records, relationshipRecord(r, labels))
				}
			default:
				if i < len(record.Keys) {
					row[record.Keys[i]] = v
				}
			}
		}
		if len(row) > 0 {
			records = append(records, row)
		}
	}
	return records
}

func firstLabel(n neo4j.Node) string {
	if len(n.Labels) == 0 {
		return ""
	}
	return n.Labels[0]
}

func nodeRecord(n neo4j.Node) map[string]any {
	return map[string]any{
		keyID:         n.ElementId,
		keyLabel:      firstLabel(n),
		keyType:       "vertex",
		keyProperties: n.Props,
	}
}

func relationshipRecord(r neo4j.Relationship, labels map[string]string) map[string]any {
	rec := map[string]any{
		keyID:         r.ElementId,
		keyLabel:      r.Type,
		keyType:       "edge",
		keyOutV:       r.StartElementId,
		keyInV:        r.EndElementId,
		keyProperties: r.Props,
	}
	if l, ok := labels[r.StartElementId]; ok {
		rec[keyOutVLabel] = l
	}
	if l, ok := labels[r.EndElementId]; ok {
		rec[keyInVLabel] = l
	}
	return rec
}

// NeighborhoodQuery builds a Cypher query returning the vertex whose property
// key equals value, together with its outgoing relationships and their
// targets.
func NeighborhoodQuery(key string, value any) (string, map[string]interface{}, error) {
	return gocypher.NewQueryBuilder().
		Match(gocypher.N("n", "").WithProperties(map[string]interface{}{key: value})).
		Match(
			gocypher.NRef("n"),
			gocypher.R("r", "").To(),
			gocypher.N("m", ""),
		).
		Return("n", "r", "m").
		Build()
}
