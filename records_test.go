package graphview

import (
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNeo4jRecords(t *testing.T) {
	alice := neo4j.Node{ElementId: "4:a", Labels: []string{"Person", "Admin"}, Props: map[string]any{"name": "Alice"}}
	bob := neo4j.Node{ElementId: "4:b", Labels: []string{"Person"}, Props: map[string]any{"name": "Bob"}}
	knowsRel := neo4j.Relationship{
		ElementId:      "5:r",
		StartElementId: "4:a",
		EndElementId:   "4:b",
		Type:           "KNOWS",
		Props:          map[string]any{"since": int64(2019)},
	}

	t.Run("Nodes and relationships become a connected graph", func(t *testing.T) {
		result := &neo4j.EagerResult{
			Keys: []string{"n", "r", "m"},
			Records: []*neo4j.Record{
				{Keys: []string{"n", "r", "m"}, Values: []any{alice, knowsRel, bob}},
				{Keys: []string{"n", "r", "m"}, Values: []any{alice, knowsRel, bob}},
			},
		}

		graph, report := NormalizeWith(neo4jRecords(result), Options{})

		require.Len(t, graph.Nodes, 2)
		require.Len(t, graph.Edges, 1)
		assert.Equal(t, "Person", graph.Nodes[0].Label)
		assert.Equal(t, "Alice", graph.Nodes[0].Properties["name"])

		e := graph.Edges[0]
		assert.Equal(t, "5:r", e.ID)
		assert.Equal(t, "KNOWS", e.Label)
		assert.Equal(t, "4:a", e.Source)
		assert.Equal(t, "4:b", e.Target)
		assert.Equal(t, int64(2019), e.Properties["since"])
		assert.Equal(t, 3, report.Duplicates)
		assert.Empty(t, graph.Dangling())
	})

	t.Run("Relationships alone carry endpoint labels from their row", func(t *testing.T) {
		records := neo4jRecords(&neo4j.EagerResult{
			Records: []*neo4j.Record{{Keys: []string{"r"}, Values: []any{knowsRel}}},
		})
		require.Len(t, records, 1)
		rec := records[0].(map[string]any)
		assert.NotContains(t, rec, keyOutVLabel)

		graph := Normalize(records)
		require.Len(t, graph.Nodes, 2)
		assert.Equal(t, "", graph.Nodes[0].Label)

		records = neo4jRecords(&neo4j.EagerResult{
			Records: []*neo4j.Record{{Keys: []string{"a", "r"}, Values: []any{alice, knowsRel}}},
		})
		rec = records[1].(map[string]any)
		assert.Equal(t, "Person", rec[keyOutVLabel])
		assert.NotContains(t, rec, keyInVLabel)
	})

	t.Run("Paths expand to their elements", func(t *testing.T) {
		path := neo4j.Path{Nodes: []neo4j.Node{alice, bob}, Relationships: []neo4j.Relationship{knowsRel}}
		records := neo4jRecords(&neo4j.EagerResult{
			Records: []*neo4j.Record{{Keys: []string{"p"}, Values: []any{path}}},
		})
		require.Len(t, records, 3)

		rel := records[2].(map[string]any)
		assert.Equal(t, "Person", rel[keyOutVLabel])
		assert.Equal(t, "Person", rel[keyInVLabel])
	})

	t.Run("Scalar columns form one plain row", func(t *testing.T) {
		records := neo4jRecords(&neo4j.EagerResult{
			Records: []*neo4j.Record{{Keys: []string{"name", "age"}, Values: []any{"Alice", int64(29)}}},
		})
		require.Len(t, records, 1)
		assert.Equal(t, map[string]any{"name": "Alice", "age": int64(29)}, records[0])
		assert.Equal(t, KindUnrecognized, Classify(records[0]))
	})
}

func TestNeighborhoodQueries(t *testing.T) {
	query, params, err := NeighborhoodQuery("userId", "u-1")
	require.NoError(t, err)
	assert.Contains(t, query, "MATCH")
	assert.Contains(t, query, "RETURN")
	assert.NotContains(t, query, "u-1", "values travel as parameters")
	values := make([]any, 0, len(params))
	for _, v := range params {
		values = append(values, v)
	}
	assert.Contains(t, values, "u-1")

	exec := &Neo4jExecutor{}
	query, params, err = exec.NeighborhoodQuery("4:abc")
	require.NoError(t, err)
	assert.Equal(t, "MATCH (n)-[r]->(m) WHERE elementId(n) = $id RETURN n, r, m", query)
	assert.Equal(t, map[string]interface{}{"id": "4:abc"}, params)
}
