package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestNormalizeCommand(t *testing.T) {
	payload := `[{"id":"e1","label":"knows","type":"edge","outV":"1","inV":"2","outVLabel":"person","inVLabel":"person"}]`

	t.Run("From stdin", func(t *testing.T) {
		stdout, stderr, err := execute(t, payload, "normalize")
		require.NoError(t, err)

		var graph struct {
			Nodes []map[string]any `json:"nodes"`
			Edges []map[string]any `json:"edges"`
		}
		require.NoError(t, json.Unmarshal([]byte(stdout), &graph))
		assert.Len(t, graph.Nodes, 2)
		assert.Len(t, graph.Edges, 1)
		assert.Contains(t, stderr, "2 synthesized")
	})

	t.Run("From file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "result.json")
		require.NoError(t, os.WriteFile(path, []byte(payload), 0o600))

		stdout, _, err := execute(t, "", "normalize", path)
		require.NoError(t, err)
		assert.Contains(t, stdout, `"source": "1"`)
	})

	t.Run("Invalid payload", func(t *testing.T) {
		_, _, err := execute(t, "[{", "normalize")
		assert.Error(t, err)
	})
}

func TestVersionCommand(t *testing.T) {
	stdout, _, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "graphview v"+version)
}

func TestQueryRequiresConnection(t *testing.T) {
	t.Setenv("GRAPHVIEW_CONNECTION_STRING", "")
	_, _, err := execute(t, "", "query", "g.V()", "--config", filepath.Join(t.TempDir(), "none.yaml"))
	assert.ErrorContains(t, err, "missing connection string")
}
