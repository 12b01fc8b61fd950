package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "graphview.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 10*time.Second, cfg.Graph.QueryTimeout)
	assert.Equal(t, 5*time.Second, cfg.Graph.TestTimeout)
	assert.False(t, cfg.Graph.FlattenProperties)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
server:
  address: ":9090"
  allowed_origins: ["http://localhost:3000"]
graph:
  connection_string: "ws://localhost:8182/gremlin"
  query_timeout: 3s
  flatten_properties: true
  breaker:
    failure_threshold: 0.8
log:
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "ws://localhost:8182/gremlin", cfg.Graph.ConnectionString)
	assert.Equal(t, 3*time.Second, cfg.Graph.QueryTimeout)
	assert.True(t, cfg.NormalizeOptions().FlattenProperties)
	assert.Equal(t, 0.8, cfg.BreakerSettings().FailureThreshold)
	assert.Equal(t, uint32(3), cfg.BreakerSettings().MaxRequests, "unset keys keep their defaults")
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeFile(t, `
graph:
  connection_string: "ws://from-file:8182/gremlin"
  cosmos_database: "file-db"
`)
	t.Setenv("GRAPHVIEW_CONNECTION_STRING", "wss://acct.gremlin.cosmos.azure.com:443/")
	t.Setenv("COSMOSDB_GREMLIN_KEY", "secret-key")
	t.Setenv("COSMOSDB_COLLECTION", "people")
	t.Setenv("GRAPHVIEW_QUERY_TIMEOUT", "7")
	t.Setenv("GRAPHVIEW_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("GRAPHVIEW_DEBUG", "yes")

	cfg, err := Load(path)
	require.NoError(t, err)

	conn := cfg.Connection()
	assert.Equal(t, "wss://acct.gremlin.cosmos.azure.com:443/", conn.ConnectionString)
	assert.Equal(t, "secret-key", conn.CosmosKey)
	assert.Equal(t, "file-db", conn.CosmosDatabase)
	assert.Equal(t, "people", conn.CosmosCollection)
	assert.True(t, conn.IsCosmos())

	assert.Equal(t, 7*time.Second, cfg.DialOptions().QueryTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.True(t, cfg.Log.Debug)

	assert.NotContains(t, cfg.String(), "secret-key")
}

func TestValidate(t *testing.T) {
	t.Run("Rejects bad values", func(t *testing.T) {
		path := writeFile(t, `
graph:
  mime_type: "text/plain"
log:
  format: xml
`)
		_, err := Load(path)
		require.Error(t, err)
		assert.ErrorContains(t, err, "mime_type")
		assert.ErrorContains(t, err, "format")
	})

	t.Run("Rejects non-positive timeouts", func(t *testing.T) {
		cfg := Default()
		cfg.Graph.QueryTimeout = 0
		assert.ErrorContains(t, cfg.Validate(), "query_timeout")
	})

	t.Run("Malformed YAML", func(t *testing.T) {
		_, err := Load(writeFile(t, "server: [unclosed"))
		assert.ErrorContains(t, err, "failed to parse config file")
	})
}
