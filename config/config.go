// Package config loads graphview configuration from YAML files, .env files
// and environment variables.
//
// Configuration Precedence (highest to lowest):
//  1. Command-line flags (--connection, --addr, etc.)
//  2. Environment variables (GRAPHVIEW_*, COSMOSDB_*)
//  3. .env file in the working directory
//  4. Config file (graphview.yaml)
//  5. Built-in defaults
//
// Environment Variables:
//
// Server:
//   - GRAPHVIEW_ADDRESS=":8080"
//   - GRAPHVIEW_ALLOWED_ORIGINS="http://localhost:3000,https://example.com"
//
// Graph:
//   - GRAPHVIEW_CONNECTION_STRING="wss://account.gremlin.cosmos.azure.com:443/"
//   - GRAPHVIEW_USERNAME / GRAPHVIEW_PASSWORD
//   - GRAPHVIEW_MIME_TYPE="application/json"
//   - GRAPHVIEW_QUERY_TIMEOUT="10s"
//   - GRAPHVIEW_TEST_TIMEOUT="5s"
//   - GRAPHVIEW_NEO4J_DATABASE="neo4j"
//   - GRAPHVIEW_NEO4J_ID_PROPERTY="userId"
//   - GRAPHVIEW_FLATTEN_PROPERTIES=true
//   - COSMOSDB_GREMLIN_KEY / COSMOSDB_DATABASE / COSMOSDB_COLLECTION
//
// Logging:
//   - GRAPHVIEW_DEBUG=true
//   - GRAPHVIEW_LOG_FORMAT="json"
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	graphview "github.com/saulfrancisco-ruizacevedo/go-graphview"
	"github.com/saulfrancisco-ruizacevedo/go-graphview/logger"
)

// DefaultFile is the config file looked up when none is given.
const DefaultFile = "graphview.yaml"

// Config holds all graphview configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Graph  GraphConfig  `yaml:"graph"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig configures the HTTP service.
type ServerConfig struct {
	Address         string        `yaml:"address" validate:"required"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ReadTimeout     time.Duration `yaml:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
	// MaxBodyBytes caps request bodies, including raw payloads posted for
	// normalization.
	MaxBodyBytes int64 `yaml:"max_body_bytes" validate:"gt=0"`
}

// GraphConfig describes the default graph server and how results are
// normalized. Requests may override the connection.
type GraphConfig struct {
	ConnectionString string `yaml:"connection_string"`
	Username         string `yaml:"username"`
	Password         string `yaml:"password"`
	CosmosKey        string `yaml:"cosmos_key"`
	CosmosDatabase   string `yaml:"cosmos_database"`
	CosmosCollection string `yaml:"cosmos_collection"`
	MimeType         string `yaml:"mime_type" validate:"omitempty,oneof=application/json application/vnd.gremlin-v2.0+json application/vnd.gremlin-v3.0+json"`

	QueryTimeout     time.Duration `yaml:"query_timeout" validate:"gt=0"`
	TestTimeout      time.Duration `yaml:"test_timeout" validate:"gt=0"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" validate:"gt=0"`

	Neo4jDatabase   string `yaml:"neo4j_database"`
	Neo4jIDProperty string `yaml:"neo4j_id_property"`

	FlattenProperties bool `yaml:"flatten_properties"`

	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig configures the per-endpoint circuit breakers.
type BreakerConfig struct {
	MaxRequests      uint32        `yaml:"max_requests" validate:"gt=0"`
	Interval         time.Duration `yaml:"interval" validate:"gte=0"`
	Timeout          time.Duration `yaml:"timeout" validate:"gt=0"`
	FailureThreshold float64       `yaml:"failure_threshold" validate:"gt=0,lte=1"`
	MinRequests      uint32        `yaml:"min_requests"`
}

// LogConfig configures the console logger.
type LogConfig struct {
	Debug  bool   `yaml:"debug"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// Default returns the built-in configuration.
func Default() *Config {
	dial := graphview.DefaultDialOptions()
	breaker := graphview.DefaultBreakerSettings()
	return &Config{
		Server: ServerConfig{
			Address:         ":8080",
			AllowedOrigins:  []string{"*"},
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    10 << 20,
		},
		Graph: GraphConfig{
			QueryTimeout:     dial.QueryTimeout,
			TestTimeout:      graphview.DefaultTestTimeout,
			HandshakeTimeout: dial.HandshakeTimeout,
			Breaker: BreakerConfig{
				MaxRequests:      breaker.MaxRequests,
				Interval:         breaker.Interval,
				Timeout:          breaker.Timeout,
				FailureThreshold: breaker.FailureThreshold,
				MinRequests:      breaker.MinRequests,
			},
		},
		Log: LogConfig{Format: "text"},
	}
}

// Load builds the configuration from defaults, the YAML file at path, a .env
// file and the environment, then validates it. A missing file at path is
// not an error; an empty path looks for DefaultFile.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultFile
	}
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, using system environment variables")
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Address = getEnv("GRAPHVIEW_ADDRESS", c.Server.Address)
	c.Server.AllowedOrigins = getEnvStringSlice("GRAPHVIEW_ALLOWED_ORIGINS", c.Server.AllowedOrigins)

	c.Graph.ConnectionString = getEnv("GRAPHVIEW_CONNECTION_STRING", c.Graph.ConnectionString)
	c.Graph.Username = getEnv("GRAPHVIEW_USERNAME", c.Graph.Username)
	c.Graph.Password = getEnv("GRAPHVIEW_PASSWORD", c.Graph.Password)
	c.Graph.CosmosKey = getEnv("COSMOSDB_GREMLIN_KEY", c.Graph.CosmosKey)
	c.Graph.CosmosDatabase = getEnv("COSMOSDB_DATABASE", c.Graph.CosmosDatabase)
	c.Graph.CosmosCollection = getEnv("COSMOSDB_COLLECTION", c.Graph.CosmosCollection)
	c.Graph.MimeType = getEnv("GRAPHVIEW_MIME_TYPE", c.Graph.MimeType)
	c.Graph.QueryTimeout = getEnvDuration("GRAPHVIEW_QUERY_TIMEOUT", c.Graph.QueryTimeout)
	c.Graph.TestTimeout = getEnvDuration("GRAPHVIEW_TEST_TIMEOUT", c.Graph.TestTimeout)
	c.Graph.Neo4jDatabase = getEnv("GRAPHVIEW_NEO4J_DATABASE", c.Graph.Neo4jDatabase)
	c.Graph.Neo4jIDProperty = getEnv("GRAPHVIEW_NEO4J_ID_PROPERTY", c.Graph.Neo4jIDProperty)
	c.Graph.FlattenProperties = getEnvBool("GRAPHVIEW_FLATTEN_PROPERTIES", c.Graph.FlattenProperties)

	c.Log.Debug = getEnvBool("GRAPHVIEW_DEBUG", c.Log.Debug)
	c.Log.Format = getEnv("GRAPHVIEW_LOG_FORMAT", c.Log.Format)
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Connection returns the default graph connection.
func (c *Config) Connection() graphview.Connection {
	return graphview.Connection{
		ConnectionString: c.Graph.ConnectionString,
		Username:         c.Graph.Username,
		Password:         c.Graph.Password,
		CosmosKey:        c.Graph.CosmosKey,
		CosmosDatabase:   c.Graph.CosmosDatabase,
		CosmosCollection: c.Graph.CosmosCollection,
		MimeType:         c.Graph.MimeType,
	}
}

// DialOptions returns the options for graphview.Dial.
func (c *Config) DialOptions() graphview.DialOptions {
	return graphview.DialOptions{
		QueryTimeout:     c.Graph.QueryTimeout,
		HandshakeTimeout: c.Graph.HandshakeTimeout,
		Neo4jDatabase:    c.Graph.Neo4jDatabase,
		Neo4jIDProperty:  c.Graph.Neo4jIDProperty,
	}
}

// NormalizeOptions returns the options for the normalizer.
func (c *Config) NormalizeOptions() graphview.Options {
	return graphview.Options{FlattenProperties: c.Graph.FlattenProperties}
}

// BreakerSettings returns the circuit breaker settings.
func (c *Config) BreakerSettings() graphview.BreakerSettings {
	return graphview.BreakerSettings{
		MaxRequests:      c.Graph.Breaker.MaxRequests,
		Interval:         c.Graph.Breaker.Interval,
		Timeout:          c.Graph.Breaker.Timeout,
		FailureThreshold: c.Graph.Breaker.FailureThreshold,
		MinRequests:      c.Graph.Breaker.MinRequests,
	}
}

// String returns a representation of the Config safe for logging: secrets
// are masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Address: %s, Connection: %s, Cosmos: %s/%s, Key: %s, QueryTimeout: %s}",
		c.Server.Address,
		c.Graph.ConnectionString,
		c.Graph.CosmosDatabase, c.Graph.CosmosCollection,
		mask(c.Graph.CosmosKey),
		c.Graph.QueryTimeout,
	)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "****"
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		// Try parsing as seconds
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultVal
}

func getEnvStringSlice(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		parts := strings.Split(val, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				result = append(result, p)
			}
		}
		return result
	}
	return defaultVal
}
