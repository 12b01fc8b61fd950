package graphview

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Connection describes how to reach a graph server.
type Connection struct {
	// ConnectionString is the server endpoint: a Gremlin WebSocket URL
	// (scheme optional, wss:// is assumed) or a neo4j:// / bolt:// URI.
	ConnectionString string `json:"connectionString" yaml:"connection_string" validate:"required"`

	// Username and Password are optional SASL credentials for Gremlin servers
	// and the basic auth credentials for Neo4j.
	Username string `json:"username,omitempty" yaml:"username"`
	Password string `json:"password,omitempty" yaml:"password"`

	// Cosmos DB credentials, required when the endpoint is a Cosmos DB account.
	CosmosKey        string `json:"cosmosKey,omitempty" yaml:"cosmos_key"`
	CosmosDatabase   string `json:"cosmosDatabase,omitempty" yaml:"cosmos_database"`
	CosmosCollection string `json:"cosmosCollection,omitempty" yaml:"cosmos_collection"`

	// MimeType overrides the serializer negotiated with a Gremlin server.
	MimeType string `json:"mimeType,omitempty" yaml:"mime_type"`
}

var wsScheme = regexp.MustCompile(`^wss?://`)

// ServerURL returns the WebSocket URL for a Gremlin connection string. When
// the string has no ws:// or wss:// scheme, leading slashes are dropped and
// wss:// is prepended.
func ServerURL(connectionString string) string {
	s := strings.TrimSpace(connectionString)
	if !wsScheme.MatchString(s) {
		s = "wss://" + strings.TrimLeft(s, "/")
	}
	return s
}

// IsCosmos reports whether the connection targets an Azure Cosmos DB account.
func (c Connection) IsCosmos() bool {
	return strings.Contains(ServerURL(c.ConnectionString), "cosmos")
}

// CosmosResourcePath returns the SASL user Cosmos DB expects.
func (c Connection) CosmosResourcePath() string {
	return fmt.Sprintf("/dbs/%s/colls/%s", c.CosmosDatabase, c.CosmosCollection)
}

// credentials resolves the SASL user, password and serializer for a Gremlin
// connection.
func (c Connection) credentials() (user, password, mimeType string, err error) {
	mimeType = c.MimeType
	if c.IsCosmos() {
		if c.CosmosKey == "" || c.CosmosDatabase == "" || c.CosmosCollection == "" {
			return "", "", "", fmt.Errorf("%w: missing Cosmos DB credentials", ErrConnection)
		}
		if mimeType == "" {
			mimeType = MimeGraphSONv2
		}
		return c.CosmosResourcePath(), c.CosmosKey, mimeType, nil
	}
	if mimeType == "" {
		mimeType = MimeJSON
	}
	return c.Username, c.Password, mimeType, nil
}

// DialOptions tunes the runners created by Dial.
type DialOptions struct {
	// QueryTimeout bounds every query. Zero disables the bound.
	QueryTimeout time.Duration
	// HandshakeTimeout bounds the WebSocket handshake.
	HandshakeTimeout time.Duration
	// Neo4jDatabase selects the Neo4j database; empty means the server default.
	Neo4jDatabase string
	// Neo4jIDProperty makes Neo4j neighborhood queries match on a property.
	Neo4jIDProperty string
}

// DefaultDialOptions returns the interactive defaults: queries give
// up after ten seconds.
func DefaultDialOptions() DialOptions {
	return DialOptions{
		QueryTimeout:     10 * time.Second,
		HandshakeTimeout: 10 * time.Second,
	}
}

// Dial connects to the server described by conn and returns a ready runner:
// a Neo4jExecutor for neo4j:// and bolt:// URIs, a GremlinClient otherwise.
func Dial(ctx context.Context, conn Connection, opts DialOptions) (QueryRunner, error) {
	if IsNeo4jURI(conn.ConnectionString) {
		exec, err := NewNeo4jExecutor(conn.ConnectionString, conn.Username, conn.Password, opts.Neo4jDatabase)
		if err != nil {
			return nil, err
		}
		exec.Timeout = opts.QueryTimeout
		exec.IDProperty = opts.Neo4jIDProperty
		if err := exec.Verify(ctx); err != nil {
			_ = exec.Close(ctx)
			return nil, err
		}
		return exec, nil
	}
	return NewGremlinClient(ctx, conn, opts)
}

//---

// GremlinClient is a QueryRunner speaking the Gremlin Server WebSocket
// protocol. It works against Azure Cosmos DB and Apache TinkerPop servers.
// Queries on one client are serialized.
type GremlinClient struct {
	mu       sync.Mutex
	ws       *websocket.Conn
	url      string
	cosmos   bool
	username string
	password string
	mimeType string
	timeout  time.Duration
}

// NewGremlinClient opens a WebSocket connection to the Gremlin server.
//
// Parameters:
//   - ctx: Bounds the handshake.
//   - conn: The server endpoint and credentials. Cosmos DB endpoints require
//     key, database and collection.
//   - opts: Timeouts for the handshake and the queries.
//
// Returns:
//
//	A connected client, or an error wrapping ErrConnection.
func NewGremlinClient(ctx context.Context, conn Connection, opts DialOptions) (*GremlinClient, error) {
	user, password, mimeType, err := conn.credentials()
	if err != nil {
		return nil, err
	}

	serverURL := ServerURL(conn.ConnectionString)
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.HandshakeTimeout,
	}
	ws, resp, err := dialer.DialContext(ctx, serverURL, nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: %s rejected the handshake: %s", ErrConnection, serverURL, resp.Status)
		}
		return nil, fmt.Errorf("%w: could not reach %s: %w", ErrConnection, serverURL, err)
	}

	return &GremlinClient{
		ws:       ws,
		url:      serverURL,
		cosmos:   conn.IsCosmos(),
		username: user,
		password: password,
		mimeType: mimeType,
		timeout:  opts.QueryTimeout,
	}, nil
}

// URL returns the WebSocket URL the client is connected to.
func (c *GremlinClient) URL() string {
	return c.url
}

// Run submits a Gremlin script and collects every partial response into one
// []any, answering authentication challenges on the way.
//
// Parameters:
//   - ctx: Cancels the query. The client's query timeout applies on top.
//   - query: The Gremlin script (e.g. "g.V().limit(10)").
//   - bindings: Script parameters; may be nil.
//
// Returns:
//
//	The accumulated result records. A timeout wraps ErrTimeout and discards
//	the connection; server-side failures are *QueryError.
func (c *GremlinClient) Run(ctx context.Context, query string, bindings map[string]interface{}) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ws == nil {
		return nil, fmt.Errorf("%w: not connected to Gremlin server", ErrConnection)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.ws.SetWriteDeadline(deadline)
		_ = c.ws.SetReadDeadline(deadline)
	} else {
		_ = c.ws.SetWriteDeadline(time.Time{})
		_ = c.ws.SetReadDeadline(time.Time{})
	}
	// Unblock a pending read as soon as the context is done.
	ws := c.ws
	stop := context.AfterFunc(ctx, func() {
		_ = ws.SetReadDeadline(time.Now())
	})
	defer stop()

	requestID := uuid.NewString()
	if err := c.send(evalRequest(requestID, query, bindings)); err != nil {
		return nil, c.fail(ctx, err)
	}

	items := make([]any, 0)
	authenticated := false
	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			return nil, c.fail(ctx, err)
		}
		resp, err := decodeResponse(message)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrQuery, err)
		}

		switch resp.Status.Code {
		case statusSuccess:
			return appendData(items, resp.Result.Data), nil
		case statusPartialContent:
			items = appendData(items, resp.Result.Data)
		case statusNoContent:
			return items, nil
		case statusAuthenticate:
			if authenticated || (c.username == "" && c.password == "") {
				return nil, fmt.Errorf("%w: server requires authentication", ErrConnection)
			}
			authenticated = true
			if err := c.send(authRequest(requestID, c.username, c.password)); err != nil {
				return nil, c.fail(ctx, err)
			}
		case statusUnauthorized:
			return nil, fmt.Errorf("%w: authentication rejected: %s", ErrConnection, resp.Status.Message)
		default:
			return nil, &QueryError{
				Code:      resp.Status.Code,
				Message:   resp.Status.Message,
				RequestID: requestID,
			}
		}
	}
}

func (c *GremlinClient) send(req gremlinRequest) error {
	frame, err := encodeRequest(c.mimeType, req)
	if err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.BinaryMessage, frame)
}

// fail classifies a transport error. The connection is discarded because a
// response stream that was cut short leaves it in an unknown state.
func (c *GremlinClient) fail(ctx context.Context, err error) error {
	_ = c.ws.Close()
	c.ws = nil
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return fmt.Errorf("%w: no response within deadline", ErrTimeout)
		}
		return ctxErr
	}
	// The socket deadline can fire just before the context notices.
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		if _, ok := ctx.Deadline(); ok {
			return fmt.Errorf("%w: no response within deadline", ErrTimeout)
		}
	}
	return fmt.Errorf("%w: %w", ErrConnection, err)
}

// Close sends a close frame and closes the connection. Closing twice is a
// no-op.
func (c *GremlinClient) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ws == nil {
		return nil
	}
	deadline := time.Now().Add(time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	err := c.ws.Close()
	c.ws = nil
	return err
}

// NeighborhoodQuery returns the edges incident to a vertex. The result is an
// edges-only payload; Normalize synthesizes the endpoint vertices.
func (c *GremlinClient) NeighborhoodQuery(vertexID string) (string, map[string]interface{}, error) {
	var id interface{} = vertexID
	// Cosmos ids are always strings; TinkerPop servers commonly use longs.
	if !c.cosmos {
		if n, err := strconv.ParseInt(vertexID, 10, 64); err == nil {
			id = n
		}
	}
	return "g.V(vid).bothE()", map[string]interface{}{"vid": id}, nil
}

func (c *GremlinClient) probeQuery() string {
	return "g.V().limit(1)"
}
