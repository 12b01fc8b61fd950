package graphview

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// decodeFrame splits a binary Gremlin request frame into mime type and request.
func decodeFrame(t *testing.T, frame []byte) (string, gremlinRequest) {
	t.Helper()
	require.NotEmpty(t, frame)
	n := int(frame[0])
	require.GreaterOrEqual(t, len(frame), 1+n)

	var req gremlinRequest
	require.NoError(t, json.Unmarshal(frame[1+n:], &req))
	return string(frame[1 : 1+n]), req
}

type gremlinReply struct {
	code int
	msg  string
	data any
}

// fakeGremlinServer answers every request through handle. It records the
// mime type and requests it saw.
type fakeGremlinServer struct {
	*httptest.Server
	t        *testing.T
	mimes    chan string
	requests chan gremlinRequest
}

func newFakeGremlinServer(t *testing.T, handle func(req gremlinRequest) []gremlinReply) *fakeGremlinServer {
	t.Helper()
	f := &fakeGremlinServer{
		t:        t,
		mimes:    make(chan string, 16),
		requests: make(chan gremlinRequest, 16),
	}
	upgrader := websocket.Upgrader{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			_, frame, err := ws.ReadMessage()
			if err != nil {
				return
			}
			mime, req := decodeFrame(t, frame)
			f.mimes <- mime
			f.requests <- req
			for _, reply := range handle(req) {
				body, _ := json.Marshal(map[string]any{
					"requestId": req.RequestID,
					"status":    map[string]any{"code": reply.code, "message": reply.msg, "attributes": map[string]any{}},
					"result":    map[string]any{"data": reply.data, "meta": map[string]any{}},
				})
				if err := ws.WriteMessage(websocket.TextMessage, body); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeGremlinServer) wsURL() string {
	return "ws" + strings.TrimPrefix(f.URL, "http")
}

func dialFake(t *testing.T, f *fakeGremlinServer, conn Connection) *GremlinClient {
	t.Helper()
	conn.ConnectionString = f.wsURL()
	client, err := NewGremlinClient(context.Background(), conn, DefaultDialOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close(context.Background()) })
	return client
}

func TestGremlinClientRun(t *testing.T) {
	ctx := context.Background()

	t.Run("Partial responses are accumulated", func(t *testing.T) {
		f := newFakeGremlinServer(t, func(req gremlinRequest) []gremlinReply {
			return []gremlinReply{
				{code: 206, data: []any{map[string]any{"id": "1"}}},
				{code: 206, data: []any{map[string]any{"id": "2"}}},
				{code: 200, data: []any{map[string]any{"id": "3"}}},
			}
		})
		client := dialFake(t, f, Connection{})

		raw, err := client.Run(ctx, "g.V()", map[string]interface{}{"x": 1})
		require.NoError(t, err)

		items, ok := raw.([]any)
		require.True(t, ok)
		require.Len(t, items, 3)
		assert.Equal(t, "3", items[2].(map[string]any)["id"])

		assert.Equal(t, MimeJSON, <-f.mimes)
		req := <-f.requests
		assert.Equal(t, "eval", req.Op)
		assert.Equal(t, "g.V()", req.Args["gremlin"])
		assert.Equal(t, "gremlin-groovy", req.Args["language"])
		assert.Equal(t, map[string]any{"x": float64(1)}, req.Args["bindings"])
		assert.NotEmpty(t, req.RequestID)
	})

	t.Run("No content yields an empty result", func(t *testing.T) {
		f := newFakeGremlinServer(t, func(req gremlinRequest) []gremlinReply {
			return []gremlinReply{{code: 204}}
		})
		raw, err := dialFake(t, f, Connection{}).Run(ctx, "g.V().hasLabel('none')", nil)
		require.NoError(t, err)
		assert.Equal(t, []any{}, raw)
	})

	t.Run("Numbers keep their precision", func(t *testing.T) {
		f := newFakeGremlinServer(t, func(req gremlinRequest) []gremlinReply {
			return []gremlinReply{{code: 200, data: []any{map[string]any{"id": int64(9007199254740993)}}}}
		})
		raw, err := dialFake(t, f, Connection{}).Run(ctx, "g.V()", nil)
		require.NoError(t, err)
		assert.Equal(t, json.Number("9007199254740993"), raw.([]any)[0].(map[string]any)["id"])
	})

	t.Run("Authentication challenge is answered with SASL PLAIN", func(t *testing.T) {
		f := newFakeGremlinServer(t, func(req gremlinRequest) []gremlinReply {
			if req.Op == "authentication" {
				return []gremlinReply{{code: 200, data: []any{"ok"}}}
			}
			return []gremlinReply{{code: 407, msg: "authenticate"}}
		})
		client := dialFake(t, f, Connection{Username: "user", Password: "secret"})

		raw, err := client.Run(ctx, "g.V()", nil)
		require.NoError(t, err)
		assert.Equal(t, []any{"ok"}, raw)

		eval := <-f.requests
		auth := <-f.requests
		assert.Equal(t, "authentication", auth.Op)
		assert.Equal(t, eval.RequestID, auth.RequestID)
		assert.Equal(t, "PLAIN", auth.Args["saslMechanism"])
		sasl, err := base64.StdEncoding.DecodeString(auth.Args["sasl"].(string))
		require.NoError(t, err)
		assert.Equal(t, "\x00user\x00secret", string(sasl))
	})

	t.Run("Challenge without credentials is a connection error", func(t *testing.T) {
		f := newFakeGremlinServer(t, func(req gremlinRequest) []gremlinReply {
			return []gremlinReply{{code: 407}}
		})
		_, err := dialFake(t, f, Connection{}).Run(ctx, "g.V()", nil)
		assert.ErrorIs(t, err, ErrConnection)
	})

	t.Run("Unauthorized is a connection error", func(t *testing.T) {
		f := newFakeGremlinServer(t, func(req gremlinRequest) []gremlinReply {
			return []gremlinReply{{code: 401, msg: "bad key"}}
		})
		_, err := dialFake(t, f, Connection{}).Run(ctx, "g.V()", nil)
		assert.ErrorIs(t, err, ErrConnection)
		assert.ErrorContains(t, err, "bad key")
	})

	t.Run("Script errors become QueryError", func(t *testing.T) {
		f := newFakeGremlinServer(t, func(req gremlinRequest) []gremlinReply {
			return []gremlinReply{{code: 597, msg: "No such property: x"}}
		})
		_, err := dialFake(t, f, Connection{}).Run(ctx, "x", nil)

		assert.ErrorIs(t, err, ErrQuery)
		var qe *QueryError
		require.ErrorAs(t, err, &qe)
		assert.Equal(t, 597, qe.Code)
		assert.Equal(t, "No such property: x", qe.Message)
	})

	t.Run("Silent server times out", func(t *testing.T) {
		f := newFakeGremlinServer(t, func(req gremlinRequest) []gremlinReply {
			return nil
		})
		client := dialFake(t, f, Connection{})
		client.timeout = 50 * time.Millisecond

		_, err := client.Run(ctx, "g.V()", nil)
		assert.ErrorIs(t, err, ErrTimeout)

		// The connection is discarded after a timeout.
		_, err = client.Run(ctx, "g.V()", nil)
		assert.ErrorIs(t, err, ErrConnection)
	})

	t.Run("Queries after Close fail", func(t *testing.T) {
		f := newFakeGremlinServer(t, func(req gremlinRequest) []gremlinReply {
			return []gremlinReply{{code: 204}}
		})
		client := dialFake(t, f, Connection{})
		require.NoError(t, client.Close(ctx))
		require.NoError(t, client.Close(ctx))

		_, err := client.Run(ctx, "g.V()", nil)
		assert.ErrorIs(t, err, ErrConnection)
	})
}

func TestGremlinClientMimeOverride(t *testing.T) {
	f := newFakeGremlinServer(t, func(req gremlinRequest) []gremlinReply {
		return []gremlinReply{{code: 204}}
	})
	client := dialFake(t, f, Connection{MimeType: MimeGraphSONv3})

	_, err := client.Run(context.Background(), "g.V()", nil)
	require.NoError(t, err)
	assert.Equal(t, MimeGraphSONv3, <-f.mimes)
}

func TestDialUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	_, err := Dial(context.Background(), Connection{ConnectionString: url}, DefaultDialOptions())
	assert.ErrorIs(t, err, ErrConnection)
}

func TestConnectionSettings(t *testing.T) {
	t.Run("ServerURL", func(t *testing.T) {
		cases := [][2]string{
			{"wss://host:443/", "wss://host:443/"},
			{"ws://localhost:8182/gremlin", "ws://localhost:8182/gremlin"},
			{"acct.gremlin.cosmos.azure.com:443/", "wss://acct.gremlin.cosmos.azure.com:443/"},
			{"//acct.gremlin.cosmos.azure.com:443/", "wss://acct.gremlin.cosmos.azure.com:443/"},
			{"  localhost:8182/gremlin ", "wss://localhost:8182/gremlin"},
		}
		for _, c := range cases {
			in, want := c[0], c[1]
			assert.Equal(t, want, ServerURL(in), in)
		}
	})

	t.Run("Cosmos credentials", func(t *testing.T) {
		conn := Connection{ConnectionString: "wss://acct.gremlin.cosmos.azure.com:443/"}
		require.True(t, conn.IsCosmos())

		_, _, _, err := conn.credentials()
		assert.ErrorIs(t, err, ErrConnection)
		assert.ErrorContains(t, err, "missing Cosmos DB credentials")

		conn.CosmosKey, conn.CosmosDatabase, conn.CosmosCollection = "key", "db", "coll"
		user, password, mime, err := conn.credentials()
		require.NoError(t, err)
		assert.Equal(t, "/dbs/db/colls/coll", user)
		assert.Equal(t, "key", password)
		assert.Equal(t, MimeGraphSONv2, mime)
	})

	t.Run("Plain servers use untyped JSON", func(t *testing.T) {
		conn := Connection{ConnectionString: "ws://localhost:8182/gremlin", Username: "u"}
		assert.False(t, conn.IsCosmos())

		user, _, mime, err := conn.credentials()
		require.NoError(t, err)
		assert.Equal(t, "u", user)
		assert.Equal(t, MimeJSON, mime)
	})

	t.Run("Neo4j URIs", func(t *testing.T) {
		assert.True(t, IsNeo4jURI("neo4j://localhost:7687"))
		assert.True(t, IsNeo4jURI("bolt+s://db.example.com"))
		assert.False(t, IsNeo4jURI("ws://localhost:8182/gremlin"))
	})
}

func TestGremlinNeighborhoodQuery(t *testing.T) {
	tinker := &GremlinClient{}
	query, bindings, err := tinker.NeighborhoodQuery("42")
	require.NoError(t, err)
	assert.Equal(t, "g.V(vid).bothE()", query)
	assert.Equal(t, int64(42), bindings["vid"])

	_, bindings, _ = tinker.NeighborhoodQuery("marko")
	assert.Equal(t, "marko", bindings["vid"])

	cosmos := &GremlinClient{cosmos: true}
	_, bindings, _ = cosmos.NeighborhoodQuery("42")
	assert.Equal(t, "42", bindings["vid"])
}
