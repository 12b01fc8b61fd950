package graphview

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Gremlin Server response status codes.
const (
	statusSuccess                  = 200
	statusNoContent                = 204
	statusPartialContent           = 206
	statusUnauthorized             = 401
	statusAuthenticate             = 407
	statusMalformedRequest         = 498
	statusInvalidRequestArguments  = 499
	statusServerError              = 500
	statusScriptEvaluationError    = 597
	statusServerTimeout            = 598
	statusServerSerializationError = 599
)

// Serializer mime types negotiated with the server.
const (
	MimeGraphSONv2 = "application/vnd.gremlin-v2.0+json"
	MimeGraphSONv3 = "application/vnd.gremlin-v3.0+json"
	MimeJSON       = "application/json"
)

type gremlinRequest struct {
	RequestID string                 `json:"requestId"`
	Op        string                 `json:"op"`
	Processor string                 `json:"processor"`
	Args      map[string]interface{} `json:"args"`
}

type gremlinStatus struct {
	Code       int            `json:"code"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes"`
}

type gremlinResult struct {
	Data any            `json:"data"`
	Meta map[string]any `json:"meta"`
}

type gremlinResponse struct {
	RequestID any           `json:"requestId"`
	Status    gremlinStatus `json:"status"`
	Result    gremlinResult `json:"result"`
}

func evalRequest(requestID, query string, bindings map[string]interface{}) gremlinRequest {
	if bindings == nil {
		bindings = map[string]interface{}{}
	}
	return gremlinRequest{
		RequestID: requestID,
		Op:        "eval",
		Processor: "",
		Args: map[string]interface{}{
			"gremlin":  query,
			"bindings": bindings,
			"language": "gremlin-groovy",
		},
	}
}

// authRequest answers a 407 challenge with SASL PLAIN credentials.
func authRequest(requestID, username, password string) gremlinRequest {
	sasl := base64.StdEncoding.EncodeToString([]byte("\x00" + username + "\x00" + password))
	return gremlinRequest{
		RequestID: requestID,
		Op:        "authentication",
		Processor: "",
		Args: map[string]interface{}{
			"saslMechanism": "PLAIN",
			"sasl":          sasl,
		},
	}
}

// encodeRequest frames a request the way Gremlin Server expects binary
// messages: one length byte, the mime type, then the serialized request.
func encodeRequest(mimeType string, req gremlinRequest) ([]byte, error) {
	if len(mimeType) > 255 {
		return nil, fmt.Errorf("mime type %q too long", mimeType)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("could not encode gremlin request: %w", err)
	}
	frame := make([]byte, 0, 1+len(mimeType)+len(body))
	frame = append(frame, byte(len(mimeType)))
	frame = append(frame, mimeType...)
	frame = append(frame, body...)
	return frame, nil
}

func decodeResponse(message []byte) (*gremlinResponse, error) {
	dec := json.NewDecoder(bytes.NewReader(message))
	dec.UseNumber()
	var resp gremlinResponse
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("could not decode gremlin response: %w", err)
	}
	return &resp, nil
}

// appendData adds the records of one response chunk to the accumulated
// result, as the driver's toArray() does.
func appendData(items []any, data any) []any {
	if data == nil {
		return items
	}
	if seq, ok := sequence(data); ok {
		return append(items, seq...)
	}
	return append(items, data)
}
