package wsrpc

import (
	"encoding/json"
	"fmt"
)

// Version is the protocol marker every frame must carry.
const Version = "2.0"

// Request is the outbound call envelope.
type Request struct {
	JSONRPC   string `json:"jsonrpc"`
	ID        string `json:"id,omitempty"`
	Timestamp int64  `json:"timestamp"`
	Method    string `json:"method"`
	Params    any    `json:"params,omitempty"`
}

// ErrorObject is a server-returned error. It propagates as a rejection to
// the specific caller only.
type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorObject) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Notification is an inbound message with no id, dispatched by method name.
type Notification struct {
	Method string
	Params json.RawMessage
}

// inbound covers every frame shape the server may send.
type inbound struct {
	JSONRPC   string          `json:"jsonrpc"`
	ID        string          `json:"id,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
	Method    string          `json:"method,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *ErrorObject    `json:"error,omitempty"`
}

// Standard JSON-RPC 2.0 error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Outcome is the settled result of a call. Cancellation is a normal
// outcome, never a rejection.
type Outcome struct {
	Result    json.RawMessage
	Cancelled bool
}

// Decode unmarshals a call result into T.
func Decode[T any](o Outcome) (T, bool) {
	var v T
	if o.Cancelled || len(o.Result) == 0 {
		return v, false
	}
	return v, json.Unmarshal(o.Result, &v) == nil
}
