// Package codex implements the Codex deterministic source adapter (spec
// §4.12): a JSON-RPC 2.0 app-server client over stdio, with an NDJSON
// capture-line fallback for when the app-server is unavailable. Grounded
// on the teacher's NewXSource(...) constructor idiom (codex_source.go)
// and its bufio line-scanning style (jsonl.go), generalized from
// filesystem rollout parsing to a live subprocess JSON-RPC transport.
package codex

import "encoding/json"

// ProtocolVersion is the app-server JSON-RPC protocol version string. It is
// not sent anywhere: neither Dial nor the runtime performs an initialize
// handshake; the runtime only issues thread/list calls.
const ProtocolVersion = "2024-11-05"

// HeartbeatInterval is below the resolver's FRESH_THRESHOLD (3s) so a
// live app-server connection never goes stale by itself.
const HeartbeatInterval = 2_000_000_000 // 2s, in time.Duration units

// Request is a JSON-RPC 2.0 request object.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response object.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// Notification is a JSON-RPC 2.0 notification (no id, no response expected).
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string { return e.Message }

// ThreadStatus is a Codex thread's lifecycle status as reported by the
// app-server.
type ThreadStatus string

const (
	ThreadNotLoaded ThreadStatus = "notLoaded"
	ThreadActive    ThreadStatus = "active"
	ThreadIdle      ThreadStatus = "idle"
	ThreadError     ThreadStatus = "error"
)

// Thread is one entry from a thread/list response.
type Thread struct {
	ThreadId string       `json:"threadId"`
	Cwd      string       `json:"cwd"`
	Status   ThreadStatus `json:"status"`
}

// ThreadListResult is the result payload of a thread/list call.
type ThreadListResult struct {
	Threads []Thread `json:"threads"`
}

// ThreadStatusChangedParams is the payload of a thread/status/changed
// notification.
type ThreadStatusChangedParams struct {
	ThreadId string       `json:"threadId"`
	Status   ThreadStatus `json:"status"`
}

// TurnEventParams is the payload of turn/started and turn/completed
// notifications.
type TurnEventParams struct {
	ThreadId string `json:"threadId"`
	TurnId   string `json:"turnId"`
}
