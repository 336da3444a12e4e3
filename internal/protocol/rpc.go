package protocol

import "encoding/json"

// JSON-RPC 2.0 envelopes for the tasks/send, tasks/get and tasks/cancel
// methods exposed by the agent backend.

const (
	MethodSendTask   = "tasks/send"
	MethodGetTask    = "tasks/get"
	MethodCancelTask = "tasks/cancel"
)

type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ResponseError  `json:"error,omitempty"`
}

type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *ResponseError) Error() string {
	return e.Message
}

// SendTaskParams is the params object for tasks/send.
type SendTaskParams struct {
	ID            string         `json:"id"`
	SessionID     string         `json:"sessionId,omitempty"`
	Message       Message        `json:"message"`
	HistoryLength int            `json:"historyLength,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// GetTaskParams is the params object for tasks/get.
type GetTaskParams struct {
	ID            string         `json:"id"`
	HistoryLength int            `json:"historyLength,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// CancelTaskParams is the params object for tasks/cancel.
type CancelTaskParams struct {
	ID       string         `json:"id"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
