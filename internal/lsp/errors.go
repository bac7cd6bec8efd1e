package lsp

import (
	"errors"
	"fmt"
)

// Standard errors returned by the lsp package.
var (
	// ErrShutdown indicates the transport has been closed.
	ErrShutdown = errors.New("connection shut down")

	// ErrSpawn indicates the language server could not be brought up:
	// the process failed to launch, exited during initialization, or did
	// not complete the handshake in time.
	ErrSpawn = errors.New("spawn language server")

	// ErrHandshakeTimeout indicates initialize did not complete in time.
	ErrHandshakeTimeout = errors.New("handshake timed out")

	// ErrAlreadyRunning indicates Start was called while a server is live.
	ErrAlreadyRunning = errors.New("language server already running")

	// ErrNotRunning indicates an operation needs a Running session.
	ErrNotRunning = errors.New("language server not running")

	// ErrMessageTooLarge indicates a frame whose Content-Length exceeds
	// maxContentLength.
	ErrMessageTooLarge = errors.New("message too large")

	// ErrServerCrashed indicates the server process terminated unexpectedly.
	ErrServerCrashed = errors.New("server crashed")

	// ErrDocumentNotSelected indicates the document's language is not served.
	ErrDocumentNotSelected = errors.New("document language not selected")

	// ErrDocumentNotOpen indicates the document is not open.
	ErrDocumentNotOpen = errors.New("document not open")

	// ErrDocumentAlreadyOpen indicates the document is already open.
	ErrDocumentAlreadyOpen = errors.New("document already open")
)

// RPCError represents a JSON-RPC error, either received from the server or
// sent back to it in reply to a server request.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("rpc error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Standard JSON-RPC error codes.
const (
	// JSON-RPC standard errors
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	// LSP-specific errors
	CodeServerNotInitialized = -32002
	CodeUnknownErrorCode     = -32001
	CodeRequestCancelled     = -32800
	CodeContentModified      = -32801
	CodeServerCancelled      = -32802
	CodeRequestFailed        = -32803
)

// ServerError is a failure to bring up the language server. It always
// matches ErrSpawn with errors.Is.
type ServerError struct {
	Tool string
	Err  error
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	return fmt.Sprintf("server %s: %v", e.Tool, e.Err)
}

// Unwrap returns ErrSpawn and the underlying error.
func (e *ServerError) Unwrap() []error {
	return []error{ErrSpawn, e.Err}
}

// Reason returns the underlying error's message, suitable for users.
func (e *ServerError) Reason() string {
	if e.Err == nil {
		return "unknown error"
	}
	return e.Err.Error()
}
