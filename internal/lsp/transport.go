package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tidwall/gjson"
)

// Transport handles JSON-RPC 2.0 communication over stdio.
// It implements the LSP base protocol with Content-Length headers and
// carries traffic in both directions: client calls and notifications, and
// requests and notifications initiated by the server.
type Transport struct {
	reader *bufio.Reader
	writer io.Writer
	closer io.Closer

	mu       sync.Mutex
	writeMu  sync.Mutex
	nextID   atomic.Int64
	pending  map[int64]chan *Response
	handlers map[string]NotificationHandler
	requests map[string]RequestHandler

	closed   atomic.Bool
	done     chan struct{}
	readDone chan struct{}
	readOnce sync.Once
}

// NotificationHandler handles incoming notifications from the peer.
type NotificationHandler func(method string, params json.RawMessage)

// RequestHandler answers a request initiated by the peer. A returned
// *RPCError is sent as is; any other error is sent as an internal error.
type RequestHandler func(ctx context.Context, method string, params json.RawMessage) (any, error)

// Request represents an outgoing JSON-RPC request or notification.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Response represents a JSON-RPC response to one of our requests.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// notification is used to parse incoming notifications.
type notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// incomingRequest is a request initiated by the peer. Its ID may be a
// number or a string and is echoed back verbatim.
type incomingRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type resultReply struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
}

type errorReply struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Error   *RPCError       `json:"error"`
}

// NewTransport creates a new transport over the given streams.
// c, when non-nil, is closed by Close.
func NewTransport(r io.Reader, w io.Writer, c io.Closer) *Transport {
	return &Transport{
		reader:   bufio.NewReaderSize(r, 64*1024),
		writer:   w,
		closer:   c,
		pending:  make(map[int64]chan *Response),
		handlers: make(map[string]NotificationHandler),
		requests: make(map[string]RequestHandler),
		done:     make(chan struct{}),
		readDone: make(chan struct{}),
	}
}

// Start begins reading messages from the connection in a new goroutine.
func (t *Transport) Start(ctx context.Context) {
	go t.readLoop(ctx)
}

// Done returns a channel closed when the read loop has ended, either
// because the peer closed its stream or the transport was closed.
func (t *Transport) Done() <-chan struct{} {
	return t.readDone
}

// Close closes the transport and releases resources.
func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}

	close(t.done)

	// Pending callers receive from t.done; channels are never closed.
	t.mu.Lock()
	t.pending = make(map[int64]chan *Response)
	t.mu.Unlock()

	if t.closer != nil {
		return t.closer.Close()
	}
	return nil
}

// Call sends a request and waits for a response.
func (t *Transport) Call(ctx context.Context, method string, params any, result any) error {
	if t.closed.Load() {
		return ErrShutdown
	}

	id := t.nextID.Add(1)
	ch := make(chan *Response, 1)

	t.mu.Lock()
	t.pending[id] = ch
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
	}()

	req := &Request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	}

	if err := t.send(req); err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.done:
		return ErrShutdown
	case <-t.readDone:
		// The final response may have been delivered just before EOF.
		select {
		case resp := <-ch:
			return decodeResponse(resp, result)
		default:
			return ErrShutdown
		}
	case resp := <-ch:
		return decodeResponse(resp, result)
	}
}

func decodeResponse(resp *Response, result any) error {
	if resp.Error != nil {
		return resp.Error
	}
	if result != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("unmarshal result: %w", err)
		}
	}
	return nil
}

// Notify sends a notification (no response expected).
func (t *Transport) Notify(_ context.Context, method string, params any) error {
	if t.closed.Load() {
		return ErrShutdown
	}

	return t.send(&Request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
	})
}

// OnNotification registers a handler for peer notifications. The method
// "*" matches any notification without a specific handler.
func (t *Transport) OnNotification(method string, handler NotificationHandler) {
	t.mu.Lock()
	t.handlers[method] = handler
	t.mu.Unlock()
}

// OnRequest registers a handler for peer requests. Requests without a
// handler are answered with a MethodNotFound error.
func (t *Transport) OnRequest(method string, handler RequestHandler) {
	t.mu.Lock()
	t.requests[method] = handler
	t.mu.Unlock()
}

// send writes a message with LSP content-length header.
func (t *Transport) send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(data))

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := io.WriteString(t.writer, header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := t.writer.Write(data); err != nil {
		return fmt.Errorf("write body: %w", err)
	}

	return nil
}

// readLoop reads messages from the connection.
func (t *Transport) readLoop(ctx context.Context) {
	defer t.readOnce.Do(func() { close(t.readDone) })

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.done:
			return
		default:
		}

		msg, err := t.readMessage()
		if err != nil {
			if errors.Is(err, errMissingLength) && !t.closed.Load() {
				continue
			}
			return
		}

		t.dispatch(ctx, msg)
	}
}

// errMissingLength marks a frame without a usable Content-Length header.
var errMissingLength = errors.New("missing Content-Length header")

// maxContentLength bounds the body of a single incoming message.
const maxContentLength = 64 << 20

// readMessage reads a single LSP message.
func (t *Transport) readMessage() (json.RawMessage, error) {
	var contentLength int
	for {
		line, err := t.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if ok && strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			if length, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
				contentLength = length
			}
		}
		// Content-Type and other headers are ignored.
	}

	if contentLength <= 0 {
		return nil, errMissingLength
	}
	if contentLength > maxContentLength {
		return nil, fmt.Errorf("%w: Content-Length %d exceeds %d", ErrMessageTooLarge, contentLength, maxContentLength)
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(t.reader, body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return body, nil
}

// dispatch routes a message to the appropriate handler.
//
// A message with an id and no method is a response, one with both is a
// request from the peer, and one with only a method is a notification.
func (t *Transport) dispatch(ctx context.Context, data json.RawMessage) {
	if !gjson.ValidBytes(data) {
		return
	}
	head := gjson.GetManyBytes(data, "id", "method")
	hasID := head[0].Exists() && head[0].Type != gjson.Null
	method := head[1].String()

	switch {
	case hasID && method == "":
		var resp Response
		if err := json.Unmarshal(data, &resp); err != nil {
			return
		}
		t.handleResponse(&resp)
	case hasID:
		var req incomingRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return
		}
		go t.handleRequest(ctx, &req)
	case method != "":
		var notif notification
		if err := json.Unmarshal(data, &notif); err != nil {
			return
		}
		t.handleNotification(&notif)
	}
}

// handleResponse routes a response to its waiting caller.
func (t *Transport) handleResponse(resp *Response) {
	if t.closed.Load() {
		return
	}

	t.mu.Lock()
	ch, ok := t.pending[resp.ID]
	if ok {
		delete(t.pending, resp.ID)
	}
	t.mu.Unlock()

	if ok {
		select {
		case ch <- resp:
		default:
		}
	}
}

// handleNotification routes a notification to its handler.
func (t *Transport) handleNotification(notif *notification) {
	t.mu.Lock()
	handler, ok := t.handlers[notif.Method]
	if !ok {
		handler, ok = t.handlers["*"]
	}
	t.mu.Unlock()

	if ok && handler != nil {
		// Run handler in goroutine to avoid blocking read loop
		go handler(notif.Method, notif.Params)
	}
}

// handleRequest runs the handler for a peer request and sends the reply.
func (t *Transport) handleRequest(ctx context.Context, req *incomingRequest) {
	t.mu.Lock()
	handler, ok := t.requests[req.Method]
	t.mu.Unlock()

	if !ok || handler == nil {
		t.replyError(req.ID, &RPCError{
			Code:    CodeMethodNotFound,
			Message: fmt.Sprintf("method not found: %s", req.Method),
		})
		return
	}

	result, err := t.invoke(ctx, handler, req)
	if err != nil {
		var rpcErr *RPCError
		if !errors.As(err, &rpcErr) {
			rpcErr = &RPCError{Code: CodeInternalError, Message: err.Error()}
		}
		t.replyError(req.ID, rpcErr)
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		t.replyError(req.ID, &RPCError{
			Code:    CodeInternalError,
			Message: fmt.Sprintf("marshal result: %v", err),
		})
		return
	}
	_ = t.send(&resultReply{JSONRPC: "2.0", ID: req.ID, Result: data})
}

// invoke calls handler, converting a panic into an internal error.
func (t *Transport) invoke(ctx context.Context, handler RequestHandler, req *incomingRequest) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &RPCError{
				Code:    CodeInternalError,
				Message: fmt.Sprintf("handler for %s panicked: %v", req.Method, r),
			}
		}
	}()
	return handler(ctx, req.Method, req.Params)
}

func (t *Transport) replyError(id json.RawMessage, rpcErr *RPCError) {
	if t.closed.Load() {
		return
	}
	_ = t.send(&errorReply{JSONRPC: "2.0", ID: id, Error: rpcErr})
}

// IsClosed returns true if the transport has been closed.
func (t *Transport) IsClosed() bool {
	return t.closed.Load()
}
