package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/vemodkit/internal/editor"
	"github.com/dshills/vemodkit/internal/integration/process"
	"github.com/dshills/vemodkit/internal/logging"
	"github.com/dshills/vemodkit/internal/resolve"
)

// State is the lifecycle state of a Session.
type State int32

const (
	// StateStopped means no server process exists.
	StateStopped State = iota
	// StateStarting means the process is being spawned and initialized.
	StateStarting
	// StateRunning means the handshake completed and the server is usable.
	StateRunning
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// Default timeouts.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultShutdownTimeout  = 5 * time.Second
)

// Handle is the live connection of a Running session.
type Handle struct {
	conn    Conn
	path    string
	started time.Time
}

// Path returns the resolved executable path.
func (h *Handle) Path() string { return h.path }

// Started returns when the handshake completed.
func (h *Handle) Started() time.Time { return h.started }

// Session owns at most one language-server process at a time.
//
// Start, Stop and Restart, and the starts scheduled by crash recovery, are
// serialized: a call made while another is in flight waits for it to finish.
// Session is safe for concurrent use.
type Session struct {
	spec     resolve.Spec
	langs    *editor.LanguageSet
	window   editor.Window
	resolver *resolve.Resolver

	connector   Connector
	provider    ConfigurationProvider
	output      editor.OutputSurface
	logger      *logging.Logger
	displayName string
	env         []string
	folders     []WorkspaceFolder
	observer    func(from, to State)

	// op serializes lifecycle operations.
	op sync.Mutex

	// mu guards the fields below.
	mu               sync.Mutex
	configured       string
	args             []string
	handshakeTimeout time.Duration
	shutdownTimeout  time.Duration
	recovery         RecoveryConfig
	handle           *Handle
	docs             map[DocumentURI]editor.Document
	gen              uint64
	retry            *time.Timer
	crashes          int
	crashStart       time.Time

	state atomic.Int32
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithConnector replaces the process connector.
func WithConnector(c Connector) SessionOption {
	return func(s *Session) { s.connector = c }
}

// WithResolver replaces the executable resolver.
func WithResolver(r *resolve.Resolver) SessionOption {
	return func(s *Session) { s.resolver = r }
}

// WithConfigurationProvider sets the provider answering
// workspace/configuration requests.
func WithConfigurationProvider(p ConfigurationProvider) SessionOption {
	return func(s *Session) { s.provider = p }
}

// WithOutput sets the surface receiving server stderr and log messages.
func WithOutput(o editor.OutputSurface) SessionOption {
	return func(s *Session) { s.output = o }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// WithDisplayName sets the server name used in user messages.
func WithDisplayName(name string) SessionOption {
	return func(s *Session) { s.displayName = name }
}

// WithEnv adds KEY=VALUE entries to the server environment.
func WithEnv(env []string) SessionOption {
	return func(s *Session) { s.env = slices.Clone(env) }
}

// WithWorkspaceFolders sets the folders sent in initialize.
func WithWorkspaceFolders(folders ...WorkspaceFolder) SessionOption {
	return func(s *Session) { s.folders = folders }
}

// WithHandshakeTimeout bounds spawn plus initialize.
func WithHandshakeTimeout(d time.Duration) SessionOption {
	return func(s *Session) {
		if d > 0 {
			s.handshakeTimeout = d
		}
	}
}

// WithShutdownTimeout bounds the graceful shutdown sequence.
func WithShutdownTimeout(d time.Duration) SessionOption {
	return func(s *Session) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// WithRecovery configures crash recovery.
func WithRecovery(cfg RecoveryConfig) SessionOption {
	return func(s *Session) { s.recovery = cfg }
}

// WithStateObserver registers fn to be called on every state transition.
// fn runs synchronously and must not call back into the Session.
func WithStateObserver(fn func(from, to State)) SessionOption {
	return func(s *Session) { s.observer = fn }
}

// NewSession creates a stopped session for the server described by spec.
// Only documents whose language is in langs are synchronized.
func NewSession(spec resolve.Spec, langs *editor.LanguageSet, win editor.Window, opts ...SessionOption) *Session {
	s := &Session{
		spec:             spec,
		langs:            langs,
		window:           win,
		resolver:         resolve.New(),
		connector:        ProcessConnector{},
		logger:           logging.Nop(),
		displayName:      spec.Tool,
		handshakeTimeout: DefaultHandshakeTimeout,
		shutdownTimeout:  DefaultShutdownTimeout,
		recovery:         DefaultRecoveryConfig(),
		docs:             make(map[DocumentURI]editor.Document),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.langs == nil {
		s.langs = editor.NewLanguageSet(editor.DefaultLanguages...)
	}
	s.logger = s.logger.WithComponent("session").WithField("server", spec.Tool)
	s.state.Store(int32(StateStopped))
	return s
}

// Configure sets the configured executable value and arguments used by
// the next start. A value equal to the resolve.Spec sentinel (or empty) means
// PATH lookup.
func (s *Session) Configure(configured string, args []string) {
	s.mu.Lock()
	s.configured = configured
	s.args = slices.Clone(args)
	s.mu.Unlock()
}

// SetSentinel replaces the configured value that selects a PATH lookup.
// It applies from the next start.
func (s *Session) SetSentinel(sentinel string) {
	s.mu.Lock()
	s.spec.Sentinel = sentinel
	s.mu.Unlock()
}

// SetLimits replaces the handshake and shutdown timeouts and the crash
// recovery policy. Zero timeouts keep the current values. The new values
// apply from the next start, stop or crash.
func (s *Session) SetLimits(handshake, shutdown time.Duration, recovery RecoveryConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if handshake > 0 {
		s.handshakeTimeout = handshake
	}
	if shutdown > 0 {
		s.shutdownTimeout = shutdown
	}
	s.recovery = recovery
}

// State returns the current state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Handle returns the live handle, or nil unless Running.
func (s *Session) Handle() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// Start resolves the executable, spawns the server and completes the
// handshake. It blocks the calling goroutine until the session is Running
// or has fallen back to Stopped.
//
// A resolution failure is shown as a modal error and returned as a
// *resolve.Error; the session never leaves Stopped. A spawn or handshake
// failure is shown as a warning and returned as a *ServerError; the session
// goes back to Stopped. Start on a live session returns ErrAlreadyRunning.
func (s *Session) Start(ctx context.Context) error {
	s.op.Lock()
	defer s.op.Unlock()
	return s.startLocked(ctx)
}

// StartAsync runs Start in a new goroutine. The returned channel receives
// Start's result once the handshake has completed or failed.
func (s *Session) StartAsync(ctx context.Context) <-chan error {
	ch := make(chan error, 1)
	go func() {
		ch <- s.Start(ctx)
	}()
	return ch
}

// Stop shuts the server down and waits for it to exit. The session ends
// Stopped with no handle whatever the shutdown outcome; the shutdown error,
// if any, is returned for logging. Stop on a stopped session does nothing.
// Stop also cancels any pending crash-recovery start.
func (s *Session) Stop(ctx context.Context) error {
	s.op.Lock()
	defer s.op.Unlock()
	return s.stopLocked(ctx)
}

// Restart stops the session and starts it again with no other lifecycle
// operation in between. The stop outcome does not prevent the start.
func (s *Session) Restart(ctx context.Context) error {
	s.op.Lock()
	defer s.op.Unlock()

	if err := s.stopLocked(ctx); err != nil {
		s.logger.Warn("stop before restart: %v", err)
	}
	return s.startLocked(ctx)
}

func (s *Session) startLocked(ctx context.Context) error {
	if s.State() != StateStopped {
		return ErrAlreadyRunning
	}

	s.mu.Lock()
	spec := s.spec
	configured, args := s.configured, slices.Clone(s.args)
	handshake := s.handshakeTimeout
	s.mu.Unlock()

	path, err := s.resolver.Resolve(spec, configured)
	if err != nil {
		s.logger.Error("resolve %q: %v", configured, err)
		editor.ShowModalError(s.window, err.Error())
		return err
	}

	s.setState(StateStarting)
	s.logger.Info("starting %s", path)

	hctx, cancel := context.WithTimeout(ctx, handshake)
	conn, err := s.connector.Connect(hctx, s.launchConfig(path, args))
	cancel()
	if err != nil {
		serr := &ServerError{Tool: spec.Tool, Err: err}
		s.setState(StateStopped)
		s.logger.Warn("start failed: %v", err)
		editor.ShowWarning(s.window, fmt.Sprintf("Failed to run %s: %s", s.displayName, serr.Reason()))
		return serr
	}

	h := &Handle{conn: conn, path: path, started: time.Now()}
	s.mu.Lock()
	s.handle = h
	docs := make([]editor.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		docs = append(docs, doc)
	}
	s.setState(StateRunning)
	s.mu.Unlock()

	s.logger.Info("running")

	for _, doc := range docs {
		if err := s.notifyOpen(ctx, h, doc); err != nil {
			s.logger.Warn("resync %s: %v", doc.Path(), err)
		}
	}

	go s.watch(h)
	return nil
}

func (s *Session) stopLocked(ctx context.Context) error {
	s.mu.Lock()
	h := s.handle
	s.handle = nil
	s.gen++
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
	shutdown := s.shutdownTimeout
	s.mu.Unlock()

	if h == nil {
		return nil
	}

	s.logger.Info("stopping")
	sctx, cancel := context.WithTimeout(ctx, shutdown)
	err := h.conn.Shutdown(sctx)
	cancel()

	s.setState(StateStopped)
	if err != nil {
		s.logger.Warn("shutdown: %v", err)
		return fmt.Errorf("shutdown %s: %w", s.spec.Tool, err)
	}
	return nil
}

// watch waits for h's process to exit. An exit not caused by Stop is a crash.
func (s *Session) watch(h *Handle) {
	<-h.conn.Done()

	s.mu.Lock()
	if s.handle != h {
		s.mu.Unlock()
		return
	}
	s.handle = nil
	gen := s.gen
	s.setState(StateStopped)
	s.mu.Unlock()

	outcome := h.conn.Exit()
	crash := fmt.Errorf("%w: %s after %s", ErrServerCrashed, outcome,
		time.Since(h.Started()).Round(time.Millisecond))
	s.logger.Error("%v", crash)
	var msg string
	if outcome.Kind == process.OutcomeSignaled {
		msg = fmt.Sprintf("%s was terminated by signal %s", s.displayName, outcome.Signal)
	} else {
		msg = fmt.Sprintf("%s exited unexpectedly (%s)", s.displayName, outcome)
	}
	editor.ShowWarning(s.window, msg)

	s.scheduleRecovery(gen)
}

func (s *Session) setState(to State) {
	from := State(s.state.Swap(int32(to)))
	if from == to {
		return
	}
	s.logger.Debug("state %s -> %s", from, to)
	if s.observer != nil {
		s.observer(from, to)
	}
}

// launchConfig builds the connector input for path.
func (s *Session) launchConfig(path string, args []string) LaunchConfig {
	return LaunchConfig{
		Path:    path,
		Args:    args,
		Env:     s.env,
		Folders: s.folders,
		Stderr:  s.outputWriter(),
		Requests: map[string]RequestHandler{
			"workspace/configuration":        ConfigurationMiddleware(s.provider, s.logger),
			"client/registerCapability":      acknowledge,
			"client/unregisterCapability":    acknowledge,
			"window/workDoneProgress/create": acknowledge,
		},
		Notifications: map[string]NotificationHandler{
			"window/logMessage":  s.onLogMessage,
			"window/showMessage": s.onShowMessage,
		},
	}
}

func acknowledge(context.Context, string, json.RawMessage) (any, error) {
	return nil, nil
}

func (s *Session) onLogMessage(_ string, raw json.RawMessage) {
	p, ok := decodeParams[LogMessageParams](raw)
	if !ok {
		return
	}
	s.logger.Debug("server log: %s", p.Message)
	if s.output != nil {
		s.output.Append(fmt.Sprintf("[%s] %s\n", p.Type, p.Message))
	}
}

func (s *Session) onShowMessage(_ string, raw json.RawMessage) {
	p, ok := decodeParams[ShowMessageParams](raw)
	if !ok {
		return
	}
	sev := editor.SeverityInfo
	switch p.Type {
	case MessageTypeError:
		sev = editor.SeverityError
	case MessageTypeWarning:
		sev = editor.SeverityWarning
	}
	s.window.ShowMessage(sev, p.Message, false)
}

// outputWriter adapts the output surface to an io.Writer for stderr.
func (s *Session) outputWriter() io.Writer {
	if s.output == nil {
		return nil
	}
	return &surfaceWriter{out: s.output}
}

type surfaceWriter struct {
	out editor.OutputSurface
}

func (w *surfaceWriter) Write(p []byte) (int, error) {
	w.out.Append(string(p))
	return len(p), nil
}

// --- Document synchronization ---

// OpenDocument tracks doc and, when Running, sends textDocument/didOpen.
// Tracked documents are reopened after every start. Documents outside the
// language set return ErrDocumentNotSelected.
func (s *Session) OpenDocument(ctx context.Context, doc editor.Document) error {
	if !s.langs.Contains(doc.LanguageID()) {
		return ErrDocumentNotSelected
	}
	uri := FilePathToURI(doc.Path())

	s.mu.Lock()
	if _, open := s.docs[uri]; open {
		s.mu.Unlock()
		return ErrDocumentAlreadyOpen
	}
	s.docs[uri] = doc
	h := s.handle
	s.mu.Unlock()

	if h == nil {
		return nil
	}
	return s.notifyOpen(ctx, h, doc)
}

// SaveDocument sends textDocument/didSave for an open document.
func (s *Session) SaveDocument(ctx context.Context, doc editor.Document) error {
	if !s.langs.Contains(doc.LanguageID()) {
		return ErrDocumentNotSelected
	}
	uri := FilePathToURI(doc.Path())

	s.mu.Lock()
	_, open := s.docs[uri]
	h := s.handle
	s.mu.Unlock()

	if !open {
		return ErrDocumentNotOpen
	}
	if h == nil {
		return nil
	}
	text, err := doc.Content()
	if err != nil {
		return fmt.Errorf("read %s: %w", doc.Path(), err)
	}
	return h.conn.Notify(ctx, "textDocument/didSave", DidSaveTextDocumentParams{
		TextDocument: TextDocumentIdentifier{URI: uri},
		Text:         text,
	})
}

// CloseDocument untracks doc and, when Running, sends textDocument/didClose.
func (s *Session) CloseDocument(ctx context.Context, doc editor.Document) error {
	uri := FilePathToURI(doc.Path())

	s.mu.Lock()
	_, open := s.docs[uri]
	delete(s.docs, uri)
	h := s.handle
	s.mu.Unlock()

	if !open {
		return ErrDocumentNotOpen
	}
	if h == nil {
		return nil
	}
	return h.conn.Notify(ctx, "textDocument/didClose", DidCloseTextDocumentParams{
		TextDocument: TextDocumentIdentifier{URI: uri},
	})
}

// OpenDocuments returns the paths of tracked documents, sorted.
func (s *Session) OpenDocuments() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make([]string, 0, len(s.docs))
	for _, doc := range s.docs {
		paths = append(paths, doc.Path())
	}
	slices.Sort(paths)
	return paths
}

func (s *Session) notifyOpen(ctx context.Context, h *Handle, doc editor.Document) error {
	text, err := doc.Content()
	if err != nil {
		return fmt.Errorf("read %s: %w", doc.Path(), err)
	}
	return h.conn.Notify(ctx, "textDocument/didOpen", DidOpenTextDocumentParams{
		TextDocument: TextDocumentItem{
			URI:        FilePathToURI(doc.Path()),
			LanguageID: doc.LanguageID(),
			Version:    1,
			Text:       text,
		},
	})
}
