package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/vemodkit/internal/integration/process"
)

// exitGrace bounds how long to wait for stream EOF and process exit to
// catch up with each other.
const exitGrace = 500 * time.Millisecond

// ServerStatus indicates the current state of a server connection.
type ServerStatus int

const (
	ServerStatusStarting ServerStatus = iota
	ServerStatusInitializing
	ServerStatusReady
	ServerStatusShuttingDown
	ServerStatusStopped
)

// String returns a human-readable status name.
func (s ServerStatus) String() string {
	switch s {
	case ServerStatusStarting:
		return "starting"
	case ServerStatusInitializing:
		return "initializing"
	case ServerStatusReady:
		return "ready"
	case ServerStatusShuttingDown:
		return "shutting down"
	case ServerStatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// LaunchConfig describes how to start and talk to a language server.
type LaunchConfig struct {
	// Path is the resolved absolute path of the executable.
	Path string

	// Args are command-line arguments.
	Args []string

	// Env are extra KEY=VALUE entries appended to the current environment.
	Env []string

	// Dir is the working directory.
	Dir string

	// Folders are the workspace folders sent in initialize.
	Folders []WorkspaceFolder

	// Stderr receives the server's standard error.
	Stderr io.Writer

	// Requests handles server-initiated requests by method.
	Requests map[string]RequestHandler

	// Notifications handles server notifications by method ("*" for any).
	Notifications map[string]NotificationHandler
}

// Conn is a live, initialized connection to a language server.
type Conn interface {
	// Notify sends a notification to the server.
	Notify(ctx context.Context, method string, params any) error

	// Shutdown performs the shutdown/exit sequence and waits for the
	// process to end. The process is killed when ctx expires first.
	Shutdown(ctx context.Context) error

	// Done is closed when the server process has exited.
	Done() <-chan struct{}

	// Exit reports how the process ended. Only meaningful after Done.
	Exit() process.Outcome
}

// Connector starts language servers. ctx bounds the handshake only; the
// returned connection outlives it.
type Connector interface {
	Connect(ctx context.Context, cfg LaunchConfig) (Conn, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context, cfg LaunchConfig) (Conn, error)

// Connect implements Connector.
func (f ConnectorFunc) Connect(ctx context.Context, cfg LaunchConfig) (Conn, error) {
	return f(ctx, cfg)
}

// ProcessConnector starts servers as child processes speaking LSP on stdio.
type ProcessConnector struct{}

// Connect implements Connector.
func (ProcessConnector) Connect(ctx context.Context, cfg LaunchConfig) (Conn, error) {
	return StartServer(ctx, cfg)
}

// Server is a connection to a language server child process.
type Server struct {
	cfg LaunchConfig

	// Process management. The private supervisor tracks exactly one process.
	procs *process.Supervisor
	proc  *process.Process
	stdin io.WriteCloser

	transport *Transport

	status atomic.Int32

	shutdownOnce sync.Once
	shutdownErr  error
}

// StartServer launches the server described by cfg and performs the
// initialize handshake within ctx. Launch and handshake failures wrap
// ErrSpawn; a handshake that outlives ctx also wraps ErrHandshakeTimeout.
func StartServer(ctx context.Context, cfg LaunchConfig) (*Server, error) {
	s := &Server{
		cfg:   cfg,
		procs: process.NewSupervisor(process.WithMaxProcesses(1)),
	}
	s.status.Store(int32(ServerStatusStarting))

	stdout, err := s.startProcess()
	if err != nil {
		s.status.Store(int32(ServerStatusStopped))
		return nil, fmt.Errorf("%w: %w", ErrSpawn, err)
	}

	s.transport = NewTransport(stdout, s.stdin, multiCloser{s.stdin, stdout})
	s.registerHandlers()
	s.transport.Start(context.Background())

	go s.monitorProcess()

	s.status.Store(int32(ServerStatusInitializing))
	if err := s.initialize(ctx); err != nil {
		s.kill()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w: %w", ErrSpawn, ErrHandshakeTimeout, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrSpawn, err)
	}

	s.status.Store(int32(ServerStatusReady))
	return s, nil
}

// startProcess starts the server executable and returns the read end of
// its stdout.
func (s *Server) startProcess() (*os.File, error) {
	cmd := exec.Command(s.cfg.Path, s.cfg.Args...)
	cmd.Env = append(os.Environ(), s.cfg.Env...)
	cmd.Dir = s.cfg.Dir
	if cmd.Dir == "" && len(s.cfg.Folders) > 0 {
		cmd.Dir = URIToFilePath(s.cfg.Folders[0].URI)
	}
	if s.cfg.Stderr != nil {
		cmd.Stderr = s.cfg.Stderr
		cmd.WaitDelay = exitGrace
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}

	// A plain os.Pipe keeps the read end ours; Wait does not close it, so
	// frames written just before exit are still delivered.
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stdout = stdoutW

	proc, err := s.procs.Start(filepath.Base(s.cfg.Path), cmd)
	stdoutW.Close()
	if err != nil {
		stdin.Close()
		stdoutR.Close()
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return nil, execErr
		}
		return nil, err
	}

	s.proc = proc
	s.stdin = stdin
	return stdoutR, nil
}

// monitorProcess closes the transport once the process has exited and its
// remaining output is drained.
func (s *Server) monitorProcess() {
	<-s.proc.Done()
	s.status.Store(int32(ServerStatusStopped))
	select {
	case <-s.transport.Done():
	case <-time.After(exitGrace):
	}
	_ = s.transport.Close()
}

// kill terminates the process and waits for it to exit.
func (s *Server) kill() {
	_ = s.transport.Close()
	s.procs.Shutdown(time.Second)
	s.status.Store(int32(ServerStatusStopped))
}

// initialize performs the LSP initialize handshake.
func (s *Server) initialize(ctx context.Context) error {
	var rootURI DocumentURI
	if len(s.cfg.Folders) > 0 {
		rootURI = s.cfg.Folders[0].URI
	}

	params := InitializeParams{
		ProcessID:        os.Getpid(),
		ClientInfo:       &ClientInfo{Name: "vemodkit"},
		RootURI:          rootURI,
		Capabilities:     DefaultClientCapabilities(),
		WorkspaceFolders: s.cfg.Folders,
	}

	if err := s.transport.Call(ctx, "initialize", params, nil); err != nil {
		if errors.Is(err, ErrShutdown) {
			select {
			case <-s.proc.Done():
				return fmt.Errorf("server %s during initialize", s.proc.Outcome())
			case <-time.After(exitGrace):
			}
		}
		return fmt.Errorf("initialize request: %w", err)
	}

	if err := s.transport.Notify(ctx, "initialized", InitializedParams{}); err != nil {
		return fmt.Errorf("initialized notification: %w", err)
	}

	return nil
}

// registerHandlers installs the configured request and notification handlers.
func (s *Server) registerHandlers() {
	for method, h := range s.cfg.Requests {
		s.transport.OnRequest(method, h)
	}
	for method, h := range s.cfg.Notifications {
		s.transport.OnNotification(method, h)
	}
}

// Notify sends a notification to the server.
func (s *Server) Notify(ctx context.Context, method string, params any) error {
	if s.Status() != ServerStatusReady {
		return ErrNotRunning
	}
	return s.transport.Notify(ctx, method, params)
}

// Shutdown gracefully shuts down the server. It is safe to call more than
// once; later calls return the first result.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.shutdownErr = s.shutdown(ctx)
	})
	return s.shutdownErr
}

func (s *Server) shutdown(ctx context.Context) error {
	var err error

	select {
	case <-s.proc.Done():
		// Already gone; nothing to negotiate.
	default:
		s.status.Store(int32(ServerStatusShuttingDown))
		if err = s.transport.Call(ctx, "shutdown", nil, nil); err == nil {
			_ = s.transport.Notify(ctx, "exit", nil)
		} else {
			err = fmt.Errorf("shutdown request: %w", err)
		}
		_ = s.stdin.Close()

		select {
		case <-s.proc.Done():
		case <-ctx.Done():
			if err == nil {
				err = fmt.Errorf("wait for exit: %w", ctx.Err())
			}
		}
	}

	s.kill()
	return err
}

// Status returns the current server status.
func (s *Server) Status() ServerStatus {
	return ServerStatus(s.status.Load())
}

// PID returns the server process id.
func (s *Server) PID() int {
	return s.proc.PID()
}

// Done implements Conn.
func (s *Server) Done() <-chan struct{} {
	return s.proc.Done()
}

// Exit implements Conn.
func (s *Server) Exit() process.Outcome {
	return s.proc.Outcome()
}

// multiCloser closes every closer, returning the first error.
type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var first error
	for _, c := range m {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// decodeParams unmarshals notification params, ignoring malformed ones.
func decodeParams[T any](raw json.RawMessage) (T, bool) {
	var v T
	if len(raw) == 0 {
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false
	}
	return v, true
}
