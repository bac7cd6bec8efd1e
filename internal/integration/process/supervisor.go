package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Result is the outcome of a process run to completion together with its
// captured output.
type Result struct {
	ID      string
	Outcome Outcome
	Stdout  []byte
	Stderr  []byte
}

// Supervisor tracks one-shot child processes so they can be killed on
// shutdown.
//
// Supervisor is safe for concurrent use.
type Supervisor struct {
	mu        sync.RWMutex
	processes map[string]*Process

	closed atomic.Bool

	// maxProcesses limits concurrent processes (0 = unlimited).
	maxProcesses int
}

// SupervisorOption configures a Supervisor instance.
type SupervisorOption func(*Supervisor)

// WithMaxProcesses sets the maximum number of concurrent processes.
// A value of 0 (default) means unlimited.
func WithMaxProcesses(max int) SupervisorOption {
	return func(s *Supervisor) {
		s.maxProcesses = max
	}
}

// NewSupervisor creates a new process supervisor.
func NewSupervisor(opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		processes: make(map[string]*Process),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start starts and tracks cmd. The caller configures the command's I/O.
//
// Returns ErrSupervisorShutdown if the supervisor is shutting down.
func (s *Supervisor) Start(name string, cmd *exec.Cmd) (*Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return nil, ErrSupervisorShutdown
	}
	if s.maxProcesses > 0 && len(s.processes) >= s.maxProcesses {
		return nil, fmt.Errorf("process limit reached: %d", s.maxProcesses)
	}

	proc := NewProcess(uuid.New().String(), name, cmd)
	if err := proc.start(); err != nil {
		return nil, err
	}

	s.processes[proc.ID] = proc
	go s.monitorProcess(proc)

	return proc, nil
}

// Run starts cmd with stdout and stderr captured and waits for it to end.
//
// Run never returns an error: a command that cannot be started yields an
// OutcomeLaunchFailed result. When ctx is cancelled the process is killed
// and the result reports the signal.
func (s *Supervisor) Run(ctx context.Context, name string, cmd *exec.Cmd) Result {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	proc, err := s.Start(name, cmd)
	if err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			err = execErr
		}
		return Result{Outcome: Outcome{Kind: OutcomeLaunchFailed, Err: err}}
	}

	select {
	case <-proc.Done():
	case <-ctx.Done():
		_ = proc.Kill()
		<-proc.Done()
	}

	return Result{
		ID:      proc.ID,
		Outcome: proc.Outcome(),
		Stdout:  stdout.Bytes(),
		Stderr:  stderr.Bytes(),
	}
}

// monitorProcess watches for process exit and stops tracking it.
func (s *Supervisor) monitorProcess(proc *Process) {
	<-proc.Done()

	s.mu.Lock()
	delete(s.processes, proc.ID)
	s.mu.Unlock()
}

// List returns all running processes.
func (s *Supervisor) List() []*Process {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Process, 0, len(s.processes))
	for _, p := range s.processes {
		result = append(result, p)
	}
	return result
}

// Count returns the number of running processes.
func (s *Supervisor) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.processes)
}

// Shutdown terminates all processes.
//
// It sends SIGTERM and waits up to timeout for them to exit, then sends
// SIGKILL to the rest. Shutdown blocks until every process has exited.
func (s *Supervisor) Shutdown(timeout time.Duration) {
	if s.closed.Swap(true) {
		return
	}

	procs := s.List()
	if len(procs) == 0 {
		return
	}

	for _, p := range procs {
		if p.IsRunning() {
			_ = p.Terminate()
		}
	}

	done := make(chan struct{})
	go func() {
		for _, p := range procs {
			<-p.Done()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		for _, p := range procs {
			if p.IsRunning() {
				_ = p.Kill()
			}
		}
		<-done
	}

	for s.Count() > 0 {
		time.Sleep(time.Millisecond)
	}
}

// ErrSupervisorShutdown is returned when the supervisor is shutting down.
var ErrSupervisorShutdown = errors.New("supervisor is shutting down")
