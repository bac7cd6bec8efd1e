//go:build unix

package process

import (
	"errors"
	"os/exec"
	"testing"
	"time"
)

func TestNewProcess(t *testing.T) {
	proc := NewProcess("test-id", "transpile", exec.Command("true"))

	if proc.ID != "test-id" {
		t.Errorf("ID = %q, want %q", proc.ID, "test-id")
	}
	if proc.State() != StateCreated {
		t.Errorf("State() = %v, want %v", proc.State(), StateCreated)
	}
	if proc.PID() != -1 {
		t.Errorf("PID() = %d before start, want -1", proc.PID())
	}
	if proc.IsRunning() {
		t.Error("IsRunning() = true before start")
	}
}

func TestProcess_ExitedOutcome(t *testing.T) {
	tests := []struct {
		name     string
		script   string
		wantCode int
	}{
		{"success", "exit 0", 0},
		{"failure", "exit 5", 5},
		{"high code", "exit 127", 127},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := NewProcess("id", tt.name, exec.Command("sh", "-c", tt.script))
			if err := proc.start(); err != nil {
				t.Fatalf("start() error = %v", err)
			}
			<-proc.Done()

			out := proc.Outcome()
			if out.Kind != OutcomeExited {
				t.Fatalf("Kind = %v, want %v", out.Kind, OutcomeExited)
			}
			if out.ExitCode != tt.wantCode {
				t.Errorf("ExitCode = %d, want %d", out.ExitCode, tt.wantCode)
			}
			if out.Signal != "" {
				t.Errorf("Signal = %q, want empty", out.Signal)
			}
			if proc.State() != StateExited {
				t.Errorf("State() = %v, want %v", proc.State(), StateExited)
			}
			if out.Success() != (tt.wantCode == 0) {
				t.Errorf("Success() = %v", out.Success())
			}
		})
	}
}

func TestProcess_SignaledOutcome(t *testing.T) {
	proc := NewProcess("id", "sleeper", exec.Command("sleep", "10"))
	if err := proc.start(); err != nil {
		t.Fatalf("start() error = %v", err)
	}

	if err := proc.Kill(); err != nil {
		t.Fatalf("Kill() error = %v", err)
	}

	select {
	case <-proc.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit after SIGKILL")
	}

	out := proc.Outcome()
	if out.Kind != OutcomeSignaled {
		t.Fatalf("Kind = %v, want %v", out.Kind, OutcomeSignaled)
	}
	if out.Signal != "SIGKILL" {
		t.Errorf("Signal = %q, want SIGKILL", out.Signal)
	}
	if proc.State() != StateSignaled {
		t.Errorf("State() = %v, want %v", proc.State(), StateSignaled)
	}
	if out.Success() {
		t.Error("Success() = true for a signaled process")
	}
}

func TestProcess_Terminate(t *testing.T) {
	proc := NewProcess("id", "sleeper", exec.Command("sleep", "10"))
	if err := proc.start(); err != nil {
		t.Fatalf("start() error = %v", err)
	}
	if err := proc.Terminate(); err != nil {
		t.Fatalf("Terminate() error = %v", err)
	}
	<-proc.Done()

	if got := proc.Outcome().Signal; got != "SIGTERM" {
		t.Errorf("Signal = %q, want SIGTERM", got)
	}
}

func TestProcess_StartTwice(t *testing.T) {
	proc := NewProcess("id", "echo", exec.Command("true"))
	if err := proc.start(); err != nil {
		t.Fatalf("start() error = %v", err)
	}
	defer func() { <-proc.Done() }()

	if err := proc.start(); !errors.Is(err, ErrProcessAlreadyStarted) {
		t.Errorf("second start() error = %v, want ErrProcessAlreadyStarted", err)
	}
}

func TestProcess_SignalBeforeStart(t *testing.T) {
	proc := NewProcess("id", "idle", exec.Command("true"))
	if err := proc.Kill(); !errors.Is(err, ErrProcessNotStarted) {
		t.Errorf("Kill() error = %v, want ErrProcessNotStarted", err)
	}
}

func TestClassify_NoProcessState(t *testing.T) {
	cause := errors.New("exec: \"vemod\": executable file not found in $PATH")
	out := Classify(nil, cause)

	if out.Kind != OutcomeLaunchFailed {
		t.Fatalf("Kind = %v, want %v", out.Kind, OutcomeLaunchFailed)
	}
	if !errors.Is(out.Err, cause) {
		t.Errorf("Err = %v, want %v", out.Err, cause)
	}
}

func TestOutcome_String(t *testing.T) {
	tests := []struct {
		out  Outcome
		want string
	}{
		{Outcome{Kind: OutcomeExited, ExitCode: 3}, "exited with code 3"},
		{Outcome{Kind: OutcomeSignaled, Signal: "SIGKILL"}, "terminated by signal SIGKILL"},
		{Outcome{Kind: OutcomeLaunchFailed, Err: errors.New("boom")}, "failed to launch: boom"},
	}
	for _, tt := range tests {
		if got := tt.out.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateCreated, "created"},
		{StateRunning, "running"},
		{StateExited, "exited"},
		{StateSignaled, "signaled"},
		{State(99), "unknown(99)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
