package terminal

import (
	"fmt"
	"os/exec"
	"strings"
)

// Runner abstracts the tmux operations a terminal needs.
type Runner interface {
	// NewSession creates a detached session running shell in workDir.
	NewSession(name, shell, workDir string) error

	// HasSession reports whether a session with the given name exists.
	HasSession(name string) bool

	// SendKeys types text literally into the session, then presses Enter
	// when enter is true.
	SendKeys(name, text string, enter bool) error

	// SwitchClient moves the attached client to the session.
	SwitchClient(name string) error

	// KillSession terminates the session.
	KillSession(name string) error

	// SplitWindow runs command in a new pane beside the client's current
	// pane.
	SplitWindow(command, workDir string) error
}

// CmdFunc creates an *exec.Cmd. It matches exec.Command.
type CmdFunc func(name string, args ...string) *exec.Cmd

// TmuxRunner implements Runner by calling the tmux binary.
type TmuxRunner struct {
	runCmd CmdFunc
	binary string
}

// NewTmuxRunner creates a TmuxRunner for the tmux binary on PATH.
func NewTmuxRunner() *TmuxRunner {
	return &TmuxRunner{runCmd: exec.Command, binary: "tmux"}
}

// NewTmuxRunnerWithCmd creates a TmuxRunner that builds commands with fn.
func NewTmuxRunnerWithCmd(fn CmdFunc) *TmuxRunner {
	return &TmuxRunner{runCmd: fn, binary: "tmux"}
}

func (r *TmuxRunner) run(verb, target string, args ...string) (string, error) {
	cmd := r.runCmd(r.binary, append([]string{verb}, args...)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if target != "" {
			return "", fmt.Errorf("tmux %s %q: %w: %s", verb, target, err, strings.TrimSpace(string(out)))
		}
		return "", fmt.Errorf("tmux %s: %w: %s", verb, err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// NewSession creates a detached tmux session.
func (r *TmuxRunner) NewSession(name, shell, workDir string) error {
	args := []string{"-d", "-s", name}
	if workDir != "" {
		args = append(args, "-c", workDir)
	}
	if shell != "" {
		args = append(args, shell)
	}
	_, err := r.run("new-session", name, args...)
	return err
}

// HasSession checks whether a tmux session with the given name exists.
func (r *TmuxRunner) HasSession(name string) bool {
	return r.runCmd(r.binary, "has-session", "-t", exactTarget(name)).Run() == nil
}

// SendKeys sends text without key-name interpretation, then Enter.
func (r *TmuxRunner) SendKeys(name, text string, enter bool) error {
	if text != "" {
		if _, err := r.run("send-keys", name, "-t", paneTarget(name), "-l", text); err != nil {
			return err
		}
	}
	if enter {
		if _, err := r.run("send-keys", name, "-t", paneTarget(name), "Enter"); err != nil {
			return err
		}
	}
	return nil
}

// SwitchClient switches the current client to the session.
func (r *TmuxRunner) SwitchClient(name string) error {
	_, err := r.run("switch-client", name, "-t", exactTarget(name))
	return err
}

// KillSession terminates the named tmux session.
func (r *TmuxRunner) KillSession(name string) error {
	_, err := r.run("kill-session", name, "-t", exactTarget(name))
	return err
}

// SplitWindow opens a horizontal split in the current window running
// command.
func (r *TmuxRunner) SplitWindow(command, workDir string) error {
	args := []string{"-h"}
	if workDir != "" {
		args = append(args, "-c", workDir)
	}
	_, err := r.run("split-window", "", append(args, command)...)
	return err
}

// exactTarget disables tmux's prefix matching of session names.
func exactTarget(name string) string {
	return "=" + name
}

// paneTarget addresses the active pane of the session's current window.
func paneTarget(name string) string {
	return "=" + name + ":"
}

var _ Runner = (*TmuxRunner)(nil)
