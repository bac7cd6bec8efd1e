// Package invoke runs the vemod CLI once against a single document.
//
// Two modes exist. Run types a command line into a reused, named terminal
// and returns without observing the result. Transpile executes the tool
// headless with captured output and routes the result by outcome: a failed
// launch, a non-zero exit, a clean exit and a signal each produce exactly
// one kind of side effect.
//
// Both modes save a dirty document first; a failed save aborts before
// anything is sent or spawned.
package invoke

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/dshills/vemodkit/internal/editor"
	"github.com/dshills/vemodkit/internal/integration/process"
	"github.com/dshills/vemodkit/internal/logging"
	"github.com/dshills/vemodkit/internal/resolve"
)

// Defaults.
const (
	DefaultTerminalName    = "VeMod"
	DefaultOutputExtension = ".vmd"
)

// Mode selects the flags appended to an interactive run.
type Mode int

const (
	// ModeRun runs the document normally.
	ModeRun Mode = iota
	// ModeForceJit forces full JIT compilation.
	ModeForceJit
)

// Flags returns the extra command-line flags for the mode.
func (m Mode) Flags() []string {
	switch m {
	case ModeForceJit:
		return []string{"-j", "full"}
	default:
		return nil
	}
}

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeRun:
		return "run"
	case ModeForceJit:
		return "run (force JIT)"
	default:
		return "unknown"
	}
}

// Invoker runs one-shot invocations of a CLI tool.
type Invoker struct {
	spec      resolve.Spec
	resolver  *resolve.Resolver
	workspace editor.Workspace
	window    editor.Window
	terminals editor.Terminals
	output    editor.OutputSurface
	procs     *process.Supervisor
	logger    *logging.Logger

	timeout time.Duration

	// mu guards the fields below.
	mu           sync.Mutex
	configured   string
	terminalName string
	clear        bool
	outputExt    string

	// transpile serializes headless runs sharing the output surface.
	transpile sync.Mutex
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithResolver replaces the executable resolver.
func WithResolver(r *resolve.Resolver) Option {
	return func(i *Invoker) { i.resolver = r }
}

// WithSupervisor replaces the process supervisor used by Transpile.
func WithSupervisor(s *process.Supervisor) Option {
	return func(i *Invoker) { i.procs = s }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(i *Invoker) { i.logger = l }
}

// WithTerminalName sets the name of the reused terminal.
func WithTerminalName(name string) Option {
	return func(i *Invoker) {
		if name != "" {
			i.terminalName = name
		}
	}
}

// WithClearTerminal controls the "clear && " prefix of interactive runs.
func WithClearTerminal(clear bool) Option {
	return func(i *Invoker) { i.clear = clear }
}

// WithOutputExtension sets the extension of transpiled documents.
func WithOutputExtension(ext string) Option {
	return func(i *Invoker) {
		if ext != "" {
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			i.outputExt = ext
		}
	}
}

// WithTimeout bounds a headless run. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(i *Invoker) { i.timeout = d }
}

// New creates an Invoker for the tool described by spec.
func New(spec resolve.Spec, ws editor.Workspace, win editor.Window, terms editor.Terminals, out editor.OutputSurface, opts ...Option) *Invoker {
	i := &Invoker{
		spec:         spec,
		resolver:     resolve.New(),
		workspace:    ws,
		window:       win,
		terminals:    terms,
		output:       out,
		logger:       logging.Nop(),
		terminalName: DefaultTerminalName,
		clear:        true,
		outputExt:    DefaultOutputExtension,
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.procs == nil {
		i.procs = process.NewSupervisor()
	}
	i.logger = i.logger.WithComponent("invoke").WithField("tool", spec.Tool)
	return i
}

// Configure sets the configured executable value used by later runs.
func (i *Invoker) Configure(configured string) {
	i.mu.Lock()
	i.configured = configured
	i.mu.Unlock()
}

// SetSentinel replaces the configured value that selects a PATH lookup.
func (i *Invoker) SetSentinel(sentinel string) {
	i.mu.Lock()
	i.spec.Sentinel = sentinel
	i.mu.Unlock()
}

// Reconfigure replaces the terminal name, the clear prefix and the
// transpile output extension. Empty strings keep the current values.
func (i *Invoker) Reconfigure(terminalName string, clear bool, outputExt string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if terminalName != "" {
		i.terminalName = terminalName
	}
	i.clear = clear
	if outputExt != "" {
		if !strings.HasPrefix(outputExt, ".") {
			outputExt = "." + outputExt
		}
		i.outputExt = outputExt
	}
}

// TerminalName returns the name of the terminal used by interactive runs.
func (i *Invoker) TerminalName() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.terminalName
}

// Run sends the run command for doc to the terminal.
func (i *Invoker) Run(ctx context.Context, doc editor.Document) error {
	return i.RunMode(ctx, doc, ModeRun)
}

// RunForceJit sends the run command with full JIT forced.
func (i *Invoker) RunForceJit(ctx context.Context, doc editor.Document) error {
	return i.RunMode(ctx, doc, ModeForceJit)
}

// RunMode saves doc if needed, then types the tool's command line for doc
// into the named terminal and shows it. Completion is not observed.
func (i *Invoker) RunMode(ctx context.Context, doc editor.Document, mode Mode) error {
	if err := i.save(ctx, doc); err != nil {
		return err
	}

	tool, err := i.resolveTool()
	if err != nil {
		return err
	}

	i.mu.Lock()
	name, clear := i.terminalName, i.clear
	i.mu.Unlock()

	term, err := editor.FindOrCreateTerminal(i.terminals, name)
	if err != nil {
		i.logger.Error("terminal %q: %v", name, err)
		editor.ShowError(i.window, fmt.Sprintf("VeMod: Failed to open terminal %s: %v", name, err))
		return fmt.Errorf("open terminal: %w", err)
	}

	line := CommandLine(clear, tool, doc.Path(), mode.Flags()...)
	i.logger.Info("%s: %s", mode, line)

	if err := term.Show(false); err != nil {
		i.logger.Warn("show terminal: %v", err)
	}
	if err := term.SendText(line, true); err != nil {
		editor.ShowError(i.window, fmt.Sprintf("VeMod: Failed to send command to terminal %s: %v", name, err))
		return fmt.Errorf("send to terminal: %w", err)
	}
	return nil
}

// Transpile runs the tool headless on doc. On success the derived document
// is opened beside the source; on a non-zero exit the captured stderr is
// shown in the output surface after clearing it. A launch failure or a
// signal only produces a message. Failures return a *ProcessError.
func (i *Invoker) Transpile(ctx context.Context, doc editor.Document) error {
	if err := i.save(ctx, doc); err != nil {
		return err
	}

	path, err := i.resolvePath()
	if err != nil {
		return err
	}

	i.transpile.Lock()
	defer i.transpile.Unlock()

	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	src := doc.Path()
	cmd := exec.Command(path, "--transpile", "--no-color", src)
	cmd.Dir = filepath.Dir(src)

	i.logger.Info("transpile %s", src)
	res := i.procs.Run(ctx, i.spec.Tool+" --transpile", cmd)
	i.logger.WithField("id", res.ID).Debug("transpile %s", res.Outcome)

	switch res.Outcome.Kind {
	case process.OutcomeLaunchFailed:
		editor.ShowError(i.window, fmt.Sprintf("VeMod: Failed to run %s: %v", i.spec.Tool, res.Outcome.Err))
		return &ProcessError{Tool: i.spec.Tool, Outcome: res.Outcome}

	case process.OutcomeSignaled:
		editor.ShowError(i.window, fmt.Sprintf("VeMod: %s was terminated by signal %s", i.spec.Tool, res.Outcome.Signal))
		return &ProcessError{Tool: i.spec.Tool, Outcome: res.Outcome}

	default:
		if res.Outcome.ExitCode != 0 {
			stderr := string(res.Stderr)
			editor.ShowError(i.window, fmt.Sprintf("VeMod: Failed to transpile %s (exit code %d)", filepath.Base(src), res.Outcome.ExitCode))
			if i.output != nil {
				i.output.Clear()
				i.output.Append(stderr)
				i.output.Show(true)
			}
			return &ProcessError{Tool: i.spec.Tool, Outcome: res.Outcome, Stderr: stderr}
		}
	}

	i.mu.Lock()
	ext := i.outputExt
	i.mu.Unlock()

	derived := DerivedPath(src, ext)
	if err := i.workspace.OpenBeside(ctx, derived); err != nil {
		i.logger.Error("open %s: %v", derived, err)
		editor.ShowError(i.window, fmt.Sprintf("VeMod: Failed to open %s: %v", derived, err))
		return fmt.Errorf("open %s: %w", derived, err)
	}
	return nil
}

// Shutdown kills any running headless invocation.
func (i *Invoker) Shutdown(timeout time.Duration) {
	i.procs.Shutdown(timeout)
}

// save writes doc to disk when it has unsaved changes.
func (i *Invoker) save(ctx context.Context, doc editor.Document) error {
	if !doc.IsDirty() {
		return nil
	}
	if i.workspace.Save(ctx, doc) {
		return nil
	}
	i.logger.Warn("save %s failed", doc.Path())
	editor.ShowError(i.window, "VeMod: Failed to save document "+doc.Path())
	return &SaveError{Path: doc.Path()}
}

// resolvePath resolves the executable, reporting failures modally.
func (i *Invoker) resolvePath() (string, error) {
	i.mu.Lock()
	spec, configured := i.spec, i.configured
	i.mu.Unlock()

	path, err := i.resolver.Resolve(spec, configured)
	if err != nil {
		i.logger.Error("resolve %q: %v", configured, err)
		editor.ShowModalError(i.window, err.Error())
		return "", err
	}
	return path, nil
}

// resolveTool returns the program to name on the terminal command line:
// the bare tool name when it is looked up in PATH, so the terminal's own
// PATH applies, and the resolved path otherwise.
func (i *Invoker) resolveTool() (string, error) {
	path, err := i.resolvePath()
	if err != nil {
		return "", err
	}
	i.mu.Lock()
	lookup := i.spec.IsLookup(i.configured)
	i.mu.Unlock()
	if lookup {
		return i.spec.Tool, nil
	}
	return path, nil
}

// CommandLine composes "[clear && ]tool path [flags...]". Arguments are
// shell-quoted when needed; empty flags are dropped.
func CommandLine(clear bool, tool, path string, flags ...string) string {
	args := []string{tool, path}
	for _, f := range flags {
		if f != "" {
			args = append(args, f)
		}
	}
	line := shellquote.Join(args...)
	if clear {
		return "clear && " + line
	}
	return line
}

// DerivedPath replaces path's extension with ext. A path without an
// extension gets ext appended.
func DerivedPath(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}
