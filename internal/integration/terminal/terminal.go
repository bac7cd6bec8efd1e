package terminal

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dshills/vemodkit/internal/editor"
	"github.com/dshills/vemodkit/internal/logging"
)

// DefaultPrefix is prepended to tmux session names created by a Manager.
const DefaultPrefix = "vemodkit-"

// Terminal is a named shell living in a tmux session.
type Terminal struct {
	name    string
	session string
	mgr     *Manager
	closed  atomic.Bool
}

// Name returns the terminal's display name.
func (t *Terminal) Name() string {
	return t.name
}

// Show brings the terminal to the foreground. Inside a tmux client the
// client is switched to the terminal's session unless preserveFocus is
// set; outside tmux the attach command is logged instead.
func (t *Terminal) Show(preserveFocus bool) error {
	if t.closed.Load() {
		return ErrTerminalClosed
	}
	if preserveFocus {
		return nil
	}
	if !t.mgr.insideTmux() {
		t.mgr.logger.Info("terminal %q is ready: tmux attach -t %s", t.name, t.session)
		return nil
	}
	return t.mgr.runner.SwitchClient(t.session)
}

// SendText types text into the terminal, followed by Enter when
// addNewline is true.
func (t *Terminal) SendText(text string, addNewline bool) error {
	if t.closed.Load() {
		return ErrTerminalClosed
	}
	t.mgr.logger.Debug("send to %s: %s", t.session, text)
	return t.mgr.runner.SendKeys(t.session, text, addNewline)
}

// Option configures a Manager.
type Option func(*Manager)

// WithRunner replaces the tmux runner.
func WithRunner(r Runner) Option {
	return func(m *Manager) { m.runner = r }
}

// WithShell sets the shell started in new sessions.
func WithShell(shell string) Option {
	return func(m *Manager) { m.shell = shell }
}

// WithWorkDir sets the starting directory of new sessions.
func WithWorkDir(dir string) Option {
	return func(m *Manager) { m.workDir = dir }
}

// WithPrefix sets the session name prefix.
func WithPrefix(prefix string) Option {
	return func(m *Manager) { m.prefix = prefix }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithInsideTmux overrides detection of an attached tmux client.
func WithInsideTmux(inside bool) Option {
	return func(m *Manager) { m.inside = &inside }
}

// Manager finds and creates named terminals. It implements
// editor.Terminals. A terminal whose tmux session already exists, for
// example one created by an earlier run, is adopted rather than recreated.
type Manager struct {
	runner  Runner
	shell   string
	workDir string
	prefix  string
	logger  *logging.Logger
	inside  *bool

	mu        sync.Mutex
	terminals map[string]*Terminal
	closed    atomic.Bool
}

// NewManager creates a terminal manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		shell:     os.Getenv("SHELL"),
		prefix:    DefaultPrefix,
		logger:    logging.Nop(),
		terminals: make(map[string]*Terminal),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.runner == nil {
		m.runner = NewTmuxRunner()
	}
	if m.shell == "" {
		m.shell = "/bin/sh"
	}
	m.logger = m.logger.WithComponent("terminal")
	return m
}

// SessionName returns the tmux session name used for a terminal name.
// tmux reserves '.' and ':' in targets, so every character outside
// [A-Za-z0-9_-] becomes '-'.
func (m *Manager) SessionName(name string) string {
	var b strings.Builder
	b.WriteString(m.prefix)
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}

// Find returns the terminal called name. A live tmux session with the
// matching session name is adopted; a tracked terminal whose session has
// gone away is dropped.
func (m *Manager) Find(name string) (editor.Terminal, bool) {
	if m.closed.Load() {
		return nil, false
	}
	session := m.SessionName(name)
	alive := m.runner.HasSession(session)

	m.mu.Lock()
	defer m.mu.Unlock()

	t, tracked := m.terminals[name]
	switch {
	case tracked && alive:
		return t, true
	case tracked:
		t.closed.Store(true)
		delete(m.terminals, name)
		m.logger.Debug("session %s for %q has gone away", session, name)
		return nil, false
	case alive:
		t = m.track(name, session)
		m.logger.Debug("adopted session %s for %q", session, name)
		return t, true
	default:
		return nil, false
	}
}

// Create starts a new terminal called name.
func (m *Manager) Create(name string) (editor.Terminal, error) {
	if m.closed.Load() {
		return nil, ErrManagerClosed
	}
	session := m.SessionName(name)
	if err := m.runner.NewSession(session, m.shell, m.workDir); err != nil {
		return nil, fmt.Errorf("create terminal %q: %w", name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.terminals[name]; ok {
		old.closed.Store(true)
	}
	m.logger.Info("created terminal %q in session %s", name, session)
	return m.track(name, session), nil
}

// track records a terminal. Callers hold m.mu.
func (m *Manager) track(name, session string) *Terminal {
	t := &Terminal{
		name:    name,
		session: session,
		mgr:     m,
	}
	m.terminals[name] = t
	return t
}

// Shutdown stops tracking terminals. Sessions are left running so their
// output stays visible; pass kill to terminate them as well.
func (m *Manager) Shutdown(kill bool) error {
	if m.closed.Swap(true) {
		return nil
	}

	m.mu.Lock()
	terminals := make([]*Terminal, 0, len(m.terminals))
	for _, t := range m.terminals {
		terminals = append(terminals, t)
	}
	m.terminals = make(map[string]*Terminal)
	m.mu.Unlock()

	var first error
	for _, t := range terminals {
		if t.closed.Swap(true) || !kill {
			continue
		}
		if err := m.runner.KillSession(t.session); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// SplitWindow runs command in a pane beside the current one. It needs an
// attached client and returns ErrNoClient outside tmux.
func (m *Manager) SplitWindow(command, workDir string) error {
	if m.closed.Load() {
		return ErrManagerClosed
	}
	if !m.insideTmux() {
		return ErrNoClient
	}
	m.logger.Debug("split-window: %s", command)
	return m.runner.SplitWindow(command, workDir)
}

func (m *Manager) insideTmux() bool {
	if m.inside != nil {
		return *m.inside
	}
	return os.Getenv("TMUX") != ""
}

var (
	_ editor.Terminals = (*Manager)(nil)
	_ editor.Terminal  = (*Terminal)(nil)
)
