package terminal

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/dshills/vemodkit/internal/editor"
)

// fakeRunner is an in-memory tmux.
type fakeRunner struct {
	mu        sync.Mutex
	sessions  map[string]bool
	sent      []string
	splits    []string
	switched  []string
	createErr error
}

func newFakeRunner(existing ...string) *fakeRunner {
	r := &fakeRunner{sessions: make(map[string]bool)}
	for _, s := range existing {
		r.sessions[s] = true
	}
	return r
}

func (r *fakeRunner) NewSession(name, _, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	if r.sessions[name] {
		return fmt.Errorf("duplicate session: %s", name)
	}
	r.sessions[name] = true
	return nil
}

func (r *fakeRunner) HasSession(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[name]
}

func (r *fakeRunner) SendKeys(name, text string, enter bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.sessions[name] {
		return fmt.Errorf("can't find session: %s", name)
	}
	if enter {
		text += "\n"
	}
	r.sent = append(r.sent, name+"|"+text)
	return nil
}

func (r *fakeRunner) SwitchClient(name string) error {
	r.mu.Lock()
	r.switched = append(r.switched, name)
	r.mu.Unlock()
	return nil
}

func (r *fakeRunner) KillSession(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, name)
	return nil
}

func (r *fakeRunner) SplitWindow(command, _ string) error {
	r.mu.Lock()
	r.splits = append(r.splits, command)
	r.mu.Unlock()
	return nil
}

func (r *fakeRunner) kill(name string) {
	r.KillSession(name)
}

func TestManager_SessionName(t *testing.T) {
	m := NewManager(WithRunner(newFakeRunner()))

	tests := []struct {
		name string
		want string
	}{
		{"VeMod", "vemodkit-vemod"},
		{"VeMod Run: main.blue", "vemodkit-vemod-run--main-blue"},
		{"a_b-c", "vemodkit-a_b-c"},
	}
	for _, tt := range tests {
		if got := m.SessionName(tt.name); got != tt.want {
			t.Errorf("SessionName(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestManager_FindOrCreateReuses(t *testing.T) {
	runner := newFakeRunner()
	m := NewManager(WithRunner(runner))

	first, err := editor.FindOrCreateTerminal(m, "VeMod")
	if err != nil {
		t.Fatalf("FindOrCreateTerminal() error = %v", err)
	}
	second, err := editor.FindOrCreateTerminal(m, "VeMod")
	if err != nil {
		t.Fatalf("FindOrCreateTerminal() error = %v", err)
	}

	if first != second {
		t.Error("second lookup created a new terminal")
	}
	if first.Name() != "VeMod" {
		t.Errorf("Name() = %q", first.Name())
	}
}

func TestManager_AdoptsExistingSession(t *testing.T) {
	runner := newFakeRunner("vemodkit-vemod")
	m := NewManager(WithRunner(runner))

	term, ok := m.Find("VeMod")
	if !ok {
		t.Fatal("Find() did not adopt the existing session")
	}
	if err := term.SendText("ls", true); err != nil {
		t.Fatalf("SendText() error = %v", err)
	}
	if want := []string{"vemodkit-vemod|ls\n"}; !reflect.DeepEqual(runner.sent, want) {
		t.Errorf("sent = %v, want %v", runner.sent, want)
	}
}

func TestManager_RecreatesVanishedSession(t *testing.T) {
	runner := newFakeRunner()
	m := NewManager(WithRunner(runner))

	first, err := editor.FindOrCreateTerminal(m, "VeMod")
	if err != nil {
		t.Fatal(err)
	}
	runner.kill("vemodkit-vemod") // user closed the tmux session

	if _, ok := m.Find("VeMod"); ok {
		t.Fatal("Find() returned a terminal whose session is gone")
	}
	if err := first.SendText("ls", true); !errors.Is(err, ErrTerminalClosed) {
		t.Errorf("SendText() on stale terminal = %v, want ErrTerminalClosed", err)
	}

	second, err := editor.FindOrCreateTerminal(m, "VeMod")
	if err != nil {
		t.Fatalf("FindOrCreateTerminal() error = %v", err)
	}
	if second == first {
		t.Error("stale terminal returned")
	}
	if err := second.SendText("ls", false); err != nil {
		t.Errorf("SendText() error = %v", err)
	}
}

func TestManager_CreateError(t *testing.T) {
	runner := newFakeRunner()
	runner.createErr = errors.New("tmux: command not found")
	m := NewManager(WithRunner(runner))

	if _, err := m.Create("VeMod"); err == nil {
		t.Fatal("Create() error = nil")
	}
	if _, ok := m.Find("VeMod"); ok {
		t.Error("failed Create() left a terminal behind")
	}
}

func TestTerminal_Show(t *testing.T) {
	tests := []struct {
		name          string
		inside        bool
		preserveFocus bool
		wantSwitch    bool
	}{
		{name: "inside tmux", inside: true, wantSwitch: true},
		{name: "inside tmux preserving focus", inside: true, preserveFocus: true},
		{name: "outside tmux", inside: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := newFakeRunner()
			m := NewManager(WithRunner(runner), WithInsideTmux(tt.inside))
			term, err := m.Create("VeMod")
			if err != nil {
				t.Fatal(err)
			}

			if err := term.Show(tt.preserveFocus); err != nil {
				t.Fatalf("Show() error = %v", err)
			}
			if got := len(runner.switched) == 1; got != tt.wantSwitch {
				t.Errorf("switched = %v, want switch %v", runner.switched, tt.wantSwitch)
			}
		})
	}
}

func TestManager_Shutdown(t *testing.T) {
	runner := newFakeRunner()
	m := NewManager(WithRunner(runner))

	a, err := m.Create("a")
	if err != nil {
		t.Fatal(err)
	}

	if err := m.Shutdown(false); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	if !runner.HasSession("vemodkit-a") {
		t.Error("Shutdown(false) killed a session")
	}
	if err := a.SendText("ls", true); !errors.Is(err, ErrTerminalClosed) {
		t.Errorf("SendText() after Shutdown = %v, want ErrTerminalClosed", err)
	}
	if _, ok := m.Find("a"); ok {
		t.Error("Find() after Shutdown returned a terminal")
	}
	if _, err := m.Create("c"); !errors.Is(err, ErrManagerClosed) {
		t.Errorf("Create() after Shutdown = %v, want ErrManagerClosed", err)
	}
}

func TestManager_ShutdownKill(t *testing.T) {
	runner := newFakeRunner()
	m := NewManager(WithRunner(runner))

	if _, err := m.Create("a"); err != nil {
		t.Fatal(err)
	}
	if err := m.Shutdown(true); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	if runner.HasSession("vemodkit-a") {
		t.Error("Shutdown(true) left the session running")
	}
}

func TestManager_SplitWindow(t *testing.T) {
	runner := newFakeRunner()

	outside := NewManager(WithRunner(runner), WithInsideTmux(false))
	if err := outside.SplitWindow("vi x", ""); !errors.Is(err, ErrNoClient) {
		t.Errorf("outside tmux: err = %v, want ErrNoClient", err)
	}

	inside := NewManager(WithRunner(runner), WithInsideTmux(true))
	if err := inside.SplitWindow("vi x", ""); err != nil {
		t.Fatalf("SplitWindow() error = %v", err)
	}
	if len(runner.splits) != 1 || runner.splits[0] != "vi x" {
		t.Errorf("splits = %q, want [vi x]", runner.splits)
	}
}
