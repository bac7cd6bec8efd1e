// Package editortest provides recording fakes of the editor collaborators
// for use in tests.
package editortest

import (
	"context"
	"strings"
	"sync"

	"github.com/dshills/vemodkit/internal/editor"
)

// Document is an in-memory editor.Document.
type Document struct {
	FilePath string
	Language string
	Dirty    bool
	Text     string
}

// Path implements editor.Document.
func (d *Document) Path() string { return d.FilePath }

// LanguageID implements editor.Document.
func (d *Document) LanguageID() string { return d.Language }

// IsDirty implements editor.Document.
func (d *Document) IsDirty() bool { return d.Dirty }

// Content implements editor.Document.
func (d *Document) Content() (string, error) { return d.Text, nil }

// Message is one recorded Window message.
type Message struct {
	Severity editor.Severity
	Text     string
	Modal    bool
}

// Window records every message shown.
type Window struct {
	mu       sync.Mutex
	messages []Message
}

// ShowMessage implements editor.Window.
func (w *Window) ShowMessage(severity editor.Severity, message string, modal bool) {
	w.mu.Lock()
	w.messages = append(w.messages, Message{Severity: severity, Text: message, Modal: modal})
	w.mu.Unlock()
}

// Messages returns a copy of the recorded messages.
func (w *Window) Messages() []Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Message, len(w.messages))
	copy(out, w.messages)
	return out
}

// Reset forgets the recorded messages.
func (w *Window) Reset() {
	w.mu.Lock()
	w.messages = nil
	w.mu.Unlock()
}

// Contains reports whether any recorded message contains substr.
func (w *Window) Contains(substr string) bool {
	for _, m := range w.Messages() {
		if strings.Contains(m.Text, substr) {
			return true
		}
	}
	return false
}

// Workspace is a scripted editor.Workspace.
type Workspace struct {
	mu sync.Mutex

	Active editor.Document
	// SaveResult is returned by Save.
	SaveResult bool

	saves  []string
	opened []string
}

// ActiveDocument implements editor.Workspace.
func (w *Workspace) ActiveDocument() editor.Document {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Active
}

// Save implements editor.Workspace.
func (w *Workspace) Save(_ context.Context, doc editor.Document) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.saves = append(w.saves, doc.Path())
	if d, ok := doc.(*Document); ok && w.SaveResult {
		d.Dirty = false
	}
	return w.SaveResult
}

// OpenBeside implements editor.Workspace.
func (w *Workspace) OpenBeside(_ context.Context, path string) error {
	w.mu.Lock()
	w.opened = append(w.opened, path)
	w.mu.Unlock()
	return nil
}

// Saves returns the paths passed to Save.
func (w *Workspace) Saves() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.saves...)
}

// Opened returns the paths passed to OpenBeside.
func (w *Workspace) Opened() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.opened...)
}

// Terminal records text sent to it.
type Terminal struct {
	mu    sync.Mutex
	name  string
	sent  []string
	shown int
}

// Name implements editor.Terminal.
func (t *Terminal) Name() string { return t.name }

// Show implements editor.Terminal.
func (t *Terminal) Show(bool) error {
	t.mu.Lock()
	t.shown++
	t.mu.Unlock()
	return nil
}

// SendText implements editor.Terminal.
func (t *Terminal) SendText(text string, _ bool) error {
	t.mu.Lock()
	t.sent = append(t.sent, text)
	t.mu.Unlock()
	return nil
}

// Sent returns the recorded SendText calls.
func (t *Terminal) Sent() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.sent...)
}

// Shown returns the number of Show calls.
func (t *Terminal) Shown() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.shown
}

// Terminals is an in-memory editor.Terminals.
type Terminals struct {
	mu      sync.Mutex
	byName  map[string]*Terminal
	created int
}

// Find implements editor.Terminals.
func (ts *Terminals) Find(name string) (editor.Terminal, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	t, ok := ts.byName[name]
	if !ok {
		return nil, false
	}
	return t, true
}

// Create implements editor.Terminals.
func (ts *Terminals) Create(name string) (editor.Terminal, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.byName == nil {
		ts.byName = make(map[string]*Terminal)
	}
	t := &Terminal{name: name}
	ts.byName[name] = t
	ts.created++
	return t, nil
}

// Get returns the terminal called name, or nil.
func (ts *Terminals) Get(name string) *Terminal {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.byName[name]
}

// Created returns how many terminals were created.
func (ts *Terminals) Created() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.created
}

// OutputOp is one recorded output surface operation.
type OutputOp struct {
	Op   string // "clear", "append", or "show"
	Text string
}

// Output records operations in order.
type Output struct {
	mu   sync.Mutex
	name string
	ops  []OutputOp
}

// Name implements editor.OutputSurface.
func (o *Output) Name() string { return o.name }

// Clear implements editor.OutputSurface.
func (o *Output) Clear() { o.record(OutputOp{Op: "clear"}) }

// Append implements editor.OutputSurface.
func (o *Output) Append(text string) { o.record(OutputOp{Op: "append", Text: text}) }

// Show implements editor.OutputSurface.
func (o *Output) Show(bool) { o.record(OutputOp{Op: "show"}) }

func (o *Output) record(op OutputOp) {
	o.mu.Lock()
	o.ops = append(o.ops, op)
	o.mu.Unlock()
}

// Ops returns the recorded operations.
func (o *Output) Ops() []OutputOp {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]OutputOp(nil), o.ops...)
}

// Text returns the concatenated appended text.
func (o *Output) Text() string {
	var b strings.Builder
	for _, op := range o.Ops() {
		if op.Op == "append" {
			b.WriteString(op.Text)
		}
	}
	return b.String()
}

// Outputs is an in-memory editor.Outputs.
type Outputs struct {
	mu     sync.Mutex
	byName map[string]*Output
}

// Output implements editor.Outputs.
func (outs *Outputs) Output(name string) editor.OutputSurface {
	return outs.Get(name)
}

// Get returns the recording surface called name, creating it if needed.
func (outs *Outputs) Get(name string) *Output {
	outs.mu.Lock()
	defer outs.mu.Unlock()
	if outs.byName == nil {
		outs.byName = make(map[string]*Output)
	}
	o, ok := outs.byName[name]
	if !ok {
		o = &Output{name: name}
		outs.byName[name] = o
	}
	return o
}
