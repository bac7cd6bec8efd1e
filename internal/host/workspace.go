// Package host provides editor collaborators for running vemodkit outside
// a graphical editor: documents backed by files, a console window, output
// surfaces that echo to a stream, and a side-by-side opener that splits the
// current tmux window.
package host

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/dshills/vemodkit/internal/editor"
	"github.com/dshills/vemodkit/internal/logging"
)

// PlainText is the language of documents no detector claims.
const PlainText = "plaintext"

// LanguageFunc maps a path to a language identifier.
type LanguageFunc func(path string) (string, bool)

// Opener opens a path in a view next to the current one.
type Opener interface {
	OpenBeside(ctx context.Context, path string) error
}

// Document is a file on disk with optional unsaved text.
type Document struct {
	path     string
	language string

	mu    sync.Mutex
	text  string
	dirty bool
}

// Path implements editor.Document.
func (d *Document) Path() string { return d.path }

// LanguageID implements editor.Document.
func (d *Document) LanguageID() string { return d.language }

// IsDirty implements editor.Document.
func (d *Document) IsDirty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dirty
}

// Content returns the unsaved text, or the file's content when there is none.
func (d *Document) Content() (string, error) {
	d.mu.Lock()
	if d.dirty {
		text := d.text
		d.mu.Unlock()
		return text, nil
	}
	d.mu.Unlock()

	data, err := os.ReadFile(d.path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SetText replaces the document's text without saving it.
func (d *Document) SetText(text string) {
	d.mu.Lock()
	d.text = text
	d.dirty = true
	d.mu.Unlock()
}

// Workspace tracks the open documents and the active one. It implements
// editor.Workspace and app.DocumentHost.
type Workspace struct {
	languages LanguageFunc
	opener    Opener
	logger    *logging.Logger

	mu     sync.Mutex
	docs   map[string]*Document
	active *Document
}

// WorkspaceOption configures a Workspace.
type WorkspaceOption func(*Workspace)

// WithLanguages sets the language detector.
func WithLanguages(fn LanguageFunc) WorkspaceOption {
	return func(w *Workspace) { w.languages = fn }
}

// WithOpener sets the side-by-side opener.
func WithOpener(o Opener) WorkspaceOption {
	return func(w *Workspace) { w.opener = o }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) WorkspaceOption {
	return func(w *Workspace) { w.logger = l }
}

// NewWorkspace creates an empty workspace.
func NewWorkspace(opts ...WorkspaceOption) *Workspace {
	w := &Workspace{
		logger: logging.Nop(),
		docs:   make(map[string]*Document),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.WithComponent("workspace")
	return w
}

// Open opens the file at path, or returns the already open document, and
// makes it active.
func (w *Workspace) Open(_ context.Context, path string) (editor.Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if doc, ok := w.docs[abs]; ok {
		w.active = doc
		return doc, nil
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", abs)
	}

	lang := PlainText
	if w.languages != nil {
		if l, ok := w.languages(abs); ok {
			lang = l
		}
	}
	doc := &Document{path: abs, language: lang}
	w.docs[abs] = doc
	w.active = doc
	w.logger.Debug("open %s (%s)", abs, lang)
	return doc, nil
}

// Close forgets the document at path. Closing the active document leaves
// no document active.
func (w *Workspace) Close(_ context.Context, path string) (editor.Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	doc, ok := w.docs[abs]
	if !ok {
		return nil, fmt.Errorf("%s: %w", abs, os.ErrNotExist)
	}
	delete(w.docs, abs)
	if w.active == doc {
		w.active = nil
	}
	return doc, nil
}

// ActiveDocument implements editor.Workspace.
func (w *Workspace) ActiveDocument() editor.Document {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.active == nil {
		return nil
	}
	return w.active
}

// Save writes a document's unsaved text to its file.
func (w *Workspace) Save(_ context.Context, doc editor.Document) bool {
	d, ok := doc.(*Document)
	if !ok {
		return !doc.IsDirty()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.dirty {
		return true
	}
	info, err := os.Stat(d.path)
	mode := os.FileMode(0o644)
	if err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(d.path, []byte(d.text), mode); err != nil {
		w.logger.Error("save %s: %v", d.path, err)
		return false
	}
	d.dirty = false
	d.text = ""
	return true
}

// OpenBeside implements editor.Workspace.
func (w *Workspace) OpenBeside(ctx context.Context, path string) error {
	if w.opener == nil {
		return fmt.Errorf("open %s: no opener configured", path)
	}
	return w.opener.OpenBeside(ctx, path)
}

// Documents returns the paths of the open documents, sorted.
func (w *Workspace) Documents() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	paths := make([]string, 0, len(w.docs))
	for p := range w.docs {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}

var (
	_ editor.Workspace = (*Workspace)(nil)
	_ editor.Document  = (*Document)(nil)
)
