// Package editor defines the collaborators vemodkit needs from the host
// editor, and the Document Guard that decides which documents are eligible
// for running, transpiling, and language-server features.
//
// The host owns every object behind these interfaces. vemodkit only reads
// documents, asks for saves, and delegates all presentation (messages,
// terminals, output text, opening files) back to the host.
package editor

import "context"

// Document is a text document open in the host editor.
type Document interface {
	// Path is the document's filesystem path.
	Path() string

	// LanguageID is the host's language identifier for the document.
	LanguageID() string

	// IsDirty reports whether the document has unsaved changes.
	IsDirty() bool

	// Content returns the current text, saved or not.
	Content() (string, error)
}

// Workspace exposes the active document and document-level actions.
type Workspace interface {
	// ActiveDocument returns the focused document, or nil when there is none.
	ActiveDocument() Document

	// Save writes the document to disk and reports success.
	Save(ctx context.Context, doc Document) bool

	// OpenBeside opens path in a view next to the active one.
	OpenBeside(ctx context.Context, path string) error
}

// Severity classifies a user message.
type Severity int

const (
	// SeverityInfo is an informational message.
	SeverityInfo Severity = iota
	// SeverityWarning is a warning.
	SeverityWarning
	// SeverityError is an error.
	SeverityError
)

// String returns the severity name.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Window surfaces messages to the user. Modal messages block the user until
// acknowledged; non-modal ones do not.
type Window interface {
	ShowMessage(severity Severity, message string, modal bool)
}

// ShowError shows a non-modal error.
func ShowError(w Window, message string) {
	w.ShowMessage(SeverityError, message, false)
}

// ShowModalError shows a modal error.
func ShowModalError(w Window, message string) {
	w.ShowMessage(SeverityError, message, true)
}

// ShowWarning shows a non-modal warning.
func ShowWarning(w Window, message string) {
	w.ShowMessage(SeverityWarning, message, false)
}

// Terminal is a named interactive shell owned by the host.
type Terminal interface {
	Name() string

	// Show brings the terminal to the foreground.
	Show(preserveFocus bool) error

	// SendText types text into the terminal, optionally followed by Enter.
	SendText(text string, addNewline bool) error
}

// Terminals finds and creates host terminals by name.
type Terminals interface {
	Find(name string) (Terminal, bool)
	Create(name string) (Terminal, error)
}

// FindOrCreateTerminal returns the terminal called name, creating it when
// no terminal with that name exists.
func FindOrCreateTerminal(ts Terminals, name string) (Terminal, error) {
	if t, ok := ts.Find(name); ok {
		return t, nil
	}
	return ts.Create(name)
}

// OutputSurface is an append-only text panel.
type OutputSurface interface {
	Name() string
	Clear()
	Append(text string)
	Show(preserveFocus bool)
}

// Outputs returns the output surface with a given name, creating it on first use.
type Outputs interface {
	Output(name string) OutputSurface
}
