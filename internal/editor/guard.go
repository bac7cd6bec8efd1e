package editor

import (
	"slices"
	"sync"
)

// Default user messages for rejected documents.
const (
	MsgNoActiveDocument = "VeMod: No active document"
	MsgUnsupported      = "VeMod: Active document is not VeMod assembly or Blue source"
)

// DefaultLanguages are the language identifiers supported out of the box.
var DefaultLanguages = []string{"vemod", "blue"}

// LanguageSet is the set of supported language identifiers. A single
// instance is shared by the Guard and the language-server session so the
// two can never disagree about which documents are eligible.
type LanguageSet struct {
	mu  sync.RWMutex
	ids []string
}

// NewLanguageSet creates a set from ids. Duplicates and empty ids are dropped.
func NewLanguageSet(ids ...string) *LanguageSet {
	s := &LanguageSet{}
	s.Replace(ids)
	return s
}

// Contains reports whether id is supported.
func (s *LanguageSet) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Contains(s.ids, id)
}

// IDs returns a copy of the supported ids in insertion order.
func (s *LanguageSet) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.ids)
}

// Replace swaps the supported ids and reports whether the set changed.
func (s *LanguageSet) Replace(ids []string) bool {
	next := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && !slices.Contains(next, id) {
			next = append(next, id)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.Equal(s.ids, next) {
		return false
	}
	s.ids = next
	return true
}

// Guard validates candidate documents before they are handed to the
// one-shot invoker or the session.
type Guard struct {
	languages *LanguageSet
	window    Window
}

// NewGuard creates a Guard reporting rejections to window.
func NewGuard(languages *LanguageSet, window Window) *Guard {
	return &Guard{languages: languages, window: window}
}

// Languages returns the shared language set.
func (g *Guard) Languages() *LanguageSet {
	return g.languages
}

// Validate returns doc when it is eligible. Otherwise it shows exactly one
// error message and returns nil.
func (g *Guard) Validate(doc Document) Document {
	if doc == nil {
		ShowError(g.window, MsgNoActiveDocument)
		return nil
	}
	if !g.languages.Contains(doc.LanguageID()) {
		ShowError(g.window, MsgUnsupported)
		return nil
	}
	return doc
}

// Active validates the workspace's active document.
func (g *Guard) Active(ws Workspace) Document {
	return g.Validate(ws.ActiveDocument())
}
