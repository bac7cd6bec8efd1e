package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kballard/go-shellquote"

	"github.com/dshills/vemodkit/internal/editor"
	"github.com/dshills/vemodkit/internal/integration/terminal"
	"github.com/dshills/vemodkit/internal/logging"
)

// Console is an editor.Window that prints messages to a stream. Modal
// messages are set off by blank lines.
type Console struct {
	mu     sync.Mutex
	out    io.Writer
	logger *logging.Logger
}

// NewConsole creates a console writing to out.
func NewConsole(out io.Writer, logger *logging.Logger) *Console {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Console{out: out, logger: logger.WithComponent("window")}
}

// ShowMessage implements editor.Window.
func (c *Console) ShowMessage(severity editor.Severity, message string, modal bool) {
	switch severity {
	case editor.SeverityError:
		c.logger.Debug("error message: %s", message)
	case editor.SeverityWarning:
		c.logger.Debug("warning message: %s", message)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if modal {
		fmt.Fprintf(c.out, "\n%s: %s\n\n", strings.ToUpper(severity.String()), message)
		return
	}
	fmt.Fprintf(c.out, "%s: %s\n", severity, message)
}

// Output is an output surface that keeps its text and echoes appended
// lines to a stream, prefixed with its name.
type Output struct {
	name string

	mu      sync.Mutex
	buf     strings.Builder
	out     io.Writer
	partial bool
	shown   bool
}

// Name implements editor.OutputSurface.
func (o *Output) Name() string { return o.name }

// Clear implements editor.OutputSurface.
func (o *Output) Clear() {
	o.mu.Lock()
	o.buf.Reset()
	o.mu.Unlock()
}

// Append implements editor.OutputSurface.
func (o *Output) Append(text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.buf.WriteString(text)
	if o.out == nil || text == "" {
		return
	}

	var b strings.Builder
	for _, line := range strings.SplitAfter(text, "\n") {
		if line == "" {
			continue
		}
		if !o.partial {
			b.WriteString("[" + o.name + "] ")
		}
		b.WriteString(line)
		o.partial = !strings.HasSuffix(line, "\n")
	}
	io.WriteString(o.out, b.String())
}

// Show implements editor.OutputSurface.
func (o *Output) Show(bool) {
	o.mu.Lock()
	o.shown = true
	o.mu.Unlock()
}

// Text returns the surface's current text.
func (o *Output) Text() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.String()
}

// Shown reports whether Show has been called.
func (o *Output) Shown() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.shown
}

// Outputs hands out named Output surfaces sharing one echo stream.
type Outputs struct {
	out io.Writer

	mu     sync.Mutex
	byName map[string]*Output
}

// NewOutputs creates output surfaces echoing to out. A nil out disables
// the echo.
func NewOutputs(out io.Writer) *Outputs {
	return &Outputs{out: out, byName: make(map[string]*Output)}
}

// Output implements editor.Outputs.
func (outs *Outputs) Output(name string) editor.OutputSurface {
	return outs.Get(name)
}

// Get returns the surface called name, creating it on first use.
func (outs *Outputs) Get(name string) *Output {
	outs.mu.Lock()
	defer outs.mu.Unlock()
	o, ok := outs.byName[name]
	if !ok {
		o = &Output{name: name, out: outs.out}
		outs.byName[name] = o
	}
	return o
}

// Splitter runs a command in a pane beside the current one.
// *terminal.Manager implements it.
type Splitter interface {
	SplitWindow(command, workDir string) error
}

// SplitOpener opens files in the user's editor in a tmux split. Outside
// tmux it prints the path instead.
type SplitOpener struct {
	splitter Splitter
	editor   string
	fallback io.Writer
	logger   *logging.Logger
}

// NewSplitOpener creates an opener. editorCmd is the editor command line;
// empty means $VISUAL, then $EDITOR, then vi.
func NewSplitOpener(splitter Splitter, editorCmd string, fallback io.Writer, logger *logging.Logger) *SplitOpener {
	if editorCmd == "" {
		editorCmd = os.Getenv("VISUAL")
	}
	if editorCmd == "" {
		editorCmd = os.Getenv("EDITOR")
	}
	if editorCmd == "" {
		editorCmd = "vi"
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &SplitOpener{
		splitter: splitter,
		editor:   editorCmd,
		fallback: fallback,
		logger:   logger.WithComponent("opener"),
	}
}

// OpenBeside implements Opener.
func (o *SplitOpener) OpenBeside(_ context.Context, path string) error {
	words, err := shellquote.Split(o.editor)
	if err != nil || len(words) == 0 {
		return fmt.Errorf("editor command %q: invalid", o.editor)
	}
	line := shellquote.Join(append(words, path)...)

	err = o.splitter.SplitWindow(line, filepath.Dir(path))
	if err == nil {
		return nil
	}
	if errors.Is(err, terminal.ErrNoClient) && o.fallback != nil {
		o.logger.Debug("no tmux client; printing %s", path)
		_, werr := fmt.Fprintf(o.fallback, "%s\n", path)
		return werr
	}
	return fmt.Errorf("open %s: %w", path, err)
}

var (
	_ editor.Window  = (*Console)(nil)
	_ editor.Outputs = (*Outputs)(nil)
	_ Opener         = (*SplitOpener)(nil)
	_ Splitter       = (*terminal.Manager)(nil)
)
