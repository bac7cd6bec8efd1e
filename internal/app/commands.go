package app

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/dshills/vemodkit/internal/editor"
	"github.com/dshills/vemodkit/internal/invoke"
	"github.com/dshills/vemodkit/internal/lsp"
)

// Command identifiers.
const (
	CmdStartRestart    = "vemod.vmdls.startRestart"
	CmdStop            = "vemod.vmdls.stop"
	CmdRunFile         = "vemod.runFile"
	CmdRunFileForceJit = "vemod.runFileForceJit"
	CmdTranspileFile   = "vemod.transpileFile"
	CmdOpenDocument    = "open"
	CmdSaveDocument    = "save"
	CmdCloseDocument   = "close"
)

// MsgPathRequired is shown when startRestart runs with an empty server path.
const MsgPathRequired = "This command cannot be run without setting 'vemod.vmdls.path'."

// Command is a registered command handler. args are the optional
// arguments supplied by the host, such as a document path.
type Command func(ctx context.Context, args []string) error

func (a *Application) registerCommands() {
	commands := map[string]Command{
		CmdStartRestart:    a.startRestart,
		CmdStop:            a.stop,
		CmdRunFile:         a.runFile(invoke.ModeRun),
		CmdRunFileForceJit: a.runFile(invoke.ModeForceJit),
		CmdTranspileFile:   a.transpileFile,
		CmdOpenDocument:    a.openCommand,
		CmdSaveDocument:    a.saveCommand,
		CmdCloseDocument:   a.closeCommand,
	}

	a.mu.Lock()
	a.commands = commands
	a.mu.Unlock()
}

// Commands returns the registered command IDs, sorted.
func (a *Application) Commands() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ids := make([]string, 0, len(a.commands))
	for id := range a.commands {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Execute runs the command registered under id. Failures have already been
// shown to the user when Execute returns; the returned *CommandError is for
// logging. A panicking command is recovered and reported the same way.
func (a *Application) Execute(ctx context.Context, id string, args ...string) (err error) {
	if !a.active.Load() {
		return &CommandError{Command: id, Err: ErrNotActive}
	}

	a.mu.RLock()
	cmd, ok := a.commands[id]
	a.mu.RUnlock()
	if !ok {
		editor.ShowError(a.window, fmt.Sprintf("VeMod: Unknown command %s", id))
		return &CommandError{Command: id, Err: ErrUnknownCommand}
	}

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("command %s panicked: %v", id, r)
			editor.ShowError(a.window, fmt.Sprintf("VeMod: Command %s failed: %v", id, r))
			err = &CommandError{Command: id, Err: &PanicError{Value: r}}
		}
	}()

	a.logger.Debug("execute %s %q", id, args)
	if err := cmd(ctx, args); err != nil {
		a.logger.Debug("command %s: %v", id, err)
		return &CommandError{Command: id, Err: err}
	}
	return nil
}

// startRestart stops the server if it is running and starts it again.
func (a *Application) startRestart(ctx context.Context, _ []string) error {
	if a.Config().Vemod.Vmdls.Path == "" {
		editor.ShowModalError(a.window, MsgPathRequired)
		return ErrPrecondition
	}
	return a.session.Restart(ctx)
}

func (a *Application) stop(ctx context.Context, _ []string) error {
	return a.session.Stop(ctx)
}

func (a *Application) runFile(mode invoke.Mode) Command {
	return func(ctx context.Context, args []string) error {
		doc, err := a.target(ctx, args)
		if err != nil {
			return err
		}
		return a.invoker.RunMode(ctx, doc, mode)
	}
}

func (a *Application) transpileFile(ctx context.Context, args []string) error {
	doc, err := a.target(ctx, args)
	if err != nil {
		return err
	}
	return a.invoker.Transpile(ctx, doc)
}

// target opens args[0] when given, then returns the active document if the
// Document Guard accepts it.
func (a *Application) target(ctx context.Context, args []string) (editor.Document, error) {
	if len(args) > 0 {
		if _, err := a.openDocument(ctx, args[0]); err != nil {
			return nil, err
		}
	}
	doc := a.guard.Active(a.workspace)
	if doc == nil {
		return nil, ErrNoDocument
	}
	return doc, nil
}

func (a *Application) openCommand(ctx context.Context, args []string) error {
	if len(args) == 0 {
		editor.ShowError(a.window, "VeMod: open requires a file path")
		return ErrMissingArgument
	}
	_, err := a.openDocument(ctx, args[0])
	return err
}

// openDocument opens path in the host and tracks it in the session.
func (a *Application) openDocument(ctx context.Context, path string) (editor.Document, error) {
	host, ok := a.workspace.(DocumentHost)
	if !ok {
		editor.ShowError(a.window, "VeMod: This workspace cannot open "+path)
		return nil, ErrNoDocumentHost
	}
	doc, err := host.Open(ctx, path)
	if err != nil {
		editor.ShowError(a.window, fmt.Sprintf("VeMod: Failed to open %s: %v", path, err))
		return nil, err
	}

	err = a.session.OpenDocument(ctx, doc)
	switch {
	case err == nil, errors.Is(err, lsp.ErrDocumentNotSelected), errors.Is(err, lsp.ErrDocumentAlreadyOpen):
	default:
		a.logger.Warn("sync open %s: %v", doc.Path(), err)
	}
	return doc, nil
}

// saveCommand saves the active document and notifies the server.
func (a *Application) saveCommand(ctx context.Context, _ []string) error {
	doc := a.workspace.ActiveDocument()
	if doc == nil {
		editor.ShowError(a.window, editor.MsgNoActiveDocument)
		return ErrNoDocument
	}
	if !a.workspace.Save(ctx, doc) {
		editor.ShowError(a.window, "VeMod: Failed to save document "+doc.Path())
		return &invoke.SaveError{Path: doc.Path()}
	}

	err := a.session.SaveDocument(ctx, doc)
	switch {
	case err == nil, errors.Is(err, lsp.ErrDocumentNotSelected), errors.Is(err, lsp.ErrDocumentNotOpen):
	default:
		a.logger.Warn("sync save %s: %v", doc.Path(), err)
	}
	return nil
}

func (a *Application) closeCommand(ctx context.Context, args []string) error {
	if len(args) == 0 {
		editor.ShowError(a.window, "VeMod: close requires a file path")
		return ErrMissingArgument
	}
	host, ok := a.workspace.(DocumentHost)
	if !ok {
		editor.ShowError(a.window, "VeMod: This workspace cannot close "+args[0])
		return ErrNoDocumentHost
	}
	doc, err := host.Close(ctx, args[0])
	if err != nil {
		editor.ShowError(a.window, fmt.Sprintf("VeMod: Failed to close %s: %v", args[0], err))
		return err
	}

	err = a.session.CloseDocument(ctx, doc)
	if err != nil && !errors.Is(err, lsp.ErrDocumentNotOpen) {
		a.logger.Warn("sync close %s: %v", doc.Path(), err)
	}
	return nil
}
