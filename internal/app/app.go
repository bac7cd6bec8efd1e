// Package app wires the VeMod integration into a host editor.
//
// An Application owns one language-server Session and one Invoker for the
// vemod CLI, registers the user-facing commands, and applies configuration
// changes at runtime. The host supplies the collaborators (window,
// workspace, terminals, output surfaces) and calls Activate once, Execute
// per command, Reload on configuration change and Deactivate at exit.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/dshills/vemodkit/internal/config"
	"github.com/dshills/vemodkit/internal/editor"
	"github.com/dshills/vemodkit/internal/integration/process"
	"github.com/dshills/vemodkit/internal/invoke"
	"github.com/dshills/vemodkit/internal/logging"
	"github.com/dshills/vemodkit/internal/lsp"
	"github.com/dshills/vemodkit/internal/resolve"
)

// Tool names and remediation examples.
const (
	VemodTool    = "vemod"
	VmdlsTool    = "vmdls"
	VemodExample = "~/vm/zig-out/bin/vemod"
	VmdlsExample = "~/vm/zig-out/bin/vmdls"

	// ServerDisplayName names the language server in user messages.
	ServerDisplayName = "VeMod Language Server (vmdls)"
)

// DocumentHost is implemented by workspaces that can open and close
// documents by path. Open makes the document active.
type DocumentHost interface {
	Open(ctx context.Context, path string) (editor.Document, error)
	Close(ctx context.Context, path string) (editor.Document, error)
}

// Options configures an Application.
type Options struct {
	// Config is the initial configuration. Nil means config.Default().
	Config *config.Config

	// ConfigErr is the error from loading the configuration, if any. The
	// application then runs on Config (or the defaults), answers server
	// configuration requests with the error, and reports it on Activate.
	ConfigErr error

	// Collaborators. All are required.
	Window    editor.Window
	Workspace editor.Workspace
	Terminals editor.Terminals
	Outputs   editor.Outputs

	Logger *logging.Logger

	// Env is the language server's environment. Nil inherits ours.
	Env []string

	// WorkspaceFolders are the directories reported to the server.
	WorkspaceFolders []string

	// Resolver, Connector and Supervisor replace the defaults.
	Resolver   *resolve.Resolver
	Connector  lsp.Connector
	Supervisor *process.Supervisor

	// Recovery overrides the crash-recovery timing. AutoRestart and
	// MaxRestarts always come from the configuration.
	Recovery *lsp.RecoveryConfig

	// StateObserver is called on every session state transition.
	StateObserver func(from, to lsp.State)

	// NoServer leaves the language server stopped on Activate. The
	// startRestart command still starts it.
	NoServer bool
}

// Application is the VeMod integration for one host.
type Application struct {
	logger    *logging.Logger
	window    editor.Window
	workspace editor.Workspace
	outputs   editor.Outputs
	langs     *editor.LanguageSet
	guard     *editor.Guard
	provider  *config.Provider
	session   *lsp.Session
	invoker   *invoke.Invoker
	recovery  lsp.RecoveryConfig
	configErr error
	noServer  bool

	mu       sync.RWMutex
	cfg      *config.Config
	commands map[string]Command

	active atomic.Bool
}

// New creates an inactive Application.
func New(opts Options) (*Application, error) {
	switch {
	case opts.Window == nil:
		return nil, &InitError{Component: "window", Err: errors.New("nil collaborator")}
	case opts.Workspace == nil:
		return nil, &InitError{Component: "workspace", Err: errors.New("nil collaborator")}
	case opts.Terminals == nil:
		return nil, &InitError{Component: "terminals", Err: errors.New("nil collaborator")}
	case opts.Outputs == nil:
		return nil, &InitError{Component: "outputs", Err: errors.New("nil collaborator")}
	}

	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	resolver := opts.Resolver
	if resolver == nil {
		resolver = resolve.New()
	}

	a := &Application{
		logger:    logger.WithComponent("app"),
		window:    opts.Window,
		workspace: opts.Workspace,
		outputs:   opts.Outputs,
		langs:     editor.NewLanguageSet(cfg.Vemod.Languages...),
		recovery:  lsp.DefaultRecoveryConfig(),
		configErr: opts.ConfigErr,
		noServer:  opts.NoServer,
		cfg:       cfg,
		commands:  make(map[string]Command),
	}
	if opts.Recovery != nil {
		a.recovery = *opts.Recovery
	}
	a.guard = editor.NewGuard(a.langs, a.window)

	if opts.ConfigErr != nil {
		a.provider = config.FailedProvider(opts.ConfigErr)
	} else {
		a.provider = config.NewProvider(cfg)
	}

	sessionOpts := []lsp.SessionOption{
		lsp.WithResolver(resolver),
		lsp.WithConfigurationProvider(ProviderAdapter(a.provider)),
		lsp.WithOutput(opts.Outputs.Output(cfg.Vemod.Vmdls.OutputName)),
		lsp.WithLogger(logger),
		lsp.WithDisplayName(ServerDisplayName),
		lsp.WithHandshakeTimeout(cfg.Vemod.Vmdls.HandshakeTimeout),
		lsp.WithShutdownTimeout(cfg.Vemod.Vmdls.ShutdownTimeout),
		lsp.WithRecovery(a.recoveryFor(cfg)),
	}
	if opts.Connector != nil {
		sessionOpts = append(sessionOpts, lsp.WithConnector(opts.Connector))
	}
	if opts.Env != nil {
		sessionOpts = append(sessionOpts, lsp.WithEnv(opts.Env))
	}
	if len(opts.WorkspaceFolders) > 0 {
		sessionOpts = append(sessionOpts, lsp.WithWorkspaceFolders(workspaceFolders(opts.WorkspaceFolders)...))
	}
	if opts.StateObserver != nil {
		sessionOpts = append(sessionOpts, lsp.WithStateObserver(opts.StateObserver))
	}
	a.session = lsp.NewSession(vmdlsSpec(cfg), a.langs, a.window, sessionOpts...)
	a.session.Configure(configured(cfg.Vemod.Vmdls.Path, cfg.Vemod.Vmdls.LookupSentinel), cfg.Vemod.Vmdls.Args)

	invokeOpts := []invoke.Option{
		invoke.WithResolver(resolver),
		invoke.WithLogger(logger),
		invoke.WithTerminalName(cfg.Vemod.TerminalName),
		invoke.WithClearTerminal(cfg.Vemod.ClearTerminal),
		invoke.WithOutputExtension(cfg.Vemod.TranspileExtension),
	}
	if opts.Supervisor != nil {
		invokeOpts = append(invokeOpts, invoke.WithSupervisor(opts.Supervisor))
	}
	a.invoker = invoke.New(vemodSpec(cfg), opts.Workspace, opts.Window, opts.Terminals,
		opts.Outputs.Output(cfg.Vemod.OutputName), invokeOpts...)
	a.invoker.Configure(configured(cfg.Vemod.Path, cfg.Vemod.LookupSentinel))

	return a, nil
}

// Activate registers the commands and starts the language server once. A
// failed start has already been reported to the user and does not fail
// activation.
func (a *Application) Activate(ctx context.Context) error {
	if !a.active.CompareAndSwap(false, true) {
		return ErrAlreadyActive
	}

	a.registerCommands()
	a.logger.Info("activated with %d commands", len(a.Commands()))

	if a.configErr != nil {
		editor.ShowError(a.window, fmt.Sprintf("VeMod: Failed to load configuration: %v", a.configErr))
	}

	if a.noServer {
		return nil
	}
	if err := a.session.Start(ctx); err != nil {
		a.logger.Warn("initial start: %v", err)
	}
	return nil
}

// Deactivate stops the language server, kills any running one-shot
// invocation and unregisters the commands. The shutdown error, if any, is
// returned; the server is stopped either way.
func (a *Application) Deactivate(ctx context.Context) error {
	if !a.active.CompareAndSwap(true, false) {
		return ErrNotActive
	}

	a.mu.Lock()
	a.commands = make(map[string]Command)
	shutdown := a.cfg.Vemod.Vmdls.ShutdownTimeout
	a.mu.Unlock()

	err := a.session.Stop(ctx)
	if err != nil {
		a.logger.Warn("stop: %v", err)
	}
	a.invoker.Shutdown(shutdown)
	a.logger.Info("deactivated")
	return err
}

// Active reports whether the application has been activated.
func (a *Application) Active() bool {
	return a.active.Load()
}

// Reload applies a new configuration. Server settings or a changed
// language list restart an active session through Session.Restart.
func (a *Application) Reload(ctx context.Context, next *config.Config) error {
	a.mu.Lock()
	prev := a.cfg
	a.cfg = next
	a.configErr = nil
	a.mu.Unlock()

	a.provider.Update(next)
	a.logger.SetLevel(logging.ParseLevel(next.Logging.Level))

	a.invoker.SetSentinel(next.Vemod.LookupSentinel)
	a.invoker.Configure(configured(next.Vemod.Path, next.Vemod.LookupSentinel))
	a.invoker.Reconfigure(next.Vemod.TerminalName, next.Vemod.ClearTerminal, next.Vemod.TranspileExtension)

	langsChanged := a.langs.Replace(next.Vemod.Languages)
	a.session.SetSentinel(next.Vemod.Vmdls.LookupSentinel)
	a.session.Configure(configured(next.Vemod.Vmdls.Path, next.Vemod.Vmdls.LookupSentinel), next.Vemod.Vmdls.Args)
	a.session.SetLimits(next.Vemod.Vmdls.HandshakeTimeout, next.Vemod.Vmdls.ShutdownTimeout, a.recoveryFor(next))

	if !prev.VmdlsChanged(next) && !langsChanged {
		a.logger.Debug("reload: server settings unchanged")
		return nil
	}
	if !a.active.Load() {
		return nil
	}
	a.logger.Info("reload: restarting %s", VmdlsTool)
	return a.session.Restart(ctx)
}

// ReloadFailed reports a configuration reload error. The previous
// configuration stays in effect.
func (a *Application) ReloadFailed(err error) {
	a.logger.Error("reload: %v", err)
	a.provider.Fail(err)
	editor.ShowError(a.window, fmt.Sprintf("VeMod: Failed to reload configuration: %v", err))
}

// Config returns the current configuration.
func (a *Application) Config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// Session returns the language-server session.
func (a *Application) Session() *lsp.Session {
	return a.session
}

// Invoker returns the vemod CLI invoker.
func (a *Application) Invoker() *invoke.Invoker {
	return a.invoker
}

// Languages returns the shared language set.
func (a *Application) Languages() *editor.LanguageSet {
	return a.langs
}

func (a *Application) recoveryFor(cfg *config.Config) lsp.RecoveryConfig {
	rc := a.recovery
	rc.AutoRestart = cfg.Vemod.Vmdls.AutoRestart
	rc.MaxRestarts = cfg.Vemod.Vmdls.MaxRestarts
	return rc
}

// ProviderAdapter serves workspace/configuration requests from p.
func ProviderAdapter(p *config.Provider) lsp.ConfigurationProvider {
	return lsp.ConfigurationProviderFunc(func(_ context.Context, items []lsp.ConfigurationItem) ([]any, error) {
		sections := make([]string, len(items))
		for i, item := range items {
			sections[i] = item.Section
		}
		return p.Values(sections)
	})
}

func vemodSpec(cfg *config.Config) resolve.Spec {
	return resolve.Spec{
		Tool:     VemodTool,
		Sentinel: cfg.Vemod.LookupSentinel,
		Setting:  config.KeyPath,
		Example:  VemodExample,
	}
}

func vmdlsSpec(cfg *config.Config) resolve.Spec {
	return resolve.Spec{
		Tool:     VmdlsTool,
		Sentinel: cfg.Vemod.Vmdls.LookupSentinel,
		Setting:  config.KeyVmdlsPath,
		Example:  VmdlsExample,
	}
}

// configured maps a path setting to the value handed to the resolver. The
// configured sentinel becomes the empty value, which always means lookup.
func configured(path, sentinel string) string {
	if sentinel != "" && path == sentinel {
		return ""
	}
	return path
}

func workspaceFolders(dirs []string) []lsp.WorkspaceFolder {
	folders := make([]lsp.WorkspaceFolder, 0, len(dirs))
	for _, dir := range dirs {
		if abs, err := filepath.Abs(dir); err == nil {
			dir = abs
		}
		folders = append(folders, lsp.WorkspaceFolder{
			URI:  lsp.FilePathToURI(dir),
			Name: filepath.Base(dir),
		})
	}
	return folders
}
