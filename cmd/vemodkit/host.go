package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dshills/vemodkit/internal/app"
	"github.com/dshills/vemodkit/internal/config"
	"github.com/dshills/vemodkit/internal/host"
	"github.com/dshills/vemodkit/internal/integration/terminal"
	"github.com/dshills/vemodkit/internal/logging"
)

// runtime is an Application together with the terminal-side collaborators
// it was built from.
type runtime struct {
	app       *app.Application
	logger    *logging.Logger
	terminals *terminal.Manager
	workspace *host.Workspace
	environ   []string
}

// newRuntime loads the configuration and builds an Application on console
// collaborators. A configuration error is not fatal: the application
// reports it on Activate and runs on the defaults.
func newRuntime(opts *globalOptions, dir string, noServer bool, stdout, stderr io.Writer) (*runtime, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		dir = wd
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	environ := os.Environ()
	if opts.logLevel != "" {
		environ = append(environ, "VEMOD_LOG_LEVEL="+opts.logLevel)
	}
	cfg, cfgErr := config.Load(opts.configPath, environ)

	logCfg := logging.DefaultConfig()
	logCfg.Output = stderr
	if cfg != nil {
		logCfg.Level = logging.ParseLevel(cfg.Logging.Level)
	} else if opts.logLevel != "" {
		logCfg.Level = logging.ParseLevel(opts.logLevel)
	}
	logger := logging.New(logCfg)
	if cfgErr != nil {
		logger.Error("load configuration: %v", cfgErr)
	}

	rt := &runtime{
		logger:  logger,
		environ: environ,
		terminals: terminal.NewManager(
			terminal.WithWorkDir(dir),
			terminal.WithLogger(logger),
		),
	}
	opener := host.NewSplitOpener(rt.terminals, "", stdout, logger)
	rt.workspace = host.NewWorkspace(
		host.WithLanguages(func(path string) (string, bool) {
			return rt.app.Config().LanguageFor(path)
		}),
		host.WithOpener(opener),
		host.WithLogger(logger),
	)

	rt.app, err = app.New(app.Options{
		Config:           cfg,
		ConfigErr:        cfgErr,
		Window:           host.NewConsole(stderr, logger),
		Workspace:        rt.workspace,
		Terminals:        rt.terminals,
		Outputs:          host.NewOutputs(stderr),
		Logger:           logger,
		WorkspaceFolders: []string{dir},
		NoServer:         noServer,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	return rt, nil
}

// close deactivates the application and detaches from the terminal
// sessions, leaving them running for the user.
func (rt *runtime) close(ctx context.Context) {
	if rt.app.Active() {
		if err := rt.app.Deactivate(ctx); err != nil {
			rt.logger.Warn("deactivate: %v", err)
		}
	}
	if err := rt.terminals.Shutdown(false); err != nil {
		rt.logger.Warn("terminal shutdown: %v", err)
	}
}
