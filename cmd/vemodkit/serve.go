package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/kballard/go-shellquote"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/vemodkit/internal/app"
	"github.com/dshills/vemodkit/internal/config"
	"github.com/dshills/vemodkit/internal/logging"
)

// oneShot executes a single command on file without starting the language
// server.
func oneShot(cmd *cobra.Command, opts *globalOptions, id, file string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(opts, filepath.Dir(file), true, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.close(context.WithoutCancel(ctx))

	if err := rt.app.Activate(ctx); err != nil {
		return err
	}
	return rt.app.Execute(ctx, id, file)
}

// serve runs the session until stdin is exhausted, a quit command is read,
// or the process is interrupted.
func serve(cmd *cobra.Command, opts *globalOptions, dir string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(opts, dir, false, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.close(context.WithoutCancel(ctx))

	if err := rt.app.Activate(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if opts.configPath != "" {
		w, err := config.NewWatcher(opts.configPath, func(cfg *config.Config, err error) {
			if err != nil {
				rt.app.ReloadFailed(err)
				return
			}
			if err := rt.app.Reload(gctx, cfg); err != nil {
				rt.logger.Warn("apply configuration: %v", err)
			}
		},
			config.WithEnviron(rt.environ),
			config.WithWatcherLogger(rt.logger),
		)
		if err != nil {
			rt.logger.Warn("configuration changes will not be applied: %v", err)
		} else {
			g.Go(func() error {
				err := w.Run(gctx)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		}
	}

	g.Go(func() error {
		defer cancel()
		return commandLoop(gctx, rt.app, cmd.InOrStdin(), rt.logger)
	})

	return g.Wait()
}

// executor is the part of the Application the command loop drives.
type executor interface {
	Execute(ctx context.Context, id string, args ...string) error
}

// commandLoop executes one command per line of in until EOF, a quit
// command or ctx is done. Blank lines and lines starting with # are
// skipped. Command failures are logged and do not end the loop.
func commandLoop(ctx context.Context, ex executor, in io.Reader, logger *logging.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					if err != nil {
						return fmt.Errorf("read commands: %w", err)
					}
				default:
				}
				return nil
			}
			words, err := parseLine(line)
			if err != nil {
				logger.Warn("%v", err)
				continue
			}
			if len(words) == 0 {
				continue
			}
			if words[0] == "quit" || words[0] == "exit" {
				return nil
			}
			if err := ex.Execute(ctx, words[0], words[1:]...); err != nil {
				logger.Debug("%v", err)
			}
		}
	}
}

// parseLine splits a command line into shell words.
func parseLine(line string) ([]string, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil, nil
	}
	words, err := shellquote.Split(line)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", line, err)
	}
	return words, nil
}

var _ executor = (*app.Application)(nil)
