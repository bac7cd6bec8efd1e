// Package main is the entry point for vemodkit, which runs the VeMod editor
// integration from a terminal.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/vemodkit/internal/app"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		// Command failures have already been shown on the console.
		var cerr *app.CommandError
		if !errors.As(err, &cerr) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

type globalOptions struct {
	configPath string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "vemodkit",
		Short:         "VeMod editor integration: vmdls session and vemod runner",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			switch opts.logLevel {
			case "", "debug", "info", "warn", "error":
				return nil
			default:
				return fmt.Errorf("invalid log level %q (must be debug, info, warn, or error)", opts.logLevel)
			}
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a TOML or YAML configuration file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides the configuration")

	root.AddCommand(
		newRunCommand(opts),
		newTranspileCommand(opts),
		newServeCommand(opts),
		newVersionCommand(),
	)
	return root
}

func newRunCommand(opts *globalOptions) *cobra.Command {
	var jit bool
	cmd := &cobra.Command{
		Use:   "run [--jit] FILE",
		Short: "Run a VeMod file in the integrated terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := app.CmdRunFile
			if jit {
				id = app.CmdRunFileForceJit
			}
			return oneShot(cmd, opts, id, args[0])
		},
	}
	cmd.Flags().BoolVar(&jit, "jit", false, "force full JIT compilation")
	return cmd
}

func newTranspileCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "transpile FILE",
		Short: "Transpile a Blue source file and open the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return oneShot(cmd, opts, app.CmdTranspileFile, args[0])
		},
	}
}

func newServeCommand(opts *globalOptions) *cobra.Command {
	var workspace string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the language server and execute commands read from stdin",
		Long: "Starts the vmdls session, reloads the configuration file when it changes,\n" +
			"and executes one command per input line: <command-id> [file].",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd, opts, workspace)
		},
	}
	cmd.Flags().StringVarP(&workspace, "workspace", "w", "", "workspace directory (default: current directory)")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "vemodkit %s\n", version)
			fmt.Fprintf(out, "Commit: %s\n", commit)
			fmt.Fprintf(out, "Built: %s\n", date)
		},
	}
}
