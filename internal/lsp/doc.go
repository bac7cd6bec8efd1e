// Package lsp manages the connection to the VeMod language server (vmdls).
//
// It does not implement any language features. It owns the server process,
// speaks the LSP base protocol to it, and bridges the little the client
// side has to answer: configuration requests, log and show-message
// notifications, and document open/save/close synchronization.
//
// # Architecture
//
//   - Session: the Stopped/Starting/Running state machine owning at most one server
//   - Server: a child process connection performing the initialize handshake
//   - Transport: JSON-RPC 2.0 over Content-Length framed stdio, in both directions
//   - ConfigurationMiddleware: answers workspace/configuration from a provider
//
// # Quick Start
//
//	langs := editor.NewLanguageSet("vemod", "blue")
//	sess := lsp.NewSession(resolve.Spec{Tool: "vmdls", Setting: "vemod.vmdls.path"}, langs, window,
//	    lsp.WithOutput(outputs.Output("VeMod Language Server")),
//	    lsp.WithConfigurationProvider(provider),
//	)
//	sess.Configure(cfg.Vmdls.Path, cfg.Vmdls.Args)
//
//	if err := sess.Start(ctx); err != nil {
//	    // Already reported to the user; the session is Stopped.
//	}
//	defer sess.Stop(ctx)
//
// # Lifecycle
//
// Start, Stop and Restart serialize on one lock, so two servers never
// coexist and a Restart always passes through Stopped. Failures leave the
// session Stopped: resolution errors are reported modally, spawn and
// handshake errors as warnings.
//
// # Crash Recovery
//
// A server that exits without Stop is restarted with exponential backoff,
// a bounded number of times per window. Tracked documents are reopened on
// every successful start.
package lsp
