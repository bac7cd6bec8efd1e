// Package terminal provides named, reusable shell terminals backed by tmux.
//
// Each terminal lives in its own detached tmux session, so it survives the
// process that created it and can be found again by name on the next run.
// Text is typed into the session with send-keys; showing a terminal
// switches an attached tmux client to it.
//
// # Usage
//
//	mgr := terminal.NewManager(terminal.WithWorkDir(root))
//
//	term, err := editor.FindOrCreateTerminal(mgr, "VeMod")
//	if err != nil {
//	    return err
//	}
//	term.Show(false)
//	term.SendText("vemod main.blue", true)
//
// # Testing
//
// TmuxRunner builds every command through a CmdFunc, so tests can record
// invocations without a tmux server:
//
//	runner := terminal.NewTmuxRunnerWithCmd(recorder.makeCmd)
//	mgr := terminal.NewManager(terminal.WithRunner(runner))
package terminal
