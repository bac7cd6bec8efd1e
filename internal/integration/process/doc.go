// Package process runs and tracks the one-shot child processes vemodkit
// spawns (for example a headless transpile).
//
// Every process ends in exactly one Outcome: it failed to launch, it exited
// with a code, or it was terminated by a signal. Callers switch on
// Outcome.Kind instead of inspecting exec errors.
//
//	sup := process.NewSupervisor()
//	defer sup.Shutdown(5 * time.Second)
//
//	res := sup.Run(ctx, "transpile", exec.Command("vemod", "--transpile", path))
//	switch res.Outcome.Kind {
//	case process.OutcomeExited:
//	    // res.Outcome.ExitCode, res.Stderr
//	case process.OutcomeSignaled:
//	    // res.Outcome.Signal
//	case process.OutcomeLaunchFailed:
//	    // res.Outcome.Err
//	}
//
// Supervisor and Process are safe for concurrent use.
package process
