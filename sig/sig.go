// Package sig installs the SIGINT/SIGTERM handler the long-running
// observe supervisor uses to shut down cleanly.
package sig

import (
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

// Resume is returned by a handler to request that the process
// continue running rather than exit, matching the original's
// sentinel `Resume` class.
type Resume struct{}

// names maps a subset of signal numbers back to their conventional
// SIGxxx name for diagnostics, matching the original's reverse lookup
// built from the stdlib `signal` module's own SIG* constants.
var names = map[os.Signal]string{
	unix.SIGINT:  "SIGINT",
	unix.SIGTERM: "SIGTERM",
	unix.SIGHUP:  "SIGHUP",
	unix.SIGQUIT: "SIGQUIT",
	unix.SIGUSR1: "SIGUSR1",
	unix.SIGUSR2: "SIGUSR2",
	unix.SIGCHLD: "SIGCHLD",
}

// Name returns the conventional name for s, or "SIG???" for anything
// not in the small table above.
func Name(s os.Signal) string {
	if n, ok := names[s]; ok {
		return n
	}
	return "SIG???"
}

// Handler is invoked with the received signal. Its return value
// governs what happens next: a Resume lets the process keep running;
// an int is used as the process's exit code; nil exits with the
// negated signal number, matching shell/POSIX convention for
// signal-terminated processes.
type Handler func(sig os.Signal) interface{}

// Install registers handler for the given signals (defaulting to
// SIGINT and SIGTERM) and returns a stop function that restores
// default handling. A handler response other than Resume exits the
// process via Dispatch/os.Exit, matching the original's os._exit from
// within the handler; Dispatch itself stays exported and side-effect
// free so its decision logic can be unit tested without invoking
// os.Exit.
func Install(handler Handler, sigs ...os.Signal) (stop func()) {
	if len(sigs) == 0 {
		sigs = []os.Signal{unix.SIGINT, unix.SIGTERM}
	}
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case s := <-ch:
				exitCode, resume := Dispatch(s, handler(s))
				if !resume {
					os.Exit(exitCode)
				}
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}

// Dispatch interprets a Handler's return value the way the original's
// inline `handler` closure does, returning the exit code and whether
// the process should resume; Install acts on the result. It is split out from Install so that the decision logic itself can
// be unit tested without actually calling os.Exit.
func Dispatch(signum os.Signal, response interface{}) (exitCode int, resume bool) {
	switch v := response.(type) {
	case Resume:
		return 0, true
	case int:
		return v, false
	default:
		if s, ok := signum.(unix.Signal); ok {
			return -int(s), false
		}
		return -1, false
	}
}
