//go:build linux

package launcher

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sr-toolkit/sr/internal/pkg/sysl"
)

// blockedSignals are the signals the parent ignores while the child
// runs, per spec.md §4.5's "Signal policy in the parent": everything
// that would otherwise terminate or suspend the parent too, so that
// e.g. Ctrl-C is delivered to the child's process group only. Shared by
// both the direct and file-helper launch strategies: it has nothing to
// do with how the child's identity gets set.
var blockedSignals = []os.Signal{
	syscall.SIGINT,
	syscall.SIGQUIT,
	syscall.SIGTERM,
	syscall.SIGABRT,
	syscall.SIGUSR1,
	syscall.SIGUSR2,
	syscall.SIGTSTP,
}

// blockChildSignals ignores blockedSignals for the duration of the
// child's run and returns a func that restores default disposition.
func blockChildSignals() func() {
	signal.Ignore(blockedSignals...)
	return func() {
		signal.Reset(blockedSignals...)
		sysl.Debugf("restored signal disposition after child exit")
	}
}
