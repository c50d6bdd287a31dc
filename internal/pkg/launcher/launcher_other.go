//go:build !linux

package launcher

import (
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/sr-toolkit/sr/internal/pkg/errs"
)

var blockedSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}

func childSysProcAttr(s Settings) *syscall.SysProcAttr {
	return &syscall.SysProcAttr{}
}

func prepareLaunchBinary(s Settings) (string, func(), error) {
	bin, err := exec.LookPath(s.Argv[0])
	if err != nil {
		return "", nil, errs.Wrap(errs.LaunchSetupFailed, err, "resolving %q", s.Argv[0])
	}
	return bin, func() {}, nil
}

func blockChildSignals() func() {
	signal.Ignore(blockedSignals...)
	return func() {
		signal.Reset(blockedSignals...)
	}
}
