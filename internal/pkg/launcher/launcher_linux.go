//go:build linux && !filehelper

package launcher

import (
	"os/exec"
	"syscall"

	"github.com/sr-toolkit/sr/internal/pkg/errs"
)

// childSysProcAttr builds the SysProcAttr that makes Go's runtime apply
// the target identity and ambient capabilities in the forked child
// between clone and execve (see the package doc comment). This is the
// default build: no on-disk helper, no residue.
func childSysProcAttr(s Settings) *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{
		AmbientCaps: ambientAsUintptr(s.IAB.Ambient),
	}
	if s.HasTargetUID {
		attr.Credential = &syscall.Credential{
			Uid:    s.TargetUID,
			Gid:    s.TargetGID,
			Groups: s.TargetGroups,
		}
	}
	return attr
}

// prepareLaunchBinary resolves the target executable directly off
// PATH; there is no helper file to create or remove in this build.
func prepareLaunchBinary(s Settings) (string, func(), error) {
	bin, err := exec.LookPath(s.Argv[0])
	if err != nil {
		return "", nil, errs.Wrap(errs.LaunchSetupFailed, err, "resolving %q", s.Argv[0])
	}
	return bin, func() {}, nil
}
