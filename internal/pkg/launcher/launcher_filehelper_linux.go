//go:build linux && filehelper

// This file is the on-disk, file-capability-stamped helper strategy,
// grounded directly on original_source/src/sraux_management.c
// (create_sr_aux_temp/copy_sr_aux) and src/sr_aux.c (the helper's
// argv=[role, noroot|x, command?] contract). It is kept as an
// alternate build (`-tags filehelper`) for kernels where the
// AmbientCaps field of syscall.SysProcAttr is unavailable; the default
// build uses launcher_linux.go's direct approach instead, which leaves
// no helper file on disk at all.
package launcher

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	filemutex "github.com/alexflint/go-filemutex"
	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/google/uuid"
	"github.com/syndtr/gocapability/capability"

	"github.com/sr-toolkit/sr/internal/pkg/capab"
	"github.com/sr-toolkit/sr/internal/pkg/errs"
)

// childSysProcAttr omits AmbientCaps: on the kernels this build targets
// it is unavailable, which is the whole reason for stamping capabilities
// onto the helper file itself instead (see prepareLaunchBinary). The uid
// change, when requested, still goes through Credential the same way.
func childSysProcAttr(s Settings) *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{}
	if s.HasTargetUID {
		attr.Credential = &syscall.Credential{
			Uid:    s.TargetUID,
			Gid:    s.TargetGID,
			Groups: s.TargetGroups,
		}
	}
	return attr
}

// prepareLaunchBinary implements the on-disk, file-capability-stamped
// strategy: it copies the resolved target binary into a freshly named
// file under helperDir and stamps that copy's Permitted set with the
// task's Ambient capabilities, so the kernel raises them into the
// copy's Permitted and Effective sets at exec time without requiring
// AmbientCaps support in the parent. The returned cleanup removes the copy once the child exits.
func prepareLaunchBinary(s Settings) (string, func(), error) {
	bin, err := exec.LookPath(s.Argv[0])
	if err != nil {
		return "", nil, errs.Wrap(errs.LaunchSetupFailed, err, "resolving %q", s.Argv[0])
	}
	dir, err := helperDir(s.HasTargetUID)
	if err != nil {
		return "", nil, err
	}
	path, cleanup, err := createHelper(dir, bin, s.IAB.Ambient)
	if err != nil {
		return "", nil, err
	}
	return path, cleanup, nil
}

// dirLock serializes helper creation within a single directory: two
// concurrent sr invocations racing to stamp a helper under the same
// ${HOME} or /usr/bin must not interleave their O_EXCL create and
// capability-stamp steps.
func dirLock(dir string) (*filemutex.FileMutex, error) {
	lockPath := filepath.Join(dir, ".sr_aux.lock")
	m, err := filemutex.New(lockPath)
	if err != nil {
		return nil, errs.Wrap(errs.LaunchSetupFailed, err, "opening helper lock %q", lockPath)
	}
	return m, nil
}

// helperDir mirrors spec.md §6: "${HOME}/sr_aux_XXXXXX when executing
// as the invoker, or /usr/bin/sr_aux_XXXXXX when changing user".
func helperDir(changingUser bool) (string, error) {
	if changingUser {
		return "/usr/bin", nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errs.Wrap(errs.LaunchSetupFailed, err, "resolving invoker home directory")
	}
	return home, nil
}

// createHelper copies srcBinary (prepareLaunchBinary passes the resolved
// target executable itself) into a randomly-named file under dir, 0700,
// stamped with caps as its Permitted file capabilities.
func createHelper(dir, srcBinary string, caps []capability.Cap) (path string, cleanup func(), err error) {
	lock, err := dirLock(dir)
	if err != nil {
		return "", nil, err
	}
	if err := lock.Lock(); err != nil {
		return "", nil, errs.Wrap(errs.LaunchSetupFailed, err, "locking helper directory %q", dir)
	}
	defer lock.Unlock()

	name := "sr_aux_" + uuid.NewString()[:8]
	full, err := securejoin.SecureJoin(dir, name)
	if err != nil {
		return "", nil, errs.Wrap(errs.LaunchSetupFailed, err, "building helper path under %q", dir)
	}

	src, err := os.Open(srcBinary)
	if err != nil {
		return "", nil, errs.Wrap(errs.LaunchSetupFailed, err, "opening helper template %q", srcBinary)
	}
	defer src.Close()

	dst, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o700)
	if err != nil {
		return "", nil, errs.Wrap(errs.LaunchSetupFailed, err, "creating helper file %q", full)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(full)
		return "", nil, errs.Wrap(errs.LaunchSetupFailed, err, "copying helper template")
	}
	dst.Close()

	if err := capab.FileSetPermitted(full, caps); err != nil {
		os.Remove(full)
		return "", nil, errs.Wrap(errs.CapabilityOp, err, "stamping file capabilities on %q", full)
	}

	cleanup = func() {
		if rmErr := os.Remove(full); rmErr != nil && !os.IsNotExist(rmErr) {
			// CleanupFailed is a logged non-fatal warning per spec.md §7.
			fmt.Fprintf(os.Stderr, "sr: warning: removing helper file %q: %v\n", full, rmErr)
		}
	}
	return full, cleanup, nil
}
