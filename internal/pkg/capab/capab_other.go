//go:build !linux

package capab

import (
	"github.com/sr-toolkit/sr/internal/pkg/errs"
	"github.com/syndtr/gocapability/capability"
)

func MaxCap() capability.Cap { return capability.Cap(-1) }

var errUnsupported = errs.New(errs.CapabilityOp, "capability primitives are only supported on linux")

func EffectiveHas(cap capability.Cap) (bool, error)       { return false, errUnsupported }
func EffectiveSet(caps []capability.Cap, enable bool) error { return errUnsupported }
func SetInheritable(caps []capability.Cap) error            { return errUnsupported }
func SetAmbient(caps []capability.Cap) error                { return errUnsupported }
func ClearAmbient() error                                   { return errUnsupported }
func SetBounding(keep []capability.Cap) error                { return errUnsupported }
func FileSetPermitted(path string, caps []capability.Cap) error { return errUnsupported }
func LockNoRoot() error                                      { return errUnsupported }
func SetNoNewPrivs() error                                    { return errUnsupported }

func Names(caps []capability.Cap) []string {
	out := make([]string, 0, len(caps))
	for _, c := range caps {
		out = append(out, c.String())
	}
	return out
}
