// Package identity resolves the invoking user's name/uid/groups and
// carries the external credential check (PAM or equivalent) referenced by
// spec.md §1 as an out-of-scope collaborator, consumed here only at its
// {OK, Fail, Error} interface.
package identity

import (
	"os/user"
	"strconv"
	"strings"

	"github.com/sr-toolkit/sr/internal/pkg/errs"
)

// MaxSupplementaryGroups bounds the setgroups(2) call the launcher makes
// for a task's target groups. It mirrors the historical NGROUPS_MAX
// ceiling rather than trusting an arbitrarily long policy list.
const MaxSupplementaryGroups = 32

// Invoker describes the process that invoked sr, resolved once per
// invocation and never mutated afterward (spec.md §3 "Invocation
// request").
type Invoker struct {
	UID    int
	Name   string
	Groups []string // supplementary + primary group names
}

// ResolveInvoker resolves the real uid of the calling process into an
// Invoker, looking up its username and the names of every group it
// belongs to.
func ResolveInvoker(uid int) (Invoker, error) {
	u, err := user.LookupId(strconv.Itoa(uid))
	if err != nil {
		return Invoker{}, errs.Wrap(errs.AuthFailed, err, "resolving invoker uid %d", uid)
	}
	gids, err := u.GroupIds()
	if err != nil {
		return Invoker{}, errs.Wrap(errs.AuthFailed, err, "resolving groups for %s", u.Username)
	}
	names := make([]string, 0, len(gids))
	for _, gid := range gids {
		g, err := user.LookupGroupId(gid)
		if err != nil {
			continue
		}
		names = append(names, g.Name)
	}
	return Invoker{UID: uid, Name: u.Username, Groups: names}, nil
}

// LookupUser resolves setuser, which spec.md §3 allows as either a
// numeric uid or a user name, to the identical result either way.
func LookupUser(nameOrID string) (*user.User, error) {
	if isNumeric(nameOrID) {
		u, err := user.LookupId(nameOrID)
		if err != nil {
			return nil, errs.Wrap(errs.PolicyInvalid, err, "resolving setuser %q", nameOrID)
		}
		return u, nil
	}
	u, err := user.Lookup(nameOrID)
	if err != nil {
		return nil, errs.Wrap(errs.PolicyInvalid, err, "resolving setuser %q", nameOrID)
	}
	return u, nil
}

// LookupGroup resolves setgroups entries the same way: name or numeric id.
func LookupGroup(nameOrID string) (*user.Group, error) {
	if isNumeric(nameOrID) {
		g, err := user.LookupGroupId(nameOrID)
		if err != nil {
			return nil, errs.Wrap(errs.PolicyInvalid, err, "resolving setgroups entry %q", nameOrID)
		}
		return g, nil
	}
	g, err := user.LookupGroup(nameOrID)
	if err != nil {
		return nil, errs.Wrap(errs.PolicyInvalid, err, "resolving setgroups entry %q", nameOrID)
	}
	return g, nil
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// CredentialResult is the three-way outcome of an external credential
// check (PAM or equivalent), per spec.md §1.
type CredentialResult int

const (
	CredentialOK CredentialResult = iota
	CredentialFail
	CredentialError
)

// Credential authenticates the invoker before a privileged launch. The
// core treats it as an opaque collaborator; PAM wiring lives outside this
// module's scope.
type Credential interface {
	Authenticate(username string) (CredentialResult, error)
}

// NoAuth is a Credential that always succeeds without any
// re-authentication step.
type NoAuth struct{}

func (NoAuth) Authenticate(string) (CredentialResult, error) { return CredentialOK, nil }

// HasGroup reports whether name appears in groups, case-sensitively as
// POSIX group names are.
func HasGroup(groups []string, name string) bool {
	for _, g := range groups {
		if g == name {
			return true
		}
	}
	return false
}

// HasAllGroups reports whether every name in entry (a comma-separated
// group-list actor entry, spec.md §3) is present in groups.
func HasAllGroups(groups []string, entry string) bool {
	for _, name := range strings.Split(entry, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if !HasGroup(groups, name) {
			return false
		}
	}
	return true
}
