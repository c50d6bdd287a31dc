// Package sr implements the sr CLI's behavior: resolve the invoker,
// load the policy document, run the matcher, and either launch the
// matched task or, in list mode, print what the invoker may run.
package sr

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/sr-toolkit/sr/internal/pkg/capab"
	"github.com/sr-toolkit/sr/internal/pkg/command"
	"github.com/sr-toolkit/sr/internal/pkg/errs"
	"github.com/sr-toolkit/sr/internal/pkg/identity"
	"github.com/sr-toolkit/sr/internal/pkg/launcher"
	"github.com/sr-toolkit/sr/internal/pkg/matcher"
	"github.com/sr-toolkit/sr/internal/pkg/policy"
	"github.com/sr-toolkit/sr/internal/pkg/sysl"
	"github.com/syndtr/gocapability/capability"
)

// DefaultPolicyPath is spec.md §6's fixed configuration path.
const DefaultPolicyPath = "/etc/security/rootasrole.xml"

// Options carries the parsed CLI flags of spec.md §6's `sr` synopsis.
type Options struct {
	PolicyPath  string
	Role        string
	TargetUser  string
	Command     string
	ForceNoRoot bool
	ListOnly    bool
}

// Run executes one sr invocation end-to-end and returns the process
// exit code it should terminate with.
func Run(opts Options) int {
	doc, err := policy.Load(pathOrDefault(opts.PolicyPath))
	if err != nil {
		return reportAndExit(err)
	}

	invoker, err := identity.ResolveInvoker(os.Getuid())
	if err != nil {
		return reportAndExit(err)
	}

	argv := splitCommand(opts.Command)
	if len(argv) == 0 {
		argv = []string{defaultShell()}
	}

	resolved, err := command.Resolve(argv[0], os.Getenv("PATH"))
	if err != nil {
		return reportAndExit(err)
	}
	argv[0] = resolved

	var uidOverride *launcher.UIDOverride
	var targetUIDOverride *uint32
	if opts.TargetUser != "" {
		uidOverride, err = resolveTargetUserOverride(opts.TargetUser)
		if err != nil {
			return reportAndExit(err)
		}
		uid := uidOverride.UID
		targetUIDOverride = &uid
	}

	req := matcher.Request{
		Invoker:           invoker,
		RequestedRole:     opts.Role,
		ResolvedCommand:   resolved,
		JoinedArgs:        command.JoinArgs(argv),
		ForceNoRoot:       opts.ForceNoRoot,
		TargetUIDOverride: targetUIDOverride,
	}

	if opts.ListOnly {
		return listAllowedCommands(doc, req)
	}

	dec, err := matcher.Match(doc, req)
	if err != nil {
		return reportAndExit(err)
	}

	settings, err := launcher.Prepare(dec, argv, os.Environ(), uidOverride)
	if err != nil {
		return reportAndExit(err)
	}

	sysl.Infof("matched role %q, task %d", dec.Role.Name, dec.Task.ID)
	code, err := launcher.Launch(settings)
	if err != nil {
		return reportAndExit(err)
	}
	return code
}

// resolveTargetUserOverride implements -u's gate (spec.md §6: "requires
// invoker to have CAP_SETUID+CAP_SETGID at effective") and resolves the
// named user to the launcher.UIDOverride that replaces the task's own
// setuser/setgroups resolution.
func resolveTargetUserOverride(nameOrID string) (*launcher.UIDOverride, error) {
	hasSetuid, err := capab.EffectiveHas(capability.CAP_SETUID)
	if err != nil {
		return nil, errs.Wrap(errs.CapabilityOp, err, "checking CAP_SETUID at effective")
	}
	hasSetgid, err := capab.EffectiveHas(capability.CAP_SETGID)
	if err != nil {
		return nil, errs.Wrap(errs.CapabilityOp, err, "checking CAP_SETGID at effective")
	}
	if !hasSetuid || !hasSetgid {
		return nil, errs.New(errs.PermissionDenied, "-u requires CAP_SETUID and CAP_SETGID at effective")
	}

	u, err := identity.LookupUser(nameOrID)
	if err != nil {
		return nil, err
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidArgs, err, "parsing resolved uid %q", u.Uid)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidArgs, err, "parsing resolved gid %q", u.Gid)
	}
	return &launcher.UIDOverride{UID: uint32(uid), GID: uint32(gid)}, nil
}

func pathOrDefault(p string) string {
	if p == "" {
		return DefaultPolicyPath
	}
	return p
}

func defaultShell() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/sh"
}

// splitCommand performs the shell-word-split spec.md §6 asks the
// front-end to do on `-c "cmd"` before matching; quoting is not
// supported, matching command.Split's plain-Fields behavior.
func splitCommand(c string) []string {
	return command.Split(c)
}

// listAllowedCommands implements `-i`: print which commands the
// invoker may run with the chosen role, without executing anything.
func listAllowedCommands(doc *policy.Document, req matcher.Request) int {
	var lines []string
	for _, role := range doc.Roles {
		if req.RequestedRole != "" && role.Name != req.RequestedRole {
			continue
		}
		if !actorMatchesAny(doc, role, req.Invoker) {
			continue
		}
		for _, tid := range role.Tasks {
			task := doc.Task(tid)
			for _, pattern := range task.Commands {
				lines = append(lines, fmt.Sprintf("%s: %s", role.Name, pattern))
			}
		}
	}
	sort.Strings(lines)
	for _, l := range lines {
		fmt.Println(l)
	}
	return 0
}

func actorMatchesAny(doc *policy.Document, role policy.Role, invoker identity.Invoker) bool {
	for _, aid := range role.Actors {
		a := doc.Actor(aid)
		if a.IsUser() && a.User == invoker.Name {
			return true
		}
		if !a.IsUser() && identity.HasAllGroups(invoker.Groups, a.Group) {
			return true
		}
	}
	return false
}

func reportAndExit(err error) int {
	fmt.Fprintln(os.Stderr, "sr:", err)
	return errs.ExitCode(err)
}
