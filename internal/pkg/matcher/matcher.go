// Package matcher is the core decision engine: given a policy document
// and an invocation request, it picks the single best-scoring (role,
// task) candidate, per spec.md §4.2's lexicographic scoring tuple.
//
// Match is a pure function of its arguments — no package-level state —
// per spec.md §9's note about the original C source's global singletons.
package matcher

import (
	"sort"
	"strings"

	"github.com/sr-toolkit/sr/internal/pkg/capab"
	"github.com/sr-toolkit/sr/internal/pkg/command"
	"github.com/sr-toolkit/sr/internal/pkg/errs"
	"github.com/sr-toolkit/sr/internal/pkg/identity"
	"github.com/sr-toolkit/sr/internal/pkg/policy"
	"github.com/syndtr/gocapability/capability"
)

const scoreNoMatch = 1 << 30

// Request is everything the matcher needs about one invocation: who is
// asking, which role (if any) they pinned, and the command they want to
// run, already canonicalised (internal/pkg/command).
type Request struct {
	Invoker         identity.Invoker
	RequestedRole   string // empty if the caller did not pin a role
	ResolvedCommand string // absolute executable path
	JoinedArgs      string // space-joined argv[1:]
	ForceNoRoot     bool   // CLI -n
	// TargetUIDOverride is CLI -u's resolved target uid, already verified
	// by the caller to hold CAP_SETUID+CAP_SETGID at effective (spec.md
	// §6). When set, it stands in for task.SetUser when deciding whether
	// the resulting target identity is root (Invariant 3).
	TargetUIDOverride *uint32
}

// Decision is the matcher's output: the winning role/task plus fully
// resolved settings (spec.md §3 "Resolved settings").
type Decision struct {
	Role     policy.Role
	Task     policy.Task
	Settings policy.ResolvedOptions
	IAB      capab.IAB
	NoRoot   bool
	Bounding bool
}

type candidate struct {
	role   policy.Role
	task   policy.Task
	scores [6]int
}

// Match implements spec.md §4.2 in full: it scores every (role, task)
// pair whose actor and command both match, picks the lexicographically
// smallest tuple, and fails with AmbiguousMatch if more than one
// candidate ties for best.
func Match(doc *policy.Document, req Request) (Decision, error) {
	var candidates []candidate
	rootRejected := false

	for _, role := range doc.Roles {
		if req.RequestedRole != "" && role.Name != req.RequestedRole {
			continue
		}
		actorScore := bestActorScore(doc, role, req.Invoker)
		if actorScore == scoreNoMatch {
			continue
		}
		for _, tid := range role.Tasks {
			task := doc.Task(tid)
			cmdScore := bestCommandScore(task, req.ResolvedCommand, req.JoinedArgs)
			if cmdScore == scoreNoMatch {
				continue
			}
			resolved := policy.Resolve(doc.Defaults, role.Options, task.Options)
			noRoot := req.ForceNoRoot || !resolved.AllowRoot
			bounding := resolved.AllowBound

			// Invariant 3: target_uid==0 is disallowed unless allow-root
			// lets it through (resolved.AllowRoot) or no_root is false.
			if targetIsRoot(task, req) && noRoot {
				rootRejected = true
				continue
			}

			c := candidate{role: role, task: task}
			c.scores[0] = actorScore
			c.scores[1] = cmdScore
			c.scores[2] = capabilityScore(task)
			c.scores[3] = setuidScore(task)
			c.scores[4] = setgidBreadth(task)
			c.scores[5] = securityScore(noRoot, bounding)
			candidates = append(candidates, c)
		}
	}

	if len(candidates) == 0 {
		if req.RequestedRole != "" {
			if _, ok := doc.RoleByName(req.RequestedRole); !ok {
				return Decision{}, errs.New(errs.RoleUnknown, "no role named %q", req.RequestedRole)
			}
		}
		if rootRejected {
			return Decision{}, errs.New(errs.PermissionDenied, "cannot execute as root")
		}
		return Decision{}, errs.New(errs.PermissionDenied, "no role/task matches this actor and command")
	}

	sort.Slice(candidates, func(i, j int) bool { return less(candidates[i].scores, candidates[j].scores) })

	best := candidates[0]
	if len(candidates) > 1 && equal(candidates[0].scores, candidates[1].scores) {
		return Decision{}, ambiguous(candidates)
	}

	resolved := policy.Resolve(doc.Defaults, best.role.Options, best.task.Options)
	noRoot := req.ForceNoRoot || !resolved.AllowRoot
	bounding := resolved.AllowBound

	iab, err := buildIAB(best.task)
	if err != nil {
		return Decision{}, err
	}

	return Decision{
		Role:     best.role,
		Task:     best.task,
		Settings: resolved,
		IAB:      iab,
		NoRoot:   noRoot,
		Bounding: bounding,
	}, nil
}

func less(a, b [6]int) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func equal(a, b [6]int) bool {
	return a == b
}

func ambiguous(candidates []candidate) error {
	var names []string
	best := candidates[0].scores
	for _, c := range candidates {
		if c.scores == best {
			names = append(names, c.role.String()+"/"+c.task.String())
		}
	}
	return errs.New(errs.AmbiguousMatch, "ambiguous match between %s", strings.Join(names, ", "))
}

// bestActorScore returns the best (lowest) actor score across every
// actor entry in role, or scoreNoMatch if none match.
func bestActorScore(doc *policy.Document, role policy.Role, invoker identity.Invoker) int {
	best := scoreNoMatch
	for _, aid := range role.Actors {
		a := doc.Actor(aid)
		var s int
		switch {
		case a.IsUser():
			if a.User != invoker.Name {
				continue
			}
			s = 0
		default:
			if !identity.HasAllGroups(invoker.Groups, a.Group) {
				continue
			}
			listed := countGroupEntries(a.Group)
			if listed == len(invoker.Groups) {
				s = 1
			} else {
				s = 2
			}
		}
		if s < best {
			best = s
		}
	}
	return best
}

func countGroupEntries(entry string) int {
	n := 0
	for _, name := range strings.Split(entry, ",") {
		if strings.TrimSpace(name) != "" {
			n++
		}
	}
	return n
}

// bestCommandScore returns the best (lowest) command.Class across every
// pattern in task.Commands that matches the request, or scoreNoMatch.
func bestCommandScore(task policy.Task, resolvedCommand, joinedArgs string) int {
	best := scoreNoMatch
	for _, raw := range task.Commands {
		p := command.Parse(raw)
		if !p.Matches(resolvedCommand, joinedArgs) {
			continue
		}
		if int(p.Class) < best {
			best = int(p.Class)
		}
	}
	return best
}

// setuidScore implements spec.md §4.2's nine-state setuid/setgid
// ordering.
func setuidScore(t policy.Task) int {
	su := identityKind(t.SetUser)
	sg := none
	if len(t.SetGroups) > 0 {
		sg = identityKind(t.SetGroups[0])
	}
	switch {
	case su == none && sg == none:
		return 0
	case su == nonRoot && sg == none:
		return 1
	case su == nonRoot && sg == nonRoot:
		return 2
	case su == none && sg == nonRoot:
		return 3
	case su == none && sg == root:
		return 4
	case su == nonRoot && sg == root:
		return 5
	case su == root && sg == none:
		return 6
	case su == root && sg == nonRoot:
		return 7
	default: // su == root && sg == root
		return 8
	}
}

type idKind int

const (
	none idKind = iota
	nonRoot
	root
)

func identityKind(s string) idKind {
	if s == "" {
		return none
	}
	if s == "0" || s == "root" {
		return root
	}
	return nonRoot
}

// targetIsRoot reports whether the identity the child would run under is
// uid 0: the -u override when present, else the task's setuser, else the
// invoker's own uid (no identity change at all).
func targetIsRoot(t policy.Task, req Request) bool {
	if req.TargetUIDOverride != nil {
		return *req.TargetUIDOverride == 0
	}
	if t.SetUser != "" {
		return identityKind(t.SetUser) == root
	}
	return req.Invoker.UID == 0
}

// setgidBreadth counts supplementary (non-primary) target groups;
// spec.md §4.2 "fewer supplementary target groups is better".
func setgidBreadth(t policy.Task) int {
	if len(t.SetGroups) <= 1 {
		return 0
	}
	return len(t.SetGroups) - 1
}

// securityScore implements spec.md §4.2's final axis.
func securityScore(noRoot, bounding bool) int {
	switch {
	case noRoot && bounding:
		return 0
	case noRoot && !bounding:
		return 1
	case !noRoot && bounding:
		return 2
	default:
		return 3
	}
}

// buildIAB turns a task's capability list into the IAB triple the
// launcher writes into the child (spec.md §3: "I = task.capabilities").
// Ambient and Bounding are both set equal to Inheritable; the launcher
// applies Bounding only when the resolved bounding option is on.
func buildIAB(t policy.Task) (capab.IAB, error) {
	var caps []capability.Cap
	if t.CapsAll {
		caps = capab.AllCaps()
	} else {
		for _, name := range t.Caps {
			c, ok := capab.CapFromName(name)
			if !ok {
				return capab.IAB{}, errs.New(errs.PolicyInvalid, "unknown capability %q", name)
			}
			caps = append(caps, c)
		}
	}
	return capab.IAB{Inheritable: caps, Ambient: caps, Bounding: caps}, nil
}
