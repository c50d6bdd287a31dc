package policy

// ResolvedOptions is the fully-merged options block for one (role, task)
// candidate: document-root defaults overridden by role-level options,
// then by task-level options (spec.md §4.2 "Settings computed... start
// from document-root defaults, are overridden by role-level options,
// then by task-level options").
type ResolvedOptions struct {
	Path         string
	EnvKeep      []string
	EnvCheck     []string
	AllowRoot    bool
	AllowBound   bool
}

// DefaultPath is used when no scope in the chain sets an explicit path.
const DefaultPath = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

// Resolve merges root, role, and task option blocks. `enforce="true"` on
// allow-root/allow-bounding at an outer scope pins that value for every
// inner scope, per spec.md §4.2; without enforce, the innermost scope
// that sets a value wins.
func Resolve(root, role, task Options) ResolvedOptions {
	r := ResolvedOptions{
		Path:       DefaultPath,
		AllowRoot:  false,
		AllowBound: true,
	}

	chain := []Options{root, role, task}
	enforcedRoot, rootLocked := false, false
	enforcedBound, boundLocked := false, false

	for _, o := range chain {
		if o.Path != nil {
			r.Path = *o.Path
		}
		if len(o.EnvKeep) > 0 {
			r.EnvKeep = o.EnvKeep
		}
		if len(o.EnvCheck) > 0 {
			r.EnvCheck = o.EnvCheck
		}
		if o.AllowRoot != nil {
			if !rootLocked {
				r.AllowRoot = *o.AllowRoot
			}
			if o.AllowRootLock {
				enforcedRoot = *o.AllowRoot
				rootLocked = true
				r.AllowRoot = enforcedRoot
			}
		}
		if o.AllowBounding != nil {
			if !boundLocked {
				r.AllowBound = *o.AllowBounding
			}
			if o.AllowBndLock {
				enforcedBound = *o.AllowBounding
				boundLocked = true
				r.AllowBound = enforcedBound
			}
		}
	}
	return r
}
