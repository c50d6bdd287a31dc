// Package envfilter builds a child process's environment from the
// invoker's environment and a policy's keep/check lists (spec.md §4.4).
//
// No library in the retrieval pack reimplements this predicate (the
// teacher's own internal/pkg/util/env was not present in the pruned
// copy), so this is hand-rolled directly from spec.md's prose, using only
// the standard library — noted in DESIGN.md as a justified stdlib-only
// package.
package envfilter

import (
	"strings"
)

const tzPathLimit = 256

// Policy is the subset of resolved settings the filter needs: the
// keep-list, the check-list, and the secure PATH value that always
// replaces PATH regardless of keep/check.
type Policy struct {
	Keep  []string
	Check []string
	Path  string
}

// Filter produces the child's environment from env (invoker environment,
// "KEY=VALUE" entries) and policy, preserving env's relative order
// (spec.md §4.4 "Order of the output is deterministic").
func Filter(env []string, policy Policy) []string {
	out := make([]string, 0, len(env)+1)
	seenPath := false

	for _, kv := range env {
		name, value, ok := split(kv)
		if !ok {
			continue
		}
		if name == "PATH" {
			seenPath = true
			continue // PATH is always replaced below, never passed through
		}
		switch {
		case matchesAny(name, policy.Keep):
			// An entry in both keep and check behaves as if only in
			// keep (spec.md §8 boundary behavior): no safety check.
			out = append(out, kv)
		case matchesAny(name, policy.Check):
			if isSafe(name, value) {
				out = append(out, kv)
			}
		}
	}

	_ = seenPath
	out = append(out, "PATH="+policy.Path)
	return out
}

func split(kv string) (name, value string, ok bool) {
	idx := strings.IndexByte(kv, '=')
	if idx < 0 {
		return "", "", false
	}
	return kv[:idx], kv[idx+1:], true
}

// matchesAny reports whether name matches any entry in list, where a
// trailing "*" on an entry is a prefix glob (e.g. "LC_*").
func matchesAny(name string, list []string) bool {
	for _, entry := range list {
		if strings.HasSuffix(entry, "*") {
			if strings.HasPrefix(name, strings.TrimSuffix(entry, "*")) {
				return true
			}
			continue
		}
		if name == entry {
			return true
		}
	}
	return false
}

// isSafe implements spec.md §4.4's safety predicate: TZ gets its own,
// stricter rule; every other checked variable just needs to avoid '/'
// and '%' in its value.
func isSafe(name, value string) bool {
	if name == "TZ" {
		return isSafeTZ(value)
	}
	return !strings.ContainsAny(value, "/%")
}

func isSafeTZ(value string) bool {
	if strings.HasPrefix(value, "/") {
		return false
	}
	if strings.Contains(value, "..") {
		return false
	}
	if len(value) >= tzPathLimit {
		return false
	}
	for _, r := range value {
		if r <= ' ' || r > '~' {
			return false
		}
	}
	return true
}
