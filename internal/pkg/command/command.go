// Package command canonicalises an invocation's argv into an absolute
// executable plus a space-joined argument string, and classifies a policy
// command pattern against it (spec.md §4.3).
package command

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sr-toolkit/sr/internal/pkg/errs"
)

// Resolve finds the absolute executable for argv0, searching pathEnv (a
// colon-separated $PATH value) for an entry passing the X_OK check, the
// way exec.LookPath does against os.Getenv("PATH") — except here the
// search path comes from the invocation context, not the process
// environment, so a policy's configured `path` option can be honored
// without mutating the process.
func Resolve(argv0, pathEnv string) (string, error) {
	if strings.Contains(argv0, "/") {
		if err := checkExecutable(argv0); err != nil {
			return "", err
		}
		abs, err := filepath.Abs(argv0)
		if err != nil {
			return "", errs.Wrap(errs.PermissionDenied, err, "resolving %q to an absolute path", argv0)
		}
		return abs, nil
	}
	for _, dir := range strings.Split(pathEnv, ":") {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, argv0)
		if checkExecutable(candidate) == nil {
			return candidate, nil
		}
	}
	return "", errs.New(errs.PermissionDenied, "%q not found in PATH", argv0)
}

func checkExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return errs.New(errs.PermissionDenied, "%q is a directory", path)
	}
	if info.Mode()&0o111 == 0 {
		return errs.New(errs.PermissionDenied, "%q is not executable", path)
	}
	return nil
}

// Canonical returns the canonical form of an invocation: the resolved
// absolute path followed by the remaining argv elements, space-joined,
// with argv[0] replaced by resolvedPath. Argument elements are preserved
// verbatim; there is no shell re-splitting.
func Canonical(resolvedPath string, argv []string) string {
	parts := make([]string, 0, len(argv))
	parts = append(parts, resolvedPath)
	if len(argv) > 1 {
		parts = append(parts, argv[1:]...)
	}
	return strings.Join(parts, " ")
}

// Split is the left inverse Canonical needs for its round-trip property
// (spec.md §8): for argv without embedded whitespace,
// Canonical(resolve(Split(Canonical(argv))...)) == Canonical(argv).
func Split(canonical string) []string {
	return strings.Fields(canonical)
}

// JoinArgs space-joins argv[1:], the portion of a canonical command that
// a pattern's args half is matched against.
func JoinArgs(argv []string) string {
	if len(argv) <= 1 {
		return ""
	}
	return strings.Join(argv[1:], " ")
}

// regexMeta are the characters spec.md §4.3 defines as making a pattern
// string a regex rather than a literal.
const regexMeta = `.^+*?()[]{}|\`

// IsRegex reports whether s contains any regex metacharacter per
// spec.md §4.3.
func IsRegex(s string) bool {
	return strings.ContainsAny(s, regexMeta)
}

// Class ranks a command pattern's specificity, best (0) to worst (9),
// per the table in spec.md §4.3. Lower is better in the matcher's
// lexicographic score (spec.md §4.2).
type Class int

const (
	PathArgStrict Class = iota
	PathStrict
	PathStrictArgWildcard
	PathWildcardArgStrict
	PathWildcard
	PathArgWildcard
	PathFullWildcardArgStrict
	PathFullWildcardArgWildcard
	PathFullWildcard
	PathArgFullWildcard

	// NoMatch represents the spec's "∞ = no match" sentinel for the
	// command score axis.
	NoMatch Class = 1 << 30
)

// Pattern is a parsed policy command pattern: a path half (literal, glob,
// "*", or "**") and an optional args half (absent, literal, or regex).
type Pattern struct {
	Raw        string
	PathToken  string
	ArgsToken  string
	ArgsAbsent bool
	Class      Class
}

// Parse splits a policy command-pattern string into its path and args
// halves and classifies it per spec.md §4.3's ten-row table.
func Parse(raw string) Pattern {
	trimmed := strings.TrimSpace(raw)
	pathTok, argsTok, hasArgs := splitFirstSpace(trimmed)

	p := Pattern{Raw: raw, PathToken: pathTok, ArgsToken: argsTok, ArgsAbsent: !hasArgs}

	switch {
	case pathTok == "**":
		p.Class = PathArgFullWildcard
	case pathTok == "*":
		p.Class = classifyArgs(p.ArgsAbsent, argsTok, PathFullWildcard, PathFullWildcardArgStrict, PathFullWildcardArgWildcard)
	case strings.Contains(pathTok, "*"):
		p.Class = classifyArgs(p.ArgsAbsent, argsTok, PathWildcard, PathWildcardArgStrict, PathArgWildcard)
	default:
		p.Class = classifyArgs(p.ArgsAbsent, argsTok, PathStrict, PathArgStrict, PathStrictArgWildcard)
	}
	return p
}

func classifyArgs(absent bool, argsTok string, whenAbsent, whenLiteral, whenRegex Class) Class {
	if absent {
		return whenAbsent
	}
	if IsRegex(argsTok) {
		return whenRegex
	}
	return whenLiteral
}

func splitFirstSpace(s string) (first, rest string, hasRest bool) {
	idx := strings.IndexByte(s, ' ')
	if idx < 0 {
		return s, "", false
	}
	return s[:idx], strings.TrimSpace(s[idx+1:]), true
}

// Matches reports whether pattern matches a request whose command has
// already been resolved to resolvedPath, with joinedArgs being the
// space-joined argv[1:].
func (p Pattern) Matches(resolvedPath, joinedArgs string) bool {
	if !p.pathMatches(resolvedPath) {
		return false
	}
	return p.argsMatch(joinedArgs)
}

func (p Pattern) pathMatches(resolvedPath string) bool {
	switch {
	case p.PathToken == "**":
		return true
	case p.PathToken == "*":
		return true
	case strings.Contains(p.PathToken, "*"):
		ok, err := filepath.Match(p.PathToken, resolvedPath)
		return err == nil && ok
	default:
		return p.PathToken == resolvedPath
	}
}

func (p Pattern) argsMatch(joinedArgs string) bool {
	if p.PathToken == "**" {
		return true
	}
	if p.ArgsAbsent {
		return joinedArgs == ""
	}
	if IsRegex(p.ArgsToken) {
		re, err := regexp.Compile(p.ArgsToken)
		if err != nil {
			return false
		}
		return re.MatchString(joinedArgs)
	}
	return p.ArgsToken == joinedArgs
}
