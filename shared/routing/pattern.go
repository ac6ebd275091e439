// shared/routing/pattern.go
package routing

import (
	"fmt"
	"regexp"
	"strings"
)

// CompilePattern turns a raw pattern string and its kind into an executable
// matcher.
//
//   - exact: the pattern is escaped and anchored; it matches only the literal
//     full path.
//   - glob: the pattern is escaped, then '*' matches any run of characters
//     and '?' matches a single character; anchored.
//   - regex (and any unknown kind): compiled as-is, unanchored.
//
// An invalid pattern is a configuration error and must abort loading; it is
// never deferred to request time.
func CompilePattern(raw string, kind PatternKind) (*regexp.Regexp, error) {
	var expr string
	switch kind {
	case PatternExact:
		expr = "^" + regexp.QuoteMeta(raw) + "$"
	case PatternGlob:
		escaped := regexp.QuoteMeta(raw)
		escaped = strings.ReplaceAll(escaped, `\*`, `.*`)
		escaped = strings.ReplaceAll(escaped, `\?`, `.`)
		expr = "^" + escaped + "$"
	default:
		expr = raw
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid %s pattern %q: %w", patternKindOrDefault(kind), raw, err)
	}
	return re, nil
}

func patternKindOrDefault(kind PatternKind) PatternKind {
	switch kind {
	case PatternExact, PatternGlob, PatternRegex:
		return kind
	default:
		return PatternRegex
	}
}
