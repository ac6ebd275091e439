// shared/routing/resolver.go
package routing

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// Resolver answers "which mapping handles this path" and applies the
// mapping's transformation. The mapping list is built once at startup and
// immutable thereafter, so the resolver is safe for concurrent use.
type Resolver struct {
	mappings []*RouteMapping
	log      logrus.FieldLogger
}

// NewResolver creates a Resolver over an already compiled mapping list.
func NewResolver(mappings []*RouteMapping, log logrus.FieldLogger) *Resolver {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Resolver{mappings: mappings, log: log}
}

// FindMapping scans the mapping list in configuration order and returns the
// first mapping whose pattern matches the full path (query string included),
// or nil when none matches. The Priority field on mappings is deliberately
// not consulted.
func (r *Resolver) FindMapping(path string) *RouteMapping {
	for _, m := range r.mappings {
		if m.Pattern.MatchString(path) {
			return m
		}
	}
	return nil
}

// Mappings returns the compiled mapping list in configuration order.
func (r *Resolver) Mappings() []*RouteMapping {
	return r.mappings
}

// Transform rewrites path according to the mapping's transformation.
// Precedence:
//
//  1. Rewrite set: when the pattern has capture groups and the template
//     contains a '$' reference, the matched portion is replaced with the
//     expanded template. Otherwise the literal template replaces the whole
//     path, even when capture groups matched.
//  2. StripPrefix set: the matched substring is removed from the front of
//     the path and the remainder is normalized to start with '/'.
//  3. Neither: the path passes through unchanged.
func (r *Resolver) Transform(path string, m *RouteMapping) string {
	switch {
	case m.Rewrite != "":
		// The mapping was already selected by a match, but re-match here so a
		// caller handing in a foreign path cannot corrupt the rewrite.
		idx := m.Pattern.FindStringSubmatchIndex(path)
		if idx == nil {
			r.log.WithFields(logrus.Fields{
				"path":    path,
				"pattern": m.RawPattern,
			}).Warn("Rewrite requested but pattern did not match, leaving path unchanged")
			return path
		}
		if m.Pattern.NumSubexp() > 0 && strings.Contains(m.Rewrite, "$") {
			expanded := m.Pattern.ExpandString(nil, m.Rewrite, path, idx)
			return path[:idx[0]] + string(expanded) + path[idx[1]:]
		}
		// Literal rewrite replaces the entire path outright, captured
		// segments included.
		return m.Rewrite

	case m.StripPrefix:
		loc := m.Pattern.FindStringIndex(path)
		if loc == nil {
			return path
		}
		rest := strings.Replace(path, path[loc[0]:loc[1]], "", 1)
		if rest == "" {
			return "/"
		}
		if !strings.HasPrefix(rest, "/") {
			rest = "/" + rest
		}
		return rest

	default:
		return path
	}
}
