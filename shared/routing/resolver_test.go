package routing

import (
	"regexp"
	"testing"
)

func mustMapping(t *testing.T, pattern string, kind PatternKind, service string, tr *Transformations) *RouteMapping {
	t.Helper()
	re, err := CompilePattern(pattern, kind)
	if err != nil {
		t.Fatalf("compile %q: %v", pattern, err)
	}
	m := &RouteMapping{
		Pattern:     re,
		RawPattern:  pattern,
		Kind:        patternKindOrDefault(kind),
		ServiceName: service,
	}
	if tr != nil {
		m.StripPrefix = tr.StripPrefix
		m.Rewrite = tr.Rewrite
	}
	return m
}

func TestFindMappingFirstMatchWins(t *testing.T) {
	r := NewResolver([]*RouteMapping{
		mustMapping(t, `^/api/auth/`, PatternRegex, "auth-service", nil),
		mustMapping(t, `^/api/auth/login`, PatternRegex, "special-login-service", nil),
		mustMapping(t, `^/api`, PatternRegex, "core-service", nil),
	}, nil)

	for _, ti := range []struct {
		path    string
		service string
	}{
		// both auth mappings match /api/auth/login; declaration order wins
		{"/api/auth/login", "auth-service"},
		{"/api/users", "core-service"},
		{"/api/users?page=2", "core-service"},
	} {
		m := r.FindMapping(ti.path)
		if m == nil {
			t.Fatalf("expected a mapping for %q", ti.path)
		}
		if m.ServiceName != ti.service {
			t.Errorf("path %q: got service %q, want %q", ti.path, m.ServiceName, ti.service)
		}
	}

	if m := r.FindMapping("/metrics"); m != nil {
		t.Errorf("expected no mapping for /metrics, got %q", m.ServiceName)
	}
}

func TestTransform(t *testing.T) {
	for _, ti := range []struct {
		msg     string
		path    string
		pattern string
		tr      *Transformations
		want    string
	}{{
		msg:     "literal rewrite replaces the whole path despite capture groups",
		path:    "/api/auth/login",
		pattern: `^/api/auth/(login|register|refresh|logout)`,
		tr:      &Transformations{Rewrite: "/auth"},
		want:    "/auth",
	}, {
		msg:     "capture-group substitution",
		path:    "/api/auth/login",
		pattern: `^/api/auth/(.+)`,
		tr:      &Transformations{Rewrite: "/auth/$1"},
		want:    "/auth/login",
	}, {
		msg:     "rewrite template without groups in pattern stays literal",
		path:    "/api/status",
		pattern: `^/api/status`,
		tr:      &Transformations{Rewrite: "/internal/status/$1"},
		want:    "/internal/status/$1",
	}, {
		msg:     "strip prefix of the full match yields root",
		path:    "/api/users",
		pattern: `^/api/users`,
		tr:      &Transformations{StripPrefix: true},
		want:    "/",
	}, {
		msg:     "strip prefix keeps the remainder",
		path:    "/api/users/123",
		pattern: `^/api/users`,
		tr:      &Transformations{StripPrefix: true},
		want:    "/123",
	}, {
		msg:     "strip prefix re-prefixes a slash before the query remainder",
		path:    "/api/users?page=2",
		pattern: `^/api/users`,
		tr:      &Transformations{StripPrefix: true},
		want:    "/?page=2",
	}, {
		msg:     "no transformation passes the path through",
		path:    "/api/anything",
		pattern: `^/api`,
		tr:      nil,
		want:    "/api/anything",
	}, {
		msg:     "rewrite wins over stripPrefix when both are set",
		path:    "/api/audit/logs",
		pattern: `^/api/audit`,
		tr:      &Transformations{StripPrefix: true, Rewrite: "/audit"},
		want:    "/audit",
	}} {
		t.Run(ti.msg, func(t *testing.T) {
			r := NewResolver(nil, nil)
			m := mustMapping(t, ti.pattern, PatternRegex, "svc", ti.tr)
			got := r.Transform(ti.path, m)
			if got != ti.want {
				t.Errorf("Transform(%q) = %q, want %q", ti.path, got, ti.want)
			}
		})
	}
}

func TestTransformStripPrefixNormalization(t *testing.T) {
	// the remainder after stripping must start with '/'
	re := regexp.MustCompile(`^/api/`)
	r := NewResolver(nil, nil)
	m := &RouteMapping{Pattern: re, RawPattern: `^/api/`, Kind: PatternRegex, ServiceName: "svc", StripPrefix: true}

	if got := r.Transform("/api/users", m); got != "/users" {
		t.Errorf("got %q, want /users", got)
	}
	if got := r.Transform("/api/", m); got != "/" {
		t.Errorf("got %q, want /", got)
	}
}

func TestTransformRewriteNoMatchLeavesPath(t *testing.T) {
	r := NewResolver(nil, nil)
	m := mustMapping(t, `^/other`, PatternRegex, "svc", &Transformations{Rewrite: "/elsewhere"})
	if got := r.Transform("/api/users", m); got != "/api/users" {
		t.Errorf("got %q, want the path unchanged", got)
	}
}

func TestTransformStripPrefixRoundTrip(t *testing.T) {
	// stripping the matched prefix and prefixing it back reconstructs the path
	m := mustMapping(t, `^/api/users`, PatternRegex, "svc", &Transformations{StripPrefix: true})
	r := NewResolver(nil, nil)

	for _, path := range []string{"/api/users/123", "/api/users/123/roles"} {
		loc := m.Pattern.FindStringIndex(path)
		if loc == nil {
			t.Fatalf("pattern must match %q", path)
		}
		stripped := r.Transform(path, m)
		if got := path[loc[0]:loc[1]] + stripped; got != path {
			t.Errorf("round trip got %q, want %q", got, path)
		}
	}
}
