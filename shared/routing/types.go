// shared/routing/types.go
package routing

import "regexp"

// PatternKind selects how a raw route pattern string is compiled.
type PatternKind string

const (
	PatternExact PatternKind = "exact"
	PatternGlob  PatternKind = "glob"
	// PatternRegex compiles the raw string as-is, without adding anchors.
	// Callers that want full-path matching supply their own ^...$.
	PatternRegex PatternKind = "regex"
)

// RouteMapping is one compiled routing rule: a matcher over the full request
// path (query string included) bound to a target service plus an optional
// path transformation.
type RouteMapping struct {
	Pattern     *regexp.Regexp
	RawPattern  string
	Kind        PatternKind
	ServiceName string
	StripPrefix bool
	Rewrite     string // empty means "no rewrite"

	// Priority is accepted from configuration but never consulted at match
	// time: the first mapping in declaration order always wins.
	Priority int
}

// Config is the loaded route-mapping configuration bundle. It is produced
// once at startup and never watched for changes.
type Config struct {
	Version        string          `json:"version"`
	Services       []ServiceEntry  `json:"services"`
	RouteMappings  []MappingEntry  `json:"routeMappings"`
	GlobalSettings *GlobalSettings `json:"globalSettings,omitempty"`
}

// ServiceEntry is the raw descriptor shape from the configuration file.
// Either BaseURL or the Host+Port pair must resolve to an address; the
// registry rejects entries carrying neither.
type ServiceEntry struct {
	ID          string   `json:"id,omitempty"`
	Name        string   `json:"name"`
	BaseURL     string   `json:"baseUrl,omitempty"`
	Host        string   `json:"host,omitempty"`
	Port        int      `json:"port,omitempty"`
	HealthCheck string   `json:"healthCheck,omitempty"`
	Version     string   `json:"version,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Routes      []string `json:"routes,omitempty"` // informational only, never used for matching
}

// MappingEntry is the raw route-mapping shape from the configuration file.
type MappingEntry struct {
	Pattern         string           `json:"pattern"`
	PatternType     string           `json:"patternType,omitempty"` // exact | glob | regex (default regex)
	Service         string           `json:"service"`
	Priority        int              `json:"priority,omitempty"`
	Transformations *Transformations `json:"transformations,omitempty"`
}

// Transformations carries the optional path transformation of a mapping,
// preserved verbatim for the resolver to apply at request time.
type Transformations struct {
	StripPrefix bool   `json:"stripPrefix,omitempty"`
	Rewrite     string `json:"rewrite,omitempty"`
}

// GlobalSettings are optional bundle-wide defaults. DefaultRetries is parsed
// for completeness but nothing consumes it: the proxy performs exactly one
// forwarding attempt per request.
type GlobalSettings struct {
	DefaultTimeout     int   `json:"defaultTimeout,omitempty"` // seconds
	DefaultRetries     int   `json:"defaultRetries,omitempty"`
	EnableHealthChecks *bool `json:"enableHealthChecks,omitempty"`
}
