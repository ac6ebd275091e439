// shared/routing/loader.go
package routing

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

// DefaultConfigPaths are tried in order when no explicit path is given.
var DefaultConfigPaths = []string{
	"route-config.json",
	"config/route-config.json",
	"/etc/gateway/route-config.json",
}

// EnvConfigJSON names the environment variable that may carry a whole
// route configuration as a raw JSON blob.
const EnvConfigJSON = "GATEWAY_SERVICES_JSON"

// LoadConfig produces the route-mapping configuration from, in priority
// order: an explicitly supplied file path, the default on-disk paths, a JSON
// blob from the environment, and finally the built-in defaults. The first
// source that parses wins; sources are never merged.
//
// A malformed file at the explicit path is fatal. Default paths that are
// missing or malformed fall through to the next source.
func LoadConfig(explicitPath string) (*Config, error) {
	if explicitPath != "" {
		data, err := os.ReadFile(explicitPath)
		if err != nil {
			return nil, fmt.Errorf("route config %s: %w", explicitPath, err)
		}
		cfg, err := parseConfig(data)
		if err != nil {
			return nil, fmt.Errorf("route config %s: %w", explicitPath, err)
		}
		logrus.WithField("path", explicitPath).Info("Route configuration loaded")
		return cfg, nil
	}

	for _, path := range DefaultConfigPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		cfg, err := parseConfig(data)
		if err != nil {
			logrus.WithField("path", path).WithError(err).Warn("Skipping unparsable route configuration")
			continue
		}
		logrus.WithField("path", path).Info("Route configuration loaded")
		return cfg, nil
	}

	if blob := os.Getenv(EnvConfigJSON); blob != "" {
		cfg, err := parseConfig([]byte(blob))
		if err != nil {
			logrus.WithError(err).Warnf("Skipping unparsable %s blob", EnvConfigJSON)
		} else {
			logrus.Infof("Route configuration loaded from %s", EnvConfigJSON)
			return cfg, nil
		}
	}

	logrus.Info("No route configuration found, using built-in defaults")
	return DefaultConfig(), nil
}

// CompileMappings converts every raw mapping entry of cfg into a compiled
// RouteMapping, in declaration order. Any pattern that fails to compile
// makes the whole configuration invalid.
func CompileMappings(cfg *Config) ([]*RouteMapping, error) {
	mappings := make([]*RouteMapping, 0, len(cfg.RouteMappings))
	for i, entry := range cfg.RouteMappings {
		kind := PatternKind(entry.PatternType)
		if kind == "" {
			kind = PatternRegex
		}
		re, err := CompilePattern(entry.Pattern, kind)
		if err != nil {
			return nil, fmt.Errorf("routeMappings[%d]: %w", i, err)
		}
		m := &RouteMapping{
			Pattern:     re,
			RawPattern:  entry.Pattern,
			Kind:        patternKindOrDefault(kind),
			ServiceName: entry.Service,
			Priority:    entry.Priority,
		}
		if entry.Transformations != nil {
			m.StripPrefix = entry.Transformations.StripPrefix
			m.Rewrite = entry.Transformations.Rewrite
		}
		mappings = append(mappings, m)
	}
	return mappings, nil
}

func parseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("malformed route configuration: %w", err)
	}
	cfg.interpolateEnv()
	return &cfg, nil
}

// envToken matches ${NAME} and ${NAME:default} references.
var envToken = regexp.MustCompile(`\$\{[A-Za-z_][A-Za-z0-9_]*(?::[^}]*)?\}`)

// interpolate resolves ${VAR} / ${VAR:default} tokens against the process
// environment. An unset variable with no default leaves the token literally
// in place; interpolation never fails.
func interpolate(s string) string {
	return envToken.ReplaceAllStringFunc(s, func(token string) string {
		inner := token[2 : len(token)-1]
		name, def, hasDefault := strings.Cut(inner, ":")
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		if hasDefault {
			return def
		}
		return token
	})
}

// interpolateEnv passes every string value of the loaded configuration
// through environment interpolation before use.
func (c *Config) interpolateEnv() {
	c.Version = interpolate(c.Version)
	for i := range c.Services {
		s := &c.Services[i]
		s.ID = interpolate(s.ID)
		s.Name = interpolate(s.Name)
		s.BaseURL = interpolate(s.BaseURL)
		s.Host = interpolate(s.Host)
		s.HealthCheck = interpolate(s.HealthCheck)
		s.Version = interpolate(s.Version)
		for j := range s.Tags {
			s.Tags[j] = interpolate(s.Tags[j])
		}
		for j := range s.Routes {
			s.Routes[j] = interpolate(s.Routes[j])
		}
	}
	for i := range c.RouteMappings {
		m := &c.RouteMappings[i]
		m.Pattern = interpolate(m.Pattern)
		m.PatternType = interpolate(m.PatternType)
		m.Service = interpolate(m.Service)
		if m.Transformations != nil {
			m.Transformations.Rewrite = interpolate(m.Transformations.Rewrite)
		}
	}
}

// DefaultConfig is the built-in fallback bundle: the three well-known
// platform backends and their route families.
func DefaultConfig() *Config {
	return &Config{
		Version: "builtin",
		Services: []ServiceEntry{
			{
				ID:          "auth",
				Name:        "auth-service",
				Host:        "auth-service",
				Port:        3001,
				HealthCheck: "/health",
				Version:     "1.0",
				Tags:        []string{"identity"},
				Routes:      []string{"/api/auth"},
			},
			{
				ID:          "core",
				Name:        "core-service",
				Host:        "core-service",
				Port:        3002,
				HealthCheck: "/health",
				Version:     "1.0",
				Tags:        []string{"identity", "crud"},
				Routes:      []string{"/api/tenants", "/api/users", "/api/roles", "/api/policies"},
			},
			{
				ID:          "audit",
				Name:        "audit-service",
				Host:        "audit-service",
				Port:        3003,
				HealthCheck: "/health",
				Version:     "1.0",
				Tags:        []string{"observability"},
				Routes:      []string{"/api/audit"},
			},
		},
		RouteMappings: []MappingEntry{
			{
				Pattern:         `^/api/auth/(.+)`,
				PatternType:     string(PatternRegex),
				Service:         "auth-service",
				Transformations: &Transformations{Rewrite: "/auth/$1"},
			},
			{
				Pattern:         `^/api/audit`,
				PatternType:     string(PatternRegex),
				Service:         "audit-service",
				Transformations: &Transformations{StripPrefix: true},
			},
			{
				Pattern:         `^/api`,
				PatternType:     string(PatternRegex),
				Service:         "core-service",
				Transformations: &Transformations{StripPrefix: true},
			},
		},
	}
}
