// shared/registry/types.go
package registry

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/veridian/iam-gateway/shared/config"
	"github.com/veridian/iam-gateway/shared/routing"
)

// ServiceDescriptor identifies one backend: where it lives and how to probe
// it. Descriptors are treated as immutable once registered; re-registering
// the same name replaces the previous entry wholesale.
type ServiceDescriptor struct {
	Name       string   `json:"name"`
	Host       string   `json:"host"`
	Port       int      `json:"port"`
	HealthPath string   `json:"healthPath"`
	Version    string   `json:"version,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Routes     []string `json:"routes,omitempty"` // informational path prefixes, not used for matching
}

// BaseURL returns the plain-HTTP base address of the backend.
func (d *ServiceDescriptor) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", d.Host, d.Port)
}

// HealthURL returns the full health-probe address of the backend.
func (d *ServiceDescriptor) HealthURL() string {
	return d.BaseURL() + normalizePath(d.HealthPath)
}

// DescriptorFromEntry converts a raw configuration entry into a canonical
// descriptor. The entry's address may be given either as a baseUrl or as an
// explicit host+port pair; an entry carrying neither is a configuration
// error.
func DescriptorFromEntry(e routing.ServiceEntry) (*ServiceDescriptor, error) {
	if e.Name == "" {
		return nil, fmt.Errorf("service entry %q has no name", e.ID)
	}
	host, port, err := resolveAddress(e.BaseURL, e.Host, e.Port)
	if err != nil {
		return nil, fmt.Errorf("service %q: %w", e.Name, err)
	}
	return &ServiceDescriptor{
		Name:       e.Name,
		Host:       host,
		Port:       port,
		HealthPath: normalizePath(defaultString(e.HealthCheck, "/health")),
		Version:    e.Version,
		Tags:       e.Tags,
		Routes:     e.Routes,
	}, nil
}

// DescriptorFromLegacy converts a legacy service list entry, which always
// addresses its backend by base URL.
func DescriptorFromLegacy(ls config.LegacyService) (*ServiceDescriptor, error) {
	if ls.Name == "" {
		return nil, fmt.Errorf("legacy service entry has no name")
	}
	host, port, err := resolveAddress(ls.BaseURL, "", 0)
	if err != nil {
		return nil, fmt.Errorf("legacy service %q: %w", ls.Name, err)
	}
	return &ServiceDescriptor{
		Name:       ls.Name,
		Host:       host,
		Port:       port,
		HealthPath: normalizePath(defaultString(ls.HealthPath, "/health")),
		Version:    ls.Version,
	}, nil
}

// resolveAddress collapses the two accepted address shapes (base URL vs.
// explicit host+port) into one canonical host/port pair.
func resolveAddress(baseURL, host string, port int) (string, int, error) {
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			return "", 0, fmt.Errorf("invalid baseUrl %q: %w", baseURL, err)
		}
		if u.Hostname() == "" {
			return "", 0, fmt.Errorf("baseUrl %q has no host", baseURL)
		}
		p := 80
		if u.Port() != "" {
			p, err = strconv.Atoi(u.Port())
			if err != nil {
				return "", 0, fmt.Errorf("invalid port in baseUrl %q: %w", baseURL, err)
			}
		}
		return u.Hostname(), p, nil
	}
	if host != "" && port > 0 {
		return host, port, nil
	}
	return "", 0, fmt.Errorf("no resolvable address: need baseUrl or host+port")
}

func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		return "/" + p
	}
	return p
}

func defaultString(val, def string) string {
	if val == "" {
		return def
	}
	return val
}
