// shared/config/config.go
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// GatewayConfig holds all environment-driven settings for the gateway process.
// Route mappings and service descriptors live in the route configuration file
// (see shared/routing); this struct only covers process-level knobs.
type GatewayConfig struct {
	ListenAddr          string        // Address for the HTTP server (e.g., ":8080")
	ProxyPrefix         string        // Path prefix under which all requests are forwarded (e.g., "/api/")
	ProxyTimeout        time.Duration // Total timeout for one forwarded request, connection included
	HealthCheckInterval time.Duration // How often the registry sweeps all registered services
	HealthCheckTimeout  time.Duration // Per-service timeout for a single health probe
	EnableHealthChecks  bool          // Whether the periodic health sweep runs at all
	RouteConfigPath     string        // Explicit route-config file path; empty means "search defaults"
	ServicePort         int           // Port extracted from ListenAddr, advertised on /gateway/healthz
}

// LegacyService is the shape of the secondary, pre-route-config service list.
// Entries carry a base URL rather than an explicit host/port pair; they are
// registered only when the route configuration did not already claim the name.
type LegacyService struct {
	Name       string `json:"name"`
	BaseURL    string `json:"baseUrl"`
	HealthPath string `json:"healthPath"`
	Version    string `json:"version"`
}

// LoadGatewayConfig loads gateway configuration from environment variables.
func LoadGatewayConfig() (*GatewayConfig, error) {
	cfg := &GatewayConfig{
		ListenAddr:      os.Getenv("GATEWAY_LISTEN_ADDR"),
		ProxyPrefix:     os.Getenv("GATEWAY_PROXY_PREFIX"),
		RouteConfigPath: os.Getenv("ROUTE_CONFIG_PATH"),
	}
	var err error

	// Apply defaults for specific fields if not set
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.ProxyPrefix == "" {
		cfg.ProxyPrefix = "/api/"
	}

	cfg.ProxyTimeout, err = getDuration("PROXY_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.HealthCheckInterval, err = getDuration("HEALTH_CHECK_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.HealthCheckTimeout, err = getDuration("HEALTH_CHECK_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.EnableHealthChecks, err = getBool("ENABLE_HEALTH_CHECKS", true)
	if err != nil {
		return nil, err
	}

	// Extract ServicePort from ListenAddr
	cfg.ServicePort, err = extractPort(cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to extract port from GATEWAY_LISTEN_ADDR '%s': %w", cfg.ListenAddr, err)
	}

	return cfg, nil
}

// DefaultLegacyServices returns the secondary backend list that predates the
// route configuration file. A name already registered from the route
// configuration always wins over the entry here.
func DefaultLegacyServices() []LegacyService {
	return []LegacyService{
		{Name: "auth-service", BaseURL: "http://auth-service:3001", HealthPath: "/health", Version: "1.0"},
		{Name: "core-service", BaseURL: "http://core-service:3002", HealthPath: "/health", Version: "1.0"},
		{Name: "audit-service", BaseURL: "http://audit-service:3003", HealthPath: "/health", Version: "1.0"},
	}
}

// Helper function to parse duration from environment variable
func getDuration(envKey string, defaultVal time.Duration) (time.Duration, error) {
	valStr := os.Getenv(envKey)
	if valStr == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(valStr)
	if err != nil {
		return 0, fmt.Errorf("invalid duration format for %s: %w", envKey, err)
	}
	return d, nil
}

// Helper function to parse bool from environment variable
func getBool(envKey string, defaultVal bool) (bool, error) {
	valStr := os.Getenv(envKey)
	if valStr == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(valStr)
	if err != nil {
		return false, fmt.Errorf("invalid boolean format for %s: %w", envKey, err)
	}
	return b, nil
}

// extractPort extracts the numeric port from a listen address (e.g., ":8080" -> 8080, "0.0.0.0:8080" -> 8080)
func extractPort(listenAddr string) (int, error) {
	_, portStr, err := net.SplitHostPort(listenAddr)
	if err != nil {
		// If SplitHostPort fails, check if ListenAddr is just a port (e.g., ":8080")
		if strings.HasPrefix(listenAddr, ":") {
			portStr = strings.TrimPrefix(listenAddr, ":")
		} else {
			return 0, fmt.Errorf("invalid ListenAddr format for port extraction: %w", err)
		}
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, fmt.Errorf("invalid port number '%s': %w", portStr, err)
	}
	return port, nil
}
