// shared/registry/registry.go
package registry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/veridian/iam-gateway/shared/config"
	"github.com/veridian/iam-gateway/shared/metrics"
	"github.com/veridian/iam-gateway/shared/routing"
)

// Registry owns the authoritative set of known backend services. It is an
// in-memory directory: descriptors are never persisted and are lost on
// restart. Reads take snapshots; mutations are single map writes under the
// lock, so there is no partial-state window.
//
// Health checks are observability only: a failing backend stays registered
// and keeps receiving traffic. Known limitation, kept on purpose.
type Registry struct {
	mu       sync.RWMutex
	services map[string]*ServiceDescriptor

	resolver      *routing.Resolver
	httpClient    *http.Client
	checkInterval time.Duration
	checkTimeout  time.Duration
	log           logrus.FieldLogger

	startOnce sync.Once
	started   bool
	stopChan  chan struct{}
	doneChan  chan struct{}
}

// New creates a Registry. The resolver is consulted by DiscoverByRoute;
// checkInterval and checkTimeout drive the periodic health sweep started by
// Start.
func New(resolver *routing.Resolver, checkInterval, checkTimeout time.Duration, log logrus.FieldLogger) *Registry {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Registry{
		services:      make(map[string]*ServiceDescriptor),
		resolver:      resolver,
		httpClient:    &http.Client{Timeout: checkTimeout},
		checkInterval: checkInterval,
		checkTimeout:  checkTimeout,
		log:           log,
		stopChan:      make(chan struct{}),
		doneChan:      make(chan struct{}),
	}
}

// Register upserts a descriptor by name. Last write wins; there is no merge
// with a previous entry under the same name. It never fails.
func (r *Registry) Register(d *ServiceDescriptor) {
	r.mu.Lock()
	_, replaced := r.services[d.Name]
	r.services[d.Name] = d
	count := len(r.services)
	r.mu.Unlock()

	metrics.RegisteredServices.Set(float64(count))
	r.log.WithFields(logrus.Fields{
		"service":  d.Name,
		"address":  fmt.Sprintf("%s:%d", d.Host, d.Port),
		"replaced": replaced,
	}).Info("Service registered")
}

// Unregister removes the entry if present; absent names are a no-op.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	_, existed := r.services[name]
	delete(r.services, name)
	count := len(r.services)
	r.mu.Unlock()

	metrics.RegisteredServices.Set(float64(count))
	metrics.ServiceUp.DeleteLabelValues(name)
	if existed {
		r.log.WithField("service", name).Info("Service unregistered")
	}
}

// Discover returns the descriptor registered under name, or nil.
func (r *Registry) Discover(name string) *ServiceDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.services[name]
}

// DiscoverByRoute finds the first route mapping matching path and returns the
// service it points at. It returns nil both when no mapping matches and when
// the mapping references an unregistered service name; the two causes are
// logged at different levels so operators can tell misconfiguration from
// legitimately unmapped paths.
func (r *Registry) DiscoverByRoute(path string) *ServiceDescriptor {
	mapping := r.resolver.FindMapping(path)
	if mapping == nil {
		r.log.WithField("path", path).Warn("No route mapping matches path")
		return nil
	}
	d := r.Discover(mapping.ServiceName)
	if d == nil {
		r.log.WithFields(logrus.Fields{
			"path":    path,
			"pattern": mapping.RawPattern,
			"service": mapping.ServiceName,
		}).Error("Route mapping references unregistered service")
		return nil
	}
	return d
}

// GetAllServices returns a snapshot of the current registry. Order is not
// significant.
func (r *Registry) GetAllServices() []*ServiceDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ServiceDescriptor, 0, len(r.services))
	for _, d := range r.services {
		out = append(out, d)
	}
	return out
}

// HealthCheck probes the named service with a GET against its health path.
// It returns true only on HTTP 200. Unknown names, network errors and
// non-200 statuses all yield false; it never returns an error.
func (r *Registry) HealthCheck(ctx context.Context, name string) bool {
	d := r.Discover(name)
	if d == nil {
		r.log.WithField("service", name).Warn("Health check for unknown service")
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, r.checkTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.HealthURL(), nil)
	if err != nil {
		r.log.WithField("service", name).WithError(err).Warn("Health check request could not be built")
		return false
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"service": name,
			"url":     d.HealthURL(),
		}).WithError(err).Warn("Health check failed")
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK
}

// SeedFromConfig registers every service of the loaded route configuration.
// An entry with no resolvable address aborts startup.
func (r *Registry) SeedFromConfig(cfg *routing.Config) error {
	for _, entry := range cfg.Services {
		d, err := DescriptorFromEntry(entry)
		if err != nil {
			return fmt.Errorf("route configuration: %w", err)
		}
		r.Register(d)
	}
	return nil
}

// SeedLegacy registers the legacy service list entries whose names are not
// already taken; configuration-driven services win on name collision.
func (r *Registry) SeedLegacy(services []config.LegacyService) error {
	for _, ls := range services {
		if r.Discover(ls.Name) != nil {
			r.log.WithField("service", ls.Name).Debug("Legacy service already registered from route configuration, skipping")
			continue
		}
		d, err := DescriptorFromLegacy(ls)
		if err != nil {
			return err
		}
		r.Register(d)
	}
	return nil
}

// Start begins the periodic health sweep in a background goroutine. Each
// sweep probes every registered service concurrently, so one hanging backend
// cannot delay the others; failures are logged and exported, never acted on.
func (r *Registry) Start() {
	r.startOnce.Do(func() {
		r.started = true
		r.log.WithField("interval", r.checkInterval).Info("Starting health check sweep")
		go r.run()
	})
}

// Shutdown stops the health sweep and waits for the in-flight sweep, if any,
// to finish. Safe to call when Start was never invoked.
func (r *Registry) Shutdown() {
	if !r.started {
		return
	}
	close(r.stopChan)
	<-r.doneChan
	r.log.Info("Health check sweep stopped")
}

// run is the main loop of the health sweep goroutine.
func (r *Registry) run() {
	defer close(r.doneChan)

	ticker := time.NewTicker(r.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweep()
		case <-r.stopChan:
			return
		}
	}
}

// sweep health-checks a snapshot of the registry, one goroutine per service.
func (r *Registry) sweep() {
	var wg sync.WaitGroup
	for _, d := range r.GetAllServices() {
		wg.Add(1)
		go func(d *ServiceDescriptor) {
			defer wg.Done()
			healthy := r.HealthCheck(context.Background(), d.Name)
			if healthy {
				metrics.ServiceUp.WithLabelValues(d.Name).Set(1)
				return
			}
			metrics.ServiceUp.WithLabelValues(d.Name).Set(0)
			metrics.HealthCheckFailures.WithLabelValues(d.Name).Inc()
			r.log.WithFields(logrus.Fields{
				"service": d.Name,
				"url":     d.HealthURL(),
			}).Warn("Service unhealthy")
		}(d)
	}
	wg.Wait()
}
