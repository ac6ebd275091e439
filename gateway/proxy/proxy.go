// gateway/proxy/proxy.go
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/veridian/iam-gateway/shared/api"
	"github.com/veridian/iam-gateway/shared/metrics"
	"github.com/veridian/iam-gateway/shared/registry"
	"github.com/veridian/iam-gateway/shared/routing"
)

// hopHeaders must not be relayed across the proxy boundary, in either
// direction. Content-Length is dropped from the header map and carried via
// the request's ContentLength field instead.
var hopHeaders = map[string]bool{
	"Host":                true,
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Proxy-Connection":    true,
	"Te":                  true,
	"Trailer":             true,
	"Trailers":            true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
	"Content-Length":      true,
}

// Proxy forwards inbound requests to the backend selected by the registry
// and resolver, relaying backend responses verbatim and normalizing
// transport failures into HTTP semantics.
type Proxy struct {
	registry *registry.Registry
	resolver *routing.Resolver
	client   *http.Client
	timeout  time.Duration
	log      logrus.FieldLogger
}

// New creates a Proxy. timeout bounds one full forward, connection included.
func New(reg *registry.Registry, resolver *routing.Resolver, timeout time.Duration, log logrus.FieldLogger) *Proxy {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Proxy{
		registry: reg,
		resolver: resolver,
		client:   api.NewDefaultHTTPClient(timeout),
		timeout:  timeout,
		log:      log,
	}
}

// Forward routes one inbound request:
//
//  1. resolve the target service by route; no match or unknown service is a
//     404 with the gateway error envelope,
//  2. apply the mapping's path transformation,
//  3. forward with sanitized headers and relay the backend response —
//     whatever its status — unchanged,
//  4. classify transport failures into 503 (refused / host not found),
//     504 (timeout) or 502 (anything else).
func (p *Proxy) Forward(w http.ResponseWriter, r *http.Request) {
	fullPath := r.URL.RequestURI()

	svc := p.registry.DiscoverByRoute(fullPath)
	if svc == nil {
		metrics.RoutingMisses.Inc()
		api.WriteError(w, http.StatusNotFound, "Service not found")
		return
	}

	target := fullPath
	if mapping := p.resolver.FindMapping(fullPath); mapping != nil {
		target = p.resolver.Transform(fullPath, mapping)
	}
	targetURL := fmt.Sprintf("http://%s:%d%s", svc.Host, svc.Port, target)

	// The forward runs under its own deadline: timeout expiry is the only
	// cancellation mechanism, a disconnecting client is not propagated.
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, r.Method, targetURL, r.Body)
	if err != nil {
		p.log.WithFields(logrus.Fields{
			"method": r.Method,
			"path":   fullPath,
			"target": targetURL,
		}).WithError(err).Error("Failed to build upstream request")
		api.WriteError(w, http.StatusBadGateway, "Bad gateway")
		return
	}
	req.ContentLength = r.ContentLength
	req.Header = cloneHeaderExcluding(r.Header)

	resp, err := p.client.Do(req)
	if err != nil {
		status, cause := classifyTransportError(err)
		metrics.TransportFailures.WithLabelValues(cause).Inc()
		p.log.WithFields(logrus.Fields{
			"method":  r.Method,
			"path":    fullPath,
			"service": svc.Name,
			"target":  targetURL,
			"cause":   cause,
		}).WithError(err).Error("Upstream request failed")
		api.WriteError(w, status, transportMessage(status))
		return
	}
	defer resp.Body.Close()

	// Backend status codes are relayed verbatim, never reinterpreted.
	copyHeaderExcluding(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		p.log.WithFields(logrus.Fields{
			"method":  r.Method,
			"path":    fullPath,
			"service": svc.Name,
		}).WithError(err).Warn("Relaying upstream response body was interrupted")
	}

	metrics.ProxiedRequests.WithLabelValues(svc.Name, strconv.Itoa(resp.StatusCode)).Inc()
}

// classifyTransportError maps a transport-level failure to the client-facing
// status: connection refused or host not found mean the backend is down
// (503), a deadline means it is unresponsive (504), everything else is 502.
func classifyTransportError(err error) (int, string) {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return http.StatusGatewayTimeout, "timeout"
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return http.StatusServiceUnavailable, "connection_refused"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return http.StatusServiceUnavailable, "host_not_found"
	}
	return http.StatusBadGateway, "transport"
}

func transportMessage(status int) string {
	switch status {
	case http.StatusServiceUnavailable:
		return "Service unavailable"
	case http.StatusGatewayTimeout:
		return "Gateway timeout"
	default:
		return "Bad gateway"
	}
}

// cloneHeaderExcluding copies h minus the hop-by-hop set.
func cloneHeaderExcluding(h http.Header) http.Header {
	out := make(http.Header, len(h))
	copyHeaderExcluding(out, h)
	return out
}

func copyHeaderExcluding(dst, src http.Header) {
	for name, values := range src {
		if hopHeaders[http.CanonicalHeaderKey(name)] {
			continue
		}
		for _, v := range values {
			dst.Add(name, v)
		}
	}
}
