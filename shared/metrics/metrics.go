// shared/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics
var (
	ProxiedRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_proxy_requests_total",
			Help: "Total number of requests forwarded to a backend, by service and relayed status code",
		},
		[]string{"service", "code"},
	)
	TransportFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_proxy_transport_failures_total",
			Help: "Total number of forwards that failed before any backend response, by cause",
		},
		[]string{"cause"},
	)
	RoutingMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_routing_misses_total",
			Help: "Total number of requests that resolved to no backend service",
		},
	)
	RegisteredServices = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_registered_services",
			Help: "Number of services currently registered",
		},
	)
	ServiceUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_service_up",
			Help: "Result of the most recent health check per service (1 healthy, 0 unhealthy)",
		},
		[]string{"service"},
	)
	HealthCheckFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_health_check_failures_total",
			Help: "Total number of failed health checks per service",
		},
		[]string{"service"},
	)
)

// InitMetrics registers Prometheus metrics
func InitMetrics() {
	prometheus.MustRegister(
		ProxiedRequests,
		TransportFailures,
		RoutingMisses,
		RegisteredServices,
		ServiceUp,
		HealthCheckFailures,
	)
}
