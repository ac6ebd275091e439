// gateway/api/handlers.go
package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/veridian/iam-gateway/gateway/proxy"
	"github.com/veridian/iam-gateway/shared/api"
	"github.com/veridian/iam-gateway/shared/registry"
	"github.com/veridian/iam-gateway/shared/routing"
)

// GatewayAPIHandlers holds references to the registry and proxy backing the
// gateway's own administrative surface.
type GatewayAPIHandlers struct {
	Registry *registry.Registry
	Proxy    *proxy.Proxy
	Logger   logrus.FieldLogger
}

// NewGatewayAPIHandlers is the constructor for the gateway API handlers.
func NewGatewayAPIHandlers(reg *registry.Registry, px *proxy.Proxy, logger logrus.FieldLogger) *GatewayAPIHandlers {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &GatewayAPIHandlers{
		Registry: reg,
		Proxy:    px,
		Logger:   logger,
	}
}

// --- Request/Response DTOs (Data Transfer Objects) ---

// RegisterServiceRequest is the body of POST /gateway/services. Either
// baseUrl or host+port must be present.
type RegisterServiceRequest struct {
	Name        string   `json:"name"`
	BaseURL     string   `json:"baseUrl,omitempty"`
	Host        string   `json:"host,omitempty"`
	Port        int      `json:"port,omitempty"`
	HealthCheck string   `json:"healthCheck,omitempty"`
	Version     string   `json:"version,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Routes      []string `json:"routes,omitempty"`
}

// ServiceHealthResponse is the body of GET /gateway/services/{name}/health.
type ServiceHealthResponse struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
}

// --- Handler Methods ---

// HandleListServices returns a snapshot of all registered services.
// GET /gateway/services
func (gh *GatewayAPIHandlers) HandleListServices(w http.ResponseWriter, r *http.Request) {
	if err := api.WriteJSON(w, http.StatusOK, gh.Registry.GetAllServices()); err != nil {
		gh.Logger.WithError(err).Error("Failed to write service list")
	}
}

// HandleRegisterService registers (or replaces) a service descriptor.
// POST /gateway/services
func (gh *GatewayAPIHandlers) HandleRegisterService(w http.ResponseWriter, r *http.Request) {
	var req RegisterServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, "Invalid request body")
		return
	}

	d, err := registry.DescriptorFromEntry(routing.ServiceEntry{
		Name:        req.Name,
		BaseURL:     req.BaseURL,
		Host:        req.Host,
		Port:        req.Port,
		HealthCheck: req.HealthCheck,
		Version:     req.Version,
		Tags:        req.Tags,
		Routes:      req.Routes,
	})
	if err != nil {
		api.WriteBadRequest(w, err.Error())
		return
	}

	gh.Registry.Register(d)
	if err := api.WriteJSON(w, http.StatusCreated, d); err != nil {
		gh.Logger.WithError(err).Error("Failed to write registered descriptor")
	}
}

// HandleUnregisterService removes a service by name; removing an absent name
// succeeds as well.
// DELETE /gateway/services/{name}
func (gh *GatewayAPIHandlers) HandleUnregisterService(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	gh.Registry.Unregister(name)
	w.WriteHeader(http.StatusNoContent)
}

// HandleServiceHealth probes one service on demand.
// GET /gateway/services/{name}/health
func (gh *GatewayAPIHandlers) HandleServiceHealth(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if gh.Registry.Discover(name) == nil {
		api.WriteNotFound(w, "Service not found")
		return
	}
	resp := ServiceHealthResponse{
		Name:    name,
		Healthy: gh.Registry.HealthCheck(r.Context(), name),
	}
	if err := api.WriteJSON(w, http.StatusOK, resp); err != nil {
		gh.Logger.WithError(err).Error("Failed to write health response")
	}
}

// HandleHealthz reports the gateway's own liveness.
// GET /gateway/healthz
func (gh *GatewayAPIHandlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := api.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"}); err != nil {
		gh.Logger.WithError(err).Error("Failed to write healthz response")
	}
}

// RegisterRoutes attaches the admin endpoints and, last, the catch-all proxy
// mount under proxyPrefix. The catch-all must come last so the gateway's own
// endpoints are not swallowed by the forwarder.
func (gh *GatewayAPIHandlers) RegisterRoutes(router *mux.Router, proxyPrefix string) {
	router.HandleFunc("/gateway/healthz", gh.HandleHealthz).Methods(http.MethodGet)
	router.HandleFunc("/gateway/services", gh.HandleListServices).Methods(http.MethodGet)
	router.HandleFunc("/gateway/services", gh.HandleRegisterService).Methods(http.MethodPost)
	router.HandleFunc("/gateway/services/{name}/health", gh.HandleServiceHealth).Methods(http.MethodGet)
	router.HandleFunc("/gateway/services/{name}", gh.HandleUnregisterService).Methods(http.MethodDelete)

	// Any method, any path under the prefix.
	router.PathPrefix(proxyPrefix).HandlerFunc(gh.Proxy.Forward)
}
