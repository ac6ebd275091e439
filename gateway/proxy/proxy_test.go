package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridian/iam-gateway/shared/api"
	"github.com/veridian/iam-gateway/shared/registry"
	"github.com/veridian/iam-gateway/shared/routing"
)

// newTestGateway wires a registry, resolver and proxy around one backend URL
// using the given raw mapping entries.
func newTestGateway(t *testing.T, backendURL string, entries []routing.MappingEntry, timeout time.Duration) *Proxy {
	t.Helper()

	cfg := &routing.Config{RouteMappings: entries}
	mappings, err := routing.CompileMappings(cfg)
	require.NoError(t, err)
	resolver := routing.NewResolver(mappings, nil)
	reg := registry.New(resolver, time.Minute, time.Second, nil)

	if backendURL != "" {
		u, err := url.Parse(backendURL)
		require.NoError(t, err)
		port, err := strconv.Atoi(u.Port())
		require.NoError(t, err)
		reg.Register(&registry.ServiceDescriptor{
			Name: "backend-service", Host: u.Hostname(), Port: port, HealthPath: "/health",
		})
	}
	return New(reg, resolver, timeout, nil)
}

func coreMapping() []routing.MappingEntry {
	return []routing.MappingEntry{{
		Pattern:         `^/api`,
		Service:         "backend-service",
		Transformations: &routing.Transformations{StripPrefix: true},
	}}
}

func decodeEnvelope(t *testing.T, body io.Reader) api.ErrorResponse {
	t.Helper()
	var envelope api.ErrorResponse
	require.NoError(t, json.NewDecoder(body).Decode(&envelope))
	return envelope
}

func TestForwardRelaysBackendVerbatim(t *testing.T) {
	for _, status := range []int{http.StatusCreated, http.StatusBadRequest, http.StatusInternalServerError} {
		t.Run(strconv.Itoa(status), func(t *testing.T) {
			backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("X-Backend", "yes")
				w.WriteHeader(status)
				io.WriteString(w, "backend says hi")
			}))
			defer backend.Close()

			p := newTestGateway(t, backend.URL, coreMapping(), 5*time.Second)
			rec := httptest.NewRecorder()
			p.Forward(rec, httptest.NewRequest(http.MethodGet, "/api/users", nil))

			// non-2xx backend statuses are relayed, never reinterpreted
			assert.Equal(t, status, rec.Code)
			assert.Equal(t, "backend says hi", rec.Body.String())
			assert.Equal(t, "yes", rec.Header().Get("X-Backend"))
		})
	}
}

func TestForwardAppliesTransformAndQuery(t *testing.T) {
	var gotPath, gotQuery, gotMethod string
	var gotBody []byte
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotMethod = r.Method
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer backend.Close()

	entries := []routing.MappingEntry{{
		Pattern:         `^/api/auth/(.+)`,
		Service:         "backend-service",
		Transformations: &routing.Transformations{Rewrite: "/auth/$1"},
	}}
	p := newTestGateway(t, backend.URL, entries, 5*time.Second)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login?tenant=acme", strings.NewReader(`{"user":"x"}`))
	rec := httptest.NewRecorder()
	p.Forward(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/auth/login", gotPath)
	assert.Equal(t, "tenant=acme", gotQuery)
	assert.Equal(t, `{"user":"x"}`, string(gotBody))
}

func TestForwardUnmappedPathIs404(t *testing.T) {
	p := newTestGateway(t, "", nil, time.Second)
	rec := httptest.NewRecorder()
	p.Forward(rec, httptest.NewRequest(http.MethodGet, "/api/nowhere", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	envelope := decodeEnvelope(t, rec.Body)
	assert.Equal(t, http.StatusNotFound, envelope.StatusCode)
	assert.Equal(t, "Service not found", envelope.Message)
	assert.Equal(t, "Not Found", envelope.Error)
}

func TestForwardConnectionRefusedIs503(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	backendURL := backend.URL
	backend.Close() // nothing listens on that port anymore

	p := newTestGateway(t, backendURL, coreMapping(), time.Second)
	rec := httptest.NewRecorder()
	p.Forward(rec, httptest.NewRequest(http.MethodGet, "/api/users", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	envelope := decodeEnvelope(t, rec.Body)
	assert.Equal(t, http.StatusServiceUnavailable, envelope.StatusCode)
	assert.Equal(t, "Service Unavailable", envelope.Error)
}

func TestForwardTimeoutIs504(t *testing.T) {
	release := make(chan struct{})
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer backend.Close()
	defer close(release)

	p := newTestGateway(t, backend.URL, coreMapping(), 50*time.Millisecond)
	rec := httptest.NewRecorder()
	p.Forward(rec, httptest.NewRequest(http.MethodGet, "/api/slow", nil))

	require.Equal(t, http.StatusGatewayTimeout, rec.Code)
	envelope := decodeEnvelope(t, rec.Body)
	assert.Equal(t, http.StatusGatewayTimeout, envelope.StatusCode)
	assert.Equal(t, "Gateway Timeout", envelope.Error)
}

func TestForwardSanitizesHeaders(t *testing.T) {
	var upstreamHeader http.Header
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamHeader = r.Header.Clone()
		w.Header().Set("Keep-Alive", "timeout=5")
		w.Header().Set("X-Backend", "yes")
	}))
	defer backend.Close()

	p := newTestGateway(t, backend.URL, coreMapping(), 5*time.Second)

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	req.Header.Set("X-Tenant-Id", "acme")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Proxy-Authorization", "Basic abc")
	req.Header.Set("Upgrade", "websocket")

	rec := httptest.NewRecorder()
	p.Forward(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// ordinary headers pass through byte-for-byte
	assert.Equal(t, "Bearer secret-token", upstreamHeader.Get("Authorization"))
	assert.Equal(t, "acme", upstreamHeader.Get("X-Tenant-Id"))

	// hop-by-hop headers never reach the backend
	for _, name := range []string{"Connection", "Proxy-Authorization", "Upgrade"} {
		assert.Empty(t, upstreamHeader.Values(name), "header %s must be stripped", name)
	}

	// and never come back to the client
	assert.Empty(t, rec.Header().Values("Keep-Alive"))
	assert.Equal(t, "yes", rec.Header().Get("X-Backend"))
}

func TestForwardPassesOriginalPathWithoutTransformation(t *testing.T) {
	var gotPath string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
	}))
	defer backend.Close()

	entries := []routing.MappingEntry{{Pattern: `^/api`, Service: "backend-service"}}
	p := newTestGateway(t, backend.URL, entries, 5*time.Second)

	rec := httptest.NewRecorder()
	p.Forward(rec, httptest.NewRequest(http.MethodGet, "/api/users/42", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/api/users/42", gotPath)
}

func TestClassifyTransportError(t *testing.T) {
	for _, ti := range []struct {
		msg    string
		err    error
		status int
		cause  string
	}{{
		msg:    "context deadline",
		err:    &url.Error{Op: "Get", URL: "http://x", Err: context.DeadlineExceeded},
		status: http.StatusGatewayTimeout,
		cause:  "timeout",
	}, {
		msg:    "connection refused",
		err:    &url.Error{Op: "Get", URL: "http://x", Err: &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}},
		status: http.StatusServiceUnavailable,
		cause:  "connection_refused",
	}, {
		msg:    "host not found",
		err:    &url.Error{Op: "Get", URL: "http://x", Err: &net.DNSError{Err: "no such host", Name: "x", IsNotFound: true}},
		status: http.StatusServiceUnavailable,
		cause:  "host_not_found",
	}, {
		msg:    "anything else",
		err:    &url.Error{Op: "Get", URL: "http://x", Err: errors.New("connection reset by peer")},
		status: http.StatusBadGateway,
		cause:  "transport",
	}} {
		t.Run(ti.msg, func(t *testing.T) {
			status, cause := classifyTransportError(ti.err)
			assert.Equal(t, ti.status, status)
			assert.Equal(t, ti.cause, cause)
		})
	}
}
