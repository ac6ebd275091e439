// shared/api/client.go
package api

import (
	"net"
	"net/http"
	"time"
)

// NewDefaultHTTPClient creates an http.Client with tuned transport settings
// for outbound calls to backend services. The total timeout covers
// connection, writing and reading; callers that need a tighter per-request
// deadline pass a context with their own.
func NewDefaultHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,  // Connection establishment timeout
				KeepAlive: 30 * time.Second, // Keep-alive for idle connections
			}).DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   32,
			IdleConnTimeout:       90 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}
