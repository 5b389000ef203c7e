// Package httpclient builds the pooled HTTP clients used for media fetches and
// chat network calls.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

// DefaultTimeout applies when New is given a non-positive timeout.
const DefaultTimeout = 60 * time.Second

// New returns a client with connection pooling. Share one per destination
// rather than creating clients per request.
func New(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
