// Package provider holds what the outbound API clients share: the HTTP
// transport and the error vocabulary the services map from.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

const (
	// DialTimeout is the connection timeout.
	DialTimeout = 10 * time.Second
	// TLSHandshakeTimeout is the TLS negotiation timeout.
	TLSHandshakeTimeout = 10 * time.Second
	// ResponseHeaderTimeout is time to wait for response headers.
	ResponseHeaderTimeout = 30 * time.Second

	// maxErrorBody caps how much of an error response is kept.
	maxErrorBody = 1024
)

// Sentinel errors returned by provider clients.
var (
	ErrRateLimited       = errors.New("provider: rate limited")
	ErrAuthFailed        = errors.New("provider: authentication failed")
	ErrUnavailable       = errors.New("provider: unavailable")
	ErrNotFound          = errors.New("provider: not found")
	ErrMalformedResponse = errors.New("provider: malformed response")
)

// StatusError is a non-2xx answer that matched no sentinel.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider: unexpected status %d: %s", e.StatusCode, e.Body)
}

// NewHTTPClient creates an HTTP client for calls to third-party APIs.
// Callers bound each request with a context deadline, so the client itself has
// no overall timeout. Redirects are not followed.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   DialTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   TLSHandshakeTimeout,
			ResponseHeaderTimeout: ResponseHeaderTimeout,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// CheckResponse returns nil for 2xx responses. Otherwise it drains and closes
// the body and maps the status to a sentinel error.
func CheckResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return ErrAuthFailed
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	default:
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
}

// TransportError classifies an error returned by http.Client.Do.
// Context cancellation and deadlines pass through so callers can tell them
// apart from an unreachable host.
func TransportError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
