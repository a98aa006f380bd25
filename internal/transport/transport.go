// Package transport issues HTTP calls on behalf of the simulation engine and
// normalizes their outcomes. The engine never touches raw sockets; everything
// goes through the Transport interface so fault injection can be layered in
// front of a real client without changing callers.
package transport

import (
	"context"
	"net/http"
	"time"
)

// Request describes one call through the transport.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// Response is the normalized result of a call.
type Response struct {
	Status     int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	ReceivedAt time.Time
}

// Header returns the first value for the named response header, or "".
func (r *Response) Header(name string) string {
	if r == nil || r.Headers == nil {
		return ""
	}
	return r.Headers.Get(name)
}

// Transport executes requests. Implementations own connection handling,
// serialization and per-request timeouts.
type Transport interface {
	Do(ctx context.Context, req Request) (*Response, error)
}
