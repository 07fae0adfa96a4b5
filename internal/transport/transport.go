// Package transport sends fully-signed requests over HTTP.
//
// The Transport interface is the boundary between the client and the network:
// implementations return a Response whenever a status line was received, and
// an error only for failures before that point. The default implementation
// wraps *http.Client with a per-call timeout.
package transport

import (
	"context"
	"io"
	"net/http"
	"time"
)

// Response is the transport-level view of an HTTP response. The caller owns
// the Body and must close it.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// Transport sends one signed request and returns the raw response.
type Transport interface {
	// Send issues the request. contentLength must be set explicitly for
	// streaming bodies (the body is a generic reader); pass -1 when there is
	// no body or the length is unknown.
	Send(
		ctx context.Context,
		method, url string,
		header http.Header,
		body io.Reader,
		contentLength int64,
	) (*Response, error)
}

// HTTPTransport is the default Transport over net/http.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTP creates an HTTPTransport applying timeout to every call.
// A zero timeout disables it.
func NewHTTP(timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		client: &http.Client{Timeout: timeout},
	}
}

// Send implements Transport.
func (t *HTTPTransport) Send(
	ctx context.Context,
	method, url string,
	header http.Header,
	body io.Reader,
	contentLength int64,
) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	for name, values := range header {
		req.Header[name] = values
	}
	if contentLength >= 0 {
		req.ContentLength = contentLength
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}
