// Package fetch retrieves the bytes behind image URIs: over HTTP with a
// retry policy, from inside an ePub archive, or from data: URIs.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"strings"
)

// ErrUnsupportedScheme is returned by Mux for URIs with no registered fetcher.
var ErrUnsupportedScheme = errors.New("fetch: unsupported URI scheme")

// Response is a successful fetch. The caller must close Body.
type Response struct {
	Body io.ReadCloser

	// MediaType is the content type without parameters, or "" when unknown.
	MediaType string
}

// Fetcher retrieves the resource identified by an absolute URI.
type Fetcher interface {
	Fetch(ctx context.Context, u *url.URL) (*Response, error)
}

// StatusError reports a response with a non-2xx status.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch: %s: unexpected status %d", e.URL, e.Code)
}

// Mux dispatches to a Fetcher chosen by URI scheme.
type Mux map[string]Fetcher

// Fetch implements Fetcher.
func (m Mux) Fetch(ctx context.Context, u *url.URL) (*Response, error) {
	f, ok := m[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	return f.Fetch(ctx, u)
}

// parseMediaType strips parameters from a Content-Type value.
func parseMediaType(v string) string {
	if v == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(v)
	if err != nil {
		return ""
	}
	return mt
}
