package fetch

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/avast/retry-go/v4"
)

// Defaults used by NewClient.
const (
	DefaultAttempts = 3
	DefaultDelay    = 500 * time.Millisecond
	DefaultMaxDelay = 10 * time.Second
	DefaultTimeout  = 30 * time.Second
)

// Client fetches http and https URIs, retrying transport errors and
// retryable statuses with exponential backoff.
type Client struct {
	http      *http.Client
	attempts  uint
	delay     time.Duration
	maxDelay  time.Duration
	userAgent string
	logger    *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithAttempts sets the total number of tries per URI (minimum 1).
func WithAttempts(n uint) Option {
	return func(c *Client) { c.attempts = max(n, 1) }
}

// WithDelay sets the initial backoff delay and its cap.
func WithDelay(delay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.delay = delay
		c.maxDelay = maxDelay
	}
}

// WithTimeout sets the per-request timeout of the underlying client. Zero
// means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.http
		hc.Timeout = d
		c.http = &hc
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithLogger sets the logger used to report retries.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a Client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http:     &http.Client{Timeout: DefaultTimeout},
		attempts: DefaultAttempts,
		delay:    DefaultDelay,
		maxDelay: DefaultMaxDelay,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch implements Fetcher. Client errors other than 408 and 429 are not
// retried. The returned error is the last one seen; statuses are reported
// as *StatusError.
func (c *Client) Fetch(ctx context.Context, u *url.URL) (*Response, error) {
	var resp *http.Response
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			if c.userAgent != "" {
				req.Header.Set("User-Agent", c.userAgent)
			}
			r, err := c.http.Do(req)
			if err != nil {
				return err
			}
			if r.StatusCode < 200 || r.StatusCode > 299 {
				_, _ = io.Copy(io.Discard, io.LimitReader(r.Body, 4<<10))
				_ = r.Body.Close()
				serr := &StatusError{URL: u.String(), Code: r.StatusCode}
				if !retryableStatus(r.StatusCode) {
					return retry.Unrecoverable(serr)
				}
				return serr
			}
			resp = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.MaxDelay(c.maxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debug("retrying fetch", "url", u.String(), "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, err
	}
	return &Response{
		Body:      resp.Body,
		MediaType: parseMediaType(resp.Header.Get("Content-Type")),
	}, nil
}

func retryableStatus(code int) bool {
	return code >= 500 || code == http.StatusRequestTimeout || code == http.StatusTooManyRequests
}
