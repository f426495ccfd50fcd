// Package fetcher performs HTTP retrieval of feed documents. It returns the
// raw body plus response metadata, or a typed error that classifies the
// failure for the scheduler's backoff and audit accounting.
package fetcher

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/prismfeed/prism/pkg/models"
)

// ErrorKind classifies a fetch failure.
type ErrorKind string

const (
	ErrDNS       ErrorKind = "dns"
	ErrTLS       ErrorKind = "tls"
	ErrTimeout   ErrorKind = "timeout"
	ErrHTTPState ErrorKind = "http_status"
	ErrEmptyBody ErrorKind = "empty_body"
	ErrTooLarge  ErrorKind = "too_large"
	ErrNetwork   ErrorKind = "network"
)

// Error is a classified fetch failure.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	URL        string
	cause      error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: %s (status %d)", e.URL, e.Kind, e.StatusCode)
	}
	if e.cause != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.cause)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
}

func (e *Error) Unwrap() error { return e.cause }

// Outcome maps the failure to its fetch log outcome.
func (e *Error) Outcome() models.FetchOutcome {
	switch e.Kind {
	case ErrTimeout:
		return models.FetchTimeout
	case ErrEmptyBody:
		return models.FetchEmpty
	default:
		return models.FetchError
	}
}

// KindOf returns the fetch error kind, or "" for non-fetch errors.
func KindOf(err error) ErrorKind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// Result is a successful fetch.
type Result struct {
	Body        []byte
	Headers     http.Header
	StatusCode  int
	ContentType string
	Duration    time.Duration
}

// Client fetches feed documents over HTTP.
type Client struct {
	http      *http.Client
	maxBody   int64
	userAgent string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithMaxBodyBytes caps the accepted response body size.
func WithMaxBodyBytes(n int64) Option {
	return func(c *Client) { c.maxBody = n }
}

// WithUserAgent sets the User-Agent header sent on every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

const (
	defaultTimeout   = 30 * time.Second
	defaultMaxBody   = 25 << 20
	defaultUserAgent = "prism-feed-fetcher/1.0"
)

// New builds a fetcher with a 30s timeout and a 25 MB body cap.
func New(opts ...Option) *Client {
	c := &Client{
		http: &http.Client{
			Timeout: defaultTimeout,
		},
		maxBody:   defaultMaxBody,
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch retrieves url. Any non-2xx status, transport failure, or empty body
// is returned as *Error; the caller never sees a raw transport error.
func (c *Client) Fetch(ctx context.Context, url string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &Error{Kind: ErrNetwork, URL: url, cause: err}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransport(url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &Error{Kind: ErrHTTPState, StatusCode: resp.StatusCode, URL: url}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, classifyTransport(url, err)
	}
	if int64(len(body)) > c.maxBody {
		return nil, &Error{Kind: ErrTooLarge, URL: url}
	}
	if len(body) == 0 {
		return nil, &Error{Kind: ErrEmptyBody, URL: url}
	}

	return &Result{
		Body:        body,
		Headers:     resp.Header,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Duration:    time.Since(start),
	}, nil
}

func classifyTransport(url string, err error) *Error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &Error{Kind: ErrDNS, URL: url, cause: err}
	}
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return &Error{Kind: ErrTLS, URL: url, cause: err}
	}
	var recErr tls.RecordHeaderError
	if errors.As(err, &recErr) {
		return &Error{Kind: ErrTLS, URL: url, cause: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: ErrTimeout, URL: url, cause: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: ErrTimeout, URL: url, cause: err}
	}
	return &Error{Kind: ErrNetwork, URL: url, cause: err}
}
