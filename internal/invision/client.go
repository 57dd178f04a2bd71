// SPDX-License-Identifier: MIT

// Package invision implements the session, authentication flow and typed
// endpoint adapter for the upstream design-prototyping service. One Client is
// shared by every worker of a mirror run; the cookie jar and the rate limiter
// are the only pieces of shared mutable state.
package invision

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"github.com/mirrorlab/invmirror/internal/log"
	"github.com/mirrorlab/invmirror/internal/metrics"
)

const (
	defaultProjectsBase = "https://projects.invisionapp.com"
	defaultLoginBase    = "https://login.invisionapp.com"

	xsrfCookie = "XSRF-TOKEN"
	xsrfHeader = "x-xsrf-token"

	defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"
)

// retryStatus is the set of upstream statuses worth another attempt. The set
// is part of the externally observable contract; everything else fails the
// call immediately.
var retryStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	Email    string
	Password string

	UserAgent         string
	MaxRetries        int           // additional attempts after the first (default 10)
	RetryWait         time.Duration // initial backoff interval (default 2s)
	RetryMaxWait      time.Duration // backoff ceiling (default 120s)
	RequestsPerSecond float64       // shared upstream rate (default 4)

	// CAFile names a PEM file appended to the system trust pool.
	CAFile string

	// BaseURL and LoginURL override the production hosts; tests point them
	// at a fake upstream.
	BaseURL  string
	LoginURL string

	// HTTPClient overrides the built transport; the jar is attached to it.
	HTTPClient *http.Client
}

func (o *Options) normalize() {
	if o.UserAgent == "" {
		o.UserAgent = defaultUserAgent
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 10
	}
	if o.RetryWait <= 0 {
		o.RetryWait = 2 * time.Second
	}
	if o.RetryMaxWait <= 0 {
		o.RetryMaxWait = 120 * time.Second
	}
	if o.RequestsPerSecond <= 0 {
		o.RequestsPerSecond = 4
	}
	if o.BaseURL == "" {
		o.BaseURL = defaultProjectsBase
	}
	if o.LoginURL == "" {
		o.LoginURL = defaultLoginBase
	}
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
	o.LoginURL = strings.TrimRight(o.LoginURL, "/")
}

// Client is a cookie-authenticated session against the upstream API.
type Client struct {
	opts    Options
	base    string
	login   string
	hc      *http.Client
	limiter *rate.Limiter
}

// New builds a Client with a fresh cookie jar. The jar is internally
// synchronised, so the Client is safe for concurrent use once Login has
// completed.
func New(opts Options) (*Client, error) {
	opts.normalize()

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("invision: cookie jar: %w", err)
	}

	hc := opts.HTTPClient
	if hc == nil {
		transport, err := newTransport(opts.CAFile)
		if err != nil {
			return nil, err
		}
		hc = &http.Client{
			Transport: transport,
			Timeout:   2 * time.Minute,
		}
	}
	hc.Jar = jar

	burst := int(opts.RequestsPerSecond)
	if burst < 1 {
		burst = 1
	}

	return &Client{
		opts:    opts,
		base:    opts.BaseURL,
		login:   opts.LoginURL,
		hc:      hc,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst),
	}, nil
}

func newTransport(caFile string) (*http.Transport, error) {
	t := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if caFile != "" {
		pem, err := os.ReadFile(caFile) // #nosec G304 -- operator-supplied CA path
		if err != nil {
			return nil, fmt.Errorf("invision: read CA file: %w", err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil {
			return nil, fmt.Errorf("invision: system cert pool: %w", err)
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("invision: no certificates found in %s", caFile)
		}
		t.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	}
	return t, nil
}

// do performs one upstream call with rate limiting, header injection and the
// retry schedule. A 200 returns the response with its body open; the caller
// owns closing it. Any other non-retryable status fails immediately.
func (c *Client) do(ctx context.Context, op, method, rawURL string, query url.Values, body []byte, hdr http.Header) (*http.Response, error) {
	logger := log.WithComponent("invision")

	u := rawURL
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.opts.RetryWait
	bo.MaxInterval = c.opts.RetryMaxWait
	bo.RandomizationFactor = 0.5
	bo.MaxElapsedTime = 0 // attempt count is the cap
	bo.Reset()

	var lastErr error
	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			metrics.IncUpstreamRetry()
			wait := bo.NextBackOff()
			logger.Warn().
				Str(log.FieldEvent, "upstream.retry").
				Str("op", op).
				Int(log.FieldAttempt, attempt).
				Dur("wait", wait).
				Err(lastErr).
				Msg("retrying upstream call")
			if err := sleep(ctx, wait); err != nil {
				return nil, err
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		var r io.Reader
		if body != nil {
			r = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, r)
		if err != nil {
			return nil, &UpstreamError{Sentinel: ErrStatus, Op: op, Err: err}
		}
		c.setHeaders(req, hdr)

		resp, err := c.hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusOK {
			metrics.IncUpstreamRequest(op, "success")
			return resp, nil
		}

		snippet := readSnippet(resp.Body)
		_ = resp.Body.Close()

		if retryStatus[resp.StatusCode] {
			lastErr = &UpstreamError{Sentinel: ErrStatus, Op: op, Status: resp.StatusCode, Body: snippet}
			continue
		}

		metrics.IncUpstreamRequest(op, "failure")
		return nil, &UpstreamError{Sentinel: ErrStatus, Op: op, Status: resp.StatusCode, Body: snippet}
	}

	metrics.IncUpstreamRequest(op, "failure")
	return nil, &UpstreamError{Sentinel: ErrRetriesExhausted, Op: op, Err: lastErr}
}

// setHeaders applies the headers the upstream requires on every call plus the
// XSRF token read from the jar's current cookie for the target URL.
func (c *Client) setHeaders(req *http.Request, hdr http.Header) {
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("x-client-type", "App")
	req.Header.Set("calling-service", "auth-ui-browser")
	for _, cookie := range c.hc.Jar.Cookies(req.URL) {
		if cookie.Name == xsrfCookie {
			req.Header.Set(xsrfHeader, cookie.Value)
			break
		}
	}
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}
}

// getJSON fetches a JSON document and validates it syntactically without
// decoding; documents flow through the engine as raw bytes.
func (c *Client) getJSON(ctx context.Context, op, rawURL string, query url.Values) ([]byte, error) {
	resp, err := c.do(ctx, op, http.MethodGet, rawURL, query, nil, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	doc, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UpstreamError{Sentinel: ErrStatus, Op: op, Err: err}
	}
	if !validJSON(doc) {
		return nil, &UpstreamError{Sentinel: ErrDecode, Op: op}
	}
	return doc, nil
}

// DownloadAsset streams an asset referenced by a mirrored document. The URL
// is used verbatim, query string included.
func (c *Client) DownloadAsset(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	resp, err := c.do(ctx, "asset.download", http.MethodGet, rawURL, nil, nil, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(b))
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
