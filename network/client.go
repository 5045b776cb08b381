// Package network provides the HTTP client used to resolve remote sources,
// probe iframe targets and load emulated frames.
package network

import (
	"compress/gzip"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// DefaultUserAgent is sent when no user agent is configured.
const DefaultUserAgent = "Ersatz/1.0"

// Client fetches sources on behalf of a WebView. Cookies set by one
// response are sent with the next requests to the same site.
type Client struct {
	http      *http.Client
	transport http.RoundTripper
	logger    *slog.Logger

	timeout   time.Duration
	redirects int
	userAgent string
	follow    bool
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout bounds every request, redirects included.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithMaxRedirects sets how many redirects a request may follow.
func WithMaxRedirects(n int) ClientOption {
	return func(c *Client) {
		c.redirects = n
	}
}

// WithUserAgent sets the User-Agent header. Empty keeps DefaultUserAgent.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithFollowRedirect makes redirects visible to the caller when follow is
// false.
func WithFollowRedirect(follow bool) ClientOption {
	return func(c *Client) {
		c.follow = follow
	}
}

// WithTransport replaces the network transport. Tests use it to answer
// requests for arbitrary hosts without a listener.
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(c *Client) {
		c.transport = rt
	}
}

// WithLogger sets the logger for request tracing.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a client with its own cookie jar.
func NewClient(opts ...ClientOption) (*Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("network: cookie jar: %w", err)
	}

	c := &Client{
		logger:    slog.Default(),
		timeout:   30 * time.Second,
		redirects: 10,
		userAgent: DefaultUserAgent,
		follow:    true,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.transport == nil {
		c.transport = defaultTransport()
	}

	c.http = &http.Client{
		Transport:     c.transport,
		Jar:           jar,
		Timeout:       c.timeout,
		CheckRedirect: c.checkRedirect,
	}
	return c, nil
}

func defaultTransport() *http.Transport {
	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}
}

func (c *Client) checkRedirect(req *http.Request, via []*http.Request) error {
	if !c.follow {
		return http.ErrUseLastResponse
	}
	if len(via) >= c.redirects {
		return fmt.Errorf("stopped after %d redirects", c.redirects)
	}
	c.logger.Debug("network: redirect", "from", via[len(via)-1].URL.String(), "to", req.URL.String())
	return nil
}

// Request describes a source request. An empty Method means GET.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string
}

// Response is a response whose body has been read in full.
type Response struct {
	StatusCode int
	Status     string
	Headers    http.Header
	Body       []byte
	// URL is where the request ended after redirects.
	URL *url.URL
}

// OK reports whether the status code is in the 2xx range.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, rawURL string) (*Response, error) {
	return c.Do(ctx, &Request{URL: rawURL})
}

// Head performs a HEAD request with the given headers.
func (c *Client) Head(ctx context.Context, rawURL string, headers map[string]string) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodHead, URL: rawURL, Headers: headers})
}

// Do performs req. Request headers override the client's defaults.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("network: build %s %s: %w", method, req.URL, err)
	}
	h := httpReq.Header
	h.Set("User-Agent", c.userAgent)
	h.Set("Accept", "*/*")
	h.Set("Accept-Encoding", "gzip")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	for k, v := range req.Headers {
		h.Set(k, v)
	}

	c.logger.Debug("network: request", "method", method, "url", req.URL)
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("network: %s %s: %w", method, req.URL, err)
	}
	defer resp.Body.Close()

	data, err := readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("network: read %s: %w", req.URL, err)
	}
	final := httpReq.URL
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL
	}
	c.logger.Debug("network: response", "url", final.String(), "status", resp.StatusCode, "bytes", len(data))
	return &Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Headers:    resp.Header,
		Body:       data,
		URL:        final,
	}, nil
}

func readBody(resp *http.Response) ([]byte, error) {
	if resp.Header.Get("Content-Encoding") != "gzip" {
		return io.ReadAll(resp.Body)
	}
	zr, err := gzip.NewReader(resp.Body)
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
