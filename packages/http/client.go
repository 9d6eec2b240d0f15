package http

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 30 * time.Second
	// DefaultMaxRedirects is the maximum number of redirects to follow
	DefaultMaxRedirects = 10
	// DefaultMaxIdleConns is the maximum number of idle connections in the pool
	DefaultMaxIdleConns = 100
	// DefaultMaxIdleConnsPerHost is the maximum number of idle connections per host
	DefaultMaxIdleConnsPerHost = 10
	// DefaultIdleConnTimeout is how long idle connections stay in the pool
	DefaultIdleConnTimeout = 90 * time.Second
)

// Driver is what the engine needs from an HTTP client.
type Driver interface {
	Perform(ctx context.Context, method, url string, options map[string]any) *Outcome
}

// Outcome is the result of one request. Err is set when no response was
// obtained; Response and Body are set otherwise.
type Outcome struct {
	Method   string
	URL      string
	Err      error
	Response *Response
	Body     any
	Elapsed  time.Duration
}

// StatusCode returns 0 when there is no response.
func (o *Outcome) StatusCode() int {
	if o == nil || o.Response == nil {
		return 0
	}
	return o.Response.StatusCode
}

// Value is the response as expressions see it: status, statusCode,
// headers (lower-case names), body, url and elapsed milliseconds.
func (o *Outcome) Value() map[string]any {
	v := map[string]any{
		"url":     o.URL,
		"elapsed": float64(o.Elapsed.Milliseconds()),
		"body":    o.Body,
	}
	if o.Response != nil {
		v["status"] = float64(o.Response.StatusCode)
		v["statusCode"] = float64(o.Response.StatusCode)
		v["headers"] = o.Response.LowerHeaders()
	}
	return v
}

type Client struct {
	httpClient     *http.Client
	timeout        time.Duration
	followRedirect bool
	maxRedirects   int
	validateSSL    bool
	proxyURL       string
	defaultHeaders map[string]string
	limiter        *rate.Limiter
	logger         *zap.Logger
	tokens         *tokenCache
}

type ClientOption func(*Client)

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		timeout:        DefaultTimeout,
		followRedirect: true,
		maxRedirects:   DefaultMaxRedirects,
		validateSSL:    true,
		defaultHeaders: make(map[string]string),
		logger:         zap.NewNop(),
		tokens:         newTokenCache(),
	}

	for _, opt := range opts {
		opt(c)
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        DefaultMaxIdleConns,
		MaxIdleConnsPerHost: DefaultMaxIdleConnsPerHost,
		IdleConnTimeout:     DefaultIdleConnTimeout,
	}

	if !c.validateSSL {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true,
		}
	}

	if c.proxyURL != "" {
		proxyURL, err := neturl.Parse(c.proxyURL)
		if err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		} else {
			c.logger.Warn("ignoring invalid proxy url", zap.String("proxy", c.proxyURL), zap.Error(err))
		}
	}

	redirectPolicy := func(req *http.Request, via []*http.Request) error {
		if !c.followRedirect {
			return http.ErrUseLastResponse
		}
		if len(via) >= c.maxRedirects {
			return http.ErrUseLastResponse
		}
		return nil
	}

	c.httpClient = &http.Client{
		Transport:     transport,
		Timeout:       c.timeout,
		CheckRedirect: redirectPolicy,
	}

	return c
}

func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithFollowRedirects(follow bool) ClientOption {
	return func(c *Client) {
		c.followRedirect = follow
	}
}

func WithMaxRedirects(max int) ClientOption {
	return func(c *Client) {
		if max > 0 {
			c.maxRedirects = max
		}
	}
}

// WithHeaders sets headers sent with every request. Request headers win.
func WithHeaders(headers map[string]string) ClientOption {
	return func(c *Client) {
		for k, v := range headers {
			c.defaultHeaders[k] = v
		}
	}
}

// WithValidateSSL enables or disables SSL certificate validation
func WithValidateSSL(validate bool) ClientOption {
	return func(c *Client) {
		c.validateSSL = validate
	}
}

// WithProxy sets the proxy URL for all requests
func WithProxy(proxyURL string) ClientOption {
	return func(c *Client) {
		c.proxyURL = proxyURL
	}
}

// WithRateLimit caps requests per second across every caller of the client.
// Zero or less disables limiting.
func WithRateLimit(perSecond float64) ClientOption {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Perform sends one request built from the options map and never returns a
// nil Outcome.
func (c *Client) Perform(ctx context.Context, method, rawURL string, options map[string]any) *Outcome {
	out := &Outcome{Method: strings.ToUpper(method), URL: rawURL}
	if out.Method == "" {
		out.Method = http.MethodGet
	}

	opts, err := DecodeOptions(options)
	if err != nil {
		out.Err = err
		return out
	}

	out.URL = opts.BuildURL(rawURL)
	if err := ValidateURL(out.URL); err != nil {
		out.Err = err
		return out
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			out.Err = fmt.Errorf("rate limiter: %w", err)
			return out
		}
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	var resp *Response
	switch {
	case opts.Auth != nil && opts.Auth.Digest != nil:
		resp, err = c.doWithDigestAuth(ctx, out.Method, out.URL, opts)
	case opts.Auth != nil && opts.Auth.OAuth2 != nil:
		var token string
		token, err = c.oauth2Token(ctx, opts.Auth.OAuth2)
		if err == nil {
			resp, err = c.doRequest(ctx, out.Method, out.URL, opts, "Bearer "+token)
		}
	default:
		resp, err = c.doRequest(ctx, out.Method, out.URL, opts, "")
	}
	out.Elapsed = time.Since(start)

	if err != nil {
		out.Err = err
		c.logger.Debug("request failed",
			zap.String("method", out.Method),
			zap.String("url", out.URL),
			zap.Error(err))
		return out
	}

	out.Response = resp
	out.Body = decodeBody(resp.Body)
	c.logger.Debug("request performed",
		zap.String("method", out.Method),
		zap.String("url", out.URL),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", out.Elapsed))
	return out
}

func (c *Client) doRequest(ctx context.Context, method, url string, opts *Options, authHeader string) (*Response, error) {
	body, contentType, err := opts.encodeBody()
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}

	for k, v := range c.defaultHeaders {
		httpReq.Header.Set(k, v)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if opts.JSON && httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	for k, v := range opts.Headers {
		httpReq.Header.Set(k, v)
	}
	opts.applyAuth(httpReq)
	if authHeader != "" {
		httpReq.Header.Set("Authorization", authHeader)
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	duration := time.Since(start)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}

	headers := make(map[string]string, len(httpResp.Header))
	for k := range httpResp.Header {
		headers[k] = strings.Join(httpResp.Header.Values(k), ", ")
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Status:     httpResp.Status,
		Headers:    headers,
		Body:       respBody,
		Duration:   duration,
	}, nil
}

func (c *Client) doWithDigestAuth(ctx context.Context, method, url string, opts *Options) (*Response, error) {
	resp, err := c.doRequest(ctx, method, url, opts, "")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	challenge := resp.Header("WWW-Authenticate")
	if challenge == "" {
		return resp, nil
	}

	header, err := opts.Auth.Digest.Authorize(method, url, challenge)
	if err != nil {
		return nil, err
	}
	return c.doRequest(ctx, method, url, opts, header)
}

// decodeBody returns JSON when the payload parses, the text otherwise, and
// nil for an empty body.
func decodeBody(raw []byte) any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err == nil {
		return v
	}
	return string(raw)
}

// ValidateURL checks that a URL is well-formed and uses an allowed scheme
func ValidateURL(rawURL string) error {
	u, err := neturl.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported URL scheme: %q (only http and https are allowed)", u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}

	return nil
}
