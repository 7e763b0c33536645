package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultURLBase is prefixed to path-only URLs given to Connect.
	DefaultURLBase = "https://api.lumino.so/v3"

	defaultUserAgent = "docstream/0.1"
	requestTimeout   = 60 * time.Second
	maxErrorBody     = 4 << 10
)

// StatusError is returned for any response outside the 2xx range.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api %s %s returned status %d", e.Method, e.URL, e.StatusCode)
}

// Client makes authenticated requests below a base URL. It is safe for
// concurrent use; ChangePath derives new clients that share the same
// authenticator and transport.
type Client struct {
	auth      Authenticator
	http      *http.Client
	url       string // always ends in '/'
	rootURL   string
	userAgent string
	logger    *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithProxy routes every request through proxy.
func WithProxy(proxy *url.URL) Option {
	return func(c *Client) {
		if proxy == nil {
			return
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.Proxy = http.ProxyURL(proxy)
		c.http = &http.Client{Timeout: c.http.Timeout, Transport: transport}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRootURL overrides the root URL guessed from the base URL.
func WithRootURL(root string) Option {
	return func(c *Client) {
		if root != "" {
			c.rootURL = strings.TrimRight(root, "/")
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New returns a client for requests below rawURL. A nil auth sends requests
// without credentials.
func New(auth Authenticator, rawURL string, opts ...Option) (*Client, error) {
	if auth == nil {
		auth = noAuth{}
	}
	base, err := normalizeURL(rawURL)
	if err != nil {
		return nil, err
	}
	root, err := rootURL(base)
	if err != nil {
		return nil, err
	}

	c := &Client{
		auth:      auth,
		http:      &http.Client{Timeout: requestTimeout},
		url:       base,
		rootURL:   root,
		userAgent: defaultUserAgent,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Connect builds a client authenticated with a username and password. A URL
// that is only a path is placed below DefaultURLBase. An empty username falls
// back to $USER.
func Connect(rawURL, username, password string, opts ...Option) (*Client, error) {
	rawURL = ExpandURL(rawURL)
	if username == "" {
		username = os.Getenv("USER")
	}
	if username == "" {
		return nil, errors.New("connect: no username given and $USER is unset")
	}
	if password == "" {
		return nil, fmt.Errorf("connect: no password given for %s", username)
	}
	return New(BasicAuth{Username: username, Password: password}, rawURL, opts...)
}

// ExpandURL places an empty or path-only URL below DefaultURLBase and returns
// anything else unchanged.
func ExpandURL(rawURL string) string {
	if rawURL == "" {
		rawURL = "/"
	}
	if strings.HasPrefix(rawURL, "/") {
		return DefaultURLBase + rawURL
	}
	return rawURL
}

// URL returns the base URL, with a trailing slash.
func (c *Client) URL() string { return c.url }

// RootURL returns the scheme, host and first path component of the API.
func (c *Client) RootURL() string { return c.rootURL }

func (c *Client) String() string { return "client for " + c.url }

// ChangePath returns a client for a different location that shares this
// client's credentials and transport. A path starting with '/' is resolved
// against the root URL; anything else is relative to the current URL.
func (c *Client) ChangePath(path string) (*Client, error) {
	var target string
	if strings.HasPrefix(path, "/") {
		target = c.rootURL + path
	} else {
		target = c.url + path
	}
	base, err := normalizeURL(target)
	if err != nil {
		return nil, err
	}
	next := *c
	next.url = base
	return &next, nil
}

// Get sends params as the query string and decodes the JSON response into
// dest. A nil dest discards the body.
func (c *Client) Get(ctx context.Context, path string, params url.Values, dest any) error {
	return c.doJSON(ctx, http.MethodGet, c.endpoint(path), params, nil, "", dest)
}

// Delete sends params as the query string.
func (c *Client) Delete(ctx context.Context, path string, params url.Values, dest any) error {
	return c.doJSON(ctx, http.MethodDelete, c.endpoint(path), params, nil, "", dest)
}

// Post sends params as a form body.
func (c *Client) Post(ctx context.Context, path string, params url.Values, dest any) error {
	return c.doJSON(ctx, http.MethodPost, c.endpoint(path), nil, []byte(params.Encode()), formContentType, dest)
}

// Put sends params as a form body.
func (c *Client) Put(ctx context.Context, path string, params url.Values, dest any) error {
	return c.doJSON(ctx, http.MethodPut, c.endpoint(path), nil, []byte(params.Encode()), formContentType, dest)
}

// PostData sends data verbatim with the given content type; params go in the
// query string.
func (c *Client) PostData(ctx context.Context, path string, data []byte, contentType string, params url.Values, dest any) error {
	return c.doJSON(ctx, http.MethodPost, c.endpoint(path), params, data, contentType, dest)
}

// PutData is PostData with PUT.
func (c *Client) PutData(ctx context.Context, path string, data []byte, contentType string, params url.Values, dest any) error {
	return c.doJSON(ctx, http.MethodPut, c.endpoint(path), params, data, contentType, dest)
}

// Patch is PostData with PATCH.
func (c *Client) Patch(ctx context.Context, path string, data []byte, contentType string, params url.Values, dest any) error {
	return c.doJSON(ctx, http.MethodPatch, c.endpoint(path), params, data, contentType, dest)
}

// GetRaw returns the response body as text.
func (c *Client) GetRaw(ctx context.Context, path string, params url.Values) (string, error) {
	body, err := c.do(ctx, http.MethodGet, c.endpoint(path), params, nil, "")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// Documentation fetches the documentation the server publishes at its root.
func (c *Client) Documentation(ctx context.Context) (string, error) {
	root, err := c.ChangePath("/")
	if err != nil {
		return "", err
	}
	return root.GetRaw(ctx, "", nil)
}

// UploadDocuments posts docs as a JSON array to upload_documents.
func (c *Client) UploadDocuments(ctx context.Context, docs any) (json.RawMessage, error) {
	data, err := json.Marshal(docs)
	if err != nil {
		return nil, fmt.Errorf("encode documents: %w", err)
	}
	var out json.RawMessage
	if err := c.PostData(ctx, "upload_documents", data, jsonContentType, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

const (
	formContentType = "application/x-www-form-urlencoded"
	jsonContentType = "application/json"
)

// endpoint joins path onto the base URL and keeps the trailing slash.
func (c *Client) endpoint(path string) string {
	return ensureTrailingSlash(c.url + strings.TrimLeft(path, "/"))
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, query url.Values, body []byte, contentType string, dest any) error {
	data, err := c.do(ctx, method, endpoint, query, body, contentType)
	if err != nil {
		return err
	}
	if dest == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, body []byte, contentType string) ([]byte, error) {
	if c == nil {
		return nil, errors.New("client is nil")
	}
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", jsonContentType)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", requestID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if err := c.auth.Authenticate(req); err != nil {
		return nil, fmt.Errorf("authenticate request: %w", err)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.DebugContext(ctx, "api request",
		"method", method,
		"url", endpoint,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
		"request_id", requestID,
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{
			Method:     method,
			URL:        endpoint,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return data, nil
}

func ensureTrailingSlash(s string) string {
	return strings.TrimRight(s, "/") + "/"
}

// normalizeURL checks that raw is absolute and gives it a trailing slash.
func normalizeURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("parse url %q: scheme and host are required", raw)
	}
	return ensureTrailingSlash(trimmed), nil
}

// rootURL keeps the scheme, host and first path component of base, as in
// "https://api.example.com/v4".
func rootURL(base string) (string, error) {
	if !strings.Contains(base, ":") {
		return "", fmt.Errorf("root url: %q is not absolute", base)
	}
	parts := strings.Split(base, "/")
	if len(parts) > 4 {
		parts = parts[:4]
	}
	return strings.TrimRight(strings.Join(parts, "/"), "/"), nil
}
