// Package transport implements the HTTP client for the settings server. It
// carries authentication, JSON decoding, and the operations the engine needs:
// settings fetch and save, locale and source option catalogs, and the
// candidate endpoints consumed by the reconciliation pipeline.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aviarylabs/rangesync/pkg/errors"
	"github.com/aviarylabs/rangesync/pkg/logging"
)

// DefaultHTTPTimeout is the default timeout for HTTP requests.
const DefaultHTTPTimeout = 30 * time.Second

// Client provides HTTP client functionality with authentication.
type Client struct {
	http    *http.Client
	auth    Authenticator
	baseURL string
	token   string
}

// Option configures a Client.
type Option func(*Client)

// WithAuthenticator sets the authentication strategy.
func WithAuthenticator(auth Authenticator) Option {
	return func(c *Client) { c.auth = auth }
}

// WithToken sets the credential handed to the authenticator.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the underlying HTTP client, mainly for tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithTimeout sets the request timeout on the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// New creates a transport client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{Timeout: DefaultHTTPTimeout},
		auth:    &NoAuth{},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured server base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, errors.WrapIO("create request", path, err)
	}
	return c.do(req)
}

func (c *Client) post(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.WrapParse("json", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.WrapIO("create request", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) patch(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.WrapParse("json", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.WrapIO("create request", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	if c.token != "" {
		c.auth.Apply(req, c.token)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.WrapAPI(req.Method+" "+req.URL.Path, 0, err)
	}
	return resp, nil
}

// DecodeResponse decodes a JSON response into the target structure. Non-2xx
// statuses become an APIError carrying the body as its message.
func DecodeResponse(resp *http.Response, operation string, target any) error {
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logging.Warn().Err(err).Msg("Failed to close response body")
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.WrapIO("read", "response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.NewAPIError(operation, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.Unmarshal(body, target); err != nil {
		return errors.WrapParse("json", operation, err)
	}
	return nil
}

// decodeLenient decodes a collection response, degrading a malformed body to
// the target's zero value with a warning instead of failing. Transport and
// status errors still propagate; only parse failures are absorbed so one bad
// payload cannot take down unrelated parts of the session.
func decodeLenient(resp *http.Response, operation string, target any) error {
	err := DecodeResponse(resp, operation, target)
	if err == nil {
		return nil
	}
	var parseErr *errors.ParseError
	if errors.As(err, &parseErr) {
		logging.Warn().Err(err).Str("operation", operation).Msg("Malformed response, using empty result")
		return nil
	}
	return err
}
