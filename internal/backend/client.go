package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"scribe/internal/logging"
)

const userAgent = "scribe/0.1.0"

// HTTPDoer describes the HTTP client used by Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// TokenSource supplies the bearer credential for authenticated calls. It
// returns an error wrapping ErrUnauthorized when no credential is stored.
type TokenSource interface {
	Token() (string, error)
}

// Option customises Client construction.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) {
		c.http = doer
	}
}

// WithTimeout sets a client-wide request timeout. Zero keeps transport defaults.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithTokenSource sets where bearer credentials come from.
func WithTokenSource(source TokenSource) Option {
	return func(c *Client) {
		c.tokens = source
	}
}

// WithUnauthorizedHandler registers the callback invoked when an
// authenticated call is rejected with 401.
func WithUnauthorizedHandler(fn func()) Option {
	return func(c *Client) {
		c.onUnauthorized = fn
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client talks to the transcription backend.
type Client struct {
	base           *url.URL
	http           HTTPDoer
	timeout        time.Duration
	tokens         TokenSource
	onUnauthorized func()
	logger         *slog.Logger
}

// New builds a Client rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("backend base url is empty")
	}
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	base.RawQuery = ""
	base.Fragment = ""

	c := &Client{base: base}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: c.timeout}
	}
	c.logger = logging.NewComponentLogger(c.logger, "backend")
	return c, nil
}

// BaseURL returns the backend root.
func (c *Client) BaseURL() string {
	return c.base.String()
}

type request struct {
	op            string
	method        string
	path          string
	query         url.Values
	body          io.Reader
	contentType   string
	authenticated bool
}

// do performs req and decodes a 2xx JSON body into out when out is non-nil.
func (c *Client) do(ctx context.Context, req request, out any) error {
	endpoint := c.base.JoinPath(req.path)
	if len(req.query) > 0 {
		endpoint.RawQuery = req.query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, endpoint.String(), req.body)
	if err != nil {
		return &APIError{Op: req.op, Kind: ErrTransport, Err: err}
	}
	requestID := uuid.NewString()
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)
	httpReq.Header.Set("X-Request-ID", requestID)
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	if req.authenticated {
		token, err := c.bearer()
		if err != nil {
			kind := ErrTransport
			if errors.Is(err, ErrUnauthorized) {
				kind = ErrUnauthorized
			}
			return &APIError{Op: req.op, Kind: kind, Err: err}
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	if _, ok := logging.CorrelationIDFromContext(ctx); !ok {
		ctx = logging.WithCorrelationID(ctx, requestID)
	}
	logger := logging.WithContext(ctx, c.logger).With(
		logging.String("request_id", requestID),
		logging.String("method", req.method),
		logging.String("path", req.path),
	)
	started := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		logger.Debug("backend request failed", logging.Error(err))
		return &APIError{Op: req.op, Kind: ErrTransport, Err: err}
	}
	defer resp.Body.Close()
	logger.Debug("backend request complete",
		logging.Int("status", resp.StatusCode),
		logging.Duration("elapsed", time.Since(started)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		apiErr := classify(req.op, resp.StatusCode, body, req.authenticated)
		if errors.Is(apiErr, ErrUnauthorized) && c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return &APIError{Op: req.op, StatusCode: resp.StatusCode, Kind: ErrTransport, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) bearer() (string, error) {
	if c.tokens == nil {
		return "", fmt.Errorf("%w: no credential source configured", ErrUnauthorized)
	}
	token, err := c.tokens.Token()
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: empty credential", ErrUnauthorized)
	}
	return token, nil
}
