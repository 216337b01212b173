package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"imagepush/internal/services"
)

const (
	defaultHTTPTimeout    = 60 * time.Second
	defaultRetryMaxDelay  = 30 * time.Second
	defaultRetryBaseDelay = 1 * time.Second
	defaultRetryAttempts  = 3
	mediaPath             = "media"
	maxErrorBody          = 512
)

// idempotencyNamespace scopes the UUIDv5 keys derived from local identifiers.
var idempotencyNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("imagepush:media"))

// IdempotencyKey derives the stable request key for a local identifier.
func IdempotencyKey(localID string) string {
	return uuid.NewSHA1(idempotencyNamespace, []byte(localID)).String()
}

// Config captures the runtime settings required to talk to the remote API.
type Config struct {
	BaseURL           string
	APIKey            string
	TimeoutSeconds    int
	RequestsPerSecond float64
}

// Request describes one upload.
type Request struct {
	URL            string
	ImagePath      string
	Tags           []string
	Private        bool
	IdempotencyKey string
}

// HTTPDoer matches *http.Client so tests can substitute transports.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client uploads media to the remote API.
type Client struct {
	cfg        Config
	endpoint   string
	httpClient HTTPDoer
	limiter    *rate.Limiter
	timeout    time.Duration

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(time.Duration)
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client HTTPDoer) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryMaxAttempts overrides the default attempt count (defaults to 3).
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) {
		c.retryMaxAttempts = attempts
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retryBaseDelay = baseDelay
		c.retryMaxDelay = maxDelay
	}
}

// WithRequestTimeout overrides the per-attempt response deadline.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// NewClient constructs a publisher using the supplied configuration.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("publisher: base url is required")
	}
	endpoint, err := url.JoinPath(base, mediaPath)
	if err != nil {
		return nil, fmt.Errorf("publisher: build endpoint: %w", err)
	}

	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	client := &Client{
		cfg: Config{
			BaseURL:           base,
			APIKey:            strings.TrimSpace(cfg.APIKey),
			TimeoutSeconds:    cfg.TimeoutSeconds,
			RequestsPerSecond: cfg.RequestsPerSecond,
		},
		endpoint:         endpoint,
		httpClient:       &http.Client{},
		limiter:          rate.NewLimiter(limit, 1),
		timeout:          timeout,
		retryMaxAttempts: defaultRetryAttempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Endpoint returns the upload URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

type uploadResponse struct {
	ID json.RawMessage `json:"id"`
}

// Publish uploads one image and returns the remote identifier.
func (c *Client) Publish(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.ImagePath) == "" {
		return "", services.Wrap(services.ErrPublish, "publish", "upload", "image path is required", nil)
	}

	attempts := c.retryAttempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", services.Wrap(services.ErrPublish, "publish", "rate limit", req.ImagePath, err)
		}

		remoteID, err := c.publishOnce(ctx, req)
		if err == nil {
			return remoteID, nil
		}

		delay, retry := c.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			return "", services.Wrap(services.ErrPublish, "publish", "upload", req.ImagePath, err)
		}
		if err := c.sleep(ctx, delay); err != nil {
			return "", services.Wrap(services.ErrPublish, "publish", "retry wait", req.ImagePath, err)
		}
		lastErr = err
	}

	if lastErr == nil {
		lastErr = errors.New("unknown retry failure")
	}
	return "", services.Wrap(services.ErrPublish, "publish", "upload", fmt.Sprintf("%s: failed after %d attempts", req.ImagePath, attempts), lastErr)
}

func (c *Client) publishOnce(ctx context.Context, req Request) (string, error) {
	body, contentType, err := buildMultipart(req)
	if err != nil {
		return "", err
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		httpReq.Header.Set("Idempotency-Key", key)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return "", &timeoutError{timeout: c.timeout, err: err}
		}
		return "", fmt.Errorf("http error: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return "", &timeoutError{timeout: c.timeout, err: err}
		}
		return "", fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return "", &httpStatusError{
			StatusCode: resp.StatusCode,
			Body:       truncate(strings.TrimSpace(string(payload)), maxErrorBody),
			RetryAfter: retryAfter,
		}
	}

	var decoded uploadResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	remoteID := parseRemoteID(decoded.ID)
	if remoteID == "" {
		return "", errors.New("response did not include an id")
	}
	return remoteID, nil
}

// parseRemoteID accepts either a JSON string or a bare number.
func parseRemoteID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}
