package reel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Render parameters the service currently supports. Requested durations are
// clamped into this envelope before submission.
const (
	defaultFPS       = 24
	defaultDimension = "1280x720"
	minDurationSec   = 5
	maxDurationSec   = 120
)

// Static errors for reel client operations.
var (
	// ErrAPIKeyNotSet is returned when no API key is configured.
	ErrAPIKeyNotSet = errors.New("reel: REEL_API_KEY environment variable is not set")
	// ErrRenderIDRequired is returned when the render ID is not provided.
	ErrRenderIDRequired = errors.New("reel: render ID is required")
	// ErrNoRenderIDReturned is returned when the submit response has no ID.
	ErrNoRenderIDReturned = errors.New("reel: submit failed: no render ID returned")
	// ErrSubmitFailed is returned when the submit operation fails.
	ErrSubmitFailed = errors.New("reel: submit failed")
	// ErrServerError is returned when the server returns a 5xx status code.
	ErrServerError = errors.New("reel: server error")
	// ErrRateLimited is returned when the server returns a 429 status code.
	ErrRateLimited = errors.New("reel: rate limited")
	// ErrRequestFailed is returned when the request fails with a non-2xx
	// status code that is not retryable.
	ErrRequestFailed = errors.New("reel: request failed")
)

// Client defines the interface for interacting with the render service.
type Client interface {
	// Submit starts a render and returns the render ID.
	Submit(ctx context.Context, req RenderRequest) (renderID string, err error)

	// Poll checks the status of a render and returns the result.
	Poll(ctx context.Context, renderID string) (PollResult, error)
}

// HTTPClient is the HTTP implementation of the reel Client interface.
type HTTPClient struct {
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	maxRetries  int
	baseBackoff time.Duration
}

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithAPIKey sets the API key for authentication.
func WithAPIKey(key string) ClientOption {
	return func(hc *HTTPClient) {
		hc.apiKey = key
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(hc *HTTPClient) {
		hc.httpClient = c
	}
}

// WithBaseURL sets a custom base URL for the render service API.
func WithBaseURL(url string) ClientOption {
	return func(hc *HTTPClient) {
		hc.baseURL = url
	}
}

// WithMaxRetries sets the maximum number of retries for transient failures.
func WithMaxRetries(n int) ClientOption {
	return func(hc *HTTPClient) {
		hc.maxRetries = n
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(d time.Duration) ClientOption {
	return func(hc *HTTPClient) {
		hc.baseBackoff = d
	}
}

// NewClient creates a new render service HTTP client. The API key can be
// set via WithAPIKey; if not provided it is read from REEL_API_KEY.
func NewClient(baseURL string, opts ...ClientOption) (*HTTPClient, error) {
	c := &HTTPClient{
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		maxRetries:  3,
		baseBackoff: 1 * time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.apiKey == "" {
		c.apiKey = os.Getenv("REEL_API_KEY")
	}
	if c.apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	return c, nil
}

// Submit starts a render and returns the render ID.
func (c *HTTPClient) Submit(ctx context.Context, req RenderRequest) (string, error) {
	duration := req.DurationSeconds
	if duration < minDurationSec {
		duration = minDurationSec
	}
	if duration > maxDurationSec {
		duration = maxDurationSec
	}

	reqBody := renderRequest{
		PortraitKey:     req.PortraitKey,
		Prompt:          req.Prompt,
		DurationSeconds: duration,
		FPS:             defaultFPS,
		Dimension:       defaultDimension,
		OutputKey:       req.OutputKey,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("reel: marshal request: %w", err)
	}

	url := c.baseURL + "/v1/renders"

	var resp renderResponse
	if err := c.doRequestWithRetry(ctx, http.MethodPost, url, bodyBytes, &resp); err != nil {
		return "", err
	}

	if resp.ID == "" {
		if resp.Error != "" {
			return "", fmt.Errorf("%w: %s", ErrSubmitFailed, resp.Error)
		}
		return "", ErrNoRenderIDReturned
	}

	return resp.ID, nil
}

// Poll checks the status of a render and returns the result.
func (c *HTTPClient) Poll(ctx context.Context, renderID string) (PollResult, error) {
	if renderID == "" {
		return PollResult{}, ErrRenderIDRequired
	}

	url := fmt.Sprintf("%s/v1/renders/%s", c.baseURL, renderID)

	var resp statusResponse
	if err := c.doRequestWithRetry(ctx, http.MethodGet, url, nil, &resp); err != nil {
		return PollResult{}, err
	}

	var mapped Status
	switch resp.Status {
	case "QUEUED", "SUBMITTED":
		mapped = StatusQueued
	case "IN_PROGRESS", "RUNNING":
		mapped = StatusInProgress
	case "COMPLETED":
		mapped = StatusCompleted
	case "FAILED":
		mapped = StatusFailed
	case "REJECTED":
		mapped = StatusRejected
	default:
		mapped = Status(resp.Status)
	}

	result := PollResult{Status: mapped}

	switch result.Status {
	case StatusCompleted:
		result.VideoKey = resp.Output.VideoKey
	case StatusFailed, StatusRejected:
		result.Error = resp.Error
	}

	return result, nil
}

// doRequestWithRetry performs an HTTP request with exponential backoff retry.
func (c *HTTPClient) doRequestWithRetry(ctx context.Context, method, url string, body []byte, result interface{}) error {
	var lastErr error
	backoff := c.baseBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("reel: context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		err := c.doRequest(ctx, method, url, body, result)
		if err == nil {
			return nil
		}

		if !isRetryable(err) {
			return err
		}

		lastErr = err
	}

	return fmt.Errorf("reel: max retries exceeded: %w", lastErr)
}

// doRequest performs a single HTTP request.
func (c *HTTPClient) doRequest(ctx context.Context, method, url string, body []byte, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("reel: create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &retryableError{err: fmt.Errorf("reel: request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &retryableError{err: fmt.Errorf("reel: read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode >= 500 {
			return &retryableError{err: fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, string(respBody))}
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return &retryableError{err: fmt.Errorf("%w: %s", ErrRateLimited, string(respBody))}
		}
		return fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("reel: unmarshal response: %w", err)
		}
	}

	return nil
}

// retryableError wraps errors that should be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryable returns true if the error should be retried.
func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
