package speech

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

// Output defaults matching the downstream mux stage's expectations.
const (
	defaultVoiceID    = "joanna"
	defaultFormat     = "mp3"
	defaultSampleRate = 24000
)

// Static errors for speech client operations.
var (
	// ErrTokenNotSet is returned when no API token is configured.
	ErrTokenNotSet = errors.New("speech: SPEECH_API_TOKEN environment variable is not set")
	// ErrSynthesisIDRequired is returned when the synthesis ID is not provided.
	ErrSynthesisIDRequired = errors.New("speech: synthesis ID is required")
	// ErrNoSynthesisIDReturned is returned when the submit response has no ID.
	ErrNoSynthesisIDReturned = errors.New("speech: submit failed: no synthesis ID returned")
	// ErrSubmitFailed is returned when the submit operation fails.
	ErrSubmitFailed = errors.New("speech: submit failed")
	// ErrServerError is returned when the server returns a 5xx status code.
	ErrServerError = errors.New("speech: server error")
	// ErrRateLimited is returned when the server returns a 429 status code.
	ErrRateLimited = errors.New("speech: rate limited")
	// ErrRequestFailed is returned when the request fails with a non-2xx
	// status code that is not retryable.
	ErrRequestFailed = errors.New("speech: request failed")
)

// Client defines the interface for interacting with the speech service.
type Client interface {
	// Submit starts a synthesis and returns the synthesis ID.
	Submit(ctx context.Context, req SynthesisRequest) (synthesisID string, err error)

	// Poll checks the status of a synthesis and returns the result.
	Poll(ctx context.Context, synthesisID string) (PollResult, error)
}

// HTTPClient is the HTTP implementation of the speech Client interface.
type HTTPClient struct {
	token       string
	baseURL     string
	httpClient  *http.Client
	maxRetries  int
	baseBackoff time.Duration
}

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithToken sets the API token for authentication.
func WithToken(token string) ClientOption {
	return func(hc *HTTPClient) {
		hc.token = token
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(hc *HTTPClient) {
		hc.httpClient = c
	}
}

// WithBaseURL sets a custom base URL for the speech service API.
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

// NewClient creates a new speech service HTTP client. The token can be set
// via WithToken; if not provided it is read from SPEECH_API_TOKEN.
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

	if c.token == "" {
		c.token = os.Getenv("SPEECH_API_TOKEN")
	}
	if c.token == "" {
		return nil, ErrTokenNotSet
	}

	return c, nil
}

// Submit starts a synthesis and returns the synthesis ID.
func (c *HTTPClient) Submit(ctx context.Context, req SynthesisRequest) (string, error) {
	voiceID := req.VoiceID
	if voiceID == "" && req.VoiceSamplesPrefix == "" {
		voiceID = defaultVoiceID
	}

	reqBody := synthesisRequest{
		Text:               req.Text,
		VoiceID:            voiceID,
		VoiceSamplesPrefix: req.VoiceSamplesPrefix,
		Format:             defaultFormat,
		SampleRate:         defaultSampleRate,
		OutputKey:          req.OutputKey,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("speech: marshal request: %w", err)
	}

	url := c.baseURL + "/v1/speech"

	var resp synthesisResponse
	if err := c.doRequestWithRetry(ctx, http.MethodPost, url, bodyBytes, &resp); err != nil {
		return "", err
	}

	if resp.ID == "" {
		if resp.Error != "" {
			return "", fmt.Errorf("%w: %s", ErrSubmitFailed, resp.Error)
		}
		return "", ErrNoSynthesisIDReturned
	}

	return resp.ID, nil
}

// Poll checks the status of a synthesis and returns the result.
func (c *HTTPClient) Poll(ctx context.Context, synthesisID string) (PollResult, error) {
	if synthesisID == "" {
		return PollResult{}, ErrSynthesisIDRequired
	}

	url := fmt.Sprintf("%s/v1/speech/%s", c.baseURL, synthesisID)

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
		result.AudioKey = resp.Output.AudioKey
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
				return fmt.Errorf("speech: context cancelled: %w", ctx.Err())
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

	return fmt.Errorf("speech: max retries exceeded: %w", lastErr)
}

// doRequest performs a single HTTP request.
func (c *HTTPClient) doRequest(ctx context.Context, method, url string, body []byte, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("speech: create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &retryableError{err: fmt.Errorf("speech: request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &retryableError{err: fmt.Errorf("speech: read response: %w", err)}
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
			return fmt.Errorf("speech: unmarshal response: %w", err)
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
