// Package inference implements the remote-inference HTTP client:
// request/response protocol, retry with bounded exponential backoff, and
// health/list/generate verbs (component C).
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ErrMaxRetriesExceeded is returned, wrapped, when Generate exhausts
// max_retries without a successful attempt (spec.md §4.2), mirroring the
// reference framework's resilience.retry.go use of
// core.ErrMaxRetriesExceeded.
var ErrMaxRetriesExceeded = errors.New("inference: maximum retries exceeded")

// Request is the wire shape POSTed to /generate (spec.md §4.2).
type Request struct {
	Prompt      string                 `json:"prompt"`
	Constraints interface{}            `json:"constraints"`
	MaxTokens   int                    `json:"max_tokens"`
	Temperature float64                `json:"temperature"`
	Model       string                 `json:"model"`
	Context     map[string]interface{} `json:"context,omitempty"`
}

// Stats is the performance-metadata block returned alongside generated
// text (spec.md §4.2).
type Stats struct {
	TotalTimeMs        int64   `json:"total_time_ms"`
	TimePerTokenUs      float64 `json:"time_per_token_us"`
	ConstraintChecks    int64   `json:"constraint_checks"`
	AvgConstraintCheckUs float64 `json:"avg_constraint_check_us"`
}

// Response is the decoded /generate body.
type Response struct {
	GeneratedText   string `json:"generated_text"`
	TokensGenerated int    `json:"tokens_generated"`
	Model           string `json:"model"`
	Stats           Stats  `json:"stats"`
}

// Confidence derives a [0,1] confidence score from the response's
// reported stats (spec.md §4.2 "Confidence derivation from stats").
func (r *Response) Confidence() float64 {
	if r.TokensGenerated == 0 {
		return 0
	}
	speedScore := 1 - min1(r.Stats.TimePerTokenUs/10000)
	constraintScore := 1 - min1(r.Stats.AvgConstraintCheckUs/1000)
	confidence := 0.6*speedScore + 0.4*constraintScore
	return clamp01(confidence)
}

func min1(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Config configures one Client instance (spec.md §6 "Inference").
type Config struct {
	EndpointURL string
	APIKey      string
	Model       string
	Timeout     time.Duration
	EnableRetry bool
	MaxRetries  int
}

// Client talks to a single inference endpoint over HTTP, with retry and
// a shared connection pool (spec.md §5 "HTTP client connection pool").
type Client struct {
	cfg    Config
	http   *http.Client
	sleep  func(context.Context, time.Duration) error
}

// NewClient builds a Client for the given endpoint configuration. The
// http.Client's own Timeout is left at zero — the per-attempt deadline is
// applied explicitly via context from cfg.Timeout. Each Client targets one
// endpoint; all Clients share the default transport's pooled connections
// (spec.md §5).
func NewClient(cfg Config) *Client {
	return &Client{
		cfg:   cfg,
		http:  &http.Client{},
		sleep: sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Health issues GET /health; success iff status is in [200,299].
func (c *Client) Health(ctx context.Context) (bool, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}

// ListModels issues GET /models and decodes a JSON string array.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/models", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	var models []string
	if err := json.Unmarshal(body, &models); err != nil {
		return nil, fmt.Errorf("decoding /models response: %w", err)
	}
	return models, nil
}

// HTTPStatusError carries a non-2xx response's status code and body
// (spec.md §7 "HttpStatusError(code, body)").
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("inference: http status %d: %s", e.StatusCode, e.Body)
}

// Generate issues POST /generate, retrying per the policy in spec.md
// §4.2: up to max_attempts total (first attempt plus retries), backoff
// before attempt n (n>=2) is 100ms·2^(n-2), disabled when EnableRetry is
// false (max_attempts=1). Cancellation aborts immediately without
// sleeping the backoff (spec.md §9 "Retry with cancellation").
func (c *Client) Generate(ctx context.Context, req Request) (*Response, error) {
	maxAttempts := c.cfg.MaxRetries
	if !c.cfg.EnableRetry {
		maxAttempts = 1
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.Multiplier = 2
	bo.RandomizationFactor = 0

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := c.generateOnce(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}

		delay := bo.NextBackOff()
		if delay == backoff.Stop {
			break
		}
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("inference: generate failed after %d attempt(s): %w: %w", maxAttempts, ErrMaxRetriesExceeded, lastErr)
}

func (c *Client) generateOnce(ctx context.Context, req Request) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("inference: encoding request: %w", err)
	}

	httpReq, err := c.newRequest(attemptCtx, http.MethodPost, "/generate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err // transport error: retryable
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var out Response
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("inference: decoding response: %w", err)
	}
	return &out, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.EndpointURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("inference: building request: %w", err)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	return req, nil
}
