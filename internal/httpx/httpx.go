// Package httpx holds the request plumbing shared by the Jira and GitLab clients.
package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/jira2gitlab/j2g/internal/logging"
)

// APIError is a non-2xx response from a tracker API.
type APIError struct {
	Service    string
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API returned %d for %s %s: %s", e.Service, e.StatusCode, e.Method, e.Path, truncate(e.Body, 512))
}

// StatusCode extracts the HTTP status of an *APIError anywhere in err's chain.
// It returns 0 if there is none.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsNotFound reports whether err is a 404 API error.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Requester sends requests and turns failures into errors.
// Only HTTP 429 is ever retried, and only when MaxRetries > 0.
type Requester struct {
	Service    string
	HTTPClient *http.Client
	MaxRetries int
	Logger     *slog.Logger

	// NewBackOff overrides the retry schedule; used by tests.
	NewBackOff func() backoff.BackOff
}

// Do sends the request produced by build. build is called once per attempt
// so request bodies can be replayed.
func (r *Requester) Do(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) (*Response, error) {
	logger := logging.OrDiscard(r.Logger)
	client := r.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	var result *Response
	attempt := 0
	op := func() error {
		attempt++
		req, err := build(ctx)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}

		start := time.Now()
		resp, err := client.Do(req)
		if err != nil {
			return backoff.Permanent(err)
		}
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("read response: %w", err))
		}

		logger.Debug("http request",
			slog.String("service", r.Service),
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
			slog.Int("status", resp.StatusCode),
			slog.Int("attempt", attempt),
			slog.Duration("duration", time.Since(start)),
			slog.Any("headers", logging.SanitizeHeaders(req.Header)),
		)

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := &APIError{
				Service:    r.Service,
				Method:     req.Method,
				Path:       req.URL.Path,
				StatusCode: resp.StatusCode,
				Body:       string(body),
			}
			if resp.StatusCode == http.StatusTooManyRequests {
				logger.Warn("rate limited", slog.String("service", r.Service),
					slog.String("path", req.URL.Path), slog.Int("attempt", attempt))
				return apiErr
			}
			return backoff.Permanent(apiErr)
		}

		result = &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}
		return nil
	}

	maxRetries := r.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(r.backOff(), uint64(maxRetries)), ctx)); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *Requester) backOff() backoff.BackOff {
	if r.NewBackOff != nil {
		return r.NewBackOff()
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxElapsedTime = 2 * time.Minute
	return bo
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
