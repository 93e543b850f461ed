package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/BadgerOps/sdkupdate/internal/safety"
)

// DefaultRetryCount is the number of attempts made to open a URL.
const DefaultRetryCount = 3

// Client opens byte streams for http(s) and file URLs, retrying transient
// connection failures.
type Client struct {
	httpClient  *http.Client
	logger      *slog.Logger
	userAgent   string
	retryCount  int
	backoffFunc func(attempt int) time.Duration
}

// NewClient creates a new download client with the given logger.
func NewClient(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           (&net.Dialer{Timeout: 30 * time.Second}).DialContext,
				TLSHandshakeTimeout:   15 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
				IdleConnTimeout:       90 * time.Second,
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
			},
			// No overall Timeout; body reads can take as long as needed.
			// Context cancellation still works for user-initiated cancel.
		},
		logger:      logger,
		userAgent:   "sdkupdate/1.0",
		retryCount:  DefaultRetryCount,
		backoffFunc: calculateBackoffDelay,
	}
}

// SetRetryCount overrides the number of attempts made by Open.
func (c *Client) SetRetryCount(n int) {
	if n <= 0 {
		n = 1
	}
	c.retryCount = n
}

// Open returns a readable stream for rawURL. The caller must close it.
// http and https URLs are fetched with GET; file URLs and plain paths are
// opened from the local filesystem.
func (c *Client) Open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}

	switch u.Scheme {
	case "file":
		return openLocal(u.Path)
	case "":
		return openLocal(rawURL)
	case "http", "https":
	default:
		return nil, fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}

	if _, err := safety.ValidateHTTPURL(rawURL); err != nil {
		return nil, err
	}
	if u.Scheme == "http" && !safety.IsLoopbackHost(u) {
		c.logger.Debug("fetching over plain http", "url", rawURL)
	}

	var lastErr error
	for attempt := 1; attempt <= c.retryCount; attempt++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("open cancelled: %w", ctx.Err())
		default:
		}

		body, err := c.openAttempt(ctx, rawURL)
		if err == nil {
			return body, nil
		}

		lastErr = err
		c.logger.Warn("open attempt failed", "url", rawURL, "attempt", attempt, "error", err)

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if shouldNotRetry(err) {
			return nil, err
		}

		if attempt < c.retryCount {
			delay := c.backoffFunc(attempt)
			c.logger.Debug("retrying open", "url", rawURL, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, fmt.Errorf("open cancelled during retry: %w", ctx.Err())
			}
		}
	}

	return nil, fmt.Errorf("open failed after %d attempts: %w", c.retryCount, lastErr)
}

// openAttempt performs a single GET and returns the response body on a 2xx status.
func (c *Client) openAttempt(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := safety.ReadAllWithLimit(resp.Body, 4096)
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}
	}

	c.logger.Debug("opened stream", "url", rawURL, "content_length", resp.ContentLength)
	return resp.Body, nil
}

func openLocal(path string) (io.ReadCloser, error) {
	if path == "" {
		return nil, fmt.Errorf("empty file path")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, nil
}

// calculateBackoffDelay calculates exponential backoff with jitter.
// Base delay is 1s, doubles each attempt, plus random jitter up to half the delay.
func calculateBackoffDelay(attempt int) time.Duration {
	baseDelay := time.Second
	exponentialDelay := time.Duration(math.Pow(2, float64(attempt-1))) * baseDelay
	maxJitter := exponentialDelay / 2
	jitter := time.Duration(rand.Int63n(int64(maxJitter)))
	return exponentialDelay + jitter
}

// shouldNotRetry returns true if the error should not trigger a retry.
func shouldNotRetry(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		// Don't retry on 4xx errors except 429 (Too Many Requests)
		if httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 && httpErr.StatusCode != 429 {
			return true
		}
	}
	return false
}

// HTTPError represents an HTTP error response.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error %d: %s", e.StatusCode, e.Status)
}
