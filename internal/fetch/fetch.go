// Package fetch retrieves raw content for a content item: YouTube
// transcripts via fetch_youtube, and web articles via fetch_web. Both
// transparently support an optional rotating HTTP proxy and translate
// transport failures into the package's error taxonomy.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"lodestar/internal/config"
)

// Client is the shared HTTP client used by both fetch strategies. It
// is safe for concurrent use.
type Client struct {
	http      *http.Client
	hasProxy  bool
	maxRetries int
}

// NewClient builds a fetch Client from the process proxy configuration.
// When proxy.url is empty, requests go out directly and the caller
// should expect ErrRateLimited to be surfaced far more readily.
func NewClient(cfg config.Proxy) (*Client, error) {
	transport := &http.Transport{}
	hasProxy := cfg.URL != ""

	if hasProxy {
		proxyURL, err := url.Parse(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		if cfg.Username != "" {
			proxyURL.User = url.UserPassword(cfg.Username, cfg.Password)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return &Client{
		http:       &http.Client{Transport: transport, Timeout: 30 * time.Second},
		hasProxy:   hasProxy,
		maxRetries: 3,
	}, nil
}

// HasProxy reports whether this client routes through a rotating
// proxy; the Ingestion Controller uses this to pick its concurrency
// bound for the source.
func (c *Client) HasProxy() bool { return c.hasProxy }

// do executes req with bounded exponential-backoff retries on
// ErrNetworkError and ErrRateLimited, classifying the final outcome
// into the package's error taxonomy.
func (c *Client) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff(attempt)):
			}
		}

		resp, err := c.http.Do(req.WithContext(ctx))
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrNetworkError, err)
			continue
		}

		switch resp.StatusCode {
		case http.StatusOK:
			return resp, nil
		case http.StatusTooManyRequests:
			resp.Body.Close()
			lastErr = ErrRateLimited
			continue
		case http.StatusNotFound:
			resp.Body.Close()
			return nil, ErrNotFound
		case http.StatusForbidden, http.StatusUnauthorized:
			resp.Body.Close()
			return nil, ErrForbidden
		default:
			resp.Body.Close()
			lastErr = fmt.Errorf("%w: unexpected status %d", ErrNetworkError, resp.StatusCode)
		}
	}
	if lastErr == nil {
		lastErr = ErrNetworkError
	}
	return nil, lastErr
}

func backoff(attempt int) time.Duration {
	d := time.Duration(1<<uint(attempt-1)) * time.Second
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

// IsRetryable reports whether err should be retried by the Ingestion
// Controller rather than recorded as a terminal failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrNetworkError)
}
