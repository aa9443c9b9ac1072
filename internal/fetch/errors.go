package fetch

import "errors"

// The Fetcher's error taxonomy. Callers (the Ingestion Controller)
// switch on these sentinels via errors.Is to decide whether an item is
// retried, rate-limit-paused, or marked permanently failed.
var (
	// ErrTranscriptUnavailable means the uploader disabled captions.
	// Terminal: the item is recorded and skipped, not retried.
	ErrTranscriptUnavailable = errors.New("fetch: transcript unavailable")

	// ErrRateLimited means the provider throttled this request.
	// Retryable: the controller pauses the source until its rolling
	// window admits the next request.
	ErrRateLimited = errors.New("fetch: rate limited")

	// ErrUnavailable means the resource exists but cannot currently be
	// fetched (e.g. a private or region-locked video).
	ErrUnavailable = errors.New("fetch: resource unavailable")

	// ErrNotFound means the external ID or URL does not resolve to any
	// resource. Terminal.
	ErrNotFound = errors.New("fetch: not found")

	// ErrForbidden means the provider refused the request outright
	// (e.g. a paywall or robots exclusion). Terminal.
	ErrForbidden = errors.New("fetch: forbidden")

	// ErrNetworkError covers transport-level failures: timeouts, DNS,
	// connection resets. Retryable with exponential backoff.
	ErrNetworkError = errors.New("fetch: network error")
)
