package queue

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"lodestar/internal/config"
	"lodestar/internal/logger"
)

type fakeProcessor struct {
	err error
}

func (f *fakeProcessor) Process(ctx context.Context, item WorkItem) error { return f.err }

func newTestController(t *testing.T, pipeline processor) *Controller {
	t.Helper()
	root := t.TempDir()
	cfg := config.Queue{
		Root:                 root,
		MaxConcurrentNoProxy: 2,
		RateLimitDBPath:      filepath.Join(root, "ratelimit.db"),
	}
	for _, dir := range []string{pendingDir, processingDir, completedDir, failedDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	limiter, err := NewSourceRateLimiter(cfg.RateLimitDBPath, nil)
	if err != nil {
		t.Fatalf("NewSourceRateLimiter failed: %v", err)
	}
	t.Cleanup(func() { limiter.Close() })
	return &Controller{
		root: root, concurrency: 2, pipeline: pipeline, limiter: limiter, log: logger.Get(),
		itemBackoff: map[string]time.Time{}, sourceBackoff: map[string]time.Time{},
	}
}

func TestEnqueueThenRunCompletesItem(t *testing.T) {
	c := newTestController(t, &fakeProcessor{})
	if err := c.Enqueue(WorkItem{URL: "https://example.com/a"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(c.root, completedDir))
	if err != nil {
		t.Fatalf("read completed dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 completed item, got %d", len(entries))
	}
}

func TestRunRoutesTerminalFailureToFailedDir(t *testing.T) {
	c := newTestController(t, &fakeProcessor{err: errTerminal})
	if err := c.Enqueue(WorkItem{URL: "https://example.com/a"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(c.root, failedDir))
	if err != nil {
		t.Fatalf("read failed dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 failed item, got %d", len(entries))
	}
}

func TestRunLeavesRetryableFailureInPending(t *testing.T) {
	c := newTestController(t, &fakeProcessor{err: errRetryable})
	if err := c.Enqueue(WorkItem{URL: "https://example.com/a"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	if err := c.processOne(context.Background(), firstPending(t, c)); err != nil {
		t.Fatalf("processOne failed: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(c.root, pendingDir))
	if err != nil {
		t.Fatalf("read pending dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected retryable item to remain pending, got %d entries", len(entries))
	}
}

func TestResumeMovesProcessingBackToPending(t *testing.T) {
	c := newTestController(t, &fakeProcessor{})
	if err := c.Enqueue(WorkItem{URL: "https://example.com/a"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	name := firstPending(t, c)
	if err := os.Rename(filepath.Join(c.root, pendingDir, name), filepath.Join(c.root, processingDir, name)); err != nil {
		t.Fatalf("simulate crash: %v", err)
	}

	if err := c.Resume(); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(c.root, pendingDir, name)); err != nil {
		t.Errorf("expected item back in pending: %v", err)
	}
}

func firstPending(t *testing.T, c *Controller) string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(c.root, pendingDir))
	if err != nil || len(entries) == 0 {
		t.Fatalf("expected a pending entry: %v", err)
	}
	return entries[0].Name()
}

func TestIsRetryableClassification(t *testing.T) {
	if !isRetryable(errRetryable) {
		t.Error("expected errRetryable to be retryable")
	}
	if isRetryable(errTerminal) {
		t.Error("expected errTerminal to not be retryable")
	}
	if isRetryable(errors.New("plain")) {
		t.Error("expected an unwrapped error to not be retryable")
	}
}
