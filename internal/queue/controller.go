// Package queue implements the Ingestion Controller: a
// filesystem-backed work queue with pending/processing/completed
// directories, a per-source rolling rate limiter, and the per-item
// processing pipeline that drives content from a raw URL through to an
// indexed, queryable ContentItem.
package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lodestar/internal/config"
	"lodestar/internal/core"
	"lodestar/internal/logger"
)

const (
	pendingDir = "pending"
	processingDir = "processing"
	completedDir = "completed"
	failedDir = "failed"

	// itemRetryBackoff delays a retryable item's next claim attempt so
	// Run does not spin claiming and releasing it in a tight loop.
	itemRetryBackoff = 30 * time.Second
	// sourceRateLimitBackoff skips a rate-limited source for a cooldown
	// window instead of re-checking it on every pass.
	sourceRateLimitBackoff = 2 * time.Minute
	// minWakeDelay bounds how soon Run wakes to recheck backoffs, so an
	// empty batch never becomes a zero-delay busy loop.
	minWakeDelay = 1 * time.Second
)

// processor runs one work item to completion. *Pipeline is the
// production implementation; tests supply a fake.
type processor interface {
	Process(ctx context.Context, item WorkItem) error
}

// Controller owns the on-disk queue directories and drives work items
// through a processor, one worker slot at a time per the configured
// concurrency limit.
type Controller struct {
	root string
	concurrency int
	pipeline processor
	limiter *SourceRateLimiter
	log *zerolog.Logger

	mu sync.Mutex
	itemBackoff map[string]time.Time
	sourceBackoff map[string]time.Time
}

// NewController creates the pending/processing/completed/failed
// directories under cfg.Root if missing and returns a ready Controller.
func NewController(cfg config.Queue, rateLimit config.RateLimit, pipeline *Pipeline) (*Controller, error) {
	for _, dir := range []string{pendingDir, processingDir, completedDir, failedDir} {
		if err := os.MkdirAll(filepath.Join(cfg.Root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("create queue directory %s: %w", dir, err)
		}
	}

	limiter, err := NewSourceRateLimiter(cfg.RateLimitDBPath, map[string]config.SourceRateLimit{
		"youtube": rateLimit.YouTube,
		"web": rateLimit.Web,
	})
	if err != nil {
		return nil, fmt.Errorf("init rate limiter: %w", err)
	}

	concurrency := cfg.MaxConcurrentNoProxy
	if pipeline.Fetcher != nil && pipeline.Fetcher.HasProxy() {
		concurrency = cfg.MaxConcurrentProxy
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	return &Controller{
		root: cfg.Root,
		concurrency: concurrency,
		pipeline: pipeline,
		limiter: limiter,
		log: logger.Get(),
		itemBackoff: map[string]time.Time{},
		sourceBackoff: map[string]time.Time{},
	}, nil
}

func (c *Controller) Close() error { return c.limiter.Close() }

// Enqueue writes item as a new pending work item, named by the current
// time so Run() processes items in submission order.
func (c *Controller) Enqueue(item WorkItem) error {
	// Timestamp prefix keeps listPending's lexical sort FIFO; the uuid
	// suffix is the item's stable id, safe even if two items land in
	// the same nanosecond.
	name := fmt.Sprintf("%d-%s.csv", time.Now().UnixNano(), uuid.NewString())
	return writeWorkItemCSV(filepath.Join(c.root, pendingDir, name), item)
}

// Resume moves any item left in processing/ back to pending/, for
// recovery after a crash or unclean shutdown.
func (c *Controller) Resume() error {
	dir := filepath.Join(c.root, processingDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("list processing directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		src := filepath.Join(dir, entry.Name())
		dst := filepath.Join(c.root, pendingDir, entry.Name())
		if err := os.Rename(src, dst); err != nil {
			return fmt.Errorf("resume %s: %w", entry.Name(), err)
		}
		c.log.Warn().Str("item", entry.Name()).Msg("resumed interrupted work item")
	}
	return nil
}

// Run drives the queue until ctx is cancelled or pending/ is empty,
// processing up to the controller's concurrency limit at once.
func (c *Controller) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		names, err := c.listPending()
		if err != nil {
			return fmt.Errorf("list pending items: %w", err)
		}
		if len(names) == 0 {
			return nil
		}

		batch := c.selectBatch(names)
		if len(batch) == 0 {
			wait := c.nextWakeDelay()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}

		type result struct {
			name string
			err error
		}
		results := make(chan result, len(batch))
		for _, name := range batch {
			go func(name string) {
				results <- result{name: name, err: c.processOne(ctx, name)}
			}(name)
		}
		for range batch {
			r := <-results
			if r.err != nil {
				c.log.Error().Err(r.err).Str("item", r.name).Msg("work item failed")
			}
		}
	}
}

// selectBatch filters names down to ones eligible to claim right now:
// past any per-item retry backoff and not belonging to a source
// currently cooling down from a rate-limit rejection, capped at the
// controller's concurrency limit.
func (c *Controller) selectBatch(names []string) []string {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	var batch []string
	for _, name := range names {
		if until, ok := c.itemBackoff[name]; ok {
			if now.Before(until) {
				continue
			}
			delete(c.itemBackoff, name)
		}

		if item, err := readWorkItemCSV(filepath.Join(c.root, pendingDir, name)); err == nil {
			source := workItemSource(item)
			if until, ok := c.sourceBackoff[source]; ok {
				if now.Before(until) {
					continue
				}
				delete(c.sourceBackoff, source)
			}
		}

		batch = append(batch, name)
		if len(batch) >= c.concurrency {
			break
		}
	}
	return batch
}

// nextWakeDelay reports how long Run should sleep before rechecking
// pending items when the current pass found nothing eligible, bounded
// below by minWakeDelay so it never degenerates into a busy loop.
func (c *Controller) nextWakeDelay() time.Duration {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	earliest := time.Time{}
	for _, until := range c.itemBackoff {
		if earliest.IsZero() || until.Before(earliest) {
			earliest = until
		}
	}
	for _, until := range c.sourceBackoff {
		if earliest.IsZero() || until.Before(earliest) {
			earliest = until
		}
	}
	if earliest.IsZero() {
		return minWakeDelay
	}
	if wait := earliest.Sub(now); wait > minWakeDelay {
		return wait
	}
	return minWakeDelay
}

// listPending returns pending item file names sorted by submission
// order (the unix-nano timestamp prefix sorts lexically).
func (c *Controller) listPending() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(c.root, pendingDir))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// processOne moves one pending item into processing/, runs the
// pipeline, then routes it to completed/ on success, back to pending/
// for a retryable or rate-limited failure, or to failed/ for a terminal
// one, depending on the error's retry classification.
func (c *Controller) processOne(ctx context.Context, name string) error {
	pendingPath := filepath.Join(c.root, pendingDir, name)
	processingPath := filepath.Join(c.root, processingDir, name)
	if err := os.Rename(pendingPath, processingPath); err != nil {
		return fmt.Errorf("claim %s: %w", name, err)
	}

	item, err := readWorkItemCSV(processingPath)
	if err != nil {
		return c.routeTerminal(name, fmt.Errorf("parse work item: %w", err))
	}

	source := workItemSource(item)
	if allowed, err := c.limiter.Allow(source, item.Manual); err != nil {
		return fmt.Errorf("check rate limit: %w", err)
	} else if !allowed {
		c.mu.Lock()
		c.sourceBackoff[source] = time.Now().Add(sourceRateLimitBackoff)
		c.mu.Unlock()
		return os.Rename(processingPath, pendingPath) // leave it for a later pass once the window clears
	}
	if err := c.limiter.Record(source, item.Manual); err != nil {
		return fmt.Errorf("record rate limit attempt: %w", err)
	}

	processErr := c.pipeline.Process(ctx, item)
	if processErr == nil {
		return c.routeCompleted(name)
	}
	if isRetryable(processErr) {
		c.log.Warn().Err(processErr).Str("item", name).Msg("retryable failure, returning to pending")
		c.mu.Lock()
		c.itemBackoff[name] = time.Now().Add(itemRetryBackoff)
		c.mu.Unlock()
		return os.Rename(processingPath, pendingPath)
	}
	return c.routeTerminal(name, processErr)
}

func (c *Controller) routeCompleted(name string) error {
	return os.Rename(filepath.Join(c.root, processingDir, name), filepath.Join(c.root, completedDir, name))
}

func (c *Controller) routeTerminal(name string, cause error) error {
	if err := os.Rename(filepath.Join(c.root, processingDir, name), filepath.Join(c.root, failedDir, name)); err != nil {
		return fmt.Errorf("route %s to failed: %w (original error: %v)", name, err, cause)
	}
	return cause
}

func isRetryable(err error) bool {
	return errors.Is(err, errRetryable)
}

// workItemSource reports the rate-limiter source bucket for an item:
// "youtube" for YouTube URLs, "web" for everything else.
func workItemSource(item WorkItem) string {
	kind, _, err := classifyURL(item.URL)
	if err == nil && kind == core.KindYouTubeVideo {
		return "youtube"
	}
	return "web"
}
