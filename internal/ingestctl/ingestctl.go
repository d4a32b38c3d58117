// Package ingestctl implements the Ingestion Controller (X): a paced,
// backpressured loop draining L1's unungested backlog into L3 in batches.
// Grounded on the teacher's internal/orchestrator.StartKafkaConsumer (paced
// fetch loop, worker retry-with-backoff, DLQ-on-exhaustion) adapted from a
// Kafka reader to an L1-backlog poll, and internal/rag/ingest's decision-typed
// batch outcomes for the pending/succeeded/partial/failed lifecycle.
package ingestctl

import (
	"context"
	"time"

	"github.com/JDHayesBC/Awareness-sub005/internal/capture"
	"github.com/JDHayesBC/Awareness-sub005/internal/logging"
	"github.com/JDHayesBC/Awareness-sub005/internal/ppserr"
	"github.com/JDHayesBC/Awareness-sub005/internal/texture"
)

const (
	DefaultInterval      = 2 * time.Second
	DefaultMinBatch      = 1
	DefaultMaxBatch      = 64
	DefaultSlowThreshold = 4 * time.Second
	DefaultMaxReconnect  = 5
)

// Config tunes the controller's pacing and backpressure.
type Config struct {
	Interval         time.Duration
	MinBatch         int
	MaxBatch         int
	SlowThreshold    time.Duration
	MaxReconnect     int
	ExtractionCtxFn  func(ctx context.Context, msg capture.Message) texture.ExtractionContext
}

func (c *Config) setDefaults() {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.MinBatch <= 0 {
		c.MinBatch = DefaultMinBatch
	}
	if c.MaxBatch <= 0 {
		c.MaxBatch = DefaultMaxBatch
	}
	if c.SlowThreshold <= 0 {
		c.SlowThreshold = DefaultSlowThreshold
	}
	if c.MaxReconnect <= 0 {
		c.MaxReconnect = DefaultMaxReconnect
	}
	if c.ExtractionCtxFn == nil {
		c.ExtractionCtxFn = func(context.Context, capture.Message) texture.ExtractionContext {
			return texture.ExtractionContext{}
		}
	}
}

// Controller owns the drain loop's mutable pacing state (current batch size)
// across iterations.
type Controller struct {
	capture *capture.Store
	texture *texture.Store
	cfg     Config

	batchSize int
}

// New constructs a Controller with cfg (zero values filled with defaults).
func New(cap *capture.Store, tex *texture.Store, cfg Config) *Controller {
	cfg.setDefaults()
	return &Controller{capture: cap, texture: tex, cfg: cfg, batchSize: cfg.MinBatch}
}

// Run executes the paced loop until ctx is canceled.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.RunOnce(ctx); err != nil {
				logging.Log.WithError(err).Warn("ingestctl: iteration failed")
			}
		}
	}
}

// RunOnce drains a single batch, applying one round of backpressure
// adjustment (§4.7). Calling it on an idle queue (no unungested messages) is
// a no-op — the idempotence law that re-running on a dry snapshot never
// changes state.
func (c *Controller) RunOnce(ctx context.Context) error {
	n, err := c.capture.CountUnungested(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		return nil // idle
	}

	msgs, err := c.capture.SelectUnungested(ctx, c.batchSize)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}

	startID, endID := msgs[0].ID, msgs[len(msgs)-1].ID
	channels := map[string]bool{}
	for _, m := range msgs {
		channels[m.Channel] = true
	}
	channelList := make([]string, 0, len(channels))
	for ch := range channels {
		channelList = append(channelList, ch)
	}

	batchID, err := c.texture.RecordBatch(ctx, startID, endID, channelList)
	if err != nil {
		return err
	}

	start := time.Now()
	succeededIDs, failedIDs := c.ingestWithRetry(ctx, msgs)
	elapsed := time.Since(start)

	if len(succeededIDs) > 0 {
		if err := c.capture.MarkIngested(ctx, succeededIDs, batchID); err != nil {
			return err
		}
	}
	if len(failedIDs) > 0 {
		// Schema-violation / permanently-failed messages are stamped with the
		// sentinel batch id so they are never silently retried (§4.7).
		if err := c.capture.MarkIngested(ctx, failedIDs, texture.SentinelFailedBatchID); err != nil {
			return err
		}
	}

	status := texture.BatchSucceeded
	switch {
	case len(failedIDs) > 0 && len(succeededIDs) > 0:
		status = texture.BatchPartial
	case len(failedIDs) > 0 && len(succeededIDs) == 0:
		status = texture.BatchFailed
	}
	if err := c.texture.CompleteBatch(ctx, batchID, status); err != nil {
		return err
	}

	c.adjustBatchSize(elapsed, len(msgs))
	return nil
}

// ingestWithRetry calls L3.ingest per message, retrying transient errors
// with exponential backoff up to MaxReconnect attempts; schema-violation
// errors (ppserr.InputShape/ppserr.Invariant) go straight to failed.
func (c *Controller) ingestWithRetry(ctx context.Context, msgs []capture.Message) (succeeded, failed []int64) {
	for _, m := range msgs {
		ep := texture.GraphEpisode{
			EpisodeName: "",
			Body:        m.Content,
			Channel:     m.Channel,
			Speaker:     m.AuthorName,
			Role:        string(m.AuthorRole),
			Timestamp:   m.CreatedAt,
		}
		extCtx := c.cfg.ExtractionCtxFn(ctx, m)

		ok := false
		var lastErr error
		for attempt := 1; attempt <= c.cfg.MaxReconnect; attempt++ {
			err := c.texture.Ingest(ctx, ep, extCtx)
			if err == nil {
				ok = true
				break
			}
			lastErr = err
			if !isTransient(err) {
				break // schema violation or similar: no retry
			}
			backoff := time.Duration(200*(1<<uint(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				lastErr = ctx.Err()
				attempt = c.cfg.MaxReconnect // stop retrying
			}
		}
		if ok {
			succeeded = append(succeeded, m.ID)
		} else {
			if lastErr != nil {
				logging.Log.WithError(lastErr).WithField("message_id", m.ID).Warn("ingestctl: message failed permanently")
			}
			failed = append(failed, m.ID)
		}
	}
	return succeeded, failed
}

// isTransient reports whether err is retryable. DEPENDENCY_DOWN and TIMEOUT
// are network/rate-limit-shaped; everything else (INPUT_SHAPE, INVARIANT,
// INTERNAL) is a schema-level failure that goes straight to failed.
func isTransient(err error) bool {
	switch ppserr.KindOf(err) {
	case ppserr.DependencyDown, ppserr.Timeout:
		return true
	default:
		return false
	}
}

// adjustBatchSize halves the batch size on a slow round and doubles it on a
// fast one, capped at [MinBatch, MaxBatch] (§4.7 backpressure).
func (c *Controller) adjustBatchSize(elapsed time.Duration, count int) {
	if count == 0 {
		return
	}
	perMessage := elapsed / time.Duration(count)
	switch {
	case perMessage > c.cfg.SlowThreshold:
		c.batchSize = max(c.batchSize/2, c.cfg.MinBatch)
	default:
		c.batchSize = min(c.batchSize*2, c.cfg.MaxBatch)
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
