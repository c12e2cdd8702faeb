package syncengine

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/webitel/im-sync-engine/internal/conflict"
	"github.com/webitel/im-sync-engine/internal/domain/model"
	"github.com/webitel/im-sync-engine/internal/syncerrors"
)

type entryResult int

const (
	entryOther entryResult = iota
	entrySynced
	entryFailed
)

// runDrainCycle is the algorithm in spec §4.5: single-flight per
// coordinator (P5), selects a bounded batch in (created_at, id) order
// (P2), fans dispatch out up to MaxConcurrent (grounded on
// internal/service/peer_enricher.go's errgroup.WithContext use), and
// never aborts on a per-entry failure — only a whole-cycle storage
// failure does that.
func (c *Coordinator) runDrainCycle(ctx context.Context) (int, int, error) {
	c.mu.Lock()
	if c.draining || c.shutdown {
		c.mu.Unlock()
		return 0, 0, nil
	}
	c.draining = true
	c.mu.Unlock()

	defer func() {
		now := time.Now()
		c.mu.Lock()
		c.draining = false
		c.lastSyncAt = &now
		c.mu.Unlock()
	}()

	ctx, span := c.tracer.Start(ctx, "drain_cycle")
	defer span.End()

	c.emit(model.NewEvent(model.EventSyncStarted, nil))

	batch, err := c.store.NextBatch(ctx, c.cfg.BatchSize)
	if err != nil {
		werr := &syncerrors.StorageError{Op: "drain_next_batch", Err: err}
		c.emit(model.NewEvent(model.EventSyncFailed, map[string]any{"error": werr.Error()}))
		c.hooks.safeSyncError(werr, nil, c.logger.Error)
		return 0, 0, werr
	}

	if len(batch) == 0 {
		c.emit(model.NewEvent(model.EventSyncCompleted, model.SyncCompletedData{}))
		return 0, 0, nil
	}

	c.hooks.safeBeforeSync(batch, c.logger.Warn)

	// [RETRY_SPACING] entries whose backoff window has not yet elapsed
	// stay pending for a later cycle rather than being re-dispatched
	// early just because some other trigger woke this cycle up.
	ready := make([]model.Entry, 0, len(batch))
	for _, e := range batch {
		if c.isReady(e) {
			ready = append(ready, e)
		}
	}

	var syncedCount, failedCount int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxConcurrent)

	for _, entry := range ready {
		entry := entry
		g.Go(func() error {
			c.mu.Lock()
			shuttingDown := c.shutdown
			c.mu.Unlock()
			if shuttingDown {
				return nil
			}

			switch c.processEntry(gctx, entry) {
			case entrySynced:
				atomic.AddInt64(&syncedCount, 1)
			case entryFailed:
				atomic.AddInt64(&failedCount, 1)
			}
			return nil
		})
	}
	_ = g.Wait()

	synced := int(syncedCount)
	failed := int(failedCount)

	if synced > 0 {
		c.hooks.safeSyncSuccess(batch, c.logger.Warn)
	}

	c.emitQueueChanged(ctx)
	c.emit(model.NewEvent(model.EventSyncCompleted, model.SyncCompletedData{Synced: synced, Errors: failed}))

	if c.syncedCounter != nil {
		c.syncedCounter.Add(ctx, int64(synced))
	}
	if c.failedCounter != nil {
		c.failedCounter.Add(ctx, int64(failed))
	}

	return synced, failed, nil
}

func (c *Coordinator) isReady(e model.Entry) bool {
	if e.Attempts == 0 || e.LastAttemptAt == nil {
		return true
	}
	return time.Since(*e.LastAttemptAt) >= c.scheduler.Delay(e.Attempts)
}

// processEntry dispatches a single entry and applies its outcome.
func (c *Coordinator) processEntry(ctx context.Context, entry model.Entry) entryResult {
	if err := c.store.SetStatus(ctx, entry.ID, model.StatusSyncing, false); err != nil {
		c.logger.Error("failed to mark entry syncing", "id", entry.ID, "error", err)
		return entryOther
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	outcome, err := c.breakers.dispatch(callCtx, entry.Kind, func(ctx context.Context) (Outcome, error) {
		return c.callAdapter(ctx, entry)
	})
	if err != nil && outcome.Kind == 0 {
		// [CIRCUIT_OPEN_OR_TRANSPORT] the breaker short-circuited, or
		// the adapter call errored below the taxonomy (e.g. context
		// deadline): treated as retryable per spec §5.
		outcome = Outcome{
			Kind: OutcomeRetryableError,
			Err:  &syncerrors.AdapterError{Kind: syncerrors.AdapterRetryable, Code: "transport", Message: err.Error()},
		}
	}

	switch outcome.Kind {
	case OutcomeOK:
		if serr := c.store.SetStatus(ctx, entry.ID, model.StatusSynced, false); serr != nil {
			c.logger.Error("failed to mark entry synced", "id", entry.ID, "error", serr)
		}
		synced := entry
		synced.Status = model.StatusSynced
		c.emit(model.NewEvent(model.EventItemSynced, model.ItemOutcomeData{Entry: synced}))
		return entrySynced

	case OutcomeConflict:
		return c.handleConflict(ctx, entry, outcome)

	default: // OutcomeRetryableError, OutcomePermanentError
		return c.handleFailure(ctx, entry, outcome)
	}
}

func (c *Coordinator) callAdapter(ctx context.Context, entry model.Entry) (Outcome, error) {
	switch OperationOf(entry.Payload) {
	case OpDelete:
		return c.adapter.Delete(ctx, entry.Kind, entry.ID)
	case OpUpdate:
		return c.adapter.Update(ctx, entry.Kind, entry.ID, entry.Payload)
	default:
		return c.adapter.Create(ctx, entry.Kind, entry.Payload)
	}
}

func (c *Coordinator) handleFailure(ctx context.Context, entry model.Entry, outcome Outcome) entryResult {
	retryable := outcome.Kind == OutcomeRetryableError
	if outcome.Err != nil {
		retryable = outcome.Err.Retryable()
	}

	attemptJustMade := entry.Attempts + 1

	if retryable && c.scheduler.ShouldRetry(attemptJustMade) {
		if serr := c.store.SetStatus(ctx, entry.ID, model.StatusPending, true); serr != nil {
			c.logger.Error("failed to requeue entry for retry", "id", entry.ID, "error", serr)
		}
		// Wake no earlier than Delay(attemptJustMade): isReady skips the
		// row until then, and a wake-up that finds it not yet due would
		// leave it waiting for the periodic ticker.
		delay := c.scheduler.DelayWithJitter(attemptJustMade, 0)
		if base := c.scheduler.Delay(attemptJustMade); delay < base {
			delay = base
		}
		time.AfterFunc(delay, func() { c.scheduleDrain(0) })
		return entryOther
	}

	if serr := c.store.SetStatus(ctx, entry.ID, model.StatusFailed, true); serr != nil {
		c.logger.Error("failed to mark entry failed", "id", entry.ID, "error", serr)
	}

	failedEntry := entry
	failedEntry.Status = model.StatusFailed
	msg := ""
	if outcome.Err != nil {
		msg = outcome.Err.Error()
	}
	c.emit(model.NewEvent(model.EventItemFailed, model.ItemOutcomeData{Entry: failedEntry, Error: msg}))
	return entryFailed
}

func (c *Coordinator) handleConflict(ctx context.Context, entry model.Entry, outcome Outcome) entryResult {
	decision := c.resolver.Resolve(entry, outcome.ServerState)

	switch decision.Kind {
	case conflict.DecisionReenqueue:
		if err := c.store.Delete(ctx, entry.ID); err != nil {
			c.logger.Error("conflict: failed to delete prior entry", "id", entry.ID, "error", err)
		}
		resolved := model.Entry{
			ID:        entry.ID,
			Kind:      entry.Kind,
			Payload:   decision.Payload,
			Status:    model.StatusPending,
			Attempts:  0,
			CreatedAt: entry.CreatedAt,
			UpdatedAt: time.Now(),
		}
		if err := c.store.Put(ctx, resolved); err != nil {
			c.logger.Error("conflict: failed to re-enqueue resolved entry", "id", entry.ID, "error", err)
		}

	case conflict.DecisionDropLocal:
		if err := c.store.Delete(ctx, entry.ID); err != nil {
			c.logger.Error("conflict: failed to drop local entry", "id", entry.ID, "error", err)
		}

	default: // DecisionPark
		if err := c.store.SetStatus(ctx, entry.ID, model.StatusConflict, false); err != nil {
			c.logger.Error("conflict: failed to park entry", "id", entry.ID, "error", err)
		}
	}

	return entryOther
}
