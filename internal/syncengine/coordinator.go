// Package syncengine implements the Sync Coordinator (C5): the central
// state machine that owns the drain loop, mediating between the
// outbox, the network observer, the retry scheduler, the conflict
// resolver, and the pluggable Adapter.
package syncengine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/webitel/im-sync-engine/internal/conflict"
	"github.com/webitel/im-sync-engine/internal/domain/model"
	"github.com/webitel/im-sync-engine/internal/lifecycle"
	"github.com/webitel/im-sync-engine/internal/network"
	"github.com/webitel/im-sync-engine/internal/outbox"
	"github.com/webitel/im-sync-engine/internal/retry"
	"github.com/webitel/im-sync-engine/internal/syncerrors"
)

const (
	enqueueDebounce    = 100 * time.Millisecond
	networkDebounce    = time.Second
	foregroundDebounce = 500 * time.Millisecond
)

// SyncResult is returned by ForceSync.
type SyncResult struct {
	Success bool
	Synced  int
	Errors  int
}

// Status is returned by Status().
type Status struct {
	Active     bool
	LastSyncAt *time.Time
	Pending    int
	Failed     int
	Online     bool
	Syncing    bool
}

// Coordinator is the single instance that owns the drain loop (C5).
// Interface guard-free by design: unlike the teacher's Hub/Hubber
// split, the coordinator is consumed directly by cmd/ — there is only
// ever one implementation, so no interface indirection is introduced
// for its own sake.
type Coordinator struct {
	store     outbox.Store
	observer  network.Observer
	scheduler retry.Scheduler
	resolver  *conflict.Resolver
	adapter   Adapter
	breakers  *breakerRegistry
	app       lifecycle.Lifecycle

	cfg   Config
	hooks Hooks

	logger *slog.Logger
	tracer trace.Tracer

	syncedCounter metric.Int64Counter
	failedCounter metric.Int64Counter

	// [COORDINATOR_LOCAL_STATE] mu guards the fields from here down to
	// fgSubbed (active/draining flags, ticker, debounce timer,
	// subscriptions); the listener registry has its own listenersMu.
	mu         sync.Mutex
	active     bool
	draining   bool
	lastSyncAt *time.Time
	shutdown   bool

	ticker     *time.Ticker
	tickerStop chan struct{}

	enqueueTimer *time.Timer

	netToken int
	fgSubbed bool

	listenersMu sync.Mutex
	nextTok     int
	listeners   map[int]Listener
}

// New constructs a Coordinator; call Initialize before Start.
func New(store outbox.Store, observer network.Observer, adapter Adapter, app lifecycle.Lifecycle, cfg Config, hooks Hooks, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:     store,
		observer:  observer,
		scheduler: retry.New(cfg.retryConfig()),
		resolver:  conflict.New(cfg.ConflictStrategy),
		adapter:   adapter,
		breakers:  newBreakerRegistry(),
		app:       app,
		cfg:       cfg,
		hooks:     hooks,
		logger:    logger,
		tracer:    otel.Tracer("syncengine"),
		listeners: make(map[int]Listener),
	}
}

// Initialize initialises C1/C2, installs network and foreground
// subscriptions, and validates Config. Idempotent.
func (c *Coordinator) Initialize(ctx context.Context) error {
	if err := c.cfg.Validate(); err != nil {
		return err
	}

	if err := c.store.Init(ctx); err != nil {
		return &syncerrors.StorageError{Op: "initialize", Err: err}
	}
	if err := c.observer.Init(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	alreadySubbed := c.netToken != 0
	c.mu.Unlock()

	if !alreadySubbed {
		tok := c.observer.Subscribe(c.onNetworkChange)
		c.mu.Lock()
		c.netToken = tok
		c.mu.Unlock()
	}

	if c.app != nil {
		c.mu.Lock()
		already := c.fgSubbed
		c.fgSubbed = true
		c.mu.Unlock()
		if !already {
			c.app.OnForeground(c.onForeground)
		}
	}

	if meter := otel.GetMeterProvider().Meter("syncengine"); meter != nil {
		c.syncedCounter, _ = meter.Int64Counter("syncengine.items_synced")
		c.failedCounter, _ = meter.Int64Counter("syncengine.items_failed")
	}

	return nil
}

// Start transitions to active, starts the periodic ticker, and
// triggers one opportunistic drain if online.
func (c *Coordinator) Start() {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return
	}
	c.active = true
	c.tickerStop = make(chan struct{})
	ticker := time.NewTicker(c.cfg.SyncInterval)
	c.ticker = ticker
	stopCh := c.tickerStop
	c.mu.Unlock()

	go c.tickerLoop(ticker, stopCh)

	if c.observer.IsOnline() {
		c.scheduleDrain(0)
	}
}

func (c *Coordinator) tickerLoop(ticker *time.Ticker, stop chan struct{}) {
	for {
		select {
		case <-stop:
			ticker.Stop()
			return
		case <-ticker.C:
			c.mu.Lock()
			active := c.active
			c.mu.Unlock()
			if active && c.observer.IsOnline() {
				c.scheduleDrain(0)
			}
		}
	}
}

// Stop transitions to inactive and cancels the ticker; an in-flight
// drain cycle runs to completion.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.active = false
	stop := c.tickerStop
	c.tickerStop = nil
	c.mu.Unlock()

	if stop != nil {
		close(stop)
	}
}

// Enqueue writes to the outbox and, if active/online/idle, schedules a
// debounced drain.
func (c *Coordinator) Enqueue(ctx context.Context, id, kind string, payload map[string]any) error {
	now := time.Now()
	entry := model.Entry{
		ID:        id,
		Kind:      kind,
		Payload:   payload,
		Status:    model.StatusPending,
		Attempts:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.store.Put(ctx, entry); err != nil {
		return &syncerrors.StorageError{Op: "enqueue", Err: err}
	}

	c.emit(model.NewEvent(model.EventItemQueued, model.ItemQueuedData{ID: id, Kind: kind}))
	c.emitQueueChanged(ctx)

	c.mu.Lock()
	active := c.active
	c.mu.Unlock()

	if active && c.observer.IsOnline() && !c.isDraining() {
		c.scheduleDrain(enqueueDebounce)
	}
	return nil
}

// ForceSync waits for any in-flight drain to finish, then runs one
// drain cycle and returns that cycle's counts; fails fast if offline.
func (c *Coordinator) ForceSync(ctx context.Context) (SyncResult, error) {
	if !c.observer.IsOnline() {
		return SyncResult{}, &syncerrors.NotOnlineError{}
	}

	// [SINGLE_FLIGHT] if a cycle is already running, wait for it to end
	// rather than overlapping it; the result reported is that of the
	// cycle started below, not of the one waited for.
	for c.isDraining() {
		select {
		case <-ctx.Done():
			return SyncResult{}, ctx.Err()
		case <-time.After(20 * time.Millisecond):
		}
	}

	synced, errs, err := c.runDrainCycle(ctx)
	return SyncResult{Success: err == nil, Synced: synced, Errors: errs}, err
}

// Status reports the coordinator's current view of the world.
func (c *Coordinator) Status(ctx context.Context) (Status, error) {
	stats, err := c.store.Stats(ctx)
	if err != nil {
		return Status{}, &syncerrors.StorageError{Op: "status", Err: err}
	}

	c.mu.Lock()
	st := Status{
		Active:     c.active,
		LastSyncAt: c.lastSyncAt,
		Syncing:    c.draining,
	}
	c.mu.Unlock()

	st.Pending = stats.Pending
	st.Failed = stats.Failed
	st.Online = c.observer.IsOnline()
	return st, nil
}

// Subscribe registers a listener and returns a token for Unsubscribe.
func (c *Coordinator) Subscribe(l Listener) int {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.nextTok++
	tok := c.nextTok
	c.listeners[tok] = l
	return tok
}

func (c *Coordinator) Unsubscribe(token int) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	delete(c.listeners, token)
}

// RetryFailed flips every failed row back to pending with attempts=0.
func (c *Coordinator) RetryFailed(ctx context.Context) error {
	failed, err := c.store.EntriesByStatus(ctx, model.StatusFailed)
	if err != nil {
		return &syncerrors.StorageError{Op: "retry_failed", Err: err}
	}
	for _, e := range failed {
		e.Status = model.StatusPending
		e.Attempts = 0
		if err := c.store.Put(ctx, e); err != nil {
			return &syncerrors.StorageError{Op: "retry_failed", Err: err}
		}
	}

	c.emitQueueChanged(ctx)

	c.mu.Lock()
	active := c.active
	c.mu.Unlock()
	if active && c.observer.IsOnline() {
		c.scheduleDrain(0)
	}
	return nil
}

// PurgeSynced deletes rows with status synced.
func (c *Coordinator) PurgeSynced(ctx context.Context) (int, error) {
	n, err := c.store.DeleteWhere(ctx, model.StatusSynced)
	if err != nil {
		return 0, &syncerrors.StorageError{Op: "purge_synced", Err: err}
	}
	return n, nil
}

// Shutdown stops the coordinator, unsubscribes listeners, and closes
// the store.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.Stop()

	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return nil
	}
	c.shutdown = true
	netTok := c.netToken
	timer := c.enqueueTimer
	c.mu.Unlock()

	if netTok != 0 {
		c.observer.Unsubscribe(netTok)
	}
	if timer != nil {
		timer.Stop()
	}

	c.listenersMu.Lock()
	c.listeners = make(map[int]Listener)
	c.listenersMu.Unlock()

	return c.store.Close()
}
