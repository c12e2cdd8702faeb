// Package network implements the Network Observer (C2): it tracks
// online/offline transitions and offers a forced override for tests.
package network

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Listener is invoked on every transition (including forced overrides
// that change the observable value). Delivery happens off the
// detection callback path; listeners must not call back into the
// observer synchronously.
type Listener func(online bool)

// Observer is the public contract consumed by the Sync Coordinator.
type Observer interface {
	Init(ctx context.Context) error
	IsOnline() bool
	Probe(ctx context.Context) (bool, error)
	SetForced(override *bool)
	Subscribe(l Listener) int
	Unsubscribe(token int)
	WaitForOnline(ctx context.Context, timeout time.Duration) error
}

var _ Observer = (*NetworkObserver)(nil)

// NetworkObserver is the concrete, mutex-guarded implementation.
type NetworkObserver struct {
	checker Checker

	mu       sync.RWMutex
	online   bool
	forced   *bool
	nextTok  int
	handlers map[int]Listener

	notifyCh chan bool
	stopCh   chan struct{}
	once     sync.Once
}

func New(checker Checker) *NetworkObserver {
	o := &NetworkObserver{
		checker:  checker,
		handlers: make(map[int]Listener),
		notifyCh: make(chan bool, 32),
		stopCh:   make(chan struct{}),
	}
	go o.notifyLoop()
	return o
}

// Init probes the Checker once and caches the result. Idempotent in
// the sense that re-calling just re-probes. No background polling is
// started: the cached state changes only through Probe, SetForced and
// WaitForOnline.
func (o *NetworkObserver) Init(ctx context.Context) error {
	_, err := o.Probe(ctx)
	return err
}

// IsOnline is constant-time and non-blocking.
func (o *NetworkObserver) IsOnline() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.forced != nil {
		return *o.forced
	}
	return o.online
}

// Probe forces a fresh check, updates the cache, and emits a change
// event if the observable value differed.
func (o *NetworkObserver) Probe(ctx context.Context) (bool, error) {
	before := o.IsOnline()

	online, err := o.checker.Check(ctx)
	if err != nil {
		return before, err
	}

	o.mu.Lock()
	o.online = online
	after := online
	if o.forced != nil {
		after = *o.forced
	}
	o.mu.Unlock()

	if after != before {
		o.emit(after)
	}
	return after, nil
}

// SetForced pins the observable value regardless of actual
// connectivity; pass nil to clear the override.
func (o *NetworkObserver) SetForced(override *bool) {
	before := o.IsOnline()

	o.mu.Lock()
	o.forced = override
	o.mu.Unlock()

	after := o.IsOnline()
	if after != before {
		o.emit(after)
	}
}

// Subscribe registers l and returns a token for Unsubscribe.
func (o *NetworkObserver) Subscribe(l Listener) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nextTok++
	tok := o.nextTok
	o.handlers[tok] = l
	return tok
}

func (o *NetworkObserver) Unsubscribe(token int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.handlers, token)
}

// emit queues a transition for the dedicated notifier goroutine; rapid
// flapping coalesces naturally since only the latest value in the
// buffer matters to a freshly-woken listener reading IsOnline().
func (o *NetworkObserver) emit(online bool) {
	select {
	case o.notifyCh <- online:
	default:
		// [COALESCE] best-effort: a full buffer means a burst of
		// transitions is already queued; drop rather than block the
		// detection callback path.
	}
}

func (o *NetworkObserver) notifyLoop() {
	for {
		select {
		case <-o.stopCh:
			return
		case online := <-o.notifyCh:
			o.mu.RLock()
			listeners := make([]Listener, 0, len(o.handlers))
			for _, l := range o.handlers {
				listeners = append(listeners, l)
			}
			o.mu.RUnlock()

			for _, l := range listeners {
				l(online)
			}
		}
	}
}

// WaitForOnline completes when IsOnline becomes true or timeout
// elapses. Polls through backoff.Retry rather than a hand-rolled
// ticker loop, since cenkalti/backoff/v5 is already part of the
// module's dependency graph (see SPEC_FULL.md).
func (o *NetworkObserver) WaitForOnline(ctx context.Context, timeout time.Duration) error {
	if o.IsOnline() {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 100 * time.Millisecond
	eb.MaxInterval = 2 * time.Second

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if _, perr := o.Probe(ctx); perr != nil {
			return struct{}{}, perr
		}
		if o.IsOnline() {
			return struct{}{}, nil
		}
		return struct{}{}, errNotYetOnline
	}, backoff.WithBackOff(eb), backoff.WithMaxElapsedTime(timeout))

	return err
}

// Shutdown stops the notifier goroutine.
func (o *NetworkObserver) Shutdown() {
	o.once.Do(func() { close(o.stopCh) })
}

var errNotYetOnline = &notYetOnlineError{}

type notYetOnlineError struct{}

func (*notYetOnlineError) Error() string { return "network: not yet online" }
