package syncengine

import (
	"context"
	"time"

	"github.com/webitel/im-sync-engine/internal/domain/model"
)

// emit fans an event out to every subscriber. Delivery is
// non-blocking from the coordinator's perspective: each listener runs
// on its own goroutine so a slow or misbehaving subscriber cannot
// stall the drain cycle (spec §5).
func (c *Coordinator) emit(ev model.Event) {
	c.listenersMu.Lock()
	listeners := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.listenersMu.Unlock()

	for _, l := range listeners {
		go func(l Listener) {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("listener panicked, swallowing", "recovered", r)
				}
			}()
			l(ev)
		}(l)
	}
}

func (c *Coordinator) emitQueueChanged(ctx context.Context) {
	stats, err := c.store.Stats(ctx)
	if err != nil {
		c.logger.Warn("queue_changed: stats lookup failed", "error", err)
		return
	}
	c.emit(model.NewEvent(model.EventQueueChanged, model.QueueChangedData{Status: stats}))
	c.hooks.safeQueueChange(stats, c.logger.Warn)
}

func (c *Coordinator) onNetworkChange(online bool) {
	c.emit(model.NewEvent(model.EventConnectionChanged, model.ConnectionChangedData{Online: online}))
	c.hooks.safeConnectionChange(online, c.logger.Warn)

	if !online {
		return
	}
	c.mu.Lock()
	active := c.active
	c.mu.Unlock()
	if active && !c.isDraining() {
		c.scheduleDrain(networkDebounce)
	}
}

func (c *Coordinator) onForeground() {
	c.mu.Lock()
	active := c.active
	c.mu.Unlock()
	if active && c.observer.IsOnline() && !c.isDraining() {
		c.scheduleDrain(foregroundDebounce)
	}
}

func (c *Coordinator) isDraining() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draining
}

// scheduleDrain debounces bursts of triggers into a single drain
// cycle. A zero delay still routes through time.AfterFunc so the
// caller's goroutine is never blocked running the cycle itself.
func (c *Coordinator) scheduleDrain(delay time.Duration) {
	c.mu.Lock()
	if c.shutdown || !c.active {
		c.mu.Unlock()
		return
	}
	if c.enqueueTimer != nil {
		c.enqueueTimer.Stop()
	}
	c.enqueueTimer = time.AfterFunc(delay, func() {
		ctx := context.Background()
		if _, _, err := c.runDrainCycle(ctx); err != nil {
			c.logger.Error("scheduled drain cycle failed", "error", err)
		}
	})
	c.mu.Unlock()
}
