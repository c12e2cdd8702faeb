package syncengine

import "github.com/webitel/im-sync-engine/internal/domain/model"

// Hooks are optional caller-supplied callbacks, each invoked at most
// once per relevant event (spec §6). A panic or error from a hook is
// logged and swallowed by the coordinator, never propagated.
type Hooks struct {
	OnBeforeSync       func(batch []model.Entry)
	OnSyncSuccess      func(batch []model.Entry)
	OnSyncError        func(err error, batch []model.Entry)
	OnQueueChange      func(status model.Stats)
	OnConnectionChange func(online bool)
}

// Listener receives coordinator events (§6).
type Listener func(model.Event)

func (h Hooks) safeBeforeSync(batch []model.Entry, logf func(string, ...any)) {
	if h.OnBeforeSync == nil {
		return
	}
	defer recoverHook(logf, "on_before_sync")
	h.OnBeforeSync(batch)
}

func (h Hooks) safeSyncSuccess(batch []model.Entry, logf func(string, ...any)) {
	if h.OnSyncSuccess == nil {
		return
	}
	defer recoverHook(logf, "on_sync_success")
	h.OnSyncSuccess(batch)
}

func (h Hooks) safeSyncError(err error, batch []model.Entry, logf func(string, ...any)) {
	if h.OnSyncError == nil {
		return
	}
	defer recoverHook(logf, "on_sync_error")
	h.OnSyncError(err, batch)
}

func (h Hooks) safeQueueChange(stats model.Stats, logf func(string, ...any)) {
	if h.OnQueueChange == nil {
		return
	}
	defer recoverHook(logf, "on_queue_change")
	h.OnQueueChange(stats)
}

func (h Hooks) safeConnectionChange(online bool, logf func(string, ...any)) {
	if h.OnConnectionChange == nil {
		return
	}
	defer recoverHook(logf, "on_connection_change")
	h.OnConnectionChange(online)
}

func recoverHook(logf func(string, ...any), name string) {
	if r := recover(); r != nil {
		logf("hook panicked, swallowing", "hook", name, "recovered", r)
	}
}
