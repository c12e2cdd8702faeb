// Package memstore is the reference, in-process implementation of the
// outbox.Store contract: a mutex-guarded map plus a created-at/id
// ordered scan, the same "single shared structure behind one lock"
// idiom the teacher uses for its connection registry (sync.Map there,
// a plain map here since every op here needs a consistent multi-field
// view, not just point lookups).
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/webitel/im-sync-engine/internal/domain/model"
	"github.com/webitel/im-sync-engine/internal/syncerrors"
)

// *Store satisfying outbox.Store is checked at compile time by
// outbox.Module's conversion; importing outbox here would be a cycle.

// Store is the mutex-guarded reference implementation.
type Store struct {
	mu     sync.RWMutex
	rows   map[string]model.Entry
	closed bool
}

// New returns an uninitialized Store; call Init before use.
func New() *Store {
	return &Store{rows: make(map[string]model.Entry)}
}

func (s *Store) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &syncerrors.StorageError{Op: "init", Err: fmt.Errorf("store closed")}
	}
	if s.rows == nil {
		s.rows = make(map[string]model.Entry)
	}

	// [RECOVERY] any row left mid-flight is never a durable terminal
	// state; promote it back to pending, attempts preserved (P8).
	for id, e := range s.rows {
		if e.Status == model.StatusSyncing {
			e.Status = model.StatusPending
			e.UpdatedAt = time.Now()
			s.rows[id] = e
		}
	}
	return nil
}

func (s *Store) Put(_ context.Context, entry model.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &syncerrors.StorageError{Op: "put", Err: fmt.Errorf("store closed")}
	}

	now := time.Now()
	if existing, ok := s.rows[entry.ID]; ok && !existing.Status.Terminal() {
		entry.Attempts = 0
	}
	entry.UpdatedAt = now
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	s.rows[entry.ID] = entry.Clone()
	return nil
}

func (s *Store) NextBatch(_ context.Context, limit int) ([]model.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, &syncerrors.StorageError{Op: "next_batch", Err: fmt.Errorf("store closed")}
	}

	pending := make([]model.Entry, 0, len(s.rows))
	for _, e := range s.rows {
		if e.Status == model.StatusPending {
			pending = append(pending, e.Clone())
		}
	}

	// I3: strictly ascending by created_at, id as deterministic tiebreak.
	sort.Slice(pending, func(i, j int) bool {
		if !pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].CreatedAt.Before(pending[j].CreatedAt)
		}
		return pending[i].ID < pending[j].ID
	})

	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (s *Store) SetStatus(_ context.Context, id string, newStatus model.Status, bumpAttempts bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &syncerrors.StorageError{Op: "set_status", Err: fmt.Errorf("store closed")}
	}

	e, ok := s.rows[id]
	if !ok {
		return &syncerrors.StorageError{Op: "set_status", Err: fmt.Errorf("no such entry %q", id)}
	}

	e.Status = newStatus
	if bumpAttempts {
		e.Attempts++
	}
	now := time.Now()
	if newStatus == model.StatusSyncing {
		e.LastAttemptAt = &now
	}
	e.UpdatedAt = now
	s.rows[id] = e
	return nil
}

func (s *Store) Get(_ context.Context, id string) (model.Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return model.Entry{}, false, &syncerrors.StorageError{Op: "get", Err: fmt.Errorf("store closed")}
	}

	e, ok := s.rows[id]
	return e.Clone(), ok, nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &syncerrors.StorageError{Op: "delete", Err: fmt.Errorf("store closed")}
	}
	delete(s.rows, id)
	return nil
}

func (s *Store) DeleteWhere(_ context.Context, status model.Status) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, &syncerrors.StorageError{Op: "delete_where", Err: fmt.Errorf("store closed")}
	}

	n := 0
	for id, e := range s.rows {
		if e.Status == status {
			delete(s.rows, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) EntriesByStatus(_ context.Context, status model.Status) ([]model.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, &syncerrors.StorageError{Op: "entries_by_status", Err: fmt.Errorf("store closed")}
	}

	out := make([]model.Entry, 0)
	for _, e := range s.rows {
		if e.Status == status {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) Stats(_ context.Context) (model.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return model.Stats{}, &syncerrors.StorageError{Op: "stats", Err: fmt.Errorf("store closed")}
	}

	var st model.Stats
	for _, e := range s.rows {
		switch e.Status {
		case model.StatusPending:
			st.Pending++
		case model.StatusSyncing:
			st.Syncing++
		case model.StatusSynced:
			st.Synced++
		case model.StatusFailed:
			st.Failed++
		case model.StatusConflict:
			st.Conflict++
		}
	}
	return st, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
