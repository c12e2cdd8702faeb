package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/webitel/im-sync-engine/internal/domain/model"
)

func mustPut(t *testing.T, s *Store, e model.Entry) {
	t.Helper()
	if err := s.Put(context.Background(), e); err != nil {
		t.Fatalf("put %s: %v", e.ID, err)
	}
}

func TestPutUpsertResetsAttempts(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	mustPut(t, s, model.Entry{ID: "a", Kind: "todo", Status: model.StatusFailed, Attempts: 2})

	// I1: a second enqueue with the same id replaces the payload and
	// resets status to pending, attempts to 0.
	mustPut(t, s, model.Entry{ID: "a", Kind: "todo", Status: model.StatusPending, Payload: map[string]any{"x": 1}})

	got, ok, err := s.Get(ctx, "a")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Attempts != 0 {
		t.Fatalf("expected attempts reset to 0, got %d", got.Attempts)
	}
	if got.Payload["x"] != 1 {
		t.Fatalf("expected replaced payload, got %+v", got.Payload)
	}
}

func TestNextBatchOrderingAndLimit(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.Init(ctx)

	base := time.Now()
	for i := 0; i < 25; i++ {
		id := string(rune('a' + i))
		mustPut(t, s, model.Entry{
			ID:        id,
			Kind:      "todo",
			Status:    model.StatusPending,
			CreatedAt: base.Add(time.Duration(i) * time.Millisecond),
		})
	}

	batch, err := s.NextBatch(ctx, 10)
	if err != nil {
		t.Fatalf("next_batch: %v", err)
	}
	if len(batch) != 10 {
		t.Fatalf("expected 10 entries, got %d", len(batch))
	}
	for i, e := range batch {
		want := string(rune('a' + i))
		if e.ID != want {
			t.Fatalf("batch[%d].ID = %q, want %q (P2 ordering)", i, e.ID, want)
		}
	}
}

func TestNextBatchTiebreakByID(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.Init(ctx)

	same := time.Now()
	mustPut(t, s, model.Entry{ID: "z", Kind: "todo", Status: model.StatusPending, CreatedAt: same})
	mustPut(t, s, model.Entry{ID: "a", Kind: "todo", Status: model.StatusPending, CreatedAt: same})

	batch, err := s.NextBatch(ctx, 10)
	if err != nil {
		t.Fatalf("next_batch: %v", err)
	}
	if len(batch) != 2 || batch[0].ID != "a" || batch[1].ID != "z" {
		t.Fatalf("expected id tiebreak order [a z], got %+v", batch)
	}
}

func TestSetStatusBumpsAttemptsMonotonically(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.Init(ctx)

	mustPut(t, s, model.Entry{ID: "a", Kind: "todo", Status: model.StatusPending})

	if err := s.SetStatus(ctx, "a", model.StatusSyncing, false); err != nil {
		t.Fatalf("set_status: %v", err)
	}
	if err := s.SetStatus(ctx, "a", model.StatusPending, true); err != nil {
		t.Fatalf("set_status: %v", err)
	}
	e, _, _ := s.Get(ctx, "a")
	if e.Attempts != 1 {
		t.Fatalf("expected attempts=1, got %d", e.Attempts)
	}

	if err := s.SetStatus(ctx, "a", model.StatusFailed, true); err != nil {
		t.Fatalf("set_status: %v", err)
	}
	e, _, _ = s.Get(ctx, "a")
	if e.Attempts != 2 {
		t.Fatalf("expected attempts=2 (P3 monotonic), got %d", e.Attempts)
	}
}

func TestRecoverySyncingBecomesPending(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.Init(ctx)

	mustPut(t, s, model.Entry{ID: "a", Kind: "todo", Status: model.StatusPending})
	if err := s.SetStatus(ctx, "a", model.StatusSyncing, false); err != nil {
		t.Fatalf("set_status: %v", err)
	}
	if err := s.SetStatus(ctx, "a", model.StatusSyncing, true); err != nil {
		t.Fatalf("set_status: %v", err)
	}

	// Simulate a crash + restart: re-Init must promote syncing rows
	// back to pending with attempts preserved (P8, I2).
	if err := s.Init(ctx); err != nil {
		t.Fatalf("re-init: %v", err)
	}

	e, ok, err := s.Get(ctx, "a")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if e.Status != model.StatusPending {
		t.Fatalf("expected status pending after recovery, got %s", e.Status)
	}
	if e.Attempts != 1 {
		t.Fatalf("expected attempts preserved at 1, got %d", e.Attempts)
	}
}

func TestDeleteWhereAndStats(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.Init(ctx)

	mustPut(t, s, model.Entry{ID: "a", Kind: "todo", Status: model.StatusSynced})
	mustPut(t, s, model.Entry{ID: "b", Kind: "todo", Status: model.StatusSynced})
	mustPut(t, s, model.Entry{ID: "c", Kind: "todo", Status: model.StatusPending})

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Synced != 2 || stats.Pending != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	n, err := s.DeleteWhere(ctx, model.StatusSynced)
	if err != nil {
		t.Fatalf("delete_where: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 deleted, got %d", n)
	}

	stats, _ = s.Stats(ctx)
	if stats.Synced != 0 || stats.Pending != 1 {
		t.Fatalf("unexpected stats after delete_where: %+v", stats)
	}
}

func TestCloseRejectsFurtherCalls(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.Init(ctx)

	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Put(ctx, model.Entry{ID: "a"}); err == nil {
		t.Fatal("expected put after close to fail")
	}
	if _, err := s.NextBatch(ctx, 10); err == nil {
		t.Fatal("expected next_batch after close to fail")
	}
}

func TestInitIsIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	mustPut(t, s, model.Entry{ID: "a", Kind: "todo", Status: model.StatusPending})

	if err := s.Init(ctx); err != nil {
		t.Fatalf("re-init: %v", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Pending != 1 {
		t.Fatalf("re-init must not discard existing rows, stats=%+v", stats)
	}
}
