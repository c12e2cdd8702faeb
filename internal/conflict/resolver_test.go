package conflict

import (
	"testing"

	"github.com/webitel/im-sync-engine/internal/domain/model"
)

func entryWithPayload(payload map[string]any) model.Entry {
	return model.Entry{ID: "b", Kind: "todo", Payload: payload}
}

func TestClientWins(t *testing.T) {
	r := New(StrategyClientWins)
	local := entryWithPayload(map[string]any{"text": "local"})
	d := r.Resolve(local, map[string]any{"text": "server"})
	if d.Kind != DecisionReenqueue {
		t.Fatalf("expected reenqueue, got %v", d.Kind)
	}
	if d.Payload["text"] != "local" {
		t.Fatalf("expected local payload preserved, got %v", d.Payload)
	}
}

func TestServerWins(t *testing.T) {
	r := New(StrategyServerWins)
	d := r.Resolve(entryWithPayload(map[string]any{"text": "local"}), map[string]any{"text": "server"})
	if d.Kind != DecisionDropLocal {
		t.Fatalf("expected drop local, got %v", d.Kind)
	}
}

func TestTimestampWinsGreaterLocal(t *testing.T) {
	r := New(StrategyTimestamp)
	local := entryWithPayload(map[string]any{"updated_at": int64(200), "text": "local"})
	d := r.Resolve(local, map[string]any{"updated_at": int64(100), "text": "server"})
	if d.Kind != DecisionReenqueue {
		t.Fatalf("expected local to win, got %v", d.Kind)
	}
}

func TestTimestampWinsTieGoesToServer(t *testing.T) {
	r := New(StrategyTimestamp)
	local := entryWithPayload(map[string]any{"updated_at": int64(100)})
	d := r.Resolve(local, map[string]any{"updated_at": int64(200)})
	if d.Kind != DecisionDropLocal {
		t.Fatalf("expected server to win on greater timestamp, got %v", d.Kind)
	}

	d2 := r.Resolve(entryWithPayload(map[string]any{"updated_at": int64(100)}), map[string]any{"updated_at": int64(100)})
	if d2.Kind != DecisionDropLocal {
		t.Fatalf("expected tie to go to server, got %v", d2.Kind)
	}
}

func TestVersionBased(t *testing.T) {
	r := New(StrategyVersion, WithVersionKey("rev"))
	local := entryWithPayload(map[string]any{"rev": int64(5)})
	d := r.Resolve(local, map[string]any{"rev": int64(3)})
	if d.Kind != DecisionReenqueue {
		t.Fatalf("expected local to win on higher version, got %v", d.Kind)
	}

	d2 := r.Resolve(entryWithPayload(map[string]any{"rev": int64(2)}), map[string]any{"rev": int64(3)})
	if d2.Kind != DecisionDropLocal {
		t.Fatalf("expected server to win on higher version, got %v", d2.Kind)
	}
}

func TestMergeOverlaysLocalOverServer(t *testing.T) {
	r := New(StrategyMerge)
	local := entryWithPayload(map[string]any{"text": "local", "tag": "a"})
	d := r.Resolve(local, map[string]any{"text": "server", "owner": "srv"})
	if d.Kind != DecisionReenqueue {
		t.Fatalf("expected reenqueue, got %v", d.Kind)
	}
	if d.Payload["text"] != "local" || d.Payload["owner"] != "srv" || d.Payload["tag"] != "a" {
		t.Fatalf("unexpected merged payload: %+v", d.Payload)
	}
}

func TestSmartMergeTakesNamedKeysFromWinner(t *testing.T) {
	r := New(StrategySmartMerge, WithSmartMergeKeys("owner"))
	local := entryWithPayload(map[string]any{"updated_at": int64(50), "owner": "local-owner", "text": "local"})
	server := map[string]any{"updated_at": int64(200), "owner": "server-owner", "text": "server"}

	d := r.Resolve(local, server)
	if d.Payload["text"] != "local" {
		t.Fatalf("expected non-named field to come from local overlay, got %v", d.Payload["text"])
	}
	if d.Payload["owner"] != "server-owner" {
		t.Fatalf("expected named key to come from server (greater updated_at), got %v", d.Payload["owner"])
	}
}

func TestManualParks(t *testing.T) {
	r := New(StrategyManual)
	d := r.Resolve(entryWithPayload(nil), map[string]any{})
	if d.Kind != DecisionPark {
		t.Fatalf("expected park, got %v", d.Kind)
	}
}

func TestResolveFallsBackToCachedSnapshotWhenServerStateEmpty(t *testing.T) {
	r := New(StrategyTimestamp)
	local := entryWithPayload(map[string]any{"updated_at": int64(100)})

	// First conflict carries the full server row: server wins (greater ts).
	d := r.Resolve(local, map[string]any{"updated_at": int64(200)})
	if d.Kind != DecisionDropLocal {
		t.Fatalf("expected server to win on first resolve, got %v", d.Kind)
	}

	// A second conflict for the same id arrives with no reattached
	// server row (e.g. a bare 409); Resolve must fall back to the
	// cached snapshot from the first call instead of treating the
	// server as having no updated_at at all.
	localRetry := entryWithPayload(map[string]any{"updated_at": int64(150)})
	d2 := r.Resolve(localRetry, nil)
	if d2.Kind != DecisionDropLocal {
		t.Fatalf("expected cached server snapshot (updated_at=200) to still beat local=150, got %v", d2.Kind)
	}
}

func TestCustomFunc(t *testing.T) {
	called := false
	r := New(StrategyCustomLabel, WithCustomFunc(func(local model.Entry, server map[string]any) Decision {
		called = true
		return Decision{Kind: DecisionDropLocal}
	}))
	d := r.Resolve(entryWithPayload(nil), nil)
	if !called || d.Kind != DecisionDropLocal {
		t.Fatalf("expected custom fn to be invoked and honored, got %v", d.Kind)
	}
}
