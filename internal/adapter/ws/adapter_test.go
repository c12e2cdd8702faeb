package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/webitel/im-sync-engine/internal/syncengine"
)

// echoServer upgrades the connection and answers every request with a
// fixed status, mirroring the request's correlation id.
func echoServer(t *testing.T, status string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req request
			if err := json.Unmarshal(data, &req); err != nil {
				return
			}
			resp := response{CorrelationID: req.CorrelationID, Status: status}
			out, _ := json.Marshal(resp)
			if err := conn.WriteMessage(websocket.TextMessage, out); err != nil {
				return
			}
		}
	}))
}

func dialTestServer(t *testing.T, srv *httptest.Server) *Adapter {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	a, err := Dial(context.Background(), wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return a
}

func TestAdapterCreate_OK(t *testing.T) {
	srv := echoServer(t, "ok")
	defer srv.Close()
	a := dialTestServer(t, srv)
	defer a.Close()

	outcome, err := a.Create(context.Background(), "contacts", map[string]any{"name": "a"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Kind != syncengine.OutcomeOK {
		t.Fatalf("expected OutcomeOK, got %v", outcome.Kind)
	}
}

func TestAdapterUpdate_Conflict(t *testing.T) {
	srv := echoServer(t, "conflict")
	defer srv.Close()
	a := dialTestServer(t, srv)
	defer a.Close()

	outcome, err := a.Update(context.Background(), "contacts", "1", map[string]any{"name": "a"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Kind != syncengine.OutcomeConflict {
		t.Fatalf("expected OutcomeConflict, got %v", outcome.Kind)
	}
}

func TestAdapterDelete_Retryable(t *testing.T) {
	srv := echoServer(t, "retryable")
	defer srv.Close()
	a := dialTestServer(t, srv)
	defer a.Close()

	outcome, err := a.Delete(context.Background(), "contacts", "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Kind != syncengine.OutcomeRetryableError {
		t.Fatalf("expected OutcomeRetryableError, got %v", outcome.Kind)
	}
}
