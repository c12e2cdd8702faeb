// Package ws is a request/reply Adapter over a single long-lived
// gorilla/websocket connection: every call is tagged with a
// correlation id and multiplexed against a read pump, the client-side
// mirror of internal/handler/ws/delivery.go's upgrade-then-pump loop.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/webitel/im-sync-engine/internal/syncengine"
	"github.com/webitel/im-sync-engine/internal/syncerrors"
)

type request struct {
	CorrelationID string         `json:"correlation_id"`
	Op            string         `json:"op"`
	Kind          string         `json:"kind"`
	ID            string         `json:"id,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
}

type response struct {
	CorrelationID string         `json:"correlation_id"`
	Status        string         `json:"status"` // "ok" | "conflict" | "retryable" | "permanent"
	Code          string         `json:"code,omitempty"`
	Message       string         `json:"message,omitempty"`
	State         map[string]any `json:"state,omitempty"`
}

// Adapter is the pluggable websocket transport.
type Adapter struct {
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan response

	closeOnce sync.Once
	closed    chan struct{}
}

var _ syncengine.Adapter = (*Adapter)(nil)

// Dial connects to a remote websocket endpoint and starts the read pump.
func Dial(ctx context.Context, url string, logger *slog.Logger) (*Adapter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ws adapter: dial: %w", err)
	}
	a := &Adapter{
		conn:    conn,
		logger:  logger,
		pending: make(map[string]chan response),
		closed:  make(chan struct{}),
	}
	go a.readPump()
	return a, nil
}

func (a *Adapter) readPump() {
	defer close(a.closed)
	for {
		_, data, err := a.conn.ReadMessage()
		if err != nil {
			a.logger.Warn("ws adapter: read pump exiting", "error", err)
			a.failAllPending(err)
			return
		}
		var resp response
		if err := json.Unmarshal(data, &resp); err != nil {
			a.logger.Warn("ws adapter: malformed response", "error", err)
			continue
		}
		a.deliver(resp)
	}
}

func (a *Adapter) deliver(resp response) {
	a.pendingMu.Lock()
	ch, ok := a.pending[resp.CorrelationID]
	if ok {
		delete(a.pending, resp.CorrelationID)
	}
	a.pendingMu.Unlock()
	if ok {
		ch <- resp
	}
}

func (a *Adapter) failAllPending(err error) {
	a.pendingMu.Lock()
	defer a.pendingMu.Unlock()
	for id, ch := range a.pending {
		ch <- response{CorrelationID: id, Status: "retryable", Message: err.Error()}
		delete(a.pending, id)
	}
}

func (a *Adapter) Create(ctx context.Context, kind string, payload map[string]any) (syncengine.Outcome, error) {
	return a.call(ctx, request{Op: "create", Kind: kind, Payload: payload})
}

func (a *Adapter) Update(ctx context.Context, kind, id string, payload map[string]any) (syncengine.Outcome, error) {
	return a.call(ctx, request{Op: "update", Kind: kind, ID: id, Payload: payload})
}

func (a *Adapter) Delete(ctx context.Context, kind, id string) (syncengine.Outcome, error) {
	return a.call(ctx, request{Op: "delete", Kind: kind, ID: id})
}

// FetchUpdates is not implemented over the bidirectional socket
// here. Messages the remote sends without a matching correlation id
// are discarded by the read pump.
func (a *Adapter) FetchUpdates(_ context.Context, kind string, _ syncengine.FetchOptions) (syncengine.FetchPage, error) {
	return syncengine.FetchPage{}, fmt.Errorf("ws adapter: fetch_updates unsupported; updates arrive via push")
}

func (a *Adapter) Close() error {
	a.closeOnce.Do(func() {
		_ = a.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	})
	return a.conn.Close()
}

func (a *Adapter) call(ctx context.Context, req request) (syncengine.Outcome, error) {
	req.CorrelationID = uuid.NewString()

	ch := make(chan response, 1)
	a.pendingMu.Lock()
	a.pending[req.CorrelationID] = ch
	a.pendingMu.Unlock()

	body, err := json.Marshal(req)
	if err != nil {
		a.forgetPending(req.CorrelationID)
		return syncengine.Outcome{}, fmt.Errorf("ws adapter: marshal: %w", err)
	}

	a.writeMu.Lock()
	writeErr := a.conn.WriteMessage(websocket.TextMessage, body)
	a.writeMu.Unlock()
	if writeErr != nil {
		a.forgetPending(req.CorrelationID)
		return syncengine.Outcome{}, writeErr
	}

	select {
	case <-ctx.Done():
		a.forgetPending(req.CorrelationID)
		return syncengine.Outcome{}, ctx.Err()
	case <-time.After(30 * time.Second):
		a.forgetPending(req.CorrelationID)
		return syncengine.Outcome{}, &syncerrors.TimeoutError{Op: "ws_call"}
	case resp := <-ch:
		return outcomeFromResponse(resp), nil
	}
}

func (a *Adapter) forgetPending(id string) {
	a.pendingMu.Lock()
	delete(a.pending, id)
	a.pendingMu.Unlock()
}

func outcomeFromResponse(resp response) syncengine.Outcome {
	switch resp.Status {
	case "ok":
		return syncengine.Outcome{Kind: syncengine.OutcomeOK, ServerState: resp.State}
	case "conflict":
		return syncengine.Outcome{Kind: syncengine.OutcomeConflict, ServerState: resp.State}
	case "permanent":
		return syncengine.Outcome{
			Kind: syncengine.OutcomePermanentError,
			Err:  &syncerrors.AdapterError{Kind: syncerrors.AdapterPermanent, Code: resp.Code, Message: resp.Message},
		}
	default: // "retryable" and anything unrecognized
		return syncengine.Outcome{
			Kind: syncengine.OutcomeRetryableError,
			Err:  &syncerrors.AdapterError{Kind: syncerrors.AdapterRetryable, Code: resp.Code, Message: resp.Message},
		}
	}
}
