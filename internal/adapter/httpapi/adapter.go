// Package httpapi is a REST Adapter: one JSON request per Create,
// Update, Delete and FetchUpdates call against a remote collection
// endpoint, grounded on the conventions internal/handler/lp/delivery.go
// uses for marshalling events to JSON over plain net/http.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/webitel/im-sync-engine/internal/syncengine"
	"github.com/webitel/im-sync-engine/internal/syncerrors"
)

// Adapter talks to a REST backend where kind maps to a resource path
// segment ("/api/v1/{kind}") and entries map to JSON bodies.
type Adapter struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

var _ syncengine.Adapter = (*Adapter)(nil)
var _ syncengine.ConnectionValidator = (*Adapter)(nil)

// New builds an Adapter. baseURL must not have a trailing slash.
func New(baseURL string, client *http.Client, logger *slog.Logger) *Adapter {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{baseURL: baseURL, client: client, logger: logger}
}

func (a *Adapter) Create(ctx context.Context, kind string, payload map[string]any) (syncengine.Outcome, error) {
	return a.do(ctx, http.MethodPost, fmt.Sprintf("%s/api/v1/%s", a.baseURL, kind), payload)
}

func (a *Adapter) Update(ctx context.Context, kind, id string, payload map[string]any) (syncengine.Outcome, error) {
	return a.do(ctx, http.MethodPut, fmt.Sprintf("%s/api/v1/%s/%s", a.baseURL, kind, id), payload)
}

func (a *Adapter) Delete(ctx context.Context, kind, id string) (syncengine.Outcome, error) {
	return a.do(ctx, http.MethodDelete, fmt.Sprintf("%s/api/v1/%s/%s", a.baseURL, kind, id), nil)
}

func (a *Adapter) FetchUpdates(ctx context.Context, kind string, opts syncengine.FetchOptions) (syncengine.FetchPage, error) {
	q := url.Values{}
	if opts.Since != nil {
		q.Set("since", strconv.FormatInt(*opts.Since, 10))
	}
	if opts.Limit != nil {
		q.Set("limit", strconv.Itoa(*opts.Limit))
	}
	if opts.Offset != nil {
		q.Set("offset", *opts.Offset)
	}

	reqURL := fmt.Sprintf("%s/api/v1/%s?%s", a.baseURL, kind, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return syncengine.FetchPage{}, err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return syncengine.FetchPage{}, &syncerrors.TimeoutError{Op: "fetch_updates"}
	}
	defer resp.Body.Close()

	var page struct {
		Entities   []map[string]any `json:"entities"`
		HasMore    bool             `json:"has_more"`
		NextOffset *string          `json:"next_offset"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return syncengine.FetchPage{}, fmt.Errorf("httpapi: decode fetch page: %w", err)
	}
	return syncengine.FetchPage{Entities: page.Entities, HasMore: page.HasMore, NextOffset: page.NextOffset}, nil
}

// ValidateConnection satisfies syncengine.ConnectionValidator with a
// lightweight HEAD against /api/v1/health; any status below 500 counts
// as reachable.
func (a *Adapter) ValidateConnection(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, a.baseURL+"/api/v1/health", nil)
	if err != nil {
		return false
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}

func (a *Adapter) do(ctx context.Context, method, reqURL string, payload map[string]any) (syncengine.Outcome, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return syncengine.Outcome{}, fmt.Errorf("httpapi: marshal payload: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return syncengine.Outcome{}, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		// network-level failure: not a taxonomy error the caller decoded,
		// so surface err and let the breaker/drain loop treat it retryable.
		return syncengine.Outcome{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		var serverState map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&serverState)
		return syncengine.Outcome{Kind: syncengine.OutcomeConflict, ServerState: serverState}, nil

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var serverState map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&serverState)
		return syncengine.Outcome{Kind: syncengine.OutcomeOK, ServerState: serverState}, nil

	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		msg, _ := io.ReadAll(resp.Body)
		return syncengine.Outcome{
			Kind: syncengine.OutcomeRetryableError,
			Err: &syncerrors.AdapterError{
				Kind:    syncerrors.AdapterRetryable,
				Code:    strconv.Itoa(resp.StatusCode),
				Message: string(msg),
			},
		}, nil

	default:
		msg, _ := io.ReadAll(resp.Body)
		return syncengine.Outcome{
			Kind: syncengine.OutcomePermanentError,
			Err: &syncerrors.AdapterError{
				Kind:    syncerrors.AdapterPermanent,
				Code:    strconv.Itoa(resp.StatusCode),
				Message: string(msg),
			},
		}, nil
	}
}
