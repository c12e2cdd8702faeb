package syncengine

import (
	"context"

	"github.com/webitel/im-sync-engine/internal/syncerrors"
)

// OutcomeKind classifies what an Adapter call returned.
type OutcomeKind int

const (
	OutcomeOK OutcomeKind = iota + 1
	OutcomeRetryableError
	OutcomePermanentError
	OutcomeConflict
)

// Outcome is the Result sum type described in spec §6.
type Outcome struct {
	Kind        OutcomeKind
	ServerState map[string]any // populated for OutcomeOK (optional) and OutcomeConflict
	Err         *syncerrors.AdapterError
}

// FetchPage is the result of FetchUpdates; not used by the drain loop
// itself but part of the Adapter contract for higher-level
// collaborators (spec §6).
type FetchPage struct {
	Entities   []map[string]any
	HasMore    bool
	NextOffset *string
}

// FetchOptions parameterizes FetchUpdates.
type FetchOptions struct {
	Since  *int64
	Limit  *int
	Offset *string
}

// Adapter is the pluggable transport to the remote service — the
// outbox's only way out. The coordinator selects Create/Update/Delete
// based on payload markers or kind convention (spec §6).
type Adapter interface {
	Create(ctx context.Context, kind string, payload map[string]any) (Outcome, error)
	Update(ctx context.Context, kind, id string, payload map[string]any) (Outcome, error)
	Delete(ctx context.Context, kind, id string) (Outcome, error)
	FetchUpdates(ctx context.Context, kind string, opts FetchOptions) (FetchPage, error)
}

// ConnectionValidator is the optional ValidateConnection() capability.
type ConnectionValidator interface {
	ValidateConnection(ctx context.Context) bool
}

// OperationMarkerKey is the reserved-marker convention the coordinator
// reads off a payload to decide which Adapter verb applies to an
// entry (spec §4.5 step 5b: "carried within payload or inferred from a
// reserved marker").
const OperationMarkerKey = "__op__"

type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// OperationOf returns the operation marker on payload, defaulting to
// OpCreate when absent.
func OperationOf(payload map[string]any) Operation {
	if payload == nil {
		return OpCreate
	}
	if v, ok := payload[OperationMarkerKey]; ok {
		if s, ok := v.(string); ok {
			switch Operation(s) {
			case OpCreate, OpUpdate, OpDelete:
				return Operation(s)
			}
		}
	}
	return OpCreate
}
