package conflict

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/webitel/im-sync-engine/internal/domain/model"
)

// Strategy names the built-in merge policies (§4.4).
type Strategy string

const (
	StrategyClientWins  Strategy = "client-wins"
	StrategyServerWins  Strategy = "server-wins"
	StrategyTimestamp   Strategy = "timestamp-wins"
	StrategyVersion     Strategy = "version-based"
	StrategyMerge       Strategy = "merge"
	StrategySmartMerge  Strategy = "smart-merge"
	StrategyManual      Strategy = "manual"
	StrategyCustomLabel Strategy = "custom"
)

// DecisionKind is the outcome of resolving a single conflict.
type DecisionKind int

const (
	DecisionReenqueue DecisionKind = iota + 1
	DecisionDropLocal
	DecisionPark
)

// Decision is the resolver's verdict for one conflicting entry.
type Decision struct {
	Kind    DecisionKind
	Payload map[string]any // populated only for DecisionReenqueue
}

// CustomFunc is the caller-supplied deterministic function signature
// for the custom(fn) strategy. It must not perform I/O.
type CustomFunc func(local model.Entry, serverState map[string]any) Decision

// Resolver resolves a single strategy, chosen at construction.
type Resolver struct {
	strategy   Strategy
	versionKey string // for version-based
	mergeKeys  []string // for smart-merge
	custom     CustomFunc

	cache *lru.Cache[string, map[string]any]
}

// Option configures a Resolver at construction, following the
// teacher's functional-option idiom (registry.Option).
type Option func(*Resolver)

func WithVersionKey(key string) Option {
	return func(r *Resolver) { r.versionKey = key }
}

func WithSmartMergeKeys(keys ...string) Option {
	return func(r *Resolver) { r.mergeKeys = keys }
}

func WithCustomFunc(fn CustomFunc) Option {
	return func(r *Resolver) { r.custom = fn }
}

// New builds a Resolver for exactly one strategy, chosen at
// construction per spec §4.4 ("exactly one active").
func New(strategy Strategy, opts ...Option) *Resolver {
	cache, _ := lru.New[string, map[string]any](1024)
	r := &Resolver{strategy: strategy, cache: cache}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve performs no I/O. With a non-empty serverState the decision
// depends only on the arguments; with an empty one it also depends on
// the snapshot cached for local.ID by earlier calls, as described below.
//
// Some adapters report a conflict outcome without reattaching the full
// server row (e.g. a bare 409 with no body). When serverState is empty,
// Resolve falls back to the last snapshot seen for this id, so a terse
// conflict signal still resolves against real server data instead of
// an empty map. Any non-empty serverState refreshes the cached
// snapshot for the id.
func (r *Resolver) Resolve(local model.Entry, serverState map[string]any) Decision {
	if r.cache != nil {
		if len(serverState) == 0 {
			if cached, ok := r.cache.Get(local.ID); ok {
				serverState = cached
			}
		}
		if len(serverState) > 0 {
			r.cache.Add(local.ID, serverState)
		}
	}

	switch r.strategy {
	case StrategyClientWins:
		return Decision{Kind: DecisionReenqueue, Payload: local.Payload}

	case StrategyServerWins:
		return Decision{Kind: DecisionDropLocal}

	case StrategyTimestamp:
		localTS := updatedAtOf(local.Payload)
		serverTS := updatedAtOf(serverState)
		if localTS > serverTS {
			return Decision{Kind: DecisionReenqueue, Payload: local.Payload}
		}
		// ties go to server
		return Decision{Kind: DecisionDropLocal}

	case StrategyVersion:
		key := r.versionKey
		if key == "" {
			key = "version"
		}
		localV := versionOf(local.Payload, key)
		serverV := versionOf(serverState, key)
		if localV > serverV {
			return Decision{Kind: DecisionReenqueue, Payload: local.Payload}
		}
		return Decision{Kind: DecisionDropLocal}

	case StrategyMerge:
		return Decision{Kind: DecisionReenqueue, Payload: shallowMerge(serverState, local.Payload)}

	case StrategySmartMerge:
		keys := r.mergeKeys
		localTS := updatedAtOf(local.Payload)
		serverTS := updatedAtOf(serverState)
		winnerIsLocal := localTS >= serverTS
		return Decision{Kind: DecisionReenqueue, Payload: smartMerge(serverState, local.Payload, keys, winnerIsLocal)}

	case StrategyManual:
		return Decision{Kind: DecisionPark}

	case StrategyCustomLabel:
		if r.custom == nil {
			return Decision{Kind: DecisionPark}
		}
		return r.custom(local, serverState)

	default:
		return Decision{Kind: DecisionPark}
	}
}

// shallowMerge overlays server fields with local fields, field-wise,
// one level deep.
func shallowMerge(server, local map[string]any) map[string]any {
	out := make(map[string]any, len(server)+len(local))
	for k, v := range server {
		out[k] = v
	}
	for k, v := range local {
		out[k] = v
	}
	return out
}

// smartMerge is shallowMerge, except the named keys are taken from
// whichever side has the greater updated_at.
func smartMerge(server, local map[string]any, keys []string, winnerIsLocal bool) map[string]any {
	out := shallowMerge(server, local)
	winner := server
	if winnerIsLocal {
		winner = local
	}
	for _, k := range keys {
		if v, ok := winner[k]; ok {
			out[k] = v
		}
	}
	return out
}
