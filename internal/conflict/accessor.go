// Package conflict implements the Conflict Resolver (C4): a
// strategy-driven merge of a local mutation against the server's
// current state for the same id.
package conflict

import (
	"github.com/go-viper/mapstructure/v2"
)

// timestamped is the small accessor shape strategies decode payloads
// into rather than type-switching on map[string]any directly (spec §9:
// "a small accessor contract, not ... pattern-matching on a
// language-specific map type").
type timestamped struct {
	UpdatedAt int64 `mapstructure:"updated_at"`
}

// updatedAtOf extracts the updated_at field from an opaque payload,
// defaulting to 0 when absent or malformed.
func updatedAtOf(payload map[string]any) int64 {
	var t timestamped
	_ = mapstructure.Decode(payload, &t)
	return t.UpdatedAt
}

// versionOf extracts a named integer field from an opaque payload,
// defaulting to 0 when absent or malformed.
func versionOf(payload map[string]any, field string) int64 {
	if payload == nil {
		return 0
	}

	// Re-key the named field to "v" so a single anonymous struct can
	// decode any caller-chosen version field name.
	renamed := map[string]any{"v": payload[field]}
	var out struct {
		V int64 `mapstructure:"v"`
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return 0
	}
	if err := dec.Decode(renamed); err != nil {
		return 0
	}
	return out.V
}
