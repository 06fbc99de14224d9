package revision

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind tags the type of record a delta applies to.
type Kind string

// Kind values for the tracked record types.
const (
	KindActivity Kind = "activity"
	KindExchange Kind = "exchange"
	KindMethod   Kind = "method"
)

// Kinds lists every tracked record kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindActivity, KindExchange, KindMethod}
}

// NormalizeKind canonicalizes a kind tag.
func NormalizeKind(k Kind) Kind {
	return Kind(strings.TrimSpace(strings.ToLower(string(k))))
}

// IsValidKind reports whether k names a tracked record kind.
func IsValidKind(k Kind) bool {
	switch NormalizeKind(k) {
	case KindActivity, KindExchange, KindMethod:
		return true
	default:
		return false
	}
}

// Delta is one structural patch tagged with the record it applies to.
type Delta struct {
	Kind  Kind
	ID    int64
	Patch Patch
}

// NewDelta diffs old against new and tags the result. old may be nil for creation.
func NewDelta(kind Kind, id int64, old, new Plain) (Delta, error) {
	patch, err := Diff(old, new)
	if err != nil {
		return Delta{}, fmt.Errorf("diff %s %d: %w", kind, id, err)
	}
	return Delta{Kind: kind, ID: id, Patch: patch}, nil
}

// Apply replays the delta against base.
func (d Delta) Apply(base Plain) (Plain, error) {
	out, err := Apply(d.Patch, base)
	if err != nil {
		return nil, fmt.Errorf("apply %s %d: %w", d.Kind, d.ID, err)
	}
	return out, nil
}

// Creation reports whether the delta creates its record.
func (d Delta) Creation() bool {
	return d.Patch.Base == ""
}

// wireDelta is the transport shape of a delta.
type wireDelta struct {
	Type  Kind            `json:"type"`
	ID    *int64          `json:"id"`
	Delta json.RawMessage `json:"delta"`
}

// MarshalJSON encodes the delta in its transport shape.
func (d Delta) MarshalJSON() ([]byte, error) {
	patch, err := json.Marshal(d.Patch)
	if err != nil {
		return nil, fmt.Errorf("encode patch: %w", err)
	}
	id := d.ID
	return json.Marshal(wireDelta{Type: d.Kind, ID: &id, Delta: patch})
}

// UnmarshalJSON decodes the transport shape strictly.
func (d *Delta) UnmarshalJSON(data []byte) error {
	var wire wireDelta
	if err := strictUnmarshal(data, &wire); err != nil {
		return decodeErr("delta", err)
	}
	kind := NormalizeKind(wire.Type)
	if !IsValidKind(kind) {
		return decodeErr("type", fmt.Errorf("%w: %q", ErrUnknownRecordKind, wire.Type))
	}
	if wire.ID == nil {
		return decodeErr("id", errors.New("record id is required"))
	}
	if len(wire.Delta) == 0 {
		return decodeErr("delta", errors.New("patch is required"))
	}
	var patch Patch
	if err := json.Unmarshal(wire.Delta, &patch); err != nil {
		return decodeErr("delta", err)
	}
	*d = Delta{Kind: kind, ID: *wire.ID, Patch: patch}
	return nil
}
