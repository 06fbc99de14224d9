package revision

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

// TestTransportRoundTripPreservesApply verifies decoded deltas behave like the originals.
func TestTransportRoundTripPreservesApply(t *testing.T) {
	old := Plain{
		"name":       "steel",
		"amount":     1.0,
		"categories": []string{"metals", "ferrous"},
		"props":      map[string]any{"density": 7.85, "big": int64(1) << 60},
	}
	new := Plain{
		"name":       "steel",
		"amount":     2.5,
		"categories": []string{"metals"},
		"props":      map[string]any{"density": 7.9, "big": int64(1)<<60 + 1},
		"unit":       "kilogram",
	}
	update, err := NewDelta(KindActivity, 11, old, new)
	if err != nil {
		t.Fatalf("NewDelta(update) error = %v", err)
	}
	create, err := NewDelta(KindExchange, 12, nil, Plain{"amount": 3, "type": "technosphere"})
	if err != nil {
		t.Fatalf("NewDelta(create) error = %v", err)
	}
	parent := ID(41)
	rev := Revision{
		Metadata: Metadata{Parent: &parent, Revision: 42, Authors: "Ada", Title: "t", Description: "d"},
		Data:     []Delta{update, create},
	}

	encoded, err := Encode(rev)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if decoded.ID() != 42 || decoded.Metadata.ParentID() != 41 || decoded.Metadata.Authors != "Ada" {
		t.Fatalf("metadata not preserved: %#v", decoded.Metadata)
	}
	if len(decoded.Data) != 2 || decoded.Data[0].Kind != KindActivity || decoded.Data[1].ID != 12 {
		t.Fatalf("deltas not preserved: %#v", decoded.Data)
	}

	want, err := update.Apply(old)
	if err != nil {
		t.Fatalf("Apply(original) error = %v", err)
	}
	got, err := decoded.Data[0].Apply(old)
	if err != nil {
		t.Fatalf("Apply(decoded) error = %v", err)
	}
	if !Equal(got, want) {
		t.Fatalf("decoded apply = %#v, want %#v", got, want)
	}
	if got["props"].(map[string]any)["big"] != int64(1)<<60+1 {
		t.Fatalf("large integer lost precision: %v", got["props"])
	}
	if _, err := decoded.Data[0].Apply(Plain{"name": "iron"}); !errors.Is(err, ErrPatchMismatch) {
		t.Fatalf("expected decoded delta to detect mismatch, got %v", err)
	}

	reencoded, err := Encode(decoded)
	if err != nil {
		t.Fatalf("Encode(decoded) error = %v", err)
	}
	if string(reencoded) != string(encoded) {
		t.Fatalf("re-encoding differs:\n%s\n%s", encoded, reencoded)
	}
}

// TestEncodeWireShape verifies the documented top-level field names.
func TestEncodeWireShape(t *testing.T) {
	d, err := NewDelta(KindMethod, 5, nil, Plain{"unit": "kg CO2-Eq"})
	if err != nil {
		t.Fatalf("NewDelta() error = %v", err)
	}
	encoded, err := Encode(Revision{Metadata: Metadata{Revision: 7, Authors: "a", Title: "b", Description: "c"}, Data: []Delta{d}})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	var wire map[string]any
	if err := json.Unmarshal(encoded, &wire); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	meta := wire["metadata"].(map[string]any)
	for _, key := range []string{"parent_revision", "revision", "authors", "title", "description"} {
		if _, ok := meta[key]; !ok {
			t.Fatalf("metadata missing %q: %s", key, encoded)
		}
	}
	if meta["parent_revision"] != nil {
		t.Fatalf("expected null parent, got %v", meta["parent_revision"])
	}
	data := wire["data"].([]any)
	entry := data[0].(map[string]any)
	if entry["type"] != "method" || entry["id"].(float64) != 5 {
		t.Fatalf("unexpected delta entry %v", entry)
	}
	if _, ok := entry["delta"].(map[string]any); !ok {
		t.Fatalf("expected delta object, got %v", entry["delta"])
	}
}

// TestDecodeRejectsMalformedInput verifies malformed wire values fail with ErrDecode.
func TestDecodeRejectsMalformedInput(t *testing.T) {
	cases := map[string]string{
		"not json":         `{`,
		"missing metadata": `{"data":[]}`,
		"missing data":     `{"metadata":{"parent_revision":null,"revision":1,"authors":"a","title":"b","description":"c"}}`,
		"zero revision":    `{"metadata":{"parent_revision":null,"revision":0,"authors":"a","title":"b","description":"c"},"data":[]}`,
		"missing title":    `{"metadata":{"parent_revision":null,"revision":1,"authors":"a","description":"c"},"data":[]}`,
		"unknown field":    `{"metadata":{"parent_revision":null,"revision":1,"authors":"a","title":"b","description":"c"},"data":[],"x":1}`,
		"unknown kind":     `{"metadata":{"parent_revision":null,"revision":1,"authors":"a","title":"b","description":"c"},"data":[{"type":"flow","id":1,"delta":{"version":1,"ops":[]}}]}`,
		"missing id":       `{"metadata":{"parent_revision":null,"revision":1,"authors":"a","title":"b","description":"c"},"data":[{"type":"activity","delta":{"version":1,"ops":[]}}]}`,
		"bad op":           `{"metadata":{"parent_revision":null,"revision":1,"authors":"a","title":"b","description":"c"},"data":[{"type":"activity","id":1,"delta":{"version":1,"ops":[{"op":"swap","path":[]}]}}]}`,
		"null delta":       `{"metadata":{"parent_revision":null,"revision":1,"authors":"a","title":"b","description":"c"},"data":[{"type":"activity","id":1,"delta":null}]}`,
		"data not array":   `{"metadata":{"parent_revision":null,"revision":1,"authors":"a","title":"b","description":"c"},"data":null}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(raw))
			if !errors.Is(err, ErrDecode) {
				t.Fatalf("expected ErrDecode, got %v", err)
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("expected *DecodeError, got %T", err)
			}
			if !strings.HasPrefix(err.Error(), ErrDecode.Error()) {
				t.Fatalf("unexpected message %q", err.Error())
			}
		})
	}
}
