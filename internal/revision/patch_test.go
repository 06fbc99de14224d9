package revision

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

// TestDiffCapturesOnlyChangedField verifies the steel amount scenario end to end.
func TestDiffCapturesOnlyChangedField(t *testing.T) {
	old := Plain{"name": "steel", "amount": 1.0}
	new := Plain{"name": "steel", "amount": 2.5}

	patch, err := Diff(old, new)
	if err != nil {
		t.Fatalf("Diff() error = %v", err)
	}
	if len(patch.Ops) != 1 {
		t.Fatalf("expected 1 op, got %#v", patch.Ops)
	}
	op := patch.Ops[0]
	if op.Kind != OpReplace || op.Path.String() != "/amount" {
		t.Fatalf("unexpected op %#v", op)
	}

	got, err := Apply(patch, old)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !Equal(got, new) {
		t.Fatalf("Apply() = %#v, want %#v", got, new)
	}

	_, err = Apply(patch, Plain{"name": "steel", "amount": 9.0})
	if !errors.Is(err, ErrPatchMismatch) {
		t.Fatalf("expected ErrPatchMismatch, got %v", err)
	}
}

// TestDiffApplyRoundTrip verifies apply(diff(a, b), a) == b across nested shapes.
func TestDiffApplyRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		a    Plain
		b    Plain
	}{
		{
			name: "identical",
			a:    Plain{"name": "steel"},
			b:    Plain{"name": "steel"},
		},
		{
			name: "add and remove keys",
			a:    Plain{"name": "steel", "unit": "kilogram"},
			b:    Plain{"name": "steel", "location": "GLO"},
		},
		{
			name: "nested mapping",
			a:    Plain{"props": map[string]any{"density": 7.8, "grade": "A"}},
			b:    Plain{"props": map[string]any{"density": 7.9, "alloy": true}},
		},
		{
			name: "sequence append",
			a:    Plain{"categories": []string{"metals"}},
			b:    Plain{"categories": []string{"metals", "steel", "primary"}},
		},
		{
			name: "sequence prepend",
			a:    Plain{"categories": []string{"steel", "primary"}},
			b:    Plain{"categories": []string{"metals", "steel", "primary"}},
		},
		{
			name: "sequence shrink",
			a:    Plain{"categories": []string{"a", "b", "c", "d"}},
			b:    Plain{"categories": []string{"a", "d"}},
		},
		{
			name: "sequence of mappings",
			a:    Plain{"exchanges": []any{map[string]any{"amount": 1, "type": "production"}}},
			b:    Plain{"exchanges": []any{map[string]any{"amount": 2, "type": "production"}, map[string]any{"amount": 0.5, "type": "biosphere"}}},
		},
		{
			name: "type change",
			a:    Plain{"comment": []string{"x"}},
			b:    Plain{"comment": "x"},
		},
		{
			name: "null values",
			a:    Plain{"comment": nil, "code": "abc"},
			b:    Plain{"comment": "note", "code": nil},
		},
		{
			name: "empty to populated",
			a:    Plain{},
			b:    Plain{"name": "steel", "amount": int64(3)},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			patch, err := Diff(tc.a, tc.b)
			if err != nil {
				t.Fatalf("Diff() error = %v", err)
			}
			got, err := Apply(patch, tc.a)
			if err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			want, _ := Normalize(tc.b)
			if !Equal(got, want) {
				t.Fatalf("Apply() = %#v, want %#v", got, want)
			}
		})
	}
}

// TestDiffCreation verifies that a nil old state produces one add per field.
func TestDiffCreation(t *testing.T) {
	b := Plain{"name": "steel", "amount": 2.5, "unit": "kilogram"}
	patch, err := Diff(nil, b)
	if err != nil {
		t.Fatalf("Diff() error = %v", err)
	}
	if patch.Base != "" {
		t.Fatalf("expected empty base digest for creation, got %q", patch.Base)
	}
	if len(patch.Ops) != 3 {
		t.Fatalf("expected 3 ops, got %d", len(patch.Ops))
	}
	for _, op := range patch.Ops {
		if op.Kind != OpAdd {
			t.Fatalf("expected add op, got %#v", op)
		}
	}
	got, err := Apply(patch, nil)
	if err != nil {
		t.Fatalf("Apply(nil) error = %v", err)
	}
	if !Equal(got, b) {
		t.Fatalf("Apply(nil) = %#v, want %#v", got, b)
	}
	got, err = Apply(patch, Plain{})
	if err != nil {
		t.Fatalf("Apply(empty) error = %v", err)
	}
	if !Equal(got, b) {
		t.Fatalf("Apply(empty) = %#v, want %#v", got, b)
	}
	if _, err := Apply(patch, Plain{"other": 1}); !errors.Is(err, ErrPatchMismatch) {
		t.Fatalf("expected creation patch to reject existing state, got %v", err)
	}
}

// TestDiffNoop verifies that identical inputs produce an empty patch.
func TestDiffNoop(t *testing.T) {
	a := Plain{"name": "steel", "tags": []string{"x"}}
	patch, err := Diff(a, a)
	if err != nil {
		t.Fatalf("Diff() error = %v", err)
	}
	if !patch.Empty() {
		t.Fatalf("expected empty patch, got %#v", patch.Ops)
	}
	got, err := Apply(patch, a)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !Equal(got, a) {
		t.Fatalf("Apply() = %#v, want %#v", got, a)
	}
}

// TestDiffDeterministic verifies repeated diffs encode to identical bytes.
func TestDiffDeterministic(t *testing.T) {
	a := Plain{"z": 1, "a": 2, "m": map[string]any{"q": 1, "b": 2}, "k": "x"}
	b := Plain{"z": 3, "b": 2, "m": map[string]any{"q": 2, "c": 2}, "y": "x"}
	var first []byte
	for i := 0; i < 20; i++ {
		patch, err := Diff(a, b)
		if err != nil {
			t.Fatalf("Diff() error = %v", err)
		}
		encoded, err := json.Marshal(patch)
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		if first == nil {
			first = encoded
			continue
		}
		if string(encoded) != string(first) {
			t.Fatalf("non-deterministic patch:\n%s\n%s", first, encoded)
		}
	}
}

// TestApplyMismatchCases verifies stale bases are rejected and left untouched.
func TestApplyMismatchCases(t *testing.T) {
	a := Plain{"name": "steel", "unit": "kilogram", "tags": []string{"x", "y"}}
	b := Plain{"name": "iron", "location": "GLO", "tags": []string{"x"}}
	patch, err := Diff(a, b)
	if err != nil {
		t.Fatalf("Diff() error = %v", err)
	}

	cases := []struct {
		name string
		base Plain
	}{
		{name: "changed value", base: Plain{"name": "copper", "unit": "kilogram", "tags": []string{"x", "y"}}},
		{name: "key already removed", base: Plain{"name": "steel", "tags": []string{"x", "y"}}},
		{name: "key already added", base: Plain{"name": "steel", "unit": "kilogram", "location": "RER", "tags": []string{"x", "y"}}},
		{name: "sequence differs", base: Plain{"name": "steel", "unit": "kilogram", "tags": []string{"x", "z"}}},
		{name: "untouched field differs", base: Plain{"name": "steel", "unit": "kilogram", "tags": []string{"x", "y"}, "extra": 1}},
		{name: "empty", base: Plain{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			before, _ := Normalize(tc.base)
			_, err := Apply(patch, tc.base)
			if !errors.Is(err, ErrPatchMismatch) {
				t.Fatalf("expected ErrPatchMismatch, got %v", err)
			}
			var mismatchErr *PatchMismatchError
			if !errors.As(err, &mismatchErr) {
				t.Fatalf("expected *PatchMismatchError, got %T", err)
			}
			if !Equal(tc.base, before) {
				t.Fatalf("base mutated by failed apply: %#v", tc.base)
			}
		})
	}
}

// TestApplyDoesNotAliasPatchValues verifies results can be mutated without touching the patch.
func TestApplyDoesNotAliasPatchValues(t *testing.T) {
	patch, err := Diff(nil, Plain{"props": map[string]any{"a": 1}})
	if err != nil {
		t.Fatalf("Diff() error = %v", err)
	}
	first, err := Apply(patch, nil)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	first["props"].(map[string]any)["a"] = int64(99)
	second, err := Apply(patch, nil)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got := second["props"].(map[string]any)["a"]; got != int64(1) {
		t.Fatalf("patch value aliased, got %v", got)
	}
}

// TestNumbersCompareNumerically verifies int and float forms of one number are equal.
func TestNumbersCompareNumerically(t *testing.T) {
	if !Equal(Plain{"amount": 1}, Plain{"amount": 1.0}) {
		t.Fatal("expected int 1 and float 1.0 to compare equal")
	}
	if Equal(Plain{"amount": 1}, Plain{"amount": "1"}) {
		t.Fatal("expected number and string to differ")
	}
}

// TestLargeIntegersCompareExactly verifies int64/float64 comparison keeps full precision.
func TestLargeIntegersCompareExactly(t *testing.T) {
	old := Plain{"x": int64(1<<53 + 1)}
	new := Plain{"x": float64(1 << 53)}
	if Equal(old, new) {
		t.Fatal("expected 2^53+1 and float 2^53 to differ")
	}
	patch, err := Diff(old, new)
	if err != nil {
		t.Fatalf("Diff() error = %v", err)
	}
	if len(patch.Ops) != 1 || patch.Ops[0].Kind != OpReplace {
		t.Fatalf("expected one replace op, got %#v", patch.Ops)
	}
	got, err := Apply(patch, old)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got["x"] != float64(1<<53) {
		t.Fatalf("expected float 2^53 after apply, got %#v", got["x"])
	}
	if !Equal(Plain{"x": int64(1 << 53)}, Plain{"x": float64(1 << 53)}) {
		t.Fatal("expected exact integral float to equal int")
	}
	if Equal(Plain{"x": int64(2)}, Plain{"x": 2.5}) {
		t.Fatal("expected fractional float to differ from int")
	}
	if Equal(Plain{"x": int64(math.MaxInt64)}, Plain{"x": float64(1 << 63)}) {
		t.Fatal("expected out of range float to differ from int")
	}
}

// TestNegativeZeroMatchesZeroBase verifies -0 and 0 are one base state.
func TestNegativeZeroMatchesZeroBase(t *testing.T) {
	patch, err := Diff(Plain{"x": math.Copysign(0, -1), "name": "a"}, Plain{"x": math.Copysign(0, -1), "name": "b"})
	if err != nil {
		t.Fatalf("Diff() error = %v", err)
	}
	got, err := Apply(patch, Plain{"x": 0.0, "name": "a"})
	if err != nil {
		t.Fatalf("Apply() on +0 base error = %v", err)
	}
	if !Equal(got, Plain{"x": 0.0, "name": "b"}) {
		t.Fatalf("unexpected result %#v", got)
	}
	n, err := Normalize(Plain{"x": math.Copysign(0, -1)})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if math.Signbit(n["x"].(float64)) {
		t.Fatal("expected normalized zero to be positive")
	}
}

// TestNormalizeRejectsUnsupportedValues verifies opaque values cannot enter a patch.
func TestNormalizeRejectsUnsupportedValues(t *testing.T) {
	if _, err := Diff(nil, Plain{"ch": make(chan int)}); err == nil {
		t.Fatal("expected unsupported value error")
	}
}

// TestPatchUnmarshalRejectsUnknownOps verifies strict patch decoding.
func TestPatchUnmarshalRejectsUnknownOps(t *testing.T) {
	var p Patch
	err := json.Unmarshal([]byte(`{"version":1,"ops":[{"op":"move","path":["a"]}]}`), &p)
	if err == nil {
		t.Fatal("expected unknown op error")
	}
	err = json.Unmarshal([]byte(`{"version":2,"ops":[]}`), &p)
	if err == nil {
		t.Fatal("expected unsupported version error")
	}
	err = json.Unmarshal([]byte(`{"version":1,"ops":[],"extra":true}`), &p)
	if err == nil {
		t.Fatal("expected unknown field error")
	}
}
