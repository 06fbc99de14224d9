package revision

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// PatchVersion is the structural patch format written by Diff.
const PatchVersion = 1

// OpKind names one field-level patch operation.
type OpKind string

// OpKind values understood by Apply.
const (
	OpAdd     OpKind = "add"
	OpRemove  OpKind = "remove"
	OpReplace OpKind = "replace"
	OpInsert  OpKind = "insert"
	OpDelete  OpKind = "delete"
)

// valid reports whether k is a known op kind.
func (k OpKind) valid() bool {
	switch k {
	case OpAdd, OpRemove, OpReplace, OpInsert, OpDelete:
		return true
	default:
		return false
	}
}

// Op is one field-level change at a path.
type Op struct {
	Kind  OpKind `json:"op"`
	Path  Path   `json:"path"`
	Old   any    `json:"old,omitempty"`
	Value any    `json:"value,omitempty"`
}

// Patch is an ordered list of ops plus a digest of the state it was computed against.
type Patch struct {
	Version int    `json:"version"`
	Base    string `json:"base,omitempty"`
	Ops     []Op   `json:"ops"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return len(p.Ops) == 0
}

// Diff computes the patch turning old into new. A nil old yields a creation patch.
func Diff(old, new Plain) (Patch, error) {
	if new == nil {
		return Patch{}, errors.New("diff target is required")
	}
	newNorm, err := Normalize(new)
	if err != nil {
		return Patch{}, fmt.Errorf("normalize new: %w", err)
	}
	patch := Patch{Version: PatchVersion, Ops: []Op{}}
	if old == nil {
		for _, key := range sortedKeys(newNorm) {
			patch.Ops = append(patch.Ops, Op{Kind: OpAdd, Path: Path{key}, Value: newNorm[key]})
		}
		return patch, nil
	}

	oldNorm, err := Normalize(old)
	if err != nil {
		return Patch{}, fmt.Errorf("normalize old: %w", err)
	}
	patch.Base, err = digest(oldNorm)
	if err != nil {
		return Patch{}, err
	}
	patch.Ops = diffMap(patch.Ops, Path{}, oldNorm, newNorm)
	return patch, nil
}

// diffValue appends the ops that turn a into b at path.
func diffValue(ops []Op, path Path, a, b any) []Op {
	if valuesEqual(a, b) {
		return ops
	}
	switch av := a.(type) {
	case map[string]any:
		if bv, ok := b.(map[string]any); ok {
			return diffMap(ops, path, av, bv)
		}
	case []any:
		if bv, ok := b.([]any); ok {
			return diffSeq(ops, path, av, bv)
		}
	}
	return append(ops, Op{Kind: OpReplace, Path: path, Old: a, Value: b})
}

// diffMap walks the union of keys in sorted order.
func diffMap(ops []Op, path Path, a, b map[string]any) []Op {
	keys := sortedKeys(a)
	for _, key := range sortedKeys(b) {
		if _, ok := a[key]; !ok {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	for _, key := range keys {
		av, inA := a[key]
		bv, inB := b[key]
		switch {
		case inA && !inB:
			ops = append(ops, Op{Kind: OpRemove, Path: path.child(key), Old: av})
		case !inA && inB:
			ops = append(ops, Op{Kind: OpAdd, Path: path.child(key), Value: bv})
		default:
			ops = diffValue(ops, path.child(key), av, bv)
		}
	}
	return ops
}

// diffSeq trims the common prefix and suffix, pairs the middle element-wise,
// then deletes surplus old elements from the back and inserts surplus new ones.
func diffSeq(ops []Op, path Path, a, b []any) []Op {
	prefix := 0
	for prefix < len(a) && prefix < len(b) && valuesEqual(a[prefix], b[prefix]) {
		prefix++
	}
	suffix := 0
	for suffix < len(a)-prefix && suffix < len(b)-prefix && valuesEqual(a[len(a)-1-suffix], b[len(b)-1-suffix]) {
		suffix++
	}
	midA := a[prefix : len(a)-suffix]
	midB := b[prefix : len(b)-suffix]
	paired := min(len(midA), len(midB))
	for i := 0; i < paired; i++ {
		ops = diffValue(ops, path.child(prefix+i), midA[i], midB[i])
	}
	for i := len(midA) - 1; i >= paired; i-- {
		ops = append(ops, Op{Kind: OpDelete, Path: path.child(prefix + i), Old: midA[i]})
	}
	for i := paired; i < len(midB); i++ {
		ops = append(ops, Op{Kind: OpInsert, Path: path.child(prefix + i), Value: midB[i]})
	}
	return ops
}

// Apply replays patch against base. On any mismatch base is left untouched and
// the returned error matches ErrPatchMismatch.
func Apply(patch Patch, base Plain) (Plain, error) {
	if patch.Version != PatchVersion {
		return nil, &PatchMismatchError{Path: Path{}, Reason: fmt.Sprintf("unsupported patch version %d", patch.Version)}
	}
	baseNorm, err := Normalize(base)
	if err != nil {
		return nil, fmt.Errorf("normalize base: %w", err)
	}

	var working any = map[string]any{}
	if baseNorm != nil {
		working = cloneValue(map[string]any(baseNorm))
	}
	for _, op := range patch.Ops {
		working, err = applyAt(working, op.Path, op)
		if err != nil {
			return nil, err
		}
	}

	if patch.Base == "" {
		if len(baseNorm) != 0 {
			return nil, &PatchMismatchError{Path: Path{}, Reason: "creation patch applied to existing state"}
		}
	} else {
		got, err := digest(baseNorm)
		if err != nil {
			return nil, err
		}
		if got != patch.Base {
			return nil, &PatchMismatchError{Path: Path{}, Reason: "base state differs from the state the patch was computed against"}
		}
	}

	out, ok := working.(map[string]any)
	if !ok {
		return nil, &PatchMismatchError{Path: Path{}, Reason: "result is not a mapping"}
	}
	return Plain(out), nil
}

// applyAt applies op at the remaining path below node and returns the new node.
func applyAt(node any, rest Path, op Op) (any, error) {
	if len(rest) == 0 {
		if op.Kind != OpReplace {
			return nil, mismatch(op, "root only supports replace")
		}
		if !valuesEqual(node, op.Old) {
			return nil, mismatch(op, "prior value differs")
		}
		return cloneValue(op.Value), nil
	}

	switch container := node.(type) {
	case map[string]any:
		key, ok := rest[0].(string)
		if !ok {
			return nil, mismatch(op, "expected mapping key, got %v", rest[0])
		}
		current, exists := container[key]
		if len(rest) > 1 {
			if !exists {
				return nil, mismatch(op, "missing key %q", key)
			}
			child, err := applyAt(current, rest[1:], op)
			if err != nil {
				return nil, err
			}
			container[key] = child
			return container, nil
		}
		switch op.Kind {
		case OpAdd:
			if exists {
				return nil, mismatch(op, "key already present")
			}
			container[key] = cloneValue(op.Value)
		case OpRemove:
			if !exists {
				return nil, mismatch(op, "key already absent")
			}
			if !valuesEqual(current, op.Old) {
				return nil, mismatch(op, "prior value differs")
			}
			delete(container, key)
		case OpReplace:
			if !exists {
				return nil, mismatch(op, "key absent")
			}
			if !valuesEqual(current, op.Old) {
				return nil, mismatch(op, "prior value differs")
			}
			container[key] = cloneValue(op.Value)
		default:
			return nil, mismatch(op, "op needs a sequence, found a mapping")
		}
		return container, nil

	case []any:
		idx, ok := rest[0].(int)
		if !ok {
			return nil, mismatch(op, "expected sequence index, got %v", rest[0])
		}
		if len(rest) > 1 {
			if idx < 0 || idx >= len(container) {
				return nil, mismatch(op, "index %d out of range", idx)
			}
			child, err := applyAt(container[idx], rest[1:], op)
			if err != nil {
				return nil, err
			}
			container[idx] = child
			return container, nil
		}
		switch op.Kind {
		case OpInsert:
			if idx < 0 || idx > len(container) {
				return nil, mismatch(op, "insert index %d beyond length %d", idx, len(container))
			}
			return slices.Insert(container, idx, cloneValue(op.Value)), nil
		case OpDelete:
			if idx < 0 || idx >= len(container) {
				return nil, mismatch(op, "delete index %d out of range", idx)
			}
			if !valuesEqual(container[idx], op.Old) {
				return nil, mismatch(op, "prior value differs")
			}
			return slices.Delete(container, idx, idx+1), nil
		case OpReplace:
			if idx < 0 || idx >= len(container) {
				return nil, mismatch(op, "index %d out of range", idx)
			}
			if !valuesEqual(container[idx], op.Old) {
				return nil, mismatch(op, "prior value differs")
			}
			container[idx] = cloneValue(op.Value)
			return container, nil
		default:
			return nil, mismatch(op, "op needs a mapping, found a sequence")
		}

	default:
		return nil, mismatch(op, "cannot descend into %T", node)
	}
}

// digest fingerprints a normalized plain representation.
func digest(p Plain) (string, error) {
	if p == nil {
		p = Plain{}
	}
	encoded, err := json.Marshal(map[string]any(p))
	if err != nil {
		return "", fmt.Errorf("encode base digest: %w", err)
	}
	sum := sha256.Sum256(encoded)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

// UnmarshalJSON decodes a patch strictly, keeping integral numbers as int64.
func (p *Patch) UnmarshalJSON(data []byte) error {
	type wirePatch struct {
		Version int               `json:"version"`
		Base    string            `json:"base"`
		Ops     []json.RawMessage `json:"ops"`
	}
	var wire wirePatch
	if err := strictUnmarshal(data, &wire); err != nil {
		return err
	}
	if wire.Version != PatchVersion {
		return fmt.Errorf("unsupported patch version %d", wire.Version)
	}
	if wire.Ops == nil {
		return errors.New("patch ops are required")
	}

	out := Patch{Version: wire.Version, Base: wire.Base, Ops: make([]Op, 0, len(wire.Ops))}
	for i, raw := range wire.Ops {
		var op Op
		if err := strictUnmarshal(raw, &op); err != nil {
			return fmt.Errorf("ops[%d]: %w", i, err)
		}
		if !op.Kind.valid() {
			return fmt.Errorf("ops[%d]: unknown op %q", i, op.Kind)
		}
		if op.Path == nil {
			op.Path = Path{}
		}
		var err error
		if op.Old, err = normalizeValue(op.Old); err != nil {
			return fmt.Errorf("ops[%d].old: %w", i, err)
		}
		if op.Value, err = normalizeValue(op.Value); err != nil {
			return fmt.Errorf("ops[%d].value: %w", i, err)
		}
		out.Ops = append(out.Ops, op)
	}
	*p = out
	return nil
}

// strictUnmarshal rejects unknown fields and decodes numbers as json.Number.
func strictUnmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
