package revision

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTypeMismatch and related errors describe revision engine failures.
var (
	ErrTypeMismatch      = errors.New("record kind mismatch")
	ErrIdentityMismatch  = errors.New("record id mismatch")
	ErrUnknownRecordKind = errors.New("unknown record kind")
	ErrPatchMismatch     = errors.New("patch does not match base state")
	ErrBrokenHistory     = errors.New("broken revision history")
	ErrUnknownHead       = errors.New("unknown head revision")
	ErrCycleDetected     = errors.New("revision cycle detected")
	ErrDuplicateRevision = errors.New("duplicate revision id")
	ErrDecode            = errors.New("decode revision")
)

// PatchMismatchError reports the path where a patch disagreed with its base.
type PatchMismatchError struct {
	Path   Path
	Op     OpKind
	Reason string
}

// Error implements error.
func (e *PatchMismatchError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s at %s: %s", ErrPatchMismatch, e.Path, e.Reason)
	}
	return fmt.Sprintf("%s at %s: %s: %s", ErrPatchMismatch, e.Path, e.Op, e.Reason)
}

// Is lets errors.Is match ErrPatchMismatch.
func (e *PatchMismatchError) Is(target error) bool {
	return target == ErrPatchMismatch
}

// mismatch builds a PatchMismatchError for one op.
func mismatch(op Op, format string, args ...any) error {
	return &PatchMismatchError{
		Path:   op.Path,
		Op:     op.Kind,
		Reason: fmt.Sprintf(format, args...),
	}
}

// DecodeError reports a malformed transport value.
type DecodeError struct {
	Field string
	Err   error
}

// Error implements error.
func (e *DecodeError) Error() string {
	var b strings.Builder
	b.WriteString(ErrDecode.Error())
	if e.Field != "" {
		b.WriteString(" ")
		b.WriteString(e.Field)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Is lets errors.Is match ErrDecode.
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

// Unwrap returns the underlying cause.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// decodeErr builds a DecodeError for one field.
func decodeErr(field string, err error) error {
	return &DecodeError{Field: field, Err: err}
}
