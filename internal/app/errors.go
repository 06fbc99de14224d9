package app

import "errors"

// ErrNotFound and related errors describe validation and runtime failures.
var (
	ErrNotFound             = errors.New("not found")
	ErrStaleHead            = errors.New("revision parent is not the current head")
	ErrDiverged             = errors.New("revision does not extend the local head")
	ErrRevisionExists       = errors.New("revision already exists")
	ErrInvalidBatch         = errors.New("invalid batch")
	ErrUnsupportedBundle    = errors.New("unsupported revision bundle")
	ErrUnrepresentableState = errors.New("replayed state does not round trip through its record")
)
