package domain

import "errors"

var (
	ErrInvalidID           = errors.New("invalid id")
	ErrInvalidName         = errors.New("invalid name")
	ErrInvalidDatabase     = errors.New("invalid database")
	ErrInvalidCode         = errors.New("invalid code")
	ErrInvalidNodeType     = errors.New("invalid node type")
	ErrInvalidExchangeType = errors.New("invalid exchange type")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidKey          = errors.New("invalid node key")
	ErrInvalidPlain        = errors.New("invalid plain representation")
)
