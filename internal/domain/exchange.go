package domain

import (
	"math"
	"slices"
	"strings"

	"github.com/hylla/lcarev/internal/revision"
)

// ExchangeType classifies an edge between two nodes.
type ExchangeType string

// ExchangeType values accepted for exchanges.
const (
	ExchangeBiosphere          ExchangeType = "biosphere"
	ExchangeProduction         ExchangeType = "production"
	ExchangeSubstitution       ExchangeType = "substitution"
	ExchangeGenericProduction  ExchangeType = "generic production"
	ExchangeTechnosphere       ExchangeType = "technosphere"
	ExchangeGenericConsumption ExchangeType = "generic consumption"
)

// validExchangeTypes stores the accepted exchange types.
var validExchangeTypes = []ExchangeType{
	ExchangeBiosphere,
	ExchangeProduction,
	ExchangeSubstitution,
	ExchangeGenericProduction,
	ExchangeTechnosphere,
	ExchangeGenericConsumption,
}

// NormalizeExchangeType canonicalizes an exchange type.
func NormalizeExchangeType(t ExchangeType) ExchangeType {
	return ExchangeType(strings.TrimSpace(strings.ToLower(string(t))))
}

// IsValidExchangeType reports whether t is an accepted exchange type.
func IsValidExchangeType(t ExchangeType) bool {
	return slices.Contains(validExchangeTypes, NormalizeExchangeType(t))
}

// Uncertainty describes the distribution of an exchange amount.
type Uncertainty struct {
	Type    int
	Loc     float64
	Scale   float64
	Shape   float64
	Minimum float64
	Maximum float64
}

// Exchange is one flow from an input node into an output node.
type Exchange struct {
	ID          int64
	Input       Key
	Output      Key
	Type        ExchangeType
	Amount      float64
	Unit        string
	Comment     string
	Uncertainty Uncertainty
	Pedigree    map[string]int64
	Properties  map[string]float64
}

// ExchangeInput holds input values for exchange construction.
type ExchangeInput struct {
	ID          int64
	Input       Key
	Output      Key
	Type        ExchangeType
	Amount      float64
	Unit        string
	Comment     string
	Uncertainty Uncertainty
	Pedigree    map[string]int64
	Properties  map[string]float64
}

// NewExchange validates and constructs an exchange.
func NewExchange(in ExchangeInput) (Exchange, error) {
	e := Exchange{
		ID:          in.ID,
		Input:       trimKey(in.Input),
		Output:      trimKey(in.Output),
		Type:        NormalizeExchangeType(in.Type),
		Amount:      in.Amount,
		Unit:        strings.TrimSpace(in.Unit),
		Comment:     strings.TrimSpace(in.Comment),
		Uncertainty: in.Uncertainty,
		Pedigree:    cloneInts(in.Pedigree),
		Properties:  cloneFloats(in.Properties),
	}
	if err := e.Validate(); err != nil {
		return Exchange{}, err
	}
	return e, nil
}

// Validate checks required fields.
func (e Exchange) Validate() error {
	if e.ID <= 0 {
		return ErrInvalidID
	}
	if !e.Input.Valid() || !e.Output.Valid() {
		return ErrInvalidKey
	}
	if !IsValidExchangeType(e.Type) {
		return ErrInvalidExchangeType
	}
	if !isFinite(e.Amount) {
		return ErrInvalidAmount
	}
	// NaN marks an unset uncertainty field; infinities are never valid.
	u := e.Uncertainty
	for _, v := range []float64{u.Loc, u.Scale, u.Shape, u.Minimum, u.Maximum} {
		if math.IsInf(v, 0) {
			return ErrInvalidAmount
		}
	}
	for _, v := range e.Properties {
		if !isFinite(v) {
			return ErrInvalidAmount
		}
	}
	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// RecordKind implements revision.Record.
func (e Exchange) RecordKind() revision.Kind {
	return revision.KindExchange
}

// RecordID implements revision.Record.
func (e Exchange) RecordID() int64 {
	return e.ID
}

// trimKey trims both key parts.
func trimKey(k Key) Key {
	return Key{Database: strings.TrimSpace(k.Database), Code: strings.TrimSpace(k.Code)}
}

// cloneInts copies an int map, returning an empty map for nil.
func cloneInts(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// cloneFloats copies a float map, returning an empty map for nil.
func cloneFloats(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
