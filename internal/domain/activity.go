package domain

import (
	"slices"
	"strings"

	"github.com/hylla/lcarev/internal/revision"
)

// NodeType classifies an activity node.
type NodeType string

// NodeType values accepted for inventory nodes.
const (
	NodeTypeProcess            NodeType = "process"
	NodeTypeEmission           NodeType = "emission"
	NodeTypeNaturalResource    NodeType = "natural resource"
	NodeTypeProduct            NodeType = "product"
	NodeTypeEconomic           NodeType = "economic"
	NodeTypeInventoryIndicator NodeType = "inventory indicator"
)

// DefaultNodeType is used when an activity omits its type.
const DefaultNodeType = NodeTypeProcess

// validNodeTypes stores the accepted node types.
var validNodeTypes = []NodeType{
	NodeTypeProcess,
	NodeTypeEmission,
	NodeTypeNaturalResource,
	NodeTypeProduct,
	NodeTypeEconomic,
	NodeTypeInventoryIndicator,
}

// NormalizeNodeType canonicalizes a node type, defaulting blanks to process.
func NormalizeNodeType(t NodeType) NodeType {
	t = NodeType(strings.TrimSpace(strings.ToLower(string(t))))
	if t == "" {
		return DefaultNodeType
	}
	return t
}

// IsValidNodeType reports whether t is an accepted node type.
func IsValidNodeType(t NodeType) bool {
	return slices.Contains(validNodeTypes, NormalizeNodeType(t))
}

// Key identifies a node by database and code.
type Key struct {
	Database string
	Code     string
}

// String renders the key as database/code.
func (k Key) String() string {
	return k.Database + "/" + k.Code
}

// Valid reports whether both key parts are set.
func (k Key) Valid() bool {
	return strings.TrimSpace(k.Database) != "" && strings.TrimSpace(k.Code) != ""
}

// Classification is one (system, value) classification pair.
type Classification struct {
	System string
	Value  string
}

// Activity is one inventory node.
type Activity struct {
	ID               int64
	Database         string
	Code             string
	Name             string
	Location         string
	Unit             string
	Type             NodeType
	ReferenceProduct string
	ProductionAmount float64
	Comment          string
	Categories       []string
	Classifications  []Classification
	Synonyms         []string
}

// ActivityInput holds input values for activity construction.
type ActivityInput struct {
	ID               int64
	Database         string
	Code             string
	Name             string
	Location         string
	Unit             string
	Type             NodeType
	ReferenceProduct string
	ProductionAmount float64
	Comment          string
	Categories       []string
	Classifications  []Classification
	Synonyms         []string
}

// NewActivity validates and constructs an activity.
func NewActivity(in ActivityInput) (Activity, error) {
	a := Activity{
		ID:               in.ID,
		Database:         strings.TrimSpace(in.Database),
		Code:             strings.TrimSpace(in.Code),
		Name:             strings.TrimSpace(in.Name),
		Location:         strings.TrimSpace(in.Location),
		Unit:             strings.TrimSpace(in.Unit),
		Type:             NormalizeNodeType(in.Type),
		ReferenceProduct: strings.TrimSpace(in.ReferenceProduct),
		ProductionAmount: in.ProductionAmount,
		Comment:          strings.TrimSpace(in.Comment),
		Categories:       normalizeStrings(in.Categories),
		Classifications:  append([]Classification(nil), in.Classifications...),
		Synonyms:         normalizeStrings(in.Synonyms),
	}
	if err := a.Validate(); err != nil {
		return Activity{}, err
	}
	return a, nil
}

// Validate checks required fields.
func (a Activity) Validate() error {
	if a.ID <= 0 {
		return ErrInvalidID
	}
	if a.Database == "" {
		return ErrInvalidDatabase
	}
	if a.Code == "" {
		return ErrInvalidCode
	}
	if a.Name == "" {
		return ErrInvalidName
	}
	if !IsValidNodeType(a.Type) {
		return ErrInvalidNodeType
	}
	if !isFinite(a.ProductionAmount) {
		return ErrInvalidAmount
	}
	return nil
}

// Key returns the activity's database/code key.
func (a Activity) Key() Key {
	return Key{Database: a.Database, Code: a.Code}
}

// RecordKind implements revision.Record.
func (a Activity) RecordKind() revision.Kind {
	return revision.KindActivity
}

// RecordID implements revision.Record.
func (a Activity) RecordID() int64 {
	return a.ID
}

// normalizeStrings trims values and drops blanks.
func normalizeStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
