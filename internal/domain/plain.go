package domain

import (
	"fmt"
	"math"
	"sort"

	"github.com/hylla/lcarev/internal/revision"
)

// Plain field names. They follow the established inventory dataset vocabulary.
const (
	fieldDatabase         = "database"
	fieldCode             = "code"
	fieldName             = "name"
	fieldLocation         = "location"
	fieldUnit             = "unit"
	fieldType             = "type"
	fieldReferenceProduct = "reference product"
	fieldProductionAmount = "production amount"
	fieldComment          = "comment"
	fieldCategories       = "categories"
	fieldClassifications  = "classifications"
	fieldSynonyms         = "synonyms"
	fieldInput            = "input"
	fieldOutput           = "output"
	fieldAmount           = "amount"
	fieldUncertaintyType  = "uncertainty type"
	fieldLoc              = "loc"
	fieldScale            = "scale"
	fieldShape            = "shape"
	fieldMinimum          = "minimum"
	fieldMaximum          = "maximum"
	fieldPedigree         = "pedigree"
	fieldProperties       = "properties"
	fieldDescription      = "description"
	fieldAbbreviation     = "abbreviation"
)

// ActivityPlain reduces an activity to its plain representation.
func ActivityPlain(a Activity) revision.Plain {
	classifications := make([]any, 0, len(a.Classifications))
	for _, c := range a.Classifications {
		classifications = append(classifications, []any{c.System, c.Value})
	}
	return revision.Plain{
		fieldDatabase:         a.Database,
		fieldCode:             a.Code,
		fieldName:             a.Name,
		fieldLocation:         a.Location,
		fieldUnit:             a.Unit,
		fieldType:             string(a.Type),
		fieldReferenceProduct: a.ReferenceProduct,
		fieldProductionAmount: a.ProductionAmount,
		fieldComment:          a.Comment,
		fieldCategories:       stringsToAny(a.Categories),
		fieldClassifications:  classifications,
		fieldSynonyms:         stringsToAny(a.Synonyms),
	}
}

// ActivityFromPlain rebuilds an activity from its plain representation.
func ActivityFromPlain(id int64, p revision.Plain) (Activity, error) {
	r := newPlainReader(p)
	in := ActivityInput{
		ID:               id,
		Database:         r.str(fieldDatabase),
		Code:             r.str(fieldCode),
		Name:             r.str(fieldName),
		Location:         r.str(fieldLocation),
		Unit:             r.str(fieldUnit),
		Type:             NodeType(r.str(fieldType)),
		ReferenceProduct: r.str(fieldReferenceProduct),
		ProductionAmount: r.number(fieldProductionAmount),
		Comment:          r.str(fieldComment),
		Categories:       r.strs(fieldCategories),
		Synonyms:         r.strs(fieldSynonyms),
	}
	for i, pair := range r.list(fieldClassifications) {
		items, ok := pair.([]any)
		if !ok || len(items) != 2 {
			r.fail(fmt.Sprintf("%s[%d]", fieldClassifications, i), "expected [system, value]")
			continue
		}
		system, okSystem := items[0].(string)
		value, okValue := items[1].(string)
		if !okSystem || !okValue {
			r.fail(fmt.Sprintf("%s[%d]", fieldClassifications, i), "expected strings")
			continue
		}
		in.Classifications = append(in.Classifications, Classification{System: system, Value: value})
	}
	if r.err != nil {
		return Activity{}, r.err
	}
	return NewActivity(in)
}

// ExchangePlain reduces an exchange to its plain representation.
func ExchangePlain(e Exchange) revision.Plain {
	pedigree := make(map[string]any, len(e.Pedigree))
	for k, v := range e.Pedigree {
		pedigree[k] = v
	}
	properties := make(map[string]any, len(e.Properties))
	for k, v := range e.Properties {
		properties[k] = v
	}
	return revision.Plain{
		fieldInput:           []any{e.Input.Database, e.Input.Code},
		fieldOutput:          []any{e.Output.Database, e.Output.Code},
		fieldType:            string(e.Type),
		fieldAmount:          e.Amount,
		fieldUnit:            e.Unit,
		fieldComment:         e.Comment,
		fieldUncertaintyType: int64(e.Uncertainty.Type),
		fieldLoc:             unsetAsNil(e.Uncertainty.Loc),
		fieldScale:           unsetAsNil(e.Uncertainty.Scale),
		fieldShape:           unsetAsNil(e.Uncertainty.Shape),
		fieldMinimum:         unsetAsNil(e.Uncertainty.Minimum),
		fieldMaximum:         unsetAsNil(e.Uncertainty.Maximum),
		fieldPedigree:        pedigree,
		fieldProperties:      properties,
	}
}

// ExchangeFromPlain rebuilds an exchange from its plain representation.
func ExchangeFromPlain(id int64, p revision.Plain) (Exchange, error) {
	r := newPlainReader(p)
	in := ExchangeInput{
		ID:      id,
		Input:   r.key(fieldInput),
		Output:  r.key(fieldOutput),
		Type:    ExchangeType(r.str(fieldType)),
		Amount:  r.number(fieldAmount),
		Unit:    r.str(fieldUnit),
		Comment: r.str(fieldComment),
		Uncertainty: Uncertainty{
			Type:    int(r.integer(fieldUncertaintyType)),
			Loc:     r.optionalNumber(fieldLoc),
			Scale:   r.optionalNumber(fieldScale),
			Shape:   r.optionalNumber(fieldShape),
			Minimum: r.optionalNumber(fieldMinimum),
			Maximum: r.optionalNumber(fieldMaximum),
		},
		Pedigree:   map[string]int64{},
		Properties: map[string]float64{},
	}
	pedigree := r.mapping(fieldPedigree)
	for _, k := range sortedPlainKeys(pedigree) {
		v, ok := pedigree[k].(int64)
		if !ok {
			r.fail(fieldPedigree+"."+k, "expected integer")
			continue
		}
		in.Pedigree[k] = v
	}
	properties := r.mapping(fieldProperties)
	for _, k := range sortedPlainKeys(properties) {
		v, ok := asFloat(properties[k])
		if !ok {
			r.fail(fieldProperties+"."+k, "expected number")
			continue
		}
		in.Properties[k] = v
	}
	if r.err != nil {
		return Exchange{}, r.err
	}
	return NewExchange(in)
}

// MethodPlain reduces a method to its plain representation.
func MethodPlain(m Method) revision.Plain {
	return revision.Plain{
		fieldName:         stringsToAny(m.Name),
		fieldUnit:         m.Unit,
		fieldDescription:  m.Description,
		fieldAbbreviation: m.Abbreviation,
	}
}

// MethodFromPlain rebuilds a method from its plain representation.
func MethodFromPlain(id int64, p revision.Plain) (Method, error) {
	r := newPlainReader(p)
	name := r.strs(fieldName)
	unit := r.str(fieldUnit)
	description := r.str(fieldDescription)
	abbreviation := r.str(fieldAbbreviation)
	if r.err != nil {
		return Method{}, r.err
	}
	m, err := NewMethod(id, name, unit, description)
	if err != nil {
		return Method{}, err
	}
	if abbreviation != "" {
		m.Abbreviation = abbreviation
	}
	return m, nil
}

// plainReader extracts typed fields from a normalized plain value, keeping the first error.
type plainReader struct {
	p   revision.Plain
	err error
}

// newPlainReader normalizes p before reading from it.
func newPlainReader(p revision.Plain) *plainReader {
	norm, err := revision.Normalize(p)
	if err != nil {
		return &plainReader{p: revision.Plain{}, err: fmt.Errorf("%w: %v", ErrInvalidPlain, err)}
	}
	return &plainReader{p: norm}
}

// fail records the first decoding failure.
func (r *plainReader) fail(field, reason string) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %s: %s", ErrInvalidPlain, field, reason)
	}
}

// str reads an optional string field.
func (r *plainReader) str(field string) string {
	raw, ok := r.p[field]
	if !ok || raw == nil {
		return ""
	}
	v, ok := raw.(string)
	if !ok {
		r.fail(field, "expected string")
	}
	return v
}

// number reads an optional numeric field.
func (r *plainReader) number(field string) float64 {
	raw, ok := r.p[field]
	if !ok || raw == nil {
		return 0
	}
	v, ok := asFloat(raw)
	if !ok {
		r.fail(field, "expected number")
	}
	return v
}

// optionalNumber reads a numeric field where null means unset (NaN).
func (r *plainReader) optionalNumber(field string) float64 {
	raw, ok := r.p[field]
	if !ok || raw == nil {
		return math.NaN()
	}
	v, ok := asFloat(raw)
	if !ok {
		r.fail(field, "expected number")
	}
	return v
}

// integer reads an optional integral field.
func (r *plainReader) integer(field string) int64 {
	raw, ok := r.p[field]
	if !ok || raw == nil {
		return 0
	}
	switch v := raw.(type) {
	case int64:
		return v
	case float64:
		if v == float64(int64(v)) {
			return int64(v)
		}
	}
	r.fail(field, "expected integer")
	return 0
}

// list reads an optional sequence field.
func (r *plainReader) list(field string) []any {
	raw, ok := r.p[field]
	if !ok || raw == nil {
		return nil
	}
	v, ok := raw.([]any)
	if !ok {
		r.fail(field, "expected sequence")
	}
	return v
}

// strs reads an optional sequence of strings.
func (r *plainReader) strs(field string) []string {
	items := r.list(field)
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			r.fail(fmt.Sprintf("%s[%d]", field, i), "expected string")
			continue
		}
		out = append(out, s)
	}
	return out
}

// mapping reads an optional nested mapping.
func (r *plainReader) mapping(field string) map[string]any {
	raw, ok := r.p[field]
	if !ok || raw == nil {
		return nil
	}
	v, ok := raw.(map[string]any)
	if !ok {
		r.fail(field, "expected mapping")
	}
	return v
}

// key reads a [database, code] pair.
func (r *plainReader) key(field string) Key {
	items := r.strs(field)
	if len(items) != 2 {
		r.fail(field, "expected [database, code]")
		return Key{}
	}
	return Key{Database: items[0], Code: items[1]}
}

// asFloat converts a normalized number.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// unsetAsNil maps the NaN used for unset uncertainty fields to null.
func unsetAsNil(f float64) any {
	if math.IsNaN(f) {
		return nil
	}
	return f
}

// stringsToAny widens a string slice for plain storage.
func stringsToAny(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

// sortedPlainKeys returns mapping keys in a stable order.
func sortedPlainKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
