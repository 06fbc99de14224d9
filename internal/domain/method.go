package domain

import (
	"strings"

	"github.com/hylla/lcarev/internal/revision"
)

// Method is one impact assessment method.
type Method struct {
	ID           int64
	Name         []string
	Unit         string
	Description  string
	Abbreviation string
}

// NewMethod validates and constructs a method. Name is the method's identifying tuple.
func NewMethod(id int64, name []string, unit, description string) (Method, error) {
	m := Method{
		ID:          id,
		Name:        normalizeStrings(name),
		Unit:        strings.TrimSpace(unit),
		Description: strings.TrimSpace(description),
	}
	m.Abbreviation = abbreviate(m.Name)
	if err := m.Validate(); err != nil {
		return Method{}, err
	}
	return m, nil
}

// Validate checks required fields.
func (m Method) Validate() error {
	if m.ID <= 0 {
		return ErrInvalidID
	}
	if len(m.Name) == 0 {
		return ErrInvalidName
	}
	return nil
}

// DisplayName joins the name tuple.
func (m Method) DisplayName() string {
	return strings.Join(m.Name, " / ")
}

// RecordKind implements revision.Record.
func (m Method) RecordKind() revision.Kind {
	return revision.KindMethod
}

// RecordID implements revision.Record.
func (m Method) RecordID() int64 {
	return m.ID
}

// abbreviate builds a short lowercase label from the first letters of each name word.
func abbreviate(name []string) string {
	parts := make([]string, 0, len(name))
	for _, segment := range name {
		var b strings.Builder
		for _, word := range strings.Fields(segment) {
			b.WriteString(strings.ToLower(string([]rune(word)[0])))
		}
		if b.Len() > 0 {
			parts = append(parts, b.String())
		}
	}
	return strings.Join(parts, ".")
}
