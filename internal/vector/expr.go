package vector

import (
	"fmt"
	"strconv"
	"strings"
)

// Expression is an attribute equality test of the form "field" = value.
type Expression struct {
	Field string
	Value string
}

// Where builds the expression selecting records whose field equals value.
func Where(field, value string) Expression {
	return Expression{Field: field, Value: value}
}

// String renders the expression in SQL-like syntax. Numeric values are left
// bare; anything else is single-quoted with embedded quotes doubled.
func (e Expression) String() string {
	field := `"` + strings.ReplaceAll(e.Field, `"`, `""`) + `"`
	if _, err := strconv.ParseFloat(e.Value, 64); err == nil {
		return fmt.Sprintf("%s = %s", field, e.Value)
	}
	return fmt.Sprintf("%s = '%s'", field, strings.ReplaceAll(e.Value, "'", "''"))
}

// Match reports whether the feature's stringified field equals the value.
// Features lacking the field never match.
func (e Expression) Match(f Feature) bool {
	id, err := IdentifierOf(f, e.Field)
	if err != nil {
		return false
	}
	return id == e.Value
}

// Select returns a new layer holding the features matching expr, in layer
// order. Feature indexes refer to the source layer.
func Select(l *Layer, expr Expression) *Layer {
	out := &Layer{Name: l.Name}
	for _, f := range l.Features {
		if expr.Match(f) {
			out.Features = append(out.Features, f)
		}
	}
	return out
}
