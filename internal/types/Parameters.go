/*
This file contains the rule parameter matrix attached to a pool registration.

Each row is a named parameter holding either one shared value or one value per asset.
*/

package types

import (
	"fmt"

	"cosmossdk.io/math"
)

var ErrParameterNotFound = NewClassError(ErrConfiguration, "rule parameter not found")
var ErrParameterShape = NewClassError(ErrConfiguration, "rule parameter has the wrong length")

// ParameterRow is one named row of the rule parameter matrix.
type ParameterRow struct {
	Name   string           `json:"name"`
	Values []math.LegacyDec `json:"values"`
}

// RuleParameters is the ordered parameter matrix of a pool.
type RuleParameters []ParameterRow

// Row returns the row with the given name.
func (p RuleParameters) Row(name string) ([]math.LegacyDec, bool) {
	for _, row := range p {
		if row.Name == name {
			return row.Values, true
		}
	}
	return nil, false
}

// Has reports whether a row with the given name exists.
func (p RuleParameters) Has(name string) bool {
	_, ok := p.Row(name)
	return ok
}

// Scalar returns the single value of a row. Rows with more than one value are rejected.
func (p RuleParameters) Scalar(name string) (math.LegacyDec, error) {
	row, ok := p.Row(name)
	if !ok {
		return math.LegacyDec{}, fmt.Errorf("%w: %s", ErrParameterNotFound, name)
	}
	if len(row) != 1 {
		return math.LegacyDec{}, fmt.Errorf("%w: %s has %d values, want 1", ErrParameterShape, name, len(row))
	}
	return row[0], nil
}

// Vector expands a row to n values. A single value is shared by every asset.
func (p RuleParameters) Vector(name string, n int) ([]math.LegacyDec, error) {
	row, ok := p.Row(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrParameterNotFound, name)
	}
	return ExpandVector(name, row, n)
}

// IsScalar reports whether the named row holds exactly one value.
func (p RuleParameters) IsScalar(name string) bool {
	row, ok := p.Row(name)
	return ok && len(row) == 1
}

// Clone returns a deep copy.
func (p RuleParameters) Clone() RuleParameters {
	if p == nil {
		return nil
	}
	out := make(RuleParameters, len(p))
	for i, row := range p {
		values := make([]math.LegacyDec, len(row.Values))
		for j, v := range row.Values {
			values[j] = v.Add(math.LegacyZeroDec())
		}
		out[i] = ParameterRow{Name: row.Name, Values: values}
	}
	return out
}

// ExpandVector expands a length one vector to n values and rejects any other length
// that is not n.
func ExpandVector(name string, values []math.LegacyDec, n int) ([]math.LegacyDec, error) {
	switch len(values) {
	case n:
		out := make([]math.LegacyDec, n)
		copy(out, values)
		return out, nil
	case 1:
		out := make([]math.LegacyDec, n)
		for i := range out {
			out[i] = values[0]
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s has %d values, want 1 or %d", ErrParameterShape, name, len(values), n)
	}
}
