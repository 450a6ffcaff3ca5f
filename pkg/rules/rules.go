// Package rules evaluates conditional rules against a flat data bag. A rule
// compares the value stored under a field key with a literal using one of a
// fixed set of operators. Evaluation is pure: it never mutates the bag and an
// unknown operator evaluates to false instead of failing, so a bad rule in
// configuration hides a field rather than breaking the form.
package rules

import (
	"reflect"
	"strings"
)

// Operator names a comparison.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "notEquals"
	OpContains    Operator = "contains"
	OpNotContains Operator = "notContains"
	OpIn          Operator = "in"
	OpNotIn       Operator = "notIn"
	OpGT          Operator = "gt"
	OpGTE         Operator = "gte"
	OpLT          Operator = "lt"
	OpLTE         Operator = "lte"
)

// Operators lists every supported operator in table order.
var Operators = []Operator{
	OpEquals, OpNotEquals, OpContains, OpNotContains, OpIn, OpNotIn, OpGT, OpGTE, OpLT, OpLTE,
}

// Valid reports whether op is a supported operator.
func (op Operator) Valid() bool {
	for _, known := range Operators {
		if op == known {
			return true
		}
	}
	return false
}

// Rule is a single {field, operator, value} condition.
type Rule struct {
	Field    string   `json:"field" yaml:"field"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    any      `json:"value,omitempty" yaml:"value,omitempty"`
}

// Set is a conjunction of rules. An empty set is vacuously true.
type Set []Rule

// Matches evaluates the conjunction against data.
func (s Set) Matches(data map[string]any) bool {
	return EvaluateAll(s, data)
}

// Evaluate applies rule to data.
func Evaluate(rule Rule, data map[string]any) bool {
	current, _ := Lookup(data, rule.Field)

	switch rule.Operator {
	case OpEquals:
		return valuesEqual(current, rule.Value)
	case OpNotEquals:
		return !valuesEqual(current, rule.Value)
	case OpContains:
		return contains(current, rule.Value)
	case OpNotContains:
		return !contains(current, rule.Value)
	case OpIn:
		list, ok := asSlice(rule.Value)
		return ok && memberOf(current, list)
	case OpNotIn:
		list, ok := asSlice(rule.Value)
		return ok && !memberOf(current, list)
	case OpGT, OpGTE, OpLT, OpLTE:
		return compareNumbers(rule.Operator, current, rule.Value)
	default:
		return false
	}
}

// EvaluateAll is the conjunction of rules. A nil or empty slice is true.
func EvaluateAll(rules []Rule, data map[string]any) bool {
	for _, rule := range rules {
		if !Evaluate(rule, data) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if isNumeric(a) && isNumeric(b) {
		x, _ := coerceNumber(a)
		y, _ := coerceNumber(b)
		return x == y
	}
	return reflect.DeepEqual(a, b)
}

func contains(current, needle any) bool {
	if list, ok := asSlice(current); ok {
		return memberOf(needle, list)
	}
	return strings.Contains(coerceString(current), coerceString(needle))
}

func memberOf(value any, list []any) bool {
	for _, candidate := range list {
		if valuesEqual(value, candidate) {
			return true
		}
	}
	return false
}

func compareNumbers(op Operator, current, limit any) bool {
	x, ok := coerceNumber(current)
	if !ok {
		return false
	}
	y, ok := coerceNumber(limit)
	if !ok {
		return false
	}
	switch op {
	case OpGT:
		return x > y
	case OpGTE:
		return x >= y
	case OpLT:
		return x < y
	case OpLTE:
		return x <= y
	default:
		return false
	}
}
