package rules

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestEvaluateOperatorTable(t *testing.T) {
	t.Parallel()

	data := map[string]any{
		"hasDependents": true,
		"state":         "CA",
		"notes":         "signed in Lima",
		"children":      2,
		"income":        "52000.50",
		"tags":          []any{"rent", "lease"},
		"party":         map[string]any{"kind": "company"},
	}

	tests := []struct {
		name string
		rule Rule
		want bool
	}{
		{"equals bool", Rule{"hasDependents", OpEquals, true}, true},
		{"equals string", Rule{"state", OpEquals, "CA"}, true},
		{"equals int vs float", Rule{"children", OpEquals, 2.0}, true},
		{"equals string vs number is strict", Rule{"children", OpEquals, "2"}, false},
		{"equals missing vs nil", Rule{"missing", OpEquals, nil}, true},
		{"notEquals", Rule{"state", OpNotEquals, "NY"}, true},
		{"contains substring", Rule{"notes", OpContains, "Lima"}, true},
		{"contains coerces numbers", Rule{"children", OpContains, 2}, true},
		{"contains array member", Rule{"tags", OpContains, "lease"}, true},
		{"notContains", Rule{"notes", OpNotContains, "Quito"}, true},
		{"in", Rule{"state", OpIn, []any{"CA", "NY"}}, true},
		{"in string slice", Rule{"state", OpIn, []string{"TX"}}, false},
		{"in needs array", Rule{"state", OpIn, "CA"}, false},
		{"notIn", Rule{"state", OpNotIn, []any{"TX"}}, true},
		{"notIn needs array", Rule{"state", OpNotIn, "TX"}, false},
		{"gt", Rule{"children", OpGT, 1}, true},
		{"gte equal", Rule{"children", OpGTE, 2}, true},
		{"lt numeric string", Rule{"income", OpLT, 60000}, true},
		{"lte", Rule{"income", OpLTE, "52000.5"}, true},
		{"gt missing is false", Rule{"missing", OpGT, 0}, false},
		{"gt non numeric is false", Rule{"state", OpGT, 0}, false},
		{"dotted lookup", Rule{"party.kind", OpEquals, "company"}, true},
		{"unknown operator", Rule{"state", Operator("matches"), "CA"}, false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Evaluate(tc.rule, data); got != tc.want {
				t.Fatalf("Evaluate(%+v) = %v, want %v", tc.rule, got, tc.want)
			}
		})
	}
}

func TestEvaluateAllEmptyIsTrue(t *testing.T) {
	t.Parallel()

	if !EvaluateAll(nil, nil) {
		t.Fatalf("nil rules must be vacuously true")
	}
	if !EvaluateAll([]Rule{}, map[string]any{"x": 1}) {
		t.Fatalf("empty rules must be vacuously true")
	}
}

func TestEvaluateDoesNotMutate(t *testing.T) {
	t.Parallel()

	data := map[string]any{"tags": []any{"a"}}
	Evaluate(Rule{"tags", OpContains, "a"}, data)
	Evaluate(Rule{"other", OpEquals, 1}, data)
	if len(data) != 1 {
		t.Fatalf("data was mutated: %#v", data)
	}
}

func TestIsPresent(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		value any
		want  bool
	}{
		"nil":          {nil, false},
		"blank string": {"  ", false},
		"string":       {"x", true},
		"false":        {false, true},
		"zero":         {0, true},
		"empty slice":  {[]any{}, false},
		"slice":        {[]string{"a"}, true},
	}
	for name, tc := range cases {
		if got := IsPresent(tc.value); got != tc.want {
			t.Errorf("%s: IsPresent = %v, want %v", name, got, tc.want)
		}
	}
}

func TestConjunctionProperties(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	genRule := gopter.CombineGens(
		gen.OneConstOf("a", "b", "missing"),
		gen.OneConstOf(OpEquals, OpNotEquals, OpContains, OpGT, OpLTE, Operator("bogus")),
		gen.IntRange(-5, 5),
	).Map(func(values []any) Rule {
		return Rule{Field: values[0].(string), Operator: values[1].(Operator), Value: values[2].(int)}
	})

	properties.Property("single rule conjunction equals the rule", prop.ForAll(
		func(rule Rule, a, b int) bool {
			data := map[string]any{"a": a, "b": b}
			return EvaluateAll([]Rule{rule}, data) == Evaluate(rule, data)
		},
		genRule,
		gen.IntRange(-5, 5),
		gen.IntRange(-5, 5),
	))

	properties.Property("evaluation is deterministic", prop.ForAll(
		func(rule Rule, a int) bool {
			data := map[string]any{"a": a}
			return Evaluate(rule, data) == Evaluate(rule, data)
		},
		genRule,
		gen.IntRange(-5, 5),
	))

	properties.TestingRun(t)
}
