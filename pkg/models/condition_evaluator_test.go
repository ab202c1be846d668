package models

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestEvaluator() *ConditionEvaluator {
	return NewConditionEvaluator(slog.Default())
}

func TestEvaluateVacuousTruth(t *testing.T) {
	evaluator := newTestEvaluator()
	facts := map[string]any{"any": "thing"}

	assert.True(t, evaluator.Evaluate(nil, facts))
	assert.True(t, evaluator.Evaluate(&Condition{Operator: GroupOperatorAnd}, facts))
	assert.True(t, evaluator.Evaluate(&Condition{Operator: GroupOperatorOr, Conditions: []*Condition{}}, facts))
}

func TestEvaluateLeafOperators(t *testing.T) {
	evaluator := newTestEvaluator()

	facts := map[string]any{
		"status": "active",
		"amount": 150.0,
		"city":   "San Paulo",
		"tier":   "gold",
	}

	tests := []struct {
		name     string
		cond     *Condition
		expected bool
	}{
		{"equal match", &Condition{Field: "status", Operator: OperatorEqual, Value: "active"}, true},
		{"equal mismatch", &Condition{Field: "status", Operator: OperatorEqual, Value: "inactive"}, false},
		{"not equal", &Condition{Field: "status", Operator: OperatorNotEqual, Value: "inactive"}, true},
		{"numeric equal across types", &Condition{Field: "amount", Operator: OperatorEqual, Value: 150}, true},
		{"greater", &Condition{Field: "amount", Operator: OperatorGreater, Value: 100}, true},
		{"greater false", &Condition{Field: "amount", Operator: OperatorGreater, Value: 200}, false},
		{"less", &Condition{Field: "amount", Operator: OperatorLess, Value: 200}, true},
		{"greater equal boundary", &Condition{Field: "amount", Operator: OperatorGreaterEqual, Value: 150}, true},
		{"less equal boundary", &Condition{Field: "amount", Operator: OperatorLessEqual, Value: 150}, true},
		{"like case-insensitive substring", &Condition{Field: "city", Operator: OperatorLike, Value: "paulo"}, true},
		{"like no match", &Condition{Field: "city", Operator: OperatorLike, Value: "rio"}, false},
		{"in membership", &Condition{Field: "tier", Operator: OperatorIn, Value: []any{"silver", "gold"}}, true},
		{"in no membership", &Condition{Field: "tier", Operator: OperatorIn, Value: []any{"bronze"}}, false},
		{"in string slice", &Condition{Field: "tier", Operator: OperatorIn, Value: []string{"gold"}}, true},
		{"unknown operator is false", &Condition{Field: "status", Operator: "~=", Value: "active"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, evaluator.Evaluate(tt.cond, facts))
		})
	}
}

func TestEvaluateDottedPathResolution(t *testing.T) {
	evaluator := newTestEvaluator()

	cond := &Condition{Field: "customer.city", Operator: OperatorEqual, Value: "SP"}

	assert.True(t, evaluator.Evaluate(cond, map[string]any{
		"customer": map[string]any{"city": "SP"},
	}))

	// Missing root key resolves to nil, which compares false.
	assert.False(t, evaluator.Evaluate(cond, map[string]any{}))

	// Intermediate non-map values also resolve to nil.
	assert.False(t, evaluator.Evaluate(cond, map[string]any{"customer": "SP"}))
}

func TestEvaluateUnresolvedPathNotEqual(t *testing.T) {
	evaluator := newTestEvaluator()

	cond := &Condition{Field: "customer.city", Operator: OperatorNotEqual, Value: "SP"}

	assert.True(t, evaluator.Evaluate(cond, map[string]any{}))
}

func TestEvaluateGroups(t *testing.T) {
	evaluator := newTestEvaluator()

	facts := map[string]any{"a": 1.0, "b": 2.0}

	aIsOne := &Condition{Field: "a", Operator: OperatorEqual, Value: 1}
	bIsOne := &Condition{Field: "b", Operator: OperatorEqual, Value: 1}

	tests := []struct {
		name     string
		cond     *Condition
		expected bool
	}{
		{"and all true", &Condition{Operator: GroupOperatorAnd, Conditions: []*Condition{aIsOne}}, true},
		{"and one false", &Condition{Operator: GroupOperatorAnd, Conditions: []*Condition{aIsOne, bIsOne}}, false},
		{"or one true", &Condition{Operator: GroupOperatorOr, Conditions: []*Condition{aIsOne, bIsOne}}, true},
		{"or all false", &Condition{Operator: GroupOperatorOr, Conditions: []*Condition{bIsOne}}, false},
		{"not negates conjunction", &Condition{Operator: GroupOperatorNot, Conditions: []*Condition{aIsOne, bIsOne}}, true},
		{"not all true", &Condition{Operator: GroupOperatorNot, Conditions: []*Condition{aIsOne}}, false},
		{"lowercase operator accepted", &Condition{Operator: "and", Conditions: []*Condition{aIsOne}}, true},
		{"unknown group operator is true", &Condition{Operator: "XOR", Conditions: []*Condition{bIsOne}}, true},
		{
			"nested groups",
			&Condition{Operator: GroupOperatorAnd, Conditions: []*Condition{
				aIsOne,
				{Operator: GroupOperatorOr, Conditions: []*Condition{bIsOne, aIsOne}},
			}},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, evaluator.Evaluate(tt.cond, facts))
		})
	}
}
