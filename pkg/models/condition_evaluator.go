package models

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// ConditionEvaluator evaluates a condition tree against a flat fact set. It
// is a pure computation over in-memory data; a malformed tree degrades to
// false at the offending leaf rather than blocking evaluation with an error.
type ConditionEvaluator struct {
	logger *slog.Logger
}

func NewConditionEvaluator(logger *slog.Logger) *ConditionEvaluator {
	return &ConditionEvaluator{
		logger: logger.With("module", "condition_evaluator"),
	}
}

// Evaluate recurses through the tree. Nil trees and empty groups are
// vacuously true. NOT negates the conjunction of its children. An unknown
// group operator evaluates to true; an unknown leaf operator evaluates to
// false so an unreviewable rule cannot fire actions it should guard.
func (e *ConditionEvaluator) Evaluate(cond *Condition, facts map[string]any) bool {
	if cond == nil {
		return true
	}

	if cond.IsLeaf() {
		return e.evaluateLeaf(cond, facts)
	}

	if len(cond.Conditions) == 0 {
		return true
	}

	switch strings.ToUpper(cond.Operator) {
	case GroupOperatorAnd:
		for _, child := range cond.Conditions {
			if !e.Evaluate(child, facts) {
				return false
			}
		}

		return true
	case GroupOperatorOr:
		for _, child := range cond.Conditions {
			if e.Evaluate(child, facts) {
				return true
			}
		}

		return false
	case GroupOperatorNot:
		for _, child := range cond.Conditions {
			if !e.Evaluate(child, facts) {
				return true
			}
		}

		return false
	default:
		e.logger.Warn("Unknown group operator, treating group as true", "operator", cond.Operator)

		return true
	}
}

func (e *ConditionEvaluator) evaluateLeaf(cond *Condition, facts map[string]any) bool {
	resolved := resolveField(cond.Field, facts)

	// An unresolvable path compares false against everything except !=.
	if resolved == nil {
		return cond.Operator == OperatorNotEqual && cond.Value != nil
	}

	switch cond.Operator {
	case OperatorEqual:
		return valuesEqual(resolved, cond.Value)
	case OperatorNotEqual:
		return !valuesEqual(resolved, cond.Value)
	case OperatorGreater:
		ok, cmp := compareValues(resolved, cond.Value)
		return ok && cmp > 0
	case OperatorLess:
		ok, cmp := compareValues(resolved, cond.Value)
		return ok && cmp < 0
	case OperatorGreaterEqual:
		ok, cmp := compareValues(resolved, cond.Value)
		return ok && cmp >= 0
	case OperatorLessEqual:
		ok, cmp := compareValues(resolved, cond.Value)
		return ok && cmp <= 0
	case OperatorLike:
		return strings.Contains(
			strings.ToLower(stringify(resolved)),
			strings.ToLower(stringify(cond.Value)),
		)
	case OperatorIn:
		return valueIn(resolved, cond.Value)
	default:
		e.logger.Warn("Unknown leaf operator, treating condition as false",
			"field", cond.Field,
			"operator", cond.Operator)

		return false
	}
}

// resolveField walks a dotted path through nested maps. Missing keys and
// non-map intermediates resolve to nil.
func resolveField(path string, facts map[string]any) any {
	var current any = facts

	for _, segment := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return nil
		}

		current, ok = node[segment]
		if !ok {
			return nil
		}
	}

	return current
}

func valuesEqual(a, b any) bool {
	fa, aok := toFloat(a)
	fb, bok := toFloat(b)

	if aok && bok {
		return fa == fb
	}

	return stringify(a) == stringify(b)
}

// compareValues orders two values numerically when both sides convert,
// lexically otherwise. The first return reports comparability.
func compareValues(a, b any) (bool, int) {
	fa, aok := toFloat(a)
	fb, bok := toFloat(b)

	if aok && bok {
		switch {
		case fa < fb:
			return true, -1
		case fa > fb:
			return true, 1
		}

		return true, 0
	}

	return true, strings.Compare(stringify(a), stringify(b))
}

func valueIn(needle, haystack any) bool {
	switch list := haystack.(type) {
	case []any:
		for _, item := range list {
			if valuesEqual(needle, item) {
				return true
			}
		}
	case []string:
		for _, item := range list {
			if valuesEqual(needle, item) {
				return true
			}
		}
	}

	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}

	return 0, false
}

func stringify(v any) string {
	if v == nil {
		return ""
	}

	return fmt.Sprintf("%v", v)
}
