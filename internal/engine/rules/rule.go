// Package rules implements the declarative condition/action interpreter that
// ties events to scoring, power-up, and audio effects. Rules are loaded once
// per session and immutable afterwards; conditions and actions are tagged
// variants dispatched through interfaces rather than reflective path lookups.
package rules

import (
	"fmt"

	"github.com/abmakes/atoz-engine-go/internal/engine/events"
)

// Rule binds a trigger event to an ordered condition list (ANDed, evaluated
// with short-circuit semantics) and an ordered action list. A rule with no
// conditions always fires.
type Rule struct {
	ID         string
	Trigger    events.Type
	Conditions []Condition
	Actions    []Action
}

// Operator is a comparison operator usable in rule conditions.
type Operator string

const (
	OpEq  Operator = "eq"
	OpNeq Operator = "neq"
	OpGt  Operator = "gt"
	OpGte Operator = "gte"
	OpLt  Operator = "lt"
	OpLte Operator = "lte"
)

// valid reports whether the operator is one of the supported six.
func (op Operator) valid() bool {
	switch op {
	case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte:
		return true
	}
	return false
}

// compare applies the operator to two values. Numbers compare numerically
// regardless of concrete type; everything else supports only eq/neq via
// string formatting, so "true" matches a bool true from the payload.
func compare(op Operator, left, right any) (bool, error) {
	lf, lok := toFloat(left)
	rf, rok := toFloat(right)
	if lok && rok {
		switch op {
		case OpEq:
			return lf == rf, nil
		case OpNeq:
			return lf != rf, nil
		case OpGt:
			return lf > rf, nil
		case OpGte:
			return lf >= rf, nil
		case OpLt:
			return lf < rf, nil
		case OpLte:
			return lf <= rf, nil
		}
	}

	ls := fmt.Sprintf("%v", left)
	rs := fmt.Sprintf("%v", right)
	switch op {
	case OpEq:
		return ls == rs, nil
	case OpNeq:
		return ls != rs, nil
	default:
		return false, fmt.Errorf("operator %q requires numeric operands, got %T and %T", op, left, right)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	default:
		return 0, false
	}
}
