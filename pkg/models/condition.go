package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Operators lists the comparison operators a condition may use. An empty
// operator means "=".
var Operators = []string{"=", "==", "equals", "!=", ">", "<", ">=", "<="}

// EvaluateCondition reports whether data satisfies cond. A nil condition always
// passes. The checked field is a top-level key only; a missing key compares as nil.
func EvaluateCondition(cond *Condition, data map[string]any) bool {
	if cond == nil {
		return true
	}

	actual := data[cond.Check]

	switch cond.Operator {
	case "", "=", "==", "equals":
		return looseEqual(actual, cond.Value)
	case "!=":
		return !looseEqual(actual, cond.Value)
	case ">", "<", ">=", "<=":
		cmp, ok := compare(actual, cond.Value)
		if !ok {
			return false
		}

		switch cond.Operator {
		case ">":
			return cmp > 0
		case "<":
			return cmp < 0
		case ">=":
			return cmp >= 0
		default:
			return cmp <= 0
		}
	default:
		return false
	}
}

// looseEqual compares numbers numerically (numeric strings included), booleans
// against parsable strings or numbers, and falls back to string forms.
func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if an, ok := toNumber(a); ok {
		if bn, ok := toNumber(b); ok {
			return an == bn
		}
	}

	if ab, ok := a.(bool); ok {
		bb, ok := toBool(b)

		return ok && ab == bb
	}

	if bb, ok := b.(bool); ok {
		ab, ok := toBool(a)

		return ok && ab == bb
	}

	return fmt.Sprint(a) == fmt.Sprint(b)
}

// compare orders two values numerically when both are numeric, lexically when
// both are strings. Any other pairing, nil included, is not comparable.
func compare(a, b any) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}

	if an, ok := toNumber(a); ok {
		if bn, ok := toNumber(b); ok {
			switch {
			case an < bn:
				return -1, true
			case an > bn:
				return 1, true
			default:
				return 0, true
			}
		}

		return 0, false
	}

	as, aok := a.(string)
	bs, bok := b.(string)

	if aok && bok {
		return strings.Compare(as, bs), true
	}

	return 0, false
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()

		return f, err == nil
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false
		}

		f, err := strconv.ParseFloat(s, 64)

		return f, err == nil
	default:
		return 0, false
	}
}

func toBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))

		return parsed, err == nil
	default:
		if n, ok := toNumber(v); ok {
			return n != 0, true
		}

		return false, false
	}
}
