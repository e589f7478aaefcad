package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateCondition(t *testing.T) {
	data := map[string]any{
		"plan":     "vip",
		"amount":   float64(150),
		"count":    "12",
		"verified": true,
		"country":  "BR",
	}

	tests := []struct {
		name     string
		cond     *Condition
		expected bool
	}{
		{name: "nil condition passes", cond: nil, expected: true},
		{name: "equals match", cond: &Condition{Check: "plan", Operator: "=", Value: "vip"}, expected: true},
		{name: "empty operator defaults to equals", cond: &Condition{Check: "plan", Value: "vip"}, expected: true},
		{name: "equals keyword", cond: &Condition{Check: "plan", Operator: "equals", Value: "vip"}, expected: true},
		{name: "equals mismatch", cond: &Condition{Check: "plan", Operator: "=", Value: "basic"}, expected: false},
		{name: "loose numeric string against number", cond: &Condition{Check: "count", Operator: "=", Value: 12}, expected: true},
		{name: "loose number against numeric string", cond: &Condition{Check: "amount", Operator: "=", Value: "150"}, expected: true},
		{name: "bool against string", cond: &Condition{Check: "verified", Operator: "=", Value: "true"}, expected: true},
		{name: "bool against number", cond: &Condition{Check: "verified", Operator: "=", Value: 1}, expected: true},
		{name: "not equals", cond: &Condition{Check: "country", Operator: "!=", Value: "US"}, expected: true},
		{name: "greater than", cond: &Condition{Check: "amount", Operator: ">", Value: 100}, expected: true},
		{name: "less than numeric string", cond: &Condition{Check: "count", Operator: "<", Value: "20"}, expected: true},
		{name: "greater or equal boundary", cond: &Condition{Check: "amount", Operator: ">=", Value: 150}, expected: true},
		{name: "less or equal fails", cond: &Condition{Check: "amount", Operator: "<=", Value: 149.5}, expected: false},
		{name: "string ordering", cond: &Condition{Check: "country", Operator: "<", Value: "US"}, expected: true},
		{name: "mixed ordering is false", cond: &Condition{Check: "plan", Operator: ">", Value: 1}, expected: false},
		{name: "unknown operator", cond: &Condition{Check: "plan", Operator: "contains", Value: "v"}, expected: false},
		{name: "missing field equals", cond: &Condition{Check: "missing", Operator: "=", Value: "x"}, expected: false},
		{name: "missing field not equals", cond: &Condition{Check: "missing", Operator: "!=", Value: "x"}, expected: true},
		{name: "missing field ordering", cond: &Condition{Check: "missing", Operator: ">", Value: 0}, expected: false},
		{name: "missing field against nil", cond: &Condition{Check: "missing", Operator: "=", Value: nil}, expected: true},
		{name: "no dot path lookup", cond: &Condition{Check: "plan.name", Operator: "=", Value: "vip"}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, EvaluateCondition(tt.cond, data))
		})
	}
}

func TestEvaluateCondition_Deterministic(t *testing.T) {
	cond := &Condition{Check: "missing", Operator: "<=", Value: 10}

	for range 5 {
		assert.False(t, EvaluateCondition(cond, map[string]any{}))
	}
}
