package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubstitute(t *testing.T) {
	data := map[string]any{
		"name":     "Ana",
		"amount":   float64(49.9),
		"count":    float64(3),
		"active":   true,
		"empty":    nil,
		"customer": map[string]any{"email": "ana@example.com", "tier": "gold"},
		"nested":   "{{name}}",
	}

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "no tokens", input: "plain text", expected: "plain text"},
		{name: "single token", input: "Hi {{name}}", expected: "Hi Ana"},
		{name: "whitespace inside braces", input: "Hi {{ name }}", expected: "Hi Ana"},
		{name: "float formatting", input: "{{amount}} / {{count}}", expected: "49.9 / 3"},
		{name: "bool formatting", input: "active={{active}}", expected: "active=true"},
		{name: "nil renders empty", input: "[{{empty}}]", expected: "[]"},
		{name: "one level nesting", input: "{{customer.email}}", expected: "ana@example.com"},
		{name: "unknown token is kept", input: "{{unknown}}", expected: "{{unknown}}"},
		{name: "unknown subfield is kept", input: "{{customer.phone}}", expected: "{{customer.phone}}"},
		{name: "subfield of scalar is kept", input: "{{name.first}}", expected: "{{name.first}}"},
		{name: "replacement is not rescanned", input: "{{nested}}", expected: "{{name}}"},
		{name: "repeated tokens", input: "{{name}}-{{name}}", expected: "Ana-Ana"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Substitute(tt.input, data))
		})
	}
}

func TestSubstitute_Idempotent(t *testing.T) {
	input := "Dear customer, your order shipped."
	data := map[string]any{"x": "v"}

	once := Substitute(input, data)
	assert.Equal(t, input, once)
	assert.Equal(t, once, Substitute(once, data))
	assert.Equal(t, "v", Substitute("{{x}}", data))
}

func TestSubstituteMap(t *testing.T) {
	config := map[string]any{
		"url":     "https://api.example.com/users/{{user_id}}",
		"retries": float64(2),
		"headers": map[string]any{"X-Tenant": "{{tenant}}"},
		"tags":    []any{"{{tenant}}", "static"},
	}
	data := map[string]any{"user_id": "42", "tenant": "acme"}

	out := SubstituteMap(config, data)

	assert.Equal(t, "https://api.example.com/users/42", out["url"])
	assert.Equal(t, float64(2), out["retries"])
	assert.Equal(t, map[string]any{"X-Tenant": "acme"}, out["headers"])
	assert.Equal(t, []any{"acme", "static"}, out["tags"])
	assert.Equal(t, "https://api.example.com/users/{{user_id}}", config["url"], "input must not be mutated")
	assert.Nil(t, SubstituteMap(nil, data))
}
