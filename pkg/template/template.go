// Package template resolves {{field}} and {{field.subfield}} references
// against trigger data.
package template

import (
	"fmt"
	"regexp"
	"strconv"
)

var tokenPattern = regexp.MustCompile(`\{\{\s*([^{}.\s]+)(?:\.([^{}.\s]+))?\s*\}\}`)

// Substitute replaces every resolvable token in input in a single pass.
// Replacement text is never rescanned, and unresolved tokens are left as is.
func Substitute(input string, data map[string]any) string {
	if len(data) == 0 {
		return input
	}

	return tokenPattern.ReplaceAllStringFunc(input, func(token string) string {
		groups := tokenPattern.FindStringSubmatch(token)

		value, ok := data[groups[1]]
		if !ok {
			return token
		}

		if groups[2] != "" {
			nested, isMap := value.(map[string]any)
			if !isMap {
				return token
			}

			value, ok = nested[groups[2]]
			if !ok {
				return token
			}
		}

		return stringify(value)
	})
}

// SubstituteAll walks a config value and substitutes every string it holds.
// Maps and slices are copied; other values are returned unchanged.
func SubstituteAll(value any, data map[string]any) any {
	switch v := value.(type) {
	case string:
		return Substitute(v, data)
	case map[string]any:
		return SubstituteMap(v, data)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = SubstituteAll(item, data)
		}

		return out
	default:
		return value
	}
}

func SubstituteMap(config map[string]any, data map[string]any) map[string]any {
	if config == nil {
		return nil
	}

	out := make(map[string]any, len(config))
	for key, value := range config {
		out[key] = SubstituteAll(value, data)
	}

	return out
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprint(v)
	}
}
