package sqlbase

import (
	"strconv"
	"strings"
)

// Dialect captures the few places where the supported SQL engines differ.
// Repositories write queries with ? placeholders and rebind them.
type Dialect interface {
	Name() string
	Placeholder(position int) string
	IsUniqueViolation(err error) bool
}

// Rebind rewrites ? placeholders for dialects that use positional markers.
func Rebind(dialect Dialect, query string) string {
	if dialect.Placeholder(1) == "?" {
		return query
	}

	var (
		builder  strings.Builder
		position int
	)

	builder.Grow(len(query) + 8)

	for _, r := range query {
		if r == '?' {
			position++
			builder.WriteString(dialect.Placeholder(position))

			continue
		}

		builder.WriteRune(r)
	}

	return builder.String()
}

// DollarPlaceholder renders PostgreSQL style $n markers.
func DollarPlaceholder(position int) string {
	return "$" + strconv.Itoa(position)
}
