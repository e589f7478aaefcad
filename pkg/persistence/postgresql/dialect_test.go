package postgresql

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestDialect(t *testing.T) {
	dialect := Dialect{}

	assert.Equal(t, "$3", dialect.Placeholder(3))
	assert.True(t, dialect.IsUniqueViolation(fmt.Errorf("insert: %w", &pq.Error{Code: "23505"})))
	assert.False(t, dialect.IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, dialect.IsUniqueViolation(errors.New("boom")))
}
