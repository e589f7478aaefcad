package testutil

import (
	"context"
	"path/filepath"
	"testing"

	flowlog "github.com/dukex/flowline/pkg/log"
	"github.com/dukex/flowline/pkg/persistence/sqlite"
	"github.com/stretchr/testify/require"
)

// NewSQLiteStore opens a migrated SQLite store in a temporary directory and
// closes it when the test ends.
func NewSQLiteStore(t *testing.T) *sqlite.Persistence {
	t.Helper()

	ctx := context.Background()

	store, err := sqlite.NewPersistence(ctx, flowlog.Discard(), filepath.Join(t.TempDir(), "flowline.db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		err := store.Close(ctx)
		require.NoError(t, err)
	})

	return store
}
