package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	flowlog "github.com/dukex/flowline/pkg/log"
	"github.com/dukex/flowline/pkg/persistence"
	"github.com/dukex/flowline/pkg/persistence/persistencetest"
	"github.com/dukex/flowline/pkg/persistence/sqlbase"
	"github.com/dukex/flowline/pkg/persistence/sqlite"
	"github.com/dukex/flowline/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLitePersistence(t *testing.T) {
	persistencetest.Run(t, func(t *testing.T) persistence.Persistence {
		return testutil.NewSQLiteStore(t)
	})
}

func TestNewPersistence_MigrationsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "flowline.db")

	first, err := sqlite.NewPersistence(ctx, flowlog.Discard(), path)
	require.NoError(t, err)
	require.NoError(t, first.Close(ctx))

	second, err := sqlite.NewPersistence(ctx, flowlog.Discard(), path)
	require.NoError(t, err)

	defer func() {
		require.NoError(t, second.Close(ctx))
	}()

	version, err := sqlbase.NewMigrationManager(flowlog.Discard(), second.DB(), sqlite.Dialect{}, nil).CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	assert.NoError(t, second.HealthCheck(ctx))
}
