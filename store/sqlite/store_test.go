package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xraph/grove"
	"github.com/xraph/grove/driver"
	"github.com/xraph/grove/drivers/sqlitedriver"

	"github.com/xraph/escrow/store"
	"github.com/xraph/escrow/store/sqlite"
	"github.com/xraph/escrow/store/storetest"
)

func open(t *testing.T) *sqlite.Store {
	t.Helper()
	ctx := context.Background()

	sdb := sqlitedriver.New()
	dsn := "file:" + filepath.Join(t.TempDir(), "escrow.sqlite")
	require.NoError(t, sdb.Open(ctx, dsn, driver.WithPoolSize(1)))

	db, err := grove.Open(sdb)
	require.NoError(t, err)

	s := sqlite.New(db)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping sqlite store test in short mode")
	}
	storetest.Run(t, func(t *testing.T) store.Store { return open(t) })
}

func TestMigrateIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping sqlite store test in short mode")
	}
	s := open(t)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Ping(context.Background()))
}
