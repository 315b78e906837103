package mongo

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/escrow/store"
	"github.com/xraph/escrow/store/storetest"
)

// The suite runs against a replica set named by ESCROW_MONGO_URI, e.g.
// mongodb://localhost:27017/?replicaSet=rs0. Every subtest gets a fresh
// database.
func TestStore(t *testing.T) {
	uri := os.Getenv("ESCROW_MONGO_URI")
	if uri == "" {
		t.Skip("ESCROW_MONGO_URI not set")
	}

	storetest.Run(t, func(t *testing.T) store.Store {
		ctx := context.Background()

		mdb := mongodriver.New()
		name := fmt.Sprintf("escrow_test_%d", time.Now().UnixNano())
		require.NoError(t, mdb.Open(ctx, uri, mongodriver.WithDatabase(name)))
		db, err := grove.Open(mdb)
		require.NoError(t, err)

		s := New(db)
		t.Cleanup(func() {
			for col := range migrationIndexes() {
				_ = s.mdb.Collection(col).Drop(ctx)
			}
			_ = s.Close()
		})
		require.NoError(t, s.Migrate(ctx))
		return s
	})
}

func TestMigrationIndexesCoverCollections(t *testing.T) {
	indexes := migrationIndexes()
	for _, col := range []string{colCounters, colInvoices, colContracts, colIndex, colSettings, colBalances, colTransfers} {
		if _, ok := indexes[col]; !ok {
			t.Errorf("collection %s missing from migrationIndexes", col)
		}
	}
}

func TestDocIDs(t *testing.T) {
	if got, want := indexDocID("owner_invoices", "alice", 42), "owner_invoices/alice/00000000000000000042"; got != want {
		t.Errorf("indexDocID: got %q, want %q", got, want)
	}
	if got, want := balanceDocID("alice", "uscrt"), "alice/uscrt"; got != want {
		t.Errorf("balanceDocID: got %q, want %q", got, want)
	}
}
