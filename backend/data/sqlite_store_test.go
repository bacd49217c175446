package data_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/fluxhook/fluxhook/backend/data"
	"github.com/stretchr/testify/require"
)

func newSQLiteStore(t *testing.T, path string) *data.SQLiteStore {
	store, err := data.NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	err = store.Migrate(context.Background())
	require.NoError(t, err)

	return store
}

func TestSQLiteStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) data.Store {
		return newSQLiteStore(t, ":memory:")
	})
}

func TestSQLiteStoreMigrateIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fluxhook.db")
	store := newSQLiteStore(t, path)
	ctx := context.Background()

	flux, err := store.InsertFlux(ctx, "http://example.org/feed.rss")
	require.NoError(t, err)

	require.NoError(t, store.Migrate(ctx))

	found, err := store.SelectFluxByPK(ctx, flux.ID)
	require.NoError(t, err)
	require.Equal(t, flux, found)
}
