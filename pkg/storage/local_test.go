package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subsetsio/market-connectors/pkg/config"
	"github.com/subsetsio/market-connectors/pkg/errors"
)

func testLocalStore(t *testing.T) (*localStore, string) {
	t.Helper()
	root := t.TempDir()
	return newLocalStore(&config.Runtime{DataDir: root}), root
}

func TestLocalPutGet(t *testing.T) {
	store, root := testLocalStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "raw/vix_history.csv", []byte("DATE,CLOSE\n")))

	data, err := store.Get(ctx, "raw/vix_history.csv")
	require.NoError(t, err)
	assert.Equal(t, []byte("DATE,CLOSE\n"), data)

	assert.Equal(t, filepath.Join(root, "raw", "vix_history.csv"),
		store.Location("raw/vix_history.csv"))
	assert.Equal(t, "local", store.Name())
}

func TestLocalGetAbsent(t *testing.T) {
	store, _ := testLocalStore(t)

	_, err := store.Get(context.Background(), "raw/missing.csv")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestLocalExists(t *testing.T) {
	store, _ := testLocalStore(t)
	ctx := context.Background()

	ok, err := store.Exists(ctx, "state/_hash_prices.json")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put(ctx, "state/_hash_prices.json", []byte("{}")))
	ok, err = store.Exists(ctx, "state/_hash_prices.json")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalList(t *testing.T) {
	store, _ := testLocalStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "raw/vix_history.csv", []byte("a")))
	require.NoError(t, store.Put(ctx, "raw/bxm_history.csv", []byte("b")))
	require.NoError(t, store.Put(ctx, "state/_hash_prices.json", []byte("{}")))

	keys, err := store.List(ctx, "raw/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"raw/vix_history.csv", "raw/bxm_history.csv"}, keys)
}

func TestLocalListEmptyPrefix(t *testing.T) {
	store, _ := testLocalStore(t)

	keys, err := store.List(context.Background(), "raw/")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestLocalDelete(t *testing.T) {
	store, _ := testLocalStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "raw/tmp.csv", []byte("x")))
	require.NoError(t, store.Delete(ctx, "raw/tmp.csv"))
	require.NoError(t, store.Delete(ctx, "raw/tmp.csv"))

	ok, err := store.Exists(ctx, "raw/tmp.csv")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewSelectsLocalBackend(t *testing.T) {
	store, err := New(context.Background(), &config.Runtime{DataDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, "local", store.Name())
}
