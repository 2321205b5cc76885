package dataset

import (
	"context"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subsetsio/market-connectors/pkg/config"
	"github.com/subsetsio/market-connectors/pkg/delta"
	"github.com/subsetsio/market-connectors/pkg/errors"
	"github.com/subsetsio/market-connectors/pkg/state"
	"github.com/subsetsio/market-connectors/pkg/storage"
	"github.com/subsetsio/market-connectors/pkg/table"
)

func testEngine(t *testing.T) (*Engine, *storage.MemStore, *state.Store) {
	t.Helper()
	cfg := &config.Runtime{DataDir: t.TempDir(), RunID: "test-run"}
	store := storage.NewMemStore()
	st := state.New(cfg, store)
	return NewEngine(cfg, delta.NewStore(store), st, store), store, st
}

func pricesTable(t *testing.T, rows ...[2]interface{}) arrow.Table {
	t.Helper()
	b := table.NewBuilder(table.String("date"), table.Float64("close"))
	for _, row := range rows {
		require.NoError(t, b.Append(row[0], row[1]))
	}
	return b.NewTable()
}

func TestSyncWritesNewDataset(t *testing.T) {
	engine, _, st := testEngine(t)
	ctx := context.Background()

	tbl := pricesTable(t, [2]interface{}{"2024-01-02", 18.5})
	defer tbl.Release()

	location, err := engine.Sync(ctx, tbl, "prices", Overwrite)
	require.NoError(t, err)
	assert.Equal(t, "mem://subsets/prices", location)

	record, err := st.Load(ctx, "_hash_prices")
	require.NoError(t, err)
	hash, _ := record["hash"].(string)
	assert.Len(t, hash, 16)

	got, err := engine.LoadAsset(ctx, "prices")
	require.NoError(t, err)
	defer got.Release()
	assert.Equal(t, int64(1), got.NumRows())
}

func TestSyncSkipsUnchangedData(t *testing.T) {
	engine, store, st := testEngine(t)
	ctx := context.Background()

	tbl := pricesTable(t, [2]interface{}{"2024-01-02", 18.5})
	defer tbl.Release()

	location, err := engine.Sync(ctx, tbl, "prices", Overwrite)
	require.NoError(t, err)
	require.NotEmpty(t, location)

	objects := store.Len()
	record, err := st.Load(ctx, "_hash_prices")
	require.NoError(t, err)

	location, err = engine.Sync(ctx, tbl, "prices", Overwrite)
	require.NoError(t, err)
	assert.Empty(t, location)
	assert.Equal(t, objects, store.Len())

	after, err := st.Load(ctx, "_hash_prices")
	require.NoError(t, err)
	assert.Equal(t, record, after)
}

func TestSyncWritesWhenContentChanges(t *testing.T) {
	engine, _, st := testEngine(t)
	ctx := context.Background()

	first := pricesTable(t, [2]interface{}{"2024-01-02", 18.5})
	defer first.Release()

	location, err := engine.Sync(ctx, first, "prices", Overwrite)
	require.NoError(t, err)
	require.NotEmpty(t, location)
	recordA, err := st.Load(ctx, "_hash_prices")
	require.NoError(t, err)

	location, err = engine.Sync(ctx, first, "prices", Overwrite)
	require.NoError(t, err)
	assert.Empty(t, location)

	second := pricesTable(t, [2]interface{}{"2024-01-02", 18.5}, [2]interface{}{"2024-01-03", 19.1})
	defer second.Release()
	location, err = engine.Sync(ctx, second, "prices", Overwrite)
	require.NoError(t, err)
	assert.NotEmpty(t, location)

	recordB, err := st.Load(ctx, "_hash_prices")
	require.NoError(t, err)
	assert.NotEqual(t, recordA["hash"], recordB["hash"])
}

func TestSyncRejectsMergeMode(t *testing.T) {
	engine, store, _ := testEngine(t)

	tbl := pricesTable(t, [2]interface{}{"2024-01-02", 18.5})
	defer tbl.Release()

	_, err := engine.Sync(context.Background(), tbl, "prices", Merge)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	assert.Equal(t, 0, store.Len())
}

func TestSyncEmptyTableNoop(t *testing.T) {
	engine, store, _ := testEngine(t)

	tbl := pricesTable(t)
	defer tbl.Release()

	location, err := engine.Sync(context.Background(), tbl, "prices", Overwrite)
	require.NoError(t, err)
	assert.Empty(t, location)
	assert.Equal(t, 0, store.Len())
}

func TestUploadValidatesBeforeIO(t *testing.T) {
	engine, store, _ := testEngine(t)
	ctx := context.Background()

	tbl := pricesTable(t, [2]interface{}{"2024-01-02", 18.5})
	defer tbl.Release()

	_, err := engine.Upload(ctx, tbl, "prices", UploadOptions{Mode: "replace"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	_, err = engine.Upload(ctx, tbl, "prices", UploadOptions{Mode: Merge})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	assert.Equal(t, 0, store.Len())
}

func TestUploadEmptyTableNoop(t *testing.T) {
	engine, store, _ := testEngine(t)

	tbl := pricesTable(t)
	defer tbl.Release()

	location, err := engine.Upload(context.Background(), tbl, "prices", UploadOptions{Mode: Overwrite})
	require.NoError(t, err)
	assert.Empty(t, location)
	assert.Equal(t, 0, store.Len())
}

func TestUploadMergeCreatesAbsentTable(t *testing.T) {
	engine, _, _ := testEngine(t)
	ctx := context.Background()

	tbl := pricesTable(t, [2]interface{}{"2024-01-02", 18.5})
	defer tbl.Release()

	location, err := engine.Upload(ctx, tbl, "prices", UploadOptions{Mode: Merge, MergeKey: "date"})
	require.NoError(t, err)
	assert.Equal(t, "mem://subsets/prices", location)

	got, err := engine.LoadAsset(ctx, "prices")
	require.NoError(t, err)
	defer got.Release()
	assert.Equal(t, int64(1), got.NumRows())
}

func TestUploadMergeUpserts(t *testing.T) {
	engine, _, _ := testEngine(t)
	ctx := context.Background()

	first := pricesTable(t, [2]interface{}{"2024-01-02", 18.5}, [2]interface{}{"2024-01-03", 19.1})
	defer first.Release()
	_, err := engine.Upload(ctx, first, "prices", UploadOptions{Mode: Overwrite})
	require.NoError(t, err)

	update := pricesTable(t, [2]interface{}{"2024-01-03", 19.9})
	defer update.Release()
	_, err = engine.Upload(ctx, update, "prices", UploadOptions{Mode: Merge, MergeKey: "date"})
	require.NoError(t, err)

	got, err := engine.LoadAsset(ctx, "prices")
	require.NoError(t, err)
	defer got.Release()
	assert.Equal(t, int64(2), got.NumRows())

	rows, err := table.Rows(got)
	require.NoError(t, err)
	byDate := map[string]float64{}
	for _, row := range rows {
		byDate[row["date"].(string)] = row["close"].(float64)
	}
	assert.Equal(t, 19.9, byDate["2024-01-03"])
}

func TestUploadMergeErrorPropagates(t *testing.T) {
	engine, _, _ := testEngine(t)
	ctx := context.Background()

	first := pricesTable(t, [2]interface{}{"2024-01-02", 18.5})
	defer first.Release()
	_, err := engine.Upload(ctx, first, "prices", UploadOptions{Mode: Overwrite})
	require.NoError(t, err)

	// Source without the merge key; the failure must not fall back to a
	// fresh create, which would discard the existing rows.
	b := table.NewBuilder(table.String("day"), table.Float64("close"))
	require.NoError(t, b.Append("2024-01-03", 19.1))
	bad := b.NewTable()
	defer bad.Release()

	_, err = engine.Upload(ctx, bad, "prices", UploadOptions{Mode: Merge, MergeKey: "date"})
	require.Error(t, err)

	got, err := engine.LoadAsset(ctx, "prices")
	require.NoError(t, err)
	defer got.Release()
	assert.Equal(t, int64(1), got.NumRows())
}

func TestUploadMetadataAnnotations(t *testing.T) {
	engine, store, _ := testEngine(t)
	ctx := context.Background()

	tbl := pricesTable(t, [2]interface{}{"2024-01-02", 18.5})
	defer tbl.Release()

	_, err := engine.Upload(ctx, tbl, "prices", UploadOptions{
		Mode:     Overwrite,
		Metadata: map[string]string{"title": "Index Prices", "source": "example"},
	})
	require.NoError(t, err)

	keys, err := store.List(ctx, "subsets/prices/_log/")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	data, err := store.Get(ctx, keys[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "Index Prices")
	assert.Contains(t, string(data), "example")
}

func TestSubscribeObservesWrites(t *testing.T) {
	engine, _, _ := testEngine(t)
	ctx := context.Background()

	var events []WriteEvent
	engine.Subscribe(func(ev WriteEvent) { events = append(events, ev) })

	tbl := pricesTable(t, [2]interface{}{"2024-01-02", 18.5}, [2]interface{}{"2024-01-03", 19.1})
	defer tbl.Release()

	_, err := engine.Sync(ctx, tbl, "prices", Overwrite)
	require.NoError(t, err)
	_, err = engine.Sync(ctx, tbl, "prices", Overwrite)
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, "prices", events[0].Dataset)
	assert.Equal(t, int64(2), events[0].Rows)
	assert.Equal(t, []string{"date", "close"}, events[0].Columns)
	assert.Equal(t, Overwrite, events[0].Mode)
	assert.Greater(t, events[0].Bytes, int64(0))
}

func TestLoadAssetAbsent(t *testing.T) {
	engine, _, _ := testEngine(t)
	_, err := engine.LoadAsset(context.Background(), "prices")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}
