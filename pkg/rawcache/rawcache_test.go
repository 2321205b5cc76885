package rawcache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subsetsio/market-connectors/pkg/config"
	"github.com/subsetsio/market-connectors/pkg/errors"
	"github.com/subsetsio/market-connectors/pkg/storage"
	"github.com/subsetsio/market-connectors/pkg/table"
)

func testCache() (*Cache, *storage.MemStore) {
	cfg := &config.Runtime{DataDir: "/tmp/subsets-test", RunID: "test-run"}
	store := storage.NewMemStore()
	return New(cfg, store), store
}

func TestTextRoundTrip(t *testing.T) {
	cache, _ := testCache()
	ctx := context.Background()

	loc, err := cache.Save(ctx, "vix", "csv", Text("DATE,CLOSE\n01/02/2024,18.5\n"))
	require.NoError(t, err)
	assert.NotEmpty(t, loc)

	got, err := cache.Load(ctx, "vix", "csv")
	require.NoError(t, err)
	assert.True(t, got.IsText())
	assert.Equal(t, "DATE,CLOSE\n01/02/2024,18.5\n", got.String())
}

func TestBinaryRoundTrip(t *testing.T) {
	cache, _ := testCache()
	ctx := context.Background()

	// Invalid UTF-8 so the load probe must fall back to binary.
	payload := []byte{0x50, 0x4b, 0x03, 0x04, 0xff, 0xfe, 0x00, 0x91}
	_, err := cache.Save(ctx, "workbook", "xlsx", Binary(payload))
	require.NoError(t, err)

	got, err := cache.Load(ctx, "workbook", "xlsx")
	require.NoError(t, err)
	assert.False(t, got.IsText())
	assert.Equal(t, payload, got.Bytes())
}

func TestLoadMissingAsset(t *testing.T) {
	cache, _ := testCache()
	_, err := cache.Load(context.Background(), "nope", "csv")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestSaveOverwrites(t *testing.T) {
	cache, _ := testCache()
	ctx := context.Background()

	_, err := cache.Save(ctx, "asset", "txt", Text("first"))
	require.NoError(t, err)
	_, err = cache.Save(ctx, "asset", "txt", Text("second"))
	require.NoError(t, err)

	got, err := cache.Load(ctx, "asset", "txt")
	require.NoError(t, err)
	assert.Equal(t, "second", got.String())
}

func TestJSONRoundTrip(t *testing.T) {
	cache, _ := testCache()
	ctx := context.Background()

	in := map[string]string{"consumer_sentiment": "Month,YYYY,ICS_ALL\n"}
	_, err := cache.SaveJSON(ctx, "sentiment_data", in, false)
	require.NoError(t, err)

	var out map[string]string
	require.NoError(t, cache.LoadJSON(ctx, "sentiment_data", &out))
	assert.Equal(t, in, out)
}

func TestJSONCompressedFallback(t *testing.T) {
	cache, store := testCache()
	ctx := context.Background()

	in := map[string]int{"a": 1, "b": 2}
	_, err := cache.SaveJSON(ctx, "compressed_asset", in, true)
	require.NoError(t, err)

	// Only the .json.gz key exists; LoadJSON must fall through to it.
	exists, err := cache.Exists(ctx, "compressed_asset", "json")
	require.NoError(t, err)
	assert.False(t, exists)
	exists, err = cache.Exists(ctx, "compressed_asset", "json.gz")
	require.NoError(t, err)
	assert.True(t, exists)

	var out map[string]int
	require.NoError(t, cache.LoadJSON(ctx, "compressed_asset", &out))
	assert.Equal(t, in, out)
	assert.Equal(t, 1, store.Len())
}

func TestLoadJSONMissing(t *testing.T) {
	cache, _ := testCache()
	var out map[string]int
	err := cache.LoadJSON(context.Background(), "absent", &out)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestTableRoundTripWithMetadata(t *testing.T) {
	cache, _ := testCache()
	ctx := context.Background()

	b := table.NewBuilder(table.String("date"), table.Float64("close"))
	require.NoError(t, b.Append("2024-01-02", 18.5))
	tbl := b.NewTable()
	defer tbl.Release()

	_, err := cache.SaveTable(ctx, "snapshot", tbl, map[string]string{"title": "VIX"})
	require.NoError(t, err)

	got, err := cache.LoadTable(ctx, "snapshot")
	require.NoError(t, err)
	defer got.Release()

	assert.Equal(t, int64(1), got.NumRows())
	meta, ok := table.Metadata(got, "asset_metadata")
	require.True(t, ok)
	assert.Contains(t, meta, "VIX")
}

func TestExists(t *testing.T) {
	cache, _ := testCache()
	ctx := context.Background()

	exists, err := cache.Exists(ctx, "vix", "csv")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = cache.Save(ctx, "vix", "csv", Text("data"))
	require.NoError(t, err)

	exists, err = cache.Exists(ctx, "vix", "csv")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestListIDs(t *testing.T) {
	cache, _ := testCache()
	ctx := context.Background()

	for _, id := range []string{"rigs_na_current", "rigs_by_state", "vix"} {
		_, err := cache.Save(ctx, id, "csv", Text("x"))
		require.NoError(t, err)
	}
	_, err := cache.SaveJSON(ctx, "rigs_meta", map[string]int{}, true)
	require.NoError(t, err)

	ids, err := cache.ListIDs(ctx, "rigs_*")
	require.NoError(t, err)
	assert.Equal(t, []string{"rigs_by_state", "rigs_meta", "rigs_na_current"}, ids)

	all, err := cache.ListIDs(ctx, "*")
	require.NoError(t, err)
	assert.Equal(t, []string{"rigs_by_state", "rigs_meta", "rigs_na_current", "vix"}, all)
}
