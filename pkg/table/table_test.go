package table

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderAppendAndNulls(t *testing.T) {
	b := NewBuilder(String("date"), Float64("close"), Int64("volume"), Bool("settled"))
	require.NoError(t, b.Append("2024-01-02", 18.5, int64(100), true))
	require.NoError(t, b.Append("2024-01-03", nil, nil, false))
	tbl := b.NewTable()
	defer tbl.Release()

	assert.Equal(t, int64(2), tbl.NumRows())
	assert.Equal(t, []string{"date", "close", "volume", "settled"}, ColumnNames(tbl))
	assert.Equal(t, map[string]int64{"close": 1, "volume": 1}, NullCounts(tbl))
}

func TestBuilderRejectsWrongArity(t *testing.T) {
	b := NewBuilder(String("date"), Float64("close"))
	err := b.Append("2024-01-02")
	require.Error(t, err)
}

func TestBuilderRejectsWrongType(t *testing.T) {
	b := NewBuilder(Float64("close"))
	err := b.Append("not a number")
	require.Error(t, err)
}

func TestParquetRoundTrip(t *testing.T) {
	b := NewBuilder(String("date"), Float64("close"))
	require.NoError(t, b.Append("2024-01-02", 18.5))
	require.NoError(t, b.Append("2024-01-03", nil))
	tbl := b.NewTable()
	defer tbl.Release()

	data, err := WriteParquet(tbl)
	require.NoError(t, err)

	got, err := ReadParquet(context.Background(), data)
	require.NoError(t, err)
	defer got.Release()

	rows, err := Rows(got)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2024-01-02", rows[0]["date"])
	assert.Equal(t, 18.5, rows[0]["close"])
	assert.Nil(t, rows[1]["close"])
}

func TestDigestStable(t *testing.T) {
	b := NewBuilder(String("date"), Float64("close"))
	require.NoError(t, b.Append("2024-01-02", 18.5))
	tbl := b.NewTable()
	defer tbl.Release()

	first, err := Digest(tbl)
	require.NoError(t, err)
	second, err := Digest(tbl)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 16)
}

func TestDigestChangesWithContent(t *testing.T) {
	b1 := NewBuilder(String("date"), Float64("close"))
	require.NoError(t, b1.Append("2024-01-02", 18.5))
	tbl1 := b1.NewTable()
	defer tbl1.Release()

	b2 := NewBuilder(String("date"), Float64("close"))
	require.NoError(t, b2.Append("2024-01-02", 18.6))
	tbl2 := b2.NewTable()
	defer tbl2.Release()

	d1, err := Digest(tbl1)
	require.NoError(t, err)
	d2, err := Digest(tbl2)
	require.NoError(t, err)
	assert.NotEqual(t, d1, d2)
}

func TestDigestChangesWithColumns(t *testing.T) {
	b1 := NewBuilder(String("date"))
	require.NoError(t, b1.Append("2024-01-02"))
	tbl1 := b1.NewTable()
	defer tbl1.Release()

	b2 := NewBuilder(String("date"), Float64("close"))
	require.NoError(t, b2.Append("2024-01-02", nil))
	tbl2 := b2.NewTable()
	defer tbl2.Release()

	d1, err := Digest(tbl1)
	require.NoError(t, err)
	d2, err := Digest(tbl2)
	require.NoError(t, err)
	assert.NotEqual(t, d1, d2)
}

func TestSizeBytesGrowsWithRows(t *testing.T) {
	b1 := NewBuilder(String("date"), Float64("close"))
	require.NoError(t, b1.Append("2024-01-02", 18.5))
	small := b1.NewTable()
	defer small.Release()

	b2 := NewBuilder(String("date"), Float64("close"))
	for i := 0; i < 100; i++ {
		require.NoError(t, b2.Append("2024-01-02", 18.5))
	}
	large := b2.NewTable()
	defer large.Release()

	assert.Greater(t, SizeBytes(small), int64(0))
	assert.Greater(t, SizeBytes(large), SizeBytes(small))
}

func TestFromRowsFillsMissingColumns(t *testing.T) {
	b := NewBuilder(String("id"), Float64("value"), String("note"))
	require.NoError(t, b.Append("a", 1.0, "first"))
	tbl := b.NewTable()
	defer tbl.Release()

	rows := []map[string]interface{}{
		{"id": "a", "value": 1.0},
		{"id": "b", "note": "second"},
	}
	got, err := FromRows(tbl.Schema(), rows)
	require.NoError(t, err)
	defer got.Release()

	assert.Equal(t, int64(2), got.NumRows())
	assert.Equal(t, map[string]int64{"value": 1, "note": 1}, NullCounts(got))
}

func TestMergeSchemas(t *testing.T) {
	b1 := NewBuilder(String("id"), Float64("value"))
	require.NoError(t, b1.Append("a", 1.0))
	tbl1 := b1.NewTable()
	defer tbl1.Release()

	b2 := NewBuilder(String("id"), String("note"))
	require.NoError(t, b2.Append("a", "n"))
	tbl2 := b2.NewTable()
	defer tbl2.Release()

	merged, err := MergeSchemas(tbl1.Schema(), tbl2.Schema())
	require.NoError(t, err)
	names := make([]string, 0, 3)
	for _, f := range merged.Fields() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"id", "value", "note"}, names)
}

func TestMergeSchemasTypeConflict(t *testing.T) {
	b1 := NewBuilder(Float64("value"))
	require.NoError(t, b1.Append(1.0))
	tbl1 := b1.NewTable()
	defer tbl1.Release()

	b2 := NewBuilder(String("value"))
	require.NoError(t, b2.Append("v"))
	tbl2 := b2.NewTable()
	defer tbl2.Release()

	_, err := MergeSchemas(tbl1.Schema(), tbl2.Schema())
	require.Error(t, err)
}

func TestMetadataRoundTrip(t *testing.T) {
	b := NewBuilder(String("id"))
	require.NoError(t, b.Append("a"))
	tbl := b.NewTable()
	defer tbl.Release()

	annotated := WithMetadata(tbl, map[string]string{"asset_metadata": `{"title":"x"}`})
	defer annotated.Release()

	v, ok := Metadata(annotated, "asset_metadata")
	require.True(t, ok)
	assert.Equal(t, `{"title":"x"}`, v)

	_, ok = Metadata(annotated, "missing")
	assert.False(t, ok)
}
