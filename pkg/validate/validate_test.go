package validate

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subsetsio/market-connectors/pkg/errors"
	"github.com/subsetsio/market-connectors/pkg/table"
)

func sampleTable(t *testing.T) arrow.Table {
	t.Helper()
	b := table.NewBuilder(table.String("date"), table.Float64("close"))
	require.NoError(t, b.Append("2024-01-02", 18.5))
	require.NoError(t, b.Append("2024-01-03", 19.1))
	return b.NewTable()
}

func TestTableValid(t *testing.T) {
	tbl := sampleTable(t)
	defer tbl.Release()

	err := Table(tbl, Rules{
		Columns: map[string]string{"date": "string", "close": "double"},
		NotNull: []string{"date"},
		Unique:  []string{"date"},
		MinRows: 2,
	})
	assert.NoError(t, err)
}

func TestTableMissingColumn(t *testing.T) {
	tbl := sampleTable(t)
	defer tbl.Release()

	err := Table(tbl, Rules{Columns: map[string]string{"volume": "double"}})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	assert.Contains(t, err.Error(), "volume")
}

func TestTableWrongType(t *testing.T) {
	tbl := sampleTable(t)
	defer tbl.Release()

	err := Table(tbl, Rules{Columns: map[string]string{"close": "int64"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected int64")
}

func TestTableNullsRejected(t *testing.T) {
	b := table.NewBuilder(table.String("date"), table.Float64("close"))
	require.NoError(t, b.Append("2024-01-02", nil))
	tbl := b.NewTable()
	defer tbl.Release()

	err := Table(tbl, Rules{NotNull: []string{"close"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "null")
}

func TestTableDuplicatesRejected(t *testing.T) {
	b := table.NewBuilder(table.String("date"), table.Float64("close"))
	require.NoError(t, b.Append("2024-01-02", 18.5))
	require.NoError(t, b.Append("2024-01-02", 19.1))
	tbl := b.NewTable()
	defer tbl.Release()

	err := Table(tbl, Rules{Unique: []string{"date"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestTableNullsSkippedByUnique(t *testing.T) {
	b := table.NewBuilder(table.String("date"), table.Float64("close"))
	require.NoError(t, b.Append(nil, 18.5))
	require.NoError(t, b.Append(nil, 19.1))
	tbl := b.NewTable()
	defer tbl.Release()

	assert.NoError(t, Table(tbl, Rules{Unique: []string{"date"}}))
}

func TestTableMinRows(t *testing.T) {
	tbl := sampleTable(t)
	defer tbl.Release()

	err := Table(tbl, Rules{MinRows: 100})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 100")
}

func TestRuleColumnMustExist(t *testing.T) {
	tbl := sampleTable(t)
	defer tbl.Release()

	require.Error(t, Table(tbl, Rules{NotNull: []string{"volume"}}))
	require.Error(t, Table(tbl, Rules{Unique: []string{"volume"}}))
}
