package cboe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDate(t *testing.T) {
	assert.Equal(t, "2024-01-02", parseDate("01/02/2024"))
	assert.Equal(t, "2024-01-02", parseDate("2024-01-02"))
	assert.Equal(t, "", parseDate(""))
	assert.Equal(t, "", parseDate("Jan 2, 2024"))
	assert.Equal(t, "", parseDate("13/40/2024"))
}

func TestIndexCategories(t *testing.T) {
	assert.Equal(t, "volatility", indexCategories["VIX"])
	assert.Equal(t, "buywrite", indexCategories["BXM"])
	assert.Equal(t, "putwrite", indexCategories["PUT"])
	assert.NotContains(t, indexCategories, "SPX")
}

func TestAllIndicesSortedAndComplete(t *testing.T) {
	assert.Len(t, allIndices, len(indexCategories))
	assert.IsIncreasing(t, allIndices)
}
