package connector

import (
	"encoding/csv"
	"strconv"
	"strings"

	"github.com/subsetsio/market-connectors/pkg/errors"
)

// CSVRows parses CSV text into one map per row keyed by the header line.
// Short rows are padded with empty strings; long rows are truncated.
func CSVRows(text string) ([]map[string]string, error) {
	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to parse CSV")
	}
	if len(records) == 0 {
		return nil, nil
	}
	header := records[0]
	rows := make([]map[string]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			} else {
				row[col] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ParseFloat parses a float cell, returning nil for empty or invalid values
// so the table builder appends a null.
func ParseFloat(value string) interface{} {
	value = strings.TrimSpace(value)
	if value == "" || value == "." || value == "NA" {
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil
	}
	return f
}
