// Package validate checks tabular output against per-dataset rules before a
// connector writes it.
package validate

import (
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/subsetsio/market-connectors/pkg/errors"
	"github.com/subsetsio/market-connectors/pkg/table"
)

// Rules declares the shape a dataset must satisfy. Type names follow the
// validation vocabulary: "string", "double", "int64", "bool", "timestamp".
type Rules struct {
	// Columns maps required column names to expected type names.
	Columns map[string]string
	// NotNull lists columns that must contain no nulls.
	NotNull []string
	// Unique lists columns whose values must not repeat.
	Unique []string
	// MinRows is the minimum acceptable row count.
	MinRows int
}

// Table checks tbl against the rules, returning a descriptive validation
// error on the first violation.
func Table(tbl arrow.Table, rules Rules) error {
	schema := tbl.Schema()

	for name, wantType := range rules.Columns {
		indices := schema.FieldIndices(name)
		if indices == nil {
			return errors.Newf(errors.ErrorTypeValidation,
				"missing column %q (have: %s)", name, strings.Join(table.ColumnNames(tbl), ", "))
		}
		got := table.TypeName(schema.Field(indices[0]).Type)
		if got != wantType {
			return errors.Newf(errors.ErrorTypeValidation,
				"column %q has type %s, expected %s", name, got, wantType)
		}
	}

	nullCounts := table.NullCounts(tbl)
	for _, name := range rules.NotNull {
		if schema.FieldIndices(name) == nil {
			return errors.Newf(errors.ErrorTypeValidation, "not_null column %q does not exist", name)
		}
		if n := nullCounts[name]; n > 0 {
			return errors.Newf(errors.ErrorTypeValidation,
				"column %q has %d null values", name, n)
		}
	}

	for _, name := range rules.Unique {
		if err := checkUnique(tbl, name); err != nil {
			return err
		}
	}

	if rules.MinRows > 0 && tbl.NumRows() < int64(rules.MinRows) {
		return errors.Newf(errors.ErrorTypeValidation,
			"table has %d rows, expected at least %d", tbl.NumRows(), rules.MinRows)
	}
	return nil
}

func checkUnique(tbl arrow.Table, name string) error {
	if tbl.Schema().FieldIndices(name) == nil {
		return errors.Newf(errors.ErrorTypeValidation, "unique column %q does not exist", name)
	}
	rows, err := table.Rows(tbl)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		v := row[name]
		if v == nil {
			continue
		}
		repr := fmt.Sprint(v)
		if seen[repr] {
			return errors.Newf(errors.ErrorTypeValidation,
				"column %q has duplicate value %v", name, v)
		}
		seen[repr] = true
	}
	return nil
}
