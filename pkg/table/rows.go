package table

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/subsetsio/market-connectors/pkg/errors"
)

// Rows converts a table to row maps keyed by column name. Nulls become nil.
// This is the row-level view the merge path works on; it is not meant for
// large analytical scans.
func Rows(tbl arrow.Table) ([]map[string]interface{}, error) {
	numRows := int(tbl.NumRows())
	rows := make([]map[string]interface{}, numRows)
	for i := range rows {
		rows[i] = make(map[string]interface{}, tbl.NumCols())
	}

	for c := 0; c < int(tbl.NumCols()); c++ {
		name := tbl.Schema().Field(c).Name
		values, err := columnValues(tbl.Column(c))
		if err != nil {
			return nil, err
		}
		for i, v := range values {
			rows[i][name] = v
		}
	}
	return rows, nil
}

func columnValues(col *arrow.Column) ([]interface{}, error) {
	var values []interface{}
	for _, chunk := range col.Data().Chunks() {
		for i := 0; i < chunk.Len(); i++ {
			if chunk.IsNull(i) {
				values = append(values, nil)
				continue
			}
			switch arr := chunk.(type) {
			case *array.String:
				values = append(values, arr.Value(i))
			case *array.Float64:
				values = append(values, arr.Value(i))
			case *array.Int64:
				values = append(values, arr.Value(i))
			case *array.Boolean:
				values = append(values, arr.Value(i))
			case *array.Timestamp:
				tsType, ok := arr.DataType().(*arrow.TimestampType)
				if !ok {
					return nil, errors.Newf(errors.ErrorTypeData, "unexpected timestamp type in column %s", col.Name())
				}
				values = append(values, arr.Value(i).ToTime(tsType.Unit))
			default:
				return nil, errors.Newf(errors.ErrorTypeData,
					"unsupported column type %s in column %s", chunk.DataType().Name(), col.Name())
			}
		}
	}
	return values, nil
}

// FromRows builds a table with the given schema from row maps. Missing keys
// and nil values become nulls.
func FromRows(schema *arrow.Schema, rows []map[string]interface{}) (arrow.Table, error) {
	builder := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer builder.Release()

	for _, row := range rows {
		for i, field := range schema.Fields() {
			if err := appendValue(builder.Field(i), field, row[field.Name]); err != nil {
				return nil, err
			}
		}
	}

	rec := builder.NewRecord()
	defer rec.Release()
	return array.NewTableFromRecords(schema, []arrow.Record{rec}), nil
}

// MergeSchemas unions two schemas: all of base's fields in order, then any
// fields only present in extra. Fields sharing a name must share a type.
func MergeSchemas(base, extra *arrow.Schema) (*arrow.Schema, error) {
	fields := make([]arrow.Field, 0, len(base.Fields())+len(extra.Fields()))
	seen := make(map[string]arrow.DataType)
	for _, f := range base.Fields() {
		fields = append(fields, f)
		seen[f.Name] = f.Type
	}
	for _, f := range extra.Fields() {
		if existing, ok := seen[f.Name]; ok {
			if !arrow.TypeEqual(existing, f.Type) {
				return nil, errors.Newf(errors.ErrorTypeData,
					"schema mismatch for column %s: %s vs %s", f.Name, existing.Name(), f.Type.Name())
			}
			continue
		}
		fields = append(fields, f)
	}
	return arrow.NewSchema(fields, nil), nil
}

// WithMetadata returns a table whose schema carries the given metadata keys.
// The underlying column data is shared.
func WithMetadata(tbl arrow.Table, meta map[string]string) arrow.Table {
	keys := make([]string, 0, len(meta))
	vals := make([]string, 0, len(meta))
	for k, v := range meta {
		keys = append(keys, k)
		vals = append(vals, v)
	}
	md := arrow.NewMetadata(keys, vals)
	schema := arrow.NewSchema(tbl.Schema().Fields(), &md)

	cols := make([]arrow.Column, tbl.NumCols())
	for i := range cols {
		cols[i] = *tbl.Column(i)
	}
	return array.NewTable(schema, cols, tbl.NumRows())
}

// Metadata reads a schema metadata value, if present.
func Metadata(tbl arrow.Table, key string) (string, bool) {
	md := tbl.Schema().Metadata()
	idx := md.FindKey(key)
	if idx < 0 {
		return "", false
	}
	return md.Values()[idx], true
}
