// Package table provides Arrow table construction, Parquet serialization and
// the content digest used for change detection.
package table

import (
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/subsetsio/market-connectors/pkg/errors"
)

// Type enumerates the column types connectors produce.
type Type int

const (
	TypeString Type = iota
	TypeFloat64
	TypeInt64
	TypeBool
	TypeTimestamp
)

// Field declares one column of a table under construction.
type Field struct {
	Name string
	Type Type
}

// String declares a string column.
func String(name string) Field { return Field{Name: name, Type: TypeString} }

// Float64 declares a double column.
func Float64(name string) Field { return Field{Name: name, Type: TypeFloat64} }

// Int64 declares an int64 column.
func Int64(name string) Field { return Field{Name: name, Type: TypeInt64} }

// Bool declares a boolean column.
func Bool(name string) Field { return Field{Name: name, Type: TypeBool} }

// Timestamp declares a microsecond timestamp column.
func Timestamp(name string) Field { return Field{Name: name, Type: TypeTimestamp} }

func (t Type) arrowType() arrow.DataType {
	switch t {
	case TypeString:
		return arrow.BinaryTypes.String
	case TypeFloat64:
		return arrow.PrimitiveTypes.Float64
	case TypeInt64:
		return arrow.PrimitiveTypes.Int64
	case TypeBool:
		return arrow.FixedWidthTypes.Boolean
	case TypeTimestamp:
		return arrow.FixedWidthTypes.Timestamp_us
	default:
		return arrow.BinaryTypes.String
	}
}

// TypeName reports the validation-facing name of an Arrow column type.
func TypeName(dt arrow.DataType) string {
	switch dt.ID() {
	case arrow.STRING:
		return "string"
	case arrow.FLOAT64:
		return "double"
	case arrow.INT64:
		return "int64"
	case arrow.BOOL:
		return "bool"
	case arrow.TIMESTAMP:
		return "timestamp"
	default:
		return dt.Name()
	}
}

// Builder accumulates rows and produces an arrow.Table. All columns are
// nullable; a nil value appends a null.
type Builder struct {
	schema  *arrow.Schema
	builder *array.RecordBuilder
}

// NewBuilder creates a builder for the given columns.
func NewBuilder(fields ...Field) *Builder {
	arrowFields := make([]arrow.Field, len(fields))
	for i, f := range fields {
		arrowFields[i] = arrow.Field{Name: f.Name, Type: f.Type.arrowType(), Nullable: true}
	}
	schema := arrow.NewSchema(arrowFields, nil)
	return &Builder{
		schema:  schema,
		builder: array.NewRecordBuilder(memory.DefaultAllocator, schema),
	}
}

// Append adds one row. Values are positional and must match the declared
// columns; nil appends a null.
func (b *Builder) Append(values ...interface{}) error {
	if len(values) != len(b.schema.Fields()) {
		return errors.Newf(errors.ErrorTypeData, "expected %d values, got %d",
			len(b.schema.Fields()), len(values))
	}
	for i, v := range values {
		if err := appendValue(b.builder.Field(i), b.schema.Field(i), v); err != nil {
			return err
		}
	}
	return nil
}

// NewTable materializes the accumulated rows. The builder is consumed.
func (b *Builder) NewTable() arrow.Table {
	rec := b.builder.NewRecord()
	defer rec.Release()
	defer b.builder.Release()
	return array.NewTableFromRecords(b.schema, []arrow.Record{rec})
}

func appendValue(fb array.Builder, field arrow.Field, v interface{}) error {
	if v == nil {
		fb.AppendNull()
		return nil
	}
	switch builder := fb.(type) {
	case *array.StringBuilder:
		s, ok := v.(string)
		if !ok {
			return typeMismatch(field.Name, "string", v)
		}
		builder.Append(s)
	case *array.Float64Builder:
		switch val := v.(type) {
		case float64:
			builder.Append(val)
		case int:
			builder.Append(float64(val))
		case int64:
			builder.Append(float64(val))
		default:
			return typeMismatch(field.Name, "float64", v)
		}
	case *array.Int64Builder:
		switch val := v.(type) {
		case int64:
			builder.Append(val)
		case int:
			builder.Append(int64(val))
		default:
			return typeMismatch(field.Name, "int64", v)
		}
	case *array.BooleanBuilder:
		bv, ok := v.(bool)
		if !ok {
			return typeMismatch(field.Name, "bool", v)
		}
		builder.Append(bv)
	case *array.TimestampBuilder:
		t, ok := v.(time.Time)
		if !ok {
			return typeMismatch(field.Name, "time.Time", v)
		}
		ts, err := arrow.TimestampFromTime(t, arrow.Microsecond)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "timestamp out of range")
		}
		builder.Append(ts)
	default:
		return errors.Newf(errors.ErrorTypeData, "unsupported builder type for column %s", field.Name)
	}
	return nil
}

func typeMismatch(column, want string, got interface{}) error {
	return errors.Newf(errors.ErrorTypeData, "column %s expects %s, got %T", column, want, got)
}
