package table

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/subsetsio/market-connectors/pkg/errors"
)

const digestChunkSize = 64 * 1024

// writerProps returns the fixed Parquet writer configuration. Stable
// properties keep the serialized bytes, and therefore the digest, a pure
// function of the table contents.
func writerProps() *parquet.WriterProperties {
	return parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Snappy),
	)
}

// WriteParquet serializes a table to Parquet (snappy).
func WriteParquet(tbl arrow.Table) ([]byte, error) {
	var buf bytes.Buffer
	err := pqarrow.WriteTable(tbl, &buf, digestChunkSize, writerProps(),
		pqarrow.NewArrowWriterProperties())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to serialize table to parquet")
	}
	return buf.Bytes(), nil
}

// ReadParquet deserializes a Parquet payload into a table.
func ReadParquet(ctx context.Context, data []byte) (arrow.Table, error) {
	rdr, err := file.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to open parquet payload")
	}
	fr, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to create arrow reader")
	}
	tbl, err := fr.ReadTable(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to read parquet table")
	}
	return tbl, nil
}

// Digest computes the change-detection fingerprint of a table: the first 16
// hex characters of the SHA-256 of its serialized Parquet bytes. It is a pure
// function of the ordered column set and values; callers own any sorting.
func Digest(tbl arrow.Table) (string, error) {
	data, err := WriteParquet(tbl)
	if err != nil {
		return "", err
	}
	return DigestBytes(data), nil
}

// DigestBytes computes the fingerprint of already-serialized table bytes.
func DigestBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16]
}

// NullCounts reports per-column null counts, omitting columns with none.
func NullCounts(tbl arrow.Table) map[string]int64 {
	counts := make(map[string]int64)
	for i := 0; i < int(tbl.NumCols()); i++ {
		col := tbl.Column(i)
		if n := col.Data().NullN(); n > 0 {
			counts[tbl.Schema().Field(i).Name] = int64(n)
		}
	}
	return counts
}

// SizeBytes reports the in-memory size of a table: the sum of its column
// buffer lengths.
func SizeBytes(tbl arrow.Table) int64 {
	var total int64
	for i := 0; i < int(tbl.NumCols()); i++ {
		for _, chunk := range tbl.Column(i).Data().Chunks() {
			for _, buf := range chunk.Data().Buffers() {
				if buf != nil {
					total += int64(buf.Len())
				}
			}
		}
	}
	return total
}

// ColumnNames lists the table's column names in schema order.
func ColumnNames(tbl arrow.Table) []string {
	names := make([]string, 0, tbl.NumCols())
	for _, f := range tbl.Schema().Fields() {
		names = append(names, f.Name)
	}
	return names
}
