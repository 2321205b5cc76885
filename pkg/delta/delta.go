// Package delta implements the versioned table store the sync engine writes
// through. Tables live at a location prefix in the object store as immutable
// Parquet part files plus a JSON commit log under _log/; each commit records
// the live file set, so a snapshot read never observes a partial write.
// An overwrite commit removes the parts it supersedes once it lands; log
// entries are kept, but only the latest commit is a readable snapshot.
//
// The package assumes a single writer per table location; concurrent commits
// to the same location are not coordinated.
package delta

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
)

// Mode selects how a write combines with the existing snapshot.
type Mode string

const (
	// ModeAppend adds the new data to the current snapshot
	ModeAppend Mode = "append"
	// ModeOverwrite replaces the current snapshot outright
	ModeOverwrite Mode = "overwrite"
)

// SchemaMode selects how a write's schema combines with the table schema.
type SchemaMode string

const (
	// SchemaMerge unions new columns into the existing schema
	SchemaMerge SchemaMode = "merge"
	// SchemaOverwrite replaces the schema outright
	SchemaOverwrite SchemaMode = "overwrite"
)

// WriteOptions configures a table write.
type WriteOptions struct {
	Mode       Mode
	SchemaMode SchemaMode

	// Name and Description annotate the commit; used for dataset metadata.
	Name        string
	Description string
}

// TableStore is the contract the sync engine depends on. The engine never
// inspects the log or part layout, only writes, opens and merges.
type TableStore interface {
	// Write commits a table at the location in the requested mode. The
	// location is created on first write.
	Write(ctx context.Context, location string, tbl arrow.Table, opts WriteOptions) error

	// Open returns a handle on the current snapshot. Returns a not_found
	// error when no table exists at the location.
	Open(ctx context.Context, location string) (Handle, error)
}

// Handle is a view of one table snapshot.
type Handle interface {
	// Merge upserts source rows into the table by equality on the key
	// column: matched rows take all source columns, unmatched source rows
	// are inserted. Returns the resulting total row count.
	Merge(ctx context.Context, source arrow.Table, key string) (int64, error)

	// ReadAll materializes the current snapshot as a single table.
	ReadAll(ctx context.Context) (arrow.Table, error)

	// Version reports the snapshot's commit version.
	Version() int64
}
