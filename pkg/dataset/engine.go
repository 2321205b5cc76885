// Package dataset implements the sync engine: hash-gated, mode-aware writes
// of tabular datasets through the versioned table store.
package dataset

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
	"go.uber.org/zap"

	"github.com/subsetsio/market-connectors/pkg/config"
	"github.com/subsetsio/market-connectors/pkg/delta"
	"github.com/subsetsio/market-connectors/pkg/errors"
	"github.com/subsetsio/market-connectors/pkg/jsonx"
	"github.com/subsetsio/market-connectors/pkg/logger"
	"github.com/subsetsio/market-connectors/pkg/state"
	"github.com/subsetsio/market-connectors/pkg/storage"
	"github.com/subsetsio/market-connectors/pkg/table"
)

// WriteMode enumerates the dataset write modes.
type WriteMode string

const (
	// Append adds rows to the dataset
	Append WriteMode = "append"
	// Overwrite replaces the dataset outright
	Overwrite WriteMode = "overwrite"
	// Merge upserts rows by a key column
	Merge WriteMode = "merge"
)

// hashStateKey is the state record tracking a dataset's last-written digest.
func hashStateKey(dataset string) string {
	return "_hash_" + dataset
}

// UploadOptions configures an unconditional dataset write.
type UploadOptions struct {
	Mode WriteMode

	// MergeKey is the upsert key column; required when Mode is Merge.
	MergeKey string

	// Metadata annotates the dataset. The "title" entry becomes the table
	// name; the full map is stored as the table description.
	Metadata map[string]string
}

// Engine orchestrates dataset writes. It performs a read-then-write over the
// state store and table store with no locking; one writer per dataset at a
// time is an operational requirement, not something the engine enforces.
type Engine struct {
	cfg     *config.Runtime
	tables  delta.TableStore
	state   *state.Store
	objects storage.ObjectStore
	log     *zap.Logger
	sinks   []EventSink
}

// NewEngine creates a sync engine. The default event sink logs the write and
// feeds the prometheus counters.
func NewEngine(cfg *config.Runtime, tables delta.TableStore, st *state.Store, objects storage.ObjectStore) *Engine {
	e := &Engine{
		cfg:     cfg,
		tables:  tables,
		state:   st,
		objects: objects,
		log:     logger.With(zap.String("component", "dataset"), zap.String("backend", objects.Name())),
	}
	e.sinks = []EventSink{e.defaultSink}
	return e
}

// Subscribe adds an event sink observing completed writes.
func (e *Engine) Subscribe(sink EventSink) {
	e.sinks = append(e.sinks, sink)
}

func (e *Engine) defaultSink(ev WriteEvent) {
	e.log.Info("dataset written",
		zap.String("dataset", ev.Dataset),
		zap.Int64("rows", ev.Rows),
		zap.Int64("bytes", ev.Bytes),
		zap.Strings("columns", ev.Columns),
		zap.Any("null_counts", ev.NullCounts),
		zap.String("mode", string(ev.Mode)),
		zap.String("location", ev.Location))
	recordWrite(ev)
}

func (e *Engine) emit(ev WriteEvent) {
	for _, sink := range e.sinks {
		sink(ev)
	}
}

// Sync writes a table to the named dataset only when its content digest
// differs from the last synced digest. Returns the write location, or the
// empty string when nothing was written.
func (e *Engine) Sync(ctx context.Context, tbl arrow.Table, name string, mode WriteMode) (string, error) {
	if mode != Append && mode != Overwrite {
		return "", errors.Newf(errors.ErrorTypeValidation, "invalid sync mode %q", mode)
	}
	if tbl.NumRows() == 0 {
		e.log.Info("no data to sync", zap.String("dataset", name))
		return "", nil
	}

	data, err := table.WriteParquet(tbl)
	if err != nil {
		return "", err
	}
	newHash := table.DigestBytes(data)

	record, err := e.state.Load(ctx, hashStateKey(name))
	if err != nil {
		return "", err
	}
	oldHash, _ := record["hash"].(string)

	if oldHash == newHash {
		e.log.Info("no changes detected",
			zap.String("dataset", name),
			zap.String("hash", newHash))
		datasetsSkipped.WithLabelValues(name).Inc()
		return "", nil
	}

	if oldHash != "" {
		e.log.Info("dataset changed",
			zap.String("dataset", name),
			zap.String("old_hash", oldHash),
			zap.String("new_hash", newHash))
	} else {
		e.log.Info("new dataset", zap.String("dataset", name), zap.String("hash", newHash))
	}

	location := e.cfg.DatasetLocation(name)
	schemaMode := delta.SchemaOverwrite
	deltaMode := delta.ModeOverwrite
	if mode == Append {
		deltaMode = delta.ModeAppend
		schemaMode = delta.SchemaMerge
	}
	if err := e.tables.Write(ctx, location, tbl, delta.WriteOptions{
		Mode:       deltaMode,
		SchemaMode: schemaMode,
	}); err != nil {
		return "", err
	}

	if _, err := e.state.Save(ctx, hashStateKey(name), map[string]interface{}{"hash": newHash}); err != nil {
		return "", err
	}

	resolved := e.objects.Location(location)
	e.emit(WriteEvent{
		Dataset:    name,
		Rows:       tbl.NumRows(),
		Bytes:      table.SizeBytes(tbl),
		Columns:    table.ColumnNames(tbl),
		NullCounts: table.NullCounts(tbl),
		Mode:       mode,
		Location:   resolved,
	})
	return resolved, nil
}

// Upload writes a table to the named dataset unconditionally. Mode and merge
// key are validated before any storage I/O. Returns the write location, or
// the empty string for a zero-row table.
func (e *Engine) Upload(ctx context.Context, tbl arrow.Table, name string, opts UploadOptions) (string, error) {
	switch opts.Mode {
	case Append, Overwrite, Merge:
	default:
		return "", errors.Newf(errors.ErrorTypeValidation,
			"invalid mode %q, must be append, overwrite, or merge", opts.Mode)
	}
	if opts.Mode == Merge && opts.MergeKey == "" {
		return "", errors.New(errors.ErrorTypeValidation, "merge key is required when mode is merge")
	}
	if opts.Mode == Overwrite {
		e.log.Warn("overwriting dataset, all existing data will be replaced",
			zap.String("dataset", name))
	}
	if tbl.NumRows() == 0 {
		e.log.Info("no data to upload", zap.String("dataset", name))
		return "", nil
	}

	tableName, tableDesc, err := metadataAnnotations(opts.Metadata)
	if err != nil {
		return "", err
	}

	location := e.cfg.DatasetLocation(name)
	e.log.Info("uploading dataset",
		zap.String("dataset", name),
		zap.String("mode", string(opts.Mode)),
		zap.Int64("rows", tbl.NumRows()),
		zap.Strings("columns", table.ColumnNames(tbl)))

	switch opts.Mode {
	case Merge:
		if err := e.mergeOrCreate(ctx, location, tbl, opts.MergeKey, tableName, tableDesc); err != nil {
			return "", err
		}
	case Append:
		if err := e.tables.Write(ctx, location, tbl, delta.WriteOptions{
			Mode:        delta.ModeAppend,
			SchemaMode:  delta.SchemaMerge,
			Name:        tableName,
			Description: tableDesc,
		}); err != nil {
			return "", err
		}
	case Overwrite:
		if err := e.tables.Write(ctx, location, tbl, delta.WriteOptions{
			Mode:        delta.ModeOverwrite,
			SchemaMode:  delta.SchemaOverwrite,
			Name:        tableName,
			Description: tableDesc,
		}); err != nil {
			return "", err
		}
	}

	resolved := e.objects.Location(location)
	e.emit(WriteEvent{
		Dataset:    name,
		Rows:       tbl.NumRows(),
		Bytes:      table.SizeBytes(tbl),
		Columns:    table.ColumnNames(tbl),
		NullCounts: table.NullCounts(tbl),
		Mode:       opts.Mode,
		Location:   resolved,
	})
	return resolved, nil
}

// mergeOrCreate upserts the table into the existing dataset, creating it
// fresh when and only when the target does not exist yet. Any other merge
// failure propagates; recreating the table on, say, a schema mismatch would
// silently discard data.
func (e *Engine) mergeOrCreate(ctx context.Context, location string, tbl arrow.Table, key, name, desc string) error {
	handle, err := e.tables.Open(ctx, location)
	if err != nil {
		if !errors.IsNotFound(err) {
			return err
		}
		e.log.Info("target absent, creating new table", zap.String("location", location))
		return e.tables.Write(ctx, location, tbl, delta.WriteOptions{
			Mode:        delta.ModeOverwrite,
			SchemaMode:  delta.SchemaOverwrite,
			Name:        name,
			Description: desc,
		})
	}

	total, err := handle.Merge(ctx, tbl, key)
	if err != nil {
		return err
	}
	e.log.Info("merged into dataset",
		zap.String("location", location),
		zap.Int64("total_rows", total))
	return nil
}

// LoadAsset reads the current snapshot of a dataset.
func (e *Engine) LoadAsset(ctx context.Context, name string) (arrow.Table, error) {
	handle, err := e.tables.Open(ctx, e.cfg.DatasetLocation(name))
	if err != nil {
		return nil, err
	}
	return handle.ReadAll(ctx)
}

func metadataAnnotations(meta map[string]string) (name, desc string, err error) {
	if len(meta) == 0 {
		return "", "", nil
	}
	name = meta["title"]
	encoded, err := jsonx.Marshal(meta)
	if err != nil {
		return "", "", errors.Wrap(err, errors.ErrorTypeData, "failed to encode dataset metadata")
	}
	return name, string(encoded), nil
}
