package delta

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/subsetsio/market-connectors/pkg/errors"
	"github.com/subsetsio/market-connectors/pkg/jsonx"
	"github.com/subsetsio/market-connectors/pkg/logger"
	"github.com/subsetsio/market-connectors/pkg/storage"
	"github.com/subsetsio/market-connectors/pkg/table"
)

// commit is one entry of the table's JSON log. Files is the complete live
// file set after the commit, so any single commit fully describes a snapshot.
type commit struct {
	ID          string   `json:"id"`
	Version     int64    `json:"version"`
	Timestamp   string   `json:"timestamp"`
	Mode        Mode     `json:"mode"`
	Files       []string `json:"files"`
	RowCount    int64    `json:"row_count"`
	Name        string   `json:"name,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Store implements TableStore over an object store.
type Store struct {
	store storage.ObjectStore
	log   *zap.Logger
}

// NewStore creates a table store over the given backend.
func NewStore(store storage.ObjectStore) *Store {
	return &Store{
		store: store,
		log:   logger.With(zap.String("component", "delta"), zap.String("backend", store.Name())),
	}
}

func logPrefix(location string) string {
	return location + "/_log/"
}

func commitKey(location string, version int64) string {
	return fmt.Sprintf("%s%020d.json", logPrefix(location), version)
}

func partKey(location string, version int64, id string) string {
	return fmt.Sprintf("%s/part-%020d-%s.parquet", location, version, id)
}

// latestCommit reads the newest log entry, or a not_found error when the
// table does not exist.
func (s *Store) latestCommit(ctx context.Context, location string) (*commit, error) {
	keys, err := s.store.List(ctx, logPrefix(location))
	if err != nil {
		return nil, err
	}
	var latest int64 = -1
	var latestKey string
	for _, key := range keys {
		name := strings.TrimSuffix(strings.TrimPrefix(key, logPrefix(location)), ".json")
		v, err := strconv.ParseInt(name, 10, 64)
		if err != nil {
			continue
		}
		if v > latest {
			latest = v
			latestKey = key
		}
	}
	if latest < 0 {
		return nil, errors.Newf(errors.ErrorTypeNotFound, "no table found at %q", location)
	}

	data, err := s.store.Get(ctx, latestKey)
	if err != nil {
		return nil, err
	}
	var c commit
	if err := jsonx.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decode commit entry")
	}
	return &c, nil
}

// Write commits a table at the location in the requested mode.
func (s *Store) Write(ctx context.Context, location string, tbl arrow.Table, opts WriteOptions) error {
	if opts.Mode != ModeAppend && opts.Mode != ModeOverwrite {
		return errors.Newf(errors.ErrorTypeValidation, "invalid write mode %q", opts.Mode)
	}

	prev, err := s.latestCommit(ctx, location)
	if err != nil && !errors.IsNotFound(err) {
		return err
	}

	if prev != nil && opts.Mode == ModeAppend && opts.SchemaMode == SchemaMerge {
		if err := s.checkSchemaCompatible(ctx, prev, tbl); err != nil {
			return err
		}
	}

	var version int64
	if prev != nil {
		version = prev.Version + 1
	}

	data, err := table.WriteParquet(tbl)
	if err != nil {
		return err
	}
	part := partKey(location, version, uuid.NewString())
	if err := s.store.Put(ctx, part, data); err != nil {
		return err
	}

	files := []string{part}
	rowCount := tbl.NumRows()
	if prev != nil && opts.Mode == ModeAppend {
		files = append(append([]string{}, prev.Files...), part)
		rowCount += prev.RowCount
	}

	entry := commit{
		ID:          uuid.NewString(),
		Version:     version,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Mode:        opts.Mode,
		Files:       files,
		RowCount:    rowCount,
		Name:        opts.Name,
		Description: opts.Description,
	}
	entryData, err := jsonx.MarshalIndent(entry)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to encode commit entry")
	}
	// The commit entry is written last; readers only see a part file once
	// its commit lands.
	if err := s.store.Put(ctx, commitKey(location, version), entryData); err != nil {
		return err
	}

	if prev != nil && opts.Mode == ModeOverwrite {
		s.vacuum(ctx, location, prev.Files)
	}

	s.log.Info("committed table write",
		zap.String("location", location),
		zap.Int64("version", version),
		zap.String("mode", string(opts.Mode)),
		zap.Int64("rows", tbl.NumRows()))
	return nil
}

// vacuum removes part files superseded by an overwrite commit. The commit
// log entries stay; only the latest commit describes a readable snapshot.
// Failures are logged, not returned: the new commit already landed and an
// orphaned part is unreachable either way.
func (s *Store) vacuum(ctx context.Context, location string, parts []string) {
	for _, part := range parts {
		if err := s.store.Delete(ctx, part); err != nil {
			s.log.Warn("failed to remove superseded part",
				zap.String("location", location),
				zap.String("part", part),
				zap.Error(err))
			continue
		}
		s.log.Debug("removed superseded part",
			zap.String("location", location),
			zap.String("part", part))
	}
}

// checkSchemaCompatible verifies that an appended table's schema can merge
// into the current snapshot schema: shared columns must type-match.
func (s *Store) checkSchemaCompatible(ctx context.Context, prev *commit, tbl arrow.Table) error {
	existing, err := s.readSnapshot(ctx, prev)
	if err != nil {
		return err
	}
	defer existing.Release()
	_, err = table.MergeSchemas(existing.Schema(), tbl.Schema())
	return err
}

// Open returns a handle on the current snapshot.
func (s *Store) Open(ctx context.Context, location string) (Handle, error) {
	c, err := s.latestCommit(ctx, location)
	if err != nil {
		return nil, err
	}
	return &handle{store: s, location: location, commit: c}, nil
}

// readSnapshot concatenates a commit's live part files, unioning schemas
// across parts written before a schema merge.
func (s *Store) readSnapshot(ctx context.Context, c *commit) (arrow.Table, error) {
	tables := make([]arrow.Table, 0, len(c.Files))
	for _, part := range c.Files {
		data, err := s.store.Get(ctx, part)
		if err != nil {
			return nil, err
		}
		tbl, err := table.ReadParquet(ctx, data)
		if err != nil {
			return nil, err
		}
		tables = append(tables, tbl)
	}
	if len(tables) == 1 {
		return tables[0], nil
	}
	defer func() {
		for _, t := range tables {
			t.Release()
		}
	}()

	schema := tables[0].Schema()
	for _, t := range tables[1:] {
		merged, err := table.MergeSchemas(schema, t.Schema())
		if err != nil {
			return nil, err
		}
		schema = merged
	}

	var rows []map[string]interface{}
	for _, t := range tables {
		r, err := table.Rows(t)
		if err != nil {
			return nil, err
		}
		rows = append(rows, r...)
	}
	return table.FromRows(schema, rows)
}

type handle struct {
	store    *Store
	location string
	commit   *commit
}

func (h *handle) Version() int64 {
	return h.commit.Version
}

func (h *handle) ReadAll(ctx context.Context) (arrow.Table, error) {
	return h.store.readSnapshot(ctx, h.commit)
}

func (h *handle) Merge(ctx context.Context, source arrow.Table, key string) (int64, error) {
	if source.Schema().FieldIndices(key) == nil {
		return 0, errors.Newf(errors.ErrorTypeValidation, "merge key %q not in source columns", key)
	}

	existing, err := h.ReadAll(ctx)
	if err != nil {
		return 0, err
	}
	defer existing.Release()
	if existing.Schema().FieldIndices(key) == nil {
		return 0, errors.Newf(errors.ErrorTypeValidation, "merge key %q not in target columns", key)
	}

	schema, err := table.MergeSchemas(existing.Schema(), source.Schema())
	if err != nil {
		return 0, err
	}

	rows, err := table.Rows(existing)
	if err != nil {
		return 0, err
	}
	sourceRows, err := table.Rows(source)
	if err != nil {
		return 0, err
	}

	index := make(map[interface{}]int, len(rows))
	for i, row := range rows {
		if v, ok := row[key]; ok && v != nil {
			index[v] = i
		}
	}

	for _, src := range sourceRows {
		v := src[key]
		if v == nil {
			rows = append(rows, src)
			continue
		}
		if i, ok := index[v]; ok {
			// Matched: every source column updates the target row.
			for col, val := range src {
				rows[i][col] = val
			}
		} else {
			index[v] = len(rows)
			rows = append(rows, src)
		}
	}

	merged, err := table.FromRows(schema, rows)
	if err != nil {
		return 0, err
	}
	defer merged.Release()

	if err := h.store.Write(ctx, h.location, merged, WriteOptions{
		Mode:        ModeOverwrite,
		SchemaMode:  SchemaOverwrite,
		Name:        h.commit.Name,
		Description: h.commit.Description,
	}); err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}
