// Package rawcache stores fetched artifacts verbatim, keyed by asset id and
// extension, so transforms can re-read exactly what the ingest step fetched.
package rawcache

import (
	"bytes"
	"context"
	"io"
	"path"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/subsetsio/market-connectors/pkg/config"
	"github.com/subsetsio/market-connectors/pkg/errors"
	"github.com/subsetsio/market-connectors/pkg/jsonx"
	"github.com/subsetsio/market-connectors/pkg/logger"
	"github.com/subsetsio/market-connectors/pkg/storage"
	"github.com/subsetsio/market-connectors/pkg/table"
)

// assetMetadataKey is the schema metadata key under which SaveTable embeds
// caller-supplied metadata.
const assetMetadataKey = "asset_metadata"

// Payload is the tagged text-or-binary content of a raw asset. Exactly one
// constructor applies; content type is not declared up front, so Load probes
// for valid UTF-8 and falls back to binary.
type Payload struct {
	text   string
	binary []byte
	isText bool
}

// Text wraps string content.
func Text(s string) Payload { return Payload{text: s, isText: true} }

// Binary wraps byte content.
func Binary(b []byte) Payload { return Payload{binary: b} }

// IsText reports whether the payload is text.
func (p Payload) IsText() bool { return p.isText }

// String returns the text form. Binary payloads decode as a raw string.
func (p Payload) String() string {
	if p.isText {
		return p.text
	}
	return string(p.binary)
}

// Bytes returns the byte form.
func (p Payload) Bytes() []byte {
	if p.isText {
		return []byte(p.text)
	}
	return p.binary
}

// Cache is the raw artifact store.
type Cache struct {
	cfg   *config.Runtime
	store storage.ObjectStore
	log   *zap.Logger
}

// New creates a cache over the given backend.
func New(cfg *config.Runtime, store storage.ObjectStore) *Cache {
	return &Cache{
		cfg:   cfg,
		store: store,
		log:   logger.With(zap.String("component", "rawcache"), zap.String("backend", store.Name())),
	}
}

// Save writes a payload verbatim, overwriting unconditionally. Returns the
// backend location of the stored object.
func (c *Cache) Save(ctx context.Context, id, ext string, p Payload) (string, error) {
	key := c.cfg.RawKey(id, ext)
	if err := c.store.Put(ctx, key, p.Bytes()); err != nil {
		return "", err
	}
	c.log.Info("saved raw asset", zap.String("asset", id+"."+ext))
	return c.store.Location(key), nil
}

// Load reads a payload back. Valid UTF-8 content comes back as text,
// anything else as binary.
func (c *Cache) Load(ctx context.Context, id, ext string) (Payload, error) {
	key := c.cfg.RawKey(id, ext)
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if errors.IsNotFound(err) {
			return Payload{}, errors.Newf(errors.ErrorTypeNotFound, "raw asset %q not found", id+"."+ext)
		}
		return Payload{}, err
	}
	c.log.Info("loaded raw asset", zap.String("asset", id+"."+ext))
	if utf8.Valid(data) {
		return Text(string(data)), nil
	}
	return Binary(data), nil
}

// SaveJSON stores v as a JSON asset, gzip-compressed when compress is set.
func (c *Cache) SaveJSON(ctx context.Context, id string, v interface{}, compress bool) (string, error) {
	data, err := jsonx.MarshalIndent(v)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeData, "failed to encode raw JSON")
	}
	ext := "json"
	if compress {
		ext = "json.gz"
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		if _, err := gz.Write(data); err != nil {
			return "", errors.Wrap(err, errors.ErrorTypeData, "failed to compress raw JSON")
		}
		if err := gz.Close(); err != nil {
			return "", errors.Wrap(err, errors.ErrorTypeData, "failed to compress raw JSON")
		}
		data = buf.Bytes()
	}

	key := c.cfg.RawKey(id, ext)
	if err := c.store.Put(ctx, key, data); err != nil {
		return "", err
	}
	c.log.Info("saved raw asset", zap.String("asset", id+"."+ext))
	return c.store.Location(key), nil
}

// LoadJSON decodes a JSON asset into out, trying the uncompressed key first
// and the gzip key second.
func (c *Cache) LoadJSON(ctx context.Context, id string, out interface{}) error {
	data, err := c.store.Get(ctx, c.cfg.RawKey(id, "json"))
	if err == nil {
		c.log.Info("loaded raw asset", zap.String("asset", id+".json"))
		return decodeJSON(data, out)
	}
	if !errors.IsNotFound(err) {
		return err
	}

	data, err = c.store.Get(ctx, c.cfg.RawKey(id, "json.gz"))
	if err != nil {
		if errors.IsNotFound(err) {
			return errors.Newf(errors.ErrorTypeNotFound, "raw asset %q not found", id)
		}
		return err
	}
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to open gzip asset")
	}
	defer gz.Close()
	raw, err := io.ReadAll(gz)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to decompress asset")
	}
	c.log.Info("loaded raw asset", zap.String("asset", id+".json.gz"))
	return decodeJSON(raw, out)
}

func decodeJSON(data []byte, out interface{}) error {
	if err := jsonx.Unmarshal(data, out); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to decode raw JSON")
	}
	return nil
}

// SaveTable stores a columnar snapshot as Parquet. Metadata, when given, is
// embedded in the schema under the asset_metadata key.
func (c *Cache) SaveTable(ctx context.Context, id string, tbl arrow.Table, meta map[string]string) (string, error) {
	if len(meta) > 0 {
		encoded, err := jsonx.Marshal(meta)
		if err != nil {
			return "", errors.Wrap(err, errors.ErrorTypeData, "failed to encode asset metadata")
		}
		tbl = table.WithMetadata(tbl, map[string]string{assetMetadataKey: string(encoded)})
	}
	data, err := table.WriteParquet(tbl)
	if err != nil {
		return "", err
	}

	key := c.cfg.RawKey(id, "parquet")
	if err := c.store.Put(ctx, key, data); err != nil {
		return "", err
	}
	c.log.Info("saved raw asset",
		zap.String("asset", id+".parquet"),
		zap.Int64("rows", tbl.NumRows()))
	return c.store.Location(key), nil
}

// LoadTable reads a columnar snapshot back.
func (c *Cache) LoadTable(ctx context.Context, id string) (arrow.Table, error) {
	data, err := c.store.Get(ctx, c.cfg.RawKey(id, "parquet"))
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.Newf(errors.ErrorTypeNotFound, "raw parquet asset %q not found", id)
		}
		return nil, err
	}
	c.log.Info("loaded raw asset", zap.String("asset", id+".parquet"))
	return table.ReadParquet(ctx, data)
}

// Exists checks whether a raw asset is present.
func (c *Cache) Exists(ctx context.Context, id, ext string) (bool, error) {
	return c.store.Exists(ctx, c.cfg.RawKey(id, ext))
}

// ListIDs lists asset ids (extension stripped) matching a glob pattern,
// sorted and de-duplicated.
func (c *Cache) ListIDs(ctx context.Context, pattern string) ([]string, error) {
	prefix := c.cfg.RawPrefix()
	keys, err := c.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var ids []string
	for _, key := range keys {
		name := strings.TrimPrefix(key, prefix)
		id := stripExtension(name)
		if seen[id] {
			continue
		}
		match, err := path.Match(pattern, id)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeValidation, "invalid glob pattern")
		}
		if match {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// stripExtension removes the asset extension, treating compound extensions
// like .json.gz as a single suffix.
func stripExtension(name string) string {
	if strings.HasSuffix(name, ".json.gz") {
		return strings.TrimSuffix(name, ".json.gz")
	}
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[:i]
	}
	return name
}
