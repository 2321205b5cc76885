// Package state is a small JSON key/value store, one record per logical
// asset, with write provenance stamped into every record.
package state

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/subsetsio/market-connectors/pkg/config"
	"github.com/subsetsio/market-connectors/pkg/errors"
	"github.com/subsetsio/market-connectors/pkg/jsonx"
	"github.com/subsetsio/market-connectors/pkg/logger"
	"github.com/subsetsio/market-connectors/pkg/storage"
)

// MetadataField is the reserved provenance key in every state record.
const MetadataField = "_metadata"

// ChangeHook observes every state write with the old and new record.
type ChangeHook func(key string, old, updated map[string]interface{})

// Store persists state records through the configured backend.
type Store struct {
	cfg   *config.Runtime
	store storage.ObjectStore
	log   *zap.Logger
	hook  ChangeHook
	now   func() time.Time
}

// New creates a state store. The default change hook logs at debug level.
func New(cfg *config.Runtime, store storage.ObjectStore) *Store {
	s := &Store{
		cfg:   cfg,
		store: store,
		log:   logger.With(zap.String("component", "state"), zap.String("backend", store.Name())),
		now:   time.Now,
	}
	s.hook = s.logChange
	return s
}

// OnChange replaces the change hook. Passing nil restores the default.
func (s *Store) OnChange(hook ChangeHook) {
	if hook == nil {
		hook = s.logChange
	}
	s.hook = hook
}

func (s *Store) logChange(key string, old, updated map[string]interface{}) {
	s.log.Debug("state changed",
		zap.String("key", key),
		zap.Any("old", old),
		zap.Any("new", updated))
}

// Load reads the record for a key, returning an empty map when absent.
func (s *Store) Load(ctx context.Context, key string) (map[string]interface{}, error) {
	data, err := s.store.Get(ctx, s.cfg.StateKey(key))
	if err != nil {
		if errors.IsNotFound(err) {
			return map[string]interface{}{}, nil
		}
		return nil, err
	}
	record := map[string]interface{}{}
	if err := jsonx.Unmarshal(data, &record); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decode state record")
	}
	return record, nil
}

// Save overwrites the record for a key, stamping fresh provenance. The prior
// record is re-read first so the change hook sees both states. Returns the
// backend location of the written record.
func (s *Store) Save(ctx context.Context, key string, value map[string]interface{}) (string, error) {
	old, err := s.Load(ctx, key)
	if err != nil {
		return "", err
	}

	record := make(map[string]interface{}, len(value)+1)
	for k, v := range value {
		record[k] = v
	}
	record[MetadataField] = map[string]interface{}{
		"updated_at": s.now().Format(time.RFC3339),
		"run_id":     s.cfg.RunID,
	}

	data, err := jsonx.MarshalIndent(record)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeData, "failed to encode state record")
	}

	objectKey := s.cfg.StateKey(key)
	if err := s.store.Put(ctx, objectKey, data); err != nil {
		return "", err
	}

	s.hook(key, old, record)
	return s.store.Location(objectKey), nil
}
