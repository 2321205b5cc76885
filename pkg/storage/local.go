package storage

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/subsetsio/market-connectors/pkg/config"
	"github.com/subsetsio/market-connectors/pkg/errors"
)

// localStore stores objects as files under the configured data directory.
type localStore struct {
	root string
}

func newLocalStore(cfg *config.Runtime) *localStore {
	return &localStore{root: cfg.DataDir}
}

func (s *localStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

func (s *localStore) Put(_ context.Context, key string, data []byte) error {
	path := s.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to create directory")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to write object")
	}
	return nil
}

func (s *localStore) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, notFound(key)
		}
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to read object")
	}
	return data, nil
}

func (s *localStore) Exists(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrap(err, errors.ErrorTypeConnection, "failed to stat object")
	}
	return true, nil
}

func (s *localStore) List(_ context.Context, prefix string) ([]string, error) {
	dir := s.path(prefix)
	var keys []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to list objects")
	}
	return keys, nil
}

func (s *localStore) Delete(_ context.Context, key string) error {
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to delete object")
	}
	return nil
}

func (s *localStore) Location(key string) string {
	return s.path(key)
}

func (s *localStore) Name() string {
	return "local"
}
