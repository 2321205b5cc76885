// Package storage abstracts raw object I/O over the two supported backends:
// the local filesystem and an S3-compatible remote store (Cloudflare R2).
//
// Keys are slash-separated relative paths. The backend is selected once per
// process from the runtime configuration and injected into every component
// that performs storage I/O.
package storage

import (
	"context"

	"github.com/subsetsio/market-connectors/pkg/config"
	"github.com/subsetsio/market-connectors/pkg/errors"
)

// ObjectStore abstracts raw object I/O across storage backends.
type ObjectStore interface {
	// Put writes data to the given key, creating parent prefixes as needed
	// and overwriting unconditionally.
	Put(ctx context.Context, key string, data []byte) error

	// Get retrieves data for the given key. Returns a not_found error when
	// the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Exists checks whether an object exists at the given key.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns all keys under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the object at the given key. Missing keys are not an
	// error.
	Delete(ctx context.Context, key string) error

	// Location resolves the externally visible location string for a key.
	Location(key string) string

	// Name identifies the backend ("local" or "r2") for provenance logging.
	Name() string
}

// New constructs the object store selected by the runtime configuration.
func New(ctx context.Context, cfg *config.Runtime) (ObjectStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.CloudMode {
		return newS3Store(ctx, cfg)
	}
	return newLocalStore(cfg), nil
}

func notFound(key string) error {
	return errors.Newf(errors.ErrorTypeNotFound, "object %q not found", key)
}
