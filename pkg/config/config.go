// Package config provides the runtime configuration for the connectors.
//
// The configuration is read from the environment exactly once, at process
// startup, and the resulting Runtime value is passed explicitly to every
// component. Key and location resolution are pure functions of the Runtime,
// so no component inspects the environment at call time.
//
// Environment surface:
//
//	SUBSETS_CLOUD         "1"/"true" selects the remote (R2) backend
//	R2_BUCKET             bucket name (cloud mode)
//	R2_ENDPOINT           S3-compatible endpoint URL (cloud mode)
//	R2_ACCESS_KEY_ID      access key (cloud mode)
//	R2_SECRET_ACCESS_KEY  secret key (cloud mode)
//	CONNECTOR_NAME        key prefix for all remote objects (cloud mode)
//	DATA_DIR              local data root, default "./data"
//	RUN_ID                provenance run identifier, default "local-run"
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/subsetsio/market-connectors/pkg/errors"
)

// DefaultRunID is stamped into state records when RUN_ID is unset.
const DefaultRunID = "local-run"

// Runtime holds the process-wide configuration shared by the raw cache,
// state store and dataset sync engine.
type Runtime struct {
	// CloudMode selects the remote object store over the local filesystem
	CloudMode bool

	// DataDir is the local data root (local mode)
	DataDir string

	// R2 / S3-compatible settings (cloud mode)
	Bucket          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	ConnectorName   string

	// RunID identifies this process run in state provenance
	RunID string
}

// Load reads the runtime configuration from the environment.
func Load() *Runtime {
	cloud, _ := strconv.ParseBool(os.Getenv("SUBSETS_CLOUD"))

	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "./data"
	}

	runID := os.Getenv("RUN_ID")
	if runID == "" {
		runID = DefaultRunID
	}

	return &Runtime{
		CloudMode:       cloud,
		DataDir:         dataDir,
		Bucket:          os.Getenv("R2_BUCKET"),
		Endpoint:        os.Getenv("R2_ENDPOINT"),
		AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
		ConnectorName:   os.Getenv("CONNECTOR_NAME"),
		RunID:           runID,
	}
}

// Validate checks that cloud mode has the credentials it needs.
func (r *Runtime) Validate() error {
	if !r.CloudMode {
		return nil
	}
	missing := []string{}
	if r.Bucket == "" {
		missing = append(missing, "R2_BUCKET")
	}
	if r.Endpoint == "" {
		missing = append(missing, "R2_ENDPOINT")
	}
	if r.AccessKeyID == "" {
		missing = append(missing, "R2_ACCESS_KEY_ID")
	}
	if r.SecretAccessKey == "" {
		missing = append(missing, "R2_SECRET_ACCESS_KEY")
	}
	if r.ConnectorName == "" {
		missing = append(missing, "CONNECTOR_NAME")
	}
	if len(missing) > 0 {
		return errors.New(errors.ErrorTypeConfig, "cloud mode requires credentials").
			WithDetail("missing", missing)
	}
	return nil
}

// RawKey resolves the object key for a raw asset.
func (r *Runtime) RawKey(id, ext string) string {
	if r.CloudMode {
		return r.ConnectorName + "/data/raw/" + id + "." + ext
	}
	return filepath.ToSlash(filepath.Join("raw", id+"."+ext))
}

// RawPrefix resolves the key prefix under which all raw assets live.
func (r *Runtime) RawPrefix() string {
	if r.CloudMode {
		return r.ConnectorName + "/data/raw/"
	}
	return "raw/"
}

// StateKey resolves the object key for a state record.
func (r *Runtime) StateKey(asset string) string {
	if r.CloudMode {
		return r.ConnectorName + "/data/state/" + asset + ".json"
	}
	return filepath.ToSlash(filepath.Join("state", asset+".json"))
}

// DatasetLocation resolves the versioned table location for a dataset name.
func (r *Runtime) DatasetLocation(name string) string {
	if r.CloudMode {
		return r.ConnectorName + "/data/subsets/" + name
	}
	return filepath.ToSlash(filepath.Join("subsets", name))
}

// BackendName names the active backend for provenance logging.
func (r *Runtime) BackendName() string {
	if r.CloudMode {
		return "r2"
	}
	return "local"
}
