// Package connector defines the contract each data source implements and the
// registry the CLI runs them from.
package connector

import (
	"context"

	"github.com/subsetsio/market-connectors/pkg/config"
	"github.com/subsetsio/market-connectors/pkg/dataset"
	"github.com/subsetsio/market-connectors/pkg/fetch"
	"github.com/subsetsio/market-connectors/pkg/rawcache"
)

// Env bundles the shared infrastructure a connector runs against. It is
// constructed once per process and passed to every phase.
type Env struct {
	Cfg    *config.Runtime
	Raw    *rawcache.Cache
	Engine *dataset.Engine
	Fetch  *fetch.Client
}

// Connector is one data source. Ingest fetches upstream files into the raw
// cache; Transform reads them back, reshapes them into tables and persists
// the datasets. Each phase must be runnable on its own.
type Connector interface {
	Name() string
	Description() string
	Ingest(ctx context.Context, env *Env) error
	Transform(ctx context.Context, env *Env) error
}
