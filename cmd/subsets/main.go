// Command subsets runs the market indicator connectors: fetch upstream
// exports into the raw cache, then transform and sync them into versioned
// datasets.
package main

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/subsetsio/market-connectors/pkg/config"
	"github.com/subsetsio/market-connectors/pkg/connector"
	"github.com/subsetsio/market-connectors/pkg/dataset"
	"github.com/subsetsio/market-connectors/pkg/delta"
	"github.com/subsetsio/market-connectors/pkg/fetch"
	"github.com/subsetsio/market-connectors/pkg/logger"
	"github.com/subsetsio/market-connectors/pkg/rawcache"
	"github.com/subsetsio/market-connectors/pkg/state"
	"github.com/subsetsio/market-connectors/pkg/storage"

	// Import all connectors to register them
	_ "github.com/subsetsio/market-connectors/pkg/connector/sources/bigmac"
	_ "github.com/subsetsio/market-connectors/pkg/connector/sources/cboe"
	_ "github.com/subsetsio/market-connectors/pkg/connector/sources/rigcounts"
	_ "github.com/subsetsio/market-connectors/pkg/connector/sources/sentiment"
	_ "github.com/subsetsio/market-connectors/pkg/connector/sources/shiller"
)

var version = "0.1.0"

func main() {
	// Load .env if present
	_ = godotenv.Load()

	var (
		logLevel      string
		ingestOnly    bool
		transformOnly bool
	)

	root := &cobra.Command{
		Use:   "subsets",
		Short: "Market and economic indicator data connectors",
		Long: `Subsets aggregates market and economic indicator data from multiple
sources (Shiller S&P 500, CBOE volatility indices, Baker Hughes rig counts,
UMich consumer sentiment, the Big Mac Index) into versioned datasets.`,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("subsets v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List available connectors",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range connector.List() {
				c, err := connector.Get(name)
				if err != nil {
					continue
				}
				fmt.Printf("  %-12s %s\n", name, c.Description())
			}
		},
	})

	runCmd := &cobra.Command{
		Use:   "run [connector...]",
		Short: "Run connectors (all by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := logger.Init(logger.Config{Level: logLevel, Encoding: "console"}); err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			if ingestOnly && transformOnly {
				return fmt.Errorf("--ingest-only and --transform-only are mutually exclusive")
			}
			return run(cmd.Context(), args, !transformOnly, !ingestOnly)
		},
	}
	runCmd.Flags().BoolVar(&ingestOnly, "ingest-only", false, "only fetch data from upstream sources")
	runCmd.Flags().BoolVar(&transformOnly, "transform-only", false, "only transform existing raw data")
	root.AddCommand(runCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run executes the requested connectors sequentially, ingest phase first,
// then transform.
func run(ctx context.Context, names []string, ingest, transform bool) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	store, err := storage.New(ctx, cfg)
	if err != nil {
		return err
	}

	env := &connector.Env{
		Cfg:    cfg,
		Raw:    rawcache.New(cfg, store),
		Engine: dataset.NewEngine(cfg, delta.NewStore(store), state.New(cfg, store), store),
		Fetch:  fetch.NewClient(fetch.DefaultConfig()),
	}

	if len(names) == 0 {
		names = connector.List()
	}
	connectors := make([]connector.Connector, 0, len(names))
	for _, name := range names {
		c, err := connector.Get(name)
		if err != nil {
			return err
		}
		connectors = append(connectors, c)
	}

	log := logger.With(zap.String("run_id", cfg.RunID), zap.String("backend", store.Name()))

	if ingest {
		log.Info("starting ingest phase")
		for _, c := range connectors {
			log.Info("ingesting", zap.String("connector", c.Name()))
			if err := c.Ingest(ctx, env); err != nil {
				return fmt.Errorf("ingest %s: %w", c.Name(), err)
			}
		}
	}

	if transform {
		log.Info("starting transform phase")
		for _, c := range connectors {
			log.Info("transforming", zap.String("connector", c.Name()))
			if err := c.Transform(ctx, env); err != nil {
				return fmt.Errorf("transform %s: %w", c.Name(), err)
			}
		}
	}

	log.Info("run complete")
	return nil
}
