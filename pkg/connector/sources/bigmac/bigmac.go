// Package bigmac ingests The Economist's Big Mac Index, an informal
// purchasing power parity measure between currencies.
package bigmac

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/subsetsio/market-connectors/pkg/connector"
	"github.com/subsetsio/market-connectors/pkg/dataset"
	"github.com/subsetsio/market-connectors/pkg/errors"
	"github.com/subsetsio/market-connectors/pkg/logger"
	"github.com/subsetsio/market-connectors/pkg/rawcache"
	"github.com/subsetsio/market-connectors/pkg/table"
	"github.com/subsetsio/market-connectors/pkg/validate"
)

const (
	dataURL   = "https://raw.githubusercontent.com/TheEconomist/big-mac-data/master/output-data/big-mac-full-index.csv"
	assetID   = "big_mac_index"
	datasetID = "big_mac_index"
)

func init() {
	connector.Register(&Connector{})
}

// Connector implements the Big Mac Index source.
type Connector struct{}

func (c *Connector) Name() string { return "bigmac" }

func (c *Connector) Description() string {
	return "The Economist's Big Mac Index (purchasing power parity)"
}

func (c *Connector) Ingest(ctx context.Context, env *connector.Env) error {
	logger.With(zap.String("connector", c.Name())).Info("fetching Big Mac Index")
	body, err := env.Fetch.Get(ctx, dataURL)
	if err != nil {
		return err
	}
	_, err = env.Raw.Save(ctx, assetID, "csv", rawcache.Text(string(body)))
	return err
}

func (c *Connector) Transform(ctx context.Context, env *connector.Env) error {
	payload, err := env.Raw.Load(ctx, assetID, "csv")
	if err != nil {
		return err
	}
	rows, err := connector.CSVRows(payload.String())
	if err != nil {
		return err
	}

	b := table.NewBuilder(
		table.String("date"),
		table.String("country"),
		table.String("iso_a3"),
		table.String("currency_code"),
		table.Float64("local_price"),
		table.Float64("dollar_ex"),
		table.Float64("dollar_price"),
		table.Float64("usd_raw"),
		table.Float64("eur_raw"),
		table.Float64("gbp_raw"),
		table.Float64("jpy_raw"),
		table.Float64("cny_raw"),
		table.Float64("gdp_per_capita"),
		table.Float64("usd_adjusted"),
	)

	count := 0
	for _, row := range rows {
		date := strings.TrimSpace(row["date"])
		if date == "" {
			continue
		}
		dollarPrice := connector.ParseFloat(row["dollar_price"])
		if dollarPrice == nil {
			continue
		}
		if err := b.Append(
			date,
			strings.TrimSpace(row["name"]),
			strings.TrimSpace(row["iso_a3"]),
			strings.TrimSpace(row["currency_code"]),
			connector.ParseFloat(row["local_price"]),
			connector.ParseFloat(row["dollar_ex"]),
			dollarPrice,
			connector.ParseFloat(row["USD_raw"]),
			connector.ParseFloat(row["EUR_raw"]),
			connector.ParseFloat(row["GBP_raw"]),
			connector.ParseFloat(row["JPY_raw"]),
			connector.ParseFloat(row["CNY_raw"]),
			connector.ParseFloat(row["GDP_dollar"]),
			connector.ParseFloat(row["USD_adjusted"]),
		); err != nil {
			return err
		}
		count++
	}
	if count == 0 {
		return errors.New(errors.ErrorTypeData, "no Big Mac Index data found")
	}

	tbl := b.NewTable()
	defer tbl.Release()

	if err := validate.Table(tbl, validate.Rules{
		Columns: map[string]string{
			"date":         "string",
			"country":      "string",
			"dollar_price": "double",
		},
		NotNull: []string{"date", "country", "dollar_price"},
		MinRows: 500,
	}); err != nil {
		return err
	}

	_, err = env.Engine.Sync(ctx, tbl, datasetID, dataset.Overwrite)
	return err
}
