// Package shiller ingests Shiller long-term S&P 500 data: prices, earnings,
// CPI and the CAPE ratio.
//
// Data source: https://datahub.io/core/s-and-p-500
package shiller

import (
	"context"
	"sort"

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
	dataURL   = "https://datahub.io/core/s-and-p-500/r/data.csv"
	assetID   = "shiller_data"
	datasetID = "sp500_shiller"
)

// columnMap renames the upstream headers to dataset column names.
var columnMap = map[string]string{
	"Date":                 "date",
	"SP500":                "sp500",
	"Dividend":             "dividend",
	"Earnings":             "earnings",
	"Consumer Price Index": "cpi",
	"Long Interest Rate":   "long_interest_rate",
	"Real Price":           "real_price",
	"Real Dividend":        "real_dividend",
	"Real Earnings":        "real_earnings",
	"PE10":                 "cape",
}

var floatColumns = []string{
	"sp500", "dividend", "earnings", "cpi", "long_interest_rate",
	"real_price", "real_dividend", "real_earnings", "cape",
}

func init() {
	connector.Register(&Connector{})
}

// Connector implements the Shiller S&P 500 source.
type Connector struct{}

func (c *Connector) Name() string { return "shiller" }

func (c *Connector) Description() string {
	return "Shiller S&P 500 long-term data: price, earnings, CPI, CAPE"
}

func (c *Connector) Ingest(ctx context.Context, env *connector.Env) error {
	logger.With(zap.String("connector", c.Name())).Info("fetching Shiller S&P 500 data")
	body, err := env.Fetch.Get(ctx, dataURL)
	if err != nil {
		return err
	}
	_, err = env.Raw.Save(ctx, assetID, "csv", rawcache.Text(string(body)))
	return err
}

func (c *Connector) Transform(ctx context.Context, env *connector.Env) error {
	log := logger.With(zap.String("connector", c.Name()))

	payload, err := env.Raw.Load(ctx, assetID, "csv")
	if err != nil {
		return err
	}
	rows, err := connector.CSVRows(payload.String())
	if err != nil {
		return err
	}

	// Last occurrence of a date wins; the upstream export occasionally
	// repeats the most recent month.
	byDate := make(map[string]map[string]interface{})
	for _, row := range rows {
		parsed := make(map[string]interface{})
		date := ""
		for col, val := range row {
			mapped, ok := columnMap[col]
			if !ok {
				continue
			}
			if mapped == "date" {
				date = val
				continue
			}
			parsed[mapped] = connector.ParseFloat(val)
		}
		if date == "" {
			continue
		}
		byDate[date] = parsed
	}
	if len(byDate) == 0 {
		return errors.New(errors.ErrorTypeData, "no Shiller data found")
	}

	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	log.Info("transformed Shiller data",
		zap.Int("rows", len(dates)),
		zap.String("from", dates[0]),
		zap.String("to", dates[len(dates)-1]))

	fields := []table.Field{table.String("date")}
	for _, col := range floatColumns {
		fields = append(fields, table.Float64(col))
	}
	b := table.NewBuilder(fields...)
	for _, date := range dates {
		values := []interface{}{date}
		for _, col := range floatColumns {
			values = append(values, byDate[date][col])
		}
		if err := b.Append(values...); err != nil {
			return err
		}
	}
	tbl := b.NewTable()
	defer tbl.Release()

	if err := validate.Table(tbl, validate.Rules{
		Columns: map[string]string{
			"date":  "string",
			"sp500": "double",
			"cpi":   "double",
			"cape":  "double",
		},
		NotNull: []string{"date"},
		Unique:  []string{"date"},
		MinRows: 1000,
	}); err != nil {
		return err
	}

	// Full history is re-fetched every run; the digest gate skips the write
	// when upstream has not published a new month.
	_, err = env.Engine.Sync(ctx, tbl, datasetID, dataset.Overwrite)
	return err
}
