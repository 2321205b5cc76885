// Package cboe ingests CBOE volatility and strategy index daily price
// history.
//
// Data source: https://www.cboe.com/
package cboe

import (
	"context"
	"fmt"
	"sort"
	"time"

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
	baseURL   = "https://cdn.cboe.com/api/global/us_indices/daily_prices"
	datasetID = "cboe_volatility_indices"
)

var (
	volatilityIndices     = []string{"VIX", "VIX1D", "VIX9D", "VIX3M", "VIX6M", "VIX1Y", "VVIX", "SKEW"}
	commodityVolatility   = []string{"OVX", "GVZ"}
	singleStockVolatility = []string{"VXAPL", "VXAZN", "VXEEM"}
	buywriteIndices       = []string{"BXM", "BXMD", "BXMW", "BXY", "BXR", "BXN", "BXRC", "BXRD"}
	putwriteIndices       = []string{"PUT", "PUTR", "WPUT", "WPTR", "PPUT"}
	collarIndices         = []string{"CLL", "CLLZ", "CLLR"}
	otherStrategyIndices  = []string{"CMBO", "BFLY", "CNDR", "RXM", "LOVOL"}
	vixStrategyIndices    = []string{"VPD", "VPN", "VSTG", "VXTH"}
	sp500StrategyIndices  = []string{"SPRO", "SPEN"}
)

var indexCategories = buildCategories(map[string][]string{
	"volatility":              volatilityIndices,
	"commodity_volatility":    commodityVolatility,
	"single_stock_volatility": singleStockVolatility,
	"buywrite":                buywriteIndices,
	"putwrite":                putwriteIndices,
	"collar":                  collarIndices,
	"other_strategy":          otherStrategyIndices,
	"vix_strategy":            vixStrategyIndices,
	"sp500_strategy":          sp500StrategyIndices,
})

var allIndices = func() []string {
	names := make([]string, 0, len(indexCategories))
	for name := range indexCategories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}()

func buildCategories(groups map[string][]string) map[string]string {
	categories := make(map[string]string)
	for category, indices := range groups {
		for _, idx := range indices {
			categories[idx] = category
		}
	}
	return categories
}

func init() {
	connector.Register(&Connector{})
}

// Connector implements the CBOE indices source.
type Connector struct{}

func (c *Connector) Name() string { return "cboe" }

func (c *Connector) Description() string {
	return "CBOE volatility and strategy indices daily prices"
}

// Ingest fetches each index's daily price history CSV into the raw cache.
func (c *Connector) Ingest(ctx context.Context, env *connector.Env) error {
	log := logger.With(zap.String("connector", c.Name()))
	for i, index := range allIndices {
		log.Info("fetching index",
			zap.String("index", index),
			zap.Int("n", i+1),
			zap.Int("total", len(allIndices)))
		url := fmt.Sprintf("%s/%s_History.csv", baseURL, index)
		body, err := env.Fetch.Get(ctx, url)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeConnection, "failed to fetch "+index)
		}
		if _, err := env.Raw.Save(ctx, index, "csv", rawcache.Text(string(body))); err != nil {
			return err
		}
	}
	return nil
}

// Transform reads the cached index files, reshapes them into one long-format
// table and uploads it.
func (c *Connector) Transform(ctx context.Context, env *connector.Env) error {
	log := logger.With(zap.String("connector", c.Name()))

	type record struct {
		date     string
		index    string
		category string
		open     interface{}
		high     interface{}
		low      interface{}
		closeVal float64
	}
	var records []record

	for _, index := range allIndices {
		payload, err := env.Raw.Load(ctx, index, "csv")
		if err != nil {
			if errors.IsNotFound(err) {
				continue
			}
			return err
		}
		rows, err := connector.CSVRows(payload.String())
		if err != nil {
			return err
		}
		count := 0
		for _, row := range rows {
			date := parseDate(row["DATE"])
			if date == "" {
				continue
			}
			closeCell := row["CLOSE"]
			if closeCell == "" {
				closeCell = row[index]
			}
			closeVal := connector.ParseFloat(closeCell)
			if closeVal == nil {
				continue
			}
			records = append(records, record{
				date:     date,
				index:    index,
				category: indexCategories[index],
				open:     connector.ParseFloat(row["OPEN"]),
				high:     connector.ParseFloat(row["HIGH"]),
				low:      connector.ParseFloat(row["LOW"]),
				closeVal: closeVal.(float64),
			})
			count++
		}
		if count > 0 {
			log.Info("parsed index file", zap.String("index", index), zap.Int("records", count))
		}
	}

	if len(records) == 0 {
		return errors.New(errors.ErrorTypeData, "no CBOE index data found")
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].date != records[j].date {
			return records[i].date < records[j].date
		}
		return records[i].index < records[j].index
	})

	b := table.NewBuilder(
		table.String("date"),
		table.String("index"),
		table.String("category"),
		table.Float64("open"),
		table.Float64("high"),
		table.Float64("low"),
		table.Float64("close"),
	)
	for _, r := range records {
		if err := b.Append(r.date, r.index, r.category, r.open, r.high, r.low, r.closeVal); err != nil {
			return err
		}
	}
	tbl := b.NewTable()
	defer tbl.Release()

	if err := validate.Table(tbl, validate.Rules{
		Columns: map[string]string{
			"date":     "string",
			"index":    "string",
			"category": "string",
			"close":    "double",
		},
		NotNull: []string{"date", "index", "category", "close"},
		MinRows: 10000,
	}); err != nil {
		return err
	}

	_, err := env.Engine.Upload(ctx, tbl, datasetID, dataset.UploadOptions{
		Mode: dataset.Overwrite,
		Metadata: map[string]string{
			"id":          datasetID,
			"title":       "CBOE Volatility and Strategy Indices",
			"description": "Daily closing prices for CBOE volatility indices (VIX family) and options strategy benchmark indices.",
		},
	})
	return err
}

// parseDate normalizes MM/DD/YYYY to YYYY-MM-DD; CBOE exports ship both.
func parseDate(cell string) string {
	if cell == "" {
		return ""
	}
	if t, err := time.Parse("01/02/2006", cell); err == nil {
		return t.Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", cell); err == nil {
		return cell
	}
	return ""
}
