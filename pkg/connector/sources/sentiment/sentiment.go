// Package sentiment ingests University of Michigan consumer sentiment survey
// data: the headline index, its components and inflation expectations.
//
// Data source: https://www.sca.isr.umich.edu/
package sentiment

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/subsetsio/market-connectors/pkg/connector"
	"github.com/subsetsio/market-connectors/pkg/dataset"
	"github.com/subsetsio/market-connectors/pkg/errors"
	"github.com/subsetsio/market-connectors/pkg/logger"
	"github.com/subsetsio/market-connectors/pkg/table"
	"github.com/subsetsio/market-connectors/pkg/validate"
)

const (
	baseURL   = "https://www.sca.isr.umich.edu/files"
	assetID   = "sentiment_data"
	startYear = 1978
)

// files maps upstream CSV files to their keys in the cached JSON asset.
var files = []struct {
	filename string
	key      string
}{
	{"tbmics.csv", "consumer_sentiment"},
	{"tbmiccice.csv", "sentiment_components"},
	{"tbmpx1px5.csv", "inflation_expectations"},
}

var monthNumbers = map[string]int{
	"January": 1, "February": 2, "March": 3, "April": 4,
	"May": 5, "June": 6, "July": 7, "August": 8,
	"September": 9, "October": 10, "November": 11, "December": 12,
}

func init() {
	connector.Register(&Connector{})
}

// Connector implements the UMich consumer sentiment source.
type Connector struct{}

func (c *Connector) Name() string { return "sentiment" }

func (c *Connector) Description() string {
	return "UMich consumer sentiment, components and inflation expectations"
}

// Ingest fetches the three survey CSVs and caches them together as one JSON
// asset keyed by dataset.
func (c *Connector) Ingest(ctx context.Context, env *connector.Env) error {
	log := logger.With(zap.String("connector", c.Name()))
	all := make(map[string]string, len(files))
	for _, f := range files {
		log.Info("fetching survey file", zap.String("file", f.filename))
		body, err := env.Fetch.Get(ctx, baseURL+"/"+f.filename)
		if err != nil {
			return err
		}
		all[f.key] = string(body)
	}
	_, err := env.Raw.SaveJSON(ctx, assetID, all, false)
	return err
}

func (c *Connector) Transform(ctx context.Context, env *connector.Env) error {
	var all map[string]string
	if err := env.Raw.LoadJSON(ctx, assetID, &all); err != nil {
		return err
	}

	if err := c.transformConsumerSentiment(ctx, env, all["consumer_sentiment"]); err != nil {
		return err
	}
	if err := c.transformComponents(ctx, env, all["sentiment_components"]); err != nil {
		return err
	}
	return c.transformInflationExpectations(ctx, env, all["inflation_expectations"])
}

func (c *Connector) transformConsumerSentiment(ctx context.Context, env *connector.Env, csvText string) error {
	rows, err := surveyRows(csvText)
	if err != nil {
		return err
	}

	b := table.NewBuilder(table.String("month"), table.Float64("index"))
	count := 0
	for _, row := range rows {
		month := rowMonth(row)
		if month == "" {
			continue
		}
		value := connector.ParseFloat(row["ICS_ALL"])
		if value == nil {
			continue
		}
		if err := b.Append(month, value); err != nil {
			return err
		}
		count++
	}
	if count == 0 {
		return errors.New(errors.ErrorTypeData, "no consumer sentiment data found")
	}
	tbl := b.NewTable()
	defer tbl.Release()

	if err := validate.Table(tbl, validate.Rules{
		Columns: map[string]string{"month": "string", "index": "double"},
		NotNull: []string{"month", "index"},
		MinRows: 100,
	}); err != nil {
		return err
	}
	_, err = env.Engine.Upload(ctx, tbl, "umich_consumer_sentiment", dataset.UploadOptions{Mode: dataset.Overwrite})
	return err
}

func (c *Connector) transformComponents(ctx context.Context, env *connector.Env, csvText string) error {
	rows, err := surveyRows(csvText)
	if err != nil {
		return err
	}

	b := table.NewBuilder(
		table.String("month"),
		table.Float64("index_current_conditions"),
		table.Float64("index_expectations"),
	)
	count := 0
	for _, row := range rows {
		month := rowMonth(row)
		if month == "" {
			continue
		}
		icc := connector.ParseFloat(row["ICC"])
		ice := connector.ParseFloat(row["ICE"])
		if icc == nil && ice == nil {
			continue
		}
		if err := b.Append(month, icc, ice); err != nil {
			return err
		}
		count++
	}
	if count == 0 {
		return errors.New(errors.ErrorTypeData, "no sentiment components data found")
	}
	tbl := b.NewTable()
	defer tbl.Release()

	if err := validate.Table(tbl, validate.Rules{
		Columns: map[string]string{
			"month":                    "string",
			"index_current_conditions": "double",
			"index_expectations":       "double",
		},
		NotNull: []string{"month"},
		MinRows: 100,
	}); err != nil {
		return err
	}
	_, err = env.Engine.Upload(ctx, tbl, "umich_sentiment_components", dataset.UploadOptions{Mode: dataset.Overwrite})
	return err
}

func (c *Connector) transformInflationExpectations(ctx context.Context, env *connector.Env, csvText string) error {
	rows, err := surveyRows(csvText)
	if err != nil {
		return err
	}

	b := table.NewBuilder(
		table.String("month"),
		table.Float64("inflation_1yr"),
		table.Float64("inflation_5yr"),
	)
	count := 0
	for _, row := range rows {
		month := rowMonth(row)
		if month == "" {
			continue
		}
		px1 := connector.ParseFloat(row["PX_MD"])
		px5 := connector.ParseFloat(row["PX5_MD"])
		if px1 == nil && px5 == nil {
			continue
		}
		if err := b.Append(month, px1, px5); err != nil {
			return err
		}
		count++
	}
	if count == 0 {
		return errors.New(errors.ErrorTypeData, "no inflation expectations data found")
	}
	tbl := b.NewTable()
	defer tbl.Release()

	if err := validate.Table(tbl, validate.Rules{
		Columns: map[string]string{
			"month":         "string",
			"inflation_1yr": "double",
			"inflation_5yr": "double",
		},
		NotNull: []string{"month"},
		MinRows: 100,
	}); err != nil {
		return err
	}
	_, err = env.Engine.Upload(ctx, tbl, "umich_inflation_expectations", dataset.UploadOptions{Mode: dataset.Overwrite})
	return err
}

// surveyRows parses a survey CSV and drops rows before the start year.
func surveyRows(csvText string) ([]map[string]string, error) {
	rows, err := connector.CSVRows(csvText)
	if err != nil {
		return nil, err
	}
	kept := rows[:0]
	for _, row := range rows {
		year, err := strconv.Atoi(strings.TrimSpace(row["YYYY"]))
		if err != nil || year < startYear {
			continue
		}
		kept = append(kept, row)
	}
	return kept, nil
}

// rowMonth converts a survey row's month name and year to YYYY-MM.
func rowMonth(row map[string]string) string {
	month, ok := monthNumbers[strings.TrimSpace(row["Month"])]
	if !ok {
		return ""
	}
	year, err := strconv.Atoi(strings.TrimSpace(row["YYYY"]))
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%d-%02d", year, month)
}
