// Package rigcounts ingests Baker Hughes rig count workbooks and transforms
// the current North America report and the rigs-by-state report into the
// weekly rig count dataset. The remaining workbooks are archived verbatim
// for downstream use.
//
// Data source: https://rigcount.bakerhughes.com/
package rigcounts

import (
	"bytes"
	"context"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/subsetsio/market-connectors/pkg/connector"
	"github.com/subsetsio/market-connectors/pkg/dataset"
	"github.com/subsetsio/market-connectors/pkg/errors"
	"github.com/subsetsio/market-connectors/pkg/logger"
	"github.com/subsetsio/market-connectors/pkg/rawcache"
	"github.com/subsetsio/market-connectors/pkg/table"
	"github.com/subsetsio/market-connectors/pkg/validate"
)

const datasetID = "baker_hughes_rig_count_weekly"

// files maps asset ids to Baker Hughes static file URLs. The UUIDs change
// when Baker Hughes republishes; failures here usually mean the list needs
// refreshing.
var files = map[string]string{
	"rigs_na_current":        "https://rigcount.bakerhughes.com/static-files/73462640-906f-4bd5-b691-6a1ffe5c59ed",
	"rigs_na_2013_present":   "https://rigcount.bakerhughes.com/static-files/e98bcf83-c458-4a88-8f35-4ac4d77628bb",
	"rigs_na_2000_2024":      "https://rigcount.bakerhughes.com/static-files/48162dfc-eb21-4612-8b01-72743e3ed420",
	"rigs_by_state":          "https://rigcount.bakerhughes.com/static-files/e6884ae5-cee8-46a4-8c95-e03091b0aad7",
	"rigs_worldwide_current": "https://rigcount.bakerhughes.com/static-files/e2f9fb51-c82b-4fe0-9f59-68b8b36d6863",
	"rigs_worldwide_2013":    "https://rigcount.bakerhughes.com/static-files/ee2f783a-97f4-4ca1-be03-e685d301fc28",
}

func init() {
	connector.Register(&Connector{})
}

// Connector implements the Baker Hughes rig count source.
type Connector struct{}

func (c *Connector) Name() string { return "rigcounts" }

func (c *Connector) Description() string {
	return "Baker Hughes oil and gas weekly rig counts"
}

func (c *Connector) Ingest(ctx context.Context, env *connector.Env) error {
	log := logger.With(zap.String("connector", c.Name()))
	for id, url := range files {
		log.Info("fetching workbook", zap.String("asset", id))
		body, err := env.Fetch.Get(ctx, url)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeConnection, "failed to fetch "+id)
		}
		if _, err := env.Raw.Save(ctx, id, "xlsx", rawcache.Binary(body)); err != nil {
			return err
		}
		log.Info("archived workbook", zap.String("asset", id), zap.Int("bytes", len(body)))
	}
	return nil
}

// Transform parses the current NA report and the rigs-by-state workbook into
// one long-format weekly table and uploads it.
func (c *Connector) Transform(ctx context.Context, env *connector.Env) error {
	log := logger.With(zap.String("connector", c.Name()))

	sources := []struct {
		id    string
		parse func(*excelize.File) []rigRecord
	}{
		{"rigs_na_current", parseNACurrent},
		{"rigs_by_state", parseRigsByState},
	}

	var records []rigRecord
	for _, src := range sources {
		payload, err := env.Raw.Load(ctx, src.id, "xlsx")
		if err != nil {
			if errors.IsNotFound(err) {
				continue
			}
			return err
		}
		f, err := excelize.OpenReader(bytes.NewReader(payload.Bytes()))
		if err != nil {
			log.Warn("skipping unreadable workbook",
				zap.String("asset", src.id), zap.Error(err))
			continue
		}
		parsed := src.parse(f)
		f.Close()
		log.Info("parsed workbook",
			zap.String("asset", src.id),
			zap.Int("records", len(parsed)))
		records = append(records, parsed...)
	}
	if len(records) == 0 {
		return errors.New(errors.ErrorTypeData, "no rig count records parsed")
	}

	records = dedupe(records)

	b := table.NewBuilder(
		table.String("date"),
		table.String("region"),
		table.String("rig_type"),
		table.Int64("count"),
	)
	regions := make(map[string]bool)
	for _, r := range records {
		if err := b.Append(r.date, r.region, r.rigType, r.count); err != nil {
			return err
		}
		regions[r.region] = true
	}
	tbl := b.NewTable()
	defer tbl.Release()

	if err := validate.Table(tbl, validate.Rules{
		Columns: map[string]string{
			"date":     "string",
			"region":   "string",
			"rig_type": "string",
			"count":    "int64",
		},
		NotNull: []string{"date", "region", "rig_type", "count"},
		MinRows: 1000,
	}); err != nil {
		return err
	}
	if len(regions) < 5 {
		return errors.Newf(errors.ErrorTypeData,
			"expected multiple regions, got %d", len(regions))
	}

	_, err := env.Engine.Upload(ctx, tbl, datasetID, dataset.UploadOptions{
		Mode: dataset.Append,
		Metadata: map[string]string{
			"id":    datasetID,
			"title": "Baker Hughes Weekly Rig Count",
		},
	})
	return err
}

// dedupe keeps the first record per (date, region, rig_type).
func dedupe(records []rigRecord) []rigRecord {
	type key struct {
		date, region, rigType string
	}
	seen := make(map[key]bool, len(records))
	kept := records[:0]
	for _, r := range records {
		k := key{r.date, r.region, r.rigType}
		if seen[k] {
			continue
		}
		seen[k] = true
		kept = append(kept, r)
	}
	return kept
}
