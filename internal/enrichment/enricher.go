package enrichment

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"stormwatch/internal/geo"
	"stormwatch/internal/types"
)

// FacilityStore is the facility persistence surface the enricher needs.
// Implemented by db.FacilityRepo.
type FacilityStore interface {
	ListUnenriched(ctx context.Context, limit int) ([]types.Facility, error)
	UpdateEnrichment(ctx context.Context, f *types.Facility) error
}

// DatasetSource serves parsed reference datasets. Implemented by
// DatasetClient.
type DatasetSource interface {
	Dataset(ctx context.Context, kind DatasetKind) (*types.FeatureCollection, error)
}

// dacThreshold is the CalEnviroScreen percentile at or above which a
// census tract counts as a disadvantaged community.
const dacThreshold = 75.0

// Result summarizes one enrichment run.
type Result struct {
	Processed int
	Enriched  int
	Skipped   int
	Errors    int
}

// Enricher stamps unenriched facilities with county, watershed, MS4, and
// DAC attributes derived from point-in-polygon lookups. Facilities with
// placeholder coordinates are left for a later run.
type Enricher struct {
	facilities  FacilityStore
	datasets    DatasetSource
	concurrency int
	logger      *slog.Logger
}

// NewEnricher creates an Enricher. concurrency bounds parallel facility
// processing; values below 1 run sequentially.
func NewEnricher(facilities FacilityStore, datasets DatasetSource, concurrency int, logger *slog.Logger) *Enricher {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{
		facilities:  facilities,
		datasets:    datasets,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Run enriches up to limit facilities. Per-facility failures are counted
// and logged without stopping the rest of the batch; only dataset loading
// failures abort the run.
func (e *Enricher) Run(ctx context.Context, limit int) (*Result, error) {
	res := &Result{}

	// Load all datasets up front so every worker shares the parsed
	// collections.
	for _, kind := range []DatasetKind{DatasetCounties, DatasetWatersheds, DatasetDAC, DatasetMS4} {
		if _, err := e.datasets.Dataset(ctx, kind); err != nil {
			return res, err
		}
	}

	facilities, err := e.facilities.ListUnenriched(ctx, limit)
	if err != nil {
		return res, err
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for i := range facilities {
		f := facilities[i]
		g.Go(func() error {
			outcome := e.enrichOne(gctx, &f)
			mu.Lock()
			res.Processed++
			switch outcome {
			case outcomeEnriched:
				res.Enriched++
			case outcomeSkipped:
				res.Skipped++
			case outcomeError:
				res.Errors++
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	e.logger.Info("enrichment run finished",
		slog.Int("processed", res.Processed),
		slog.Int("enriched", res.Enriched),
		slog.Int("skipped", res.Skipped),
		slog.Int("errors", res.Errors),
	)
	return res, nil
}

type enrichOutcome int

const (
	outcomeEnriched enrichOutcome = iota
	outcomeSkipped
	outcomeError
)

func (e *Enricher) enrichOne(ctx context.Context, f *types.Facility) enrichOutcome {
	// Lazily created facilities carry (0, 0) until real coordinates
	// arrive from the monitoring source.
	if f.Location.Lat == 0 && f.Location.Lon == 0 {
		return outcomeSkipped
	}

	counties, err := e.datasets.Dataset(ctx, DatasetCounties)
	if err != nil {
		return outcomeError
	}
	if feat := containingFeature(counties, f.Location); feat != nil {
		f.County = feat.PropString("NAME", "name", "COUNTY_NAME")
	}

	watersheds, err := e.datasets.Dataset(ctx, DatasetWatersheds)
	if err != nil {
		return outcomeError
	}
	if feat := containingFeature(watersheds, f.Location); feat != nil {
		f.WatershedHUC12 = feat.PropString("HUC12", "huc12")
	}

	ms4s, err := e.datasets.Dataset(ctx, DatasetMS4)
	if err != nil {
		return outcomeError
	}
	if feat := containingFeature(ms4s, f.Location); feat != nil {
		f.MS4 = feat.PropString("MS4_NAME", "PERMITTEE", "name")
	}

	dac, err := e.datasets.Dataset(ctx, DatasetDAC)
	if err != nil {
		return outcomeError
	}
	if feat := containingFeature(dac, f.Location); feat != nil {
		if score, ok := feat.PropFloat("CIscoreP", "score_percentile", "DACSCORE"); ok {
			f.IsInDAC = score >= dacThreshold
		}
	}

	if err := e.facilities.UpdateEnrichment(ctx, f); err != nil {
		e.logger.Warn("failed to store facility enrichment",
			"facility_id", f.ID,
			"error", err.Error(),
		)
		return outcomeError
	}
	return outcomeEnriched
}

// containingFeature returns the first feature whose geometry contains the
// point, or nil. Features with missing or malformed geometry never match.
func containingFeature(fc *types.FeatureCollection, p types.Point) *types.Feature {
	for i := range fc.Features {
		feat := &fc.Features[i]
		if geo.PointInPolygon(p, feat.Geometry) {
			return feat
		}
	}
	return nil
}
