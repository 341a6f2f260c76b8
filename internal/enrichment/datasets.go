// Package enrichment resolves facility coordinates against reference
// GeoJSON datasets (counties, HUC12 watersheds, disadvantaged-community
// tracts, MS4 permit areas) and writes the jurisdiction attributes the
// matcher and benchmark selection depend on.
package enrichment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/sony/gobreaker/v2"

	"stormwatch/internal/config"
	"stormwatch/internal/types"
)

// DatasetKind names one reference dataset.
type DatasetKind string

const (
	DatasetCounties   DatasetKind = "counties"
	DatasetWatersheds DatasetKind = "watersheds"
	DatasetDAC        DatasetKind = "dac"
	DatasetMS4        DatasetKind = "ms4"
)

// httpDoer is the subset of *http.Client the fetcher needs.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DatasetClient fetches and caches the reference GeoJSON datasets. All
// fetches go through a shared circuit breaker so a dead geodata host
// fails fast instead of stalling every enrichment run. Payloads may be
// gzip-compressed; the fetcher sniffs the gzip magic bytes rather than
// trusting headers.
type DatasetClient struct {
	cfg     config.GeodataConfig
	client  httpDoer
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  *slog.Logger

	mu    sync.Mutex
	cache map[DatasetKind]*types.FeatureCollection
}

// NewDatasetClient creates a DatasetClient. httpClient may be nil, in
// which case a client with the configured fetch timeout is used.
func NewDatasetClient(cfg config.GeodataConfig, httpClient httpDoer, logger *slog.Logger) *DatasetClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.FetchTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "geodata",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})
	return &DatasetClient{
		cfg:     cfg,
		client:  httpClient,
		breaker: breaker,
		logger:  logger,
		cache:   make(map[DatasetKind]*types.FeatureCollection),
	}
}

// Dataset returns the parsed feature collection for kind, fetching it on
// first use and serving the in-memory copy afterwards.
func (c *DatasetClient) Dataset(ctx context.Context, kind DatasetKind) (*types.FeatureCollection, error) {
	c.mu.Lock()
	if fc, ok := c.cache[kind]; ok {
		c.mu.Unlock()
		return fc, nil
	}
	c.mu.Unlock()

	url, err := c.urlFor(kind)
	if err != nil {
		return nil, err
	}

	raw, err := c.breaker.Execute(func() ([]byte, error) {
		return c.fetch(ctx, url)
	})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamGeodata,
			fmt.Sprintf("failed to fetch %s dataset", kind), err)
	}

	var fc types.FeatureCollection
	if err := json.Unmarshal(raw, &fc); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamGeodata,
			fmt.Sprintf("failed to parse %s dataset", kind), err)
	}

	c.logger.Info("geodata dataset loaded",
		"dataset", string(kind),
		"features", len(fc.Features),
	)

	c.mu.Lock()
	c.cache[kind] = &fc
	c.mu.Unlock()
	return &fc, nil
}

func (c *DatasetClient) urlFor(kind DatasetKind) (string, error) {
	switch kind {
	case DatasetCounties:
		return c.cfg.CountiesURL, nil
	case DatasetWatersheds:
		return c.cfg.WatershedsURL, nil
	case DatasetDAC:
		return c.cfg.DACURL, nil
	case DatasetMS4:
		return c.cfg.MS4URL, nil
	}
	return "", types.NewAppError(types.ErrCodeInternalUnexpected,
		fmt.Sprintf("unknown dataset kind %q", kind), nil)
}

// gzipMagic is the two-byte gzip stream header.
var gzipMagic = []byte{0x1f, 0x8b}

func (c *DatasetClient) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geodata fetch returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if bytes.HasPrefix(raw, gzipMagic) {
		gz, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("geodata gzip stream invalid: %w", err)
		}
		defer gz.Close()
		return io.ReadAll(gz)
	}
	return raw, nil
}
