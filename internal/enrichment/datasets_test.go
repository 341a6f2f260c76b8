package enrichment

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"stormwatch/internal/config"
	"stormwatch/internal/types"
)

const countiesJSON = `{
	"type": "FeatureCollection",
	"features": [
		{
			"type": "Feature",
			"geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,1],[0,0]]]},
			"properties": {"NAME": "Testshire"}
		}
	]
}`

type fakeHTTP struct {
	responses map[string][]byte
	status    int
	calls     int
	err       error
}

func (f *fakeHTTP) Do(req *http.Request) (*http.Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	status := f.status
	if status == 0 {
		status = http.StatusOK
	}
	body := f.responses[req.URL.String()]
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader(body)),
	}, nil
}

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func geodataConfig() config.GeodataConfig {
	return config.GeodataConfig{
		CountiesURL:   "https://data.example.org/counties.geojson.gz",
		WatershedsURL: "https://data.example.org/huc12.geojson",
		DACURL:        "https://data.example.org/dac.geojson",
		MS4URL:        "https://data.example.org/ms4.geojson",
		FetchTimeout:  time.Minute,
	}
}

func TestDatasetClientParsesPlainJSON(t *testing.T) {
	client := &fakeHTTP{responses: map[string][]byte{
		"https://data.example.org/huc12.geojson": []byte(countiesJSON),
	}}
	dc := NewDatasetClient(geodataConfig(), client, nil)

	fc, err := dc.Dataset(context.Background(), DatasetWatersheds)
	if err != nil {
		t.Fatalf("Dataset error: %v", err)
	}
	if len(fc.Features) != 1 {
		t.Fatalf("features = %d, want 1", len(fc.Features))
	}
	if got := fc.Features[0].PropString("NAME"); got != "Testshire" {
		t.Errorf("NAME = %q", got)
	}
}

func TestDatasetClientDecompressesGzip(t *testing.T) {
	client := &fakeHTTP{responses: map[string][]byte{
		"https://data.example.org/counties.geojson.gz": gzipBytes(t, []byte(countiesJSON)),
	}}
	dc := NewDatasetClient(geodataConfig(), client, nil)

	fc, err := dc.Dataset(context.Background(), DatasetCounties)
	if err != nil {
		t.Fatalf("Dataset error: %v", err)
	}
	if len(fc.Features) != 1 {
		t.Fatalf("gzip payload should parse, features = %d", len(fc.Features))
	}
}

func TestDatasetClientCachesCollections(t *testing.T) {
	client := &fakeHTTP{responses: map[string][]byte{
		"https://data.example.org/huc12.geojson": []byte(countiesJSON),
	}}
	dc := NewDatasetClient(geodataConfig(), client, nil)

	for i := 0; i < 3; i++ {
		if _, err := dc.Dataset(context.Background(), DatasetWatersheds); err != nil {
			t.Fatalf("Dataset error: %v", err)
		}
	}
	if client.calls != 1 {
		t.Errorf("HTTP calls = %d, want 1 (cached after first fetch)", client.calls)
	}
}

func TestDatasetClientWrapsUpstreamFailure(t *testing.T) {
	client := &fakeHTTP{err: errors.New("connection refused")}
	dc := NewDatasetClient(geodataConfig(), client, nil)

	_, err := dc.Dataset(context.Background(), DatasetCounties)
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeUpstreamGeodata {
		t.Fatalf("err = %v, want %s", err, types.ErrCodeUpstreamGeodata)
	}
}

func TestDatasetClientRejectsBadStatus(t *testing.T) {
	client := &fakeHTTP{
		status: http.StatusForbidden,
		responses: map[string][]byte{
			"https://data.example.org/counties.geojson.gz": []byte(countiesJSON),
		},
	}
	dc := NewDatasetClient(geodataConfig(), client, nil)

	if _, err := dc.Dataset(context.Background(), DatasetCounties); err == nil {
		t.Fatal("non-200 status should fail the fetch")
	}
}
