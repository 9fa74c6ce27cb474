package landuse

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/landuse-cli/internal/crs"
	"github.com/sells-group/landuse-cli/internal/region"
	"github.com/sells-group/landuse-cli/internal/schema"
	"github.com/sells-group/landuse-cli/internal/sink"
)

// fakeSource serves canned features keyed by "key=values".
type fakeSource struct {
	mu      sync.Mutex
	calls   []string
	results map[string][]RawFeature
	errs    map[string]error
	delay   map[string]time.Duration
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		results: map[string][]RawFeature{},
		errs:    map[string]error{},
		delay:   map[string]time.Duration{},
	}
}

func filterKey(key string, values schema.TagValues) string { return key + "=" + values.JSON() }

func (f *fakeSource) set(key string, values schema.TagValues, feats ...RawFeature) {
	f.results[filterKey(key, values)] = feats
}

func (f *fakeSource) fail(key string, values schema.TagValues, err error) {
	f.errs[filterKey(key, values)] = err
}

func (f *fakeSource) Features(ctx context.Context, _ *geom.Polygon, key string, values schema.TagValues) ([]RawFeature, error) {
	k := filterKey(key, values)
	f.mu.Lock()
	f.calls = append(f.calls, k)
	d := f.delay[k]
	err := f.errs[k]
	res := f.results[k]
	f.mu.Unlock()

	if d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, ErrEmptyResult
	}
	return res, nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// recordingSink keeps every layer written to it.
type recordingSink struct {
	layers []*sink.Layer
	err    error
}

func (s *recordingSink) Write(_ context.Context, l *sink.Layer) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.layers = append(s.layers, l)
	return "mem://" + l.Name, nil
}

func lonLatPoint(lon, lat float64) *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{lon, lat}).SetSRID(crs.WGS84)
}

// lonLatSquare is an axis-aligned square of side d degrees centred on (lon, lat).
func lonLatSquare(lon, lat, d float64) *geom.Polygon {
	h := d / 2
	return geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
		{lon - h, lat - h}, {lon + h, lat - h}, {lon + h, lat + h}, {lon - h, lat + h}, {lon - h, lat - h},
	}}).SetSRID(crs.WGS84)
}

func node(id int64, lon, lat float64) RawFeature {
	return RawFeature{Kind: "node", ID: id, Geometry: lonLatPoint(lon, lat)}
}

func way(id int64, g geom.T) RawFeature {
	return RawFeature{Kind: "way", ID: id, Geometry: g}
}

func oxfordStreet(t *testing.T) *region.Region {
	t.Helper()
	r, err := region.FromLine("oxford_street",
		[]geom.Coord{{528680, 181151}, {528983, 181222}}, 27700,
		region.Buffers{Study: 50, Fetch: 2000})
	require.NoError(t, err)
	return r
}

func toBNG(t *testing.T) crs.Transform {
	t.Helper()
	tf, err := crs.New(crs.WGS84, 27700)
	require.NoError(t, err)
	return tf
}

func fetchArea(t *testing.T) *geom.Polygon {
	t.Helper()
	area, err := oxfordStreet(t).FetchArea()
	require.NoError(t, err)
	return area
}
