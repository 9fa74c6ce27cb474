package sink

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/landuse-cli/internal/crs"
)

// GeoJSON writes each layer to {Dir}/{layer}.geojson. Coordinates are
// reprojected to EPSG:4326 unless KeepCRS is set.
type GeoJSON struct {
	Dir     string
	KeepCRS bool
}

// NewGeoJSON creates a GeoJSON sink rooted at dir.
func NewGeoJSON(dir string) *GeoJSON {
	return &GeoJSON{Dir: dir}
}

// Path returns the file a layer is written to.
func (s *GeoJSON) Path(layer string) string {
	return filepath.Join(s.Dir, layer+".geojson")
}

// Write implements Sink.
func (s *GeoJSON) Write(_ context.Context, l *Layer) (string, error) {
	if err := l.Validate(); err != nil {
		return "", err
	}
	fc, err := s.collection(l)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(fc)
	if err != nil {
		return "", eris.Wrapf(err, "geojson: marshal %s", l.Name)
	}

	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "geojson: create dir %s", s.Dir)
	}
	path := s.Path(l.Name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", eris.Wrapf(err, "geojson: write %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", eris.Wrapf(err, "geojson: replace %s", path)
	}

	zap.L().Info("layer written",
		zap.String("component", "sink.geojson"),
		zap.String("layer", l.Name),
		zap.String("path", path),
		zap.Int("features", len(l.Features)),
	)
	return path, nil
}

func (s *GeoJSON) collection(l *Layer) (*geojson.FeatureCollection, error) {
	var tf *crs.Transform
	if !s.KeepCRS && l.CRS != crs.WGS84 {
		t, err := crs.New(l.CRS, crs.WGS84)
		if err != nil {
			return nil, eris.Wrapf(err, "geojson: layer %s", l.Name)
		}
		tf = &t
	}

	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, len(l.Features))}
	for i, f := range l.Features {
		g := f.Geom
		if tf != nil {
			var err error
			if g, err = tf.Geometry(g); err != nil {
				return nil, eris.Wrapf(err, "geojson: layer %s feature %d", l.Name, i)
			}
		}
		props := make(map[string]any, len(l.Columns))
		for j, c := range l.Columns {
			props[c.Name] = f.Values[j]
		}
		fc.Features[i] = &geojson.Feature{Geometry: g, Properties: props}
		if id, ok := props["id"].(string); ok {
			fc.Features[i].ID = id
		}
	}
	return fc, nil
}
