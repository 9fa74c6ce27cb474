package landuse

import (
	"math"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"

	"github.com/sells-group/landuse-cli/internal/crs"
	"github.com/sells-group/landuse-cli/internal/schema"
)

// Normalize reduces every raw feature to its centroid in the working CRS and
// tags it with the category and filter. Features without a usable centroid
// are skipped and returned as GeometryErrors. IDs restart at "0".
func Normalize(raw []RawFeature, category, tagKey string, values schema.TagValues, tf crs.Transform) ([]Feature, []*GeometryError) {
	log := zap.L().With(
		zap.String("component", "landuse.normalize"),
		zap.String("category", category),
		zap.String("tag_key", tagKey),
	)
	tagValues := values.JSON()

	out := make([]Feature, 0, len(raw))
	var dropped []*GeometryError
	for _, f := range raw {
		pt, err := Centroid(f.Geometry, tf)
		if err != nil {
			gerr := &GeometryError{Category: category, TagKey: tagKey, SourceID: f.SourceID(), Err: err}
			log.Warn("skipping feature", zap.String("source_id", f.SourceID()), zap.Error(err))
			dropped = append(dropped, gerr)
			continue
		}
		out = append(out, Feature{
			ID:        strconv.Itoa(len(out)),
			Category:  category,
			TagKey:    tagKey,
			TagValues: tagValues,
			Geom:      pt,
		})
	}
	return out, dropped
}

// Centroid reprojects g through tf and returns its planar centroid, tagged
// with the target SRID. The input geometry is not modified.
func Centroid(g geom.T, tf crs.Transform) (*geom.Point, error) {
	if g == nil {
		return nil, eris.New("landuse: nil geometry")
	}
	if g.Empty() {
		return nil, eris.Errorf("landuse: empty %T", g)
	}
	projected, err := tf.Geometry(g)
	if err != nil {
		return nil, eris.Wrap(err, "landuse: reproject")
	}
	c, err := xy.Centroid(projected)
	if err != nil {
		return nil, eris.Wrap(err, "landuse: centroid")
	}
	if len(c) < 2 || !finite(c[0]) || !finite(c[1]) {
		return nil, eris.Errorf("landuse: degenerate centroid %v", c)
	}
	return geom.NewPointFlat(geom.XY, []float64{c[0], c[1]}).SetSRID(tf.To()), nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
