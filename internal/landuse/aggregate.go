package landuse

import (
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/landuse-cli/internal/crs"
)

// Aggregate concatenates normalized feature sets in the given order, keeps
// only {category, geometry}, assigns run-wide IDs "0".."n-1" and reprojects
// every point to target. Points already in target (or with SRID 0) are
// copied unchanged. The inputs are not modified.
func Aggregate(sets [][]Feature, target int) (*Set, error) {
	if !crs.Supported(target) {
		return nil, eris.Errorf("landuse: unsupported target CRS EPSG:%d", target)
	}
	total := 0
	for _, s := range sets {
		total += len(s)
	}

	transforms := make(map[int]crs.Transform)
	out := &Set{CRS: target, Rows: make([]Landuse, 0, total)}
	for _, s := range sets {
		for _, f := range s {
			pt, err := toTarget(f, target, transforms)
			if err != nil {
				return nil, err
			}
			out.Rows = append(out.Rows, Landuse{
				ID:       strconv.Itoa(len(out.Rows)),
				Category: f.Category,
				Geom:     pt,
			})
		}
	}
	return out, nil
}

func toTarget(f Feature, target int, cache map[int]crs.Transform) (*geom.Point, error) {
	if f.Geom == nil || f.Geom.Empty() {
		return nil, &GeometryError{Category: f.Category, TagKey: f.TagKey, SourceID: f.ID, Err: eris.New("missing point")}
	}
	src := f.Geom.SRID()
	if src == 0 || src == target {
		return geom.NewPointFlat(geom.XY, []float64{f.Geom.X(), f.Geom.Y()}).SetSRID(target), nil
	}
	tf, ok := cache[src]
	if !ok {
		var err error
		if tf, err = crs.New(src, target); err != nil {
			return nil, eris.Wrapf(err, "landuse: reproject %s/%s row %s", f.Category, f.TagKey, f.ID)
		}
		cache[src] = tf
	}
	pt, err := tf.Point(f.Geom)
	if err != nil {
		return nil, &GeometryError{Category: f.Category, TagKey: f.TagKey, SourceID: f.ID, Err: err}
	}
	return geom.NewPointFlat(geom.XY, []float64{pt.X(), pt.Y()}).SetSRID(target), nil
}
