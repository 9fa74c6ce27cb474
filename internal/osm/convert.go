package osm

import (
	"sort"

	"github.com/rotisserie/eris"
	"github.com/serjvanilla/go-overpass"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/landuse-cli/internal/crs"
	"github.com/sells-group/landuse-cli/internal/landuse"
	"github.com/sells-group/landuse-cli/internal/network"
	"github.com/sells-group/landuse-cli/internal/region"
	"github.com/sells-group/landuse-cli/internal/schema"
)

var kindOrder = map[string]int{"node": 0, "way": 1, "relation": 2}

// toFeatures keeps the elements whose tags match the filter and converts them
// to raw features sorted by kind then ID. Elements whose geometry cannot be
// built keep a nil geometry so the normalizer can report them.
func toFeatures(res *overpass.Result, key string, values schema.TagValues) []landuse.RawFeature {
	var out []landuse.RawFeature
	for _, n := range res.Nodes {
		if !matches(n.Tags, key, values) {
			continue
		}
		out = append(out, landuse.RawFeature{
			Kind:     "node",
			ID:       n.ID,
			Tags:     n.Tags,
			Geometry: geom.NewPointFlat(geom.XY, []float64{n.Lon, n.Lat}).SetSRID(crs.WGS84),
		})
	}
	for _, w := range res.Ways {
		if !matches(w.Tags, key, values) {
			continue
		}
		f := landuse.RawFeature{Kind: "way", ID: w.ID, Tags: w.Tags}
		if g := wayGeometry(w); g != nil {
			f.Geometry = g
		}
		out = append(out, f)
	}
	for _, r := range res.Relations {
		if !matches(r.Tags, key, values) {
			continue
		}
		f := landuse.RawFeature{Kind: "relation", ID: r.ID, Tags: r.Tags}
		if g, err := relationGeometry(r); err == nil {
			f.Geometry = g
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return kindOrder[out[i].Kind] < kindOrder[out[j].Kind]
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func matches(tags map[string]string, key string, values schema.TagValues) bool {
	v, ok := tags[key]
	return ok && values.Matches(v)
}

func wayCoords(w *overpass.Way) []geom.Coord {
	coords := make([]geom.Coord, 0, len(w.Nodes))
	for _, n := range w.Nodes {
		if n == nil {
			return nil
		}
		coords = append(coords, geom.Coord{n.Lon, n.Lat})
	}
	return coords
}

// wayGeometry returns a polygon for closed ways, a line string for open ways
// and nil when the way has fewer than two nodes.
func wayGeometry(w *overpass.Way) geom.T {
	coords := wayCoords(w)
	switch {
	case len(coords) >= 4 && coords[0].Equal(geom.XY, coords[len(coords)-1]):
		p, err := geom.NewPolygon(geom.XY).SetCoords([][]geom.Coord{coords})
		if err != nil {
			return nil
		}
		return p.SetSRID(crs.WGS84)
	case len(coords) >= 2:
		l, err := geom.NewLineString(geom.XY).SetCoords(coords)
		if err != nil {
			return nil
		}
		return l.SetSRID(crs.WGS84)
	}
	return nil
}

// relationGeometry assembles a multipolygon relation from its member ways.
// Inner rings are attached to the first outer ring containing them.
func relationGeometry(r *overpass.Relation) (*geom.MultiPolygon, error) {
	if r.Tags["type"] != "multipolygon" {
		return nil, eris.Errorf("osm: relation %d is not a multipolygon", r.ID)
	}
	var outer, inner [][]geom.Coord
	for _, m := range r.Members {
		if m.Way == nil {
			continue
		}
		coords := wayCoords(m.Way)
		if len(coords) < 2 {
			continue
		}
		if m.Role == "inner" {
			inner = append(inner, coords)
		} else {
			outer = append(outer, coords)
		}
	}
	outerRings, err := joinRings(outer)
	if err != nil {
		return nil, eris.Wrapf(err, "osm: relation %d outer", r.ID)
	}
	if len(outerRings) == 0 {
		return nil, eris.Errorf("osm: relation %d has no outer ring", r.ID)
	}
	innerRings, err := joinRings(inner)
	if err != nil {
		return nil, eris.Wrapf(err, "osm: relation %d inner", r.ID)
	}

	polys := make([][][]geom.Coord, len(outerRings))
	shells := make([]*geom.Polygon, len(outerRings))
	for i, ring := range outerRings {
		polys[i] = [][]geom.Coord{ring}
		shells[i] = geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{ring})
	}
	for _, hole := range innerRings {
		for i, shell := range shells {
			if region.Contains(shell, hole[0][0], hole[0][1]) {
				polys[i] = append(polys[i], hole)
				break
			}
		}
	}
	mp, err := geom.NewMultiPolygon(geom.XY).SetCoords(polys)
	if err != nil {
		return nil, eris.Wrapf(err, "osm: relation %d", r.ID)
	}
	return mp.SetSRID(crs.WGS84), nil
}

// joinRings stitches way segments into closed rings by matching endpoints.
func joinRings(segments [][]geom.Coord) ([][]geom.Coord, error) {
	used := make([]bool, len(segments))
	var rings [][]geom.Coord
	for start := range segments {
		if used[start] {
			continue
		}
		used[start] = true
		ring := append([]geom.Coord{}, segments[start]...)
		for !closed(ring) {
			end := ring[len(ring)-1]
			extended := false
			for i, s := range segments {
				if used[i] {
					continue
				}
				switch {
				case s[0].Equal(geom.XY, end):
					ring = append(ring, s[1:]...)
				case s[len(s)-1].Equal(geom.XY, end):
					for k := len(s) - 2; k >= 0; k-- {
						ring = append(ring, s[k])
					}
				default:
					continue
				}
				used[i] = true
				extended = true
				break
			}
			if !extended {
				return nil, eris.New("osm: ring does not close")
			}
		}
		if len(ring) < 4 {
			return nil, eris.New("osm: degenerate ring")
		}
		rings = append(rings, ring)
	}
	return rings, nil
}

func closed(ring []geom.Coord) bool {
	return len(ring) > 2 && ring[0].Equal(geom.XY, ring[len(ring)-1])
}

// toWays converts highway ways to network input sorted by ID.
func toWays(res *overpass.Result) []network.Way {
	ways := make([]network.Way, 0, len(res.Ways))
	for _, w := range res.Ways {
		hw, ok := w.Tags["highway"]
		if !ok {
			continue
		}
		coords := wayCoords(w)
		if len(coords) < 2 {
			continue
		}
		ids := make([]int64, len(w.Nodes))
		for i, n := range w.Nodes {
			ids[i] = n.ID
		}
		ways = append(ways, network.Way{ID: w.ID, Highway: hw, Nodes: ids, Coords: coords})
	}
	sort.Slice(ways, func(i, j int) bool { return ways[i].ID < ways[j].ID })
	return ways
}
