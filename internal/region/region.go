// Package region builds the study and fetch areas for a landuse run. The
// study area is the core region whose network nodes are "live"; the fetch
// area extends it outward so accessibility near the study boundary is not
// truncated.
package region

import (
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/landuse-cli/internal/crs"
	"github.com/sells-group/landuse-cli/internal/naming"
)

// EarthRadiusMeters is the mean Earth radius used for geodesic buffers.
const EarthRadiusMeters = 6371000.0

// Region is one unit of work: a named study area and the wider fetch area,
// both in the working CRS. For line regions Study is the convex envelope of
// the buffered line; liveness is decided against Line itself.
type Region struct {
	Key   string
	CRS   int
	Study *geom.Polygon
	Fetch *geom.Polygon

	Line        []geom.Coord // study line, nil for point regions
	StudyBuffer float64
}

// Buffers holds the buffer distances applied when building regions, in
// working CRS units.
type Buffers struct {
	Study float64 // applied to line geometries to form the study area
	Fetch float64 // applied to the study area to form the fetch area
}

// FromLine builds a region around a line (or single point) given in the
// working CRS.
func FromLine(key string, coords []geom.Coord, crsCode int, b Buffers) (*Region, error) {
	if key == "" {
		return nil, eris.New("region: empty location key")
	}
	if len(coords) == 0 {
		return nil, eris.Errorf("region %s: no coordinates", key)
	}
	if b.Study <= 0 || b.Fetch <= 0 {
		return nil, eris.Errorf("region %s: buffers must be positive (study=%g fetch=%g)", key, b.Study, b.Fetch)
	}
	study, err := Buffer(coords, b.Study, DefaultSegments)
	if err != nil {
		return nil, eris.Wrapf(err, "region %s: study area", key)
	}
	fetch, err := Buffer(Coords(study), b.Fetch, DefaultSegments)
	if err != nil {
		return nil, eris.Wrapf(err, "region %s: fetch area", key)
	}
	return &Region{
		Key:         key,
		CRS:         crsCode,
		Study:       study.SetSRID(crsCode),
		Fetch:       fetch.SetSRID(crsCode),
		Line:        append([]geom.Coord(nil), coords...),
		StudyBuffer: b.Study,
	}, nil
}

// FromPoint builds a region around a geographic point: the study area is a
// geodesic circle of the given radius and the fetch area a circle extended by
// the fetch buffer. Both are projected to the working CRS.
func FromPoint(key string, lng, lat, radius float64, crsCode int, b Buffers) (*Region, error) {
	if key == "" {
		return nil, eris.New("region: empty location key")
	}
	if radius <= 0 || b.Fetch <= 0 {
		return nil, eris.Errorf("region %s: radius and fetch buffer must be positive", key)
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return nil, eris.Errorf("region %s: point (%g, %g) out of range", key, lng, lat)
	}
	tf, err := crs.New(crs.WGS84, crsCode)
	if err != nil {
		return nil, eris.Wrapf(err, "region %s", key)
	}

	study, err := geodesicCircle(lng, lat, radius, DefaultSegments*2)
	if err != nil {
		return nil, eris.Wrapf(err, "region %s: study area", key)
	}
	fetch, err := geodesicCircle(lng, lat, radius+b.Fetch, DefaultSegments*2)
	if err != nil {
		return nil, eris.Wrapf(err, "region %s: fetch area", key)
	}
	studyP, err := tf.Polygon(study)
	if err != nil {
		return nil, eris.Wrapf(err, "region %s: project study area", key)
	}
	fetchP, err := tf.Polygon(fetch)
	if err != nil {
		return nil, eris.Wrapf(err, "region %s: project fetch area", key)
	}
	return &Region{Key: key, CRS: crsCode, Study: studyP, Fetch: fetchP}, nil
}

// geodesicCircle approximates a circle on the sphere as a lon/lat polygon.
func geodesicCircle(lng, lat, meters float64, vertices int) (*geom.Polygon, error) {
	center := s2.PointFromLatLng(s2.LatLngFromDegrees(lat, lng))
	loop := s2.RegularLoop(center, s1.Angle(meters/EarthRadiusMeters), vertices)

	verts := loop.Vertices()
	ring := make([]geom.Coord, 0, len(verts)+1)
	for _, v := range verts {
		ll := s2.LatLngFromPoint(v)
		ring = append(ring, geom.Coord{ll.Lng.Degrees(), ll.Lat.Degrees()})
	}
	if len(ring) < 3 {
		return nil, eris.Errorf("region: degenerate circle with %d vertices", len(ring))
	}
	ring = append(ring, ring[0])
	p, err := ringPolygon(ring)
	if err != nil {
		return nil, err
	}
	return p.SetSRID(crs.WGS84), nil
}

// FetchArea returns the fetch polygon in EPSG:4326 for querying OSM.
func (r *Region) FetchArea() (*geom.Polygon, error) {
	tf, err := crs.New(r.CRS, crs.WGS84)
	if err != nil {
		return nil, eris.Wrapf(err, "region %s", r.Key)
	}
	p, err := tf.Polygon(r.Fetch)
	if err != nil {
		return nil, eris.Wrapf(err, "region %s: project fetch area", r.Key)
	}
	return p, nil
}

// Live reports whether a working-CRS coordinate lies in the study area: within
// the study buffer of the line, or inside the circle for point regions.
func (r *Region) Live(x, y float64) bool {
	if len(r.Line) > 0 {
		return DistanceToLine(r.Line, x, y) <= r.StudyBuffer
	}
	return Contains(r.Study, x, y)
}

// Spec is the file representation of a region: either a line in the working
// CRS or a geographic point with a radius.
type Spec struct {
	Key    string      `yaml:"key"`
	Line   [][]float64 `yaml:"line,omitempty"`
	Point  *PointSpec  `yaml:"point,omitempty"`
	Radius float64     `yaml:"radius,omitempty"`
}

// PointSpec is a lon/lat position in degrees.
type PointSpec struct {
	Lng float64 `yaml:"lng"`
	Lat float64 `yaml:"lat"`
}

// Build converts a spec into a region.
func (s Spec) Build(crsCode int, b Buffers) (*Region, error) {
	switch {
	case len(s.Line) > 0 && s.Point != nil:
		return nil, eris.Errorf("region %s: set either line or point, not both", s.Key)
	case len(s.Line) > 0:
		coords := make([]geom.Coord, len(s.Line))
		for i, c := range s.Line {
			if len(c) != 2 {
				return nil, eris.Errorf("region %s: coordinate %d needs 2 values, got %d", s.Key, i, len(c))
			}
			if math.IsNaN(c[0]) || math.IsNaN(c[1]) {
				return nil, eris.Errorf("region %s: coordinate %d is NaN", s.Key, i)
			}
			coords[i] = geom.Coord{c[0], c[1]}
		}
		return FromLine(s.Key, coords, crsCode, b)
	case s.Point != nil:
		radius := s.Radius
		if radius == 0 {
			radius = b.Fetch
		}
		return FromPoint(s.Key, s.Point.Lng, s.Point.Lat, radius, crsCode, b)
	default:
		return nil, eris.Errorf("region %s: no line or point given", s.Key)
	}
}

// LoadFile reads region specs. YAML files have the form
//
//	regions:
//	  - key: oxford_street
//	    line: [[528680, 181151], [528983, 181222]]
//	  - key: nicosia
//	    point: {lng: 33.36402, lat: 35.17526}
//	    radius: 2000
//
// .csv and .xlsx files hold a table with a header row naming the columns
// key, line ("x y, x y"), lng, lat and radius.
func LoadFile(path string) ([]Spec, error) {
	var (
		specs []Spec
		err   error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		var rows [][]string
		if rows, err = readCSV(path); err == nil {
			specs, err = parseTable(path, rows)
		}
	case ".xlsx":
		var rows [][]string
		if rows, err = readXLSX(path); err == nil {
			specs, err = parseTable(path, rows)
		}
	default:
		specs, err = loadYAML(path)
	}
	if err != nil {
		return nil, err
	}

	if len(specs) == 0 {
		return nil, eris.Errorf("region: %s defines no regions", path)
	}
	seen := make(map[string]string, len(specs))
	for _, s := range specs {
		if s.Key == "" {
			return nil, eris.Errorf("region: %s has a region without key", path)
		}
		slug := naming.Slug(s.Key)
		prev, ok := seen[slug]
		switch {
		case ok && prev == s.Key:
			return nil, eris.Errorf("region: %s has duplicate key %q", path, s.Key)
		case ok:
			// Artifacts are named by slug, so the second region would
			// overwrite the first one's layers.
			return nil, eris.Errorf("region: %s keys %q and %q share the output name %q", path, prev, s.Key, slug)
		}
		seen[slug] = s.Key
	}
	return specs, nil
}

func loadYAML(path string) ([]Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "region: read %s", path)
	}
	var doc struct {
		Regions []Spec `yaml:"regions"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrapf(err, "region: parse %s", path)
	}
	return doc.Regions, nil
}
