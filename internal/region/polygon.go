package region

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/lineintersector"
	"github.com/twpayne/go-geom/xy/location"
)

// DefaultSegments is the number of vertices used to approximate each disc
// when buffering.
const DefaultSegments = 32

// Buffer returns the polygon covering every point within dist of the input
// coordinates' convex hull. For convex inputs (points, single segments,
// convex polygons) this is the exact buffer up to disc discretisation; for
// concave inputs it is a superset.
func Buffer(coords []geom.Coord, dist float64, segments int) (*geom.Polygon, error) {
	if len(coords) == 0 {
		return nil, eris.New("region: buffer of empty geometry")
	}
	if dist <= 0 {
		return nil, eris.Errorf("region: buffer distance must be positive, got %g", dist)
	}
	if segments < 8 {
		segments = DefaultSegments
	}

	// Scale so the discretised disc circumscribes the true circle.
	r := dist / math.Cos(math.Pi/float64(segments))
	flat := make([]float64, 0, 2*len(coords)*segments)
	for _, c := range coords {
		for i := 0; i < segments; i++ {
			a := 2 * math.Pi * float64(i) / float64(segments)
			flat = append(flat, c[0]+r*math.Cos(a), c[1]+r*math.Sin(a))
		}
	}
	hull, ok := xy.ConvexHullFlat(geom.XY, flat).(*geom.Polygon)
	if !ok {
		return nil, eris.New("region: degenerate buffer hull")
	}
	return hull, nil
}

func ringPolygon(ring []geom.Coord) (*geom.Polygon, error) {
	p, err := geom.NewPolygon(geom.XY).SetCoords([][]geom.Coord{ring})
	if err != nil {
		return nil, eris.Wrap(err, "region: build polygon")
	}
	return p, nil
}

// Coords returns the coordinates of the polygon's exterior ring.
func Coords(p *geom.Polygon) []geom.Coord {
	if p == nil || p.NumLinearRings() == 0 {
		return nil
	}
	return p.LinearRing(0).Coords()
}

// ValidateSimple checks that every ring of p is closed, has at least four
// coordinates and does not intersect itself.
func ValidateSimple(p *geom.Polygon) error {
	if p == nil || p.NumLinearRings() == 0 {
		return eris.New("region: empty polygon")
	}
	for i := 0; i < p.NumLinearRings(); i++ {
		ring := p.LinearRing(i).Coords()
		if len(ring) < 4 {
			return eris.Errorf("region: ring %d has %d coordinates, need at least 4", i, len(ring))
		}
		first, last := ring[0], ring[len(ring)-1]
		if first[0] != last[0] || first[1] != last[1] {
			return eris.Errorf("region: ring %d is not closed", i)
		}
		for _, c := range ring {
			if math.IsNaN(c[0]) || math.IsNaN(c[1]) || math.IsInf(c[0], 0) || math.IsInf(c[1], 0) {
				return eris.Errorf("region: ring %d has a non-finite coordinate", i)
			}
		}
		if a, b, ok := selfIntersection(ring); ok {
			return eris.Errorf("region: ring %d self-intersects between segments %d and %d", i, a, b)
		}
	}
	return nil
}

// selfIntersection finds two non-adjacent ring segments that intersect.
func selfIntersection(ring []geom.Coord) (int, int, bool) {
	n := len(ring) - 1 // number of segments
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if j == i+1 || (i == 0 && j == n-1) {
				continue // adjacent segments share an endpoint
			}
			res := lineintersector.LineIntersectsLine(lineintersector.RobustLineIntersector{},
				ring[i], ring[i+1], ring[j], ring[j+1])
			if res.HasIntersection() {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}

// Contains reports whether (x, y) lies inside p: inside the exterior ring and
// outside every hole. Points on the boundary count as outside.
func Contains(p *geom.Polygon, x, y float64) bool {
	if p == nil || p.NumLinearRings() == 0 {
		return false
	}
	pt := geom.Coord{x, y}
	if xy.LocatePointInRing(geom.XY, pt, p.LinearRing(0).FlatCoords()) != location.Interior {
		return false
	}
	for i := 1; i < p.NumLinearRings(); i++ {
		if xy.IsPointInRing(geom.XY, pt, p.LinearRing(i).FlatCoords()) {
			return false
		}
	}
	return true
}

// DistanceToLine returns the planar distance from (x, y) to the polyline
// through coords. A single coordinate is treated as a point.
func DistanceToLine(coords []geom.Coord, x, y float64) float64 {
	if len(coords) == 0 {
		return math.Inf(1)
	}
	flat := make([]float64, 0, 2*len(coords))
	for _, c := range coords {
		flat = append(flat, c[0], c[1])
	}
	return xy.DistanceFromPointToLineString(geom.XY, geom.Coord{x, y}, flat)
}
