// Package crs converts coordinates between the geographic reference used by
// OpenStreetMap (EPSG:4326, lon/lat order) and the projected references used
// for all internal computation. Supported codes: 4326, 3857, 27700, 3035 and
// the WGS 84 UTM zones (32601-32660, 32701-32760). The datum shifts and
// projections come from github.com/wroge/wgs84.
package crs

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/wroge/wgs84"
)

// WGS84 is the EPSG code of the geographic reference OSM data is served in.
const WGS84 = 4326

var epsg = wgs84.EPSG()

// Projection is a supported coordinate reference system.
type Projection struct {
	code int
	name string
	wkt  string
	sys  wgs84.CoordinateReferenceSystem
}

// Code returns the EPSG code.
func (p Projection) Code() int { return p.code }

// Name returns the EPSG display name.
func (p Projection) Name() string { return p.name }

// WKT returns the OGC WKT definition written to .prj files and GeoPackage
// srs tables.
func (p Projection) WKT() string { return p.wkt }

// Lookup returns the projection registered for an EPSG code.
func Lookup(code int) (Projection, error) {
	name, wkt, ok := describe(code)
	sys := epsg.Code(code)
	if !ok || sys == nil {
		return Projection{}, eris.Errorf("crs: unsupported EPSG code %d", code)
	}
	return Projection{code: code, name: name, wkt: wkt, sys: refine(sys)}, nil
}

// Supported reports whether code can be passed to Lookup.
func Supported(code int) bool {
	_, err := Lookup(code)
	return err == nil
}

// Transform converts coordinates from one reference to another.
type Transform struct {
	from Projection
	to   Projection
	fn   wgs84.Func
}

// New builds a transform between two EPSG codes.
func New(from, to int) (Transform, error) {
	src, err := Lookup(from)
	if err != nil {
		return Transform{}, eris.Wrap(err, "crs: source")
	}
	dst, err := Lookup(to)
	if err != nil {
		return Transform{}, eris.Wrap(err, "crs: target")
	}
	return newTransform(src, dst), nil
}

func newTransform(src, dst Projection) Transform {
	return Transform{from: src, to: dst, fn: wgs84.Transform(src.sys, dst.sys)}
}

// From returns the source EPSG code.
func (t Transform) From() int { return t.from.Code() }

// To returns the target EPSG code.
func (t Transform) To() int { return t.to.Code() }

// Identity reports whether the transform leaves coordinates unchanged.
func (t Transform) Identity() bool { return t.from.Code() == t.to.Code() }

// Reverse returns the transform in the opposite direction.
func (t Transform) Reverse() Transform { return newTransform(t.to, t.from) }

// Apply converts a single coordinate pair.
func (t Transform) Apply(x, y float64) (float64, float64) {
	if t.Identity() {
		return x, y
	}
	x, y, _ = t.fn(x, y, 0)
	return x, y
}

// Geometry returns a reprojected copy of g tagged with the target SRID.
// The input geometry is not modified.
func (t Transform) Geometry(g geom.T) (geom.T, error) {
	switch g := g.(type) {
	case *geom.Point:
		c := g.Clone()
		if err := t.applyFlat(c.FlatCoords(), c.Stride()); err != nil {
			return nil, err
		}
		return c.SetSRID(t.To()), nil
	case *geom.LineString:
		c := g.Clone()
		if err := t.applyFlat(c.FlatCoords(), c.Stride()); err != nil {
			return nil, err
		}
		return c.SetSRID(t.To()), nil
	case *geom.Polygon:
		c := g.Clone()
		if err := t.applyFlat(c.FlatCoords(), c.Stride()); err != nil {
			return nil, err
		}
		return c.SetSRID(t.To()), nil
	case *geom.MultiPoint:
		c := g.Clone()
		if err := t.applyFlat(c.FlatCoords(), c.Stride()); err != nil {
			return nil, err
		}
		return c.SetSRID(t.To()), nil
	case *geom.MultiLineString:
		c := g.Clone()
		if err := t.applyFlat(c.FlatCoords(), c.Stride()); err != nil {
			return nil, err
		}
		return c.SetSRID(t.To()), nil
	case *geom.MultiPolygon:
		c := g.Clone()
		if err := t.applyFlat(c.FlatCoords(), c.Stride()); err != nil {
			return nil, err
		}
		return c.SetSRID(t.To()), nil
	case nil:
		return nil, eris.New("crs: nil geometry")
	default:
		return nil, eris.Errorf("crs: unsupported geometry type %T", g)
	}
}

// Point reprojects a point geometry.
func (t Transform) Point(p *geom.Point) (*geom.Point, error) {
	g, err := t.Geometry(p)
	if err != nil {
		return nil, err
	}
	return g.(*geom.Point), nil
}

// Polygon reprojects a polygon geometry.
func (t Transform) Polygon(p *geom.Polygon) (*geom.Polygon, error) {
	g, err := t.Geometry(p)
	if err != nil {
		return nil, err
	}
	return g.(*geom.Polygon), nil
}

func (t Transform) applyFlat(flat []float64, stride int) error {
	if stride < 2 {
		return eris.Errorf("crs: invalid stride %d", stride)
	}
	for i := 0; i+1 < len(flat); i += stride {
		x, y := t.Apply(flat[i], flat[i+1])
		if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
			return eris.Errorf("crs: EPSG:%d -> EPSG:%d produced non-finite coordinate for (%g, %g)",
				t.From(), t.To(), flat[i], flat[i+1])
		}
		flat[i], flat[i+1] = x, y
	}
	return nil
}

// refined swaps a projection's closed-form inverse for Newton iterations on
// its forward series. The wgs84 Transverse Mercator inverse drifts by metres
// away from the central meridian; the forward series does not.
type refined struct {
	wgs84.Projection
}

func refine(sys wgs84.CoordinateReferenceSystem) wgs84.CoordinateReferenceSystem {
	p, ok := sys.(wgs84.ProjectedReferenceSystem)
	if !ok || p.Projection == nil {
		return sys
	}
	p.Projection = refined{p.Projection}
	return p
}

func (p refined) ToLonLat(east, north float64, s wgs84.Spheroid) (float64, float64) {
	const step = 1e-6 // degrees
	lon, lat := p.Projection.ToLonLat(east, north, s)
	for i := 0; i < 6; i++ {
		e, n := p.FromLonLat(lon, lat, s)
		de, dn := east-e, north-n
		if math.Abs(de) < 1e-6 && math.Abs(dn) < 1e-6 {
			break
		}
		e1, n1 := p.FromLonLat(lon+step, lat, s)
		e2, n2 := p.FromLonLat(lon, lat+step, s)
		a, b := (e1-e)/step, (e2-e)/step
		c, d := (n1-n)/step, (n2-n)/step
		det := a*d - b*c
		if det == 0 || math.IsNaN(det) || math.IsInf(det, 0) {
			break
		}
		lon += (d*de - b*dn) / det
		lat += (a*dn - c*de) / det
	}
	return lon, lat
}
