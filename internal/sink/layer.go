// Package sink persists vector layers: the aggregated landuse set and the
// scored network nodes of a region. Every sink writes a layer independently,
// so a failed region never touches artifacts of earlier regions.
package sink

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// ColumnType is the attribute type of a layer column.
type ColumnType int

// Column types.
const (
	Text ColumnType = iota
	Integer
	Real
	Boolean
)

func (t ColumnType) String() string {
	switch t {
	case Text:
		return "TEXT"
	case Integer:
		return "INTEGER"
	case Real:
		return "REAL"
	case Boolean:
		return "BOOLEAN"
	default:
		return fmt.Sprintf("ColumnType(%d)", int(t))
	}
}

// Column is a named, typed attribute.
type Column struct {
	Name string
	Type ColumnType
}

// Feature is a geometry with one value per layer column.
type Feature struct {
	Geom   geom.T
	Values []any
}

// Layer is a named feature collection in a single CRS.
type Layer struct {
	Name     string
	CRS      int
	Columns  []Column
	Features []Feature
}

// Sink persists a layer and returns the location it was written to.
type Sink interface {
	Write(ctx context.Context, l *Layer) (string, error)
}

// Validate checks the layer name, column names and that each feature has a
// geometry and a value of the right type per column.
func (l *Layer) Validate() error {
	if l == nil {
		return eris.New("sink: nil layer")
	}
	if l.Name == "" {
		return eris.New("sink: empty layer name")
	}
	seen := make(map[string]bool, len(l.Columns))
	for _, c := range l.Columns {
		if c.Name == "" {
			return eris.Errorf("sink: layer %s has an unnamed column", l.Name)
		}
		if seen[c.Name] {
			return eris.Errorf("sink: layer %s has duplicate column %s", l.Name, c.Name)
		}
		seen[c.Name] = true
	}
	for i, f := range l.Features {
		if f.Geom == nil {
			return eris.Errorf("sink: layer %s feature %d has no geometry", l.Name, i)
		}
		if len(f.Values) != len(l.Columns) {
			return eris.Errorf("sink: layer %s feature %d has %d values for %d columns", l.Name, i, len(f.Values), len(l.Columns))
		}
		for j, v := range f.Values {
			if !typeMatches(l.Columns[j].Type, v) {
				return eris.Errorf("sink: layer %s feature %d column %s: %T is not %s", l.Name, i, l.Columns[j].Name, v, l.Columns[j].Type)
			}
		}
	}
	return nil
}

func typeMatches(t ColumnType, v any) bool {
	if v == nil {
		return true
	}
	switch t {
	case Text:
		_, ok := v.(string)
		return ok
	case Integer:
		switch v.(type) {
		case int, int32, int64:
			return true
		}
		return false
	case Real:
		_, ok := v.(float64)
		return ok
	case Boolean:
		_, ok := v.(bool)
		return ok
	default:
		return false
	}
}

// GeometryType returns the OGC type name shared by the layer's features, or
// GEOMETRY when they are mixed or the layer is empty.
func (l *Layer) GeometryType() string {
	name := ""
	for _, f := range l.Features {
		n := geometryTypeName(f.Geom)
		if name != "" && n != name {
			return "GEOMETRY"
		}
		name = n
	}
	if name == "" {
		return "GEOMETRY"
	}
	return name
}

func geometryTypeName(g geom.T) string {
	switch g.(type) {
	case *geom.Point:
		return "POINT"
	case *geom.LineString:
		return "LINESTRING"
	case *geom.Polygon:
		return "POLYGON"
	case *geom.MultiPoint:
		return "MULTIPOINT"
	case *geom.MultiLineString:
		return "MULTILINESTRING"
	case *geom.MultiPolygon:
		return "MULTIPOLYGON"
	default:
		return "GEOMETRY"
	}
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	}
	return 0
}

// withSRID returns a copy of g tagged with srid.
func withSRID(g geom.T, srid int) (geom.T, error) {
	switch g := g.(type) {
	case *geom.Point:
		return g.Clone().SetSRID(srid), nil
	case *geom.LineString:
		return g.Clone().SetSRID(srid), nil
	case *geom.Polygon:
		return g.Clone().SetSRID(srid), nil
	case *geom.MultiPoint:
		return g.Clone().SetSRID(srid), nil
	case *geom.MultiLineString:
		return g.Clone().SetSRID(srid), nil
	case *geom.MultiPolygon:
		return g.Clone().SetSRID(srid), nil
	default:
		return nil, eris.Errorf("sink: unsupported geometry %T", g)
	}
}
