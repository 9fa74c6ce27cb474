package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/landuse-cli/internal/crs"
)

// dBase field names are limited to 10 bytes.
const maxFieldName = 10

// Shapefile writes each layer to {Dir}/{layer}.shp with its .shx, .dbf,
// .prj and .cpg sidecars. Column names longer than ten characters are
// shortened and de-duplicated; {layer}.fields.json maps each dBase field back
// to its full column name.
type Shapefile struct {
	Dir string
}

// NewShapefile creates a Shapefile sink rooted at dir.
func NewShapefile(dir string) *Shapefile {
	return &Shapefile{Dir: dir}
}

// Path returns the .shp file a layer is written to.
func (s *Shapefile) Path(layer string) string {
	return filepath.Join(s.Dir, layer+".shp")
}

// Write implements Sink.
func (s *Shapefile) Write(_ context.Context, l *Layer) (string, error) {
	if err := l.Validate(); err != nil {
		return "", err
	}
	shapeType, err := shapeTypeFor(l.GeometryType(), len(l.Features))
	if err != nil {
		return "", eris.Wrapf(err, "shapefile: layer %s", l.Name)
	}
	proj, err := crs.Lookup(l.CRS)
	if err != nil {
		return "", eris.Wrapf(err, "shapefile: layer %s", l.Name)
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "shapefile: create dir %s", s.Dir)
	}

	path := s.Path(l.Name)
	w, err := shp.Create(path, shapeType)
	if err != nil {
		return "", eris.Wrapf(err, "shapefile: create %s", path)
	}
	defer w.Close()

	if len(l.Columns) > 0 {
		if err := w.SetFields(fieldsFor(l)); err != nil {
			return "", eris.Wrapf(err, "shapefile: set fields for %s", l.Name)
		}
	}
	for i, f := range l.Features {
		shape, err := toShape(f.Geom)
		if err != nil {
			return "", eris.Wrapf(err, "shapefile: layer %s feature %d", l.Name, i)
		}
		row := int(w.Write(shape))
		for j, v := range f.Values {
			if err := w.WriteAttribute(row, j, dbfValue(l.Columns[j].Type, v)); err != nil {
				return "", eris.Wrapf(err, "shapefile: layer %s feature %d column %s", l.Name, i, l.Columns[j].Name)
			}
		}
	}

	base := strings.TrimSuffix(path, ".shp")
	if err := os.WriteFile(base+".prj", []byte(proj.WKT()), 0o644); err != nil {
		return "", eris.Wrapf(err, "shapefile: write %s.prj", base)
	}
	if err := os.WriteFile(base+".cpg", []byte("UTF-8"), 0o644); err != nil {
		return "", eris.Wrapf(err, "shapefile: write %s.cpg", base)
	}
	if len(l.Columns) > 0 {
		if err := writeFieldMap(base+".fields.json", l.Columns); err != nil {
			return "", err
		}
	}

	zap.L().Info("layer written",
		zap.String("component", "sink.shapefile"),
		zap.String("layer", l.Name),
		zap.String("path", path),
		zap.Int("features", len(l.Features)),
	)
	return path, nil
}

func shapeTypeFor(geomType string, n int) (shp.ShapeType, error) {
	switch geomType {
	case "POINT":
		return shp.POINT, nil
	case "LINESTRING":
		return shp.POLYLINE, nil
	case "POLYGON":
		return shp.POLYGON, nil
	case "GEOMETRY":
		if n == 0 {
			return shp.POINT, nil
		}
		return shp.NULL, eris.New("mixed geometry types")
	default:
		return shp.NULL, eris.Errorf("unsupported geometry type %s", geomType)
	}
}

// FieldNames returns the dBase field name used for each column.
func FieldNames(cols []Column) []string {
	names := make([]string, len(cols))
	used := make(map[string]bool, len(cols))
	for i, c := range cols {
		name := c.Name
		if len(name) > maxFieldName {
			name = name[:maxFieldName]
		}
		for n := 1; used[name]; n++ {
			suffix := fmt.Sprintf("_%d", n)
			name = c.Name[:min(len(c.Name), maxFieldName-len(suffix))] + suffix
		}
		used[name] = true
		names[i] = name
	}
	return names
}

// FieldAlias pairs a dBase field name with the column it was derived from.
type FieldAlias struct {
	Field  string `json:"field"`
	Column string `json:"column"`
}

func writeFieldMap(path string, cols []Column) error {
	names := FieldNames(cols)
	aliases := make([]FieldAlias, len(cols))
	for i, c := range cols {
		aliases[i] = FieldAlias{Field: names[i], Column: c.Name}
	}
	data, err := json.MarshalIndent(aliases, "", "  ")
	if err != nil {
		return eris.Wrapf(err, "shapefile: encode %s", path)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return eris.Wrapf(err, "shapefile: write %s", path)
	}
	return nil
}

func fieldsFor(l *Layer) []shp.Field {
	names := FieldNames(l.Columns)
	fields := make([]shp.Field, len(l.Columns))
	for i, c := range l.Columns {
		switch c.Type {
		case Integer:
			fields[i] = shp.NumberField(names[i], 18)
		case Real:
			fields[i] = shp.FloatField(names[i], 24, 6)
		case Boolean:
			fields[i] = shp.StringField(names[i], 1)
		default:
			fields[i] = shp.StringField(names[i], 254)
		}
	}
	return fields
}

func dbfValue(t ColumnType, v any) any {
	switch t {
	case Integer:
		return int(toInt64(v))
	case Real:
		f, _ := v.(float64)
		return f
	case Boolean:
		if b, _ := v.(bool); b {
			return "T"
		}
		return "F"
	default:
		s, _ := v.(string)
		return s
	}
}

func toShape(g geom.T) (shp.Shape, error) {
	switch g := g.(type) {
	case *geom.Point:
		return &shp.Point{X: g.X(), Y: g.Y()}, nil
	case *geom.LineString:
		return shp.NewPolyLine([][]shp.Point{shpPoints(g.Coords())}), nil
	case *geom.Polygon:
		parts := make([][]shp.Point, g.NumLinearRings())
		for i := range parts {
			parts[i] = shpPoints(g.LinearRing(i).Coords())
		}
		poly := shp.Polygon(*shp.NewPolyLine(parts))
		return &poly, nil
	default:
		return nil, eris.Errorf("unsupported geometry %T", g)
	}
}

func shpPoints(coords []geom.Coord) []shp.Point {
	pts := make([]shp.Point, len(coords))
	for i, c := range coords {
		pts[i] = shp.Point{X: c[0], Y: c[1]}
	}
	return pts
}
