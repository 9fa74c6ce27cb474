package sink

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func TestShapefile_WritePlaces(t *testing.T) {
	s := NewShapefile(t.TempDir())
	path, err := s.Write(context.Background(), placesLayer())
	require.NoError(t, err)
	assert.Equal(t, s.Path("oxford_street_places"), path)

	prj, err := os.ReadFile(strings.TrimSuffix(path, ".shp") + ".prj")
	require.NoError(t, err)
	assert.Contains(t, string(prj), "OSGB36 / British National Grid")

	r, err := shp.Open(path)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	var got []string
	for r.Next() {
		_, shape := r.Shape()
		pt, ok := shape.(*shp.Point)
		require.True(t, ok)
		id := strings.TrimSpace(r.Attribute(0))
		cat := strings.TrimSpace(r.Attribute(1))
		if id == "0" {
			assert.InDelta(t, 528831, pt.X, 1e-9)
			assert.InDelta(t, 181186, pt.Y, 1e-9)
		}
		got = append(got, id+":"+cat)
	}
	assert.Equal(t, []string{"0:eating", "1:retail"}, got)
}

func TestShapefile_WriteNodes(t *testing.T) {
	s := NewShapefile(t.TempDir())
	path, err := s.Write(context.Background(), nodesLayer())
	require.NoError(t, err)

	r, err := shp.Open(path)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	require.True(t, r.Next())
	assert.Equal(t, "7", strings.TrimSpace(r.Attribute(0)))
	assert.Equal(t, "T", strings.TrimSpace(r.Attribute(1)))
	nw, err := strconv.ParseFloat(strings.TrimSpace(r.Attribute(2)), 64)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, nw, 1e-9)

	require.True(t, r.Next())
	assert.Equal(t, "F", strings.TrimSpace(r.Attribute(1)))
}

func TestShapefile_FieldMapSidecar(t *testing.T) {
	s := NewShapefile(t.TempDir())
	path, err := s.Write(context.Background(), nodesLayer())
	require.NoError(t, err)

	data, err := os.ReadFile(strings.TrimSuffix(path, ".shp") + ".fields.json")
	require.NoError(t, err)
	var aliases []FieldAlias
	require.NoError(t, json.Unmarshal(data, &aliases))
	assert.Equal(t, []FieldAlias{
		{Field: "node_id", Column: "node_id"},
		{Field: "live", Column: "live"},
		{Field: "cc_eating_", Column: "cc_eating_100_nw"},
		{Field: "cc_eatin_1", Column: "cc_eating_100_wt"},
	}, aliases)

	r, err := shp.Open(path)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()
	for i, f := range r.Fields() {
		assert.Equal(t, aliases[i].Field, f.String())
	}
}

func TestShapefile_Polygon(t *testing.T) {
	l := &Layer{
		Name:    "study",
		CRS:     27700,
		Columns: []Column{{Name: "name", Type: Text}},
		Features: []Feature{{
			Geom:   geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{{0, 0}, {0, 10}, {10, 10}, {10, 0}, {0, 0}}}),
			Values: []any{"study"},
		}},
	}
	path, err := NewShapefile(t.TempDir()).Write(context.Background(), l)
	require.NoError(t, err)

	r, err := shp.Open(path)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()
	require.True(t, r.Next())
	_, shape := r.Shape()
	poly, ok := shape.(*shp.Polygon)
	require.True(t, ok)
	assert.Equal(t, int32(5), poly.NumPoints)
}

func TestShapefile_MixedGeometry(t *testing.T) {
	l := placesLayer()
	l.Features = append(l.Features, Feature{
		Geom:   geom.NewLineStringFlat(geom.XY, []float64{0, 0, 1, 1}),
		Values: []any{"2", "retail"},
	})
	_, err := NewShapefile(t.TempDir()).Write(context.Background(), l)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mixed geometry types")
}
