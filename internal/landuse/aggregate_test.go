package landuse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/landuse-cli/internal/crs"
	"github.com/sells-group/landuse-cli/internal/schema"
)

func bngFeature(id, cat, key string, x, y float64) Feature {
	return Feature{
		ID:        id,
		Category:  cat,
		TagKey:    key,
		TagValues: `["x"]`,
		Geom:      geom.NewPointFlat(geom.XY, []float64{x, y}).SetSRID(27700),
	}
}

func TestAggregate_ConcatenatesAndReindexes(t *testing.T) {
	sets := [][]Feature{
		{bngFeature("0", "drinking", "amenity", 1, 1), bngFeature("1", "drinking", "amenity", 2, 2)},
		{bngFeature("0", "eating", "amenity", 3, 3)},
		{},
		{bngFeature("0", "retail", "shop", 4, 4)},
	}
	set, err := Aggregate(sets, 27700)
	require.NoError(t, err)

	assert.Equal(t, 27700, set.CRS)
	require.Equal(t, 4, set.Len())
	wantCats := []string{"drinking", "drinking", "eating", "retail"}
	for i, row := range set.Rows {
		assert.Equal(t, []string{"0", "1", "2", "3"}[i], row.ID)
		assert.Equal(t, wantCats[i], row.Category)
		assert.Equal(t, float64(i+1), row.Geom.X())
		assert.Equal(t, 27700, row.Geom.SRID())
	}

	// Inputs keep their per-fetch IDs.
	assert.Equal(t, "0", sets[1][0].ID)
}

func TestAggregate_Idempotent(t *testing.T) {
	sets := [][]Feature{
		{bngFeature("0", "drinking", "amenity", 528800.5, 181190.25)},
		{bngFeature("0", "eating", "amenity", 528810, 181195)},
	}
	a, err := Aggregate(sets, 27700)
	require.NoError(t, err)
	b, err := Aggregate(sets, 27700)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestAggregate_ReprojectsForeignPoints(t *testing.T) {
	f := Feature{ID: "0", Category: "eating", TagKey: "amenity", Geom: lonLatPoint(-0.147, 51.515)}
	set, err := Aggregate([][]Feature{{f}}, 27700)
	require.NoError(t, err)

	tf, err := crs.New(crs.WGS84, 27700)
	require.NoError(t, err)
	x, y := tf.Apply(-0.147, 51.515)
	assert.InDelta(t, x, set.Rows[0].Geom.X(), 1e-6)
	assert.InDelta(t, y, set.Rows[0].Geom.Y(), 1e-6)
	assert.Equal(t, 4326, f.Geom.SRID())
}

func TestAggregate_Errors(t *testing.T) {
	_, err := Aggregate(nil, 1234)
	require.Error(t, err)

	_, err = Aggregate([][]Feature{{{ID: "0", Category: "eating"}}}, 27700)
	require.Error(t, err)
	var gerr *GeometryError
	assert.ErrorAs(t, err, &gerr)

	odd := Feature{ID: "0", Category: "eating", Geom: geom.NewPointFlat(geom.XY, []float64{1, 1}).SetSRID(1234)}
	_, err = Aggregate([][]Feature{{odd}}, 27700)
	require.Error(t, err)
}

func TestAggregate_Empty(t *testing.T) {
	set, err := Aggregate(nil, 27700)
	require.NoError(t, err)
	assert.Equal(t, 0, set.Len())
	assert.NotNil(t, set.Rows)
}

func TestSet_ValidateAndCounts(t *testing.T) {
	reg := schema.MustNew([]schema.Category{
		{Key: "parks", Tags: []schema.TagSpec{{Key: "leisure", Values: schema.Values("park")}}},
		{Key: "shops", Tags: []schema.TagSpec{{Key: "shop", Values: schema.AnyValue()}}},
	})
	set := &Set{CRS: 27700, Rows: []Landuse{{ID: "0", Category: "parks"}, {ID: "1", Category: "parks"}}}
	require.NoError(t, set.Validate(reg))
	assert.Equal(t, map[string]int{"parks": 2, "shops": 0}, set.CountByCategory(reg))

	set.Rows = append(set.Rows, Landuse{ID: "2", Category: "nightlife"})
	err := set.Validate(reg)
	require.Error(t, err)
	assert.True(t, IsSchemaViolation(err))

	set.Rows = []Landuse{{ID: "0", Category: "parks"}, {ID: "0", Category: "shops"}}
	require.Error(t, set.Validate(reg))
}

func TestSet_Layer(t *testing.T) {
	set, err := Aggregate([][]Feature{{bngFeature("0", "eating", "amenity", 1, 2)}}, 27700)
	require.NoError(t, err)

	l := set.Layer("oxford_street_places")
	require.NoError(t, l.Validate())
	assert.Equal(t, "oxford_street_places", l.Name)
	assert.Equal(t, 27700, l.CRS)
	assert.Equal(t, "id", l.Columns[0].Name)
	assert.Equal(t, CategoryColumn, l.Columns[1].Name)
	require.Len(t, l.Features, 1)
	assert.Equal(t, []any{"0", "eating"}, l.Features[0].Values)
}
