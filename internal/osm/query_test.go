package osm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/landuse-cli/internal/crs"
	"github.com/sells-group/landuse-cli/internal/schema"
)

func testArea() *geom.Polygon {
	return geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
		{-0.152, 51.513}, {-0.144, 51.513}, {-0.144, 51.517}, {-0.152, 51.517}, {-0.152, 51.513},
	}}).SetSRID(crs.WGS84)
}

func TestPolyFilter(t *testing.T) {
	assert.Equal(t,
		"51.5130000 -0.1520000 51.5130000 -0.1440000 51.5170000 -0.1440000 51.5170000 -0.1520000",
		PolyFilter(testArea()))
}

func TestTagFilter(t *testing.T) {
	assert.Equal(t, `["amenity"~"^(bar|pub)$"]`, TagFilter("amenity", schema.Values("bar", "pub")))
	assert.Equal(t, `["building"]`, TagFilter("building", schema.AnyValue()))
	assert.Equal(t, `["shop"~"^(e\\.cigarette)$"]`, TagFilter("shop", schema.Values("e.cigarette")))
	assert.Equal(t, `["name"~"^(say \"hi\")$"]`, TagFilter("name", schema.Values(`say "hi"`)))
}

func TestFeatureQuery(t *testing.T) {
	q := FeatureQuery(testArea(), "leisure", schema.Values("park"), 90*time.Second)
	assert.Contains(t, q, "[out:json][timeout:90];")
	assert.Contains(t, q, `node["leisure"~"^(park)$"](poly:"51.5130000 -0.1520000`)
	assert.Contains(t, q, `way["leisure"~"^(park)$"](poly:`)
	assert.Contains(t, q, `relation["leisure"~"^(park)$"](poly:`)
	assert.Contains(t, q, ");out body;>;out skel qt;")

	assert.Contains(t, FeatureQuery(testArea(), "k", schema.AnyValue(), 0), "[timeout:180]")
}

func TestHighwayQuery(t *testing.T) {
	q := HighwayQuery(testArea(), time.Minute)
	assert.Contains(t, q, `way["highway"]["area"!="yes"]`)
	assert.Contains(t, q, `["highway"!~"^(motorway|motorway_link|`)
	assert.Contains(t, q, `["access"!~"^(private|customers)$"]`)
	assert.NotContains(t, q, "node[")
}
