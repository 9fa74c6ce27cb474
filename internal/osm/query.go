package osm

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/landuse-cli/internal/region"
	"github.com/sells-group/landuse-cli/internal/schema"
)

// excludedHighways are highway values that pedestrians cannot use or that are
// not built yet.
var excludedHighways = []string{
	"motorway", "motorway_link", "bus_guideway", "escape", "raceway",
	"proposed", "planned", "abandoned", "platform", "construction",
}

// FeatureQuery renders the Overpass QL for every node, way and relation inside
// area carrying key with one of values. Referenced ways and nodes are
// returned too so geometries can be rebuilt.
func FeatureQuery(area *geom.Polygon, key string, values schema.TagValues, timeout time.Duration) string {
	filter := TagFilter(key, values) + "(poly:" + quote(PolyFilter(area)) + ")"
	var b strings.Builder
	b.WriteString(header(timeout))
	b.WriteString("(")
	for _, kind := range []string{"node", "way", "relation"} {
		b.WriteString(kind)
		b.WriteString(filter)
		b.WriteString(";")
	}
	b.WriteString(");out body;>;out skel qt;")
	return b.String()
}

// HighwayQuery renders the Overpass QL for the walkable street network
// inside area.
func HighwayQuery(area *geom.Polygon, timeout time.Duration) string {
	var b strings.Builder
	b.WriteString(header(timeout))
	b.WriteString(`(way["highway"]["area"!="yes"]`)
	b.WriteString(`["highway"!~` + quote(anchored(excludedHighways)) + `]`)
	b.WriteString(`["service"!~"^(parking_aisle)$"]["access"!~"^(private|customers)$"]["indoor"!="yes"]`)
	b.WriteString("(poly:" + quote(PolyFilter(area)) + "););out body;>;out skel qt;")
	return b.String()
}

func header(timeout time.Duration) string {
	secs := int(timeout / time.Second)
	if secs <= 0 {
		secs = 180
	}
	return "[out:json][timeout:" + strconv.Itoa(secs) + "];"
}

// TagFilter renders a key-presence filter for any value or an exact-match
// regex over the value list.
func TagFilter(key string, values schema.TagValues) string {
	if values.Any {
		return "[" + quote(key) + "]"
	}
	return "[" + quote(key) + "~" + quote(anchored(values.List)) + "]"
}

func anchored(values []string) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = regexp.QuoteMeta(v)
	}
	return "^(" + strings.Join(parts, "|") + ")$"
}

// PolyFilter lists the exterior ring of a lon/lat polygon as the
// "lat lon lat lon ..." string Overpass expects, without the closing vertex.
func PolyFilter(area *geom.Polygon) string {
	ring := region.Coords(area)
	if n := len(ring); n > 1 && ring[0].Equal(geom.XY, ring[n-1]) {
		ring = ring[:n-1]
	}
	parts := make([]string, 0, 2*len(ring))
	for _, c := range ring {
		parts = append(parts,
			strconv.FormatFloat(c[1], 'f', 7, 64),
			strconv.FormatFloat(c[0], 'f', 7, 64))
	}
	return strings.Join(parts, " ")
}

func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
