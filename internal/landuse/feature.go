package landuse

import (
	"strconv"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/landuse-cli/internal/schema"
	"github.com/sells-group/landuse-cli/internal/sink"
)

// CategoryColumn is the name of the category column in the landuse layer.
const CategoryColumn = "cat_key"

// RawFeature is one element returned by a Source, with geometry in EPSG:4326.
type RawFeature struct {
	Kind     string // node, way or relation
	ID       int64
	Tags     map[string]string
	Geometry geom.T
}

// SourceID identifies the element in its source, e.g. "way/4242".
func (f RawFeature) SourceID() string {
	return f.Kind + "/" + strconv.FormatInt(f.ID, 10)
}

// Feature is a normalized feature: the representative point of one raw
// feature in the working CRS, tagged with the filter that produced it.
type Feature struct {
	ID        string
	Category  string
	TagKey    string
	TagValues string // JSON array, or "true" for any value
	Geom      *geom.Point
}

// Values decodes the tag values the feature was fetched with.
func (f Feature) Values() (schema.TagValues, error) {
	return schema.ParseTagValues(f.TagValues)
}

// Landuse is one row of the aggregated set.
type Landuse struct {
	ID       string
	Category string
	Geom     *geom.Point
}

// Set is the aggregated landuse collection handed to the accessibility join.
type Set struct {
	CRS  int
	Rows []Landuse
}

// Len returns the number of rows.
func (s *Set) Len() int { return len(s.Rows) }

// CountByCategory returns the number of rows per registry category, including
// categories without rows.
func (s *Set) CountByCategory(reg *schema.Registry) map[string]int {
	counts := make(map[string]int, reg.Len())
	for _, k := range reg.Keys() {
		counts[k] = 0
	}
	for _, r := range s.Rows {
		counts[r.Category]++
	}
	return counts
}

// Validate checks that every row's category is registered and that IDs are
// unique.
func (s *Set) Validate(reg *schema.Registry) error {
	seen := make(map[string]bool, len(s.Rows))
	for _, r := range s.Rows {
		if !reg.Has(r.Category) {
			return &SchemaViolation{Category: r.Category, Reason: "landuse row " + r.ID + " has unregistered category"}
		}
		if seen[r.ID] {
			return &SchemaViolation{Category: r.Category, Reason: "duplicate landuse id " + r.ID}
		}
		seen[r.ID] = true
	}
	return nil
}

// Layer converts the set to a persistable layer with columns {id, cat_key}.
func (s *Set) Layer(name string) *sink.Layer {
	l := &sink.Layer{
		Name: name,
		CRS:  s.CRS,
		Columns: []sink.Column{
			{Name: "id", Type: sink.Text},
			{Name: CategoryColumn, Type: sink.Text},
		},
		Features: make([]sink.Feature, len(s.Rows)),
	}
	for i, r := range s.Rows {
		l.Features[i] = sink.Feature{Geom: r.Geom, Values: []any{r.ID, r.Category}}
	}
	return l
}
