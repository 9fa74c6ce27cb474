// Package schema defines the landuse category registry: an ordered, immutable
// mapping from category keys to the OSM tag filters that identify them.
package schema

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/rotisserie/eris"
)

// TagValues is either a list of accepted values for a tag key or the "any
// value" sentinel.
type TagValues struct {
	Any  bool
	List []string
}

// AnyValue matches every value of a tag key.
func AnyValue() TagValues { return TagValues{Any: true} }

// Values matches the given tag values.
func Values(vals ...string) TagValues { return TagValues{List: slices.Clone(vals)} }

// Matches reports whether a feature's tag value satisfies the filter.
func (v TagValues) Matches(value string) bool {
	if v.Any {
		return true
	}
	return slices.Contains(v.List, value)
}

// Equal reports whether two filters are identical, including value order.
func (v TagValues) Equal(o TagValues) bool {
	if v.Any || o.Any {
		return v.Any == o.Any
	}
	return slices.Equal(v.List, o.List)
}

// JSON serializes the filter: a JSON array of values, or `true` for any.
func (v TagValues) JSON() string {
	if v.Any {
		return "true"
	}
	list := v.List
	if list == nil {
		list = []string{}
	}
	data, _ := json.Marshal(list)
	return string(data)
}

// String implements fmt.Stringer.
func (v TagValues) String() string { return v.JSON() }

// ParseTagValues is the inverse of TagValues.JSON.
func ParseTagValues(s string) (TagValues, error) {
	if s == "true" {
		return AnyValue(), nil
	}
	var list []string
	if err := json.Unmarshal([]byte(s), &list); err != nil {
		return TagValues{}, eris.Wrapf(err, "schema: parse tag values %q", s)
	}
	return TagValues{List: list}, nil
}

// TagSpec pairs an OSM tag key with the values accepted for it.
type TagSpec struct {
	Key    string
	Values TagValues
}

// Category is a semantic landuse grouping and its tag filters, in fetch order.
type Category struct {
	Key  string
	Tags []TagSpec
}

func (c Category) clone() Category {
	tags := make([]TagSpec, len(c.Tags))
	for i, t := range c.Tags {
		tags[i] = TagSpec{Key: t.Key, Values: TagValues{Any: t.Values.Any, List: slices.Clone(t.Values.List)}}
	}
	return Category{Key: c.Key, Tags: tags}
}

// ViolationError signals a category or tag key referenced outside the
// registry, or a registry definition that breaks its invariants.
type ViolationError struct {
	Category string
	TagKey   string
	Reason   string
}

func (e *ViolationError) Error() string {
	switch {
	case e.TagKey != "":
		return fmt.Sprintf("schema violation: category %q tag %q: %s", e.Category, e.TagKey, e.Reason)
	case e.Category != "":
		return fmt.Sprintf("schema violation: category %q: %s", e.Category, e.Reason)
	default:
		return "schema violation: " + e.Reason
	}
}

// Registry is the validated, read-only category schema.
type Registry struct {
	categories []Category
	index      map[string]int
}

// New validates the categories and builds a registry. The input slice is
// copied; later changes to it do not affect the registry.
func New(categories []Category) (*Registry, error) {
	if len(categories) == 0 {
		return nil, &ViolationError{Reason: "registry has no categories"}
	}
	r := &Registry{
		categories: make([]Category, 0, len(categories)),
		index:      make(map[string]int, len(categories)),
	}
	for _, c := range categories {
		if c.Key == "" {
			return nil, &ViolationError{Reason: "empty category key"}
		}
		if _, dup := r.index[c.Key]; dup {
			return nil, &ViolationError{Category: c.Key, Reason: "duplicate category key"}
		}
		if len(c.Tags) == 0 {
			return nil, &ViolationError{Category: c.Key, Reason: "category has no tag keys"}
		}
		seen := make(map[string]bool, len(c.Tags))
		for _, t := range c.Tags {
			if t.Key == "" {
				return nil, &ViolationError{Category: c.Key, Reason: "empty tag key"}
			}
			if seen[t.Key] {
				return nil, &ViolationError{Category: c.Key, TagKey: t.Key, Reason: "duplicate tag key"}
			}
			seen[t.Key] = true
			if !t.Values.Any && len(t.Values.List) == 0 {
				return nil, &ViolationError{Category: c.Key, TagKey: t.Key, Reason: "no tag values"}
			}
			for _, v := range t.Values.List {
				if v == "" {
					return nil, &ViolationError{Category: c.Key, TagKey: t.Key, Reason: "empty tag value"}
				}
			}
		}
		r.index[c.Key] = len(r.categories)
		r.categories = append(r.categories, c.clone())
	}
	return r, nil
}

// MustNew is New for statically defined registries.
func MustNew(categories []Category) *Registry {
	r, err := New(categories)
	if err != nil {
		panic(err)
	}
	return r
}

// Len returns the number of categories.
func (r *Registry) Len() int { return len(r.categories) }

// Keys returns the category keys in registry order.
func (r *Registry) Keys() []string {
	keys := make([]string, len(r.categories))
	for i, c := range r.categories {
		keys[i] = c.Key
	}
	return keys
}

// Categories returns a copy of every category in registry order.
func (r *Registry) Categories() []Category {
	out := make([]Category, len(r.categories))
	for i, c := range r.categories {
		out[i] = c.clone()
	}
	return out
}

// Has reports whether key names a registered category.
func (r *Registry) Has(key string) bool {
	_, ok := r.index[key]
	return ok
}

// Category returns the category for key.
func (r *Registry) Category(key string) (Category, error) {
	i, ok := r.index[key]
	if !ok {
		return Category{}, &ViolationError{Category: key, Reason: "unknown category"}
	}
	return r.categories[i].clone(), nil
}

// Tag returns the tag filter registered under a category.
func (r *Registry) Tag(category, tagKey string) (TagSpec, error) {
	c, err := r.Category(category)
	if err != nil {
		return TagSpec{}, err
	}
	for _, t := range c.Tags {
		if t.Key == tagKey {
			return t, nil
		}
	}
	return TagSpec{}, &ViolationError{Category: category, TagKey: tagKey, Reason: "unknown tag key"}
}
