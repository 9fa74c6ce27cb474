package schema

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Load reads a registry from a YAML file. The file is a mapping of category
// keys to mappings of tag keys to value lists; `true` stands for any value:
//
//	parks:
//	  leisure: [park, garden]
//	buildings:
//	  building: true
//
// Category and tag key order follows the file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "schema: read %s", path)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, eris.Wrapf(err, "schema: load %s", path)
	}
	return r, nil
}

// Parse decodes a YAML registry document.
func Parse(data []byte) (*Registry, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "schema: parse yaml")
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, &ViolationError{Reason: "empty schema document"}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, &ViolationError{Reason: "schema root must be a mapping"}
	}

	var categories []Category
	for i := 0; i+1 < len(root.Content); i += 2 {
		catKey := root.Content[i].Value
		body := root.Content[i+1]
		if body.Kind != yaml.MappingNode {
			return nil, &ViolationError{Category: catKey, Reason: "category must map tag keys to values"}
		}
		cat := Category{Key: catKey}
		for j := 0; j+1 < len(body.Content); j += 2 {
			tagKey := body.Content[j].Value
			vals, err := decodeValues(catKey, tagKey, body.Content[j+1])
			if err != nil {
				return nil, err
			}
			cat.Tags = append(cat.Tags, TagSpec{Key: tagKey, Values: vals})
		}
		categories = append(categories, cat)
	}
	return New(categories)
}

func decodeValues(cat, tag string, n *yaml.Node) (TagValues, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		var anyVal bool
		if n.ShortTag() == "!!bool" {
			if err := n.Decode(&anyVal); err == nil && anyVal {
				return AnyValue(), nil
			}
		}
		return TagValues{}, &ViolationError{Category: cat, TagKey: tag, Reason: "scalar values must be true; use a list for specific values"}
	case yaml.SequenceNode:
		var list []string
		if err := n.Decode(&list); err != nil {
			return TagValues{}, eris.Wrapf(err, "schema: decode values for %s.%s", cat, tag)
		}
		return TagValues{List: list}, nil
	default:
		return TagValues{}, &ViolationError{Category: cat, TagKey: tag, Reason: "values must be a list or true"}
	}
}

// Marshal renders the registry as YAML in the format Load accepts.
func (r *Registry) Marshal() ([]byte, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, c := range r.categories {
		body := &yaml.Node{Kind: yaml.MappingNode}
		for _, t := range c.Tags {
			var val *yaml.Node
			if t.Values.Any {
				val = &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: "true"}
			} else {
				val = &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
				for _, v := range t.Values.List {
					val.Content = append(val.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v})
				}
			}
			body.Content = append(body.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: t.Key}, val)
		}
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: c.Key}, body)
	}
	data, err := yaml.Marshal(&yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}})
	if err != nil {
		return nil, eris.Wrap(err, "schema: marshal yaml")
	}
	return data, nil
}
