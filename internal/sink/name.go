package sink

import "github.com/sells-group/landuse-cli/internal/naming"

// PlacesName is the layer name of a region's landuse set.
func PlacesName(locationKey string) string { return naming.Slug(locationKey) + "_places" }

// NodesName is the layer name of a region's scored network nodes.
func NodesName(locationKey string) string { return naming.Slug(locationKey) }
