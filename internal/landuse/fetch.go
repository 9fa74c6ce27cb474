package landuse

import (
	"context"
	"errors"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/landuse-cli/internal/crs"
	"github.com/sells-group/landuse-cli/internal/region"
	"github.com/sells-group/landuse-cli/internal/schema"
)

// Source returns the raw features matching one tag filter inside an area
// given in EPSG:4326. Implementations return ErrEmptyResult (or an empty
// slice) when nothing matches.
type Source interface {
	Features(ctx context.Context, area *geom.Polygon, key string, values schema.TagValues) ([]RawFeature, error)
}

// Fetch queries src for one category/tag-key pair after validating the input.
// Invalid input yields a SchemaViolation, an empty response ErrEmptyResult and
// any other source failure a *SourceUnavailableError.
func Fetch(ctx context.Context, src Source, area *geom.Polygon, category, key string, values schema.TagValues) ([]RawFeature, error) {
	if key == "" {
		return nil, &SchemaViolation{Category: category, Reason: "empty tag key"}
	}
	if !values.Any && len(values.List) == 0 {
		return nil, &SchemaViolation{Category: category, TagKey: key, Reason: "no tag values"}
	}
	if area == nil {
		return nil, &SchemaViolation{Category: category, TagKey: key, Reason: "nil fetch area"}
	}
	if area.SRID() != crs.WGS84 {
		return nil, &SchemaViolation{Category: category, TagKey: key, Reason: "fetch area must be in EPSG:4326"}
	}
	if err := region.ValidateSimple(area); err != nil {
		return nil, &SchemaViolation{Category: category, TagKey: key, Reason: err.Error()}
	}

	raw, err := src.Features(ctx, area, key, values)
	switch {
	case errors.Is(err, ErrEmptyResult):
		return nil, ErrEmptyResult
	case err != nil:
		return nil, &SourceUnavailableError{Category: category, TagKey: key, Err: err}
	case len(raw) == 0:
		return nil, ErrEmptyResult
	}
	return raw, nil
}
