package landuse

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/landuse-cli/internal/schema"
)

// ErrEmptyResult is returned by a Source when no feature matches the filter
// inside the fetch area. The pipeline absorbs it.
var ErrEmptyResult = eris.New("landuse: empty result")

// SchemaViolation is the error type for categories or tag keys referenced
// outside the registry and for malformed fetch input.
type SchemaViolation = schema.ViolationError

// SourceUnavailableError reports a failure of the external feature source for
// one category/tag-key fetch.
type SourceUnavailableError struct {
	Category string
	TagKey   string
	Err      error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("landuse: source unavailable for %s/%s: %v", e.Category, e.TagKey, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

// GeometryError reports a feature whose representative point could not be
// derived: empty geometry, unsupported type, or a non-finite reprojection.
type GeometryError struct {
	Category string
	TagKey   string
	SourceID string
	Err      error
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("landuse: geometry error for %s in %s/%s: %v", e.SourceID, e.Category, e.TagKey, e.Err)
}

func (e *GeometryError) Unwrap() error { return e.Err }

// IsEmptyResult reports whether err is, or wraps, ErrEmptyResult.
func IsEmptyResult(err error) bool { return errors.Is(err, ErrEmptyResult) }

// IsSourceUnavailable reports whether err is, or wraps, a SourceUnavailableError.
func IsSourceUnavailable(err error) bool {
	var su *SourceUnavailableError
	return errors.As(err, &su)
}

// IsSchemaViolation reports whether err is, or wraps, a SchemaViolation.
func IsSchemaViolation(err error) bool {
	var sv *SchemaViolation
	return errors.As(err, &sv)
}
