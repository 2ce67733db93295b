// Package provider defines the feature-provider boundary: the operations
// a backing store adapter exposes and the error taxonomy callers switch on.
package provider

import (
	"context"
	"errors"

	"github.com/timtuun/pygeoapi/internal/model"
)

var (
	// ErrInvalidRange is returned for a datetime range with both bounds absent.
	ErrInvalidRange = errors.New("datetime range start and end are both absent")

	// ErrInvalidIdentifier is returned when an identifier string cannot be
	// parsed into the store's native id type.
	ErrInvalidIdentifier = errors.New("invalid feature identifier")

	// ErrNotFound signals a single-record lookup miss. It is an explicit
	// absence, not a store fault.
	ErrNotFound = errors.New("feature not found")
)

// FieldType is the inferred scalar type of a feature property.
type FieldType string

const (
	FieldString   FieldType = "string"
	FieldFloat    FieldType = "float"
	FieldInt      FieldType = "int"
	FieldDatetime FieldType = "datetime"
)

// Provider translates abstract feature queries into a backing store's
// native vocabulary and normalizes results. Store failures propagate
// wrapped but unchanged in kind; no retry or timeout policy lives here.
type Provider interface {
	// Query runs count + bounded fetch for the given parameters and wraps
	// the result as a FeatureCollection.
	Query(ctx context.Context, q model.QueryParams) (*model.FeatureCollection, error)

	// Get fetches a single feature by its normalized identifier.
	Get(ctx context.Context, identifier string) (*model.Feature, error)

	// Create inserts a new feature and returns its normalized identifier.
	Create(ctx context.Context, feature model.Feature) (string, error)

	// Update overwrites the supplied fields of an existing feature; fields
	// not present in the update are left untouched.
	Update(ctx context.Context, identifier string, feature model.Feature) error

	// Delete removes a feature; deleting a nonexistent identifier is not
	// an error.
	Delete(ctx context.Context, identifier string) error

	// Fields samples the stored documents and returns the advisory
	// property-name → type catalog. Recomputed fully on each call.
	Fields(ctx context.Context) (map[string]FieldType, error)
}
