// Package mongodb adapts the generic feature-provider boundary onto a
// MongoDB collection: abstract filters become native filter/sort
// documents and stored documents come back with _id normalized into a
// string id.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/timtuun/pygeoapi/internal/model"
	"github.com/timtuun/pygeoapi/internal/observability"
	"github.com/timtuun/pygeoapi/internal/provider"
)

const defaultDatetimeField = "datetime"

// Collection is the slice of *mongo.Collection the provider needs. The
// connected collection handle is owned by the caller; tests substitute an
// in-memory fake built on mongo.NewCursorFromDocuments.
type Collection interface {
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
}

var _ Collection = (*mongo.Collection)(nil)

type Config struct {
	// DatetimeField is the property holding the designated timestamp;
	// defaults to "datetime".
	DatetimeField string
	Logger        zerolog.Logger
}

// Provider is stateless per request apart from the collection handle.
type Provider struct {
	col           Collection
	datetimeField string
	log           zerolog.Logger
}

func New(col Collection, cfg Config) *Provider {
	field := cfg.DatetimeField
	if field == "" {
		field = defaultDatetimeField
	}
	return &Provider{col: col, datetimeField: field, log: cfg.Logger}
}

// storedFeature is the document shape on the Mongo side. Unknown
// top-level keys land in the inline map so they survive normalization.
type storedFeature struct {
	ID         any             `bson:"_id,omitempty"`
	Geometry   *model.Geometry `bson:"geometry,omitempty"`
	Properties map[string]any  `bson:"properties,omitempty"`
	Extra      map[string]any  `bson:",inline"`
}

func (s storedFeature) normalize() model.Feature {
	f := model.Feature{
		Geometry:   s.Geometry,
		Properties: s.Properties,
		Extra:      s.Extra,
	}
	switch id := s.ID.(type) {
	case primitive.ObjectID:
		f.ID = id.Hex()
	case nil:
	default:
		f.ID = fmt.Sprintf("%v", id)
	}
	return f
}

// document builds the stored form of a feature. The generic id field is
// never part of it; identifier handling is per-operation.
func document(f model.Feature) bson.M {
	doc := bson.M{}
	for k, v := range f.Extra {
		doc[k] = v
	}
	if f.Geometry != nil {
		doc["geometry"] = bson.M{"type": f.Geometry.Type, "coordinates": f.Geometry.Coordinates}
	}
	if f.Properties != nil {
		doc["properties"] = f.Properties
	}
	return doc
}

func parseIdentifier(identifier string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(identifier)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %q", provider.ErrInvalidIdentifier, identifier)
	}
	return oid, nil
}

// fetchList runs the two store round trips: a count over the filter alone
// and a sorted, skipped, capped fetch. The two may observe different
// snapshots under concurrent writes; no linkage is attempted. A negative
// or zero maxItems disables the cap.
func (p *Provider) fetchList(ctx context.Context, filter bson.D, sort bson.D, skip, maxItems int64) ([]model.Feature, int64, error) {
	t0 := time.Now()
	total, err := p.col.CountDocuments(ctx, filter)
	observability.ObserveStore("count", err == nil, time.Since(t0).Seconds())
	if err != nil {
		return nil, 0, fmt.Errorf("count documents: %w", err)
	}

	fo := options.Find().SetSkip(skip)
	if len(sort) > 0 {
		fo.SetSort(sort)
	}
	if maxItems > 0 {
		fo.SetLimit(maxItems)
	}

	t1 := time.Now()
	cur, err := p.col.Find(ctx, filter, fo)
	observability.ObserveStore("find", err == nil, time.Since(t1).Seconds())
	if err != nil {
		return nil, 0, fmt.Errorf("find documents: %w", err)
	}
	defer func() { _ = cur.Close(ctx) }()

	var items []storedFeature
	if err := cur.All(ctx, &items); err != nil {
		return nil, 0, fmt.Errorf("decode documents: %w", err)
	}

	features := make([]model.Feature, 0, len(items))
	for _, item := range items {
		features = append(features, item.normalize())
	}
	return features, total, nil
}

// Query translates the abstract parameters, runs count + fetch and wraps
// the result. In hits mode the fetched features are discarded but the
// true match count is kept.
func (p *Provider) Query(ctx context.Context, q model.QueryParams) (*model.FeatureCollection, error) {
	filter, err := buildFilter(q, p.datetimeField)
	if err != nil {
		return nil, err
	}
	sort := buildSort(q.SortBy, p.datetimeField)

	p.log.Debug().
		Interface("filter", filter).
		Int64("offset", q.Offset).
		Int64("limit", q.Limit).
		Msg("feature query")

	features, total, err := p.fetchList(ctx, filter, sort, q.Offset, q.Limit)
	if err != nil {
		return nil, err
	}

	if q.ResultType == model.ResultTypeHits {
		features = []model.Feature{}
	}

	return &model.FeatureCollection{
		Type:           "FeatureCollection",
		Features:       features,
		NumberMatched:  total,
		NumberReturned: len(features),
	}, nil
}

// Get fetches at most one feature by identifier.
func (p *Provider) Get(ctx context.Context, identifier string) (*model.Feature, error) {
	oid, err := parseIdentifier(identifier)
	if err != nil {
		return nil, err
	}

	features, _, err := p.fetchList(ctx, bson.D{{Key: "_id", Value: oid}}, nil, 0, 1)
	if err != nil {
		return nil, err
	}
	if len(features) == 0 {
		return nil, fmt.Errorf("%w: %q", provider.ErrNotFound, identifier)
	}
	return &features[0], nil
}

// Create inserts the feature as given. No id stripping happens here: a
// populated ID is written through as a literal "id" field, mirroring the
// store's own permissiveness (callers are expected to omit it).
func (p *Provider) Create(ctx context.Context, feature model.Feature) (string, error) {
	doc := document(feature)
	if feature.ID != "" {
		doc["id"] = feature.ID
	}

	t0 := time.Now()
	res, err := p.col.InsertOne(ctx, doc)
	observability.ObserveStore("insert", err == nil, time.Since(t0).Seconds())
	if err != nil {
		return "", fmt.Errorf("insert feature: %w", err)
	}

	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		return oid.Hex(), nil
	}
	return fmt.Sprintf("%v", res.InsertedID), nil
}

// Update strips the top-level generic id and field-sets the remaining
// keys onto the stored document; untouched fields survive. An id key
// nested inside properties is deliberately written through as-is.
func (p *Provider) Update(ctx context.Context, identifier string, feature model.Feature) error {
	oid, err := parseIdentifier(identifier)
	if err != nil {
		return err
	}

	doc := document(feature)

	t0 := time.Now()
	_, err = p.col.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: oid}},
		bson.D{{Key: "$set", Value: doc}},
	)
	observability.ObserveStore("update", err == nil, time.Since(t0).Seconds())
	if err != nil {
		return fmt.Errorf("update feature %q: %w", identifier, err)
	}
	return nil
}

// Delete removes at most one feature; zero matches is success.
func (p *Provider) Delete(ctx context.Context, identifier string) error {
	oid, err := parseIdentifier(identifier)
	if err != nil {
		return err
	}

	t0 := time.Now()
	_, err = p.col.DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}})
	observability.ObserveStore("delete", err == nil, time.Since(t0).Seconds())
	if err != nil {
		return fmt.Errorf("delete feature %q: %w", identifier, err)
	}
	return nil
}
