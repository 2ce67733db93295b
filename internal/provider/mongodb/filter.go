package mongodb

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/timtuun/pygeoapi/internal/model"
	"github.com/timtuun/pygeoapi/internal/provider"
)

// buildFilter combines all active constraints into one $and document.
// No constraints yields an empty filter, which matches every document.
func buildFilter(q model.QueryParams, datetimeField string) (bson.D, error) {
	var and bson.A

	// A bbox contributes a constraint only when exactly 4 coordinates are
	// supplied; any other count is ignored outright.
	if len(q.BBox) == 4 {
		box := bson.A{
			bson.A{q.BBox[0], q.BBox[1]},
			bson.A{q.BBox[2], q.BBox[3]},
		}
		and = append(and, bson.D{{Key: "geometry", Value: bson.D{
			{Key: "$geoWithin", Value: bson.D{{Key: "$box", Value: box}}},
		}}})
	}

	if q.Datetime != nil {
		cond, err := datetimeCondition(*q.Datetime, datetimeField)
		if err != nil {
			return nil, err
		}
		and = append(and, cond)
	}

	for _, p := range q.Properties {
		and = append(and, bson.D{{
			Key:   "properties." + p.Name,
			Value: bson.D{{Key: "$eq", Value: p.Value}},
		}})
	}

	if len(and) == 0 {
		return bson.D{}, nil
	}
	return bson.D{{Key: "$and", Value: and}}, nil
}

// Mongo datetimes have millisecond resolution, so an upper bound with a
// sub-millisecond component is ceiled to the next whole millisecond.
// The half-open query [start, ceiledEnd) then never excludes a record
// whose true timestamp falls inside [start, end).
func datetimeCondition(dr model.DatetimeRange, datetimeField string) (bson.D, error) {
	path := "properties." + datetimeField

	var end *time.Time
	if dr.End != nil {
		e := ceilMillis(*dr.End)
		end = &e
	}

	switch {
	case dr.Start != nil && end != nil:
		return bson.D{{Key: path, Value: bson.D{
			{Key: "$gte", Value: *dr.Start},
			{Key: "$lt", Value: *end},
		}}}, nil
	case dr.Start != nil:
		return bson.D{{Key: path, Value: bson.D{{Key: "$gte", Value: *dr.Start}}}}, nil
	case end != nil:
		return bson.D{{Key: path, Value: bson.D{{Key: "$lt", Value: *end}}}}, nil
	default:
		return nil, fmt.Errorf("%w", provider.ErrInvalidRange)
	}
}

// ceilMillis returns the smallest whole millisecond >= t.
func ceilMillis(t time.Time) time.Time {
	trunc := t.Truncate(time.Millisecond)
	if trunc.Equal(t) {
		return t
	}
	return trunc.Add(time.Millisecond)
}

// buildSort maps sort specs onto native (path, direction) pairs, primary
// sort first. The property name "datetime" is rewritten to the configured
// datetime field; duplicates pass through as given.
func buildSort(specs []model.SortSpec, datetimeField string) bson.D {
	if len(specs) == 0 {
		return nil
	}
	sort := make(bson.D, 0, len(specs))
	for _, s := range specs {
		name := s.Property
		if name == "datetime" {
			name = datetimeField
		}
		dir := 1
		if s.Descending {
			dir = -1
		}
		sort = append(sort, bson.E{Key: "properties." + name, Value: dir})
	}
	return sort
}
