package mongodb

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// fakeCollection is an in-memory stand-in for *mongo.Collection. It
// evaluates exactly the filter vocabulary the provider emits ($and, $eq,
// $gte, $lt, $geoWithin/$box, _id equality) and plays the role miniredis
// plays for redis-backed code: behavior tests without a live server.
type fakeCollection struct {
	docs []bson.M
}

func (c *fakeCollection) Find(_ context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error) {
	matched := c.matching(filter)

	fo := mergeFindOptions(opts)
	if fo.Sort != nil {
		sortSpec, ok := fo.Sort.(bson.D)
		if !ok {
			return nil, fmt.Errorf("fake: unsupported sort type %T", fo.Sort)
		}
		sortDocs(matched, sortSpec)
	}
	if fo.Skip != nil {
		skip := int(*fo.Skip)
		if skip > len(matched) {
			skip = len(matched)
		}
		matched = matched[skip:]
	}
	if fo.Limit != nil && int(*fo.Limit) < len(matched) {
		matched = matched[:*fo.Limit]
	}

	out := make([]interface{}, len(matched))
	for i, d := range matched {
		out[i] = d
	}
	return mongo.NewCursorFromDocuments(out, nil, nil)
}

func (c *fakeCollection) CountDocuments(_ context.Context, filter interface{}, _ ...*options.CountOptions) (int64, error) {
	return int64(len(c.matching(filter))), nil
}

func (c *fakeCollection) InsertOne(_ context.Context, document interface{}, _ ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	doc, ok := document.(bson.M)
	if !ok {
		return nil, fmt.Errorf("fake: unsupported document type %T", document)
	}
	stored := bson.M{}
	for k, v := range doc {
		stored[k] = v
	}
	if _, ok := stored["_id"]; !ok {
		stored["_id"] = primitive.NewObjectID()
	}
	c.docs = append(c.docs, stored)
	return &mongo.InsertOneResult{InsertedID: stored["_id"]}, nil
}

func (c *fakeCollection) UpdateOne(_ context.Context, filter interface{}, update interface{}, _ ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	set, err := extractSet(update)
	if err != nil {
		return nil, err
	}
	for _, doc := range c.docs {
		if matchDoc(filter, doc) {
			for k, v := range set {
				doc[k] = v
			}
			return &mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil
		}
	}
	return &mongo.UpdateResult{}, nil
}

func (c *fakeCollection) DeleteOne(_ context.Context, filter interface{}, _ ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	for i, doc := range c.docs {
		if matchDoc(filter, doc) {
			c.docs = append(c.docs[:i], c.docs[i+1:]...)
			return &mongo.DeleteResult{DeletedCount: 1}, nil
		}
	}
	return &mongo.DeleteResult{}, nil
}

func (c *fakeCollection) matching(filter interface{}) []bson.M {
	var out []bson.M
	for _, doc := range c.docs {
		if matchDoc(filter, doc) {
			out = append(out, doc)
		}
	}
	return out
}

func extractSet(update interface{}) (bson.M, error) {
	ud, ok := update.(bson.D)
	if !ok {
		return nil, fmt.Errorf("fake: unsupported update type %T", update)
	}
	for _, e := range ud {
		if e.Key == "$set" {
			if m, ok := e.Value.(bson.M); ok {
				return m, nil
			}
			return nil, fmt.Errorf("fake: unsupported $set type %T", e.Value)
		}
	}
	return nil, fmt.Errorf("fake: update without $set")
}

func mergeFindOptions(opts []*options.FindOptions) *options.FindOptions {
	out := options.Find()
	for _, o := range opts {
		if o == nil {
			continue
		}
		if o.Sort != nil {
			out.Sort = o.Sort
		}
		if o.Skip != nil {
			out.Skip = o.Skip
		}
		if o.Limit != nil {
			out.Limit = o.Limit
		}
	}
	return out
}

func matchDoc(filter interface{}, doc bson.M) bool {
	fd, ok := filter.(bson.D)
	if !ok {
		return false
	}
	for _, e := range fd {
		if e.Key == "$and" {
			subs, ok := e.Value.(bson.A)
			if !ok {
				return false
			}
			for _, sub := range subs {
				if !matchDoc(sub, doc) {
					return false
				}
			}
			continue
		}
		if !matchField(doc, e.Key, e.Value) {
			return false
		}
	}
	return true
}

func matchField(doc bson.M, path string, cond interface{}) bool {
	val, found := lookupPath(doc, path)

	ops, isOps := cond.(bson.D)
	if !isOps {
		return found && compareValues(val, cond) == 0
	}

	for _, op := range ops {
		switch op.Key {
		case "$eq":
			if !found || compareValues(val, op.Value) != 0 {
				return false
			}
		case "$gte":
			if !found || compareValues(val, op.Value) < 0 {
				return false
			}
		case "$lt":
			if !found || compareValues(val, op.Value) >= 0 {
				return false
			}
		case "$geoWithin":
			if !found || !withinBox(val, op.Value) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func lookupPath(doc bson.M, path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	var cur interface{} = doc
	for _, p := range parts {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case bson.M:
		return m, true
	case map[string]interface{}:
		return m, true
	default:
		return nil, false
	}
}

// compareValues orders two scalars of the same kind; unequal kinds or
// non-scalars compare as unequal (1).
func compareValues(a, b interface{}) int {
	if at, ok := a.(time.Time); ok {
		if bt, ok := b.(time.Time); ok {
			switch {
			case at.Before(bt):
				return -1
			case at.After(bt):
				return 1
			default:
				return 0
			}
		}
		return 1
	}
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
		return 1
	}
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return strings.Compare(as, bs)
		}
		return 1
	}
	if ao, ok := a.(primitive.ObjectID); ok {
		if bo, ok := b.(primitive.ObjectID); ok {
			if ao == bo {
				return 0
			}
			return 1
		}
		return 1
	}
	return 1
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// withinBox checks a Point geometry against a $box of two corner points.
func withinBox(geom interface{}, spec interface{}) bool {
	ops, ok := spec.(bson.D)
	if !ok {
		return false
	}
	var box bson.A
	for _, e := range ops {
		if e.Key == "$box" {
			box, ok = e.Value.(bson.A)
			if !ok {
				return false
			}
		}
	}
	if len(box) != 2 {
		return false
	}
	c1, ok1 := toPoint(box[0])
	c2, ok2 := toPoint(box[1])
	if !ok1 || !ok2 {
		return false
	}

	gm, ok := asMap(geom)
	if !ok {
		return false
	}
	pt, ok := toPoint(gm["coordinates"])
	if !ok {
		return false
	}

	minX, maxX := min(c1[0], c2[0]), max(c1[0], c2[0])
	minY, maxY := min(c1[1], c2[1]), max(c1[1], c2[1])
	return pt[0] >= minX && pt[0] <= maxX && pt[1] >= minY && pt[1] <= maxY
}

func toPoint(v interface{}) ([2]float64, bool) {
	var raw []interface{}
	switch c := v.(type) {
	case bson.A:
		raw = c
	case []interface{}:
		raw = c
	case []float64:
		if len(c) != 2 {
			return [2]float64{}, false
		}
		return [2]float64{c[0], c[1]}, true
	default:
		return [2]float64{}, false
	}
	if len(raw) != 2 {
		return [2]float64{}, false
	}
	x, ok1 := toFloat(raw[0])
	y, ok2 := toFloat(raw[1])
	if !ok1 || !ok2 {
		return [2]float64{}, false
	}
	return [2]float64{x, y}, true
}

func sortDocs(docs []bson.M, spec bson.D) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, s := range spec {
			dir := 1
			if d, ok := toFloat(s.Value); ok && d < 0 {
				dir = -1
			}
			av, _ := lookupPath(docs[i], s.Key)
			bv, _ := lookupPath(docs[j], s.Key)
			c := compareValues(av, bv)
			if c == 0 {
				continue
			}
			if dir < 0 {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}
