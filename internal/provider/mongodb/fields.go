package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/timtuun/pygeoapi/internal/provider"
)

// Fields samples every stored document and infers a scalar type per
// property name, first win. The catalog is advisory metadata, recomputed
// fully on each call; the literal key "datetime" is always forced to the
// datetime type since it is the only datetime the sort path understands.
func (p *Provider) Fields(ctx context.Context) (map[string]provider.FieldType, error) {
	features, _, err := p.fetchList(ctx, bson.D{}, nil, 0, -1)
	if err != nil {
		return nil, err
	}

	fields := map[string]provider.FieldType{}
	for _, f := range features {
		for key, val := range f.Properties {
			if _, seen := fields[key]; seen {
				continue
			}
			if t, ok := fieldType(val); ok {
				fields[key] = t
			}
		}
	}

	fields["datetime"] = provider.FieldDatetime
	return fields, nil
}

func fieldType(v any) (provider.FieldType, bool) {
	switch v.(type) {
	case string:
		return provider.FieldString, true
	case float64, float32:
		return provider.FieldFloat, true
	// booleans classify as int, matching the store's loose numeric typing
	case bool, int, int32, int64:
		return provider.FieldInt, true
	default:
		return "", false
	}
}
