// Package model defines core domain types shared across the service.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Geometry is a GeoJSON geometry. Coordinates are carried opaquely: the
// provider never interprets them, Mongo does.
type Geometry struct {
	Type        string `json:"type" bson:"type"`
	Coordinates any    `json:"coordinates" bson:"coordinates"`
}

// Feature is a geospatial record as exposed to callers. ID is the
// normalized string identifier and never appears in the stored document;
// Extra holds unknown top-level keys so they round-trip untouched.
type Feature struct {
	ID         string
	Geometry   *Geometry
	Properties map[string]any
	Extra      map[string]any
}

func (f Feature) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(f.Extra)+3)
	for k, v := range f.Extra {
		out[k] = v
	}
	if f.ID != "" {
		out["id"] = f.ID
	}
	if f.Geometry != nil {
		out["geometry"] = f.Geometry
	}
	if f.Properties != nil {
		out["properties"] = f.Properties
	}
	return json.Marshal(out)
}

func (f *Feature) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*f = Feature{}
	for k, v := range raw {
		switch k {
		case "id":
			if err := json.Unmarshal(v, &f.ID); err != nil {
				return fmt.Errorf("feature id: %w", err)
			}
		case "geometry":
			if string(v) == "null" {
				continue
			}
			g := &Geometry{}
			if err := json.Unmarshal(v, g); err != nil {
				return fmt.Errorf("feature geometry: %w", err)
			}
			f.Geometry = g
		case "properties":
			if err := json.Unmarshal(v, &f.Properties); err != nil {
				return fmt.Errorf("feature properties: %w", err)
			}
		default:
			var val any
			if err := json.Unmarshal(v, &val); err != nil {
				return err
			}
			if f.Extra == nil {
				f.Extra = map[string]any{}
			}
			f.Extra[k] = val
		}
	}
	return nil
}

// FeatureCollection is the wire shape of a query response.
type FeatureCollection struct {
	Type           string    `json:"type"`
	Features       []Feature `json:"features"`
	NumberMatched  int64     `json:"numberMatched"`
	NumberReturned int       `json:"numberReturned"`
}

// DatetimeRange is a half-open or fully-open interval over the designated
// datetime property. Both bounds nil is invalid.
type DatetimeRange struct {
	Start *time.Time
	End   *time.Time
}

// SortSpec orders results by one property; datetime is rewritten to the
// configured datetime field by the provider.
type SortSpec struct {
	Property   string
	Descending bool
}

// PropertyFilter is one property equality constraint.
type PropertyFilter struct {
	Name  string
	Value string
}

const (
	ResultTypeResults = "results"
	ResultTypeHits    = "hits"
)

// QueryParams are the abstract query parameters the provider translates.
// A negative Limit disables the item cap.
type QueryParams struct {
	Offset     int64
	Limit      int64
	ResultType string
	BBox       []float64
	Datetime   *DatetimeRange
	Properties []PropertyFilter
	SortBy     []SortSpec
}

var datetimeLayouts = []string{time.RFC3339Nano, "2006-01-02"}

func parseInstant(s string) (time.Time, error) {
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized datetime %q", s)
}

// ParseDatetimeRange parses the OGC datetime parameter: "start/end",
// "../end", "start/.." or a single instant. An instant t becomes the
// interval [t, t+1µs) so that equality matches survive the half-open
// range query.
func ParseDatetimeRange(s string) (*DatetimeRange, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	parts := strings.Split(s, "/")
	switch len(parts) {
	case 1:
		t, err := parseInstant(parts[0])
		if err != nil {
			return nil, err
		}
		end := t.Add(time.Microsecond)
		return &DatetimeRange{Start: &t, End: &end}, nil
	case 2:
		var dr DatetimeRange
		if p := strings.TrimSpace(parts[0]); p != "" && p != ".." {
			t, err := parseInstant(p)
			if err != nil {
				return nil, err
			}
			dr.Start = &t
		}
		if p := strings.TrimSpace(parts[1]); p != "" && p != ".." {
			t, err := parseInstant(p)
			if err != nil {
				return nil, err
			}
			dr.End = &t
		}
		if dr.Start == nil && dr.End == nil {
			return nil, errors.New("datetime interval is open on both ends")
		}
		return &dr, nil
	default:
		return nil, fmt.Errorf("expected at most one '/' in datetime, got %q", s)
	}
}

// ParseSortBy parses a comma-separated sortby parameter. Each entry is a
// property name with an optional +/- prefix; order is preserved and
// duplicates pass through as given.
func ParseSortBy(s string) ([]SortSpec, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var specs []SortSpec
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		spec := SortSpec{Property: part}
		switch part[0] {
		case '+':
			spec.Property = part[1:]
		case '-':
			spec.Property = part[1:]
			spec.Descending = true
		}
		if spec.Property == "" {
			return nil, fmt.Errorf("empty property in sortby %q", s)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}
