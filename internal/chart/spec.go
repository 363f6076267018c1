// Package chart builds Vega-Lite visualizations for warehouse result frames:
// a drafting model proposes a spec, an inner loop repairs structural errors
// against a headless renderer, a parameter enhancer binds selection inputs to
// the real data, and an outer loop lets a vision judge demand redesigns.
package chart

import (
	"encoding/json"
	"fmt"
	"time"

	errx "github.com/crmlens/engine/internal/core/error"
	"github.com/crmlens/engine/internal/warehouse"
)

// Spec is a parsed Vega-Lite document. All transformations return fresh
// copies; a Spec is never mutated in place.
type Spec map[string]any

// ParseSpec decodes a Vega-Lite JSON document. Decode failures are parse
// failures carrying the decoder diagnostic.
func ParseSpec(text string) (Spec, error) {
	var s Spec
	if err := json.Unmarshal([]byte(text), &s); err != nil {
		return nil, errx.Parse(fmt.Sprintf("chart is not valid JSON: %v", err))
	}
	if len(s) == 0 {
		return nil, errx.Parse("chart JSON is empty")
	}
	return s, nil
}

// WithoutData returns a copy with the data block replaced by an empty values
// placeholder and any inline datasets dropped. The result renders without a
// data dependency, which is exactly what structural validation needs.
func (s Spec) WithoutData() Spec {
	out := s.clone()
	out["data"] = map[string]any{"values": []any{}}
	delete(out, "datasets")
	return out
}

// WithData returns a copy carrying the frame rows as inline data values.
func (s Spec) WithData(f *warehouse.Frame) Spec {
	out := s.clone()
	out["data"] = map[string]any{"values": DataValues(f)}
	delete(out, "datasets")
	return out
}

// JSON renders the spec with stable key ordering, so equal specs always
// serialize to identical bytes.
func (s Spec) JSON() string {
	b, err := json.MarshalIndent(s, "", " ")
	if err != nil {
		// Spec only ever holds values produced by json.Unmarshal.
		return "{}"
	}
	return string(b)
}

func (s Spec) clone() Spec {
	b, _ := json.Marshal(s)
	var out Spec
	_ = json.Unmarshal(b, &out)
	return out
}

// DataValues converts a frame into the row-object form Vega-Lite inlines.
// Temporal values become ISO strings so the temporal encodings parse them.
func DataValues(f *warehouse.Frame) []any {
	values := make([]any, 0, len(f.Rows))
	for _, row := range f.Rows {
		obj := make(map[string]any, len(f.Columns))
		for i, c := range f.Columns {
			obj[c.Name] = dataValue(row[i])
		}
		values = append(values, obj)
	}
	return values
}

func dataValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.Format("2006-01-02T15:04:05")
	case []byte:
		return string(t)
	default:
		return v
	}
}
