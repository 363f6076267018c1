package chart

import (
	"strings"

	"github.com/crmlens/engine/internal/warehouse"
	logx "github.com/crmlens/engine/pkg/logger"
)

const selectionSuffix = "__selection"

// EnhanceParameters binds every "<dimension>__selection" parameter to a
// select input whose options are the distinct values of that dimension in
// the frame. The nil "all values" option is labeled "[All]" and sits first
// unless the column already contains nulls, in which case it keeps their
// position. Deterministic for a given (spec, frame) pair, never fails, and
// leaves every other parameter untouched.
func EnhanceParameters(s Spec, f *warehouse.Frame) Spec {
	rawParams, ok := s["params"].([]any)
	if !ok || len(rawParams) == 0 {
		return s
	}
	if !hasTransform(s) {
		// Selection parameters only filter anything through a transform
		// node; without one there is nothing to wire the input to.
		return s
	}

	out := s.clone()
	params := out["params"].([]any)
	for _, item := range params {
		p, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name, _ := p["name"].(string)
		if !strings.HasSuffix(name, selectionSuffix) {
			continue
		}
		column := strings.TrimSuffix(name, selectionSuffix)
		values, ok := f.Distinct(column)
		if !ok {
			logx.Debug().Str("column", column).Msg("selection dimension not in result frame")
			continue
		}

		nilIndex := -1
		for i, v := range values {
			if v == nil {
				nilIndex = i
				break
			}
		}
		if nilIndex < 0 {
			values = append([]any{nil}, values...)
			nilIndex = 0
		}

		options := make([]any, len(values))
		labels := make([]any, len(values))
		for i, v := range values {
			options[i] = dataValue(v)
			labels[i] = dataValue(v)
		}
		labels[nilIndex] = "[All]"

		p["value"] = nil
		p["bind"] = map[string]any{
			"input":   "select",
			"options": options,
			"labels":  labels,
			"name":    column,
		}
		logx.Debug().Str("column", column).Int("options", len(options)).
			Msg("selection parameter bound to data")
	}
	return out
}

// hasTransform reports whether any transform node exists anywhere in the
// document, including inside layered or concatenated views.
func hasTransform(v any) bool {
	switch t := v.(type) {
	case map[string]any:
		if _, ok := t["transform"]; ok {
			return true
		}
		for _, child := range t {
			if hasTransform(child) {
				return true
			}
		}
	case []any:
		for _, child := range t {
			if hasTransform(child) {
				return true
			}
		}
	}
	return false
}
