package chart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crmlens/engine/internal/warehouse"
)

func selectionSpec(t *testing.T) Spec {
	t.Helper()
	s, err := ParseSpec(`{
		"mark": "bar",
		"data": {"values": []},
		"params": [
			{"name": "Country__selection", "value": "US"},
			{"name": "zoom", "select": "interval"}
		],
		"transform": [
			{"filter": "datum.Country === Country__selection || Country__selection == null"}
		]
	}`)
	require.NoError(t, err)
	return s
}

func countryFrame(values ...any) *warehouse.Frame {
	rows := make([][]any, len(values))
	for i, v := range values {
		rows[i] = []any{v}
	}
	return &warehouse.Frame{
		Columns: []warehouse.Column{{Name: "Country", Type: "STRING"}},
		Rows:    rows,
	}
}

func TestEnhanceBindsSelectInput(t *testing.T) {
	s := selectionSpec(t)
	out := EnhanceParameters(s, countryFrame("US", "UK", "US"))

	params := out["params"].([]any)
	p := params[0].(map[string]any)
	assert.Nil(t, p["value"])

	bind := p["bind"].(map[string]any)
	assert.Equal(t, "select", bind["input"])
	assert.Equal(t, "Country", bind["name"])
	// nil sentinel first when the column has no nulls
	assert.Equal(t, []any{nil, "US", "UK"}, bind["options"])
	assert.Equal(t, []any{"[All]", "US", "UK"}, bind["labels"])
}

func TestEnhanceKeepsExistingNullPosition(t *testing.T) {
	s := selectionSpec(t)
	out := EnhanceParameters(s, countryFrame("US", nil, "UK"))

	bind := out["params"].([]any)[0].(map[string]any)["bind"].(map[string]any)
	assert.Equal(t, []any{"US", nil, "UK"}, bind["options"])
	assert.Equal(t, []any{"US", "[All]", "UK"}, bind["labels"])
}

func TestEnhanceLeavesOtherParametersAlone(t *testing.T) {
	s := selectionSpec(t)
	out := EnhanceParameters(s, countryFrame("US"))

	zoom := out["params"].([]any)[1].(map[string]any)
	assert.Equal(t, map[string]any{"name": "zoom", "select": "interval"}, zoom)
}

func TestEnhanceSkipsUnknownDimension(t *testing.T) {
	s := selectionSpec(t)
	frame := &warehouse.Frame{
		Columns: []warehouse.Column{{Name: "Region", Type: "STRING"}},
		Rows:    [][]any{{"EMEA"}},
	}

	out := EnhanceParameters(s, frame)
	p := out["params"].([]any)[0].(map[string]any)
	_, ok := p["bind"]
	assert.False(t, ok)
}

func TestEnhanceRequiresTransform(t *testing.T) {
	s, err := ParseSpec(`{
		"mark": "bar",
		"params": [{"name": "Country__selection"}]
	}`)
	require.NoError(t, err)

	out := EnhanceParameters(s, countryFrame("US"))
	assert.Equal(t, s.JSON(), out.JSON())
}

func TestEnhanceIsDeterministicAndPure(t *testing.T) {
	s := selectionSpec(t)
	frame := countryFrame("US", "UK")

	first := EnhanceParameters(s, frame)
	second := EnhanceParameters(s, frame)
	assert.Equal(t, first.JSON(), second.JSON())

	// input spec is never mutated
	p := s["params"].([]any)[0].(map[string]any)
	_, ok := p["bind"]
	assert.False(t, ok)
	assert.Equal(t, "US", p["value"])
}

func TestEnhanceFindsNestedTransform(t *testing.T) {
	s, err := ParseSpec(`{
		"params": [{"name": "Country__selection"}],
		"vconcat": [
			{"mark": "bar", "transform": [{"filter": "datum.Country === Country__selection || Country__selection == null"}]}
		]
	}`)
	require.NoError(t, err)

	out := EnhanceParameters(s, countryFrame("US"))
	p := out["params"].([]any)[0].(map[string]any)
	_, ok := p["bind"]
	assert.True(t, ok)
}
