package chart

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errx "github.com/crmlens/engine/internal/core/error"
	"github.com/crmlens/engine/internal/warehouse"
)

func TestParseSpecRejectsBadJSON(t *testing.T) {
	_, err := ParseSpec("{not json")
	ve, ok := errx.AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, errx.KindParse, ve.Kind)

	_, err = ParseSpec("{}")
	_, ok = errx.AsValidation(err)
	require.True(t, ok)
}

func TestWithoutDataStripsDataAndDatasets(t *testing.T) {
	s, err := ParseSpec(`{
		"mark": "bar",
		"data": {"name": "source"},
		"datasets": {"source": [{"a": 1}]}
	}`)
	require.NoError(t, err)

	stripped := s.WithoutData()
	assert.Equal(t, map[string]any{"values": []any{}}, stripped["data"])
	_, ok := stripped["datasets"]
	assert.False(t, ok)

	// original untouched
	_, ok = s["datasets"]
	assert.True(t, ok)
}

func TestWithDataInlinesFrameRows(t *testing.T) {
	s, err := ParseSpec(`{"mark": "line", "data": {"values": []}}`)
	require.NoError(t, err)

	frame := &warehouse.Frame{
		Columns: []warehouse.Column{
			{Name: "Month", Type: "TIMESTAMP"},
			{Name: "Total", Type: "FLOAT64"},
		},
		Rows: [][]any{
			{time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), 12.5},
		},
	}

	withData := s.WithData(frame)
	data := withData["data"].(map[string]any)
	values := data["values"].([]any)
	require.Len(t, values, 1)
	row := values[0].(map[string]any)
	assert.Equal(t, "2026-03-01T00:00:00", row["Month"])
	assert.Equal(t, 12.5, row["Total"])
}

func TestSpecJSONIsDeterministic(t *testing.T) {
	a, err := ParseSpec(`{"mark": "bar", "width": 1152, "height": 648}`)
	require.NoError(t, err)
	b, err := ParseSpec(`{"height": 648, "width": 1152, "mark": "bar"}`)
	require.NoError(t, err)

	assert.Equal(t, a.JSON(), b.JSON())
}
