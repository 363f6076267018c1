package warehouse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFrame() *Frame {
	return &Frame{
		Columns: []Column{
			{Name: "Country", Type: "STRING"},
			{Name: "Revenue", Type: "FLOAT64"},
			{Name: "ClosedAt", Type: "TIMESTAMP"},
		},
		Rows: [][]any{
			{"US", 100.5, time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC)},
			{"UK", 80.0, nil},
			{"US", 42.0, nil},
			{nil, 10.0, nil},
			{"UK", 0.0, nil},
			{nil, 5.0, nil},
		},
	}
}

func TestDistinctKeepsFirstAppearanceOrder(t *testing.T) {
	f := testFrame()

	values, ok := f.Distinct("Country")
	require.True(t, ok)
	assert.Equal(t, []any{"US", "UK", nil}, values)
}

func TestDistinctUnknownColumn(t *testing.T) {
	f := testFrame()
	_, ok := f.Distinct("Region")
	assert.False(t, ok)
}

func TestHead(t *testing.T) {
	f := testFrame()
	assert.Equal(t, 2, f.Head(2).Len())
	assert.Equal(t, 6, f.Head(10).Len())
}

func TestSchemaString(t *testing.T) {
	f := testFrame()
	assert.Equal(t, "Country: STRING\nRevenue: FLOAT64\nClosedAt: TIMESTAMP\n", f.SchemaString())
}

func TestCSVLimitsRows(t *testing.T) {
	f := testFrame()

	csv, err := f.CSV(2)
	require.NoError(t, err)
	assert.Equal(t,
		"Country,Revenue,ClosedAt\n"+
			"US,100.5,2026-01-15 09:30:00\n"+
			"UK,80,\n",
		csv)

	full, err := f.CSV(0)
	require.NoError(t, err)
	assert.Len(t, splitLines(full), 7)
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
