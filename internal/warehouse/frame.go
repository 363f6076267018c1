package warehouse

import (
	"encoding/csv"
	"fmt"
	"strings"
	"time"
)

// Column describes one column of a result frame.
type Column struct {
	Name string
	Type string
}

// Frame is a fully materialized tabular result set. Row values are primitive
// Go values (string, int64, float64, bool, time.Time) or nil.
type Frame struct {
	Columns []Column
	Rows    [][]any
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.Rows)
}

// ColumnIndex returns the position of the named column, or -1.
func (f *Frame) ColumnIndex(name string) int {
	for i, c := range f.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the frame contains the named column.
func (f *Frame) HasColumn(name string) bool {
	return f.ColumnIndex(name) >= 0
}

// Distinct returns the distinct values of one column in first-appearance
// order. Nil values collapse into a single nil entry. The second return is
// false when the column does not exist.
func (f *Frame) Distinct(column string) ([]any, bool) {
	idx := f.ColumnIndex(column)
	if idx < 0 {
		return nil, false
	}

	seen := make(map[string]struct{})
	seenNil := false
	values := make([]any, 0, 8)
	for _, row := range f.Rows {
		v := row[idx]
		if v == nil {
			if seenNil {
				continue
			}
			seenNil = true
			values = append(values, nil)
			continue
		}
		key := fmt.Sprintf("%T\x00%v", v, v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		values = append(values, v)
	}
	return values, true
}

// Head returns a frame holding at most n leading rows. The column slice is
// shared; rows are not copied.
func (f *Frame) Head(n int) *Frame {
	if n >= len(f.Rows) {
		return &Frame{Columns: f.Columns, Rows: f.Rows}
	}
	return &Frame{Columns: f.Columns, Rows: f.Rows[:n]}
}

// SchemaString renders "name: type" lines for prompt context, analogous to a
// dataframe dtype listing.
func (f *Frame) SchemaString() string {
	var sb strings.Builder
	for _, c := range f.Columns {
		sb.WriteString(c.Name)
		sb.WriteString(": ")
		sb.WriteString(c.Type)
		sb.WriteString("\n")
	}
	return sb.String()
}

// CSV renders at most limit rows (all rows when limit <= 0) as CSV with a
// header line.
func (f *Frame) CSV(limit int) (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	header := make([]string, len(f.Columns))
	for i, c := range f.Columns {
		header[i] = c.Name
	}
	if err := w.Write(header); err != nil {
		return "", err
	}

	rows := f.Rows
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	record := make([]string, len(f.Columns))
	for _, row := range rows {
		for i, v := range row {
			record[i] = formatCell(v)
		}
		if err := w.Write(record); err != nil {
			return "", err
		}
	}
	w.Flush()
	return sb.String(), w.Error()
}

func formatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case time.Time:
		return t.Format("2006-01-02 15:04:05")
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
