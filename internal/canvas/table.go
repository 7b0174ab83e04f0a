package canvas

import (
	"sort"

	"canvasflow/internal/value"
)

// FormatTable turns v into a rectangular grid of strings, or nil if v has
// no table shape. Accepted shapes:
//
//   - an array of arrays: each inner array is a row; the first row sets
//     the width and later rows are truncated or padded with ""
//   - an object of arrays: each key is a column header and the first
//     column decides the row count; shorter columns are padded with ""
//
// Object keys are taken in sorted order.
func FormatTable(v any) [][]string {
	switch t := v.(type) {
	case [][]string:
		if len(t) == 0 || len(t[0]) == 0 {
			return nil
		}
		return rectangular(t)
	case []any:
		return formatRows(t)
	case map[string]any:
		return formatColumns(t)
	}
	return nil
}

func formatRows(rows []any) [][]string {
	if len(rows) == 0 {
		return nil
	}
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		cells, ok := r.([]any)
		if !ok {
			return nil
		}
		row := make([]string, len(cells))
		for i, c := range cells {
			row[i] = value.Stringify(c)
		}
		out = append(out, row)
	}
	if len(out[0]) == 0 {
		return nil
	}
	return rectangular(out)
}

// rectangular fits every row to the width of the first one.
func rectangular(rows [][]string) [][]string {
	width := len(rows[0])
	out := make([][]string, len(rows))
	for i, r := range rows {
		if len(r) == width {
			out[i] = r
			continue
		}
		row := make([]string, width)
		copy(row, r)
		out[i] = row
	}
	return out
}

func formatColumns(cols map[string]any) [][]string {
	if len(cols) == 0 {
		return nil
	}
	keys := make([]string, 0, len(cols))
	for k := range cols {
		if _, ok := cols[k].([]any); !ok {
			return nil
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	numRows := len(cols[keys[0]].([]any)) + 1
	out := make([][]string, numRows)
	for i := range out {
		out[i] = make([]string, len(keys))
	}
	for j, k := range keys {
		out[0][j] = k
		col := cols[k].([]any)
		for i := 1; i < numRows; i++ {
			if i-1 < len(col) {
				out[i][j] = value.Stringify(col[i-1])
			}
		}
	}
	return out
}
