package typeconv

import "fmt"

// Scanner is the part of a result set needed to decode its current row.
type Scanner interface {
	Columns() ([]string, error)
	Scan(dest ...any) error
}

// TypedScanner is implemented by result sets that know the SQL type name
// of each column.
type TypedScanner interface {
	ColumnTypeNames() []string
}

// DecodeRow scans the current row into an object keyed by column name.
func DecodeRow(rows Scanner) (map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("scan row: %w", err)
	}

	var types []string
	if ts, ok := rows.(TypedScanner); ok {
		types = ts.ColumnTypeNames()
	}
	row := make(map[string]any, len(cols))
	for i, col := range cols {
		typ := ""
		if i < len(types) {
			typ = types[i]
		}
		v, err := Normalize(vals[i], typ)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col, err)
		}
		row[col] = v
	}
	return row, nil
}
