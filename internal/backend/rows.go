package backend

import "github.com/prateeksaini/dbridge/internal/errs"

// Rows is an abstraction over a database result set. Each adapter wraps its
// driver's native rows type to satisfy it. Callers must always call Close()
// when done, even on error.
type Rows interface {
	// Next advances to the next row; false when exhausted or on error.
	Next() bool

	// Scan copies the current row's columns into the provided destinations.
	Scan(dest ...any) error

	// Columns returns the column names of the result set, in driver order.
	Columns() ([]string, error)

	// Close releases resources held by the result set.
	Close()

	// Err returns any error encountered during iteration.
	Err() error
}

// CollectResult drains rows into a *Result, preserving the driver's column
// order and leaving values exactly as the driver produced them, except that
// []byte payloads are surfaced as strings (the MySQL driver reports text
// columns as raw bytes).
//
// CollectResult always closes rows — callers do not need to call Close().
func CollectResult(rows Rows) (*Result, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errs.Wrap(errs.KindQueryFailed, "failed to read column names", err)
	}

	result := &Result{
		Columns: columns,
		Rows:    make([]map[string]any, 0),
	}

	for rows.Next() {
		// Scan targets are *any so the driver can write any type.
		dest := make([]any, len(columns))
		destPtrs := make([]any, len(columns))
		for i := range dest {
			destPtrs[i] = &dest[i]
		}

		if err := rows.Scan(destPtrs...); err != nil {
			return nil, errs.Wrap(errs.KindQueryFailed, "failed to scan row", err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := dest[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = dest[i]
			}
		}
		result.Rows = append(result.Rows, row)
	}

	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.KindQueryFailed, "error during row iteration", err)
	}

	return result, nil
}
