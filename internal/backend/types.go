package backend

// Column describes a single table column in a backend-agnostic shape.
// Adapters populate every field they can determine from the engine's
// catalog; fields the engine cannot express stay at their zero value.
type Column struct {
	Name      string
	DataType  string // engine-native type string, not canonicalized
	Nullable  bool
	IsPrimary bool
	IsUnique  bool
	HasIndex  bool

	// Default is the column's default expression, nil when none is declared.
	Default *string

	// Extra carries engine-specific markers such as "auto_increment".
	Extra string
}

// Result is the normalized shape of a query's output.
//
// Columns preserves the driver-reported column order; Rows map column name
// to whatever value the driver produced, unconverted, so numeric/string
// distinctions survive to the caller. A query matching nothing yields
// Columns set and an empty (non-nil) Rows slice.
type Result struct {
	Columns []string
	Rows    []map[string]any
}

// RowCount returns the number of rows in the result.
func (r *Result) RowCount() int {
	return len(r.Rows)
}
