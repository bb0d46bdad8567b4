// Package schema renders a consolidated, backend-agnostic textual
// description of a connection's current database. The text is the hand-off
// artifact for downstream consumers (e.g. a text-generation service that
// turns natural language into SQL); this package knows nothing about them.
package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/prateeksaini/dbridge/internal/backend"
)

// Catalog is the slice of the registry the introspector needs: table
// listing and column description, addressed by connection id.
type Catalog interface {
	ListTables(ctx context.Context, id string) ([]string, error)
	DescribeTable(ctx context.Context, id, table string) ([]backend.Column, error)
}

// Introspector walks every table of a connection's database and assembles
// one text block. It is stateless; all connection state lives behind cat.
type Introspector struct {
	cat Catalog
}

// New creates an Introspector over the given catalog.
func New(cat Catalog) *Introspector {
	return &Introspector{cat: cat}
}

// DescribeSchema renders the schema of the connection's current database:
//
//	Table: users
//	Columns:
//	  - id (integer) [PRIMARY KEY] [NOT NULL]
//	  - name (text)
//
// one blank line between tables, tables in the order ListTables returned
// them. A failure describing any single table fails the whole render — an
// incomplete schema handed downstream is worse than an explicit error.
func (in *Introspector) DescribeSchema(ctx context.Context, id string) (string, error) {
	tables, err := in.cat.ListTables(ctx, id)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for i, table := range tables {
		cols, err := in.cat.DescribeTable(ctx, id, table)
		if err != nil {
			return "", fmt.Errorf("describing table %q: %w", table, err)
		}
		if i > 0 {
			sb.WriteString("\n")
		}
		writeTable(&sb, table, cols)
	}
	return sb.String(), nil
}

func writeTable(sb *strings.Builder, table string, cols []backend.Column) {
	fmt.Fprintf(sb, "Table: %s\n", table)
	sb.WriteString("Columns:\n")
	for _, c := range cols {
		fmt.Fprintf(sb, "  - %s (%s)%s\n", c.Name, c.DataType, columnFlags(c))
	}
}

// columnFlags renders the bracketed markers for one column, in a fixed
// order so output is stable across backends. Primary and unique columns are
// always index-backed, so INDEX marks only plainly indexed columns.
func columnFlags(c backend.Column) string {
	var flags []string
	if c.IsPrimary {
		flags = append(flags, "PRIMARY KEY")
	}
	if c.IsUnique {
		flags = append(flags, "UNIQUE")
	}
	if c.HasIndex && !c.IsPrimary && !c.IsUnique {
		flags = append(flags, "INDEX")
	}
	if strings.Contains(c.Extra, "auto_increment") {
		flags = append(flags, "AUTO_INCREMENT")
	}
	if !c.Nullable {
		flags = append(flags, "NOT NULL")
	}
	if c.Default != nil {
		flags = append(flags, "DEFAULT "+*c.Default)
	}

	if len(flags) == 0 {
		return ""
	}
	return " [" + strings.Join(flags, "] [") + "]"
}
