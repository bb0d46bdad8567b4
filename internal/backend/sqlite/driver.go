// Package sqlite implements backend.Adapter for local SQLite database files
// on top of database/sql and the pure-Go modernc.org/sqlite driver.
//
// SQLite has no server and no multi-database catalog: the Config's Host is
// the database file path, and the single pseudo-database is always "main".
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/prateeksaini/dbridge/internal/backend"
	"github.com/prateeksaini/dbridge/internal/errs"
)

// MainDatabase is the fixed pseudo-database name reported by ListDatabases.
const MainDatabase = "main"

// Driver is the SQLite implementation of backend.Adapter.
type Driver struct {
	db   *sql.DB
	path string
}

// New opens the SQLite file at cfg.Host and returns a Driver. A missing file
// is created, matching the library's default open mode. Port, User, and
// Password are ignored.
func New(ctx context.Context, cfg backend.Config) (*Driver, error) {
	if cfg.Host == "" {
		return nil, errs.New(errs.KindConnectFailed, "sqlite: database file path is empty")
	}

	db, err := sql.Open("sqlite", cfg.Host)
	if err != nil {
		return nil, errs.Wrap(errs.KindConnectFailed, "failed to open sqlite database", err)
	}

	// SQLite serializes writers at the file level; a single connection
	// avoids SQLITE_BUSY churn entirely.
	db.SetMaxOpenConns(1)

	d := &Driver{db: db, path: cfg.Host}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeoutOrDefault())
	defer cancel()

	if err := d.db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, wrapErr(errs.KindConnectFailed, fmt.Sprintf("failed to open %s", cfg.Host), err)
	}

	return d, nil
}

// --- backend.Adapter implementation ---

func (d *Driver) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return wrapErr(errs.KindConnectFailed, "ping failed", err)
	}
	return nil
}

func (d *Driver) Close() error {
	_ = d.db.Close()
	return nil
}

// ListDatabases returns the single fixed pseudo-database name.
func (d *Driver) ListDatabases(ctx context.Context) ([]string, error) {
	return []string{MainDatabase}, nil
}

// UseDatabase is a no-op: a SQLite file is its own database.
func (d *Driver) UseDatabase(ctx context.Context, name string) error {
	return nil
}

// ListTables returns the user tables of the file. SQLite has no
// information_schema; sqlite_master is the catalog, and names with the
// sqlite_ prefix are internal bookkeeping tables.
func (d *Driver) ListTables(ctx context.Context) ([]string, error) {
	const q = `
		SELECT name
		FROM sqlite_master
		WHERE type = 'table'
		  AND name NOT LIKE 'sqlite_%'
		ORDER BY name`

	rows, err := d.db.QueryContext(ctx, q)
	if err != nil {
		return nil, wrapErr(errs.KindBackendError, "failed to list tables", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, wrapErr(errs.KindBackendError, "failed to scan table name", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(errs.KindBackendError, "error iterating tables", err)
	}
	return tables, nil
}

// DescribeTable reads column metadata through PRAGMA table_info, which
// exposes the primary key as a per-column flag. Unique and index markers
// come from PRAGMA index_list / index_info.
func (d *Driver) DescribeTable(ctx context.Context, table string) ([]backend.Column, error) {
	rows, err := d.db.QueryContext(ctx, "PRAGMA table_info("+quoteIdent(table)+")")
	if err != nil {
		return nil, wrapErr(errs.KindBackendError, "failed to fetch columns", err)
	}
	defer rows.Close()

	var cols []backend.Column
	for rows.Next() {
		// PRAGMA table_info returns: cid, name, type, notnull, dflt_value, pk
		var (
			cid     int
			c       backend.Column
			notNull int
			defVal  sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &c.Name, &c.DataType, &notNull, &defVal, &pk); err != nil {
			return nil, wrapErr(errs.KindBackendError, "failed to scan column info", err)
		}
		c.Nullable = notNull == 0
		c.IsPrimary = pk > 0
		c.HasIndex = c.IsPrimary
		if defVal.Valid {
			v := defVal.String
			c.Default = &v
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(errs.KindBackendError, "error iterating columns", err)
	}
	if len(cols) == 0 {
		return nil, errs.New(errs.KindBackendError, fmt.Sprintf("table %q does not exist", table))
	}

	if err := d.markIndexedColumns(ctx, table, cols); err != nil {
		return nil, err
	}
	if err := d.markAutoIncrement(ctx, table, cols); err != nil {
		return nil, err
	}

	return cols, nil
}

// Query executes the SQL string verbatim and returns the normalized result.
func (d *Driver) Query(ctx context.Context, sqlText string) (*backend.Result, error) {
	rows, err := d.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, wrapErr(errs.KindQueryFailed, "query failed", err)
	}
	return backend.CollectResult(&sqliteRows{rows: rows})
}

// markIndexedColumns walks the table's indexes and flags member columns.
// A single-column unique index marks that column unique as well.
func (d *Driver) markIndexedColumns(ctx context.Context, table string, cols []backend.Column) error {
	rows, err := d.db.QueryContext(ctx, "PRAGMA index_list("+quoteIdent(table)+")")
	if err != nil {
		return wrapErr(errs.KindBackendError, "failed to list indexes", err)
	}

	type index struct {
		name   string
		unique bool
	}
	var indexes []index
	for rows.Next() {
		// PRAGMA index_list returns: seq, name, unique, origin, partial
		var (
			seq     int
			ix      index
			origin  string
			partial int
		)
		if err := rows.Scan(&seq, &ix.name, &ix.unique, &origin, &partial); err != nil {
			rows.Close()
			return wrapErr(errs.KindBackendError, "failed to scan index info", err)
		}
		indexes = append(indexes, ix)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return wrapErr(errs.KindBackendError, "error iterating indexes", err)
	}

	byName := make(map[string]*backend.Column, len(cols))
	for i := range cols {
		byName[cols[i].Name] = &cols[i]
	}

	for _, ix := range indexes {
		members, err := d.indexColumns(ctx, ix.name)
		if err != nil {
			return err
		}
		for _, m := range members {
			c, ok := byName[m]
			if !ok {
				continue
			}
			c.HasIndex = true
			if ix.unique && len(members) == 1 {
				c.IsUnique = true
			}
		}
	}
	return nil
}

// indexColumns returns the column names covered by one index.
func (d *Driver) indexColumns(ctx context.Context, indexName string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, "PRAGMA index_info("+quoteIdent(indexName)+")")
	if err != nil {
		return nil, wrapErr(errs.KindBackendError, "failed to read index columns", err)
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		// PRAGMA index_info returns: seqno, cid, name
		var (
			seqno int
			cid   int
			name  sql.NullString
		)
		if err := rows.Scan(&seqno, &cid, &name); err != nil {
			return nil, wrapErr(errs.KindBackendError, "failed to scan index column", err)
		}
		if name.Valid {
			members = append(members, name.String)
		}
	}
	return members, rows.Err()
}

// markAutoIncrement flags the primary key column when the table was declared
// with AUTOINCREMENT. SQLite records this only in the original CREATE TABLE
// text kept in sqlite_master.
func (d *Driver) markAutoIncrement(ctx context.Context, table string, cols []backend.Column) error {
	const q = `SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?`

	var createSQL sql.NullString
	err := d.db.QueryRowContext(ctx, q, table).Scan(&createSQL)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return wrapErr(errs.KindBackendError, "failed to read table definition", err)
	}
	if !createSQL.Valid || !strings.Contains(strings.ToUpper(createSQL.String), "AUTOINCREMENT") {
		return nil
	}

	for i := range cols {
		if cols[i].IsPrimary {
			cols[i].Extra = "auto_increment"
		}
	}
	return nil
}

// quoteIdent wraps an identifier in double quotes. PRAGMA arguments cannot
// be parameterized, so table names are embedded quoted.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// --- sql.DB type wrappers ---

type sqliteRows struct {
	rows *sql.Rows
}

func (r *sqliteRows) Next() bool                 { return r.rows.Next() }
func (r *sqliteRows) Scan(dest ...any) error     { return r.rows.Scan(dest...) }
func (r *sqliteRows) Columns() ([]string, error) { return r.rows.Columns() }
func (r *sqliteRows) Close()                     { _ = r.rows.Close() }
func (r *sqliteRows) Err() error                 { return r.rows.Err() }
