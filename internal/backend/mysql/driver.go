// Package mysql implements backend.Adapter for MySQL-family servers
// (MySQL, MariaDB) on top of database/sql and go-sql-driver/mysql.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql" // register "mysql" driver

	"github.com/prateeksaini/dbridge/internal/backend"
	"github.com/prateeksaini/dbridge/internal/errs"
)

// Driver is the MySQL implementation of backend.Adapter. The bound database
// is always part of the pool's DSN, so a connection the pool recycles comes
// back dialed into the same database.
type Driver struct {
	db  *sql.DB
	cfg backend.Config
}

// New opens a MySQL session using the provided Config and returns a Driver.
// It calls Ping to validate the connection before returning.
func New(ctx context.Context, cfg backend.Config) (*Driver, error) {
	db, err := open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Driver{db: db, cfg: cfg}, nil
}

// open dials a pool from cfg and validates it with a ping.
func open(ctx context.Context, cfg backend.Config) (*sql.DB, error) {
	db, err := sql.Open("mysql", buildDSN(cfg))
	if err != nil {
		return nil, errs.Wrap(errs.KindConnectFailed, "invalid DSN", err)
	}

	// Queries are serialized per connection id anyway; a single connection
	// keeps session variables coherent across statements.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	db.SetConnMaxIdleTime(cfg.MaxConnIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeoutOrDefault())
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, wrapErr(errs.KindConnectFailed, "failed to connect to mysql", err)
	}

	return db, nil
}

// --- backend.Adapter implementation ---

func (d *Driver) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return wrapErr(errs.KindConnectFailed, "ping failed", err)
	}
	return nil
}

func (d *Driver) Close() error {
	// sql.DB.Close is safe to call more than once.
	_ = d.db.Close()
	return nil
}

// ListDatabases returns every schema visible to the connected user.
func (d *Driver) ListDatabases(ctx context.Context) ([]string, error) {
	return d.fetchStringList(ctx, "SHOW DATABASES", "failed to list databases")
}

// UseDatabase rebinds the session to another database. A USE statement is
// session state and would be lost when the pool replaces its connection, so
// the switch instead rebuilds the pool from a DSN naming the new database.
// The replacement is validated before the old pool is released; a failed
// switch leaves the session untouched.
func (d *Driver) UseDatabase(ctx context.Context, name string) error {
	cfg := d.cfg
	cfg.Database = name

	db, err := open(ctx, cfg)
	if err != nil {
		return errs.Wrap(errs.KindBackendError, fmt.Sprintf("failed to switch to database %q", name), err)
	}

	old := d.db
	d.db = db
	d.cfg = cfg
	_ = old.Close()
	return nil
}

// ListTables returns the base tables of the currently bound database.
func (d *Driver) ListTables(ctx context.Context) ([]string, error) {
	const q = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = DATABASE()
		  AND table_type   = 'BASE TABLE'
		ORDER BY table_name`

	return d.fetchStringList(ctx, q, "failed to list tables")
}

// DescribeTable reads column metadata from information_schema.columns.
// MySQL exposes key membership directly on the catalog row (column_key)
// and the auto-increment marker in the extra column.
func (d *Driver) DescribeTable(ctx context.Context, table string) ([]backend.Column, error) {
	const q = `
		SELECT column_name,
		       column_type,
		       is_nullable = 'YES',
		       column_default,
		       column_key,
		       extra
		FROM information_schema.columns
		WHERE table_schema = DATABASE()
		  AND table_name   = ?
		ORDER BY ordinal_position`

	rows, err := d.db.QueryContext(ctx, q, table)
	if err != nil {
		return nil, wrapErr(errs.KindBackendError, "failed to fetch columns", err)
	}
	defer rows.Close()

	var cols []backend.Column
	for rows.Next() {
		var (
			c         backend.Column
			name      []byte
			dataType  []byte
			defVal    sql.NullString
			columnKey string
			extra     string
		)
		if err := rows.Scan(&name, &dataType, &c.Nullable, &defVal, &columnKey, &extra); err != nil {
			return nil, wrapErr(errs.KindBackendError, "failed to scan column info", err)
		}
		c.Name = string(name)
		c.DataType = string(dataType)
		if defVal.Valid {
			v := defVal.String
			c.Default = &v
		}
		// column_key: PRI primary, UNI unique, MUL first column of a
		// non-unique index.
		c.IsPrimary = columnKey == "PRI"
		c.IsUnique = columnKey == "UNI"
		c.HasIndex = columnKey != ""
		c.Extra = strings.ToLower(extra)
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(errs.KindBackendError, "error iterating columns", err)
	}
	if len(cols) == 0 {
		return nil, errs.New(errs.KindBackendError, fmt.Sprintf("table %q does not exist", table))
	}
	return cols, nil
}

// Query executes the SQL string verbatim and returns the normalized result.
func (d *Driver) Query(ctx context.Context, sqlText string) (*backend.Result, error) {
	rows, err := d.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, wrapErr(errs.KindQueryFailed, "query failed", err)
	}
	return backend.CollectResult(&mysqlRows{rows: rows})
}

// fetchStringList runs a query returning a single text column.
func (d *Driver) fetchStringList(ctx context.Context, q, errMsg string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, q)
	if err != nil {
		return nil, wrapErr(errs.KindBackendError, errMsg, err)
	}
	defer rows.Close()

	var list []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, wrapErr(errs.KindBackendError, errMsg, err)
		}
		list = append(list, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(errs.KindBackendError, errMsg, err)
	}
	return list, nil
}

// buildDSN constructs the MySQL DSN string.
// Format: user:pass@tcp(host:port)/dbname?parseTime=true
func buildDSN(cfg backend.Config) string {
	port := cfg.Port
	if port == 0 {
		port = 3306
	}
	return fmt.Sprintf(
		"%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
		cfg.User, cfg.Password, cfg.Host, port, cfg.Database,
	)
}

// --- sql.DB type wrappers ---

type mysqlRows struct {
	rows *sql.Rows
}

func (r *mysqlRows) Next() bool                 { return r.rows.Next() }
func (r *mysqlRows) Scan(dest ...any) error     { return r.rows.Scan(dest...) }
func (r *mysqlRows) Columns() ([]string, error) { return r.rows.Columns() }
func (r *mysqlRows) Close()                     { _ = r.rows.Close() }
func (r *mysqlRows) Err() error                 { return r.rows.Err() }
