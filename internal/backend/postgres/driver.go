// Package postgres implements backend.Adapter for PostgreSQL on top of
// jackc/pgx. A pgx pool is bound to exactly one database; switching
// databases is a session replacement handled by the registry.
package postgres

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prateeksaini/dbridge/internal/backend"
	"github.com/prateeksaini/dbridge/internal/errs"
)

// Driver is the PostgreSQL implementation of backend.Adapter.
type Driver struct {
	pool      *pgxpool.Pool
	closeOnce sync.Once
}

// New connects to PostgreSQL using the provided Config and returns a Driver.
// It calls Ping to validate the connection before returning.
func New(ctx context.Context, cfg backend.Config) (*Driver, error) {
	poolCfg, err := pgxpool.ParseConfig(buildDSN(cfg))
	if err != nil {
		return nil, errs.Wrap(errs.KindConnectFailed, "invalid DSN", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeoutOrDefault()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errs.Wrap(errs.KindConnectFailed, "failed to create connection pool", err)
	}

	d := &Driver{pool: pool}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, wrapErr(errs.KindConnectFailed, "failed to connect to postgres", err)
	}

	return d, nil
}

// --- backend.Adapter implementation ---

func (d *Driver) Ping(ctx context.Context) error {
	if err := d.pool.Ping(ctx); err != nil {
		return wrapErr(errs.KindConnectFailed, "ping failed", err)
	}
	return nil
}

func (d *Driver) Close() error {
	d.closeOnce.Do(d.pool.Close)
	return nil
}

// ListDatabases returns every non-template database in the cluster.
func (d *Driver) ListDatabases(ctx context.Context) ([]string, error) {
	const q = `
		SELECT datname
		FROM pg_database
		WHERE datistemplate = false
		ORDER BY datname`

	return d.fetchStringList(ctx, q, nil, "failed to list databases")
}

// UseDatabase always fails: a pgx pool is parameterized with its database at
// construction time, so the registry must replace the whole connection.
func (d *Driver) UseDatabase(ctx context.Context, name string) error {
	return backend.ErrRebindUnsupported
}

// ListTables returns the base tables of the public schema.
func (d *Driver) ListTables(ctx context.Context) ([]string, error) {
	const q = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public'
		  AND table_type   = 'BASE TABLE'
		ORDER BY table_name`

	return d.fetchStringList(ctx, q, nil, "failed to list tables")
}

// DescribeTable reads column metadata for one table. Unlike MySQL, Postgres
// does not flag key membership on the catalog row, so primary key, unique,
// and index information come from separate constraint-join queries.
func (d *Driver) DescribeTable(ctx context.Context, table string) ([]backend.Column, error) {
	columns, err := d.fetchColumns(ctx, table)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, errs.New(errs.KindBackendError, fmt.Sprintf("table %q does not exist", table))
	}

	pks, err := d.fetchConstraintColumns(ctx, table, "PRIMARY KEY")
	if err != nil {
		return nil, err
	}
	uniques, err := d.fetchConstraintColumns(ctx, table, "UNIQUE")
	if err != nil {
		return nil, err
	}
	indexed, err := d.fetchIndexedColumns(ctx, table)
	if err != nil {
		return nil, err
	}

	pkSet := toSet(pks)
	uqSet := toSet(uniques)
	ixSet := toSet(indexed)
	for i := range columns {
		c := &columns[i]
		c.IsPrimary = pkSet[c.Name]
		c.IsUnique = uqSet[c.Name]
		c.HasIndex = c.IsPrimary || c.IsUnique || ixSet[c.Name]
	}

	return columns, nil
}

// Query executes the SQL string verbatim and returns the normalized result.
func (d *Driver) Query(ctx context.Context, sqlText string) (*backend.Result, error) {
	rows, err := d.pool.Query(ctx, sqlText)
	if err != nil {
		return nil, wrapErr(errs.KindQueryFailed, "query failed", err)
	}
	return backend.CollectResult(&pgxRows{rows: rows})
}

// --- catalog queries ---

func (d *Driver) fetchColumns(ctx context.Context, table string) ([]backend.Column, error) {
	const q = `
		SELECT column_name,
		       data_type,
		       is_nullable = 'YES',
		       column_default,
		       is_identity = 'YES'
		FROM information_schema.columns
		WHERE table_schema = 'public'
		  AND table_name   = $1
		ORDER BY ordinal_position`

	rows, err := d.pool.Query(ctx, q, table)
	if err != nil {
		return nil, wrapErr(errs.KindBackendError, "failed to fetch columns", err)
	}
	defer rows.Close()

	var cols []backend.Column
	for rows.Next() {
		var (
			c        backend.Column
			defVal   *string
			identity bool
		)
		if err := rows.Scan(&c.Name, &c.DataType, &c.Nullable, &defVal, &identity); err != nil {
			return nil, wrapErr(errs.KindBackendError, "failed to scan column info", err)
		}
		c.Default = defVal
		// Serial columns carry a nextval() default; identity columns are
		// the modern equivalent. Both behave as auto-increment.
		if identity || (defVal != nil && strings.HasPrefix(*defVal, "nextval(")) {
			c.Extra = "auto_increment"
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// fetchConstraintColumns returns the columns of table covered by a
// constraint of the given type (PRIMARY KEY or UNIQUE).
func (d *Driver) fetchConstraintColumns(ctx context.Context, table, constraintType string) ([]string, error) {
	const q = `
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		 AND tc.table_schema    = kcu.table_schema
		WHERE tc.constraint_type = $1
		  AND tc.table_schema    = 'public'
		  AND tc.table_name      = $2
		ORDER BY kcu.ordinal_position`

	return d.fetchStringList(ctx, q, []any{constraintType, table}, "failed to fetch constraint columns")
}

// fetchIndexedColumns returns every column that participates in any index on
// table. information_schema has no view of plain indexes, so this goes to
// the pg_catalog tables directly.
func (d *Driver) fetchIndexedColumns(ctx context.Context, table string) ([]string, error) {
	const q = `
		SELECT DISTINCT a.attname
		FROM pg_index i
		JOIN pg_class t      ON t.oid = i.indrelid
		JOIN pg_namespace n  ON n.oid = t.relnamespace
		JOIN pg_attribute a  ON a.attrelid = t.oid AND a.attnum = ANY(i.indkey)
		WHERE n.nspname = 'public'
		  AND t.relname = $1`

	return d.fetchStringList(ctx, q, []any{table}, "failed to fetch indexed columns")
}

// fetchStringList is a helper for queries that return a single text column.
func (d *Driver) fetchStringList(ctx context.Context, q string, args []any, errMsg string) ([]string, error) {
	rows, err := d.pool.Query(ctx, q, args...)
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

// buildDSN constructs a postgres:// URL from the config.
func buildDSN(cfg backend.Config) string {
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		Path:   "/" + cfg.Database,
	}
	return u.String()
}

// --- pgx type wrappers ---

// pgxRows wraps pgx.Rows to satisfy backend.Rows.
type pgxRows struct {
	rows pgx.Rows
}

func (r *pgxRows) Next() bool             { return r.rows.Next() }
func (r *pgxRows) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r *pgxRows) Close()                 { r.rows.Close() }
func (r *pgxRows) Err() error             { return r.rows.Err() }

func (r *pgxRows) Columns() ([]string, error) {
	descs := r.rows.FieldDescriptions()
	cols := make([]string, len(descs))
	for i, d := range descs {
		cols[i] = d.Name
	}
	return cols, nil
}

// --- helpers ---

func toSet(ss []string) map[string]bool {
	m := make(map[string]bool, len(ss))
	for _, s := range ss {
		m[s] = true
	}
	return m
}
