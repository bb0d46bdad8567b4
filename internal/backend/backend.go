// Package backend defines the capability contract shared by all database
// adapters. The registry and everything above it talk only to this package —
// they never import the mysql, postgres, or sqlite packages directly.
package backend

import (
	"context"
	"errors"
	"time"
)

// Kind identifies the database engine behind an adapter.
type Kind string

const (
	KindMySQL    Kind = "mysql"
	KindPostgres Kind = "postgres"
	KindSQLite   Kind = "sqlite"
)

// Valid reports whether k names a supported engine.
func (k Kind) Valid() bool {
	switch k {
	case KindMySQL, KindPostgres, KindSQLite:
		return true
	}
	return false
}

// ErrRebindUnsupported is returned by UseDatabase when the engine cannot
// switch the bound database on a live session. The registry reacts by
// building a fresh connection against the new database and swapping it in.
var ErrRebindUnsupported = errors.New("backend: session cannot rebind to another database")

// Config holds all settings needed to connect to a backend.
// For SQLite, Host is interpreted as the database file path and
// Port/User/Password are ignored.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string

	// Pool tuning. SQLite forces a single connection regardless.
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	// ConnectTimeout limits how long establishing a new connection may take.
	ConnectTimeout time.Duration
}

// DefaultConnectTimeout applies when Config.ConnectTimeout is left zero.
const DefaultConnectTimeout = 10 * time.Second

// DefaultConfig returns sensible settings for an interactive client workload:
// few connections, generous lifetimes.
func DefaultConfig() Config {
	return Config{
		MaxConns:        4,
		MinConns:        1,
		MaxConnLifetime: 30 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
		ConnectTimeout:  DefaultConnectTimeout,
	}
}

// ConnectTimeoutOrDefault returns ConnectTimeout, falling back to
// DefaultConnectTimeout when the field was left zero. Adapters use this so a
// hand-built Config does not produce an already-expired connect context.
func (c Config) ConnectTimeoutOrDefault() time.Duration {
	if c.ConnectTimeout > 0 {
		return c.ConnectTimeout
	}
	return DefaultConnectTimeout
}

// Adapter is the capability set every backend implements. An adapter is
// created connected (constructors validate with Ping before returning) and
// is bound to one engine for its whole lifetime.
//
// Adapters are not required to be safe for concurrent use on their own;
// the registry serializes all operations against a single adapter.
type Adapter interface {
	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// ListDatabases returns the catalog's database names. Engines without a
	// multi-database concept return their single fixed pseudo-name.
	ListDatabases(ctx context.Context) ([]string, error)

	// UseDatabase binds the session to another database. Engines that cannot
	// rebind a live session return ErrRebindUnsupported; engines without a
	// database concept treat this as a no-op.
	UseDatabase(ctx context.Context, name string) error

	// ListTables returns the base tables of the currently bound database,
	// excluding engine-internal system tables, in catalog order.
	ListTables(ctx context.Context) ([]string, error)

	// DescribeTable returns the table's columns in the engine's natural
	// column order, with constraint metadata resolved.
	DescribeTable(ctx context.Context, table string) ([]Column, error)

	// Query executes the SQL string verbatim — no parsing, no statement-type
	// restriction — and returns the normalized result. Engine errors are
	// surfaced with their message preserved unmodified.
	Query(ctx context.Context, sql string) (*Result, error)

	// Close releases the native handle. Safe to call more than once.
	Close() error
}
