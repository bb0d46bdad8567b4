// Package registry owns all live connection state. A Manager maps opaque
// connection ids to backend adapters and is the only component allowed to
// mutate a connection's lifecycle: open, switch database, close.
//
// Every operation against one id is serialized by a per-handle mutex, so a
// database switch that replaces the native connection can never be observed
// half-done by a concurrent query. Operations against distinct ids run
// fully concurrently.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/prateeksaini/dbridge/internal/backend"
	"github.com/prateeksaini/dbridge/internal/backend/mysql"
	"github.com/prateeksaini/dbridge/internal/backend/postgres"
	"github.com/prateeksaini/dbridge/internal/backend/sqlite"
	"github.com/prateeksaini/dbridge/internal/errs"
	"github.com/prateeksaini/dbridge/internal/logger"
)

// openFunc constructs a connected adapter for one backend kind.
// It is a field on Manager so tests can substitute fakes.
type openFunc func(ctx context.Context, kind backend.Kind, cfg backend.Config) (backend.Adapter, error)

// openAdapter selects and invokes the matching adapter constructor. This is
// the single place backend kinds are switched on.
func openAdapter(ctx context.Context, kind backend.Kind, cfg backend.Config) (backend.Adapter, error) {
	switch kind {
	case backend.KindMySQL:
		return mysql.New(ctx, cfg)
	case backend.KindPostgres:
		return postgres.New(ctx, cfg)
	case backend.KindSQLite:
		return sqlite.New(ctx, cfg)
	default:
		return nil, errs.New(errs.KindUnsupportedBackend, fmt.Sprintf("unsupported backend kind %q", kind))
	}
}

// handle is one registry entry: the live adapter plus the metadata needed
// to rebuild it on a database switch. All fields after creation are guarded
// by mu.
type handle struct {
	mu       sync.Mutex
	kind     backend.Kind
	cfg      backend.Config
	adapter  backend.Adapter
	database string
	closed   bool
}

// Info is the caller-visible description of one open connection.
type Info struct {
	ID       string       `json:"id"`
	Kind     backend.Kind `json:"kind"`
	Database string       `json:"database"`
}

// Manager is the session manager owning the id→handle map. Construct one at
// startup with New and tear it down with CloseAll at shutdown.
type Manager struct {
	mu    sync.RWMutex
	conns map[string]*handle
	open  openFunc
	log   *logger.Logger
}

// New creates an empty Manager. A nil log falls back to the default logger.
func New(log *logger.Logger) *Manager {
	if log == nil {
		log = logger.New(nil)
	}
	return &Manager{
		conns: make(map[string]*handle),
		open:  openAdapter,
		log:   log,
	}
}

// Open validates kind, connects the matching adapter, and registers the
// resulting handle under a freshly generated id.
func (m *Manager) Open(ctx context.Context, kind backend.Kind, cfg backend.Config) (string, error) {
	if !kind.Valid() {
		return "", errs.New(errs.KindUnsupportedBackend, fmt.Sprintf("unsupported backend kind %q", kind))
	}

	adapter, err := m.open(ctx, kind, cfg)
	if err != nil {
		return "", err
	}

	database := cfg.Database
	if kind == backend.KindSQLite {
		database = sqlite.MainDatabase
	}

	id := uuid.NewString()

	m.mu.Lock()
	m.conns[id] = &handle{
		kind:     kind,
		cfg:      cfg,
		adapter:  adapter,
		database: database,
	}
	m.mu.Unlock()

	m.log.With().Str("id", id).Str("kind", string(kind)).Str("database", database).Logger().
		Info("connection opened")
	return id, nil
}

// Get returns the caller-visible info for an open connection.
func (m *Manager) Get(id string) (Info, error) {
	var info Info
	err := m.withHandle(id, func(h *handle) error {
		info = Info{ID: id, Kind: h.kind, Database: h.database}
		return nil
	})
	return info, err
}

// List returns info for every open connection, in no particular order.
func (m *Manager) List() []Info {
	m.mu.RLock()
	ids := make([]string, 0, len(m.conns))
	for id := range m.conns {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	infos := make([]Info, 0, len(ids))
	for _, id := range ids {
		if info, err := m.Get(id); err == nil {
			infos = append(infos, info)
		}
	}
	return infos
}

// ListDatabases returns the backend's catalog of database names.
func (m *Manager) ListDatabases(ctx context.Context, id string) ([]string, error) {
	var names []string
	err := m.withHandle(id, func(h *handle) error {
		var err error
		names, err = h.adapter.ListDatabases(ctx)
		return err
	})
	return names, err
}

// UseDatabase binds the connection to another database.
//
// Backends that can rebind in place do so directly. When the adapter reports
// ErrRebindUnsupported, a fresh connection against the new database is built
// first; only once it is installed is the old native connection released, so
// a failed switch leaves the handle exactly as it was.
func (m *Manager) UseDatabase(ctx context.Context, id, name string) error {
	return m.withHandle(id, func(h *handle) error {
		err := h.adapter.UseDatabase(ctx, name)
		if err == nil {
			h.cfg.Database = name
			h.database = name
			m.log.With().Str("id", id).Str("database", name).Logger().Info("database switched")
			return nil
		}
		if !errors.Is(err, backend.ErrRebindUnsupported) {
			return err
		}

		// Session replacement: build the new connection before touching
		// the old one.
		cfg := h.cfg
		cfg.Database = name
		replacement, err := m.open(ctx, h.kind, cfg)
		if err != nil {
			return errs.Wrap(errs.KindBackendError,
				fmt.Sprintf("failed to switch to database %q", name), err)
		}

		old := h.adapter
		h.adapter = replacement
		h.cfg = cfg
		h.database = name
		if cerr := old.Close(); cerr != nil {
			m.log.With().Str("id", id).Err(cerr).Logger().Warn("failed to release replaced connection")
		}

		m.log.With().Str("id", id).Str("database", name).Logger().
			Info("database switched (connection replaced)")
		return nil
	})
}

// ListTables returns the base tables of the connection's current database.
func (m *Manager) ListTables(ctx context.Context, id string) ([]string, error) {
	var tables []string
	err := m.withHandle(id, func(h *handle) error {
		var err error
		tables, err = h.adapter.ListTables(ctx)
		return err
	})
	return tables, err
}

// DescribeTable returns normalized column descriptors for one table.
func (m *Manager) DescribeTable(ctx context.Context, id, table string) ([]backend.Column, error) {
	var cols []backend.Column
	err := m.withHandle(id, func(h *handle) error {
		var err error
		cols, err = h.adapter.DescribeTable(ctx, table)
		return err
	})
	return cols, err
}

// Execute runs the SQL string verbatim on the connection's backend.
func (m *Manager) Execute(ctx context.Context, id, sql string) (*backend.Result, error) {
	var result *backend.Result
	err := m.withHandle(id, func(h *handle) error {
		var err error
		result, err = h.adapter.Query(ctx, sql)
		return err
	})
	return result, err
}

// Close releases the connection's native resources and removes the registry
// entry. Closing an unknown or already-closed id succeeds silently.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	h, ok := m.conns[id]
	delete(m.conns, id)
	m.mu.Unlock()

	if !ok {
		return nil
	}

	// Wait for any in-flight operation before releasing the adapter.
	h.mu.Lock()
	h.closed = true
	adapter := h.adapter
	h.mu.Unlock()

	if err := adapter.Close(); err != nil {
		m.log.With().Str("id", id).Err(err).Logger().Warn("failed to release connection")
	}
	m.log.With().Str("id", id).Logger().Info("connection closed")
	return nil
}

// CloseAll closes every live connection. Called once at shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	handles := m.conns
	m.conns = make(map[string]*handle)
	m.mu.Unlock()

	for id, h := range handles {
		h.mu.Lock()
		h.closed = true
		adapter := h.adapter
		h.mu.Unlock()
		if err := adapter.Close(); err != nil {
			m.log.With().Str("id", id).Err(err).Logger().Warn("failed to release connection")
		}
	}
}

// withHandle resolves id and runs fn with the handle's operation lock held.
// Every public operation goes through here, which is what serializes
// concurrent calls against the same id.
func (m *Manager) withHandle(id string, fn func(h *handle) error) error {
	m.mu.RLock()
	h, ok := m.conns[id]
	m.mu.RUnlock()

	if !ok {
		return errs.New(errs.KindConnectionNotFound, fmt.Sprintf("no open connection with id %q", id))
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// The entry may have been closed while we waited for the lock.
	if h.closed {
		return errs.New(errs.KindConnectionNotFound, fmt.Sprintf("connection %q has been closed", id))
	}

	return fn(h)
}
