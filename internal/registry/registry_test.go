package registry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prateeksaini/dbridge/internal/backend"
	"github.com/prateeksaini/dbridge/internal/errs"
)

// fakeAdapter implements backend.Adapter in memory. It counts overlapping
// operations so tests can prove per-id serialization, and records lifecycle
// events so tests can prove release ordering.
type fakeAdapter struct {
	database  string
	canRebind bool

	closed    atomic.Bool
	active    atomic.Int32
	maxActive atomic.Int32
	queries   atomic.Int32
}

func (f *fakeAdapter) enter() {
	n := f.active.Add(1)
	for {
		m := f.maxActive.Load()
		if n <= m || f.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
}

func (f *fakeAdapter) leave() { f.active.Add(-1) }

func (f *fakeAdapter) Ping(ctx context.Context) error { return nil }

func (f *fakeAdapter) ListDatabases(ctx context.Context) ([]string, error) {
	return []string{"alpha", "beta"}, nil
}

func (f *fakeAdapter) UseDatabase(ctx context.Context, name string) error {
	f.enter()
	defer f.leave()
	if !f.canRebind {
		return backend.ErrRebindUnsupported
	}
	f.database = name
	return nil
}

func (f *fakeAdapter) ListTables(ctx context.Context) ([]string, error) {
	f.enter()
	defer f.leave()
	return []string{"users"}, nil
}

func (f *fakeAdapter) DescribeTable(ctx context.Context, table string) ([]backend.Column, error) {
	return []backend.Column{{Name: "id", DataType: "integer", IsPrimary: true}}, nil
}

func (f *fakeAdapter) Query(ctx context.Context, sql string) (*backend.Result, error) {
	f.enter()
	defer f.leave()
	if f.closed.Load() {
		return nil, fmt.Errorf("query on closed adapter")
	}
	f.queries.Add(1)
	return &backend.Result{
		Columns: []string{"db"},
		Rows:    []map[string]any{{"db": f.database}},
	}, nil
}

func (f *fakeAdapter) Close() error {
	f.closed.Store(true)
	return nil
}

// newTestManager returns a Manager whose opener hands out fake adapters and
// records every adapter it created.
func newTestManager(canRebind bool, connectErr error) (*Manager, *[]*fakeAdapter) {
	var created []*fakeAdapter
	m := New(nil)
	m.open = func(ctx context.Context, kind backend.Kind, cfg backend.Config) (backend.Adapter, error) {
		if connectErr != nil {
			return nil, connectErr
		}
		f := &fakeAdapter{database: cfg.Database, canRebind: canRebind}
		created = append(created, f)
		return f, nil
	}
	return m, &created
}

func TestOpenUnsupportedBackend(t *testing.T) {
	m, _ := newTestManager(true, nil)

	_, err := m.Open(context.Background(), backend.Kind("oracle"), backend.Config{})
	require.Error(t, err)
	assert.True(t, errs.IsUnsupportedBackend(err))
}

func TestOpenConnectFailure(t *testing.T) {
	connectErr := errs.New(errs.KindConnectFailed, "connection refused")
	m, _ := newTestManager(true, connectErr)

	_, err := m.Open(context.Background(), backend.KindMySQL, backend.Config{})
	require.Error(t, err)
	assert.True(t, errs.IsConnectFailed(err))
	assert.Empty(t, m.List())
}

func TestOpenThenCloseLeavesNothingRegistered(t *testing.T) {
	ctx := context.Background()
	m, created := newTestManager(true, nil)

	id, err := m.Open(ctx, backend.KindMySQL, backend.Config{Database: "shop"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.NoError(t, m.Close(id))
	assert.True(t, (*created)[0].closed.Load())

	_, err = m.Get(id)
	assert.True(t, errs.IsConnectionNotFound(err))

	_, err = m.Execute(ctx, id, "SELECT 1")
	assert.True(t, errs.IsConnectionNotFound(err))
}

func TestCloseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(true, nil)

	id, err := m.Open(ctx, backend.KindSQLite, backend.Config{Host: "x.db"})
	require.NoError(t, err)

	require.NoError(t, m.Close(id))
	require.NoError(t, m.Close(id))
	require.NoError(t, m.Close("never-existed"))
}

func TestOperationsOnUnknownID(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(true, nil)

	_, err := m.ListDatabases(ctx, "nope")
	assert.True(t, errs.IsConnectionNotFound(err))
	_, err = m.ListTables(ctx, "nope")
	assert.True(t, errs.IsConnectionNotFound(err))
	_, err = m.DescribeTable(ctx, "nope", "users")
	assert.True(t, errs.IsConnectionNotFound(err))
	err = m.UseDatabase(ctx, "nope", "other")
	assert.True(t, errs.IsConnectionNotFound(err))
}

func TestUseDatabaseInPlace(t *testing.T) {
	ctx := context.Background()
	m, created := newTestManager(true, nil)

	id, err := m.Open(ctx, backend.KindMySQL, backend.Config{Database: "shop"})
	require.NoError(t, err)

	require.NoError(t, m.UseDatabase(ctx, id, "warehouse"))

	info, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "warehouse", info.Database)

	// No replacement happened: still the one adapter, still open.
	assert.Len(t, *created, 1)
	assert.False(t, (*created)[0].closed.Load())

	// The stored config follows the switch, so a later replacement would
	// start from the right database.
	m.mu.RLock()
	h := m.conns[id]
	m.mu.RUnlock()
	assert.Equal(t, "warehouse", h.cfg.Database)
}

func TestUseDatabaseReplacesConnection(t *testing.T) {
	ctx := context.Background()
	m, created := newTestManager(false, nil)

	id, err := m.Open(ctx, backend.KindPostgres, backend.Config{Database: "shop"})
	require.NoError(t, err)

	require.NoError(t, m.UseDatabase(ctx, id, "warehouse"))

	require.Len(t, *created, 2)
	old, replacement := (*created)[0], (*created)[1]

	// Old native connection released, new one installed and serving.
	assert.True(t, old.closed.Load())
	assert.False(t, replacement.closed.Load())
	assert.Equal(t, "warehouse", replacement.database)

	result, err := m.Execute(ctx, id, "SELECT current_database()")
	require.NoError(t, err)
	assert.Equal(t, "warehouse", result.Rows[0]["db"])
}

func TestUseDatabaseReplacementFailureKeepsOldConnection(t *testing.T) {
	ctx := context.Background()
	m, created := newTestManager(false, nil)

	id, err := m.Open(ctx, backend.KindPostgres, backend.Config{Database: "shop"})
	require.NoError(t, err)

	// Subsequent opens fail, as if the new database name were invalid.
	m.open = func(ctx context.Context, kind backend.Kind, cfg backend.Config) (backend.Adapter, error) {
		return nil, errs.New(errs.KindConnectFailed, `database "bogus" does not exist`)
	}

	err = m.UseDatabase(ctx, id, "bogus")
	require.Error(t, err)
	assert.True(t, errs.IsBackendError(err))

	// The original connection is intact and still bound to the old database.
	assert.False(t, (*created)[0].closed.Load())

	info, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "shop", info.Database)

	result, err := m.Execute(ctx, id, "SELECT current_database()")
	require.NoError(t, err)
	assert.Equal(t, "shop", result.Rows[0]["db"])
}

func TestConcurrentOperationsOnOneIDAreSerialized(t *testing.T) {
	ctx := context.Background()
	m, created := newTestManager(false, nil)

	id, err := m.Open(ctx, backend.KindPostgres, backend.Config{Database: "shop"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%10 == 0 {
				// Interleave database switches, each of which replaces
				// the native connection.
				_ = m.UseDatabase(ctx, id, fmt.Sprintf("db%d", i))
				return
			}
			// Either outcome is fine; what must never happen is a
			// query hitting a released connection.
			result, err := m.Execute(ctx, id, "SELECT 1")
			if err == nil {
				assert.NotNil(t, result)
			}
		}(i)
	}
	wg.Wait()

	// At most one operation was ever inside any adapter at a time.
	for _, f := range *created {
		assert.LessOrEqual(t, f.maxActive.Load(), int32(1))
	}
}

func TestConcurrentOperationsOnDistinctIDs(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(true, nil)

	ids := make([]string, 8)
	for i := range ids {
		id, err := m.Open(ctx, backend.KindMySQL, backend.Config{Database: "shop"})
		require.NoError(t, err)
		ids[i] = id
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				_, err := m.Execute(ctx, id, "SELECT 1")
				assert.NoError(t, err)
			}(id)
		}
	}
	wg.Wait()

	assert.Len(t, m.List(), 8)
}

func TestCloseAll(t *testing.T) {
	ctx := context.Background()
	m, created := newTestManager(true, nil)

	for i := 0; i < 3; i++ {
		_, err := m.Open(ctx, backend.KindMySQL, backend.Config{})
		require.NoError(t, err)
	}

	m.CloseAll()

	assert.Empty(t, m.List())
	for _, f := range *created {
		assert.True(t, f.closed.Load())
	}
}

func TestSQLiteDatabaseNameIsFixed(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(true, nil)

	id, err := m.Open(ctx, backend.KindSQLite, backend.Config{Host: "./fixture.db"})
	require.NoError(t, err)

	info, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "main", info.Database)
}
