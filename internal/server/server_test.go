package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prateeksaini/dbridge/internal/backend"
	"github.com/prateeksaini/dbridge/internal/errs"
	"github.com/prateeksaini/dbridge/internal/registry"
)

// stubService is an in-memory Service with one well-known connection.
type stubService struct {
	openKind backend.Kind
	openCfg  backend.Config
	closed   []string
}

const knownID = "11111111-2222-3333-4444-555555555555"

func (s *stubService) Open(ctx context.Context, kind backend.Kind, cfg backend.Config) (string, error) {
	if !kind.Valid() {
		return "", errs.New(errs.KindUnsupportedBackend, fmt.Sprintf("unsupported backend kind %q", kind))
	}
	s.openKind, s.openCfg = kind, cfg
	return knownID, nil
}

func (s *stubService) check(id string) error {
	if id != knownID {
		return errs.New(errs.KindConnectionNotFound, fmt.Sprintf("no open connection with id %q", id))
	}
	return nil
}

func (s *stubService) Get(id string) (registry.Info, error) {
	if err := s.check(id); err != nil {
		return registry.Info{}, err
	}
	return registry.Info{ID: id, Kind: backend.KindSQLite, Database: "main"}, nil
}

func (s *stubService) List() []registry.Info {
	return []registry.Info{{ID: knownID, Kind: backend.KindSQLite, Database: "main"}}
}

func (s *stubService) ListDatabases(ctx context.Context, id string) ([]string, error) {
	if err := s.check(id); err != nil {
		return nil, err
	}
	return []string{"main"}, nil
}

func (s *stubService) UseDatabase(ctx context.Context, id, name string) error {
	return s.check(id)
}

func (s *stubService) ListTables(ctx context.Context, id string) ([]string, error) {
	if err := s.check(id); err != nil {
		return nil, err
	}
	return []string{"users"}, nil
}

func (s *stubService) DescribeTable(ctx context.Context, id, table string) ([]backend.Column, error) {
	if err := s.check(id); err != nil {
		return nil, err
	}
	if table != "users" {
		return nil, errs.New(errs.KindBackendError, fmt.Sprintf("table %q does not exist", table))
	}
	return []backend.Column{
		{Name: "id", DataType: "integer", IsPrimary: true, HasIndex: true},
		{Name: "name", DataType: "text", Nullable: true},
	}, nil
}

func (s *stubService) Execute(ctx context.Context, id, sql string) (*backend.Result, error) {
	if err := s.check(id); err != nil {
		return nil, err
	}
	if sql == "SELECT broken" {
		return nil, errs.New(errs.KindQueryFailed, "near \"broken\": syntax error")
	}
	return &backend.Result{
		Columns: []string{"id", "name"},
		Rows: []map[string]any{
			{"id": int64(1), "name": "alice"},
			{"id": int64(2), "name": "bob"},
		},
	}, nil
}

func (s *stubService) Close(id string) error {
	s.closed = append(s.closed, id)
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *stubService) {
	t.Helper()
	svc := &stubService{}
	ts := httptest.NewServer(New(svc, backend.DefaultConfig(), nil).Routes())
	t.Cleanup(ts.Close)
	return ts, svc
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var payload map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return resp, payload
}

func TestOpenConnection(t *testing.T) {
	ts, svc := newTestServer(t)

	resp, payload := doJSON(t, http.MethodPost, ts.URL+"/connections", map[string]any{
		"kind": "sqlite",
		"host": "./fixture.db",
	})

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, knownID, payload["id"])
	assert.Equal(t, backend.KindSQLite, svc.openKind)
	assert.Equal(t, "./fixture.db", svc.openCfg.Host)
}

func TestOpenUnsupportedKind(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, payload := doJSON(t, http.MethodPost, ts.URL+"/connections", map[string]any{
		"kind": "mongodb",
	})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "unsupported_backend", payload["kind"])
}

func TestUnknownConnectionIs404(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, payload := doJSON(t, http.MethodGet, ts.URL+"/connections/bogus/tables", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "connection_not_found", payload["kind"])
}

func TestListTables(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, payload := doJSON(t, http.MethodGet, ts.URL+"/connections/"+knownID+"/tables", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{"users"}, payload["names"])
}

func TestDescribeTable(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, payload := doJSON(t, http.MethodGet, ts.URL+"/connections/"+knownID+"/tables/users", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cols, ok := payload["columns"].([]any)
	require.True(t, ok)
	require.Len(t, cols, 2)

	first := cols[0].(map[string]any)
	assert.Equal(t, "id", first["name"])
	assert.Equal(t, true, first["is_primary_key"])
}

func TestQuery(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, payload := doJSON(t, http.MethodPost, ts.URL+"/connections/"+knownID+"/query",
		map[string]string{"sql": "SELECT * FROM users"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, []any{"id", "name"}, payload["columns"])
	rows := payload["rows"].([]any)
	require.Len(t, rows, 2)
	assert.Equal(t, "alice", rows[0].(map[string]any)["name"])
}

func TestQueryFailurePreservesBackendMessage(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, payload := doJSON(t, http.MethodPost, ts.URL+"/connections/"+knownID+"/query",
		map[string]string{"sql": "SELECT broken"})

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, payload["error"], "syntax error")
	assert.Equal(t, "query_failed", payload["kind"])
}

func TestQueryRequiresSQL(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/connections/"+knownID+"/query",
		map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSchemaText(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, payload := doJSON(t, http.MethodGet, ts.URL+"/connections/"+knownID+"/schema", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	text, ok := payload["text"].(string)
	require.True(t, ok)
	assert.Contains(t, text, "Table: users")
	assert.Contains(t, text, "- id (integer) [PRIMARY KEY]")
}

func TestCloseConnection(t *testing.T) {
	ts, svc := newTestServer(t)

	resp, _ := doJSON(t, http.MethodDelete, ts.URL+"/connections/"+knownID, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{knownID}, svc.closed)

	// Idempotent: closing an unknown id also succeeds.
	resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/connections/bogus", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBenchmark(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, payload := doJSON(t, http.MethodPost, ts.URL+"/connections/"+knownID+"/benchmark",
		map[string]any{
			"queries":    []map[string]any{{"name": "q1", "sql": "SELECT * FROM users"}},
			"iterations": 2,
		})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	queries := payload["queries"].([]any)
	require.Len(t, queries, 1)
	stats := queries[0].(map[string]any)
	assert.Equal(t, "q1", stats["name"])
	assert.EqualValues(t, 2, stats["iterations"])
}
