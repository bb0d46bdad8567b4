package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/prateeksaini/dbridge/internal/backend"
	"github.com/prateeksaini/dbridge/internal/bench"
	"github.com/prateeksaini/dbridge/internal/errs"
)

type openRequest struct {
	Kind     string `json:"kind"`
	Host     string `json:"host"`
	Port     int    `json:"port,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
	Database string `json:"database,omitempty"`
}

type useDatabaseRequest struct {
	Name string `json:"name"`
}

type queryRequest struct {
	SQL string `json:"sql"`
}

type benchmarkRequest struct {
	Queries    []bench.Query `json:"queries"`
	Iterations int           `json:"iterations,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.Wrap(errs.KindInvalidInput, "invalid request body", err))
		return
	}

	cfg := s.pool
	cfg.Host = req.Host
	cfg.Port = req.Port
	cfg.User = req.User
	cfg.Password = req.Password
	cfg.Database = req.Database

	id, err := s.svc.Open(r.Context(), backend.Kind(req.Kind), cfg)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"connections": s.svc.List()})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.svc.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	// Close is idempotent: unknown ids succeed silently.
	if err := s.svc.Close(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

func (s *Server) handleListDatabases(w http.ResponseWriter, r *http.Request) {
	names, err := s.svc.ListDatabases(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"names": names})
}

func (s *Server) handleUseDatabase(w http.ResponseWriter, r *http.Request) {
	var req useDatabaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.Wrap(errs.KindInvalidInput, "invalid request body", err))
		return
	}
	if req.Name == "" {
		writeError(w, errs.New(errs.KindInvalidInput, "database name is required"))
		return
	}

	if err := s.svc.UseDatabase(r.Context(), chi.URLParam(r, "id"), req.Name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"database": req.Name})
}

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	names, err := s.svc.ListTables(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"names": names})
}

func (s *Server) handleDescribeTable(w http.ResponseWriter, r *http.Request) {
	cols, err := s.svc.DescribeTable(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "table"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"columns": toColumnPayload(cols)})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.Wrap(errs.KindInvalidInput, "invalid request body", err))
		return
	}
	if req.SQL == "" {
		writeError(w, errs.New(errs.KindInvalidInput, "sql is required"))
		return
	}

	result, err := s.exec.Execute(r.Context(), chi.URLParam(r, "id"), req.SQL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"columns": result.Columns,
		"rows":    result.Rows,
	})
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	text, err := s.intro.DescribeSchema(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

func (s *Server) handleBenchmark(w http.ResponseWriter, r *http.Request) {
	var req benchmarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.Wrap(errs.KindInvalidInput, "invalid request body", err))
		return
	}
	if len(req.Queries) == 0 {
		writeError(w, errs.New(errs.KindInvalidInput, "at least one query is required"))
		return
	}

	report, err := s.bench.Run(r.Context(), chi.URLParam(r, "id"), req.Queries, req.Iterations)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// columnPayload is the JSON shape of a column descriptor.
type columnPayload struct {
	Name      string  `json:"name"`
	DataType  string  `json:"data_type"`
	Nullable  bool    `json:"nullable"`
	IsPrimary bool    `json:"is_primary_key"`
	IsUnique  bool    `json:"is_unique"`
	HasIndex  bool    `json:"has_index"`
	Default   *string `json:"default,omitempty"`
	Extra     string  `json:"extra,omitempty"`
}

func toColumnPayload(cols []backend.Column) []columnPayload {
	out := make([]columnPayload, len(cols))
	for i, c := range cols {
		out[i] = columnPayload{
			Name:      c.Name,
			DataType:  c.DataType,
			Nullable:  c.Nullable,
			IsPrimary: c.IsPrimary,
			IsUnique:  c.IsUnique,
			HasIndex:  c.HasIndex,
			Default:   c.Default,
			Extra:     c.Extra,
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps an error kind to an HTTP status and writes the failure as
// a structured body. Backend messages are passed through so callers can
// diagnose SQL mistakes from the response alone.
func writeError(w http.ResponseWriter, err error) {
	kind := errs.KindOf(err)

	status := http.StatusInternalServerError
	switch kind {
	case errs.KindUnsupportedBackend, errs.KindInvalidInput:
		status = http.StatusBadRequest
	case errs.KindConnectionNotFound:
		status = http.StatusNotFound
	case errs.KindConnectFailed:
		status = http.StatusBadGateway
	case errs.KindQueryFailed, errs.KindBackendError:
		status = http.StatusUnprocessableEntity
	case errs.KindTimeout:
		status = http.StatusGatewayTimeout
	}

	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind.String()})
}
