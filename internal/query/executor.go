// Package query is the thin pass-through layer between callers and the
// registry's execute operation. It performs no SQL validation, no injection
// sanitization, and no statement allow-listing — callers are trusted to
// supply complete SQL text, and backend values reach them unconverted.
package query

import (
	"context"

	"github.com/prateeksaini/dbridge/internal/backend"
)

// Runner is the slice of the registry the executor needs.
type Runner interface {
	Execute(ctx context.Context, id, sql string) (*backend.Result, error)
}

// Executor forwards raw SQL to a connection and returns normalized rows.
type Executor struct {
	runner Runner
}

// New creates an Executor over the given runner.
func New(runner Runner) *Executor {
	return &Executor{runner: runner}
}

// Execute runs sql verbatim against the connection identified by id.
// An empty result set is a valid outcome: zero rows, nil error.
func (e *Executor) Execute(ctx context.Context, id, sql string) (*backend.Result, error) {
	return e.runner.Execute(ctx, id, sql)
}
