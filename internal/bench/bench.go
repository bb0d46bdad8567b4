// Package bench times a set of named queries against an open connection and
// summarises their execution statistics. It runs through the normal execute
// path, so timings include the full round trip a caller would see.
//
// This is low-frequency tooling for spotting slow queries, not a load
// generator.
package bench

import (
	"context"
	"math"
	"time"

	"github.com/prateeksaini/dbridge/internal/backend"
	"github.com/prateeksaini/dbridge/internal/errs"
	"github.com/prateeksaini/dbridge/internal/logger"
)

// Runner is the slice of the registry the benchmark needs.
type Runner interface {
	Execute(ctx context.Context, id, sql string) (*backend.Result, error)
}

// Query is one named benchmark query.
type Query struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	SQL         string `json:"sql"`

	// Optional queries that fail are skipped instead of failing the run
	// (e.g. a query relying on an index the target may not have).
	Optional bool `json:"optional,omitempty"`
}

// Stats summarises the timings of one query across iterations.
type Stats struct {
	Name       string        `json:"name"`
	Iterations int           `json:"iterations"`
	Rows       int           `json:"rows"`
	Min        time.Duration `json:"min"`
	Max        time.Duration `json:"max"`
	Avg        time.Duration `json:"avg"`
	StdDev     time.Duration `json:"std_dev"`
}

// Report is the outcome of one benchmark run.
type Report struct {
	ConnectionID string   `json:"connection_id"`
	Queries      []Stats  `json:"queries"`
	Skipped      []string `json:"skipped,omitempty"`
}

// Bench runs query sets through a Runner.
type Bench struct {
	runner Runner
	log    *logger.Logger
}

// New creates a Bench. A nil log falls back to the default logger.
func New(runner Runner, log *logger.Logger) *Bench {
	if log == nil {
		log = logger.New(nil)
	}
	return &Bench{runner: runner, log: log}
}

// Run executes each query iterations times against the connection and
// collects timing statistics. iterations below 1 is treated as 1. A
// non-optional query failure aborts the run.
func (b *Bench) Run(ctx context.Context, id string, queries []Query, iterations int) (*Report, error) {
	if iterations < 1 {
		iterations = 1
	}

	report := &Report{ConnectionID: id}
	for _, q := range queries {
		stats, err := b.runOne(ctx, id, q, iterations)
		if err != nil {
			if q.Optional {
				b.log.With().Str("query", q.Name).Err(err).Logger().Warn("skipping optional benchmark query")
				report.Skipped = append(report.Skipped, q.Name)
				continue
			}
			return nil, errs.Wrap(errs.KindQueryFailed, "benchmark query "+q.Name+" failed", err)
		}
		report.Queries = append(report.Queries, *stats)
	}
	return report, nil
}

func (b *Bench) runOne(ctx context.Context, id string, q Query, iterations int) (*Stats, error) {
	times := make([]time.Duration, 0, iterations)
	rows := 0

	for i := 0; i < iterations; i++ {
		start := time.Now()
		result, err := b.runner.Execute(ctx, id, q.SQL)
		if err != nil {
			return nil, err
		}
		times = append(times, time.Since(start))
		rows = result.RowCount()
	}

	return &Stats{
		Name:       q.Name,
		Iterations: iterations,
		Rows:       rows,
		Min:        minOf(times),
		Max:        maxOf(times),
		Avg:        avgOf(times),
		StdDev:     stdDevOf(times),
	}, nil
}

func minOf(ts []time.Duration) time.Duration {
	m := ts[0]
	for _, t := range ts[1:] {
		if t < m {
			m = t
		}
	}
	return m
}

func maxOf(ts []time.Duration) time.Duration {
	m := ts[0]
	for _, t := range ts[1:] {
		if t > m {
			m = t
		}
	}
	return m
}

func avgOf(ts []time.Duration) time.Duration {
	var sum time.Duration
	for _, t := range ts {
		sum += t
	}
	return sum / time.Duration(len(ts))
}

func stdDevOf(ts []time.Duration) time.Duration {
	if len(ts) < 2 {
		return 0
	}
	avg := float64(avgOf(ts))
	var variance float64
	for _, t := range ts {
		d := float64(t) - avg
		variance += d * d
	}
	variance /= float64(len(ts) - 1)
	return time.Duration(math.Sqrt(variance))
}
