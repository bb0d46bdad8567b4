package backend

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prateeksaini/dbridge/internal/errs"
)

// fakeRows replays canned rows through the Rows interface.
type fakeRows struct {
	columns []string
	data    [][]any
	pos     int
	iterErr error
	closed  bool
}

func (f *fakeRows) Next() bool {
	if f.pos >= len(f.data) {
		return false
	}
	f.pos++
	return true
}

func (f *fakeRows) Scan(dest ...any) error {
	row := f.data[f.pos-1]
	for i, d := range dest {
		*(d.(*any)) = row[i]
	}
	return nil
}

func (f *fakeRows) Columns() ([]string, error) { return f.columns, nil }
func (f *fakeRows) Close()                     { f.closed = true }
func (f *fakeRows) Err() error                 { return f.iterErr }

func TestCollectResult(t *testing.T) {
	rows := &fakeRows{
		columns: []string{"id", "name", "active"},
		data: [][]any{
			{int64(1), []byte("alice"), true},
			{int64(2), nil, false},
		},
	}

	result, err := CollectResult(rows)
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "name", "active"}, result.Columns)
	require.Equal(t, 2, result.RowCount())

	// Numeric values pass through unconverted; []byte text surfaces as string.
	assert.Equal(t, int64(1), result.Rows[0]["id"])
	assert.Equal(t, "alice", result.Rows[0]["name"])
	assert.Equal(t, true, result.Rows[0]["active"])
	assert.Nil(t, result.Rows[1]["name"])

	assert.True(t, rows.closed)
}

func TestCollectResultEmpty(t *testing.T) {
	result, err := CollectResult(&fakeRows{columns: []string{"id"}})
	require.NoError(t, err)
	assert.Equal(t, 0, result.RowCount())
	assert.NotNil(t, result.Rows)
	assert.Equal(t, []string{"id"}, result.Columns)
}

func TestCollectResultIterationError(t *testing.T) {
	rows := &fakeRows{
		columns: []string{"id"},
		iterErr: errors.New("connection lost"),
	}

	_, err := CollectResult(rows)
	require.Error(t, err)
	assert.True(t, errs.IsQueryFailed(err))
	assert.True(t, rows.closed)
}
