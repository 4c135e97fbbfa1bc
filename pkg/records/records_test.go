package records

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromRecords_AlignsAndFillsMissing(t *testing.T) {
	t.Parallel()

	rs := FromRecords([]string{"a", "b"}, []Record{
		{"a": int64(1), "b": "x"},
		{"a": int64(2)},
	})

	require.Equal(t, 2, rs.Len())
	assert.Equal(t, []any{int64(1), "x"}, rs.Rows[0])
	assert.Equal(t, []any{int64(2), nil}, rs.Rows[1])
	assert.Equal(t, "x", rs.Value(0, "b"))
	assert.Nil(t, rs.Value(0, "nope"))
}

func TestWithColumn_DoesNotMutateReceiver(t *testing.T) {
	t.Parallel()

	rs := New([]string{"a"}, [][]any{{1}, {2}})
	out := rs.WithColumn("k", []any{int64(10), nil})

	assert.Equal(t, []string{"a"}, rs.Columns)
	assert.Len(t, rs.Rows[0], 1)
	assert.Equal(t, []string{"a", "k"}, out.Columns)
	assert.Equal(t, []any{1, int64(10)}, out.Rows[0])
	assert.Equal(t, []any{2, nil}, out.Rows[1])
}

func TestProject(t *testing.T) {
	t.Parallel()

	rs := New([]string{"a", "b", "c"}, [][]any{{1, 2, 3}})

	p, err := rs.Project([]string{"c", "a"})
	require.NoError(t, err)
	assert.Equal(t, []any{3, 1}, p.Rows[0])

	_, err = rs.Project([]string{"zzz"})
	require.Error(t, err)
}

func TestFilter(t *testing.T) {
	t.Parallel()

	rs := New([]string{"a"}, [][]any{{1}, {2}, {3}})
	out := rs.Filter(func(row []any) bool { return row[0].(int) != 2 })

	require.Equal(t, 2, out.Len())
	assert.Equal(t, 3, out.Rows[1][0])
}
