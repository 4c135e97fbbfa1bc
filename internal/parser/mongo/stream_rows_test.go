package mongo

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"gtdetl/internal/config"
	"gtdetl/internal/transformer"
)

// fakeCursor replays a fixed list of documents.
type fakeCursor struct {
	docs   []bson.M
	pos    int
	decErr map[int]error
	err    error
	closed bool
}

func (c *fakeCursor) Next(ctx context.Context) bool {
	if ctx.Err() != nil || c.pos >= len(c.docs) {
		return false
	}
	c.pos++
	return true
}

func (c *fakeCursor) Decode(val any) error {
	if err := c.decErr[c.pos-1]; err != nil {
		return err
	}
	*(val.(*bson.M)) = c.docs[c.pos-1]
	return nil
}

func (c *fakeCursor) Err() error { return c.err }

func (c *fakeCursor) Close(context.Context) error {
	c.closed = true
	return nil
}

func drain(out chan *transformer.Row) [][]any {
	var rows [][]any
	for r := range out {
		rows = append(rows, append([]any(nil), r.V...))
		r.Free()
	}
	return rows
}

func TestStreamCursor_MapsDocuments(t *testing.T) {
	t.Parallel()

	oid := primitive.NewObjectID()
	dec, err := primitive.ParseDecimal128("12.5")
	require.NoError(t, err)

	cur := &fakeCursor{docs: []bson.M{
		{"_id": oid, "eventid": int64(197000000001), "gsubname": "Cell", "propvalue": dec},
		{"_id": oid, "eventid": int32(2), "corp1": "", "tags": bson.A{"a", "b"}},
	}}

	out := make(chan *transformer.Row, 8)
	err = StreamCursor(context.Background(), cur, []string{"eventid", "subgname", "propvalue", "corp1", "tags"},
		config.Options{"header_map": map[string]any{"gsubname": "subgname"}}, out, nil)
	close(out)
	require.NoError(t, err)

	rows := drain(out)
	require.Len(t, rows, 2)
	assert.Equal(t, []any{int64(197000000001), "Cell", "12.5", nil, nil}, rows[0])
	assert.Equal(t, []any{int32(2), nil, nil, "", "a,b"}, rows[1])
	assert.True(t, cur.closed)
}

func TestStreamCursor_NullFieldsArePresent(t *testing.T) {
	t.Parallel()

	cur := &fakeCursor{docs: []bson.M{{"eventid": int64(1), "corp1": nil, "propvalue": primitive.Null{}}}}

	out := make(chan *transformer.Row, 1)
	err := StreamCursor(context.Background(), cur, []string{"eventid", "corp1", "propvalue", "city"}, nil, out, nil)
	close(out)
	require.NoError(t, err)

	r := <-out
	assert.Equal(t, []any{int64(1), nil, nil, nil}, r.V)
	assert.Equal(t, []bool{true, true, true, false}, r.Present)
}

func TestProjection(t *testing.T) {
	t.Parallel()

	keys := sourceKeys([]string{"eventid", "subgname", "_id"}, map[string]string{"gsubname": "subgname"})
	assert.Equal(t, bson.D{
		{Key: "_id", Value: 0},
		{Key: "eventid", Value: 1},
		{Key: "subgname", Value: 1},
		{Key: "gsubname", Value: 1},
	}, projection(keys))
}

func TestStreamCursor_DecodeErrorSkipsDocument(t *testing.T) {
	t.Parallel()

	cur := &fakeCursor{
		docs:   []bson.M{{"eventid": int64(1)}, {"eventid": int64(2)}},
		decErr: map[int]error{0: errors.New("bad bson")},
	}

	var lines []int
	out := make(chan *transformer.Row, 8)
	err := StreamCursor(context.Background(), cur, []string{"eventid"}, nil, out, func(line int, _ error) {
		lines = append(lines, line)
	})
	close(out)
	require.NoError(t, err)

	rows := drain(out)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2), rows[0][0])
	assert.Equal(t, []int{1}, lines)
}

func TestStreamCursor_CursorError(t *testing.T) {
	t.Parallel()

	cur := &fakeCursor{err: errors.New("connection reset")}
	out := make(chan *transformer.Row, 1)
	err := StreamCursor(context.Background(), cur, []string{"eventid"}, nil, out, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.True(t, cur.closed)
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	assert.Nil(t, normalize(primitive.Null{}))
	assert.Equal(t, "x", normalize("x"))
	assert.Equal(t, int32(4), normalize(int32(4)))
}
