package csv

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gtdetl/internal/config"
	"gtdetl/internal/transformer"
)

func runStream(t *testing.T, data []byte, columns []string, opt config.Options) ([][]any, []error) {
	t.Helper()

	out := make(chan *transformer.Row, 16)
	var errs []error
	done := make(chan error, 1)
	go func() {
		done <- StreamRows(context.Background(), io.NopCloser(bytes.NewReader(data)), columns, opt, out, func(_ int, err error) {
			errs = append(errs, err)
		})
		close(out)
	}()

	var rows [][]any
	for r := range out {
		rows = append(rows, append([]any(nil), r.V...))
		r.Free()
	}
	require.NoError(t, <-done)
	return rows, errs
}

func TestStreamRows_HeaderMappingAndEmptyCells(t *testing.T) {
	t.Parallel()

	data := "\uFEFFeventid, Country_txt ,gsubname,corp1\n1,USA,,\n2, Mexico ,Cell A,Acme\n"
	cols := []string{"eventid", "country_txt", "subgname", "corp1", "city"}

	rows, errs := runStream(t, []byte(data), cols, config.Options{
		"header_map": map[string]any{"gsubname": "subgname"},
	})

	require.Empty(t, errs)
	require.Len(t, rows, 2)
	assert.Equal(t, []any{"1", "USA", "", "", nil}, rows[0])
	assert.Equal(t, []any{"2", "Mexico", "Cell A", "Acme", nil}, rows[1])
}

func TestStreamRows_Latin1(t *testing.T) {
	t.Parallel()

	// "Côte d'Ivoire" in ISO-8859-1: ô is 0xF4.
	data := []byte("eventid,country_txt\n1,C\xf4te d'Ivoire\n")

	rows, _ := runStream(t, data, []string{"eventid", "country_txt"}, config.Options{"encoding": "latin1"})
	require.Len(t, rows, 1)
	assert.Equal(t, "Côte d'Ivoire", rows[0][1])
}

func TestStreamRows_NoHeaderAndSemicolon(t *testing.T) {
	t.Parallel()

	rows, _ := runStream(t, []byte("1;A\n2;B\n"), []string{"eventid", "gname"}, config.Options{
		"has_header": false,
		"comma":      ";",
	})
	require.Len(t, rows, 2)
	assert.Equal(t, []any{"2", "B"}, rows[1])
}

func TestStreamRows_ShortRecordAndBadQuote(t *testing.T) {
	t.Parallel()

	data := "eventid,gname,city\n1,A\n2,\"bad\"x,C\n3,B,D\n"
	rows, errs := runStream(t, []byte(data), []string{"eventid", "gname", "city"}, nil)

	require.Len(t, errs, 1)
	require.Len(t, rows, 2)
	assert.Equal(t, []any{"1", "A", ""}, rows[0])
	assert.Equal(t, []any{"3", "B", "D"}, rows[1])
}

func TestStreamRows_EmptyInput(t *testing.T) {
	t.Parallel()

	rows, errs := runStream(t, nil, []string{"eventid"}, nil)
	assert.Empty(t, rows)
	assert.Empty(t, errs)
}

func TestStreamRows_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := make(chan *transformer.Row)
	err := StreamRows(ctx, io.NopCloser(strings.NewReader("eventid\n1\n")), []string{"eventid"}, nil, out, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestNormalizeHeader(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "attack_type", NormalizeHeader(" Attack Type ", false, nil))
	assert.Equal(t, "subgname", NormalizeHeader("GSubName", false, map[string]string{"gsubname": "subgname"}))
	assert.Equal(t, "eventid", NormalizeHeader("\uFEFFeventid", true, nil))
}
