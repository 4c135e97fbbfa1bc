package multitable

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/huandu/go-sqlbuilder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gtdetl/internal/etlerr"
	"gtdetl/internal/star"
	"gtdetl/internal/storage"
	"gtdetl/pkg/records"
)

// fakeRepo records calls in order. Tables named in failReset / failInsert
// return errors.
type fakeRepo struct {
	calls      []string
	inserted   map[string]int
	failReset  map[string]bool
	failInsert map[string]bool
	insertErr  error
	closed     int
	ensured    []string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{inserted: map[string]int{}, failReset: map[string]bool{}, failInsert: map[string]bool{}}
}

func (f *fakeRepo) Close()                    { f.closed++ }
func (f *fakeRepo) Flavor() sqlbuilder.Flavor { return sqlbuilder.SQLite }

func (f *fakeRepo) EnsureTables(_ context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		f.ensured = append(f.ensured, t.Name)
	}
	return nil
}

func (f *fakeRepo) ResetTable(_ context.Context, spec storage.TableSpec) error {
	f.calls = append(f.calls, "reset "+spec.Name)
	if f.failReset[spec.Name] {
		return errors.New("locked")
	}
	return nil
}

func (f *fakeRepo) InsertRows(_ context.Context, spec storage.TableSpec, _ []string, rows [][]any) (int64, error) {
	f.calls = append(f.calls, "insert "+spec.Name)
	if f.failInsert[spec.Name] {
		if f.insertErr != nil {
			return 0, f.insertErr
		}
		return 0, errors.New("FOREIGN KEY constraint failed")
	}
	f.inserted[spec.Name] += len(rows)
	return int64(len(rows)), nil
}

func (f *fakeRepo) QueryAnalytical(context.Context, string, ...any) ([]storage.AnalyticalRow, error) {
	return nil, nil
}

// txRepo adds storage.Transactor on top of fakeRepo.
type txRepo struct {
	*fakeRepo
	txs       int
	committed bool
}

func (r *txRepo) WithinTx(_ context.Context, fn func(storage.Repository) error) error {
	r.txs++
	if err := fn(r.fakeRepo); err != nil {
		return err
	}
	r.committed = true
	return nil
}

func model(t *testing.T) *star.Model {
	t.Helper()
	m, err := star.Assemble(records.FromRecords(star.InputColumns(), []records.Record{
		incident(1, "A"), incident(2, "B"),
	}))
	require.NoError(t, err)
	return m
}

func TestLoader_ResetOrderAndBestEffort(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	repo.failReset[star.TableFact] = true
	repo.failReset[star.TableGroup] = true

	err := (&Loader{Repo: repo}).Reset(context.Background())

	var re *etlerr.ResetError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, []string{star.TableFact, star.TableGroup}, re.Tables)

	want := make([]string, 0)
	for _, tbl := range star.ResetOrder() {
		want = append(want, "reset "+tbl.Name)
	}
	assert.Equal(t, want, repo.calls, "every table is attempted")
}

func TestLoader_LoadOrder(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	stats, err := (&Loader{Repo: repo}).Load(context.Background(), model(t))
	require.NoError(t, err)

	want := []string{}
	for _, tbl := range star.Tables() {
		want = append(want, "insert "+tbl.Name)
	}
	assert.Equal(t, want, repo.calls)
	assert.Equal(t, int64(2), stats.Rows(star.TableFact))
	assert.Equal(t, int64(2), stats.Rows(star.TableGroup))
	assert.Equal(t, int64(1), stats.Rows(star.TableTime))
	assert.Equal(t, int64(0), stats.Rows("NOPE"))
}

func TestLoader_LoadStopsAtFirstViolation(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	repo.failInsert[star.TableFact] = true

	stats, err := (&Loader{Repo: repo}).Load(context.Background(), model(t))

	var cv *etlerr.ConstraintViolation
	require.True(t, errors.As(err, &cv))
	assert.Equal(t, star.TableFact, cv.Table)
	assert.Contains(t, err.Error(), "FOREIGN KEY")

	assert.NotContains(t, repo.calls, "insert "+star.TableBridge)
	assert.Len(t, stats.Tables, len(star.Dimensions()), "dimension loads are kept")
}

func TestLoader_LoadClassifiesInsertErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		constraint bool
		connection bool
		canceled   bool
	}{
		{name: "rejected_rows", err: errors.New("UNIQUE constraint failed"), constraint: true},
		{name: "canceled", err: fmt.Errorf("exec: %w", context.Canceled), canceled: true},
		{name: "bad_conn", err: fmt.Errorf("exec: %w", driver.ErrBadConn), connection: true},
		{name: "already_classified", err: &etlerr.ConnectivityError{Backend: "postgres", Err: errors.New("reset by peer")}, connection: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			repo := newFakeRepo()
			repo.failInsert[star.TableFact] = true
			repo.insertErr = tt.err

			_, err := (&Loader{Repo: repo}).Load(context.Background(), model(t))
			require.Error(t, err)

			var cv *etlerr.ConstraintViolation
			var ce *etlerr.ConnectivityError
			assert.Equal(t, tt.constraint, errors.As(err, &cv))
			assert.Equal(t, tt.connection, errors.As(err, &ce))
			assert.Equal(t, tt.canceled, errors.Is(err, context.Canceled))
			assert.Contains(t, err.Error(), tt.err.Error())
		})
	}
}

func TestLoader_ReloadNonAtomic(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	repo.failReset[star.TableWeapon] = true

	stats, err := (&Loader{Repo: repo}).Reload(context.Background(), model(t), false)

	var re *etlerr.ResetError
	require.True(t, errors.As(err, &re), "reset failure is reported")
	assert.Equal(t, int64(2), stats.Rows(star.TableFact), "load still ran")
	assert.Equal(t, "reset "+star.TableBridge, repo.calls[0])
	assert.Equal(t, "insert "+star.TableBridge, repo.calls[len(repo.calls)-1])
}

func TestLoader_ReloadAtomic(t *testing.T) {
	t.Parallel()

	t.Run("commits", func(t *testing.T) {
		t.Parallel()
		repo := &txRepo{fakeRepo: newFakeRepo()}
		stats, err := (&Loader{Repo: repo}).Reload(context.Background(), model(t), true)
		require.NoError(t, err)
		assert.Equal(t, 1, repo.txs)
		assert.True(t, repo.committed)
		assert.Equal(t, int64(2), stats.Rows(star.TableBridge))
	})

	t.Run("reset_failure_aborts", func(t *testing.T) {
		t.Parallel()
		repo := &txRepo{fakeRepo: newFakeRepo()}
		repo.failReset[star.TableTime] = true

		_, err := (&Loader{Repo: repo}).Reload(context.Background(), model(t), true)
		var re *etlerr.ResetError
		require.True(t, errors.As(err, &re))
		assert.False(t, repo.committed)
		assert.Empty(t, repo.inserted)
	})

	t.Run("without_transactor_falls_back", func(t *testing.T) {
		t.Parallel()
		repo := newFakeRepo()
		_, err := (&Loader{Repo: repo}).Reload(context.Background(), model(t), true)
		require.NoError(t, err)
		assert.Len(t, repo.calls, len(star.ResetOrder())+len(star.Tables()))
	})
}
