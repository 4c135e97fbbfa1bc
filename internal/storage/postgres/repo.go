package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"gtdetl/internal/etlerr"
	"gtdetl/internal/storage"
)

// conn is satisfied by both *pgxpool.Pool and pgx.Tx. Begin on a pgx.Tx
// opens a savepoint.
type conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
}

/*
Repo implements storage.Repository for Postgres.

It provides:
  - Idempotent DDL with identity surrogate keys
  - Bulk loads through COPY, one transaction per table
  - Sequence restarts on reset
  - Transaction-bound copies for atomic reloads
*/
type Repo struct {
	pool  *pgxpool.Pool
	conn  conn
	bound bool
}

var dialect = storage.Dialect{
	Flavor:           sqlbuilder.PostgreSQL,
	ColumnType:       columnType,
	AutoIncrementKey: autoIncrementKey,
}

// New creates a pool for cfg.DSN and checks it with a ping.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, &etlerr.ConnectivityError{Backend: "postgres", Err: err}
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &etlerr.ConnectivityError{Backend: "postgres", Err: err}
	}
	return &Repo{pool: pool, conn: pool}, nil
}

// Close closes the connection pool. A transaction-bound Repo does not own it.
func (r *Repo) Close() {
	if r.bound {
		return
	}
	r.pool.Close()
}

func (r *Repo) Flavor() sqlbuilder.Flavor { return sqlbuilder.PostgreSQL }

func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		ddl, err := buildCreateSQL(t)
		if err != nil {
			return err
		}
		if _, err := r.conn.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("postgres: create table %s: %w", t.Name, err)
		}
	}
	return nil
}

func (r *Repo) ResetTable(ctx context.Context, spec storage.TableSpec) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		q, args := dialect.DeleteAll(spec.Name)
		if _, err := tx.Exec(ctx, q, args...); err != nil {
			return fmt.Errorf("postgres: delete %s: %w", spec.Name, err)
		}
		if !spec.AutoIncrement() {
			return nil
		}
		q, args = buildResetSequenceSQL(spec)
		if _, err := tx.Exec(ctx, q, args...); err != nil {
			return fmt.Errorf("postgres: restart identity %s: %w", spec.Name, err)
		}
		return nil
	})
}

// InsertRows loads rows with COPY. Explicit identity values are accepted
// because keys are GENERATED BY DEFAULT; the identity sequence is not
// advanced past them.
func (r *Repo) InsertRows(ctx context.Context, spec storage.TableSpec, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	var n int64
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		n, err = tx.CopyFrom(ctx, pgx.Identifier{spec.Name}, columns, pgx.CopyFromRows(rows))
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (r *Repo) QueryAnalytical(ctx context.Context, query string, args ...any) ([]storage.AnalyticalRow, error) {
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[storage.AnalyticalRow])
}

func (r *Repo) WithinTx(ctx context.Context, fn func(storage.Repository) error) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		return fn(&Repo{pool: r.pool, conn: tx, bound: true})
	})
}

func (r *Repo) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// buildCreateSQL generates idempotent DDL for one table.
func buildCreateSQL(t storage.TableSpec) (string, error) {
	ctb, err := dialect.CreateTable(t)
	if err != nil {
		return "", err
	}
	ctb.IfNotExists()
	return ctb.String(), nil
}

// buildResetSequenceSQL restarts the identity sequence behind the table's
// generated key so the next default value is 1.
func buildResetSequenceSQL(t storage.TableSpec) (string, []any) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(fmt.Sprintf(
		"setval(pg_get_serial_sequence(%s, %s), 1, false)",
		sb.Var(sqlbuilder.PostgreSQL.Quote(t.Name)),
		sb.Var(t.PrimaryKey.Name),
	))
	return sb.Build()
}

// columnType maps logical types. Strings are TEXT regardless of Size;
// Postgres enforces VARCHAR lengths and source text is not length-checked.
func columnType(c storage.ColumnSpec) (string, error) {
	switch strings.ToLower(c.Type) {
	case storage.TypeInteger:
		return "INTEGER", nil
	case storage.TypeBigInt:
		return "BIGINT", nil
	case storage.TypeDouble:
		return "DOUBLE PRECISION", nil
	case storage.TypeString:
		return "TEXT", nil
	default:
		return "", fmt.Errorf("postgres: unsupported column type %q", c.Type)
	}
}

func autoIncrementKey(pk storage.PrimaryKeySpec) (string, error) {
	switch strings.ToLower(pk.Type) {
	case storage.TypeInteger:
		return "INTEGER GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY", nil
	case storage.TypeBigInt:
		return "BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY", nil
	default:
		return "", fmt.Errorf("postgres: identity key must be integer or bigint, got %q", pk.Type)
	}
}
