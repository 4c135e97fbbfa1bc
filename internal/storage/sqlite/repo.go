package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"gtdetl/internal/etlerr"
	"gtdetl/internal/storage"
)

// MaxParams is SQLite's default SQLITE_MAX_VARIABLE_NUMBER.
const MaxParams = 32766

// Repo implements storage.Repository for SQLite.
//
// Key design points vs Postgres:
//   - Foreign keys are enforced only when the connection sets
//     PRAGMA foreign_keys, so the DSN always carries it.
//   - AUTOINCREMENT counters live in sqlite_sequence; resetting a table
//     deletes its row there.
//   - The pool holds a single connection. In-memory databases are per
//     connection and the pipeline is a single writer anyway.
type Repo struct {
	db    *sqlx.DB
	tx    *sqlx.Tx
	batch int
}

var dialect = storage.Dialect{
	Flavor:           sqlbuilder.SQLite,
	ColumnType:       columnType,
	AutoIncrementKey: autoIncrementKey,
}

func init() {
	storage.Register("sqlite", New)
}

// New opens the database at cfg.DSN with foreign keys enabled.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sqlx.Open("sqlite", WithForeignKeys(cfg.DSN))
	if err != nil {
		return nil, &etlerr.ConnectivityError{Backend: "sqlite", Err: err}
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &etlerr.ConnectivityError{Backend: "sqlite", Err: err}
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = 1"); err != nil {
		_ = db.Close()
		return nil, &etlerr.ConnectivityError{Backend: "sqlite", Err: err}
	}
	return &Repo{db: db, batch: cfg.BatchSize}, nil
}

// WithForeignKeys appends the foreign_keys pragma to dsn unless present.
func WithForeignKeys(dsn string) string {
	if strings.Contains(dsn, "foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)"
}

// Close closes the database. A transaction-bound Repo does not own it.
func (r *Repo) Close() {
	if r.tx != nil {
		return
	}
	_ = r.db.Close()
}

func (r *Repo) Flavor() sqlbuilder.Flavor { return sqlbuilder.SQLite }

func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		ctb, err := dialect.CreateTable(t)
		if err != nil {
			return err
		}
		ctb.IfNotExists()
		if _, err := r.ext().ExecContext(ctx, ctb.String()); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
	}
	return nil
}

func (r *Repo) ResetTable(ctx context.Context, spec storage.TableSpec) error {
	return r.inTx(ctx, func(ex sqlx.ExtContext) error {
		q, args := dialect.DeleteAll(spec.Name)
		if _, err := ex.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("delete %s: %w", spec.Name, err)
		}
		if !spec.AutoIncrement() {
			return nil
		}

		seq := sqlbuilder.SQLite.NewDeleteBuilder()
		seq.DeleteFrom("sqlite_sequence").Where(seq.Equal("name", spec.Name))
		q, args = seq.Build()
		if _, err := ex.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("reset sequence %s: %w", spec.Name, err)
		}
		return nil
	})
}

func (r *Repo) InsertRows(ctx context.Context, spec storage.TableSpec, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	per := storage.RowsPerStatement(MaxParams, len(columns), r.batch)

	var affected int64
	err := r.inTx(ctx, func(ex sqlx.ExtContext) error {
		for _, st := range dialect.InsertStatements(spec.Name, columns, rows, per) {
			res, err := ex.ExecContext(ctx, st.SQL, st.Args...)
			if err != nil {
				return err
			}
			n, _ := res.RowsAffected()
			affected += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

func (r *Repo) QueryAnalytical(ctx context.Context, query string, args ...any) ([]storage.AnalyticalRow, error) {
	var out []storage.AnalyticalRow
	if err := sqlx.SelectContext(ctx, r.ext(), &out, query, args...); err != nil {
		return nil, err
	}
	return out, nil
}

// WithinTx runs fn against a Repo bound to one transaction. Nested calls
// reuse the outer transaction.
func (r *Repo) WithinTx(ctx context.Context, fn func(storage.Repository) error) error {
	if r.tx != nil {
		return fn(r)
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&Repo{db: r.db, tx: tx, batch: r.batch}); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Repo) ext() sqlx.ExtContext {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *Repo) inTx(ctx context.Context, fn func(sqlx.ExtContext) error) error {
	if r.tx != nil {
		return fn(r.tx)
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func columnType(c storage.ColumnSpec) (string, error) {
	switch strings.ToLower(c.Type) {
	case storage.TypeInteger, storage.TypeBigInt:
		return "INTEGER", nil
	case storage.TypeDouble:
		return "REAL", nil
	case storage.TypeString:
		if c.Size > 0 {
			return fmt.Sprintf("VARCHAR(%d)", c.Size), nil
		}
		return "TEXT", nil
	default:
		return "", fmt.Errorf("sqlite: unsupported column type %q", c.Type)
	}
}

// autoIncrementKey maps generated keys onto the rowid alias. Only
// "INTEGER PRIMARY KEY" becomes the rowid.
func autoIncrementKey(pk storage.PrimaryKeySpec) (string, error) {
	switch strings.ToLower(pk.Type) {
	case storage.TypeInteger, storage.TypeBigInt:
		return "INTEGER PRIMARY KEY AUTOINCREMENT", nil
	default:
		return "", fmt.Errorf("sqlite: auto-increment key must be integer, got %q", pk.Type)
	}
}
