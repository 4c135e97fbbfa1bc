package mssql

import (
	"context"
	"fmt"
	"strings"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
	_ "github.com/microsoft/go-mssqldb"

	"gtdetl/internal/etlerr"
	"gtdetl/internal/storage"
)

const (
	// MaxParams stays comfortably below SQL Server's hard limit of 2100.
	MaxParams = 2000

	// MaxRowsPerValues is the row limit of a single VALUES clause.
	MaxRowsPerValues = 1000
)

// Repo implements storage.Repository for Microsoft SQL Server.
//
// Semantics worth knowing:
//   - EnsureTables guards CREATE TABLE with OBJECT_ID since SQL Server has
//     no IF NOT EXISTS for tables.
//   - Explicit surrogate keys require SET IDENTITY_INSERT ON, which is
//     session-scoped, so every insert runs in a transaction holding one
//     connection and switches it off again before commit.
//   - Reset reseeds identities with DBCC CHECKIDENT, but only for tables
//     that have generated a value before. A never-used identity would
//     otherwise hand out 0 next.
type Repo struct {
	db    *sqlx.DB
	tx    *sqlx.Tx
	batch int
}

var dialect = storage.Dialect{
	Flavor:           sqlbuilder.SQLServer,
	ColumnType:       columnType,
	AutoIncrementKey: autoIncrementKey,
}

func init() {
	storage.Register("mssql", New)
}

// New opens cfg.DSN with the "sqlserver" driver and validates connectivity.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sqlx.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, &etlerr.ConnectivityError{Backend: "mssql", Err: err}
	}

	// Conservative defaults for ETL-style bursty loads.
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(16)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &etlerr.ConnectivityError{Backend: "mssql", Err: err}
	}
	return &Repo{db: db, batch: cfg.BatchSize}, nil
}

// Close releases database resources. A transaction-bound Repo does not own them.
func (r *Repo) Close() {
	if r == nil || r.tx != nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

func (r *Repo) Flavor() sqlbuilder.Flavor { return sqlbuilder.SQLServer }

// EnsureTables creates missing tables. Idempotent and safe to run on
// every invocation.
func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		ddl, err := buildCreateSQL(t)
		if err != nil {
			return err
		}
		if _, err := r.ext().ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("mssql: create table %s: %w", t.Name, err)
		}
	}
	return nil
}

func (r *Repo) ResetTable(ctx context.Context, spec storage.TableSpec) error {
	return r.inTx(ctx, func(ex sqlx.ExtContext) error {
		q, args := dialect.DeleteAll(spec.Name)
		if _, err := ex.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("mssql: delete %s: %w", spec.Name, err)
		}
		if !spec.AutoIncrement() {
			return nil
		}
		if _, err := ex.ExecContext(ctx, buildReseedSQL(spec.Name)); err != nil {
			return fmt.Errorf("mssql: reseed %s: %w", spec.Name, err)
		}
		return nil
	})
}

// InsertRows inserts rows in one transaction, chunked to stay within the
// parameter and VALUES row limits.
func (r *Repo) InsertRows(ctx context.Context, spec storage.TableSpec, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(columns) == 0 {
		return 0, fmt.Errorf("mssql: InsertRows: columns is empty")
	}

	per := storage.RowsPerStatement(MaxParams, len(columns), r.batch)
	if per > MaxRowsPerValues {
		per = MaxRowsPerValues
	}
	identity := spec.AutoIncrement() && containsFold(columns, spec.PrimaryKey.Name)

	var affected int64
	err := r.inTx(ctx, func(ex sqlx.ExtContext) error {
		if identity {
			if _, err := ex.ExecContext(ctx, buildIdentityInsertSQL(spec.Name, true)); err != nil {
				return err
			}
		}
		for _, st := range dialect.InsertStatements(spec.Name, columns, rows, per) {
			res, err := ex.ExecContext(ctx, st.SQL, st.Args...)
			if err != nil {
				return err
			}
			n, _ := res.RowsAffected()
			affected += n
		}
		if identity {
			if _, err := ex.ExecContext(ctx, buildIdentityInsertSQL(spec.Name, false)); err != nil {
				return err
			}
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

func (r *Repo) WithinTx(ctx context.Context, fn func(storage.Repository) error) error {
	if r.tx != nil {
		return fn(r)
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mssql: begin tx: %w", err)
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
		return fmt.Errorf("mssql: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// buildCreateSQL wraps CREATE TABLE in an OBJECT_ID guard.
func buildCreateSQL(t storage.TableSpec) (string, error) {
	ctb, err := dialect.CreateTable(t)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"IF OBJECT_ID(%s, N'U') IS NULL BEGIN %s; END;",
		nameLiteral(t.Name),
		ctb.String(),
	), nil
}

func buildIdentityInsertSQL(table string, on bool) string {
	state := "OFF"
	if on {
		state = "ON"
	}
	return fmt.Sprintf("SET IDENTITY_INSERT %s %s;", mssqlIdent(table), state)
}

// buildReseedSQL makes the next generated identity 1, skipping tables
// whose identity has never produced a value.
func buildReseedSQL(table string) string {
	lit := nameLiteral(table)
	return fmt.Sprintf(
		"IF EXISTS (SELECT 1 FROM sys.identity_columns WHERE object_id = OBJECT_ID(%s) AND last_value IS NOT NULL) DBCC CHECKIDENT (%s, RESEED, 0);",
		lit, lit,
	)
}

// columnType maps logical types. Strings are NVARCHAR(MAX) regardless of
// Size since SQL Server rejects over-length values instead of storing them.
func columnType(c storage.ColumnSpec) (string, error) {
	switch strings.ToLower(c.Type) {
	case storage.TypeInteger:
		return "INT", nil
	case storage.TypeBigInt:
		return "BIGINT", nil
	case storage.TypeDouble:
		return "FLOAT", nil
	case storage.TypeString:
		return "NVARCHAR(MAX)", nil
	default:
		return "", fmt.Errorf("mssql: unsupported column type %q", c.Type)
	}
}

func autoIncrementKey(pk storage.PrimaryKeySpec) (string, error) {
	switch strings.ToLower(pk.Type) {
	case storage.TypeInteger:
		return "INT IDENTITY(1,1) PRIMARY KEY", nil
	case storage.TypeBigInt:
		return "BIGINT IDENTITY(1,1) PRIMARY KEY", nil
	default:
		return "", fmt.Errorf("mssql: identity key must be integer or bigint, got %q", pk.Type)
	}
}

// mssqlIdent returns a bracket-quoted identifier, escaping ']' as ']]'.
func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// nameLiteral returns name as an N'' string literal.
func nameLiteral(name string) string {
	return "N'" + strings.ReplaceAll(name, "'", "''") + "'"
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
