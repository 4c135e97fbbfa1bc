package multitable

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"go.uber.org/zap"

	"gtdetl/internal/etlerr"
	"gtdetl/internal/logging"
	"gtdetl/internal/metrics"
	"gtdetl/internal/star"
	"gtdetl/internal/storage"
)

// LoadStats counts inserted rows per table, in load order.
type LoadStats struct {
	Tables []TableCount `json:"tables"`
}

type TableCount struct {
	Table string `json:"table"`
	Rows  int64  `json:"rows"`
}

// Rows returns the count recorded for table, or 0.
func (s LoadStats) Rows(table string) int64 {
	for _, t := range s.Tables {
		if t.Table == table {
			return t.Rows
		}
	}
	return 0
}

// Loader writes a star.Model into a Repository.
type Loader struct {
	Repo   storage.Repository
	Logger *zap.Logger
}

// Reset empties every star table, bridge first and dimensions last, and
// restarts their key counters. A failing table does not stop the others;
// failures are returned together as an *etlerr.ResetError.
func (l *Loader) Reset(ctx context.Context) error {
	return reset(ctx, l.Repo, logging.OrNop(l.Logger))
}

func reset(ctx context.Context, repo storage.Repository, log *zap.Logger) error {
	start := time.Now()

	var (
		failed []string
		errs   []error
	)
	for _, t := range star.ResetOrder() {
		if err := repo.ResetTable(ctx, t); err != nil {
			log.Warn("reset table failed", zap.String("table", t.Name), zap.Error(err))
			failed = append(failed, t.Name)
			errs = append(errs, err)
		}
	}

	var err error
	if len(failed) > 0 {
		err = &etlerr.ResetError{Tables: failed, Err: errors.Join(errs...)}
	}
	metrics.RecordStep("reset", start, err)
	if err != nil {
		return err
	}
	log.Info("reset", zap.String("status", "ok"), zap.Duration("duration", logging.Dur(start)))
	return nil
}

// Load inserts dimensions, then facts, then bridge rows. Each table is
// committed on its own; the first failing table stops the load. A rejected
// table is returned as an *etlerr.ConstraintViolation, a lost connection as
// an *etlerr.ConnectivityError and cancellation as the context error.
// Tables committed before it stay committed.
func (l *Loader) Load(ctx context.Context, m *star.Model) (LoadStats, error) {
	return load(ctx, l.Repo, m, logging.OrNop(l.Logger))
}

func load(ctx context.Context, repo storage.Repository, m *star.Model, log *zap.Logger) (LoadStats, error) {
	start := time.Now()
	var stats LoadStats

	insert := func(table string, columns []string, rows [][]any) error {
		spec, ok := star.Table(table)
		if !ok {
			return &etlerr.ConstraintViolation{Table: table, Err: errors.New("unknown table")}
		}
		t0 := time.Now()
		n, err := repo.InsertRows(ctx, spec, columns, rows)
		if err != nil {
			return insertError(repo, table, err)
		}
		stats.Tables = append(stats.Tables, TableCount{Table: table, Rows: n})
		metrics.RecordRows(table, int(n))
		metrics.RecordBatches(1)
		log.Debug("load table",
			zap.String("table", table),
			zap.Int64("rows", n),
			zap.Duration("duration", logging.Dur(t0)))
		return nil
	}

	err := func() error {
		for _, d := range m.Dimensions {
			if err := insert(d.Spec.Table, d.Columns(), d.Rows); err != nil {
				return err
			}
		}
		if err := insert(star.TableFact, star.FactColumns(), m.Facts); err != nil {
			return err
		}
		return insert(star.TableBridge, star.BridgeColumns(), m.Bridge)
	}()
	metrics.RecordStep("load", start, err)
	if err != nil {
		return stats, err
	}

	log.Info("load",
		zap.String("status", "ok"),
		zap.Duration("duration", logging.Dur(start)),
		zap.Int("facts", len(m.Facts)),
		zap.Int("bridge", len(m.Bridge)))
	return stats, nil
}

// Reload runs Reset then Load. With atomic set and a backend that
// implements storage.Transactor, both run in one transaction and any
// failure leaves the previous contents in place; reset failures are then
// fatal. Otherwise Reset is best effort: Load runs after a failed reset and
// both errors are returned.
func (l *Loader) Reload(ctx context.Context, m *star.Model, atomic bool) (LoadStats, error) {
	log := logging.OrNop(l.Logger)

	if tx, ok := l.Repo.(storage.Transactor); atomic && ok {
		var stats LoadStats
		err := tx.WithinTx(ctx, func(repo storage.Repository) error {
			if err := reset(ctx, repo, log); err != nil {
				return err
			}
			var err error
			stats, err = load(ctx, repo, m, log)
			return err
		})
		if err != nil {
			return LoadStats{}, err
		}
		return stats, nil
	}
	if atomic {
		log.Warn("backend has no transactions; reload is not atomic")
	}

	resetErr := l.Reset(ctx)
	stats, err := l.Load(ctx, m)
	if err != nil {
		return stats, errors.Join(err, resetErr)
	}
	return stats, resetErr
}

// insertError classifies a failed table insert.
func insertError(repo storage.Repository, table string, err error) error {
	var conn *etlerr.ConnectivityError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("load %s: %w", table, err)
	case errors.As(err, &conn):
		return err
	case connectionLost(err):
		return &etlerr.ConnectivityError{Backend: repo.Flavor().String(), Err: err}
	}
	return &etlerr.ConstraintViolation{Table: table, Err: err}
}

func connectionLost(err error) bool {
	var netErr net.Error
	return errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.As(err, &netErr)
}
