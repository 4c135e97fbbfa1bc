package multitable

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gtdetl/internal/config"
	"gtdetl/internal/logging"
	"gtdetl/internal/metrics"
	"gtdetl/internal/profile"
	"gtdetl/internal/schema"
	"gtdetl/internal/star"
	"gtdetl/internal/storage"
	"gtdetl/pkg/records"
)

// Runner wires sources, the engine and a repository for one invocation.
// Every method opens its own repository and closes it before returning.
type Runner struct {
	// NewRepository opens the store; defaults to storage.New.
	NewRepository storage.Factory
	// ReadSource loads raw incidents; defaults to ReadSource.
	ReadSource SourceFunc
	Logger     *zap.Logger
	// RunID tags every log line; a random one is assigned when empty.
	RunID string
}

// NewDefaultRunner returns a Runner using the registered storage backends.
func NewDefaultRunner(log *zap.Logger) *Runner {
	return &Runner{
		NewRepository: storage.New,
		ReadSource:    ReadSource,
		Logger:        log,
		RunID:         uuid.NewString(),
	}
}

// Result summarizes a successful Run.
type Result struct {
	RunID    string     `json:"run_id"`
	Input    int        `json:"input"`
	Warnings []string   `json:"warnings,omitempty"`
	Star     star.Stats `json:"star"`
	Load     LoadStats  `json:"load"`
}

func (r *Runner) logger() *zap.Logger {
	if r.RunID == "" {
		r.RunID = uuid.NewString()
	}
	return logging.OrNop(r.Logger).With(zap.String("run_id", r.RunID))
}

func (r *Runner) open(ctx context.Context, cfg config.Pipeline) (storage.Repository, error) {
	newRepo := r.NewRepository
	if newRepo == nil {
		newRepo = storage.New
	}
	return newRepo(ctx, storage.Config{
		Kind:      cfg.Storage.Kind,
		DSN:       cfg.Storage.DSN,
		BatchSize: cfg.Runtime.BatchSize,
	})
}

func (r *Runner) read(ctx context.Context, cfg config.Pipeline, log *zap.Logger) (*records.RecordSet, error) {
	read := r.ReadSource
	if read == nil {
		read = ReadSource
	}

	start := time.Now()
	rs, err := read(ctx, cfg.Source, log)
	metrics.RecordStep("read", start, err)
	if err != nil {
		return nil, err
	}
	log.Info("read",
		zap.String("status", "ok"),
		zap.String("source", cfg.Source.Kind),
		zap.Duration("duration", logging.Dur(start)),
		zap.Int("rows", rs.Len()),
		zap.Int("columns", len(rs.Columns)))
	return rs, nil
}

// Run executes the whole pipeline: open the store, create missing tables,
// read and prepare the source, assemble the star and reload it. The store
// is opened before the source is read so an unreachable store fails fast.
func (r *Runner) Run(ctx context.Context, cfg config.Pipeline) (*Result, error) {
	log := r.logger()

	repo, err := r.open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer repo.Close()

	if err := ensureTables(ctx, repo, log); err != nil {
		return nil, err
	}

	raw, err := r.read(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	eng := &Engine{Clean: cfg.Clean, Logger: log}
	m, prepared, err := eng.Model(raw)
	if err != nil {
		return nil, err
	}

	loader := &Loader{Repo: repo, Logger: log}
	stats, err := loader.Reload(ctx, m, cfg.Runtime.AtomicReload)
	if err != nil {
		return nil, err
	}

	res := &Result{RunID: r.RunID, Input: raw.Len(), Star: m.Stats, Load: stats}
	for _, w := range prepared.Warnings {
		res.Warnings = append(res.Warnings, w.String())
	}
	return res, nil
}

// EnsureSchema creates any missing star table.
func (r *Runner) EnsureSchema(ctx context.Context, cfg config.Pipeline) error {
	log := r.logger()

	repo, err := r.open(ctx, cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	return ensureTables(ctx, repo, log)
}

func ensureTables(ctx context.Context, repo storage.Repository, log *zap.Logger) error {
	start := time.Now()
	err := repo.EnsureTables(ctx, star.Tables())
	metrics.RecordStep("ddl", start, err)
	if err != nil {
		return err
	}
	log.Info("ddl", zap.String("status", "ok"), zap.Duration("duration", logging.Dur(start)))
	return nil
}

// Profile reads and types the source and reports its quality. No store is
// opened and a missing required column is only logged.
func (r *Runner) Profile(ctx context.Context, cfg config.Pipeline, opt profile.Options) (profile.Report, error) {
	log := r.logger()

	raw, err := r.read(ctx, cfg, log)
	if err != nil {
		return profile.Report{}, err
	}

	warnings, err := schema.Incidents.Validate(schema.Incidents.Present(raw))
	for _, w := range warnings {
		log.Warn("schema mismatch", zap.String("column", w.Column))
	}
	if err != nil {
		log.Warn("profiling without a required column", zap.Error(err))
	}
	typed, _ := schema.Incidents.Coerce(raw)

	start := time.Now()
	rep := profile.Build(typed, opt)
	metrics.RecordStep("profile", start, nil)
	log.Info("profile", zap.String("status", "ok"), zap.String("summary", rep.Summary()))
	return rep, nil
}

// Reconstruct reads the denormalized analytical table back from the store.
func (r *Runner) Reconstruct(ctx context.Context, cfg config.Pipeline) (*records.RecordSet, error) {
	log := r.logger()

	repo, err := r.open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer repo.Close()

	start := time.Now()
	rs, err := star.Reconstruct(ctx, repo)
	metrics.RecordStep("reconstruct", start, err)
	if err != nil {
		return nil, err
	}
	metrics.RecordRows("reconstructed", rs.Len())
	log.Info("reconstruct",
		zap.String("status", "ok"),
		zap.Duration("duration", logging.Dur(start)),
		zap.Int("rows", rs.Len()))
	return rs, nil
}
