// Command etl loads the Global Terrorism Database into a star schema and
// reads it back.
//
//	etl run --config configs/pipelines/gtd_sqlite.json
//	etl profile --format yaml
//	etl reconstruct --out gtd_flat.csv
//	etl schema --dsn file:gtd.db
//	etl validate --config pipeline.yaml
//
// Exit codes: 0 success, 1 failure, 2 usage error.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"gtdetl/internal/config"
	"gtdetl/internal/multitable"
	"gtdetl/internal/profile"
	"gtdetl/pkg/records"

	// register every backend with the storage factory; the config picks one.
	_ "gtdetl/internal/storage/all"
)

// runner is the part of multitable.Runner the commands use.
type runner interface {
	Run(ctx context.Context, cfg config.Pipeline) (*multitable.Result, error)
	EnsureSchema(ctx context.Context, cfg config.Pipeline) error
	Profile(ctx context.Context, cfg config.Pipeline, opt profile.Options) (profile.Report, error)
	Reconstruct(ctx context.Context, cfg config.Pipeline) (*records.RecordSet, error)
}

// appDeps are the seams tests replace.
type appDeps struct {
	initMetrics func(ctx context.Context, p config.Pipeline, runID string, log *zap.Logger) (func(), error)
	newRunner   func(log *zap.Logger, runID string) runner
}

func defaultDeps() appDeps {
	return appDeps{
		initMetrics: initMetrics,
		newRunner: func(log *zap.Logger, runID string) runner {
			r := multitable.NewDefaultRunner(log)
			r.RunID = runID
			return r
		},
	}
}

// usageError marks bad invocations; they exit with code 2.
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usagef(format string, a ...any) error {
	return &usageError{err: fmt.Errorf(format, a...)}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runMain(ctx, os.Args[1:], os.Stdout, os.Stderr, defaultDeps())
	stop()
	os.Exit(code)
}

// runMain executes one command line and returns the process exit code.
func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, deps appDeps) int {
	root := newRootCommand(stdout, stderr, deps)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	fmt.Fprintf(stderr, "etl: %v\n", err)

	var ue *usageError
	if errors.As(err, &ue) {
		return 2
	}
	return 1
}
