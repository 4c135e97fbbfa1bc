package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/huandu/go-sqlbuilder"
)

// Config is the minimal configuration needed to open a Repository.
//
// Edge cases:
//   - Kind must match a registered backend kind.
//   - DSN is passed through to the backend; validation is backend-specific.
//   - BatchSize <= 0 lets the backend pick its own statement size.
type Config struct {
	Kind      string
	DSN       string
	BatchSize int
}

// Repository is the backend-agnostic store of the star schema.
//
// Each backend implements these semantics in its own SQL dialect. All
// identifiers passed in are trusted table and column names from the star
// schema definition; values are always bound as parameters.
type Repository interface {
	// Close releases backend resources. Call once.
	Close()

	// Flavor is the SQL dialect used to build queries for this backend.
	Flavor() sqlbuilder.Flavor

	// EnsureTables creates missing tables in the given order.
	EnsureTables(ctx context.Context, tables []TableSpec) error

	// ResetTable deletes every row of the table and restarts its
	// auto-increment counter so the next generated key is 1.
	ResetTable(ctx context.Context, spec TableSpec) error

	// InsertRows inserts rows in one transaction. Rows are split into
	// statements that respect the backend parameter limit. Explicit values
	// for auto-increment keys are allowed.
	InsertRows(ctx context.Context, spec TableSpec, columns []string, rows [][]any) (int64, error)

	// QueryAnalytical runs a reconstruction query whose select list is
	// aliased to AnalyticalRow's db tags.
	QueryAnalytical(ctx context.Context, query string, args ...any) ([]AnalyticalRow, error)
}

// Transactor is implemented by backends that can run a unit of work in a
// single transaction. The Repository handed to fn is bound to that
// transaction; fn must not retain it.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(Repository) error) error
}

// Factory opens a Repository for cfg.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers a backend under kind. Call it from an init function
// in the backend package.
//
// Panics if kind is empty, f is nil, or kind is already registered.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New opens a Repository using the factory registered for cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("storage: unsupported kind=%s (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds lists the registered backend kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
