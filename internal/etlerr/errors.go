// Package etlerr defines the error kinds surfaced by the pipeline.
//
// Callers inspect them with errors.As:
//
//	var cv *etlerr.ConstraintViolation
//	if errors.As(err, &cv) { ... cv.Table ... }
package etlerr

import "fmt"

// ConnectivityError means the backing store (or source) could not be reached.
// It is fatal for the run.
type ConnectivityError struct {
	Backend string
	Err     error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s unreachable: %v", e.Backend, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// ConstraintViolation means the store rejected a table's rows (foreign key,
// primary key, or type constraint). Tables loaded before it stay loaded.
type ConstraintViolation struct {
	Table string
	Err   error
}

func (e *ConstraintViolation) Error() string {
	return fmt.Sprintf("load %s: %v", e.Table, e.Err)
}

func (e *ConstraintViolation) Unwrap() error { return e.Err }

// MissingRequiredColumn is returned when a stage needs a column the input
// does not carry.
type MissingRequiredColumn struct {
	Column string
	Stage  string
}

func (e *MissingRequiredColumn) Error() string {
	return fmt.Sprintf("%s: missing required column %q", e.Stage, e.Column)
}

// SchemaMismatchWarning reports an expected input column that is absent.
// It is logged, never returned as a failure.
type SchemaMismatchWarning struct {
	Column string
}

func (w SchemaMismatchWarning) String() string {
	return fmt.Sprintf("expected column %q absent from input", w.Column)
}

// ResetError collects the per-table failures of a best-effort reset.
type ResetError struct {
	Tables []string
	Err    error
}

func (e *ResetError) Error() string {
	return fmt.Sprintf("reset failed for %v: %v", e.Tables, e.Err)
}

func (e *ResetError) Unwrap() error { return e.Err }
