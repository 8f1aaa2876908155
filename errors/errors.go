// Package errors provides error handling for cytofkit.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - User-facing hints and details
//
// On top of that it defines the pipeline taxonomy. Each pipeline error keeps
// its specific message (file, column, expected vs actual) and is marked with
// one of the sentinel errors below, so callers classify with errors.Is:
//
//	if err := fuser.Load(ctx, dir); err != nil {
//	    if errors.Is(err, errors.ErrConsistency) {
//	        // a file's columns differ from the first file's
//	    }
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
	Join         = crdb.Join
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is            = crdb.Is
	IsAny         = crdb.IsAny
	As            = crdb.As
	Unwrap        = crdb.Unwrap
	UnwrapAll     = crdb.UnwrapAll
	GetAllHints   = crdb.GetAllHints
	GetAllDetails = crdb.GetAllDetails
	FlattenHints  = crdb.FlattenHints
)

// GetStack is an alias for GetReportableStackTrace for convenience.
var GetStack = crdb.GetReportableStackTrace

// Pipeline error taxonomy. Mark errors with these, never return them bare.
var (
	// ErrInput indicates a missing or empty directory or file, or an absent required column
	ErrInput = New("input error")

	// ErrConsistency indicates a schema mismatch across a file set
	ErrConsistency = New("consistency error")

	// ErrDataState indicates an operation was requested before its precondition held
	ErrDataState = New("data state error")

	// ErrAlgorithmUnavailable indicates the requested variant has no backend in this build
	ErrAlgorithmUnavailable = New("algorithm unavailable")

	// ErrAlgorithmExecution indicates a variant ran but did not produce the expected structure
	ErrAlgorithmExecution = New("algorithm execution error")

	// ErrIO indicates a write or read failure on the filesystem
	ErrIO = New("io error")
)

// ErrEngineBusy identifies a second mutation attempted against an engine
// that already has one in flight. It stays unmarked so that Is against it
// matches busy errors only; EngineBusy returns the classified form.
var ErrEngineBusy = New("engine busy: another operation is in flight")

// EngineBusy returns ErrEngineBusy marked as ErrDataState.
func EngineBusy() error {
	return Mark(ErrEngineBusy, ErrDataState)
}

// InputErrorf creates an error marked as ErrInput.
func InputErrorf(format string, args ...interface{}) error {
	return Mark(crdb.NewWithDepthf(1, format, args...), ErrInput)
}

// ConsistencyErrorf creates an error marked as ErrConsistency.
func ConsistencyErrorf(format string, args ...interface{}) error {
	return Mark(crdb.NewWithDepthf(1, format, args...), ErrConsistency)
}

// DataStateErrorf creates an error marked as ErrDataState.
func DataStateErrorf(format string, args ...interface{}) error {
	return Mark(crdb.NewWithDepthf(1, format, args...), ErrDataState)
}

// UnavailableErrorf creates an error marked as ErrAlgorithmUnavailable.
func UnavailableErrorf(format string, args ...interface{}) error {
	return Mark(crdb.NewWithDepthf(1, format, args...), ErrAlgorithmUnavailable)
}

// ExecutionErrorf creates an error marked as ErrAlgorithmExecution.
func ExecutionErrorf(format string, args ...interface{}) error {
	return Mark(crdb.NewWithDepthf(1, format, args...), ErrAlgorithmExecution)
}

// WrapIO wraps a filesystem error and marks it as ErrIO.
// Returns nil if err is nil.
func WrapIO(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Mark(crdb.WrapWithDepthf(1, err, format, args...), ErrIO)
}

// WrapInput wraps an error and marks it as ErrInput.
// Returns nil if err is nil.
func WrapInput(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Mark(crdb.WrapWithDepthf(1, err, format, args...), ErrInput)
}
