// Package errors provides error handling for the ablation harness.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Hints and details for operator-facing diagnostics
//
// On top of that it defines the harness failure taxonomy. Every failure is
// classified by wrapping one of the sentinel categories below, so callers
// can test the category with Is regardless of how much context was added:
//
//	return errors.Integrityf("truth conflict for %s/%s", queryID, collection)
//
//	if errors.IsFatal(err) {
//	    // stop the run
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	goerrors "errors"

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
)

// User-facing messages and details
var (
	WithHint           = crdb.WithHint
	WithHintf          = crdb.WithHintf
	WithDetail         = crdb.WithDetail
	WithDetailf        = crdb.WithDetailf
	WithSecondaryError = crdb.WithSecondaryError
)

// Error inspection
var (
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapOnce     = crdb.UnwrapOnce
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// GetStack is an alias for GetReportableStackTrace for convenience.
var GetStack = crdb.GetReportableStackTrace

// Join combines errors from independent steps (e.g. restoring several
// collections) so none of them is lost. The joined error carries a stack.
var Join = crdb.Join

// Is reports whether any error in err's tree matches target.
// Joined errors are traversed as well as cockroachdb wrappers.
func Is(err, target error) bool {
	if err == nil {
		return false
	}
	return goerrors.Is(err, target) || crdb.Is(err, target)
}

// Failure taxonomy. Wrap these, never compare messages.
var (
	// ErrConnectivity indicates the datastore could not be reached.
	// Fatal, never retried.
	ErrConnectivity = New("datastore unreachable")

	// ErrIntegrity indicates conflicting truth data, a missing backup, or an
	// operation against a collection that does not exist.
	ErrIntegrity = New("integrity violation")

	// ErrConfiguration indicates invalid run parameters. Raised at
	// construction time, before any datastore mutation.
	ErrConfiguration = New("configuration error")

	// ErrRelationshipResolution indicates a cross-collection join failed.
	// The only recoverable category.
	ErrRelationshipResolution = New("relationship resolution failed")

	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")
)

// Connectivityf wraps err as a connectivity failure.
// The driver error is kept as a detail and secondary error.
func Connectivityf(err error, format string, args ...interface{}) error {
	wrapped := Wrapf(ErrConnectivity, format, args...)
	if err != nil {
		wrapped = WithSecondaryError(WithDetail(wrapped, err.Error()), err)
	}
	return wrapped
}

// Integrityf creates an integrity violation with a formatted message.
func Integrityf(format string, args ...interface{}) error {
	return Wrapf(ErrIntegrity, format, args...)
}

// Configurationf creates a configuration error with a formatted message.
func Configurationf(format string, args ...interface{}) error {
	return Wrapf(ErrConfiguration, format, args...)
}

// Relationshipf wraps err as a relationship resolution failure.
func Relationshipf(err error, format string, args ...interface{}) error {
	wrapped := Wrapf(ErrRelationshipResolution, format, args...)
	if err != nil {
		wrapped = WithSecondaryError(WithDetail(wrapped, err.Error()), err)
	}
	return wrapped
}

// IsConnectivity checks if an error is or wraps ErrConnectivity
func IsConnectivity(err error) bool {
	return Is(err, ErrConnectivity)
}

// IsIntegrity checks if an error is or wraps ErrIntegrity
func IsIntegrity(err error) bool {
	return Is(err, ErrIntegrity)
}

// IsConfiguration checks if an error is or wraps ErrConfiguration
func IsConfiguration(err error) bool {
	return Is(err, ErrConfiguration)
}

// IsRelationshipResolution checks if an error is or wraps ErrRelationshipResolution
func IsRelationshipResolution(err error) bool {
	return Is(err, ErrRelationshipResolution)
}

// IsFatal reports whether err must stop the run.
// Everything except a relationship resolution failure is fatal, including
// unclassified errors.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if IsConnectivity(err) || IsIntegrity(err) || IsConfiguration(err) {
		return true
	}
	return !IsRelationshipResolution(err)
}

// Category names the taxonomy bucket of err for diagnostics.
func Category(err error) string {
	switch {
	case err == nil:
		return ""
	case IsConnectivity(err):
		return "connectivity"
	case IsIntegrity(err):
		return "integrity"
	case IsConfiguration(err):
		return "configuration"
	case IsRelationshipResolution(err):
		return "relationship"
	default:
		return "internal"
	}
}

// IsNotFoundError checks if an error is or wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return Is(err, ErrNotFound)
}
