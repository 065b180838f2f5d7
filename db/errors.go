package db

import (
	"strings"

	"github.com/teranos/ablation/errors"
)

// ErrDatabaseClosed is returned when operations are attempted on a closed database.
var ErrDatabaseClosed = errors.New("database is closed")

// IsDatabaseClosed checks if an error indicates the database connection is closed.
// This handles both:
// - Wrapped ErrDatabaseClosed errors from this package
// - Raw SQLite/sql driver errors that contain "database is closed" in their message
func IsDatabaseClosed(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrDatabaseClosed) {
		return true
	}

	// The sql package returns its own unexported error for this
	return strings.Contains(err.Error(), "database is closed")
}

// IsUnreachable reports whether err means the database cannot serve requests
// at all, as opposed to a bad statement or constraint failure.
func IsUnreachable(err error) bool {
	if err == nil {
		return false
	}
	if IsDatabaseClosed(err) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "unable to open database file") ||
		strings.Contains(msg, "driver: bad connection") ||
		strings.Contains(msg, "sql: connection is already closed") ||
		strings.Contains(msg, "disk I/O error")
}

// Classify wraps a driver error with context, marking it as a connectivity
// failure when the database is unreachable.
func Classify(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	if IsUnreachable(err) {
		return errors.Connectivityf(err, format, args...)
	}
	return errors.Wrapf(err, format, args...)
}
