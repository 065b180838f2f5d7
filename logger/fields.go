package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across the harness.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldRunID   = "run_id"
	FieldQueryID = "query_id"
	FieldRound   = "round"

	// Components
	FieldComponent = "component"

	// Operations
	FieldOperation = "operation"
	FieldQuery     = "query"
	FieldPath      = "path"

	// Timing
	FieldDurationMS = "duration_ms"

	// Errors
	FieldError     = "error"
	FieldErrorType = "error_type"

	// Counts and sizes
	FieldCount      = "count"
	FieldBatchSize  = "batch_size"
	FieldTotalCount = "total_count"

	// Status
	FieldStatus = "status"
	FieldState  = "state"

	// Ablation-specific
	FieldCollection  = "collection"
	FieldCollections = "collections"
	FieldAblated     = "ablated"
	FieldRelated     = "related"
	FieldCombination = "combination"
	FieldPrecision   = "precision"
	FieldRecall      = "recall"
	FieldF1          = "f1"
)

// Context keys for propagating logging context
type contextKey string

const (
	runIDKey   contextKey = "logger_run_id"
	queryIDKey contextKey = "logger_query_id"
	roundKey   contextKey = "logger_round"
)

// WithRunID adds a run ID to the context for logging
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// WithQueryID adds a query ID to the context for logging
func WithQueryID(ctx context.Context, queryID string) context.Context {
	return context.WithValue(ctx, queryIDKey, queryID)
}

// WithRound adds the experiment round number to the context for logging
func WithRound(ctx context.Context, round int) context.Context {
	return context.WithValue(ctx, roundKey, round)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if runID, ok := ctx.Value(runIDKey).(string); ok && runID != "" {
		fields = append(fields, FieldRunID, runID)
	}
	if round, ok := ctx.Value(roundKey).(int); ok && round > 0 {
		fields = append(fields, FieldRound, round)
	}
	if queryID, ok := ctx.Value(queryIDKey).(string); ok && queryID != "" {
		fields = append(fields, FieldQueryID, queryID)
	}

	return fields
}

// FromContext returns base decorated with fields extracted from context.
func FromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	machine := ablation.NewMachine(store, logger.ComponentLogger("ablation"))
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}
