package common

import (
	"context"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyCycleID contextKey = "cycle_id"
	ContextKeyRunID   contextKey = "run_id"
)

// WithCycleID adds the poll cycle ID to the context
func WithCycleID(ctx context.Context, cycleID string) context.Context {
	return context.WithValue(ctx, ContextKeyCycleID, cycleID)
}

// CycleIDFromContext extracts the poll cycle ID from context
func CycleIDFromContext(ctx context.Context) string {
	if cycleID, ok := ctx.Value(ContextKeyCycleID).(string); ok {
		return cycleID
	}
	return ""
}

// WithRunID adds a batch run ID to the context
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, ContextKeyRunID, runID)
}

// RunIDFromContext extracts the batch run ID from context
func RunIDFromContext(ctx context.Context) string {
	if runID, ok := ctx.Value(ContextKeyRunID).(string); ok {
		return runID
	}
	return ""
}
