// Package tracing provides functions to correlate the logs and events of a single run.
package tracing

import (
	"context"

	"github.com/birdie-ai/mung/slog"
	"github.com/google/uuid"
)

// StartRun associates a new run ID with the context and adds it as "run_id" to the
// context logger. Use slog.FromCtx(ctx) to retrieve the logger.
func StartRun(ctx context.Context) (context.Context, string) {
	runID := uuid.NewString()
	ctx = CtxWithRunID(ctx, runID)

	log := slog.FromCtx(ctx)
	log = log.With("run_id", runID)
	return slog.NewContext(ctx, log), runID
}

// CtxWithRunID creates a new [context.Context] with the given run ID associated with it.
// Call [CtxGetRunID] to retrieve the run ID.
func CtxWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// CtxGetRunID gets the run ID associated with this context.
// Return the run ID and true if there is a run ID, empty and false otherwise.
func CtxGetRunID(ctx context.Context) (string, bool) {
	return ctxget(ctx, runIDKey)
}

// CtxWithDatabase creates a new [context.Context] with the database the run is bound to.
// Call [CtxGetDatabase] to retrieve it.
func CtxWithDatabase(ctx context.Context, database string) context.Context {
	return context.WithValue(ctx, databaseKey, database)
}

// CtxGetDatabase gets the database associated with this context.
func CtxGetDatabase(ctx context.Context) (string, bool) {
	return ctxget(ctx, databaseKey)
}

// key is the type used to store data on contexts.
type key int

const (
	runIDKey key = iota
	databaseKey
)

func ctxget(ctx context.Context, k key) (string, bool) {
	val := ctx.Value(k)
	if val == nil {
		return "", false
	}
	str, ok := val.(string)
	if !ok {
		return "", false
	}
	return str, true
}
