// Package executor executes commands against a store, streaming their results.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"time"

	"github.com/birdie-ai/mung/dml"
	"github.com/birdie-ai/mung/store"
	"github.com/birdie-ai/mung/value"
)

// ErrExecution is matched by every [ExecutionError].
var ErrExecution = errors.New("execution error")

// Phase is the store operation that was running when an execution failed.
type Phase string

// Execution phases.
const (
	PhaseOpenCursor Phase = "open cursor"
	PhaseNextBatch  Phase = "next batch"
	PhaseCount      Phase = "count"
	PhaseDistinct   Phase = "distinct"
	PhaseInsert     Phase = "insert"
	PhaseUpdate     Phase = "update"
	PhaseRemove     Phase = "remove"
)

type (
	// ExecutionError is a failure of the store while executing a command.
	// Executions are never retried.
	ExecutionError struct {
		Phase Phase
		Cause error
	}

	// Result is the outcome of executing a command.
	// Docs is a single-use lazy sequence: for a find it yields the matching documents,
	// fetching a new batch from the store only when the previous one is consumed.
	// Any other command yields a single value: the count, the array of distinct values
	// or the summary of a write.
	// Iteration stops after the first error.
	Result struct {
		Docs iter.Seq2[value.Value, error]
	}
)

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrExecution, e.Phase, e.Cause)
}

func (e *ExecutionError) Unwrap() []error {
	return []error{ErrExecution, e.Cause}
}

// Execute issues the command to the store. Finds open a cursor that is consumed lazily
// by the result, any other command is fully executed before Execute returns.
func Execute(ctx context.Context, st store.Store, cmd dml.Command) (Result, error) {
	switch c := cmd.(type) {
	case dml.Find:
		return executeFind(ctx, st, c)
	case dml.Count:
		n, err := observe(PhaseCount, func() (int64, error) {
			return st.Count(ctx, c.Collection, c.Filter)
		})
		if err != nil {
			return Result{}, err
		}
		return single(value.Int(n)), nil
	case dml.Distinct:
		vals, err := observe(PhaseDistinct, func() ([]value.Value, error) {
			return st.Distinct(ctx, c.Collection, c.Field, c.Filter)
		})
		if err != nil {
			return Result{}, err
		}
		return single(value.Array(vals)), nil
	case dml.Insert:
		res, err := observe(PhaseInsert, func() (store.InsertResult, error) {
			return st.Insert(ctx, c.Collection, c.Docs)
		})
		if err != nil {
			return Result{}, err
		}
		return single(insertSummary(res)), nil
	case dml.Update:
		opts := store.UpdateOptions{Multi: c.Multi, Upsert: c.Upsert}
		res, err := observe(PhaseUpdate, func() (store.UpdateResult, error) {
			return st.Update(ctx, c.Collection, c.Filter, c.Update, opts)
		})
		if err != nil {
			return Result{}, err
		}
		return single(updateSummary(res)), nil
	case dml.Remove:
		res, err := observe(PhaseRemove, func() (store.RemoveResult, error) {
			return st.Remove(ctx, c.Collection, c.Filter)
		})
		if err != nil {
			return Result{}, err
		}
		return single(value.NewObject(value.Field{Key: "nRemoved", Value: value.Int(res.Removed)})), nil
	}
	return Result{}, fmt.Errorf("%w: unsupported command %T", ErrExecution, cmd)
}

func executeFind(ctx context.Context, st store.Store, c dml.Find) (Result, error) {
	q := store.FindQuery{
		Filter:     c.Filter,
		Projection: c.Projection,
		Sort:       c.Sort,
		Limit:      c.Limit,
		Skip:       c.Skip,
		BatchSize:  c.BatchSize,
	}
	cur, err := observe(PhaseOpenCursor, func() (store.Cursor, error) {
		return st.Find(ctx, c.Collection, q)
	})
	if err != nil {
		return Result{}, err
	}
	var limit uint64
	if c.Limit != nil {
		limit = *c.Limit
	}
	return Result{Docs: cursorDocs(ctx, cur, limit)}, nil
}

// cursorDocs yields the documents of the cursor, at most limit when it is not zero.
// The cursor is closed when iteration ends, even if the context was cancelled.
func cursorDocs(ctx context.Context, cur store.Cursor, limit uint64) iter.Seq2[value.Value, error] {
	used := false
	return func(yield func(value.Value, error) bool) {
		if used {
			return
		}
		used = true
		defer func() { _ = cur.Close(context.WithoutCancel(ctx)) }()

		var n uint64
		for limit == 0 || n < limit {
			batch, err := observe(PhaseNextBatch, func() ([]value.Object, error) {
				return cur.NextBatch(ctx)
			})
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			batchesTotal.Inc()
			for _, doc := range batch {
				if limit > 0 && n >= limit {
					return
				}
				n++
				documentsTotal.Inc()
				if !yield(doc, nil) {
					return
				}
			}
		}
	}
}

func single(v value.Value) Result {
	used := false
	return Result{Docs: func(yield func(value.Value, error) bool) {
		if used {
			return
		}
		used = true
		yield(v, nil)
	}}
}

// observe runs a store call, sampling its duration and wrapping its failure in an [ExecutionError].
// The end of a cursor, [io.EOF], is not a failure.
func observe[T any](phase Phase, call func() (T, error)) (T, error) {
	start := time.Now()
	v, err := call()
	if errors.Is(err, io.EOF) {
		sampleStoreCall(phase, time.Since(start), nil)
		return v, err
	}
	sampleStoreCall(phase, time.Since(start), err)
	if err != nil {
		return v, &ExecutionError{Phase: phase, Cause: err}
	}
	return v, nil
}

func insertSummary(res store.InsertResult) value.Object {
	ids := make(value.Array, len(res.InsertedIDs))
	copy(ids, res.InsertedIDs)
	return value.NewObject(
		value.Field{Key: "nInserted", Value: value.Int(len(res.InsertedIDs))},
		value.Field{Key: "insertedIds", Value: ids},
	)
}

func updateSummary(res store.UpdateResult) value.Object {
	var upserted int64
	if res.UpsertedID != nil {
		upserted = 1
	}
	summary := value.NewObject(
		value.Field{Key: "nMatched", Value: value.Int(res.Matched)},
		value.Field{Key: "nModified", Value: value.Int(res.Modified)},
		value.Field{Key: "nUpserted", Value: value.Int(upserted)},
	)
	if res.UpsertedID != nil {
		summary.Set("upsertedId", res.UpsertedID)
	}
	return summary
}
