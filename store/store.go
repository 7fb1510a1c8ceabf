// Package store provides access to the document stores commands are executed against.
package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/birdie-ai/mung/value"
)

// DefaultBatchSize is the number of documents fetched per batch when a find doesn't set it.
const DefaultBatchSize = 101

// store errors
var (
	ErrUnsupportedURL = errors.New("unsupported store URL")
	ErrInvalidFilter  = errors.New("invalid filter")
	ErrInvalidUpdate  = errors.New("invalid update")
	ErrCursorClosed   = errors.New("cursor is closed")
)

type (
	// Store is a document store bound to a single database.
	// Stores are not safe for concurrent use.
	Store interface {
		Find(ctx context.Context, coll string, q FindQuery) (Cursor, error)
		Count(ctx context.Context, coll string, filter value.Object) (int64, error)
		Distinct(ctx context.Context, coll, field string, filter value.Object) ([]value.Value, error)
		Insert(ctx context.Context, coll string, docs []value.Object) (InsertResult, error)
		Update(ctx context.Context, coll string, filter, update value.Object, opts UpdateOptions) (UpdateResult, error)
		Remove(ctx context.Context, coll string, filter value.Object) (RemoveResult, error)
		Close(ctx context.Context) error
	}

	// Cursor is a store side handle over the result set of a find, fetched in batches.
	Cursor interface {
		// NextBatch fetches the next batch of documents. It returns [io.EOF] once
		// the result set is exhausted.
		NextBatch(ctx context.Context) ([]value.Object, error)
		Close(ctx context.Context) error
	}

	// FindQuery holds the parameters of a find. Nil fields are unset.
	// A zero Limit means no limit.
	FindQuery struct {
		Filter     value.Object
		Projection *value.Object
		Sort       *value.Object
		Limit      *uint64
		Skip       *uint64
		BatchSize  *uint64
	}

	// UpdateOptions are the options of an update.
	UpdateOptions struct {
		Multi  bool
		Upsert bool
	}

	// InsertResult is the outcome of an insert.
	InsertResult struct {
		InsertedIDs []value.Value
	}

	// UpdateResult is the outcome of an update.
	// UpsertedID is nil unless a document was upserted.
	UpdateResult struct {
		Matched    int64
		Modified   int64
		UpsertedID value.Value
	}

	// RemoveResult is the outcome of a remove.
	RemoveResult struct {
		Removed int64
	}
)

// Open connects to the store at the given URL, bound to the given database.
// Supported schemes are "mongodb", "mongodb+srv" and "sqlite".
func Open(ctx context.Context, rawURL, database string) (Store, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedURL, err)
	}
	switch u.Scheme {
	case "mongodb", "mongodb+srv":
		return OpenMongo(ctx, rawURL, database)
	case "sqlite":
		return OpenSQLite(ctx, sqlitePath(u), database)
	}
	return nil, fmt.Errorf("%w: scheme %q", ErrUnsupportedURL, u.Scheme)
}

// batchSize returns the batch size of the query or [DefaultBatchSize] when unset or zero.
func batchSize(q FindQuery) uint64 {
	if q.BatchSize == nil || *q.BatchSize == 0 {
		return DefaultBatchSize
	}
	return *q.BatchSize
}

func sqlitePath(u *url.URL) string {
	if u.Opaque != "" {
		// sqlite::memory: and sqlite:relative/path
		return u.Opaque
	}
	return u.Host + u.Path
}
