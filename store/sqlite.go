package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/birdie-ai/mung/value"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrDuplicateKey indicates an insert of a document with an "_id" that already exists.
var ErrDuplicateKey = errors.New("duplicate key")

// scanPageSize is the number of rows read from a collection table per query.
const scanPageSize = 256

// SQLite is an embedded document store. Each collection is a table holding one JSON
// document per row, filters and updates are evaluated in Go.
type SQLite struct {
	db       *sql.DB
	database string
}

// querier is implemented by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type row struct {
	seq int64
	doc value.Object
}

// OpenSQLite opens (creating if needed) the SQLite database at path.
// The special path ":memory:" creates an in memory store.
func OpenSQLite(ctx context.Context, path, database string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database %q: %w", path, err)
	}
	// SQLite doesn't support concurrent writes, and an in memory database lives on its connection
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("opening sqlite database %q: %w", path, err)
	}
	return &SQLite{db: db, database: database}, nil
}

// Find implements [Store.Find].
func (s *SQLite) Find(ctx context.Context, coll string, q FindQuery) (Cursor, error) {
	c := &sqliteCursor{s: s, table: s.table(coll), q: q}
	exists, err := s.exists(ctx, s.db, coll)
	if err != nil {
		return nil, err
	}
	if !exists {
		c.done = true
		return c, nil
	}
	if q.Sort == nil {
		return c, nil
	}

	// sorting needs the whole result set
	var docs []value.Object
	err = s.scan(ctx, s.db, coll, q.Filter, func(r row) (bool, error) {
		docs = append(docs, r.doc)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if err := SortDocs(docs, *q.Sort); err != nil {
		return nil, err
	}
	if q.Skip != nil {
		docs = docs[min(uint64(len(docs)), *q.Skip):]
	}
	if q.Limit != nil && *q.Limit > 0 {
		docs = docs[:min(uint64(len(docs)), *q.Limit)]
	}
	c.sorted = docs
	c.presorted = true
	return c, nil
}

// Count implements [Store.Count].
func (s *SQLite) Count(ctx context.Context, coll string, filter value.Object) (int64, error) {
	var n int64
	err := s.scan(ctx, s.db, coll, filter, func(row) (bool, error) {
		n++
		return true, nil
	})
	return n, err
}

// Distinct implements [Store.Distinct]. Array values contribute each of their elements.
func (s *SQLite) Distinct(ctx context.Context, coll, field string, filter value.Object) ([]value.Value, error) {
	segments := value.ParsePath(field)
	if segments == nil {
		return nil, fmt.Errorf("%w: invalid field path %q", ErrInvalidFilter, field)
	}
	distinct := []value.Value{}
	add := func(v value.Value) {
		if !contains(distinct, v) {
			distinct = append(distinct, v)
		}
	}
	err := s.scan(ctx, s.db, coll, filter, func(r row) (bool, error) {
		for _, v := range resolve(r.doc, segments) {
			if arr, ok := v.(value.Array); ok {
				for _, elem := range arr {
					add(elem)
				}
				continue
			}
			add(v)
		}
		return true, nil
	})
	return distinct, err
}

// Insert implements [Store.Insert]. Documents without an "_id" get a generated UUID.
func (s *SQLite) Insert(ctx context.Context, coll string, docs []value.Object) (InsertResult, error) {
	var res InsertResult
	err := s.tx(ctx, coll, func(tx *sql.Tx) error {
		for _, doc := range docs {
			id, err := s.insert(ctx, tx, coll, doc)
			if err != nil {
				return err
			}
			res.InsertedIDs = append(res.InsertedIDs, id)
		}
		return nil
	})
	if err != nil {
		return InsertResult{}, err
	}
	return res, nil
}

// Update implements [Store.Update].
func (s *SQLite) Update(ctx context.Context, coll string, filter, update value.Object, opts UpdateOptions) (UpdateResult, error) {
	var res UpdateResult
	err := s.tx(ctx, coll, func(tx *sql.Tx) error {
		var matched []row
		err := s.scan(ctx, tx, coll, filter, func(r row) (bool, error) {
			matched = append(matched, r)
			return opts.Multi, nil
		})
		if err != nil {
			return err
		}
		for _, r := range matched {
			updated, err := ApplyUpdate(r.doc, update)
			if err != nil {
				return err
			}
			res.Matched++
			if value.Equal(updated, r.doc) {
				continue
			}
			if err := s.replaceRow(ctx, tx, coll, r.seq, updated); err != nil {
				return err
			}
			res.Modified++
		}
		if len(matched) > 0 || !opts.Upsert {
			return nil
		}
		doc, err := upsertDoc(filter, update)
		if err != nil {
			return err
		}
		res.UpsertedID, err = s.insert(ctx, tx, coll, doc)
		return err
	})
	if err != nil {
		return UpdateResult{}, err
	}
	return res, nil
}

// Remove implements [Store.Remove].
func (s *SQLite) Remove(ctx context.Context, coll string, filter value.Object) (RemoveResult, error) {
	var res RemoveResult
	err := s.tx(ctx, coll, func(tx *sql.Tx) error {
		var seqs []int64
		err := s.scan(ctx, tx, coll, filter, func(r row) (bool, error) {
			seqs = append(seqs, r.seq)
			return true, nil
		})
		if err != nil {
			return err
		}
		for _, seq := range seqs {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+s.table(coll)+" WHERE seq = ?", seq); err != nil {
				return fmt.Errorf("removing document: %w", err)
			}
		}
		res.Removed = int64(len(seqs))
		return nil
	})
	if err != nil {
		return RemoveResult{}, err
	}
	return res, nil
}

// Close implements [Store.Close].
func (s *SQLite) Close(context.Context) error {
	return s.db.Close()
}

func (s *SQLite) table(coll string) string {
	return `"` + strings.ReplaceAll(s.database+"."+coll, `"`, `""`) + `"`
}

func (s *SQLite) exists(ctx context.Context, q querier, coll string) (bool, error) {
	rows, err := q.QueryContext(ctx, "SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?", s.database+"."+coll)
	if err != nil {
		return false, fmt.Errorf("checking collection %q: %w", coll, err)
	}
	defer func() { _ = rows.Close() }()
	return rows.Next(), rows.Err()
}

// tx runs fn in a transaction, creating the collection table first if needed.
func (s *SQLite) tx(ctx context.Context, coll string, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  id  TEXT NOT NULL UNIQUE,
  doc TEXT NOT NULL
)`, s.table(coll))
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("creating collection %q: %w", coll, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *SQLite) insert(ctx context.Context, tx *sql.Tx, coll string, doc value.Object) (value.Value, error) {
	id, ok := doc.Get("_id")
	if !ok {
		id = value.String(uuid.NewString())
		withID := value.NewObject(value.Field{Key: "_id", Value: id})
		for k, v := range doc.All() {
			withID.Set(k, v)
		}
		doc = withID
	}
	key, err := idKey(id)
	if err != nil {
		return nil, err
	}
	data, err := value.Marshal(doc)
	if err != nil {
		return nil, err
	}
	exists, err := s.idExists(ctx, tx, coll, string(key))
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: _id %s", ErrDuplicateKey, key)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO "+s.table(coll)+" (id, doc) VALUES (?, ?)", string(key), string(data)); err != nil {
		return nil, fmt.Errorf("inserting document: %w", err)
	}
	return id, nil
}

// idKey returns the unique key of an "_id". Numbers compare by value, so 1 and 1.0
// are the same key.
func idKey(id value.Value) ([]byte, error) {
	return value.Marshal(normalizeNumbers(id))
}

func normalizeNumbers(v value.Value) value.Value {
	switch t := v.(type) {
	case value.Float:
		f := float64(t)
		if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
			return value.Int(int64(f))
		}
	case value.Array:
		out := make(value.Array, len(t))
		for i, e := range t {
			out[i] = normalizeNumbers(e)
		}
		return out
	case value.Object:
		var out value.Object
		for k, e := range t.All() {
			out.Set(k, normalizeNumbers(e))
		}
		return out
	}
	return v
}

func (s *SQLite) idExists(ctx context.Context, tx *sql.Tx, coll, key string) (bool, error) {
	rows, err := tx.QueryContext(ctx, "SELECT 1 FROM "+s.table(coll)+" WHERE id = ?", key)
	if err != nil {
		return false, fmt.Errorf("checking _id: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return rows.Next(), rows.Err()
}

func (s *SQLite) replaceRow(ctx context.Context, tx *sql.Tx, coll string, seq int64, doc value.Object) error {
	data, err := value.Marshal(doc)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "UPDATE "+s.table(coll)+" SET doc = ? WHERE seq = ?", string(data), seq); err != nil {
		return fmt.Errorf("updating document: %w", err)
	}
	return nil
}

// scan calls fn for each document of the collection matching the filter, in insertion
// order, until fn returns false. A missing collection has no documents.
func (s *SQLite) scan(ctx context.Context, q querier, coll string, filter value.Object, fn func(row) (bool, error)) error {
	exists, err := s.exists(ctx, q, coll)
	if err != nil || !exists {
		return err
	}
	var last int64
	for {
		page, err := s.page(ctx, q, s.table(coll), last)
		if err != nil {
			return err
		}
		for _, r := range page {
			ok, err := Match(r.doc, filter)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			more, err := fn(r)
			if err != nil || !more {
				return err
			}
		}
		if len(page) < scanPageSize {
			return nil
		}
		last = page[len(page)-1].seq
	}
}

// page reads the rows of the quoted table following the given sequence number.
func (s *SQLite) page(ctx context.Context, q querier, table string, after int64) ([]row, error) {
	rows, err := q.QueryContext(ctx, "SELECT seq, doc FROM "+table+" WHERE seq > ? ORDER BY seq LIMIT ?", after, scanPageSize)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var page []row
	for rows.Next() {
		var (
			r    row
			data string
		)
		if err := rows.Scan(&r.seq, &data); err != nil {
			return nil, fmt.Errorf("reading %s: %w", table, err)
		}
		if err := r.doc.UnmarshalJSON([]byte(data)); err != nil {
			return nil, fmt.Errorf("reading %s: document %d: %w", table, r.seq, err)
		}
		page = append(page, r)
	}
	return page, rows.Err()
}

type sqliteCursor struct {
	s     *SQLite
	table string
	q     FindQuery

	last     int64
	skipped  uint64
	returned uint64
	done     bool
	closed   bool

	presorted bool
	sorted    []value.Object
}

func (c *sqliteCursor) NextBatch(ctx context.Context) ([]value.Object, error) {
	if c.closed {
		return nil, ErrCursorClosed
	}
	if c.done {
		return nil, io.EOF
	}
	size := batchSize(c.q)
	if c.presorted {
		if len(c.sorted) == 0 {
			c.done = true
			return nil, io.EOF
		}
		n := min(uint64(len(c.sorted)), size)
		batch := c.sorted[:n]
		c.sorted = c.sorted[n:]
		return c.project(batch)
	}

	var batch []value.Object
	for uint64(len(batch)) < size && !c.limitReached(len(batch)) {
		page, err := c.s.page(ctx, c.s.db, c.table, c.last)
		if err != nil {
			return nil, err
		}
		full := false
		for _, r := range page {
			c.last = r.seq
			ok, err := Match(r.doc, c.q.Filter)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			if c.q.Skip != nil && c.skipped < *c.q.Skip {
				c.skipped++
				continue
			}
			batch = append(batch, r.doc)
			if uint64(len(batch)) == size || c.limitReached(len(batch)) {
				full = true
				break
			}
		}
		if !full && len(page) < scanPageSize {
			c.done = true
			break
		}
	}
	c.returned += uint64(len(batch))
	if c.limitReached(0) {
		c.done = true
	}
	if len(batch) == 0 {
		c.done = true
		return nil, io.EOF
	}
	return c.project(batch)
}

func (c *sqliteCursor) limitReached(pending int) bool {
	if c.q.Limit == nil || *c.q.Limit == 0 {
		return false
	}
	return c.returned+uint64(pending) >= *c.q.Limit
}

func (c *sqliteCursor) project(batch []value.Object) ([]value.Object, error) {
	if c.q.Projection == nil {
		return batch, nil
	}
	out := make([]value.Object, len(batch))
	for i, doc := range batch {
		projected, err := Project(doc, *c.q.Projection)
		if err != nil {
			return nil, err
		}
		out[i] = projected
	}
	return out, nil
}

func (c *sqliteCursor) Close(context.Context) error {
	c.closed = true
	c.sorted = nil
	return nil
}
