package store_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"testing"

	"github.com/birdie-ai/mung/store"
	"github.com/birdie-ai/mung/value"
	"github.com/google/go-cmp/cmp"
)

func TestSQLiteFind(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openSQLite(t)
	insert(t, s, "users",
		`{"_id":1,"name":"ada","age":36}`,
		`{"_id":2,"name":"bob","age":25}`,
		`{"_id":3,"name":"eve","age":41}`,
		`{"_id":4,"name":"joe","age":25}`,
	)

	type testcase struct {
		name    string
		query   store.FindQuery
		batches []int
		want    []string
	}

	tests := []testcase{
		{
			name:    "all",
			batches: []int{4},
			want: []string{
				`{"_id":1,"name":"ada","age":36}`,
				`{"_id":2,"name":"bob","age":25}`,
				`{"_id":3,"name":"eve","age":41}`,
				`{"_id":4,"name":"joe","age":25}`,
			},
		},
		{
			name:    "filter",
			query:   store.FindQuery{Filter: parseObject(t, `{"age":25}`)},
			batches: []int{2},
			want:    []string{`{"_id":2,"name":"bob","age":25}`, `{"_id":4,"name":"joe","age":25}`},
		},
		{
			name:    "batch size",
			query:   store.FindQuery{BatchSize: ptr[uint64](3)},
			batches: []int{3, 1},
			want: []string{
				`{"_id":1,"name":"ada","age":36}`,
				`{"_id":2,"name":"bob","age":25}`,
				`{"_id":3,"name":"eve","age":41}`,
				`{"_id":4,"name":"joe","age":25}`,
			},
		},
		{
			name:    "skip and limit",
			query:   store.FindQuery{Skip: ptr[uint64](1), Limit: ptr[uint64](2)},
			batches: []int{2},
			want:    []string{`{"_id":2,"name":"bob","age":25}`, `{"_id":3,"name":"eve","age":41}`},
		},
		{
			name:    "zero limit is unlimited",
			query:   store.FindQuery{Limit: ptr[uint64](0), Projection: objPtr(t, `{"_id":1}`)},
			batches: []int{4},
			want:    []string{`{"_id":1}`, `{"_id":2}`, `{"_id":3}`, `{"_id":4}`},
		},
		{
			name: "sort skip limit projection",
			query: store.FindQuery{
				Sort:       objPtr(t, `{"age":-1,"name":-1}`),
				Skip:       ptr[uint64](1),
				Limit:      ptr[uint64](2),
				Projection: objPtr(t, `{"name":1,"_id":0}`),
				BatchSize:  ptr[uint64](1),
			},
			batches: []int{1, 1},
			want:    []string{`{"name":"ada"}`, `{"name":"joe"}`},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cur, err := s.Find(ctx, "users", test.query)
			if err != nil {
				t.Fatal(err)
			}
			batches, docs := drain(t, cur)
			if diff := cmp.Diff(test.batches, batches); diff != "" {
				t.Errorf("batches mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(test.want, docs); diff != "" {
				t.Errorf("documents mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSQLiteFindManyPages(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openSQLite(t)
	docs := make([]string, 600)
	for i := range docs {
		docs[i] = fmt.Sprintf(`{"_id":%d,"even":%v}`, i, i%2 == 0)
	}
	insert(t, s, "nums", docs...)

	cur, err := s.Find(ctx, "nums", store.FindQuery{Filter: parseObject(t, `{"even":true}`)})
	if err != nil {
		t.Fatal(err)
	}
	batches, _ := drain(t, cur)
	if diff := cmp.Diff([]int{101, 101, 98}, batches); diff != "" {
		t.Fatalf("batches mismatch (-want +got):\n%s", diff)
	}

	cur, err = s.Find(ctx, "nums", store.FindQuery{Skip: ptr[uint64](250), Limit: ptr[uint64](300), BatchSize: ptr[uint64](200)})
	if err != nil {
		t.Fatal(err)
	}
	batches, got := drain(t, cur)
	if diff := cmp.Diff([]int{200, 100}, batches); diff != "" {
		t.Fatalf("batches mismatch (-want +got):\n%s", diff)
	}
	if got[0] != `{"_id":250,"even":true}` || got[len(got)-1] != `{"_id":549,"even":false}` {
		t.Fatalf("unexpected window: first %s last %s", got[0], got[len(got)-1])
	}
}

func TestSQLiteMissingCollection(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openSQLite(t)

	cur, err := s.Find(ctx, "missing", store.FindQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cur.NextBatch(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("got %v, want EOF", err)
	}
	n, err := s.Count(ctx, "missing", value.Object{})
	if err != nil || n != 0 {
		t.Fatalf("Count() = %d, %v", n, err)
	}
	res, err := s.Remove(ctx, "missing", value.Object{})
	if err != nil || res.Removed != 0 {
		t.Fatalf("Remove() = %v, %v", res, err)
	}
}

func TestSQLiteCursorClosed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openSQLite(t)
	insert(t, s, "c", `{"_id":1}`)

	cur, err := s.Find(ctx, "c", store.FindQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if err := cur.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := cur.NextBatch(ctx); !errors.Is(err, store.ErrCursorClosed) {
		t.Fatalf("got %v, want %v", err, store.ErrCursorClosed)
	}
}

func TestSQLiteInsert(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openSQLite(t)

	res, err := s.Insert(ctx, "users", []value.Object{parseObject(t, `{"name":"ada"}`), parseObject(t, `{"_id":7}`)})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.InsertedIDs) != 2 {
		t.Fatalf("got %d ids, want 2", len(res.InsertedIDs))
	}
	id, ok := res.InsertedIDs[0].(value.String)
	if !ok || len(id) != 36 {
		t.Fatalf("want generated UUID, got %v", res.InsertedIDs[0])
	}
	if !value.Equal(res.InsertedIDs[1], value.Int(7)) {
		t.Fatalf("got %v, want 7", res.InsertedIDs[1])
	}

	cur, err := s.Find(ctx, "users", store.FindQuery{Filter: parseObject(t, `{"name":"ada"}`)})
	if err != nil {
		t.Fatal(err)
	}
	_, docs := drain(t, cur)
	want := []string{fmt.Sprintf(`{"_id":%q,"name":"ada"}`, string(id))}
	if diff := cmp.Diff(want, docs); diff != "" {
		t.Fatalf("documents mismatch (-want +got):\n%s", diff)
	}

	_, err = s.Insert(ctx, "users", []value.Object{parseObject(t, `{"_id":8}`), parseObject(t, `{"_id":7}`)})
	if !errors.Is(err, store.ErrDuplicateKey) {
		t.Fatalf("got %v, want %v", err, store.ErrDuplicateKey)
	}
	n, err := s.Count(ctx, "users", parseObject(t, `{"_id":8}`))
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatal("failed insert must not be partially applied")
	}
}

func TestSQLiteNumericIDs(t *testing.T) {
	t.Parallel()

	type testcase struct {
		name  string
		first string
		dup   string
	}
	for _, tc := range []testcase{
		{name: "int and float", first: `{"_id":1}`, dup: `{"_id":1.0}`},
		{name: "float and int", first: `{"_id":2.0}`, dup: `{"_id":2}`},
		{name: "nested", first: `{"_id":{"a":[1,2.5]}}`, dup: `{"_id":{"a":[1.0,2.5]}}`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			s := openSQLite(t)
			insert(t, s, "ids", tc.first)
			_, err := s.Insert(ctx, "ids", []value.Object{parseObject(t, tc.dup)})
			if !errors.Is(err, store.ErrDuplicateKey) {
				t.Fatalf("got %v, want %v", err, store.ErrDuplicateKey)
			}
		})
	}

	// a fraction is a different key
	ctx := context.Background()
	s := openSQLite(t)
	insert(t, s, "ids", `{"_id":1}`, `{"_id":1.5}`)
	n, err := s.Count(ctx, "ids", value.Object{})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("got %d documents, want 2", n)
	}
}

func TestSQLiteCountDistinct(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openSQLite(t)
	insert(t, s, "posts",
		`{"_id":1,"tags":["go","db"],"author":"ada"}`,
		`{"_id":2,"tags":["go"],"author":"bob"}`,
		`{"_id":3,"tags":"misc","author":"ada"}`,
		`{"_id":4,"author":"eve"}`,
	)

	n, err := s.Count(ctx, "posts", parseObject(t, `{"author":"ada"}`))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("Count() = %d, want 2", n)
	}

	vals, err := s.Distinct(ctx, "posts", "tags", value.Object{})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(`["go","db","misc"]`, toJSON(t, value.Array(vals))); diff != "" {
		t.Fatalf("distinct mismatch (-want +got):\n%s", diff)
	}

	vals, err = s.Distinct(ctx, "posts", "author", parseObject(t, `{"_id":{"$gt":1}}`))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(`["bob","ada","eve"]`, toJSON(t, value.Array(vals))); diff != "" {
		t.Fatalf("distinct mismatch (-want +got):\n%s", diff)
	}
}

func TestSQLiteUpdate(t *testing.T) {
	t.Parallel()

	type testcase struct {
		name   string
		filter string
		update string
		opts   store.UpdateOptions
		want   store.UpdateResult
		docs   []string
	}

	tests := []testcase{
		{
			name:   "first match only",
			filter: `{"g":1}`,
			update: `{"$inc":{"n":1}}`,
			want:   store.UpdateResult{Matched: 1, Modified: 1},
			docs:   []string{`{"_id":1,"g":1,"n":1}`, `{"_id":2,"g":1,"n":0}`, `{"_id":3,"g":2,"n":0}`},
		},
		{
			name:   "multi",
			filter: `{"g":1}`,
			update: `{"$inc":{"n":1}}`,
			opts:   store.UpdateOptions{Multi: true},
			want:   store.UpdateResult{Matched: 2, Modified: 2},
			docs:   []string{`{"_id":1,"g":1,"n":1}`, `{"_id":2,"g":1,"n":1}`, `{"_id":3,"g":2,"n":0}`},
		},
		{
			name:   "unchanged",
			filter: `{}`,
			update: `{"$set":{"n":0}}`,
			opts:   store.UpdateOptions{Multi: true},
			want:   store.UpdateResult{Matched: 3},
			docs:   []string{`{"_id":1,"g":1,"n":0}`, `{"_id":2,"g":1,"n":0}`, `{"_id":3,"g":2,"n":0}`},
		},
		{
			name:   "replacement",
			filter: `{"_id":3}`,
			update: `{"x":true}`,
			want:   store.UpdateResult{Matched: 1, Modified: 1},
			docs:   []string{`{"_id":1,"g":1,"n":0}`, `{"_id":2,"g":1,"n":0}`, `{"_id":3,"x":true}`},
		},
		{
			name:   "no match",
			filter: `{"g":3}`,
			update: `{"$set":{"n":1}}`,
			want:   store.UpdateResult{},
			docs:   []string{`{"_id":1,"g":1,"n":0}`, `{"_id":2,"g":1,"n":0}`, `{"_id":3,"g":2,"n":0}`},
		},
		{
			name:   "upsert",
			filter: `{"_id":9,"g":{"$eq":3}}`,
			update: `{"$set":{"n":5},"$setOnInsert":{"new":true}}`,
			opts:   store.UpdateOptions{Upsert: true},
			want:   store.UpdateResult{UpsertedID: value.Int(9)},
			docs: []string{
				`{"_id":1,"g":1,"n":0}`,
				`{"_id":2,"g":1,"n":0}`,
				`{"_id":3,"g":2,"n":0}`,
				`{"_id":9,"g":3,"n":5,"new":true}`,
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			s := openSQLite(t)
			insert(t, s, "c", `{"_id":1,"g":1,"n":0}`, `{"_id":2,"g":1,"n":0}`, `{"_id":3,"g":2,"n":0}`)

			got, err := s.Update(ctx, "c", parseObject(t, test.filter), parseObject(t, test.update), test.opts)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(test.want, got, cmp.Comparer(value.Equal)); diff != "" {
				t.Errorf("result mismatch (-want +got):\n%s", diff)
			}
			cur, err := s.Find(ctx, "c", store.FindQuery{})
			if err != nil {
				t.Fatal(err)
			}
			_, docs := drain(t, cur)
			if diff := cmp.Diff(test.docs, docs); diff != "" {
				t.Errorf("documents mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSQLiteUpdateInvalid(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openSQLite(t)
	insert(t, s, "c", `{"_id":1,"n":"x"}`)

	_, err := s.Update(ctx, "c", value.Object{}, parseObject(t, `{"$inc":{"n":1}}`), store.UpdateOptions{})
	if !errors.Is(err, store.ErrInvalidUpdate) {
		t.Fatalf("got %v, want %v", err, store.ErrInvalidUpdate)
	}
}

func TestSQLiteRemove(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openSQLite(t)
	insert(t, s, "c", `{"_id":1,"a":1}`, `{"_id":2,"a":2}`, `{"_id":3,"a":1}`)

	res, err := s.Remove(ctx, "c", parseObject(t, `{"a":1}`))
	if err != nil {
		t.Fatal(err)
	}
	if res.Removed != 2 {
		t.Fatalf("removed %d, want 2", res.Removed)
	}
	res, err = s.Remove(ctx, "c", value.Object{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Removed != 1 {
		t.Fatalf("removed %d, want 1", res.Removed)
	}
	n, err := s.Count(ctx, "c", value.Object{})
	if err != nil || n != 0 {
		t.Fatalf("Count() = %d, %v", n, err)
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data.db")

	s, err := store.Open(ctx, "sqlite://"+path, "test")
	if err != nil {
		t.Fatal(err)
	}
	insert(t, s, "c", `{"_id":1}`)
	if err := s.Close(ctx); err != nil {
		t.Fatal(err)
	}

	// reopening sees the stored documents
	s, err = store.Open(ctx, "sqlite://"+path, "test")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = s.Close(ctx) }()
	n, err := s.Count(ctx, "c", value.Object{})
	if err != nil || n != 1 {
		t.Fatalf("Count() = %d, %v", n, err)
	}

	// databases are isolated
	other, err := store.Open(ctx, "sqlite://"+path, "other")
	if err == nil {
		defer func() { _ = other.Close(ctx) }()
		n, err = other.Count(ctx, "c", value.Object{})
	}
	if err != nil || n != 0 {
		t.Fatalf("Count() = %d, %v", n, err)
	}

	if _, err := store.Open(ctx, "redis://localhost", "test"); !errors.Is(err, store.ErrUnsupportedURL) {
		t.Fatalf("got %v, want %v", err, store.ErrUnsupportedURL)
	}
}

func openSQLite(t *testing.T) store.Store {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx, "sqlite::memory:", "test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close(ctx) })
	return s
}

func insert(t *testing.T, s store.Store, coll string, docs ...string) {
	t.Helper()
	objs := make([]value.Object, len(docs))
	for i, doc := range docs {
		objs[i] = parseObject(t, doc)
	}
	if _, err := s.Insert(context.Background(), coll, objs); err != nil {
		t.Fatal(err)
	}
}

// drain reads all batches of the cursor returning the batch sizes and the documents as JSON.
func drain(t *testing.T, cur store.Cursor) ([]int, []string) {
	t.Helper()
	ctx := context.Background()
	defer func() { _ = cur.Close(ctx) }()

	var (
		sizes []int
		docs  []string
	)
	for {
		batch, err := cur.NextBatch(ctx)
		if errors.Is(err, io.EOF) {
			return sizes, docs
		}
		if err != nil {
			t.Fatal(err)
		}
		sizes = append(sizes, len(batch))
		for _, doc := range batch {
			docs = append(docs, toJSON(t, doc))
		}
	}
}

func ptr[T any](v T) *T {
	return &v
}

func objPtr(t *testing.T, s string) *value.Object {
	t.Helper()
	obj := parseObject(t, s)
	return &obj
}
