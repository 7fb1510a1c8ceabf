package store

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/birdie-ai/mung/value"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Mongo is a MongoDB store bound to a single database.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

// OpenMongo connects to the MongoDB deployment at uri.
func OpenMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("connecting to mongodb: %w", err)
	}
	return &Mongo{client: client, db: client.Database(database)}, nil
}

// Find implements [Store.Find].
func (m *Mongo) Find(ctx context.Context, coll string, q FindQuery) (Cursor, error) {
	filter, err := toBSONDoc(q.Filter)
	if err != nil {
		return nil, err
	}
	opts := options.Find()
	if q.Projection != nil {
		proj, err := toBSONDoc(*q.Projection)
		if err != nil {
			return nil, err
		}
		opts.SetProjection(proj)
	}
	if q.Sort != nil {
		sort, err := toBSONDoc(*q.Sort)
		if err != nil {
			return nil, err
		}
		opts.SetSort(sort)
	}
	if q.Limit != nil {
		opts.SetLimit(clampInt64(*q.Limit))
	}
	if q.Skip != nil {
		opts.SetSkip(clampInt64(*q.Skip))
	}
	if q.BatchSize != nil {
		opts.SetBatchSize(int32(min(*q.BatchSize, math.MaxInt32)))
	}
	cur, err := m.db.Collection(coll).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb find: %w", err)
	}
	return &mongoCursor{cur: cur}, nil
}

// Count implements [Store.Count].
func (m *Mongo) Count(ctx context.Context, coll string, filter value.Object) (int64, error) {
	f, err := toBSONDoc(filter)
	if err != nil {
		return 0, err
	}
	n, err := m.db.Collection(coll).CountDocuments(ctx, f)
	if err != nil {
		return 0, fmt.Errorf("mongodb count: %w", err)
	}
	return n, nil
}

// Distinct implements [Store.Distinct].
func (m *Mongo) Distinct(ctx context.Context, coll, field string, filter value.Object) ([]value.Value, error) {
	f, err := toBSONDoc(filter)
	if err != nil {
		return nil, err
	}
	var vals bson.A
	if err := m.db.Collection(coll).Distinct(ctx, field, f).Decode(&vals); err != nil {
		return nil, fmt.Errorf("mongodb distinct: %w", err)
	}
	res := make([]value.Value, len(vals))
	for i, v := range vals {
		res[i] = fromBSON(v)
	}
	return res, nil
}

// Insert implements [Store.Insert].
func (m *Mongo) Insert(ctx context.Context, coll string, docs []value.Object) (InsertResult, error) {
	bdocs := make([]any, len(docs))
	for i, doc := range docs {
		d, err := toBSONDoc(doc)
		if err != nil {
			return InsertResult{}, err
		}
		bdocs[i] = d
	}
	res, err := m.db.Collection(coll).InsertMany(ctx, bdocs)
	if err != nil {
		return InsertResult{}, fmt.Errorf("mongodb insert: %w", err)
	}
	ids := make([]value.Value, len(res.InsertedIDs))
	for i, id := range res.InsertedIDs {
		ids[i] = fromBSON(id)
	}
	return InsertResult{InsertedIDs: ids}, nil
}

// Update implements [Store.Update]. Without operators and without Multi the update
// document replaces the matched document.
func (m *Mongo) Update(ctx context.Context, coll string, filter, update value.Object, opts UpdateOptions) (UpdateResult, error) {
	f, err := toBSONDoc(filter)
	if err != nil {
		return UpdateResult{}, err
	}
	u, err := toBSONDoc(update)
	if err != nil {
		return UpdateResult{}, err
	}
	c := m.db.Collection(coll)

	var res *mongo.UpdateResult
	switch {
	case opts.Multi:
		res, err = c.UpdateMany(ctx, f, u, options.UpdateMany().SetUpsert(opts.Upsert))
	case IsReplacement(update):
		res, err = c.ReplaceOne(ctx, f, u, options.Replace().SetUpsert(opts.Upsert))
	default:
		res, err = c.UpdateOne(ctx, f, u, options.UpdateOne().SetUpsert(opts.Upsert))
	}
	if err != nil {
		return UpdateResult{}, fmt.Errorf("mongodb update: %w", err)
	}
	out := UpdateResult{Matched: res.MatchedCount, Modified: res.ModifiedCount}
	if res.UpsertedID != nil {
		out.UpsertedID = fromBSON(res.UpsertedID)
	}
	return out, nil
}

// Remove implements [Store.Remove].
func (m *Mongo) Remove(ctx context.Context, coll string, filter value.Object) (RemoveResult, error) {
	f, err := toBSONDoc(filter)
	if err != nil {
		return RemoveResult{}, err
	}
	res, err := m.db.Collection(coll).DeleteMany(ctx, f)
	if err != nil {
		return RemoveResult{}, fmt.Errorf("mongodb remove: %w", err)
	}
	return RemoveResult{Removed: res.DeletedCount}, nil
}

// Close implements [Store.Close].
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

type mongoCursor struct {
	cur *mongo.Cursor
}

// NextBatch returns the documents already fetched by the driver, only the first
// document of each batch may trigger a round trip to the server.
func (c *mongoCursor) NextBatch(ctx context.Context) ([]value.Object, error) {
	if !c.cur.Next(ctx) {
		if err := c.cur.Err(); err != nil {
			return nil, fmt.Errorf("mongodb cursor: %w", err)
		}
		return nil, io.EOF
	}
	var batch []value.Object
	for {
		var doc bson.D
		if err := c.cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongodb cursor: decoding document: %w", err)
		}
		batch = append(batch, fromBSONDoc(doc))
		if c.cur.RemainingBatchLength() == 0 || !c.cur.Next(ctx) {
			return batch, nil
		}
	}
}

func (c *mongoCursor) Close(ctx context.Context) error {
	return c.cur.Close(ctx)
}

func clampInt64(n uint64) int64 {
	return int64(min(n, math.MaxInt64))
}

func toBSONDoc(o value.Object) (bson.D, error) {
	d := bson.D{}
	for key, v := range o.All() {
		bv, err := toBSON(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		d = append(d, bson.E{Key: key, Value: bv})
	}
	return d, nil
}

// toBSON converts a value to its BSON representation. Integers that fit use 32 bits.
// Single key objects in the extended JSON form, like {"$oid": "..."}, are converted to
// the corresponding BSON type.
func toBSON(v value.Value) (any, error) {
	switch t := v.(type) {
	case value.Null:
		return nil, nil
	case value.Bool:
		return bool(t), nil
	case value.Int:
		if t >= math.MinInt32 && t <= math.MaxInt32 {
			return int32(t), nil
		}
		return int64(t), nil
	case value.Float:
		return float64(t), nil
	case value.String:
		return string(t), nil
	case value.Array:
		arr := make(bson.A, len(t))
		for i, e := range t {
			bv, err := toBSON(e)
			if err != nil {
				return nil, err
			}
			arr[i] = bv
		}
		return arr, nil
	case value.Object:
		if ext, ok, err := fromExtended(t); ok || err != nil {
			return ext, err
		}
		return toBSONDoc(t)
	}
	return nil, fmt.Errorf("unsupported value %T", v)
}

func fromExtended(o value.Object) (any, bool, error) {
	if o.Len() != 1 {
		return nil, false, nil
	}
	key := o.Keys()[0]
	v, _ := o.Get(key)
	s, isString := v.(value.String)
	switch key {
	case "$oid":
		if !isString {
			return nil, true, errors.New("$oid needs a hex string")
		}
		oid, err := bson.ObjectIDFromHex(string(s))
		if err != nil {
			return nil, true, fmt.Errorf("$oid: %w", err)
		}
		return oid, true, nil
	case "$date":
		if n, ok := v.(value.Int); ok {
			return bson.DateTime(n), true, nil
		}
		if !isString {
			return nil, true, errors.New("$date needs a RFC 3339 string or milliseconds")
		}
		ts, err := time.Parse(time.RFC3339Nano, string(s))
		if err != nil {
			return nil, true, fmt.Errorf("$date: %w", err)
		}
		return bson.NewDateTimeFromTime(ts), true, nil
	case "$numberDecimal":
		if !isString {
			return nil, true, errors.New("$numberDecimal needs a string")
		}
		d, err := bson.ParseDecimal128(string(s))
		if err != nil {
			return nil, true, fmt.Errorf("$numberDecimal: %w", err)
		}
		return d, true, nil
	case "$numberLong":
		if !isString {
			return nil, true, errors.New("$numberLong needs a string")
		}
		n, err := strconv.ParseInt(string(s), 10, 64)
		if err != nil {
			return nil, true, fmt.Errorf("$numberLong: %w", err)
		}
		return n, true, nil
	}
	return nil, false, nil
}

func fromBSONDoc(d bson.D) value.Object {
	var o value.Object
	for _, e := range d {
		o.Set(e.Key, fromBSON(e.Value))
	}
	return o
}

// fromBSON converts a decoded BSON value. Types without a JSON counterpart are
// represented in the canonical extended JSON form, like {"$oid": "..."}.
func fromBSON(v any) value.Value {
	switch t := v.(type) {
	case nil, bson.Null, bson.Undefined:
		return value.Null{}
	case bool:
		return value.Bool(t)
	case int32:
		return value.Int(t)
	case int64:
		return value.Int(t)
	case int:
		return value.Int(t)
	case float64:
		return value.Float(t)
	case string:
		return value.String(t)
	case bson.D:
		return fromBSONDoc(t)
	case bson.M:
		var o value.Object
		for _, k := range slices.Sorted(mapKeys(t)) {
			o.Set(k, fromBSON(t[k]))
		}
		return o
	case bson.A:
		arr := make(value.Array, len(t))
		for i, e := range t {
			arr[i] = fromBSON(e)
		}
		return arr
	case []any:
		return fromBSON(bson.A(t))
	case bson.ObjectID:
		return extended("$oid", value.String(t.Hex()))
	case bson.DateTime:
		return extended("$date", value.String(t.Time().UTC().Format(time.RFC3339Nano)))
	case bson.Decimal128:
		return extended("$numberDecimal", value.String(t.String()))
	case bson.Binary:
		return extended("$binary", value.NewObject(
			value.Field{Key: "base64", Value: value.String(base64.StdEncoding.EncodeToString(t.Data))},
			value.Field{Key: "subType", Value: value.String(fmt.Sprintf("%02x", t.Subtype))},
		))
	case bson.Timestamp:
		return extended("$timestamp", value.NewObject(
			value.Field{Key: "t", Value: value.Int(t.T)},
			value.Field{Key: "i", Value: value.Int(t.I)},
		))
	case bson.Regex:
		return extended("$regularExpression", value.NewObject(
			value.Field{Key: "pattern", Value: value.String(t.Pattern)},
			value.Field{Key: "options", Value: value.String(t.Options)},
		))
	case bson.JavaScript:
		return extended("$code", value.String(string(t)))
	case bson.Symbol:
		return extended("$symbol", value.String(string(t)))
	case bson.MinKey:
		return extended("$minKey", value.Int(1))
	case bson.MaxKey:
		return extended("$maxKey", value.Int(1))
	}
	return value.String(fmt.Sprint(v))
}

func extended(key string, v value.Value) value.Object {
	return value.NewObject(value.Field{Key: key, Value: v})
}

func mapKeys(m bson.M) func(yield func(string) bool) {
	return func(yield func(string) bool) {
		for k := range m {
			if !yield(k) {
				return
			}
		}
	}
}
