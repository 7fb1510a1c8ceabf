package store

import (
	"testing"
	"time"

	"github.com/birdie-ai/mung/value"
	"github.com/google/go-cmp/cmp"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestToBSON(t *testing.T) {
	t.Parallel()

	oid := bson.NewObjectID()
	doc := value.NewObject(
		value.Field{Key: "_id", Value: value.NewObject(value.Field{Key: "$oid", Value: value.String(oid.Hex())})},
		value.Field{Key: "small", Value: value.Int(1)},
		value.Field{Key: "big", Value: value.Int(1 << 40)},
		value.Field{Key: "f", Value: value.Float(1.5)},
		value.Field{Key: "null", Value: value.Null{}},
		value.Field{Key: "list", Value: value.Array{value.Bool(true), value.String("s")}},
		value.Field{Key: "at", Value: value.NewObject(value.Field{Key: "$date", Value: value.String("2024-01-02T03:04:05Z")})},
		value.Field{Key: "long", Value: value.NewObject(value.Field{Key: "$numberLong", Value: value.String("7")})},
		value.Field{Key: "nested", Value: value.NewObject(value.Field{Key: "$gt", Value: value.Int(2)})},
	)
	got, err := toBSONDoc(doc)
	if err != nil {
		t.Fatal(err)
	}
	want := bson.D{
		{Key: "_id", Value: oid},
		{Key: "small", Value: int32(1)},
		{Key: "big", Value: int64(1 << 40)},
		{Key: "f", Value: 1.5},
		{Key: "null", Value: nil},
		{Key: "list", Value: bson.A{true, "s"}},
		{Key: "at", Value: bson.NewDateTimeFromTime(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))},
		{Key: "long", Value: int64(7)},
		{Key: "nested", Value: bson.D{{Key: "$gt", Value: int32(2)}}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("bson mismatch (-want +got):\n%s", diff)
	}
}

func TestToBSONInvalidExtended(t *testing.T) {
	t.Parallel()

	invalid := []value.Object{
		value.NewObject(value.Field{Key: "$oid", Value: value.String("nothex")}),
		value.NewObject(value.Field{Key: "$oid", Value: value.Int(1)}),
		value.NewObject(value.Field{Key: "$date", Value: value.String("yesterday")}),
		value.NewObject(value.Field{Key: "$numberDecimal", Value: value.String("x")}),
		value.NewObject(value.Field{Key: "$numberLong", Value: value.String("1.5")}),
	}
	for _, obj := range invalid {
		if _, err := toBSON(obj); err == nil {
			t.Errorf("toBSON(%v) succeeded, want error", obj)
		}
	}
}

func TestFromBSON(t *testing.T) {
	t.Parallel()

	oid, err := bson.ObjectIDFromHex("65a1b2c3d4e5f60718293a4b")
	if err != nil {
		t.Fatal(err)
	}
	doc := bson.D{
		{Key: "_id", Value: oid},
		{Key: "n", Value: int32(1)},
		{Key: "l", Value: int64(2)},
		{Key: "f", Value: 2.0},
		{Key: "at", Value: bson.NewDateTimeFromTime(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))},
		{Key: "bin", Value: bson.Binary{Subtype: 0, Data: []byte("hi")}},
		{Key: "ts", Value: bson.Timestamp{T: 10, I: 1}},
		{Key: "re", Value: bson.Regex{Pattern: "^a", Options: "i"}},
		{Key: "m", Value: bson.M{"b": "x", "a": nil}},
		{Key: "list", Value: bson.A{bson.D{{Key: "k", Value: true}}, bson.Undefined{}}},
	}
	b, err := value.Marshal(fromBSONDoc(doc))
	if err != nil {
		t.Fatal(err)
	}
	want := `{"_id":{"$oid":"65a1b2c3d4e5f60718293a4b"},"n":1,"l":2,"f":2.0,` +
		`"at":{"$date":"2024-01-02T03:04:05Z"},` +
		`"bin":{"$binary":{"base64":"aGk=","subType":"00"}},` +
		`"ts":{"$timestamp":{"t":10,"i":1}},` +
		`"re":{"$regularExpression":{"pattern":"^a","options":"i"}},` +
		`"m":{"a":null,"b":"x"},` +
		`"list":[{"k":true},null]}`
	if diff := cmp.Diff(want, string(b)); diff != "" {
		t.Fatalf("value mismatch (-want +got):\n%s", diff)
	}
}
