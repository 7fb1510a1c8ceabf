package value_test

import (
	"errors"
	"math"
	"testing"

	"github.com/birdie-ai/mung/value"
	"github.com/google/go-cmp/cmp"
)

func TestObjectOrder(t *testing.T) {
	t.Parallel()

	var o value.Object
	o.Set("z", value.Int(1))
	o.Set("a", value.Int(2))
	o.Set("m", value.Int(3))
	o.Set("a", value.String("overwritten"))

	if diff := cmp.Diff([]string{"z", "a", "m"}, o.Keys()); diff != "" {
		t.Fatalf("keys mismatch (-want +got):\n%s", diff)
	}
	got, ok := o.Get("a")
	if !ok || !value.Equal(got, value.String("overwritten")) {
		t.Fatalf("got %v, want overwritten", got)
	}
	if !o.Delete("z") {
		t.Fatal("want z deleted")
	}
	if o.Delete("z") {
		t.Fatal("z deleted twice")
	}
	if diff := cmp.Diff([]string{"a", "m"}, o.Keys()); diff != "" {
		t.Fatalf("keys mismatch (-want +got):\n%s", diff)
	}
}

func TestObjectCloneIsDeep(t *testing.T) {
	t.Parallel()

	orig := value.NewObject(value.Field{Key: "nested", Value: value.NewObject(
		value.Field{Key: "n", Value: value.Int(1)},
	)})
	clone := orig.Clone()
	if err := clone.SetPath("nested.n", value.Int(2)); err != nil {
		t.Fatal(err)
	}
	got, _ := orig.Lookup("nested.n")
	if !value.Equal(got, value.Int(1)) {
		t.Fatalf("original changed: %v", orig)
	}
}

func TestPath(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `{"a":{"b":{"c":1}},"tags":["x","y"],"with.dot":{"v":true}}`).(value.Object)

	type testcase struct {
		path  string
		want  value.Value
		found bool
	}
	for _, tc := range []testcase{
		{path: "a.b.c", want: value.Int(1), found: true},
		{path: "a.b", want: mustParse(t, `{"c":1}`), found: true},
		{path: "tags.1", want: value.String("y"), found: true},
		{path: "tags.2"},
		{path: `"with.dot".v`, want: value.Bool(true), found: true},
		{path: "a.x.c"},
		{path: "a..b"},
		{path: ""},
	} {
		got, found := doc.Lookup(tc.path)
		if found != tc.found {
			t.Errorf("Lookup(%q): found=%v, want %v", tc.path, found, tc.found)
			continue
		}
		if found && !value.Equal(got, tc.want) {
			t.Errorf("Lookup(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}

	if err := doc.SetPath("a.new.leaf", value.String("v")); err != nil {
		t.Fatal(err)
	}
	if err := doc.SetPath("a.", value.Null{}); !errors.Is(err, value.ErrInvalidPath) {
		t.Fatalf("got %v, want %v", err, value.ErrInvalidPath)
	}
	if !doc.DeletePath("a.b.c") {
		t.Fatal("want a.b.c deleted")
	}
	if doc.DeletePath("missing.key") {
		t.Fatal("deleted missing key")
	}
	want := `{"a":{"b":{},"new":{"leaf":"v"}},"tags":["x","y"],"with.dot":{"v":true}}`
	if got := doc.String(); got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestJSON(t *testing.T) {
	t.Parallel()

	type testcase struct {
		name string
		in   string
		want value.Value
		out  string
	}
	for _, tc := range []testcase{
		{
			name: "keeps key order",
			in:   `{"b": 1, "a": [true, null, 1.5, "s"]}`,
			want: value.NewObject(
				value.Field{Key: "b", Value: value.Int(1)},
				value.Field{Key: "a", Value: value.Array{value.Bool(true), value.Null{}, value.Float(1.5), value.String("s")}},
			),
			out: `{"b":1,"a":[true,null,1.5,"s"]}`,
		},
		{
			name: "integral float stays float",
			in:   `2.0`,
			want: value.Float(2),
			out:  `2.0`,
		},
		{
			name: "int overflow becomes float",
			in:   `99999999999999999999`,
			want: value.Float(1e20),
			out:  `1e+20`,
		},
		{
			name: "no html escaping",
			in:   `"<a&b>"`,
			want: value.String("<a&b>"),
			out:  `"<a&b>"`,
		},
		{
			name: "empty containers",
			in:   `{"a":{},"b":[]}`,
			want: value.NewObject(
				value.Field{Key: "a", Value: value.Object{}},
				value.Field{Key: "b", Value: value.Array{}},
			),
			out: `{"a":{},"b":[]}`,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got := mustParse(t, tc.in)
			if !value.Equal(got, tc.want) {
				t.Fatalf("parsed %v, want %v", got, tc.want)
			}
			out, err := value.Marshal(got)
			if err != nil {
				t.Fatal(err)
			}
			if string(out) != tc.out {
				t.Fatalf("marshaled %s, want %s", out, tc.out)
			}
		})
	}
}

func TestJSONNonFinite(t *testing.T) {
	t.Parallel()

	arr := value.Array{value.Float(math.NaN()), value.Float(math.Inf(1)), value.Float(math.Inf(-1))}
	got, err := value.Marshal(arr)
	if err != nil {
		t.Fatal(err)
	}
	if want := `["NaN","Infinity","-Infinity"]`; string(got) != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestParseJSONErrors(t *testing.T) {
	t.Parallel()

	for _, in := range []string{``, `{`, `{"a":1}{}`, `[1,]`, `{1:2}`} {
		if _, err := value.ParseJSON([]byte(in)); !errors.Is(err, value.ErrInvalidJSON) {
			t.Errorf("ParseJSON(%q): got %v, want %v", in, err, value.ErrInvalidJSON)
		}
	}

	var o value.Object
	if err := o.UnmarshalJSON([]byte(`[1]`)); !errors.Is(err, value.ErrInvalidJSON) {
		t.Fatalf("got %v, want %v", err, value.ErrInvalidJSON)
	}
}

func TestCompare(t *testing.T) {
	t.Parallel()

	ordered := []value.Value{
		value.Null{},
		value.Int(-1),
		value.Float(0.5),
		value.Int(1),
		value.String("a"),
		value.String("b"),
		value.NewObject(value.Field{Key: "a", Value: value.Int(1)}),
		value.Array{value.Int(1)},
		value.Bool(false),
		value.Bool(true),
	}
	for i := range ordered {
		for j := range ordered {
			got := value.Compare(ordered[i], ordered[j])
			want := 0
			if i < j {
				want = -1
			} else if i > j {
				want = 1
			}
			if got != want {
				t.Errorf("Compare(%v, %v) = %d, want %d", ordered[i], ordered[j], got, want)
			}
		}
	}
	if value.Compare(value.Int(2), value.Float(2)) != 0 {
		t.Fatal("2 and 2.0 must compare equal")
	}
	if value.Equal(value.Int(2), value.Float(2)) {
		t.Fatal("2 and 2.0 must not be deeply equal")
	}
}

func mustParse(t *testing.T, s string) value.Value {
	t.Helper()
	v, err := value.ParseJSON([]byte(s))
	if err != nil {
		t.Fatal(err)
	}
	return v
}
