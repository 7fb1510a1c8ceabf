package store

import (
	"fmt"
	"slices"

	"github.com/birdie-ai/mung/value"
)

// Project applies a projection to doc. A projection either includes fields, like
// {"name": 1}, or excludes them, like {"secret": 0}, the two can't be mixed.
// The "_id" field is included unless explicitly excluded.
func Project(doc, proj value.Object) (value.Object, error) {
	if proj.Len() == 0 {
		return doc, nil
	}
	includeID := true
	var include, exclude []string
	for path, v := range proj.All() {
		if value.ParsePath(path) == nil {
			return value.Object{}, fmt.Errorf("%w: invalid projection path %q", ErrInvalidFilter, path)
		}
		if path == "_id" {
			includeID = truthy(v)
			continue
		}
		if truthy(v) {
			include = append(include, path)
		} else {
			exclude = append(exclude, path)
		}
	}
	if len(include) > 0 && len(exclude) > 0 {
		return value.Object{}, fmt.Errorf("%w: projection mixes inclusion and exclusion", ErrInvalidFilter)
	}

	if len(include) == 0 {
		out := doc.Clone()
		for _, path := range exclude {
			out.DeletePath(path)
		}
		if !includeID {
			out.Delete("_id")
		}
		return out, nil
	}

	tree := projectionTree{}
	for _, path := range include {
		tree.add(value.ParsePath(path))
	}
	if includeID {
		tree["_id"] = nil
	}
	return tree.apply(doc), nil
}

// projectionTree maps a key to the projection of its nested fields, nil includes it whole.
type projectionTree map[string]projectionTree

func (t projectionTree) add(segments []string) {
	key := segments[0]
	sub, exists := t[key]
	if len(segments) == 1 {
		t[key] = nil
		return
	}
	if exists && sub == nil {
		// already included whole
		return
	}
	if sub == nil {
		sub = projectionTree{}
		t[key] = sub
	}
	sub.add(segments[1:])
}

func (t projectionTree) apply(doc value.Object) value.Object {
	var out value.Object
	for key, v := range doc.All() {
		sub, ok := t[key]
		if !ok {
			continue
		}
		if sub == nil {
			out.Set(key, value.Clone(v))
			continue
		}
		if projected, ok := sub.applyValue(v); ok {
			out.Set(key, projected)
		}
	}
	return out
}

func (t projectionTree) applyValue(v value.Value) (value.Value, bool) {
	switch vv := v.(type) {
	case value.Object:
		return t.apply(vv), true
	case value.Array:
		arr := value.Array{}
		for _, elem := range vv {
			if projected, ok := t.applyValue(elem); ok {
				arr = append(arr, projected)
			}
		}
		return arr, true
	}
	return nil, false
}

// SortDocs sorts the documents by the sort specification, like {"age": -1, "name": 1}.
// Missing fields sort as null. The sort is stable.
func SortDocs(docs []value.Object, spec value.Object) error {
	type key struct {
		path string
		dir  int
	}
	var keys []key
	for path, v := range spec.All() {
		n, ok := value.Number(v)
		if !ok || (n != 1 && n != -1) {
			return fmt.Errorf("%w: sort direction of %q must be 1 or -1", ErrInvalidFilter, path)
		}
		keys = append(keys, key{path: path, dir: int(n)})
	}
	slices.SortStableFunc(docs, func(a, b value.Object) int {
		for _, k := range keys {
			av, ok := a.Lookup(k.path)
			if !ok {
				av = value.Null{}
			}
			bv, ok := b.Lookup(k.path)
			if !ok {
				bv = value.Null{}
			}
			if c := value.Compare(av, bv); c != 0 {
				return c * k.dir
			}
		}
		return 0
	})
	return nil
}
