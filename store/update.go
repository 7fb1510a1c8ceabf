package store

import (
	"fmt"
	"strings"

	"github.com/birdie-ai/mung/value"
)

// IsReplacement reports if the update is a whole document replacement instead of
// a set of update operators, like {"$set": {...}}.
func IsReplacement(update value.Object) bool {
	for key := range update.All() {
		return !strings.HasPrefix(key, "$")
	}
	return true
}

// ApplyUpdate returns a copy of doc with the update applied. The update is either a
// replacement document or a set of update operators. The "_id" of doc is always kept.
func ApplyUpdate(doc, update value.Object) (value.Object, error) {
	return applyUpdate(doc, update, false)
}

func applyUpdate(doc, update value.Object, inserting bool) (value.Object, error) {
	if IsReplacement(update) {
		return replace(doc, update)
	}
	out := doc.Clone()
	for op, arg := range update.All() {
		if !strings.HasPrefix(op, "$") {
			return value.Object{}, fmt.Errorf("%w: update mixes fields and operators", ErrInvalidUpdate)
		}
		fields, ok := arg.(value.Object)
		if !ok {
			return value.Object{}, fmt.Errorf("%w: %s needs an object got %v", ErrInvalidUpdate, op, arg.Kind())
		}
		for path, v := range fields.All() {
			if err := checkUpdatePath(op, path); err != nil {
				return value.Object{}, err
			}
			if err := applyOperator(&out, op, path, v, inserting); err != nil {
				return value.Object{}, err
			}
		}
	}
	return out, nil
}

func replace(doc, replacement value.Object) (value.Object, error) {
	for key := range replacement.All() {
		if strings.HasPrefix(key, "$") {
			return value.Object{}, fmt.Errorf("%w: replacement mixes fields and operators", ErrInvalidUpdate)
		}
	}
	id, hasID := doc.Get("_id")
	newID, hasNewID := replacement.Get("_id")
	if hasID && hasNewID && !value.Equal(id, newID) {
		return value.Object{}, fmt.Errorf("%w: the _id field is immutable", ErrInvalidUpdate)
	}
	var out value.Object
	if hasID {
		out.Set("_id", id)
	}
	for key, v := range replacement.All() {
		out.Set(key, value.Clone(v))
	}
	return out, nil
}

func checkUpdatePath(op, path string) error {
	if value.ParsePath(path) == nil {
		return fmt.Errorf("%w: %s: invalid field path %q", ErrInvalidUpdate, op, path)
	}
	if (path == "_id" || strings.HasPrefix(path, "_id.")) && op != "$setOnInsert" {
		return fmt.Errorf("%w: %s: the _id field is immutable", ErrInvalidUpdate, op)
	}
	return nil
}

func applyOperator(doc *value.Object, op, path string, arg value.Value, inserting bool) error {
	current, exists := doc.Lookup(path)
	switch op {
	case "$set":
		return doc.SetPath(path, value.Clone(arg))
	case "$setOnInsert":
		if !inserting {
			return nil
		}
		return doc.SetPath(path, value.Clone(arg))
	case "$unset":
		doc.DeletePath(path)
		return nil
	case "$inc", "$mul":
		if !exists {
			current = value.Int(0)
			if op == "$mul" {
				// multiplying a missing field sets it to zero of the same type
				if _, isFloat := arg.(value.Float); isFloat {
					current = value.Float(0)
				}
				return doc.SetPath(path, current)
			}
		}
		n, err := arith(op, current, arg)
		if err != nil {
			return fmt.Errorf("%s %q: %w", op, path, err)
		}
		return doc.SetPath(path, n)
	case "$push", "$addToSet":
		arr, err := arrayField(op, path, current, exists)
		if err != nil {
			return err
		}
		items := value.Array{arg}
		if each, ok := eachModifier(arg); ok {
			items = each
		}
		for _, item := range items {
			if op == "$addToSet" && contains(arr, item) {
				continue
			}
			arr = append(arr, value.Clone(item))
		}
		return doc.SetPath(path, arr)
	case "$pull":
		if !exists {
			return nil
		}
		arr, err := arrayField(op, path, current, exists)
		if err != nil {
			return err
		}
		kept := value.Array{}
		for _, elem := range arr {
			pull, err := pullMatch(elem, arg)
			if err != nil {
				return err
			}
			if !pull {
				kept = append(kept, elem)
			}
		}
		return doc.SetPath(path, kept)
	case "$rename":
		to, ok := arg.(value.String)
		if !ok || value.ParsePath(string(to)) == nil {
			return fmt.Errorf("%w: $rename %q: target must be a field path", ErrInvalidUpdate, path)
		}
		if !exists {
			return nil
		}
		doc.DeletePath(path)
		return doc.SetPath(string(to), current)
	}
	return fmt.Errorf("%w: unknown operator %q", ErrInvalidUpdate, op)
}

func arith(op string, current, arg value.Value) (value.Value, error) {
	if _, ok := value.Number(arg); !ok {
		return nil, fmt.Errorf("%w: argument must be a number got %v", ErrInvalidUpdate, arg.Kind())
	}
	if _, ok := value.Number(current); !ok {
		return nil, fmt.Errorf("%w: field must be a number got %v", ErrInvalidUpdate, current.Kind())
	}
	a, aInt := current.(value.Int)
	b, bInt := arg.(value.Int)
	if aInt && bInt {
		if op == "$inc" {
			return a + b, nil
		}
		return a * b, nil
	}
	af, _ := value.Number(current)
	bf, _ := value.Number(arg)
	if op == "$inc" {
		return value.Float(af + bf), nil
	}
	return value.Float(af * bf), nil
}

func arrayField(op, path string, current value.Value, exists bool) (value.Array, error) {
	if !exists {
		return value.Array{}, nil
	}
	arr, ok := current.(value.Array)
	if !ok {
		return nil, fmt.Errorf("%w: %s %q: field must be an array got %v", ErrInvalidUpdate, op, path, current.Kind())
	}
	return append(value.Array{}, arr...), nil
}

func eachModifier(arg value.Value) (value.Array, bool) {
	obj, ok := arg.(value.Object)
	if !ok || obj.Len() != 1 {
		return nil, false
	}
	each, ok := obj.Get("$each")
	if !ok {
		return nil, false
	}
	arr, ok := each.(value.Array)
	return arr, ok
}

func contains(arr value.Array, v value.Value) bool {
	for _, elem := range arr {
		if equal(elem, v) {
			return true
		}
	}
	return false
}

func pullMatch(elem, cond value.Value) (bool, error) {
	if ops, ok := operatorObject(cond); ok {
		return matchOperators([]value.Value{elem}, ops)
	}
	if filter, ok := cond.(value.Object); ok {
		if doc, ok := elem.(value.Object); ok {
			return Match(doc, filter)
		}
		return false, nil
	}
	return equal(elem, cond), nil
}

// upsertDoc creates the document inserted by an upsert that matched nothing.
// It is seeded with the equality conditions of the filter.
func upsertDoc(filter, update value.Object) (value.Object, error) {
	var seed value.Object
	if err := seedFromFilter(&seed, filter); err != nil {
		return value.Object{}, err
	}
	if IsReplacement(update) {
		var doc value.Object
		if id, ok := seed.Get("_id"); ok {
			doc.Set("_id", id)
		}
		return replace(doc, update)
	}
	return applyUpdate(seed, update, true)
}

func seedFromFilter(seed *value.Object, filter value.Object) error {
	for key, cond := range filter.All() {
		if key == "$and" {
			subs, err := filterList(key, cond)
			if err != nil {
				return err
			}
			for _, sub := range subs {
				if err := seedFromFilter(seed, sub); err != nil {
					return err
				}
			}
			continue
		}
		if strings.HasPrefix(key, "$") {
			continue
		}
		if ops, ok := operatorObject(cond); ok {
			eq, ok := ops.Get("$eq")
			if !ok {
				continue
			}
			cond = eq
		}
		if err := seed.SetPath(key, value.Clone(cond)); err != nil {
			return err
		}
	}
	return nil
}
