package store

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/birdie-ai/mung/value"
)

// Match reports if doc matches the query filter.
//
// A filter key is either a logical operator ($and, $or, $nor) or a dotted field path.
// A field condition is an operator object, like {"$gt": 1, "$lt": 5}, or a value
// that must be equal to the field. Paths traverse arrays, so {"tags": "x"} matches
// a document whose "tags" array contains "x".
func Match(doc value.Object, filter value.Object) (bool, error) {
	for key, cond := range filter.All() {
		ok, err := matchKey(doc, key, cond)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchKey(doc value.Object, key string, cond value.Value) (bool, error) {
	switch key {
	case "$and", "$or", "$nor":
		subs, err := filterList(key, cond)
		if err != nil {
			return false, err
		}
		return matchLogical(doc, key, subs)
	}
	if strings.HasPrefix(key, "$") {
		return false, fmt.Errorf("%w: unknown top level operator %q", ErrInvalidFilter, key)
	}
	segments := value.ParsePath(key)
	if segments == nil {
		return false, fmt.Errorf("%w: invalid field path %q", ErrInvalidFilter, key)
	}
	vals := resolve(doc, segments)
	if ops, ok := operatorObject(cond); ok {
		return matchOperators(vals, ops)
	}
	return matchEq(vals, cond), nil
}

func matchLogical(doc value.Object, op string, subs []value.Object) (bool, error) {
	for _, sub := range subs {
		ok, err := Match(doc, sub)
		if err != nil {
			return false, err
		}
		switch {
		case op == "$and" && !ok:
			return false, nil
		case op == "$or" && ok:
			return true, nil
		case op == "$nor" && ok:
			return false, nil
		}
	}
	return op != "$or", nil
}

func filterList(op string, cond value.Value) ([]value.Object, error) {
	arr, ok := cond.(value.Array)
	if !ok || len(arr) == 0 {
		return nil, fmt.Errorf("%w: %s needs a non-empty array", ErrInvalidFilter, op)
	}
	subs := make([]value.Object, len(arr))
	for i, v := range arr {
		sub, ok := v.(value.Object)
		if !ok {
			return nil, fmt.Errorf("%w: %s element %d: want object got %v", ErrInvalidFilter, op, i, v.Kind())
		}
		subs[i] = sub
	}
	return subs, nil
}

// operatorObject reports if cond is an object of operators, like {"$gt": 1}.
func operatorObject(cond value.Value) (value.Object, bool) {
	obj, ok := cond.(value.Object)
	if !ok || obj.Len() == 0 {
		return value.Object{}, false
	}
	return obj, strings.HasPrefix(obj.Keys()[0], "$")
}

func matchOperators(vals []value.Value, ops value.Object) (bool, error) {
	for op, arg := range ops.All() {
		ok, err := matchOperator(vals, op, arg, ops)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchOperator(vals []value.Value, op string, arg value.Value, ops value.Object) (bool, error) {
	switch op {
	case "$eq":
		return matchEq(vals, arg), nil
	case "$ne":
		return !matchEq(vals, arg), nil
	case "$gt", "$gte", "$lt", "$lte":
		return matchAny(vals, func(v value.Value) bool {
			if !sameClass(v, arg) {
				return false
			}
			c := value.Compare(v, arg)
			switch op {
			case "$gt":
				return c > 0
			case "$gte":
				return c >= 0
			case "$lt":
				return c < 0
			}
			return c <= 0
		}), nil
	case "$in", "$nin":
		arr, ok := arg.(value.Array)
		if !ok {
			return false, fmt.Errorf("%w: %s needs an array", ErrInvalidFilter, op)
		}
		in := false
		for _, want := range arr {
			if matchEq(vals, want) {
				in = true
				break
			}
		}
		return in == (op == "$in"), nil
	case "$exists":
		return (len(vals) > 0) == truthy(arg), nil
	case "$size":
		n, ok := arg.(value.Int)
		if !ok {
			return false, fmt.Errorf("%w: $size needs an integer", ErrInvalidFilter)
		}
		for _, v := range vals {
			if arr, ok := v.(value.Array); ok && int64(len(arr)) == int64(n) {
				return true, nil
			}
		}
		return false, nil
	case "$all":
		arr, ok := arg.(value.Array)
		if !ok {
			return false, fmt.Errorf("%w: $all needs an array", ErrInvalidFilter)
		}
		for _, want := range arr {
			if !matchEq(vals, want) {
				return false, nil
			}
		}
		return len(arr) > 0, nil
	case "$regex":
		re, err := compileRegex(arg, ops)
		if err != nil {
			return false, err
		}
		return matchAny(vals, func(v value.Value) bool {
			s, ok := v.(value.String)
			return ok && re.MatchString(string(s))
		}), nil
	case "$options":
		// consumed by $regex
		return true, nil
	case "$not":
		sub, ok := operatorObject(arg)
		if !ok {
			return false, fmt.Errorf("%w: $not needs an operator object", ErrInvalidFilter)
		}
		ok, err := matchOperators(vals, sub)
		return !ok, err
	case "$elemMatch":
		sub, ok := arg.(value.Object)
		if !ok {
			return false, fmt.Errorf("%w: $elemMatch needs an object", ErrInvalidFilter)
		}
		return matchElem(vals, sub)
	}
	return false, fmt.Errorf("%w: unknown operator %q", ErrInvalidFilter, op)
}

func matchElem(vals []value.Value, sub value.Object) (bool, error) {
	ops, isOps := operatorObject(sub)
	for _, v := range vals {
		arr, ok := v.(value.Array)
		if !ok {
			continue
		}
		for _, elem := range arr {
			var (
				ok  bool
				err error
			)
			if isOps {
				ok, err = matchOperators([]value.Value{elem}, ops)
			} else if doc, isDoc := elem.(value.Object); isDoc {
				ok, err = Match(doc, sub)
			}
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
	}
	return false, nil
}

// matchEq reports if any of the values, or any element of an array value, is equal to want.
// A null matches missing fields.
func matchEq(vals []value.Value, want value.Value) bool {
	if _, isNull := want.(value.Null); isNull && len(vals) == 0 {
		return true
	}
	for _, v := range vals {
		if equal(v, want) {
			return true
		}
		if arr, ok := v.(value.Array); ok {
			for _, elem := range arr {
				if equal(elem, want) {
					return true
				}
			}
		}
	}
	return false
}

func matchAny(vals []value.Value, pred func(value.Value) bool) bool {
	for _, v := range vals {
		if pred(v) {
			return true
		}
		if arr, ok := v.(value.Array); ok {
			for _, elem := range arr {
				if pred(elem) {
					return true
				}
			}
		}
	}
	return false
}

// equal is like [value.Equal] but integers and floats compare by numeric value.
func equal(a, b value.Value) bool {
	_, anum := value.Number(a)
	_, bnum := value.Number(b)
	if anum && bnum {
		return value.Compare(a, b) == 0
	}
	return value.Equal(a, b)
}

func sameClass(a, b value.Value) bool {
	_, anum := value.Number(a)
	_, bnum := value.Number(b)
	if anum || bnum {
		return anum && bnum
	}
	return a.Kind() == b.Kind()
}

func truthy(v value.Value) bool {
	switch t := v.(type) {
	case value.Bool:
		return bool(t)
	case value.Null:
		return false
	}
	if n, ok := value.Number(v); ok {
		return n != 0
	}
	return true
}

func compileRegex(arg value.Value, ops value.Object) (*regexp.Regexp, error) {
	pattern, ok := arg.(value.String)
	if !ok {
		return nil, fmt.Errorf("%w: $regex needs a string", ErrInvalidFilter)
	}
	var flags string
	if opts, ok := ops.Get("$options"); ok {
		s, ok := opts.(value.String)
		if !ok {
			return nil, fmt.Errorf("%w: $options needs a string", ErrInvalidFilter)
		}
		for _, f := range s {
			if !strings.ContainsRune("imsU", f) {
				return nil, fmt.Errorf("%w: unsupported regex option %q", ErrInvalidFilter, f)
			}
		}
		flags = string(s)
	}
	expr := string(pattern)
	if flags != "" {
		expr = "(?" + flags + ")" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	return re, nil
}

// resolve returns the values found at the path. Arrays on the way are traversed,
// either by a numeric index segment or by looking into each of their object elements.
func resolve(v value.Value, segments []string) []value.Value {
	if len(segments) == 0 {
		return []value.Value{v}
	}
	seg, rest := segments[0], segments[1:]
	switch t := v.(type) {
	case value.Object:
		child, ok := t.Get(seg)
		if !ok {
			return nil
		}
		return resolve(child, rest)
	case value.Array:
		var vals []value.Value
		if i, err := strconv.Atoi(seg); err == nil && i >= 0 && i < len(t) {
			vals = append(vals, resolve(t[i], rest)...)
		}
		for _, elem := range t {
			if obj, ok := elem.(value.Object); ok {
				vals = append(vals, resolve(obj, segments)...)
			}
		}
		return vals
	}
	return nil
}
