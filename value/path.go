package value

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrInvalidPath indicates that a traversal path is invalid.
var ErrInvalidPath = errors.New("object traversal path is invalid")

// Lookup traverses o using the given dotted path and returns the value found.
// Intermediate arrays are indexed by numeric segments, so "tags.0" is the first
// element of the "tags" array.
//
// Key names with "." can be traversed by using double quotes like:
//   - key."nested.dot".value
func (o Object) Lookup(path string) (Value, bool) {
	segments := ParsePath(path)
	if len(segments) == 0 {
		return nil, false
	}
	var node Value = o
	for _, seg := range segments {
		switch n := node.(type) {
		case Object:
			v, ok := n.Get(seg)
			if !ok {
				return nil, false
			}
			node = v
		case Array:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(n) {
				return nil, false
			}
			node = n[i]
		default:
			return nil, false
		}
	}
	return node, true
}

// SetPath traverses o using the given path and sets the leaf to v, creating any
// intermediate objects. Existing intermediate values that are not objects are replaced.
func (o *Object) SetPath(path string, v Value) error {
	segments := ParsePath(path)
	if len(segments) == 0 {
		return fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	setPath(o, segments, v)
	return nil
}

func setPath(o *Object, segments []string, v Value) {
	key := segments[0]
	if len(segments) == 1 {
		o.Set(key, v)
		return
	}
	child, _ := o.Get(key)
	next, ok := child.(Object)
	if !ok {
		next = Object{}
	}
	setPath(&next, segments[1:], v)
	o.Set(key, next)
}

// DeletePath removes the value at path, returning true if it existed.
// Missing intermediate keys are not an error.
func (o *Object) DeletePath(path string) bool {
	segments := ParsePath(path)
	if len(segments) == 0 {
		return false
	}
	return deletePath(o, segments)
}

func deletePath(o *Object, segments []string) bool {
	key := segments[0]
	if len(segments) == 1 {
		return o.Delete(key)
	}
	child, ok := o.Get(key)
	if !ok {
		return false
	}
	next, ok := child.(Object)
	if !ok {
		return false
	}
	if !deletePath(&next, segments[1:]) {
		return false
	}
	o.Set(key, next)
	return true
}

// ParsePath splits a dotted path into its segments. It returns nil for an invalid
// path, like "", "a." or "a..b".
func ParsePath(path string) []string {
	var (
		segments []string
		current  []rune
		quoted   bool
		previous rune
	)

	for _, r := range path {
		switch {
		case r == '.' && !quoted:
			if len(current) == 0 {
				return nil
			}
			segments = append(segments, string(current))
			current = nil
		case r == '"' && previous != '\\':
			quoted = !quoted
		case r == '"' && previous == '\\':
			current = current[:len(current)-1]
			current = append(current, r)
		default:
			current = append(current, r)
		}
		previous = r
	}
	if len(current) == 0 {
		return nil
	}
	return append(segments, string(current))
}
