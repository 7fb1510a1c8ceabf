// Package value provides the document values handled by mung.
//
// A [Value] is a closed tagged union mirroring a JSON superset: [Null], [Bool],
// [Int], [Float], [String], [Array] and [Object]. Objects keep the insertion
// order of their keys, which is preserved when values are encoded back as JSON.
package value

import (
	"cmp"
	"fmt"
	"math"
	"strings"
)

// Kind identifies the variant of a [Value].
type Kind int

// All value kinds.
const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "integer"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Value is a document value. The set of implementations is closed, use a type
// switch on the concrete types of this package to inspect it.
type Value interface {
	Kind() Kind
	value()
}

type (
	// Null is the null value.
	Null struct{}
	// Bool is a boolean value.
	Bool bool
	// Int is a 64 bits signed integer value.
	Int int64
	// Float is a 64 bits floating point value.
	Float float64
	// String is a string value.
	String string
	// Array is an ordered sequence of values.
	Array []Value
)

func (Null) Kind() Kind   { return KindNull }
func (Bool) Kind() Kind   { return KindBool }
func (Int) Kind() Kind    { return KindInt }
func (Float) Kind() Kind  { return KindFloat }
func (String) Kind() Kind { return KindString }
func (Array) Kind() Kind  { return KindArray }
func (Object) Kind() Kind { return KindObject }

func (Null) value()   {}
func (Bool) value()   {}
func (Int) value()    {}
func (Float) value()  {}
func (String) value() {}
func (Array) value()  {}
func (Object) value() {}

// Number returns v as a float64 if it is an [Int] or a [Float].
func Number(v Value) (float64, bool) {
	switch n := v.(type) {
	case Int:
		return float64(n), true
	case Float:
		return float64(n), true
	}
	return 0, false
}

// Equal reports whether a and b are deeply equal. Object keys are compared in order.
// Int and Float are different kinds and never equal each other, use [Compare] for
// numeric comparison.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case Null:
		_, ok := b.(Null)
		return ok
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Float:
		bv, ok := b.(Float)
		if !ok {
			return false
		}
		if math.IsNaN(float64(av)) && math.IsNaN(float64(bv)) {
			return true
		}
		return av == bv
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Array:
		bv, ok := b.(Array)
		return ok && av.Equal(bv)
	case Object:
		bv, ok := b.(Object)
		return ok && av.Equal(bv)
	}
	return false
}

// Equal reports whether a and o have the same elements in the same order.
func (a Array) Equal(o Array) bool {
	if len(a) != len(o) {
		return false
	}
	for i := range a {
		if !Equal(a[i], o[i]) {
			return false
		}
	}
	return true
}

// Compare returns an integer comparing a and b using a total order across kinds:
// null < numbers < strings < objects < arrays < booleans.
// Integers and floats compare by numeric value.
func Compare(a, b Value) int {
	if c := cmp.Compare(typeOrder(a), typeOrder(b)); c != 0 {
		return c
	}
	switch av := a.(type) {
	case Int:
		if bv, ok := b.(Int); ok {
			return cmp.Compare(av, bv)
		}
		bf, _ := Number(b)
		return cmp.Compare(float64(av), bf)
	case Float:
		bf, _ := Number(b)
		return cmp.Compare(float64(av), bf)
	case String:
		return strings.Compare(string(av), string(b.(String)))
	case Bool:
		return cmp.Compare(boolOrder(av), boolOrder(b.(Bool)))
	case Array:
		bv := b.(Array)
		for i := 0; i < len(av) && i < len(bv); i++ {
			if c := Compare(av[i], bv[i]); c != 0 {
				return c
			}
		}
		return cmp.Compare(len(av), len(bv))
	case Object:
		bv := b.(Object)
		for i := 0; i < len(av.fields) && i < len(bv.fields); i++ {
			af, bf := av.fields[i], bv.fields[i]
			if c := strings.Compare(af.Key, bf.Key); c != 0 {
				return c
			}
			if c := Compare(af.Value, bf.Value); c != 0 {
				return c
			}
		}
		return cmp.Compare(len(av.fields), len(bv.fields))
	}
	return 0
}

func typeOrder(v Value) int {
	switch v.(type) {
	case nil, Null:
		return 0
	case Int, Float:
		return 1
	case String:
		return 2
	case Object:
		return 3
	case Array:
		return 4
	case Bool:
		return 5
	}
	return 6
}

func boolOrder(b Bool) int {
	if b {
		return 1
	}
	return 0
}

// String returns the compact JSON representation of the array.
func (a Array) String() string {
	b, _ := Marshal(a)
	return string(b)
}
