package value

import (
	"iter"
	"slices"
)

// Field is a single key/value pair of an [Object].
type Field struct {
	Key   string
	Value Value
}

// Object is an ordered mapping of unique string keys to values.
// The zero Object is empty and ready to use.
type Object struct {
	fields []Field
}

// NewObject creates an object with the given fields, in order.
// A repeated key overwrites the value of its first occurrence.
func NewObject(fields ...Field) Object {
	var o Object
	for _, f := range fields {
		o.Set(f.Key, f.Value)
	}
	return o
}

// Len returns the number of keys.
func (o Object) Len() int {
	return len(o.fields)
}

// Get returns the value associated with key.
func (o Object) Get(key string) (Value, bool) {
	if i := o.index(key); i >= 0 {
		return o.fields[i].Value, true
	}
	return nil, false
}

// Has reports if the key is present.
func (o Object) Has(key string) bool {
	return o.index(key) >= 0
}

// Set associates key with v. If the key already exists its value is replaced
// and its position is kept, otherwise the key is appended.
func (o *Object) Set(key string, v Value) {
	if v == nil {
		v = Null{}
	}
	if i := o.index(key); i >= 0 {
		o.fields[i].Value = v
		return
	}
	o.fields = append(o.fields, Field{Key: key, Value: v})
}

// Delete removes key, returning true if it was present.
func (o *Object) Delete(key string) bool {
	i := o.index(key)
	if i < 0 {
		return false
	}
	o.fields = slices.Delete(o.fields, i, i+1)
	return true
}

// Keys returns the object keys in insertion order.
func (o Object) Keys() []string {
	keys := make([]string, len(o.fields))
	for i, f := range o.fields {
		keys[i] = f.Key
	}
	return keys
}

// Fields returns a copy of the object fields in insertion order.
func (o Object) Fields() []Field {
	return slices.Clone(o.fields)
}

// All iterates over the object fields in insertion order.
func (o Object) All() iter.Seq2[string, Value] {
	return func(yield func(string, Value) bool) {
		for _, f := range o.fields {
			if !yield(f.Key, f.Value) {
				return
			}
		}
	}
}

// Clone returns a deep copy of the object.
func (o Object) Clone() Object {
	if o.fields == nil {
		return Object{}
	}
	fields := make([]Field, len(o.fields))
	for i, f := range o.fields {
		fields[i] = Field{Key: f.Key, Value: Clone(f.Value)}
	}
	return Object{fields: fields}
}

// Equal reports whether o and other have the same keys, in the same order, with equal values.
func (o Object) Equal(other Object) bool {
	if len(o.fields) != len(other.fields) {
		return false
	}
	for i, f := range o.fields {
		of := other.fields[i]
		if f.Key != of.Key || !Equal(f.Value, of.Value) {
			return false
		}
	}
	return true
}

// String returns the compact JSON representation of the object.
func (o Object) String() string {
	b, _ := Marshal(o)
	return string(b)
}

func (o Object) index(key string) int {
	for i, f := range o.fields {
		if f.Key == key {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of v.
func Clone(v Value) Value {
	switch t := v.(type) {
	case Object:
		return t.Clone()
	case Array:
		arr := make(Array, len(t))
		for i, e := range t {
			arr[i] = Clone(e)
		}
		return arr
	}
	return v
}
