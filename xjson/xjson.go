// Package xjson handles streams of JSON values: encoding results one at a time for
// humans or for other tools, and decoding JSON lines streams back.
package xjson

import (
	"encoding/json"
	"io"
	"iter"
)

// Decoder reads a stream of JSON values of the same type, like the compact output of
// an [Encoder]. Use [json.Decoder] directly for heterogeneous streams.
type Decoder[T any] struct {
	d   *json.Decoder
	err error
}

// NewDecoder creates a new decoder for type T.
func NewDecoder[T any](r io.Reader) *Decoder[T] {
	d := json.NewDecoder(r)
	d.UseNumber()
	return &Decoder[T]{d: d}
}

// All returns a single-use iterator for the stream.
func (d *Decoder[T]) All() iter.Seq[T] {
	return func(yield func(v T) bool) {
		for d.err == nil && d.d.More() {
			var v T
			if err := d.d.Decode(&v); err != nil {
				d.err = err
				return
			}
			if !yield(v) {
				return
			}
		}
	}
}

// Error returns the error that interrupted iteration or nil if no error happened.
func (d *Decoder[T]) Error() error {
	return d.err
}
