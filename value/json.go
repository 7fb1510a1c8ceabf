package value

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidJSON indicates that a JSON document could not be decoded into a [Value].
var ErrInvalidJSON = errors.New("invalid JSON value")

// Marshal returns the compact JSON encoding of v. Object keys keep their order.
// Non-finite floats have no JSON representation and are encoded as the strings
// "NaN", "Infinity" and "-Infinity".
func Marshal(v Value) ([]byte, error) {
	return appendJSON(nil, v)
}

// MarshalJSON implements [json.Marshaler].
func (n Null) MarshalJSON() ([]byte, error) { return Marshal(n) }

// MarshalJSON implements [json.Marshaler].
func (b Bool) MarshalJSON() ([]byte, error) { return Marshal(b) }

// MarshalJSON implements [json.Marshaler].
func (i Int) MarshalJSON() ([]byte, error) { return Marshal(i) }

// MarshalJSON implements [json.Marshaler].
func (f Float) MarshalJSON() ([]byte, error) { return Marshal(f) }

// MarshalJSON implements [json.Marshaler].
func (s String) MarshalJSON() ([]byte, error) { return Marshal(s) }

// MarshalJSON implements [json.Marshaler].
func (a Array) MarshalJSON() ([]byte, error) { return Marshal(a) }

// MarshalJSON implements [json.Marshaler].
func (o Object) MarshalJSON() ([]byte, error) { return Marshal(o) }

// UnmarshalJSON implements [json.Unmarshaler]. The document must be a JSON object.
func (o *Object) UnmarshalJSON(data []byte) error {
	v, err := ParseJSON(data)
	if err != nil {
		return err
	}
	obj, ok := v.(Object)
	if !ok {
		return fmt.Errorf("%w: want object got %v", ErrInvalidJSON, v.Kind())
	}
	*o = obj
	return nil
}

// ParseJSON decodes a single JSON document into a [Value], preserving object key order.
// Numbers without fraction or exponent that fit in 64 bits are decoded as [Int].
func ParseJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decode(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after offset %d", ErrInvalidJSON, dec.InputOffset())
	}
	return v, nil
}

// ParseNumber parses a numeric literal. Literals with a fraction or an exponent are
// floats, integers that overflow 64 bits are also parsed as floats.
func ParseNumber(s string) (Value, error) {
	if !strings.ContainsAny(s, ".eE") {
		i, err := strconv.ParseInt(s, 10, 64)
		if err == nil {
			return Int(i), nil
		}
		if !errors.Is(err, strconv.ErrRange) {
			return nil, err
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return Float(f), nil
}

func decode(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		return ParseNumber(t.String())
	case json.Delim:
		switch t {
		case '{':
			var o Object
			for dec.More() {
				keytok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keytok.(string)
				if !ok {
					return nil, fmt.Errorf("unexpected object key %v", keytok)
				}
				v, err := decode(dec)
				if err != nil {
					return nil, err
				}
				o.Set(key, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return o, nil
		case '[':
			arr := Array{}
			for dec.More() {
				v, err := decode(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		}
	}
	return nil, fmt.Errorf("unexpected token %v", tok)
}

func appendJSON(b []byte, v Value) ([]byte, error) {
	switch t := v.(type) {
	case nil, Null:
		return append(b, "null"...), nil
	case Bool:
		return strconv.AppendBool(b, bool(t)), nil
	case Int:
		return strconv.AppendInt(b, int64(t), 10), nil
	case Float:
		return appendFloat(b, float64(t)), nil
	case String:
		return appendString(b, string(t))
	case Array:
		b = append(b, '[')
		for i, e := range t {
			if i > 0 {
				b = append(b, ',')
			}
			var err error
			if b, err = appendJSON(b, e); err != nil {
				return nil, err
			}
		}
		return append(b, ']'), nil
	case Object:
		b = append(b, '{')
		for i, f := range t.fields {
			if i > 0 {
				b = append(b, ',')
			}
			var err error
			if b, err = appendString(b, f.Key); err != nil {
				return nil, err
			}
			b = append(b, ':')
			if b, err = appendJSON(b, f.Value); err != nil {
				return nil, err
			}
		}
		return append(b, '}'), nil
	}
	return nil, fmt.Errorf("unsupported value %T", v)
}

func appendFloat(b []byte, f float64) []byte {
	switch {
	case math.IsNaN(f):
		return append(b, `"NaN"`...)
	case math.IsInf(f, 1):
		return append(b, `"Infinity"`...)
	case math.IsInf(f, -1):
		return append(b, `"-Infinity"`...)
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	b = append(b, s...)
	if !strings.ContainsAny(s, ".e") {
		// keep it a float when parsed back
		b = append(b, ".0"...)
	}
	return b
}

func appendString(b []byte, s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return append(b, bytes.TrimSuffix(buf.Bytes(), []byte("\n"))...), nil
}
