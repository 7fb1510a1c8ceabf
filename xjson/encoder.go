package xjson

import (
	"io"
	"strings"

	"github.com/birdie-ai/mung/value"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

type (
	// Encoder writes values as JSON, one value per line (or per block when pretty
	// printing), flushing each value as soon as it is encoded.
	Encoder struct {
		w       io.Writer
		compact bool
		indent  string
		palette *palette
	}

	// EncoderOption configures an [Encoder].
	EncoderOption func(*Encoder)

	flusher interface {
		Flush() error
	}

	palette struct {
		key, str, num, lit lipgloss.Style
	}
)

// DefaultIndent is the indentation used when pretty printing.
const DefaultIndent = "  "

// Compact makes the encoder write each value in a single line, making the
// output a valid JSON lines stream.
func Compact(compact bool) EncoderOption {
	return func(e *Encoder) {
		e.compact = compact
	}
}

// Color enables ANSI colors on keys, strings, numbers and literals.
func Color(color bool) EncoderOption {
	return func(e *Encoder) {
		if !color {
			e.palette = nil
			return
		}
		r := lipgloss.NewRenderer(e.w)
		r.SetColorProfile(termenv.ANSI)
		e.palette = &palette{
			key: r.NewStyle().Foreground(lipgloss.Color("4")).Bold(true),
			str: r.NewStyle().Foreground(lipgloss.Color("2")),
			num: r.NewStyle().Foreground(lipgloss.Color("6")),
			lit: r.NewStyle().Foreground(lipgloss.Color("5")),
		}
	}
}

// Indent sets the indentation used when pretty printing, [DefaultIndent] by default.
func Indent(indent string) EncoderOption {
	return func(e *Encoder) {
		e.indent = indent
	}
}

// NewEncoder creates an encoder writing to w. By default values are pretty printed without colors.
func NewEncoder(w io.Writer, opts ...EncoderOption) *Encoder {
	e := &Encoder{w: w, indent: DefaultIndent}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Encode writes v followed by a newline with a single write. If the underlying
// writer has a Flush method it is called after the write.
// Nothing is written if v can't be encoded.
func (e *Encoder) Encode(v value.Value) error {
	var b strings.Builder
	if err := e.encode(&b, v, 0); err != nil {
		return err
	}
	b.WriteByte('\n')
	if _, err := io.WriteString(e.w, b.String()); err != nil {
		return err
	}
	if f, ok := e.w.(flusher); ok {
		return f.Flush()
	}
	return nil
}

func (e *Encoder) encode(b *strings.Builder, v value.Value, depth int) error {
	switch t := v.(type) {
	case value.Object:
		return e.encodeObject(b, t, depth)
	case value.Array:
		return e.encodeArray(b, t, depth)
	}
	data, err := value.Marshal(v)
	if err != nil {
		return err
	}
	b.WriteString(e.paint(v, string(data)))
	return nil
}

func (e *Encoder) encodeObject(b *strings.Builder, o value.Object, depth int) error {
	if o.Len() == 0 {
		b.WriteString("{}")
		return nil
	}
	b.WriteByte('{')
	i := 0
	for key, v := range o.All() {
		if i > 0 {
			b.WriteByte(',')
		}
		i++
		e.newline(b, depth+1)
		k, err := value.Marshal(value.String(key))
		if err != nil {
			return err
		}
		if e.palette != nil {
			b.WriteString(e.palette.key.Render(string(k)))
		} else {
			b.Write(k)
		}
		b.WriteByte(':')
		if !e.compact {
			b.WriteByte(' ')
		}
		if err := e.encode(b, v, depth+1); err != nil {
			return err
		}
	}
	e.newline(b, depth)
	b.WriteByte('}')
	return nil
}

func (e *Encoder) encodeArray(b *strings.Builder, a value.Array, depth int) error {
	if len(a) == 0 {
		b.WriteString("[]")
		return nil
	}
	b.WriteByte('[')
	for i, v := range a {
		if i > 0 {
			b.WriteByte(',')
		}
		e.newline(b, depth+1)
		if err := e.encode(b, v, depth+1); err != nil {
			return err
		}
	}
	e.newline(b, depth)
	b.WriteByte(']')
	return nil
}

func (e *Encoder) newline(b *strings.Builder, depth int) {
	if e.compact {
		return
	}
	b.WriteByte('\n')
	b.WriteString(strings.Repeat(e.indent, depth))
}

func (e *Encoder) paint(v value.Value, s string) string {
	if e.palette == nil {
		return s
	}
	switch v.(type) {
	case value.String:
		return e.palette.str.Render(s)
	case value.Int, value.Float:
		return e.palette.num.Render(s)
	}
	return e.palette.lit.Render(s)
}
