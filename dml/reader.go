package dml

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"unicode"
)

// ErrRead indicates a failure reading the command source.
var ErrRead = errors.New("reading commands")

type (
	// Reader splits a command source into successive commands.
	// Reading is incremental, a command is parsed as soon as its text is complete.
	Reader struct {
		src         *bufio.Reader
		stopOnError bool

		pos     Position
		prevPos Position
		index   int
		done    bool
	}

	// ReaderOption configures a [Reader].
	ReaderOption func(*Reader)

	// Result is a single item read from the command source: a translated Command or the
	// error that prevented it. Index is the 1-based sequence number of the command and
	// Pos where its text starts.
	Result struct {
		Index   int
		Pos     Position
		Text    string
		Command Command
		Err     error
	}
)

// StopOnError configures if the [Reader] stops after the first failing command (the default).
// When false it skips to the next command boundary and continues.
func StopOnError(stop bool) ReaderOption {
	return func(r *Reader) {
		r.stopOnError = stop
	}
}

// NewReader creates a [Reader] for the given source.
func NewReader(src io.Reader, opts ...ReaderOption) *Reader {
	r := &Reader{
		src:         bufio.NewReader(src),
		stopOnError: true,
		pos:         startPos,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// All returns the sequence of commands read from the source.
// The sequence is forward-only: once consumed, calling All again continues from where
// the previous iteration stopped.
func (r *Reader) All() iter.Seq[Result] {
	return func(yield func(Result) bool) {
		for !r.done {
			start, text, err := r.readText()
			if err != nil {
				r.done = true
				yield(Result{Index: r.index + 1, Pos: r.pos, Err: fmt.Errorf("%w: %w", ErrRead, err)})
				return
			}
			if text == "" {
				r.done = true
				return
			}
			r.index++
			res := Result{Index: r.index, Pos: start, Text: text}
			expr, err := parseAt([]byte(text), start)
			if err == nil {
				res.Command, err = Translate(expr)
			}
			res.Err = err
			if err != nil && r.stopOnError {
				r.done = true
			}
			if !yield(res) {
				return
			}
		}
	}
}

// readText reads the text of the next command. An empty text means the source is exhausted.
//
// A command ends when its call chain is closed at nesting depth zero and the next
// character on the same line is not a '.'. A newline or ';' outside any brackets, or
// after an unbalanced closing bracket, also ends a command so a malformed line doesn't
// swallow the lines following it.
func (r *Reader) readText() (Position, string, error) {
	if err := r.skipSeparators(); err != nil {
		if errors.Is(err, io.EOF) {
			return r.pos, "", nil
		}
		return r.pos, "", err
	}

	var (
		start = r.pos
		text  strings.Builder
		// closing delimiters of the open brackets
		open    []rune
		broken  bool
		quote   rune
		escaped bool
	)
	for {
		c, err := r.read()
		if errors.Is(err, io.EOF) {
			return start, text.String(), nil
		}
		if err != nil {
			return start, "", err
		}

		if quote != 0 {
			text.WriteRune(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == quote:
				quote = 0
			}
			continue
		}

		switch c {
		case '"', '\'':
			quote = c
		case '(':
			open = append(open, ')')
		case '{':
			open = append(open, '}')
		case '[':
			open = append(open, ']')
		case ')', '}', ']':
			if len(open) == 0 || open[len(open)-1] != c {
				// unbalanced, the parser reports it once the line ends
				broken = true
				break
			}
			open = open[:len(open)-1]
		case '\n', ';':
			if len(open) == 0 || broken {
				if c == ';' {
					text.WriteRune(c)
				}
				return start, text.String(), nil
			}
		}
		text.WriteRune(c)

		if c == ')' && len(open) == 0 && !broken {
			more, err := r.continuesChain(&text)
			if err != nil {
				return start, "", err
			}
			if !more {
				return start, text.String(), nil
			}
		}
	}
}

// continuesChain is called after a call closed at depth zero. It moves blanks on the
// same line to text and reports if the next character continues the call chain.
// A terminating newline or ';' is consumed, any other character is left for the next command.
func (r *Reader) continuesChain(text *strings.Builder) (bool, error) {
	for {
		c, err := r.read()
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		switch c {
		case ' ', '\t', '\r':
			text.WriteRune(c)
			continue
		case '\n', ';':
			return false, nil
		case '.':
			return true, r.unread()
		}
		return false, r.unread()
	}
}

func (r *Reader) skipSeparators() error {
	for {
		c, err := r.read()
		if err != nil {
			return err
		}
		if c != ';' && !unicode.IsSpace(c) {
			return r.unread()
		}
	}
}

func (r *Reader) read() (rune, error) {
	c, size, err := r.src.ReadRune()
	if err != nil {
		return 0, err
	}
	r.prevPos = r.pos
	r.pos = r.pos.advance(c, size)
	return c, nil
}

func (r *Reader) unread() error {
	if err := r.src.UnreadRune(); err != nil {
		return err
	}
	r.pos = r.prevPos
	return nil
}
