package dml

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/birdie-ai/mung/value"
)

// ErrLex indicates a malformed token.
var ErrLex = errors.New("lexical error")

// TokenKind is the kind of a lexical token.
type TokenKind int

// Token kinds.
const (
	TokEOF TokenKind = iota
	TokIdent
	TokOperatorKey
	TokDot
	TokLParen
	TokRParen
	TokLBrace
	TokRBrace
	TokLBracket
	TokRBracket
	TokComma
	TokColon
	TokSemicolon
	TokString
	TokNumber
	TokBool
	TokNull
)

var tokenNames = map[TokenKind]string{
	TokEOF:         "end of input",
	TokIdent:       "identifier",
	TokOperatorKey: "operator key",
	TokDot:         "'.'",
	TokLParen:      "'('",
	TokRParen:      "')'",
	TokLBrace:      "'{'",
	TokRBrace:      "'}'",
	TokLBracket:    "'['",
	TokRBracket:    "']'",
	TokComma:       "','",
	TokColon:       "':'",
	TokSemicolon:   "';'",
	TokString:      "string",
	TokNumber:      "number",
	TokBool:        "boolean",
	TokNull:        "null",
}

func (k TokenKind) String() string {
	if s, ok := tokenNames[k]; ok {
		return s
	}
	return fmt.Sprintf("token(%d)", int(k))
}

type (
	// Position is a location on the command source.
	// Line and Column are 1-based, Column counts runes.
	Position struct {
		Offset int
		Line   int
		Column int
	}

	// Token is a lexical token. Text holds the identifier or the decoded string,
	// Value holds the decoded literal for strings, numbers, booleans and null.
	Token struct {
		Kind  TokenKind
		Text  string
		Value value.Value
		Pos   Position
	}

	// LexError is returned when the input has a malformed token.
	LexError struct {
		Pos  Position
		Char rune
		Msg  string
	}
)

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

func (p Position) advance(r rune, size int) Position {
	p.Offset += size
	if r == '\n' {
		p.Line++
		p.Column = 1
		return p
	}
	p.Column++
	return p
}

func (t Token) String() string {
	switch t.Kind {
	case TokIdent, TokOperatorKey:
		return fmt.Sprintf("%v %q", t.Kind, t.Text)
	case TokString:
		return fmt.Sprintf("string %q", t.Text)
	case TokNumber, TokBool:
		return fmt.Sprintf("%v %v", t.Kind, t.Value)
	}
	return t.Kind.String()
}

func (e *LexError) Error() string {
	if e.Char == utf8.RuneError {
		return fmt.Sprintf("%v at %v: %s", ErrLex, e.Pos, e.Msg)
	}
	return fmt.Sprintf("%v at %v: %s %q", ErrLex, e.Pos, e.Msg, e.Char)
}

func (e *LexError) Unwrap() error {
	return ErrLex
}

// Lex tokenizes the whole input, the last token is always [TokEOF].
func Lex(in []byte) ([]Token, error) {
	l := newLexer(in, startPos)
	var toks []Token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.Kind == TokEOF {
			return toks, nil
		}
	}
}

var startPos = Position{Line: 1, Column: 1}

type lexer struct {
	in  []byte
	pos Position
	// offset of pos.Offset zero on in
	base int
}

func newLexer(in []byte, start Position) *lexer {
	return &lexer{in: in, pos: start, base: start.Offset}
}

func (l *lexer) peek() (rune, int) {
	off := l.pos.Offset - l.base
	if off >= len(l.in) {
		return 0, 0
	}
	return utf8.DecodeRune(l.in[off:])
}

func (l *lexer) advance() rune {
	r, size := l.peek()
	if size > 0 {
		l.pos = l.pos.advance(r, size)
	}
	return r
}

func (l *lexer) next() (Token, error) {
	l.skipblank()
	pos := l.pos
	r, size := l.peek()
	if size == 0 {
		return Token{Kind: TokEOF, Pos: pos}, nil
	}
	if r == utf8.RuneError && size == 1 {
		return Token{}, &LexError{Pos: pos, Char: r, Msg: "invalid UTF-8 encoding"}
	}

	if kind, ok := punctuation[r]; ok {
		l.advance()
		return Token{Kind: kind, Text: string(r), Pos: pos}, nil
	}
	switch {
	case r == '"' || r == '\'':
		return l.lexString()
	case isIdentStart(r):
		return l.lexIdent(), nil
	case r == '-' || r == '+' || isDigit(r):
		return l.lexNumber()
	}
	return Token{}, &LexError{Pos: pos, Char: r, Msg: "unexpected character"}
}

var punctuation = map[rune]TokenKind{
	'.': TokDot,
	'(': TokLParen,
	')': TokRParen,
	'{': TokLBrace,
	'}': TokRBrace,
	'[': TokLBracket,
	']': TokRBracket,
	',': TokComma,
	':': TokColon,
	';': TokSemicolon,
}

func (l *lexer) skipblank() {
	for {
		r, size := l.peek()
		if size == 0 || !unicode.IsSpace(r) {
			return
		}
		l.advance()
	}
}

func (l *lexer) lexIdent() Token {
	pos := l.pos
	var b strings.Builder
	for {
		r, size := l.peek()
		if size == 0 || !isIdentPart(r) {
			break
		}
		b.WriteRune(l.advance())
	}
	ident := b.String()
	switch ident {
	case "true", "false":
		return Token{Kind: TokBool, Text: ident, Value: value.Bool(ident == "true"), Pos: pos}
	case "null":
		return Token{Kind: TokNull, Text: ident, Value: value.Null{}, Pos: pos}
	}
	if strings.HasPrefix(ident, "$") {
		return Token{Kind: TokOperatorKey, Text: ident, Pos: pos}
	}
	return Token{Kind: TokIdent, Text: ident, Pos: pos}
}

func (l *lexer) lexNumber() (Token, error) {
	pos := l.pos
	var b strings.Builder
	if r, _ := l.peek(); r == '-' || r == '+' {
		b.WriteRune(l.advance())
	}
	if !l.digits(&b) {
		r, _ := l.peek()
		return Token{}, &LexError{Pos: l.pos, Char: r, Msg: "expected digit"}
	}
	if r, _ := l.peek(); r == '.' {
		b.WriteRune(l.advance())
		if !l.digits(&b) {
			r, _ := l.peek()
			return Token{}, &LexError{Pos: l.pos, Char: r, Msg: "expected digit after decimal point"}
		}
	}
	if r, _ := l.peek(); r == 'e' || r == 'E' {
		b.WriteRune(l.advance())
		if r, _ := l.peek(); r == '-' || r == '+' {
			b.WriteRune(l.advance())
		}
		if !l.digits(&b) {
			r, _ := l.peek()
			return Token{}, &LexError{Pos: l.pos, Char: r, Msg: "expected digit on exponent"}
		}
	}
	text := strings.TrimPrefix(b.String(), "+")
	v, err := value.ParseNumber(text)
	if err != nil {
		return Token{}, &LexError{Pos: pos, Char: utf8.RuneError, Msg: fmt.Sprintf("invalid number %q: %v", text, err)}
	}
	return Token{Kind: TokNumber, Text: text, Value: v, Pos: pos}, nil
}

func (l *lexer) digits(b *strings.Builder) bool {
	n := 0
	for {
		r, size := l.peek()
		if size == 0 || !isDigit(r) {
			return n > 0
		}
		b.WriteRune(l.advance())
		n++
	}
}

func (l *lexer) lexString() (Token, error) {
	pos := l.pos
	quote := l.advance()
	var b strings.Builder
	for {
		r, size := l.peek()
		if size == 0 {
			return Token{}, &LexError{Pos: pos, Char: quote, Msg: "unterminated string"}
		}
		escPos := l.pos
		l.advance()
		if r == quote {
			break
		}
		if r != '\\' {
			b.WriteRune(r)
			continue
		}
		esc, size := l.peek()
		if size == 0 {
			return Token{}, &LexError{Pos: pos, Char: quote, Msg: "unterminated string"}
		}
		l.advance()
		switch esc {
		case '\\', '\'', '"', '/', '$':
			b.WriteRune(esc)
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case 'u':
			r, err := l.lexUnicodeEscape(escPos)
			if err != nil {
				return Token{}, err
			}
			if utf16.IsSurrogate(r) {
				r, err = l.lexSurrogatePair(escPos, r)
				if err != nil {
					return Token{}, err
				}
			}
			b.WriteRune(r)
		default:
			return Token{}, &LexError{Pos: escPos, Char: esc, Msg: "invalid escape sequence"}
		}
	}
	s := b.String()
	kind := TokString
	if strings.HasPrefix(s, "$") {
		kind = TokOperatorKey
	}
	return Token{Kind: kind, Text: s, Value: value.String(s), Pos: pos}, nil
}

func (l *lexer) lexUnicodeEscape(escPos Position) (rune, error) {
	var hex [4]rune
	for i := range hex {
		r, size := l.peek()
		if size == 0 || !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return 0, &LexError{Pos: escPos, Char: 'u', Msg: "invalid unicode escape"}
		}
		hex[i] = l.advance()
	}
	n, err := strconv.ParseUint(string(hex[:]), 16, 32)
	if err != nil {
		return 0, &LexError{Pos: escPos, Char: 'u', Msg: "invalid unicode escape"}
	}
	return rune(n), nil
}

// lexSurrogatePair completes a high surrogate with the low surrogate escape that must
// follow it, as JSON encoders write characters outside the basic multilingual plane.
func (l *lexer) lexSurrogatePair(escPos Position, high rune) (rune, error) {
	unpaired := &LexError{Pos: escPos, Char: 'u', Msg: "unpaired surrogate in unicode escape"}
	if high >= 0xDC00 {
		return 0, unpaired
	}
	if r, _ := l.peek(); r != '\\' {
		return 0, unpaired
	}
	l.advance()
	if r, _ := l.peek(); r != 'u' {
		return 0, unpaired
	}
	l.advance()
	low, err := l.lexUnicodeEscape(escPos)
	if err != nil {
		return 0, err
	}
	r := utf16.DecodeRune(high, low)
	if r == unicode.ReplacementChar {
		return 0, unpaired
	}
	return r, nil
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isIdentStart(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r)
}

// isIdent reports if s is a valid unquoted identifier.
func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if i == 0 && !isIdentStart(r) {
			return false
		}
		if !isIdentPart(r) {
			return false
		}
	}
	return s != "true" && s != "false" && s != "null"
}
