package dml

import (
	"errors"
	"fmt"

	"github.com/birdie-ai/mung/value"
)

// parser errors.
var (
	ErrSyntax = errors.New("syntax error")
)

// ParseError is returned when the tokens don't match the command grammar.
type ParseError struct {
	Pos      Position
	Expected string
	Found    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%v at %v: expected %s, found %s", ErrSyntax, e.Pos, e.Expected, e.Found)
}

func (e *ParseError) Unwrap() error {
	return ErrSyntax
}

// Parse parses a single command from the input. An optional trailing ';' is accepted,
// anything else after the command is an error.
func Parse(in []byte) (Expr, error) {
	return parseAt(in, startPos)
}

// parseAt parses in assuming it starts at the given position of a larger source,
// so errors report absolute positions.
func parseAt(in []byte, start Position) (Expr, error) {
	p := &parser{lex: newLexer(in, start)}
	if err := p.scan(); err != nil {
		return Expr{}, err
	}
	expr, err := p.parseCommand()
	if err != nil {
		return Expr{}, err
	}
	if p.tok.Kind == TokSemicolon {
		if err := p.scan(); err != nil {
			return Expr{}, err
		}
	}
	if p.tok.Kind != TokEOF {
		return Expr{}, p.errorf("end of command")
	}
	return expr, nil
}

type parser struct {
	lex *lexer
	tok Token
}

func (p *parser) scan() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *parser) errorf(expected string, args ...any) error {
	return &ParseError{
		Pos:      p.tok.Pos,
		Expected: fmt.Sprintf(expected, args...),
		Found:    p.tok.String(),
	}
}

// expect checks that the current token has the given kind and moves to the next one.
func (p *parser) expect(kind TokenKind) (Token, error) {
	tok := p.tok
	if tok.Kind != kind {
		return Token{}, p.errorf("%v", kind)
	}
	return tok, p.scan()
}

func (p *parser) parseCommand() (Expr, error) {
	expr := Expr{Pos: p.tok.Pos}
	if p.tok.Kind != TokIdent || p.tok.Text != "db" {
		return Expr{}, p.errorf(`"db"`)
	}
	if err := p.scan(); err != nil {
		return Expr{}, err
	}
	if _, err := p.expect(TokDot); err != nil {
		return Expr{}, err
	}
	coll, err := p.expect(TokIdent)
	if err != nil {
		return Expr{}, err
	}
	expr.Collection = coll.Text
	expr.CollectionPos = coll.Pos

	for {
		if _, err := p.expect(TokDot); err != nil {
			return Expr{}, err
		}
		call, err := p.parseCall()
		if err != nil {
			return Expr{}, err
		}
		expr.Calls = append(expr.Calls, call)
		if p.tok.Kind != TokDot {
			return expr, nil
		}
	}
}

func (p *parser) parseCall() (Call, error) {
	name, err := p.expect(TokIdent)
	if err != nil {
		return Call{}, err
	}
	call := Call{Name: name.Text, Pos: name.Pos}
	if _, err := p.expect(TokLParen); err != nil {
		return Call{}, err
	}
	if p.tok.Kind == TokRParen {
		return call, p.scan()
	}
	for {
		pos := p.tok.Pos
		v, err := p.parseValue()
		if err != nil {
			return Call{}, err
		}
		call.Args = append(call.Args, Arg{Pos: pos, Value: v})

		switch p.tok.Kind {
		case TokComma:
			if err := p.scan(); err != nil {
				return Call{}, err
			}
		case TokRParen:
			return call, p.scan()
		default:
			return Call{}, p.errorf("',' or ')'")
		}
	}
}

func (p *parser) parseValue() (value.Value, error) {
	switch p.tok.Kind {
	case TokLBrace:
		return p.parseObject()
	case TokLBracket:
		return p.parseArray()
	case TokString, TokNumber, TokBool, TokNull:
		v := p.tok.Value
		return v, p.scan()
	case TokOperatorKey:
		if p.tok.Value != nil {
			// quoted strings starting with '$' are still strings when used as values
			v := p.tok.Value
			return v, p.scan()
		}
	}
	return nil, p.errorf("value")
}

func (p *parser) parseObject() (value.Value, error) {
	if err := p.scan(); err != nil {
		return nil, err
	}
	var obj value.Object
	if p.tok.Kind == TokRBrace {
		return obj, p.scan()
	}
	for {
		key, err := p.parseKey()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokColon); err != nil {
			return nil, err
		}
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		obj.Set(key, v)

		switch p.tok.Kind {
		case TokComma:
			if err := p.scan(); err != nil {
				return nil, err
			}
		case TokRBrace:
			return obj, p.scan()
		default:
			return nil, p.errorf("',' or '}'")
		}
	}
}

func (p *parser) parseKey() (string, error) {
	switch p.tok.Kind {
	case TokIdent, TokOperatorKey, TokString, TokBool, TokNull:
		key := p.tok.Text
		return key, p.scan()
	}
	return "", p.errorf("object key")
}

func (p *parser) parseArray() (value.Value, error) {
	if err := p.scan(); err != nil {
		return nil, err
	}
	arr := value.Array{}
	if p.tok.Kind == TokRBracket {
		return arr, p.scan()
	}
	for {
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		arr = append(arr, v)

		switch p.tok.Kind {
		case TokComma:
			if err := p.scan(); err != nil {
				return nil, err
			}
		case TokRBracket:
			return arr, p.scan()
		default:
			return nil, p.errorf("',' or ']'")
		}
	}
}
