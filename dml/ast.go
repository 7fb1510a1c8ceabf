package dml

import "github.com/birdie-ai/mung/value"

type (
	// Expr is the syntax tree of a single command: db.<collection>.<call>(.<call>)*
	// The first call is the verb, the following ones are modifiers.
	// Arguments are kept uninterpreted, validation happens on [Translate].
	Expr struct {
		Pos           Position
		Collection    string
		CollectionPos Position
		Calls         []Call
	}

	// Call is a single method call on the command chain.
	Call struct {
		Name string
		Pos  Position
		Args []Arg
	}

	// Arg is a call argument.
	Arg struct {
		Pos   Position
		Value value.Value
	}
)

// Verb returns the first call of the chain.
func (e Expr) Verb() Call {
	return e.Calls[0]
}

// Modifiers returns the calls chained after the verb.
func (e Expr) Modifiers() []Call {
	return e.Calls[1:]
}
