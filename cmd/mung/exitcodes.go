package main

import (
	"context"

	"github.com/birdie-ai/mung/dml"
	"github.com/birdie-ai/mung/executor"
	"github.com/birdie-ai/mung/xerrors"
)

// Exit codes
const (
	ExitSuccess     = 0   // Success
	ExitError       = 1   // Usage, config, connection or read error
	ExitSyntax      = 2   // Lexical or syntax error on a command
	ExitTranslation = 3   // Valid syntax that is not a valid command
	ExitExecution   = 4   // The store failed executing a command
	ExitOutput      = 5   // Writing results failed
	ExitInterrupted = 130 // Interrupted by a signal
)

// exitCode maps the error of a run to its exit code.
func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	// checked in order, an output failure wins over the class of the command that caused it
	switch xerrors.Classify(err,
		executor.ErrOutput,
		context.Canceled,
		dml.ErrRead,
		dml.ErrLex,
		dml.ErrSyntax,
		dml.ErrTranslate,
		executor.ErrExecution,
	) {
	case executor.ErrOutput:
		return ExitOutput
	case context.Canceled:
		return ExitInterrupted
	case dml.ErrLex, dml.ErrSyntax:
		return ExitSyntax
	case dml.ErrTranslate:
		return ExitTranslation
	case executor.ErrExecution:
		return ExitExecution
	}
	return ExitError
}
