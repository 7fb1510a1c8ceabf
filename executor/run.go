package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/birdie-ai/mung/dml"
	"github.com/birdie-ai/mung/slog"
	"github.com/birdie-ai/mung/store"
	"github.com/birdie-ai/mung/value"
	"github.com/birdie-ai/mung/xerrors"
)

// ErrOutput indicates a failure writing results. It is always fatal to a run.
var ErrOutput = errors.New("output error")

type (
	// Encoder writes a single result value.
	Encoder interface {
		Encode(value.Value) error
	}

	// Auditor is notified of the outcome of every successful write command.
	// Auditing must not fail the command, so failures are handled by the Auditor.
	Auditor interface {
		AuditWrite(ctx context.Context, cmd dml.Command, outcome value.Value)
	}

	// RunOption configures [Run].
	RunOption func(*runner)

	// Summary counts what happened on a run.
	Summary struct {
		Commands int
		Failed   int
		Values   int64
	}

	// CommandError is the failure of a single command of a run.
	CommandError struct {
		Index int
		Pos   dml.Position
		Err   error
	}

	runner struct {
		store     store.Store
		enc       Encoder
		keepGoing bool
		auditor   Auditor
	}
)

func (e *CommandError) Error() string {
	return fmt.Sprintf("command #%d at %v: %v", e.Index, e.Pos, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// KeepGoing makes the run continue after a failing command, instead of stopping.
// Failures reading the commands or writing the output always stop the run.
// The reader must also be created with [dml.StopOnError] false to continue past
// malformed commands.
func KeepGoing(keep bool) RunOption {
	return func(r *runner) {
		r.keepGoing = keep
	}
}

// WithAuditor sets the auditor of write commands.
func WithAuditor(a Auditor) RunOption {
	return func(r *runner) {
		r.auditor = a
	}
}

// Run reads commands one at a time, executes each of them and writes its results
// with the encoder before reading the next command.
//
// The returned error is a [*CommandError]: the first failure or, when keeping going,
// the last one.
func Run(ctx context.Context, r *dml.Reader, st store.Store, enc Encoder, opts ...RunOption) (Summary, error) {
	rn := &runner{store: st, enc: enc}
	for _, opt := range opts {
		opt(rn)
	}

	var (
		sum     Summary
		lastErr error
	)
	for res := range r.All() {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.Commands++
		err := rn.run(ctx, res, &sum)
		if err == nil {
			continue
		}
		sum.Failed++
		cmdErr := &CommandError{Index: res.Index, Pos: res.Pos, Err: err}
		if !rn.keepGoing || errors.Is(err, ErrOutput) || errors.Is(err, dml.ErrRead) || ctx.Err() != nil {
			return sum, cmdErr
		}
		slog.FromCtx(ctx).Warn("command failed", "command", res.Index, "error", err)
		lastErr = cmdErr
	}
	return sum, lastErr
}

func (r *runner) run(ctx context.Context, res dml.Result, sum *Summary) (err error) {
	if res.Err != nil {
		if !errors.Is(res.Err, dml.ErrRead) {
			sampleCommand("invalid", res.Err)
		}
		return res.Err
	}
	cmd := res.Command
	defer func() { sampleCommand(cmd.Verb(), err) }()

	log := slog.FromCtx(ctx).With("command", res.Index, "verb", cmd.Verb(), "collection", cmd.CollectionName())
	log.Debug("executing command", "pos", res.Pos.String())

	result, err := Execute(ctx, r.store, cmd)
	if err != nil {
		return err
	}
	var (
		outcome value.Value
		n       int64
	)
	for v, err := range result.Docs {
		if err != nil {
			return err
		}
		if err := r.enc.Encode(v); err != nil {
			return xerrors.Tag(fmt.Errorf("writing result: %w", err), ErrOutput)
		}
		n++
		sum.Values++
		outcome = v
	}
	if r.auditor != nil && dml.IsWrite(cmd) {
		r.auditor.AuditWrite(ctx, cmd, outcome)
	}
	log.Debug("command done", "values", n)
	return nil
}
