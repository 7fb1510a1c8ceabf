package dml

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/birdie-ai/mung/value"
)

// encoder errors
var (
	ErrInvalidCommand = errors.New("invalid command")
	ErrNotIdent       = errors.New("not an identifier")
)

// Encode validates and writes the commands in their canonical text format, one per line.
// Parsing and translating the output yields commands equal to the given ones.
func Encode(w io.Writer, cmds ...Command) error {
	for _, cmd := range cmds {
		if err := validate(cmd); err != nil {
			return err
		}
		text, err := format(cmd)
		if err != nil {
			return err
		}
		if _, err := io.WriteString(w, text+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// Format returns the canonical text of a single command.
func Format(cmd Command) (string, error) {
	if err := validate(cmd); err != nil {
		return "", err
	}
	return format(cmd)
}

func validate(cmd Command) error {
	if cmd == nil {
		return fmt.Errorf("%w: nil", ErrInvalidCommand)
	}
	var errs []error
	coll := cmd.CollectionName()
	if !isIdent(coll) || strings.HasPrefix(coll, "$") {
		errs = append(errs, fmt.Errorf("invalid collection %q: %w", coll, ErrNotIdent))
	}
	switch c := cmd.(type) {
	case Distinct:
		if c.Field == "" {
			errs = append(errs, fmt.Errorf("%w: distinct: empty field", ErrInvalidCommand))
		}
	case Insert:
		if len(c.Docs) == 0 {
			errs = append(errs, fmt.Errorf("%w: insert: no documents", ErrInvalidCommand))
		}
	}
	return errors.Join(errs...)
}

func format(cmd Command) (string, error) {
	var args []value.Value
	var mods []string
	switch c := cmd.(type) {
	case Find:
		args = append(args, c.Filter)
		if c.Projection != nil {
			args = append(args, *c.Projection)
		}
		if c.Sort != nil {
			s, err := value.Marshal(*c.Sort)
			if err != nil {
				return "", err
			}
			mods = append(mods, fmt.Sprintf("%s(%s)", ModSort, s))
		}
		for _, mod := range []struct {
			name string
			val  *uint64
		}{{ModLimit, c.Limit}, {ModSkip, c.Skip}, {ModBatchSize, c.BatchSize}} {
			if mod.val != nil {
				mods = append(mods, mod.name+"("+strconv.FormatUint(*mod.val, 10)+")")
			}
		}
	case Count:
		args = append(args, c.Filter)
	case Distinct:
		args = append(args, value.String(c.Field), c.Filter)
	case Insert:
		docs := make(value.Array, len(c.Docs))
		for i, d := range c.Docs {
			docs[i] = d
		}
		args = append(args, docs)
	case Update:
		args = append(args, c.Filter, c.Update)
		var opts value.Object
		if c.Multi {
			opts.Set("multi", value.Bool(true))
		}
		if c.Upsert {
			opts.Set("upsert", value.Bool(true))
		}
		if opts.Len() > 0 {
			args = append(args, opts)
		}
	case Remove:
		args = append(args, c.Filter)
	default:
		return "", fmt.Errorf("%w: %T", ErrInvalidCommand, cmd)
	}

	var b strings.Builder
	b.WriteString("db.")
	b.WriteString(cmd.CollectionName())
	b.WriteByte('.')
	b.WriteString(cmd.Verb())
	b.WriteByte('(')
	for i, arg := range args {
		if i > 0 {
			b.WriteByte(',')
		}
		data, err := value.Marshal(arg)
		if err != nil {
			return "", err
		}
		b.Write(data)
	}
	b.WriteByte(')')
	for _, mod := range mods {
		b.WriteByte('.')
		b.WriteString(mod)
	}
	return b.String(), nil
}
