package dml

import (
	"errors"
	"fmt"

	"github.com/birdie-ai/mung/value"
)

// translation errors. All of them also match [ErrTranslate].
var (
	ErrTranslate         = errors.New("translation error")
	ErrUnknownVerb       = errors.New("unknown verb")
	ErrUnknownModifier   = errors.New("unknown modifier")
	ErrArity             = errors.New("wrong number of arguments")
	ErrArgType           = errors.New("invalid argument")
	ErrModifierPlacement = errors.New("modifier is only valid after find")
	ErrDuplicateModifier = errors.New("duplicate modifier")
)

// TranslationError is returned when a syntactically valid command is not a valid [Command].
// Arg is the 1-based argument index, zero when the error is not about a specific argument.
type TranslationError struct {
	Verb   string
	Arg    int
	Pos    Position
	Reason string
	Err    error
}

func (e *TranslationError) Error() string {
	msg := fmt.Sprintf("%v at %v: %s", ErrTranslate, e.Pos, e.Verb)
	if e.Arg > 0 {
		msg += fmt.Sprintf(": argument %d", e.Arg)
	}
	msg += ": " + e.Err.Error()
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *TranslationError) Unwrap() []error {
	return []error{ErrTranslate, e.Err}
}

// Translate validates the expression and lowers it to a [Command].
func Translate(expr Expr) (Command, error) {
	if len(expr.Calls) == 0 {
		return nil, &TranslationError{Pos: expr.Pos, Err: ErrArity, Reason: "missing verb"}
	}
	verb := expr.Verb()
	var (
		cmd Command
		err error
	)
	switch verb.Name {
	case VerbFind:
		var find Find
		find, err = translateFind(expr.Collection, verb)
		if err == nil {
			find, err = applyModifiers(find, expr.Modifiers())
		}
		cmd = find
	case VerbCount:
		cmd, err = translateCount(expr.Collection, verb)
	case VerbDistinct:
		cmd, err = translateDistinct(expr.Collection, verb)
	case VerbInsert:
		cmd, err = translateInsert(expr.Collection, verb)
	case VerbUpdate:
		cmd, err = translateUpdate(expr.Collection, verb)
	case VerbRemove:
		cmd, err = translateRemove(expr.Collection, verb)
	default:
		return nil, &TranslationError{Verb: verb.Name, Pos: verb.Pos, Err: ErrUnknownVerb}
	}
	if err != nil {
		return nil, err
	}
	if _, ok := cmd.(Find); !ok && len(expr.Modifiers()) > 0 {
		mod := expr.Modifiers()[0]
		if !isModifier(mod.Name) {
			return nil, &TranslationError{Verb: mod.Name, Pos: mod.Pos, Err: ErrUnknownModifier}
		}
		return nil, &TranslationError{
			Verb:   mod.Name,
			Pos:    mod.Pos,
			Err:    ErrModifierPlacement,
			Reason: fmt.Sprintf("not allowed after %s", verb.Name),
		}
	}
	return cmd, nil
}

func translateFind(coll string, call Call) (Find, error) {
	if err := arity(call, 0, 2); err != nil {
		return Find{}, err
	}
	filter, err := optionalObject(call, 0)
	if err != nil {
		return Find{}, err
	}
	find := Find{Collection: coll, Filter: filter}
	if len(call.Args) == 2 {
		proj, err := object(call, 1)
		if err != nil {
			return Find{}, err
		}
		find.Projection = &proj
	}
	return find, nil
}

func applyModifiers(find Find, mods []Call) (Find, error) {
	seen := map[string]bool{}
	for _, mod := range mods {
		if seen[mod.Name] {
			return Find{}, &TranslationError{Verb: mod.Name, Pos: mod.Pos, Err: ErrDuplicateModifier}
		}
		seen[mod.Name] = true

		var err error
		switch mod.Name {
		case ModSort:
			if err = arity(mod, 1, 1); err == nil {
				var sort value.Object
				sort, err = object(mod, 0)
				find.Sort = &sort
			}
		case ModLimit:
			find.Limit, err = count(mod)
		case ModSkip:
			find.Skip, err = count(mod)
		case ModBatchSize:
			find.BatchSize, err = count(mod)
		default:
			return Find{}, &TranslationError{Verb: mod.Name, Pos: mod.Pos, Err: ErrUnknownModifier}
		}
		if err != nil {
			return Find{}, err
		}
	}
	return find, nil
}

func translateCount(coll string, call Call) (Count, error) {
	if err := arity(call, 0, 1); err != nil {
		return Count{}, err
	}
	filter, err := optionalObject(call, 0)
	if err != nil {
		return Count{}, err
	}
	return Count{Collection: coll, Filter: filter}, nil
}

func translateDistinct(coll string, call Call) (Distinct, error) {
	if err := arity(call, 1, 2); err != nil {
		return Distinct{}, err
	}
	field, ok := call.Args[0].Value.(value.String)
	if !ok {
		return Distinct{}, argTypeErr(call, 0, "want string got %v", call.Args[0].Value.Kind())
	}
	if field == "" {
		return Distinct{}, argTypeErr(call, 0, "field name must not be empty")
	}
	filter, err := optionalObject(call, 1)
	if err != nil {
		return Distinct{}, err
	}
	return Distinct{Collection: coll, Field: string(field), Filter: filter}, nil
}

func translateInsert(coll string, call Call) (Insert, error) {
	if err := arity(call, 1, 1); err != nil {
		return Insert{}, err
	}
	switch v := call.Args[0].Value.(type) {
	case value.Object:
		return Insert{Collection: coll, Docs: []value.Object{v}}, nil
	case value.Array:
		if len(v) == 0 {
			return Insert{}, argTypeErr(call, 0, "want at least one document")
		}
		docs := make([]value.Object, len(v))
		for i, elem := range v {
			doc, ok := elem.(value.Object)
			if !ok {
				return Insert{}, argTypeErr(call, 0, "element %d: want object got %v", i, elem.Kind())
			}
			docs[i] = doc
		}
		return Insert{Collection: coll, Docs: docs}, nil
	default:
		return Insert{}, argTypeErr(call, 0, "want object or array of objects got %v", v.Kind())
	}
}

func translateUpdate(coll string, call Call) (Update, error) {
	if err := arity(call, 2, 3); err != nil {
		return Update{}, err
	}
	filter, err := object(call, 0)
	if err != nil {
		return Update{}, err
	}
	update, err := object(call, 1)
	if err != nil {
		return Update{}, err
	}
	cmd := Update{Collection: coll, Filter: filter, Update: update}
	if len(call.Args) < 3 {
		return cmd, nil
	}
	opts, err := object(call, 2)
	if err != nil {
		return Update{}, err
	}
	// unknown options are ignored
	for key, v := range opts.All() {
		var dst *bool
		switch key {
		case "multi":
			dst = &cmd.Multi
		case "upsert":
			dst = &cmd.Upsert
		default:
			continue
		}
		b, ok := v.(value.Bool)
		if !ok {
			return Update{}, argTypeErr(call, 2, "option %q: want bool got %v", key, v.Kind())
		}
		*dst = bool(b)
	}
	return cmd, nil
}

func translateRemove(coll string, call Call) (Remove, error) {
	if err := arity(call, 0, 1); err != nil {
		return Remove{}, err
	}
	filter, err := optionalObject(call, 0)
	if err != nil {
		return Remove{}, err
	}
	return Remove{Collection: coll, Filter: filter}, nil
}

func count(call Call) (*uint64, error) {
	if err := arity(call, 1, 1); err != nil {
		return nil, err
	}
	n, ok := call.Args[0].Value.(value.Int)
	if !ok {
		return nil, argTypeErr(call, 0, "want integer got %v", call.Args[0].Value.Kind())
	}
	if n < 0 {
		return nil, argTypeErr(call, 0, "want non-negative integer got %d", n)
	}
	u := uint64(n)
	return &u, nil
}

func arity(call Call, minArgs, maxArgs int) error {
	n := len(call.Args)
	if n >= minArgs && n <= maxArgs {
		return nil
	}
	var want string
	switch {
	case minArgs == maxArgs:
		want = fmt.Sprintf("want %d", minArgs)
	default:
		want = fmt.Sprintf("want %d to %d", minArgs, maxArgs)
	}
	return &TranslationError{
		Verb:   call.Name,
		Pos:    call.Pos,
		Err:    ErrArity,
		Reason: fmt.Sprintf("%s got %d", want, n),
	}
}

func object(call Call, i int) (value.Object, error) {
	obj, ok := call.Args[i].Value.(value.Object)
	if !ok {
		return value.Object{}, argTypeErr(call, i, "want object got %v", call.Args[i].Value.Kind())
	}
	return obj, nil
}

func optionalObject(call Call, i int) (value.Object, error) {
	if i >= len(call.Args) {
		return value.Object{}, nil
	}
	return object(call, i)
}

func argTypeErr(call Call, i int, reason string, args ...any) error {
	return &TranslationError{
		Verb:   call.Name,
		Arg:    i + 1,
		Pos:    call.Args[i].Pos,
		Err:    ErrArgType,
		Reason: fmt.Sprintf(reason, args...),
	}
}

func isModifier(name string) bool {
	switch name {
	case ModSort, ModLimit, ModSkip, ModBatchSize:
		return true
	}
	return false
}
