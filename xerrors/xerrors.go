// Package xerrors extends Go's stdlib errors pkg.
package xerrors

import "errors"

// Tag tags the given error with the given error tag.
// This is very similar to wrapping with one crucial difference, the tag error message
// won't be present on the original err, but calling errors.Is(err, tag) will return true.
//
// This is useful to classify an error, like an output failure, without changing
// the message that is reported to the user.
//
// Calling [errors.As] to retrieve the error tag will also work.
// Calls to [errors.As] and [errors.Is] will be dispatched to the tag first
// and then fallback to the original error if they don't match the tag.
// A nil err is never tagged.
func Tag(err, tag error) error {
	if err == nil {
		return nil
	}
	return tagged{err, tag}
}

// Classify returns the first of the classes that err matches with [errors.Is], or nil
// when it matches none. Classes are checked in order, so more specific ones should come first.
func Classify(err error, classes ...error) error {
	for _, class := range classes {
		if errors.Is(err, class) {
			return class
		}
	}
	return nil
}

type tagged struct {
	err error
	tag error
}

func (t tagged) Is(target error) bool {
	if errors.Is(t.tag, target) {
		return true
	}
	return errors.Is(t.err, target)
}

func (t tagged) As(target any) bool {
	if errors.As(t.tag, target) {
		return true
	}
	return errors.As(t.err, target)
}

func (t tagged) Unwrap() error {
	return t.err
}

func (t tagged) Error() string {
	return t.err.Error()
}
