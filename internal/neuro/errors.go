package neuro

import (
	"errors"
	"fmt"

	"neurolab/internal/automata"
)

var ErrFileFormat = errors.New("unrecognized network file format")

// FormatError reports a stream that is not a readable network file.
type FormatError struct {
	Cookie string
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	msg := "network file format: " + e.Reason
	if e.Cookie != "" {
		msg += fmt.Sprintf(" (cookie %q)", e.Cookie)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FormatError) Is(target error) bool {
	return target == ErrFileFormat
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// IOError reports a network file that could not be opened, read or written.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s network file %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// DanglingReferenceError reports an edge in a stored topology that points at
// no stored cell.
type DanglingReferenceError = automata.DanglingReferenceError
