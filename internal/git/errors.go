package git

import "errors"

var (
	// ErrInvalidArg represent family of errors to report about bad argument used to make a call.
	ErrInvalidArg = errors.New("invalid argument")
	// ErrNotFound represents an error when an object or a reference could not be found.
	ErrNotFound = errors.New("not found")
)
