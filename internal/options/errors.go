package options

import "errors"

var (
	// ErrInvalidOption indicates a user supplied option was rejected and the default kept
	ErrInvalidOption = errors.New("invalid option")
	// ErrUnknownOption indicates a user supplied option is not recognised and was ignored
	ErrUnknownOption = errors.New("unknown option")
)
