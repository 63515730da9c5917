package processor

import "errors"

var (
	// ErrInvalidConfig indicates the configuration cannot drive a finalize pass; nothing is written
	ErrInvalidConfig = errors.New("invalid html-mila configuration")
	// ErrTargetTimeout indicates a target did not finish within the configured file timeout
	ErrTargetTimeout = errors.New("target timed out")
)
