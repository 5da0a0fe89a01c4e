package chromosome

import "errors"

var (
	// ErrFormat reports malformed text input.
	ErrFormat = errors.New("invalid format")
	// ErrBounds reports an index, position or field value outside its valid range.
	ErrBounds = errors.New("out of bounds")
	// ErrSizeMismatch reports disagreeing chromosome pair or source counts.
	ErrSizeMismatch = errors.New("size mismatch")
	// ErrCorruptData reports implausible binary input.
	ErrCorruptData = errors.New("corrupt data")
)
