package database

import "errors"

var (
	// ErrInvalidInput reports a malformed resolution request. Nothing is
	// applied when it is returned.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEntityNotWritable reports that a field mutation was rejected,
	// typically because the entity was deleted concurrently. The fact is
	// neither logged nor flagged; the caller may retry with a fresh read.
	ErrEntityNotWritable = errors.New("entity not writable")

	// ErrAlreadyResolved reports a resolution attempt on a conflict flag
	// that already reached a terminal state.
	ErrAlreadyResolved = errors.New("conflict already resolved")

	// ErrConflictNotFound reports an unknown conflict flag id.
	ErrConflictNotFound = errors.New("conflict flag not found")
)
