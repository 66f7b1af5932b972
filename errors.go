package apppool

import "fmt"

// AssertionError is panicked for lifecycle misuse and invariant violations
// (spec.md §7, error kinds 5 and 6): destroying a non-shut-down pool,
// mutating a shut-down pool, or the self-checker catching a bookkeeping bug.
// These are programmer errors, not runtime conditions a caller can recover
// from, so they panic rather than returning an error value.
type AssertionError struct {
	msg string
}

func (e *AssertionError) Error() string {
	return e.msg
}

func newAssertionError(format string, args ...any) *AssertionError {
	return &AssertionError{msg: fmt.Sprintf(format, args...)}
}
