package service

import "errors"

// Errors surfaced to callers of the attempt lifecycle. Handlers map them to
// HTTP status codes with errors.Is.
var (
	ErrExamNotFound    = errors.New("exam not found or inactive")
	ErrAttemptNotFound = errors.New("attempt not found")
	ErrResultNotFound  = errors.New("result not found")

	// ErrAttemptAlreadySubmitted is the conflict returned when an attempt has
	// already left IN_PROGRESS. Retrying yields the same answer.
	ErrAttemptAlreadySubmitted = errors.New("attempt already submitted")

	// ErrInvalidState signals a broken lifecycle invariant. It is logged at
	// error level wherever it is produced.
	ErrInvalidState = errors.New("attempt is in an invalid state")

	ErrInvalidAnswer = errors.New("answer sheet does not match exam")

	// ErrSweepInProgress is returned when another process holds the sweep lock.
	ErrSweepInProgress = errors.New("expiry sweep already running")

	ErrInvalidToken = errors.New("invalid token")
)
