package internalerr

import "errors"

// Sentinel errors for common cases
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrDuplicate        = errors.New("duplicate entry")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrInvalidConfig    = errors.New("invalid configuration")
)

// Knowledge base and session lifecycle errors
var (
	ErrNotFinalized     = errors.New("knowledge base not finalized")
	ErrAlreadyFinalized = errors.New("knowledge base already finalized")
	ErrUnknownCategory  = errors.New("unknown category")
	ErrNoSession        = errors.New("no such consultation session")
	ErrNotStarted       = errors.New("consultation not started")
	ErrQuestionMismatch = errors.New("answer does not match pending question")
)
