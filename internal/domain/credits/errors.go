package credits

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers that map failures to responses.
type Kind string

const (
	// KindNotFound means a referenced user or code does not exist.
	KindNotFound Kind = "NOT_FOUND"
	// KindInvalidInput means the request was rejected before any write.
	KindInvalidInput Kind = "INVALID_INPUT"
	// KindConflict means current state forbids the operation (code already
	// used or expired, insufficient credits).
	KindConflict Kind = "CONFLICT"
	// KindTransient means the store was unavailable; retried and surfaced.
	KindTransient Kind = "TRANSIENT"
	// KindInconsistency means a compensating write itself failed and store
	// state diverges from the ledger invariant. Needs manual reconciliation.
	KindInconsistency Kind = "INCONSISTENCY"
)

// Error is a coded error value. Engines return these instead of raising;
// every failure crossing an engine boundary is one of these or wraps one.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

// NewError creates a coded error.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError creates a coded error with an underlying cause.
func WrapError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches two coded errors by kind and message, so the sentinel values
// below work with errors.Is even when wrapped with a cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

// Sentinel errors for the fixed failure modes of the engines.
var (
	ErrUserNotFound            = NewError(KindNotFound, "user not found")
	ErrCodeNotFound            = NewError(KindNotFound, "redemption code not found")
	ErrInsufficientCredits     = NewError(KindConflict, "insufficient credits")
	ErrCodeAlreadyUsed         = NewError(KindConflict, "redemption code already used")
	ErrCodeExpired             = NewError(KindConflict, "redemption code expired")
	ErrCodeGenerationExhausted = NewError(KindTransient, "could not generate a unique code, retry")
)

// KindOf extracts the kind of a coded error, or KindTransient for anything
// else that escaped through the gateway.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransient
}
