package domain

import "errors"

var (
	ErrEmptyURL            = errors.New("empty url")
	ErrMarketExists        = errors.New("market already exists")
	ErrInvalidRatingAmount = errors.New("rating amount below minimum")
	ErrInsufficientPayment = errors.New("insufficient payment")
	ErrZeroAddress         = errors.New("zero address")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrPaused              = errors.New("contract paused")
	ErrNotFound            = errors.New("not found")
	ErrRefreshInProgress   = errors.New("refresh already in progress")
	ErrLockHeld            = errors.New("lock already held")
	ErrSubmissionPending   = errors.New("submission already pending")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrInvalidSequence     = errors.New("event sequence out of order")
)

// ErrorKind classifies a failure for callers that need to decide whether to
// surface, retry, or degrade. Validation, authorization, and conflict errors
// are caller mistakes and must never be retried automatically; availability
// errors are transient and may be retried later; transport errors are
// infrastructure failures recovered locally where isolation is possible.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindAuthorization ErrorKind = "authorization"
	KindConflict      ErrorKind = "conflict"
	KindAvailability  ErrorKind = "availability"
	KindTransport     ErrorKind = "transport"
)

// Kind maps an error to its ErrorKind. Unknown errors are treated as
// transport failures, the conservative default for anything that crossed a
// process or network boundary.
func Kind(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrEmptyURL),
		errors.Is(err, ErrInvalidRatingAmount),
		errors.Is(err, ErrInsufficientPayment),
		errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrZeroAddress):
		return KindValidation
	case errors.Is(err, ErrUnauthorized):
		return KindAuthorization
	case errors.Is(err, ErrMarketExists):
		return KindConflict
	case errors.Is(err, ErrPaused), errors.Is(err, ErrRefreshInProgress),
		errors.Is(err, ErrSubmissionPending), errors.Is(err, ErrLockHeld):
		return KindAvailability
	default:
		return KindTransport
	}
}
