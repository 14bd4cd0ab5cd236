package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound          = errors.New("entity not found")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrValidation        = errors.New("validation failed")
	ErrPayloadTooLarge   = errors.New("payload too large")
	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrStoreUnavailable  = errors.New("state store unavailable")
	ErrQueueUnavailable  = errors.New("task queue unavailable")
	ErrInvalidTransition = errors.New("invalid job status transition")
	ErrJobCancelled      = errors.New("job cancelled")
	ErrTimeout           = errors.New("collaborator timeout")
	ErrNoProvider        = errors.New("no llm provider available")

	// ErrPermanent marks failures that must not be retried.
	ErrPermanent = errors.New("permanent failure")
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() []error {
	return []error{e.err, ErrPermanent}
}

// Permanent tags err so that errors.Is(err, ErrPermanent) reports true while
// keeping the original chain intact.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPermanent) {
		return err
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err must fail the job without retrying.
// Validation and rate-limit failures are always permanent.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrInvalidArgument)
}
