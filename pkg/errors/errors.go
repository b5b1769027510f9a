// Package errors re-exports github.com/cockroachdb/errors and declares the
// failure taxonomy shared by the pipeline, the scheduler and the API layer.
//
// Stage failures are classified with Mark so that errors.Is matches the
// category while the message still carries the underlying cause:
//
//	if err := fetch(); err != nil {
//	    return errors.Mark(errors.Wrap(err, "download source"), errors.ErrFetchFailed)
//	}
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	WithHint     = crdb.WithHint
	WithDetail   = crdb.WithDetail
	Mark         = crdb.Mark
)

var (
	Is           = crdb.Is
	IsAny        = crdb.IsAny
	As           = crdb.As
	Unwrap       = crdb.Unwrap
	UnwrapAll    = crdb.UnwrapAll
	GetAllHints  = crdb.GetAllHints
	FlattenHints = crdb.FlattenHints
)

var (
	// ErrFetchFailed covers network errors, timeouts, oversized payloads and missing sources.
	ErrFetchFailed = New("fetch failed")
	// ErrTimeout is a fetch that exceeded its deadline.
	ErrTimeout = New("operation timed out")
	// ErrTooLarge is a payload above the configured size bound.
	ErrTooLarge = New("payload too large")

	ErrExtractionFailed = New("extraction failed")
	ErrEmbeddingFailed  = New("embedding failed")
	ErrStorageFailed    = New("storage failed")

	// ErrNotFound indicates a missing Document, Version, Execution or blob.
	ErrNotFound = New("not found")

	// ErrSchedulingInvalid is a schedule string that is neither an alias nor a 5-field cron expression.
	ErrSchedulingInvalid = New("invalid schedule")

	// ErrInvalidRequest indicates the request was malformed or invalid
	ErrInvalidRequest = New("invalid request")
)

// IsNotFound checks if an error is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsInvalid reports whether err should surface as a client error.
func IsInvalid(err error) bool {
	return err != nil && IsAny(err, ErrInvalidRequest, ErrSchedulingInvalid)
}

// NotFoundf returns an ErrNotFound-marked error with a formatted message.
func NotFoundf(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrNotFound)
}

// Invalidf returns an ErrInvalidRequest-marked error with a formatted message.
func Invalidf(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrInvalidRequest)
}

// Classify marks err with kind unless it is nil or already carries that mark.
func Classify(err error, kind error) error {
	if err == nil || Is(err, kind) {
		return err
	}
	return Mark(err, kind)
}
