package session

import (
	"errors"
	"fmt"
)

// Precondition failures. They are detected before any network call.
var (
	ErrNoFileSelected      = errors.New("no file selected")
	ErrNoDatasetSelected   = errors.New("no dataset selected")
	ErrEmptyQuery          = errors.New("query is empty")
	ErrRealtimeUnavailable = errors.New("realtime channel not configured")
)

// Remote failure kinds, one per operation.
var (
	ErrUploadFailed         = errors.New("upload failed")
	ErrSummaryFetchFailed   = errors.New("summary fetch failed")
	ErrInsightRequestFailed = errors.New("insight request failed")
)

// RemoteError pairs a failure kind with the transport or status error that
// caused it. errors.Is matches the kind; errors.As reaches the cause.
type RemoteError struct {
	Kind  error
	Cause error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%v: %v", e.Kind, e.Cause)
}

// Unwrap exposes both the kind and the cause.
func (e *RemoteError) Unwrap() []error {
	return []error{e.Kind, e.Cause}
}

func remote(kind, cause error) error {
	return &RemoteError{Kind: kind, Cause: cause}
}

// IsPrecondition reports whether err is a local precondition failure.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrNoFileSelected) ||
		errors.Is(err, ErrNoDatasetSelected) ||
		errors.Is(err, ErrEmptyQuery) ||
		errors.Is(err, ErrRealtimeUnavailable)
}
