// Package errors defines the error taxonomy for backup invocations.
//
// Every failure that crosses the invocation boundary is classified with a
// Kind so callers can distinguish configuration problems (client-class,
// never retried, detected before any network call) from runtime failures
// in the listing, archiving, or upload stages (server-class).
package errors

import (
	"errors"
	"fmt"
)

// Kind identifies which stage of a backup invocation produced an error.
type Kind string

const (
	// KindConfig indicates missing or invalid configuration. Config errors
	// are detected before any network call is made.
	KindConfig Kind = "ConfigError"
	// KindListing indicates that enumerating the source bucket failed.
	KindListing Kind = "ListingError"
	// KindFetch indicates that reading a single source object failed.
	KindFetch Kind = "FetchError"
	// KindArchive indicates an encoder-level failure while building the archive.
	KindArchive Kind = "ArchiveError"
	// KindUpload indicates that writing the archive to the destination failed.
	KindUpload Kind = "UploadError"
	// KindPipeline is the generic wrapper for faults that do not map to a
	// specific stage.
	KindPipeline Kind = "PipelineError"
)

// Error is a backup failure with stage classification and optional context
// about the operation and object involved.
type Error struct {
	// Kind classifies the failing stage.
	Kind Kind
	// Op is the operation that failed (e.g. "list", "fetch", "upload").
	Op string
	// Key is the object key involved, if any.
	Key string
	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s: %s %s: %v", e.Kind, e.Op, e.Key, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error wrapping err.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf creates a classified error from a formatted message.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// WithKey adds object key context to the error.
func (e *Error) WithKey(key string) *Error {
	e.Key = key
	return e
}

// KindOf returns the Kind of err, or KindPipeline when err carries no
// classification. A nil err returns the empty Kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindPipeline
}

// IsConfig reports whether err is a configuration error. Config errors map
// to the client-class (4xx) status at the invocation boundary; everything
// else maps to the server-class (5xx) status.
func IsConfig(err error) bool {
	return KindOf(err) == KindConfig
}

// Classify wraps err with kind unless it already carries a classification.
// This keeps the innermost stage's Kind authoritative when errors travel
// through the pipe between stages.
func Classify(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		return err
	}
	return New(kind, op, err)
}
