package model

import (
	"errors"

	"github.com/m-mizutani/goerr/v2"
)

var (
	// ErrMalformedSourceData is permanent: the record is skipped and never retried.
	ErrMalformedSourceData = goerr.New("malformed source data")

	ErrEncryptionKeyUnavailable     = goerr.New("encryption key unavailable")
	ErrSummarizationUnavailable     = goerr.New("summarization unavailable")
	ErrEmbeddingServiceUnavailable  = goerr.New("embedding service unavailable")
	ErrCompletionServiceUnavailable = goerr.New("completion service unavailable")

	// ErrDecryptionFailure affects a single entry and never aborts a whole query.
	ErrDecryptionFailure = goerr.New("decryption failure")

	ErrInvalidPrivacyMode = goerr.New("invalid privacy mode")
	ErrDimensionMismatch  = goerr.New("vector dimension mismatch")
	ErrPayloadNotFound    = goerr.New("payload not found")
)

// IsRetryable reports whether err is a transient dependency failure that
// may succeed when the same operation is attempted again later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrEncryptionKeyUnavailable) ||
		errors.Is(err, ErrSummarizationUnavailable) ||
		errors.Is(err, ErrEmbeddingServiceUnavailable) ||
		errors.Is(err, ErrCompletionServiceUnavailable)
}

type causeError struct {
	kind  error
	cause error
}

func (e *causeError) Error() string {
	return e.kind.Error() + ": " + e.cause.Error()
}

func (e *causeError) Unwrap() []error {
	return []error{e.kind, e.cause}
}

// WithCause returns an error that matches both kind and the chain of cause
// with errors.Is and errors.As. A nil cause returns kind.
func WithCause(kind, cause error) error {
	if cause == nil {
		return kind
	}
	return &causeError{kind: kind, cause: cause}
}
