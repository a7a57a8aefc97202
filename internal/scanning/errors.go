package scanning

import (
	"errors"
	"fmt"
)

// Kind classifies why an extraction failed
type Kind string

const (
	// KindInvalidCredential means no credential was supplied; no network call was made.
	KindInvalidCredential Kind = "invalid_credential"

	// KindInvalidImage means the input could not be decoded as a supported image.
	KindInvalidImage Kind = "invalid_image"

	// KindTransport means the inference call did not complete: network failure,
	// non-success status, or timeout.
	KindTransport Kind = "transport"

	// KindMalformedResponse means the call completed but the text was not the
	// expected JSON document.
	KindMalformedResponse Kind = "malformed_response"

	// KindCanceled means the caller canceled before the item was processed.
	KindCanceled Kind = "canceled"
)

// ErrEmptyCredential is wrapped by KindInvalidCredential errors
var ErrEmptyCredential = errors.New("credential is required")

// ExtractionError is the only error type returned by a Scanner
type ExtractionError struct {
	Kind     Kind
	Provider string
	Err      error
}

// Error implements the error interface
func (e *ExtractionError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying error
func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// NewError creates an ExtractionError
func NewError(kind Kind, provider string, err error) *ExtractionError {
	return &ExtractionError{Kind: kind, Provider: provider, Err: err}
}

// KindOf returns the Kind of the first ExtractionError in err's chain, or "" if there is none
func KindOf(err error) Kind {
	var extractionErr *ExtractionError
	if errors.As(err, &extractionErr) {
		return extractionErr.Kind
	}
	return ""
}
