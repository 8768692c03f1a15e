package domain

import (
	"errors"
)

// ErrorKind classifies failures so the transport can map them to responses.
type ErrorKind string

const (
	KindProvisioning ErrorKind = "provisioning"
	KindMetadata     ErrorKind = "metadata"
	KindExtraction   ErrorKind = "extraction"
	KindValidation   ErrorKind = "validation"
	KindRetrieval    ErrorKind = "retrieval"
	KindCancelled    ErrorKind = "cancelled"
)

// Error is a classified failure. Message is safe to show to callers; Cause is
// for logs only.
type Error struct {
	Kind    ErrorKind
	Message string
	Field   string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Public returns the caller-facing message without the wrapped cause.
func (e *Error) Public() string {
	return e.Message
}

func NewProvisioningError(cause error) *Error {
	return &Error{Kind: KindProvisioning, Message: "failed to download yt-dlp", Cause: cause}
}

func NewMetadataError(message string, cause error) *Error {
	if message == "" {
		message = "failed to fetch metadata"
	}
	return &Error{Kind: KindMetadata, Message: message, Cause: cause}
}

func NewExtractionError(message string, cause error) *Error {
	if message == "" {
		message = "clip extraction failed"
	}
	return &Error{Kind: KindExtraction, Message: message, Cause: cause}
}

func NewValidationError(message, field string) *Error {
	return &Error{Kind: KindValidation, Message: message, Field: field}
}

func NewRetrievalError(ref string) *Error {
	return &Error{Kind: KindRetrieval, Message: "file not found", Field: ref}
}

func NewCancelledError(cause error) *Error {
	return &Error{Kind: KindCancelled, Message: "clip extraction cancelled", Cause: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// PublicMessage returns text safe to send to a client.
func PublicMessage(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Public()
	}
	return "internal error"
}
