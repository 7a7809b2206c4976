package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind labels a failed generation attempt.
type Kind string

const (
	KindRateLimit         Kind = "rate_limit"
	KindQuotaExceeded     Kind = "quota_exceeded"
	KindInvalidCredential Kind = "invalid_credential"
	KindPermissionDenied  Kind = "permission_denied"
	KindModelNotFound     Kind = "model_not_found"
	KindNetwork           Kind = "network"
	KindTimeout           Kind = "timeout"
	KindContentFiltered   Kind = "content_filtered"
	KindMalformedResponse Kind = "malformed_response"
	KindUnknown           Kind = "unknown"
)

// ErrExhausted is returned when no usable credential exists.
var ErrExhausted = stderrors.New("no usable API credential available")

// ClassifiedError is the terminal failure of a generation call.
type ClassifiedError struct {
	Kind     Kind
	Message  string
	Attempts int
	Err      error
}

func (e *ClassifiedError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("%s after %d attempt(s): %s", e.Kind, e.Attempts, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// Wrap builds a ClassifiedError from err, classifying its text.
func Wrap(err error, attempts int) *ClassifiedError {
	if err == nil {
		return nil
	}
	var ce *ClassifiedError
	if stderrors.As(err, &ce) {
		return ce
	}
	return &ClassifiedError{
		Kind:     Classify(err.Error()),
		Message:  err.Error(),
		Attempts: attempts,
		Err:      err,
	}
}

// KindOf returns the Kind carried by err, classifying plain errors by text.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ce *ClassifiedError
	if stderrors.As(err, &ce) {
		return ce.Kind
	}
	return Classify(err.Error())
}

// UserMessage returns a short human readable explanation for k.
func UserMessage(k Kind) string {
	switch k {
	case KindRateLimit:
		return "Rate limit reached. Please wait a moment and try again."
	case KindQuotaExceeded:
		return "API quota exhausted for this key."
	case KindInvalidCredential:
		return "Invalid API key. Please check your key in settings."
	case KindPermissionDenied:
		return "The API key does not have permission for this request."
	case KindModelNotFound:
		return "The configured model was not found."
	case KindNetwork:
		return "Network error. Please check your connection."
	case KindTimeout:
		return "Request timed out. Please try again."
	case KindContentFiltered:
		return "Content was blocked by safety filters."
	case KindMalformedResponse:
		return "Failed to parse the API response."
	default:
		return "Unexpected error."
	}
}
