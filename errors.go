package authsync

import (
	"context"
	"errors"
	"net"
	"net/url"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeTransportFailure = "TRANSPORT_FAILURE"
	TextCodeUnauthorized     = "UNAUTHORIZED"
	TextCodeRequestRejected  = "REQUEST_REJECTED"
	TextCodeValidationFailed = "VALIDATION_FAILED"
	TextCodeCancelled        = "OPERATION_CANCELLED"
)

const (
	// MessageGenericFailure is shown when the backend gave no message.
	MessageGenericFailure = "Something went wrong. Please try again."
	// MessageLogoutFailure is shown when logout fails without a backend message.
	MessageLogoutFailure = "Unable to log out right now."
	// MessageMissingAvatar is shown when a partner registers without a profile image.
	MessageMissingAvatar = "Please upload a profile image before submitting."
)

// ErrTransport covers unreachable network, timeouts and broken responses.
var ErrTransport = goerrors.New("unable to reach the server", goerrors.CategoryOperation).
	WithTextCode(TextCodeTransportFailure)

// ErrUnauthorized is returned for 401/403 responses.
var ErrUnauthorized = goerrors.New("the credentials provided are invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeUnauthorized).
	WithCode(goerrors.CodeUnauthorized)

// ErrRejected is returned when the backend refused the request for any other reason.
var ErrRejected = goerrors.New("the request was rejected", goerrors.CategoryBadInput).
	WithTextCode(TextCodeRequestRejected).
	WithCode(goerrors.CodeBadRequest)

// ErrValidation is returned before any request is sent.
var ErrValidation = goerrors.New("validation failed", goerrors.CategoryValidation).
	WithTextCode(TextCodeValidationFailed).
	WithCode(goerrors.CodeBadRequest)

// ErrCancelled marks superseded or aborted operations.
var ErrCancelled = goerrors.New("operation cancelled", goerrors.CategoryOperation).
	WithTextCode(TextCodeCancelled)

// FailureKind is the classification every gateway error maps to.
type FailureKind string

const (
	FailureNone         FailureKind = ""
	FailureTransport    FailureKind = "transport"
	FailureUnauthorized FailureKind = "unauthorized"
	FailureRejected     FailureKind = "rejected"
	FailureValidation   FailureKind = "validation"
	FailureCancelled    FailureKind = "cancelled"
)

// newFailure clones base so per call metadata never leaks into the sentinel.
func newFailure(base *goerrors.Error, message string, source error, meta map[string]any) *goerrors.Error {
	clone := base.Clone()
	if clone == nil {
		clone = base
	}
	if message != "" {
		clone.Message = message
	}
	if source != nil {
		clone.Source = source
	}
	if len(meta) > 0 {
		clone.WithMetadata(meta)
	}
	return clone
}

// Classify maps err onto the failure taxonomy. Errors that did not originate
// in this package are classified by inspecting context and network errors.
func Classify(err error) FailureKind {
	if err == nil {
		return FailureNone
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		switch richErr.TextCode {
		case TextCodeTransportFailure:
			return FailureTransport
		case TextCodeUnauthorized:
			return FailureUnauthorized
		case TextCodeRequestRejected:
			return FailureRejected
		case TextCodeValidationFailed:
			return FailureValidation
		case TextCodeCancelled:
			return FailureCancelled
		}
	}

	if errors.Is(err, context.Canceled) {
		return FailureCancelled
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTransport
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return FailureTransport
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return FailureTransport
	}

	return FailureRejected
}

// IsCancelled reports whether err means the operation was aborted or superseded
func IsCancelled(err error) bool {
	return Classify(err) == FailureCancelled
}

// IsUnauthorized reports whether err is an authentication failure
func IsUnauthorized(err error) bool {
	return Classify(err) == FailureUnauthorized
}

// IsValidation reports whether err was produced by client side validation
func IsValidation(err error) bool {
	return Classify(err) == FailureValidation
}

// IsTransport reports whether err is a network level failure
func IsTransport(err error) bool {
	return Classify(err) == FailureTransport
}

// UserMessage returns the human readable message carried by err, or fallback.
// Cancelled operations have no message.
func UserMessage(err error, fallback string) string {
	if err == nil || IsCancelled(err) {
		return ""
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		if msg, ok := richErr.Metadata["message"].(string); ok && msg != "" {
			return msg
		}
		if richErr.TextCode == TextCodeValidationFailed && richErr.Message != "" {
			return richErr.Message
		}
	}

	if fallback == "" {
		return MessageGenericFailure
	}
	return fallback
}
