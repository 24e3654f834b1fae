package estimate

import "errors"

// Kind is the closed set of failure variants the pipeline can surface. The
// HTTP layer maps kinds, never message text, to status codes.
type Kind string

const (
	KindInvalidRequest       Kind = "invalid_request"
	KindUnauthorized         Kind = "unauthorized"
	KindRateLimited          Kind = "rate_limited"
	KindTemporarilyDisabled  Kind = "temporarily_disabled"
	KindServerNotConfigured  Kind = "server_not_configured"
	KindUpstreamUnavailable  Kind = "upstream_unavailable"
	KindUpstreamTimeout      Kind = "upstream_timeout"
	KindModelInvalidResponse Kind = "model_invalid_response"
)

type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Cause.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func NewError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func WrapError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// KindOf extracts the kind from err, or empty when err is untyped.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
