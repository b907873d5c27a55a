package platform

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a publish failure once, at the adapter boundary, from
// structured platform responses. Callers branch on Kind, never on message
// text.
type Kind string

const (
	KindAuthExpired       Kind = "auth_expired"
	KindRateLimited       Kind = "rate_limited"
	KindPayloadRejected   Kind = "payload_rejected"
	KindProcessingFailed  Kind = "processing_failed"
	KindProcessingTimeout Kind = "processing_timeout"
	KindPartialFailure    Kind = "partial_failure"
	KindUnavailable       Kind = "platform_unavailable"
)

type Error struct {
	Kind     Kind
	Platform string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Platform, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Platform, e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, platform, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Platform: platform, Message: fmt.Sprintf(format, args...)}
}

// AsError extracts the typed error from an error chain, wrapping anything
// untyped as a platform-unavailable failure so every PublishResult carries a
// kind.
func AsError(platformName string, err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return &Error{Kind: KindUnavailable, Platform: platformName, Message: err.Error(), Err: err}
}

// classifyStatus maps an HTTP status to an error kind. Adapter-specific error
// codes refine this where the platform documents them.
func classifyStatus(platformName string, status int, body string) *Error {
	var kind Kind
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindAuthExpired
	case status == http.StatusTooManyRequests:
		kind = KindRateLimited
	case status == http.StatusRequestEntityTooLarge || status == http.StatusUnprocessableEntity || status == http.StatusBadRequest:
		kind = KindPayloadRejected
	default:
		kind = KindUnavailable
	}
	return newError(kind, platformName, "unexpected status code %d: %s", status, body)
}
