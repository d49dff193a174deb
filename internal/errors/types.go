package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies a failed dispatcher call.
type Kind string

const (
	KindCanceled     Kind = "canceled"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindServer       Kind = "server"
	KindProtocol     Kind = "protocol"
	KindHTTP         Kind = "http"
	KindNetwork      Kind = "network"
	KindTimeout      Kind = "timeout"
)

// CancelReason distinguishes why a call was canceled.
type CancelReason string

const (
	// CancelSuperseded: a newer call reused the same cancellation key.
	CancelSuperseded CancelReason = "superseded"
	// CancelAborted: the caller asked for it (explicit cancel, surface
	// teardown, or the parent context ended).
	CancelAborted CancelReason = "aborted"
)

// Causes attached to a request context when it is canceled through the registry.
var (
	ErrSuperseded = stderrors.New("request superseded by a newer call with the same key")
	ErrAborted    = stderrors.New("request aborted by caller")
)

// RequestError represents a standardized dispatcher failure.
type RequestError struct {
	Kind     Kind
	Status   int
	Message  string
	Endpoint string
	Body     []byte
	Cancel   CancelReason
	Err      error
}

func (e *RequestError) Error() string {
	switch {
	case e.Status > 0:
		return fmt.Sprintf("%s %s (%d): %s", e.Endpoint, e.Kind, e.Status, e.Message)
	case e.Kind == KindCanceled && e.Cancel != "":
		return fmt.Sprintf("%s %s (%s): %s", e.Endpoint, e.Kind, e.Cancel, e.Message)
	default:
		return fmt.Sprintf("%s %s: %s", e.Endpoint, e.Kind, e.Message)
	}
}

func (e *RequestError) Unwrap() error { return e.Err }

// UserVisible reports whether a UI layer should surface this error. Canceled
// calls are never shown.
func (e *RequestError) UserVisible() bool {
	return e.Kind != KindCanceled
}

// New builds a RequestError without a status.
func New(kind Kind, endpoint, message string) *RequestError {
	return &RequestError{Kind: kind, Endpoint: endpoint, Message: message}
}

// Canceled builds a canceled error for the given reason.
func Canceled(endpoint string, reason CancelReason, cause error) *RequestError {
	msg := "request canceled"
	if reason == CancelSuperseded {
		msg = "request superseded by a newer call"
	}
	return &RequestError{Kind: KindCanceled, Endpoint: endpoint, Message: msg, Cancel: reason, Err: cause}
}

// KindOf returns the kind of err, or "" when err is not a RequestError.
func KindOf(err error) Kind {
	var re *RequestError
	if stderrors.As(err, &re) {
		return re.Kind
	}
	return ""
}

// Is reports whether err is a RequestError of kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsCanceled reports whether err is a canceled RequestError, regardless of reason.
func IsCanceled(err error) bool {
	return Is(err, KindCanceled)
}

// CancelReasonOf returns the cancel reason when err is a canceled RequestError.
func CancelReasonOf(err error) CancelReason {
	var re *RequestError
	if stderrors.As(err, &re) && re.Kind == KindCanceled {
		return re.Cancel
	}
	return ""
}
