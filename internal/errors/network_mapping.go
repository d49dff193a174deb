package errors

import (
	"context"
	stderrors "errors"
	"net"
	"net/url"
	"strings"
)

// MapTransport maps a transport failure to a RequestError. cause is the
// context cause of the request (context.Cause), which decides between the
// two cancellation reasons.
func MapTransport(endpoint string, err error, cause error) *RequestError {
	switch {
	case stderrors.Is(cause, ErrSuperseded):
		return Canceled(endpoint, CancelSuperseded, err)
	case stderrors.Is(cause, ErrAborted), stderrors.Is(cause, context.Canceled):
		return Canceled(endpoint, CancelAborted, err)
	case stderrors.Is(cause, context.DeadlineExceeded):
		return &RequestError{Kind: KindTimeout, Endpoint: endpoint, Message: "the request timed out, please try again", Err: err}
	}
	if err == nil {
		if cause != nil {
			return Canceled(endpoint, CancelAborted, cause)
		}
		return nil
	}
	if stderrors.Is(err, context.Canceled) {
		return Canceled(endpoint, CancelAborted, err)
	}
	if isTimeout(err) {
		return &RequestError{Kind: KindTimeout, Endpoint: endpoint, Message: "the request timed out, please try again", Err: err}
	}
	return &RequestError{Kind: KindNetwork, Endpoint: endpoint, Message: networkMessage(err), Err: err}
}

func isTimeout(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ue *url.Error
	if stderrors.As(err, &ue) && ue.Timeout() {
		return true
	}
	var ne net.Error
	if stderrors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "timeout")
}

func networkMessage(err error) string {
	s := err.Error()
	switch {
	case strings.Contains(s, "no such host"):
		return "cannot reach the server, check your connection"
	case strings.Contains(s, "connection refused"):
		return "the server refused the connection, try again shortly"
	case strings.Contains(s, "connection reset"), strings.Contains(s, "EOF"):
		return "the connection was interrupted, try again"
	case strings.Contains(s, "certificate"), strings.Contains(s, "tls"):
		return "secure connection failed, check your network or proxy"
	default:
		return "network error, check your connection and try again"
	}
}
