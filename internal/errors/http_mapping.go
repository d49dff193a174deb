package errors

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// ProtocolHTMLMessage explains the usual reasons for an HTML body on an API route.
const ProtocolHTMLMessage = "received an HTML page where JSON was expected; " +
	"the API route is probably wrong, blocked by CORS, or answered by a proxy error page"

// ProtocolJSONMessage explains a body that looked like JSON but did not parse.
const ProtocolJSONMessage = "response body looked like JSON but could not be parsed"

// MapHTTPStatus maps a non-success status and body to a RequestError.
// Server errors never carry the body into Message; it stays on Body for logging.
func MapHTTPStatus(endpoint string, statusCode int, body []byte) *RequestError {
	e := &RequestError{Status: statusCode, Endpoint: endpoint, Body: body}
	switch statusCode {
	case http.StatusUnauthorized:
		e.Kind = KindUnauthorized
		e.Message = "session expired or invalid, please sign in again"
	case http.StatusForbidden:
		e.Kind = KindForbidden
		e.Message = firstNonEmpty(extractMessage(body), "Permission denied")
	case http.StatusInternalServerError:
		e.Kind = KindServer
		e.Message = "the server encountered an error, please try again later"
	default:
		e.Kind = KindHTTP
		e.Message = firstNonEmpty(extractMessage(body), fmt.Sprintf("HTTP %d error", statusCode))
	}
	return e
}

// extractMessage reads {"error":{"message"}}, {"message"} or {"error":"..."}
// and falls back to the trimmed raw body.
func extractMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if gjson.ValidBytes(body) {
		for _, path := range []string{"error.message", "message", "error"} {
			if v := gjson.GetBytes(body, path); v.Type == gjson.String && v.Str != "" {
				return v.Str
			}
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		return msg[:200] + "..."
	}
	return msg
}

func firstNonEmpty(strs ...string) string {
	for _, s := range strs {
		if s != "" {
			return s
		}
	}
	return ""
}
