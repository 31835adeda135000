package apierr

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/tidwall/gjson"
)

// Classify maps a transport outcome to the taxonomy. It is total: any
// combination of inputs, including nil response with nil error, yields a
// deterministic result. A non-nil return means the call failed; responses
// with a status below 400 classify as nil and must be passed through
// untouched.
func Classify(resp *http.Response, body []byte, err error) *Error {
	if err != nil {
		// Already classified errors pass through unchanged.
		var e *Error
		if errors.As(err, &e) {
			return e
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return Wrap(err, Timeout, "")
		}
		var netErr net.Error
		if errors.As(err, &netErr) {
			if netErr.Timeout() {
				return Wrap(err, Timeout, "")
			}
			return Wrap(err, Network, "")
		}
		return Wrap(err, Unknown, err.Error())
	}

	if resp == nil {
		return New(Unknown, "no response received")
	}
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}

	msg := serverMessage(body)
	e := New(kindForStatus(resp.StatusCode), msg)
	e.StatusCode = resp.StatusCode
	return e
}

func kindForStatus(status int) Kind {
	switch status {
	case http.StatusUnauthorized:
		return Unauthorized
	case http.StatusForbidden:
		return Forbidden
	case http.StatusNotFound:
		return NotFound
	case http.StatusUnprocessableEntity:
		return Validation
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return ServerError
	default:
		return Unknown
	}
}

// serverMessage pulls a display message out of whatever error body the
// backend produced. The API is not consistent about the field name, hence
// the fallback chain.
func serverMessage(body []byte) string {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return ""
	}
	for _, path := range []string{"message", "error.message", "error"} {
		if v := gjson.GetBytes(body, path); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return ""
}
