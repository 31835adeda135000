package apierr_test

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/infotospay/benkinet-neo01-mobile-sub000/apierr"
)

// timeoutErr satisfies net.Error with Timeout() == true.
type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func responseWithStatus(status int) *http.Response {
	return &http.Response{StatusCode: status}
}

func TestClassifyStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   apierr.Kind
	}{
		{http.StatusUnauthorized, apierr.Unauthorized},
		{http.StatusForbidden, apierr.Forbidden},
		{http.StatusNotFound, apierr.NotFound},
		{http.StatusUnprocessableEntity, apierr.Validation},
		{http.StatusInternalServerError, apierr.ServerError},
		{http.StatusBadGateway, apierr.ServerError},
		{http.StatusServiceUnavailable, apierr.ServerError},
		{http.StatusGatewayTimeout, apierr.ServerError},
		{http.StatusTeapot, apierr.Unknown},
		{http.StatusBadRequest, apierr.Unknown},
	}

	for _, tc := range tests {
		e := apierr.Classify(responseWithStatus(tc.status), nil, nil)
		require.NotNil(t, e, "status %d", tc.status)
		require.Equal(t, tc.want, e.Kind, "status %d", tc.status)
		require.Equal(t, tc.status, e.StatusCode)
		require.NotEmpty(t, e.Message)
	}
}

func TestClassifySuccessIsNil(t *testing.T) {
	require.Nil(t, apierr.Classify(responseWithStatus(http.StatusOK), nil, nil))
	require.Nil(t, apierr.Classify(responseWithStatus(http.StatusCreated), nil, nil))
	require.Nil(t, apierr.Classify(responseWithStatus(http.StatusNoContent), nil, nil))
}

func TestClassifyConnectionFailure(t *testing.T) {
	connErr := &url.Error{Op: "Post", URL: "http://x", Err: errors.New("connection refused")}
	e := apierr.Classify(nil, nil, connErr)
	require.NotNil(t, e)
	require.Equal(t, apierr.Network, e.Kind)
	require.ErrorIs(t, e, connErr.Err)
}

func TestClassifyTimeout(t *testing.T) {
	e := apierr.Classify(nil, nil, context.DeadlineExceeded)
	require.Equal(t, apierr.Timeout, e.Kind)

	e = apierr.Classify(nil, nil, timeoutErr{})
	require.Equal(t, apierr.Timeout, e.Kind)
}

func TestClassifyServerMessageExtraction(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"top level message", `{"message":"wallet frozen"}`, "wallet frozen"},
		{"nested error message", `{"error":{"message":"limit reached"}}`, "limit reached"},
		{"string error field", `{"error":"upstream down"}`, "upstream down"},
		{"non-string message falls back", `{"message":42}`, ""},
		{"garbage body falls back", `not json at all`, ""},
		{"empty body falls back", ``, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := apierr.Classify(responseWithStatus(http.StatusUnprocessableEntity), []byte(tc.body), nil)
			require.NotNil(t, e)
			if tc.want != "" {
				require.Equal(t, tc.want, e.Message)
			} else {
				// Totality: no server message still yields a displayable one.
				require.NotEmpty(t, e.Message)
			}
		})
	}
}

func TestClassifyIsTotal(t *testing.T) {
	e := apierr.Classify(nil, nil, nil)
	require.NotNil(t, e)
	require.Equal(t, apierr.Unknown, e.Kind)

	e = apierr.Classify(nil, nil, errors.New("something odd"))
	require.Equal(t, apierr.Unknown, e.Kind)
	require.Equal(t, "something odd", e.Message)
}

func TestClassifyPreClassifiedPassthrough(t *testing.T) {
	original := apierr.New(apierr.Forbidden, "nope")
	e := apierr.Classify(nil, nil, original)
	require.Same(t, original, e)
}

func TestKindOf(t *testing.T) {
	err := apierr.New(apierr.NotFound, "missing")
	require.Equal(t, apierr.NotFound, apierr.KindOf(err))
	require.True(t, apierr.IsKind(err, apierr.NotFound))
	require.Equal(t, apierr.Unknown, apierr.KindOf(errors.New("plain")))
}
