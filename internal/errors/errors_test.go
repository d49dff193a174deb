package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapHTTPStatus(t *testing.T) {
	t.Run("401 is unauthorized", func(t *testing.T) {
		e := MapHTTPStatus("GetMembers", http.StatusUnauthorized, nil)
		assert.Equal(t, KindUnauthorized, e.Kind)
		assert.Equal(t, 401, e.Status)
	})

	t.Run("403 surfaces body as message", func(t *testing.T) {
		e := MapHTTPStatus("DeleteMember", http.StatusForbidden, []byte("only owners can remove members"))
		assert.Equal(t, KindForbidden, e.Kind)
		assert.Equal(t, "only owners can remove members", e.Message)
	})

	t.Run("403 json message", func(t *testing.T) {
		e := MapHTTPStatus("DeleteMember", http.StatusForbidden, []byte(`{"error":{"message":"nope"}}`))
		assert.Equal(t, "nope", e.Message)
	})

	t.Run("500 hides body", func(t *testing.T) {
		e := MapHTTPStatus("GetSurvey", http.StatusInternalServerError, []byte("stack trace at line 42"))
		assert.Equal(t, KindServer, e.Kind)
		assert.NotContains(t, e.Message, "stack trace")
		assert.Equal(t, []byte("stack trace at line 42"), e.Body)
	})

	t.Run("other status is http", func(t *testing.T) {
		e := MapHTTPStatus("GetSurvey", http.StatusNotFound, []byte(`{"message":"missing"}`))
		assert.Equal(t, KindHTTP, e.Kind)
		assert.Equal(t, 404, e.Status)
		assert.Equal(t, "missing", e.Message)
	})

	t.Run("empty body falls back", func(t *testing.T) {
		e := MapHTTPStatus("GetSurvey", http.StatusBadGateway, nil)
		assert.Equal(t, "HTTP 502 error", e.Message)
	})
}

func TestMapTransportCancelReasons(t *testing.T) {
	base := fmt.Errorf("Get \"x\": %w", context.Canceled)

	e := MapTransport("GetMembers", base, ErrSuperseded)
	assert.Equal(t, KindCanceled, e.Kind)
	assert.Equal(t, CancelSuperseded, e.Cancel)

	e = MapTransport("GetMembers", base, ErrAborted)
	assert.Equal(t, CancelAborted, e.Cancel)

	e = MapTransport("GetMembers", base, context.Canceled)
	assert.Equal(t, CancelAborted, e.Cancel)
	assert.False(t, e.UserVisible())
}

func TestMapTransportTimeoutAndNetwork(t *testing.T) {
	e := MapTransport("GetMembers", context.DeadlineExceeded, context.DeadlineExceeded)
	assert.Equal(t, KindTimeout, e.Kind)

	ue := &url.Error{Op: "Get", URL: "http://x", Err: stderrors.New("dial tcp: lookup x: no such host")}
	e = MapTransport("GetMembers", ue, nil)
	assert.Equal(t, KindNetwork, e.Kind)
	assert.Contains(t, e.Message, "check your connection")
	assert.True(t, e.UserVisible())
	require.ErrorIs(t, e, ue)
}

func TestKindHelpers(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", Canceled("x", CancelSuperseded, nil))
	assert.True(t, IsCanceled(err))
	assert.Equal(t, CancelSuperseded, CancelReasonOf(err))
	assert.Equal(t, Kind(""), KindOf(stderrors.New("plain")))
	assert.True(t, Is(MapHTTPStatus("x", 403, nil), KindForbidden))
}

func TestRequestErrorString(t *testing.T) {
	assert.Equal(t, "GetMembers forbidden (403): nope", (&RequestError{Kind: KindForbidden, Status: 403, Endpoint: "GetMembers", Message: "nope"}).Error())
	assert.Contains(t, Canceled("GetMembers", CancelAborted, nil).Error(), "(aborted)")
}

func TestMapTransportCustomCause(t *testing.T) {
	cause := stderrors.New("surface closed")
	e := MapTransport("GetMembers", nil, cause)
	require.NotNil(t, e)
	assert.Equal(t, KindCanceled, e.Kind)
	assert.Equal(t, CancelAborted, e.Cancel)

	assert.Nil(t, MapTransport("GetMembers", nil, nil))
}
