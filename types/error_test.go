package types

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorStatusDefaults(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrInvalidRequest, http.StatusUnprocessableEntity},
		{ErrUnauthorized, http.StatusUnauthorized},
		{ErrForbidden, http.StatusForbidden},
		{ErrNotFound, http.StatusNotFound},
		{ErrInvalidProvider, http.StatusNotFound},
		{ErrRateLimited, http.StatusTooManyRequests},
		{ErrTimeout, http.StatusRequestTimeout},
		{ErrUpstreamError, http.StatusBadGateway},
		{ErrUnavailable, http.StatusServiceUnavailable},
		{ErrHookDenied, StatusHookDenied},
		{ErrInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, NewError(tt.code, "x").Status())
		})
	}
}

func TestErrorStatusExplicitWins(t *testing.T) {
	e := NewError(ErrInvalidRequest, "x").WithHTTPStatus(http.StatusBadRequest)
	assert.Equal(t, http.StatusBadRequest, e.Status())
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	e := NewError(ErrInternal, "wrapped").WithCause(cause)
	assert.ErrorIs(t, e, cause)
	assert.Contains(t, e.Error(), "boom")
}

func TestErrorEnvelope(t *testing.T) {
	e := NewError(ErrRateLimited, "too many requests").
		WithProvider("openai").
		WithParam("model")
	e.Details = &ErrorDetails{
		OriginalError:  "rate limit exceeded",
		Classification: "rate",
	}

	env := e.Envelope()
	require.NotNil(t, env.ErrorDetails)
	assert.Equal(t, "too many requests", env.Error.Message)
	assert.Equal(t, string(ErrRateLimited), env.Error.Code)
	assert.Equal(t, "model", env.Error.Param)
	assert.Equal(t, "rate", env.ErrorDetails.Classification)
}

func TestIsRetryableAndCode(t *testing.T) {
	e := NewError(ErrUpstreamError, "bad gateway").WithRetryable(true)
	assert.True(t, IsRetryable(e))
	assert.Equal(t, ErrUpstreamError, GetErrorCode(e))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.Equal(t, ErrorCode(""), GetErrorCode(errors.New("plain")))
}
