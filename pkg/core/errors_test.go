package core

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestNewResponseError(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantCode    string
		wantMessage string
	}{
		{
			name:        "service envelope",
			status:      http.StatusNotFound,
			body:        `{"error":{"code":"NOT_FOUND","message":"setting not found"}}`,
			wantCode:    ErrorCodeNotFound,
			wantMessage: "setting not found",
		},
		{
			name:        "non-json body",
			status:      http.StatusBadGateway,
			body:        "upstream exploded",
			wantCode:    "",
			wantMessage: "Bad Gateway",
		},
		{
			name:        "empty body",
			status:      http.StatusUnauthorized,
			body:        "",
			wantCode:    "",
			wantMessage: "Unauthorized",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewResponseError(fakeResponse(tt.status, tt.body))
			var respErr *ResponseError
			require.ErrorAs(t, err, &respErr)
			assert.Equal(t, tt.status, respErr.StatusCode)
			assert.Equal(t, tt.wantCode, respErr.ErrorCode)
			assert.Equal(t, tt.wantMessage, respErr.Message)
		})
	}
}

func TestErrorHelpers(t *testing.T) {
	notFound := NewResponseError(fakeResponse(http.StatusNotFound, `{"error":{"code":"NOT_FOUND","message":"gone"}}`))
	conflict := NewResponseError(fakeResponse(http.StatusConflict, `{"error":{"code":"READ_ONLY","message":"setting is read-only"}}`))
	precondition := NewResponseError(fakeResponse(http.StatusPreconditionFailed, `{"error":{"code":"PRECONDITION_FAILED","message":"etag mismatch"}}`))

	assert.True(t, IsNotFound(notFound))
	assert.False(t, IsNotFound(conflict))
	assert.True(t, IsConflict(conflict))
	assert.True(t, IsPreconditionFailed(precondition))

	assert.True(t, HasErrorCode(conflict, ErrorCodeReadOnly))
	assert.False(t, HasErrorCode(conflict, ErrorCodeNotFound))

	// Wrapped errors still match.
	wrapped := fmt.Errorf("get setting: %w", notFound)
	assert.True(t, IsNotFound(wrapped))

	assert.False(t, IsNotFound(fmt.Errorf("plain error")))
}
