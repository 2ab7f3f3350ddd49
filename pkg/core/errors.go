package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Service error codes carried in the error response envelope.
const (
	ErrorCodeBadRequest         = "BAD_REQUEST"
	ErrorCodeUnauthorized       = "UNAUTHORIZED"
	ErrorCodeForbidden          = "FORBIDDEN"
	ErrorCodeNotFound           = "NOT_FOUND"
	ErrorCodeConflict           = "CONFLICT"
	ErrorCodePreconditionFailed = "PRECONDITION_FAILED"
	ErrorCodeReadOnly           = "READ_ONLY"
	ErrorCodeThrottled          = "RATE_LIMITED"
	ErrorCodeInternal           = "INTERNAL_ERROR"
)

// ResponseError is returned when a service call completes with a
// non-success HTTP status. The service error code is parsed from the
// response envelope when present.
type ResponseError struct {
	StatusCode  int
	ErrorCode   string
	Message     string
	RawResponse *http.Response
}

func (e *ResponseError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("request failed with status %d (%s): %s", e.StatusCode, e.ErrorCode, e.Message)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
}

// errorEnvelope matches the service error body {"error":{"code","message"}}.
type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewResponseError builds a ResponseError from a failed response, consuming
// and closing the body.
func NewResponseError(resp *http.Response) error {
	respErr := &ResponseError{
		StatusCode:  resp.StatusCode,
		Message:     http.StatusText(resp.StatusCode),
		RawResponse: resp,
	}
	if resp.Body != nil {
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err == nil && len(body) > 0 {
			var envelope errorEnvelope
			if json.Unmarshal(body, &envelope) == nil && envelope.Error.Code != "" {
				respErr.ErrorCode = envelope.Error.Code
				respErr.Message = envelope.Error.Message
			}
		}
	}
	return respErr
}

// HasStatusCode reports whether err is a ResponseError with one of the given
// status codes.
func HasStatusCode(err error, statusCodes ...int) bool {
	var respErr *ResponseError
	if !errors.As(err, &respErr) {
		return false
	}
	for _, code := range statusCodes {
		if respErr.StatusCode == code {
			return true
		}
	}
	return false
}

// HasErrorCode reports whether err is a ResponseError carrying the given
// service error code.
func HasErrorCode(err error, code string) bool {
	var respErr *ResponseError
	return errors.As(err, &respErr) && respErr.ErrorCode == code
}

// IsNotFound reports whether err represents a 404 response.
func IsNotFound(err error) bool {
	return HasStatusCode(err, http.StatusNotFound)
}

// IsConflict reports whether err represents a 409 response.
func IsConflict(err error) bool {
	return HasStatusCode(err, http.StatusConflict)
}

// IsPreconditionFailed reports whether err represents a 412 response.
func IsPreconditionFailed(err error) bool {
	return HasStatusCode(err, http.StatusPreconditionFailed)
}

// DecodeJSON decodes a JSON response body into v and closes the body.
func DecodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(v)
}

// Drain discards and closes the response body so the connection can be
// reused.
func Drain(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
}
