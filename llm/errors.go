package llm

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrorCode classifies an upstream failure so the retry loop and the
// pipeline's error reporting can treat it consistently across backends.
type ErrorCode string

const (
	ErrInvalidRequest     ErrorCode = "invalid_request"
	ErrAuthentication     ErrorCode = "authentication"
	ErrPermissionDenied   ErrorCode = "permission_denied"
	ErrUnprocessable      ErrorCode = "unprocessable_entity"
	ErrRateLimited        ErrorCode = "rate_limited"
	ErrUpstreamError      ErrorCode = "upstream_error"
	ErrEmptyStream        ErrorCode = "empty_stream"
)

// Error is the single error shape surfaced by the Client. Retryable
// reports whether the retry loop should keep trying this request.
type Error struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Provider   string
	Retryable  bool

	// exhausted is set by the Client's retry loop when MaxAttempts is
	// reached, distinguishing "gave up retrying" from "never retryable
	// in the first place" for callers inspecting Exhausted().
	exhausted bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (provider=%s status=%d)", e.Code, e.Message, e.Provider, e.HTTPStatus)
}

// mapHTTPError maps an HTTP status code from an OpenAI-compatible
// endpoint onto the taxonomy the Client's retry loop understands.
func mapHTTPError(status int, msg string, provider string) *Error {
	switch status {
	case http.StatusUnauthorized:
		return &Error{Code: ErrAuthentication, Message: msg, HTTPStatus: status, Provider: provider}
	case http.StatusForbidden:
		return &Error{Code: ErrPermissionDenied, Message: msg, HTTPStatus: status, Provider: provider}
	case http.StatusUnprocessableEntity:
		return &Error{Code: ErrUnprocessable, Message: msg, HTTPStatus: status, Provider: provider}
	case http.StatusTooManyRequests:
		return &Error{Code: ErrRateLimited, Message: msg, HTTPStatus: status, Retryable: true, Provider: provider}
	case http.StatusBadRequest:
		return &Error{Code: ErrInvalidRequest, Message: msg, HTTPStatus: status, Provider: provider}
	default:
		// Transport resets, 5xx, and anything else unrecognized are
		// treated as transient per the retry table.
		return &Error{Code: ErrUpstreamError, Message: msg, HTTPStatus: status, Retryable: true, Provider: provider}
	}
}

// readErrorMessage best-effort extracts a human-readable message from
// an OpenAI-compatible error response body, falling back to raw text.
func readErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(body)
	if err != nil {
		return "failed to read error response"
	}
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		if errResp.Error.Type != "" {
			return fmt.Sprintf("%s (type: %s)", errResp.Error.Message, errResp.Error.Type)
		}
		return errResp.Error.Message
	}
	return strings.TrimSpace(string(data))
}
