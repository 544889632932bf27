package authsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/consoleauth/pkg/httpx"
)

// ============================================================================
// Error Codes
// ============================================================================

const (
	ErrorCodeTokenExpired        = httpx.CodeTokenExpired
	ErrorCodeInvalidToken        = httpx.CodeInvalidToken
	ErrorCodeMissingToken        = httpx.CodeMissingToken
	ErrorCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	ErrorCodeValidation          = "VALIDATION_ERROR"
	ErrorCodeValidationFailed    = "VALIDATION_FAILED"
	ErrorCodeNoRefreshCookie     = "NO_REFRESH_COOKIE"
	ErrorCodeInvalidRefreshToken = "INVALID_REFRESH_TOKEN"
	ErrorCodeForbidden           = httpx.CodeForbidden
	ErrorCodeNotFound            = "NOT_FOUND"
	ErrorCodeRateLimited         = httpx.CodeRateLimited
	ErrorCodeEmailTaken          = "EMAIL_TAKEN"
	ErrorCodeServerError         = "SERVER_ERROR"
)

// ============================================================================
// APIError
// ============================================================================

// APIError is the backend's standard error body. The server writes it with
// WriteError and the SDK returns it for every non-2xx response.
type APIError struct {
	StatusCode int      `json:"-"`
	Code       string   `json:"errorCode"`
	Message    string   `json:"message"`
	Details    []string `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches another *APIError by code, so callers can write
// errors.Is(err, authsdk.ErrTokenExpired).
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// IsValidation reports whether the backend rejected the input.
func (e *APIError) IsValidation() bool {
	return e.Code == ErrorCodeValidation || e.Code == ErrorCodeValidationFailed
}

// WithMessage returns a copy of e carrying a different message.
func (e *APIError) WithMessage(msg string, details ...string) *APIError {
	cp := *e
	cp.Message = msg
	cp.Details = details
	return &cp
}

// WriteError writes e as the standard error body.
func (e *APIError) WriteError(w http.ResponseWriter) {
	httpx.WriteError(w, e.StatusCode, e.Code, e.Message, e.Details...)
}

// ============================================================================
// Predefined Errors
// ============================================================================

var (
	// ErrTokenExpired is the only 401 shape that triggers a refresh.
	ErrTokenExpired = &APIError{
		StatusCode: http.StatusUnauthorized,
		Code:       ErrorCodeTokenExpired,
		Message:    "the access token has expired",
	}

	ErrInvalidToken = &APIError{
		StatusCode: http.StatusUnauthorized,
		Code:       ErrorCodeInvalidToken,
		Message:    "the access token is invalid",
	}

	ErrMissingToken = &APIError{
		StatusCode: http.StatusUnauthorized,
		Code:       ErrorCodeMissingToken,
		Message:    "a bearer access token is required",
	}

	ErrInvalidCredentials = &APIError{
		StatusCode: http.StatusUnauthorized,
		Code:       ErrorCodeInvalidCredentials,
		Message:    "email or password is incorrect",
	}

	ErrValidation = &APIError{
		StatusCode: http.StatusBadRequest,
		Code:       ErrorCodeValidation,
		Message:    "check your input",
	}

	ErrNoRefreshCookie = &APIError{
		StatusCode: http.StatusUnauthorized,
		Code:       ErrorCodeNoRefreshCookie,
		Message:    "no refresh cookie was sent",
	}

	ErrInvalidRefreshToken = &APIError{
		StatusCode: http.StatusUnauthorized,
		Code:       ErrorCodeInvalidRefreshToken,
		Message:    "the refresh token is invalid, expired or revoked",
	}

	ErrForbidden = &APIError{
		StatusCode: http.StatusForbidden,
		Code:       ErrorCodeForbidden,
		Message:    "permission denied",
	}

	ErrNotFound = &APIError{
		StatusCode: http.StatusNotFound,
		Code:       ErrorCodeNotFound,
		Message:    "resource not found",
	}

	ErrRateLimited = &APIError{
		StatusCode: http.StatusTooManyRequests,
		Code:       ErrorCodeRateLimited,
		Message:    "too many requests, try again shortly",
	}

	ErrEmailTaken = &APIError{
		StatusCode: http.StatusConflict,
		Code:       ErrorCodeEmailTaken,
		Message:    "an account with this email already exists",
	}

	ErrServerError = &APIError{
		StatusCode: http.StatusInternalServerError,
		Code:       ErrorCodeServerError,
		Message:    "internal server error",
	}
)

// ============================================================================
// Client-side Errors
// ============================================================================

var (
	// ErrRefreshFailed is returned to every caller waiting on a refresh that
	// did not produce a token. The session has been cleared; only a new login
	// recovers.
	ErrRefreshFailed = errors.New("authsdk: session refresh failed")

	// ErrNoCredential means the token store holds no session.
	ErrNoCredential = errors.New("authsdk: no stored credential")
)

// RefreshError carries the reason a refresh failed.
type RefreshError struct {
	Err error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("%s: %v", ErrRefreshFailed, e.Err)
}

// Unwrap exposes both ErrRefreshFailed and the underlying cause.
func (e *RefreshError) Unwrap() []error {
	return []error{ErrRefreshFailed, e.Err}
}

// ============================================================================
// Error Parsing Helpers
// ============================================================================

// parseErrorResponse turns a non-2xx response into an *APIError, falling back
// to a per-status message when the body is not the standard shape.
func parseErrorResponse(resp *http.Response, body []byte, fallback func(int) string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && (errResp.Message != "" || errResp.ErrorCode != "") {
		msg := errResp.Message
		if msg == "" {
			msg = fallback(resp.StatusCode)
		}
		return &APIError{
			StatusCode: resp.StatusCode,
			Code:       errResp.ErrorCode,
			Message:    msg,
			Details:    errResp.Details,
		}
	}

	// Older endpoints answer {"error": "..."}.
	var legacy struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &legacy); err == nil && legacy.Error != "" {
		return &APIError{StatusCode: resp.StatusCode, Code: legacy.Error, Message: legacy.Error}
	}

	return &APIError{StatusCode: resp.StatusCode, Message: fallback(resp.StatusCode)}
}

// defaultMessage is the generic per-status wording.
func defaultMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "check your input"
	case http.StatusUnauthorized:
		return "authentication required"
	case http.StatusForbidden:
		return "permission denied"
	case http.StatusNotFound:
		return "the requested resource was not found"
	case http.StatusConflict:
		return "the request conflicts with existing data"
	case http.StatusUnprocessableEntity:
		return "the request could not be processed"
	case http.StatusTooManyRequests:
		return "too many requests, try again shortly"
	case http.StatusInternalServerError:
		return "server error, try again shortly"
	case http.StatusBadGateway:
		return "the server could not be reached"
	case http.StatusServiceUnavailable:
		return "the service is temporarily unavailable"
	default:
		return fmt.Sprintf("request failed (status %d)", status)
	}
}

// loginMessage is the wording shown on a failed login form.
func loginMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "check your email and password"
	case http.StatusUnauthorized:
		return "email or password is incorrect"
	case http.StatusForbidden:
		return "this account has been disabled"
	case http.StatusNotFound:
		return "no account exists for this email"
	case http.StatusTooManyRequests:
		return "too many login attempts, try again shortly"
	case http.StatusInternalServerError:
		return "the login service is unavailable, try again shortly"
	default:
		return fmt.Sprintf("login failed (status %d)", status)
	}
}
