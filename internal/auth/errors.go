package auth

import (
	"errors"
	"fmt"
)

// Error codes for session failures
const (
	// Credential errors
	ErrInvalidCredentials = "AUTH_INVALID_CREDENTIALS"

	// Session errors
	ErrSessionExpired = "AUTH_SESSION_EXPIRED"
	ErrNotSignedIn    = "AUTH_NOT_SIGNED_IN"
	ErrRefreshFailed  = "AUTH_REFRESH_FAILED"

	// Token errors
	ErrTokenMalformed = "AUTH_TOKEN_MALFORMED"

	// OAuth errors
	ErrOAuthProvider      = "AUTH_OAUTH_PROVIDER"
	ErrOAuthStateMismatch = "AUTH_OAUTH_STATE_MISMATCH"
	ErrOAuthStartFailed   = "AUTH_OAUTH_START_FAILED"

	// Profile mutation errors
	ErrProfileUpdateFailed     = "AUTH_PROFILE_UPDATE_FAILED"
	ErrPreferencesUpdateFailed = "AUTH_PREFERENCES_UPDATE_FAILED"
	ErrSecurityUpdateFailed    = "AUTH_SECURITY_UPDATE_FAILED"
)

// User-visible messages. They never include backend error text.
const (
	MsgInvalidCredentials = "Invalid email or password."
	MsgSessionExpired     = "Session expired. Please sign in again."
	MsgNotSignedIn        = "Please sign in to continue."
	MsgOAuthFailed        = "Sign-in with Google failed. Please try again."
	MsgOAuthDenied        = "Google sign-in was cancelled."
	MsgOAuthStateMismatch = "This sign-in link is no longer valid. Please start again."
	MsgProfileFailed      = "Could not update your profile."
	MsgPreferencesFailed  = "Could not save your preferences."
	MsgSecurityFailed     = "Could not update security settings."
)

// AuthError represents a session error with code and context.
type AuthError struct {
	// Code is the error code (e.g., AUTH_SESSION_EXPIRED)
	Code string

	// Message is safe to show to the user
	Message string

	// Context provides additional details for logs
	Context map[string]interface{}

	// Cause is the underlying error that caused this error
	Cause error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AuthError) Unwrap() error {
	return e.Cause
}

// ErrorCode returns the error code.
func (e *AuthError) ErrorCode() string {
	return e.Code
}

// NewError creates a new AuthError.
func NewError(code, message string, context map[string]interface{}) *AuthError {
	return &AuthError{
		Code:    code,
		Message: message,
		Context: context,
	}
}

// WrapError wraps an existing error with an AuthError.
func WrapError(code, message string, cause error, context map[string]interface{}) *AuthError {
	return &AuthError{
		Code:    code,
		Message: message,
		Context: context,
		Cause:   cause,
	}
}

// IsAuthError checks if any error in the chain is an AuthError with the given code.
func IsAuthError(err error, code string) bool {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Code == code
	}
	return false
}

// UserMessage returns the message that is safe to show for err.
// Errors that are not AuthErrors get a generic message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var authErr *AuthError
	if errors.As(err, &authErr) && authErr.Message != "" {
		return authErr.Message
	}
	return "Something went wrong. Please try again."
}
