package errors

import (
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Configuration errors (CONFIG-001 to CONFIG-099)
	ErrCodeConfigNotFound ErrorCode = "CONFIG-001"
	ErrCodeConfigInvalid  ErrorCode = "CONFIG-002"
	ErrCodeConfigParse    ErrorCode = "CONFIG-003"

	// Storage errors (STORAGE-001 to STORAGE-099)
	ErrCodeStorageRead    ErrorCode = "STORAGE-001"
	ErrCodeStorageWrite   ErrorCode = "STORAGE-002"
	ErrCodeStorageCorrupt ErrorCode = "STORAGE-003"
	ErrCodeStorageSealed  ErrorCode = "STORAGE-004"
	ErrCodeStorageDriver  ErrorCode = "STORAGE-005"

	// Backend errors (BACKEND-001 to BACKEND-099)
	ErrCodeBackendUnreachable ErrorCode = "BACKEND-001"
	ErrCodeBackendResponse    ErrorCode = "BACKEND-002"

	// Session errors (SESSION-001 to SESSION-099)
	ErrCodeNotSignedIn  ErrorCode = "SESSION-001"
	ErrCodeAccessDenied ErrorCode = "SESSION-002"
	ErrCodeBadArgument  ErrorCode = "SESSION-003"
)

const docsBase = "https://github.com/felixgeelhaar/storefront#"

// StorefrontError represents an error with code, suggestions, and documentation
type StorefrontError struct {
	Code        ErrorCode
	Message     string
	Suggestions []string
	DocsURL     string
	Cause       error
}

// Error implements the error interface
func (e *StorefrontError) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  • %s", suggestion))
		}
	}

	if e.DocsURL != "" {
		b.WriteString(fmt.Sprintf("\n\nDocumentation: %s", e.DocsURL))
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *StorefrontError) Unwrap() error {
	return e.Cause
}

// ErrorCode returns the code as a string for structured logging
func (e *StorefrontError) ErrorCode() string {
	return string(e.Code)
}

// SuggestionList returns the remediation hints
func (e *StorefrontError) SuggestionList() []string {
	return e.Suggestions
}

// New creates a new StorefrontError
func New(code ErrorCode, message string) *StorefrontError {
	return &StorefrontError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new StorefrontError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *StorefrontError {
	return &StorefrontError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithSuggestion adds a suggestion to the error
func (e *StorefrontError) WithSuggestion(suggestion string) *StorefrontError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *StorefrontError) WithSuggestions(suggestions ...string) *StorefrontError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// WithDocs adds a documentation URL to the error
func (e *StorefrontError) WithDocs(url string) *StorefrontError {
	e.DocsURL = url
	return e
}

// Common error constructors

// NewConfigInvalidError creates a configuration validation error
func NewConfigInvalidError(details string) *StorefrontError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", details)).
		WithSuggestion("Run 'storefront config show' to inspect the effective configuration").
		WithSuggestion("Environment variables use the STOREFRONT_ prefix, e.g. STOREFRONT_BACKEND_BASE_URL").
		WithDocs(docsBase + "configuration")
}

// NewConfigParseError creates a configuration parse error
func NewConfigParseError(path string, cause error) *StorefrontError {
	return Wrap(ErrCodeConfigParse, fmt.Sprintf("failed to parse config file: %s", path), cause).
		WithSuggestion("Check the file is valid YAML")
}

// NewStorageReadError creates a persisted session read error
func NewStorageReadError(key string, cause error) *StorefrontError {
	return Wrap(ErrCodeStorageRead, fmt.Sprintf("failed to read persisted entry %q", key), cause).
		WithSuggestion("Check the storage driver settings under 'storage' in your config")
}

// NewStorageWriteError creates a persisted session write error
func NewStorageWriteError(key string, cause error) *StorefrontError {
	return Wrap(ErrCodeStorageWrite, fmt.Sprintf("failed to write persisted entry %q", key), cause).
		WithSuggestion("Verify the session file directory is writable").
		WithSuggestion("For the redis driver, verify the server is reachable")
}

// NewStorageCorruptError creates an unreadable persisted record error
func NewStorageCorruptError(key string, cause error) *StorefrontError {
	return Wrap(ErrCodeStorageCorrupt, fmt.Sprintf("persisted entry %q is not a valid session record", key), cause).
		WithSuggestion("Run 'storefront logout' to discard the stored session")
}

// NewStorageSealedError creates a decryption failure error
func NewStorageSealedError(cause error) *StorefrontError {
	return Wrap(ErrCodeStorageSealed, "failed to decrypt persisted session", cause).
		WithSuggestion("Check that storage.secret matches the secret used when signing in").
		WithSuggestion("Run 'storefront logout' and sign in again to re-encrypt the session")
}

// NewBackendUnreachableError creates a backend connectivity error
func NewBackendUnreachableError(baseURL string, cause error) *StorefrontError {
	return Wrap(ErrCodeBackendUnreachable, fmt.Sprintf("backend API is unreachable: %s", baseURL), cause).
		WithSuggestion("Check backend.base_url in your config").
		WithSuggestion("Verify your network connection")
}

// NewNotSignedInError creates an error for commands that need a session
func NewNotSignedInError() *StorefrontError {
	return New(ErrCodeNotSignedIn, "not signed in").
		WithSuggestion("Run 'storefront login' to sign in with email").
		WithSuggestion("Run 'storefront oauth begin' to sign in with Google")
}

// NewAccessDeniedError creates an error for a failed access check
func NewAccessDeniedError(requirement string) *StorefrontError {
	return New(ErrCodeAccessDenied, fmt.Sprintf("access denied: %s", requirement)).
		WithSuggestion("Run 'storefront whoami' to see your roles and permissions")
}
