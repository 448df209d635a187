package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeNotSignedIn, "test error message")

	if err.Code != ErrCodeNotSignedIn {
		t.Errorf("expected code %s, got %s", ErrCodeNotSignedIn, err.Code)
	}

	if err.Message != "test error message" {
		t.Errorf("expected message 'test error message', got '%s'", err.Message)
	}

	if err.Cause != nil {
		t.Errorf("expected nil cause, got %v", err.Cause)
	}
}

func TestWrap(t *testing.T) {
	cause := fmt.Errorf("underlying error")
	err := Wrap(ErrCodeStorageRead, "failed to read entry", cause)

	if err.Code != ErrCodeStorageRead {
		t.Errorf("expected code %s, got %s", ErrCodeStorageRead, err.Code)
	}

	if !errors.Is(err, cause) {
		t.Errorf("Wrap should support errors.Is")
	}

	if errors.Unwrap(err) != cause {
		t.Errorf("Unwrap should return the cause")
	}
}

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name     string
		err      *StorefrontError
		wantCode string
		wantMsg  string
	}{
		{
			name:     "simple error",
			err:      New(ErrCodeConfigInvalid, "bad config"),
			wantCode: "CONFIG-002",
			wantMsg:  "bad config",
		},
		{
			name:     "error with cause",
			err:      Wrap(ErrCodeStorageWrite, "write failed", fmt.Errorf("permission denied")),
			wantCode: "STORAGE-002",
			wantMsg:  "permission denied",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errStr := tt.err.Error()

			if !strings.Contains(errStr, tt.wantCode) {
				t.Errorf("error string should contain code %s, got: %s", tt.wantCode, errStr)
			}

			if !strings.Contains(errStr, tt.wantMsg) {
				t.Errorf("error string should contain message '%s', got: %s", tt.wantMsg, errStr)
			}

			if tt.err.ErrorCode() != tt.wantCode {
				t.Errorf("ErrorCode() = %s, want %s", tt.err.ErrorCode(), tt.wantCode)
			}
		})
	}
}

func TestSuggestionsAndDocs(t *testing.T) {
	err := New(ErrCodeBadArgument, "bad role").
		WithSuggestion("Use one of: customer, rider").
		WithSuggestions("Check spelling", "See --help").
		WithDocs("https://example.com/docs")

	if len(err.Suggestions) != 3 {
		t.Errorf("expected 3 suggestions, got %d", len(err.Suggestions))
	}

	errStr := err.Error()
	for _, want := range []string{"Suggestions:", "customer, rider", "See --help", "Documentation:", "https://example.com/docs"} {
		if !strings.Contains(errStr, want) {
			t.Errorf("error string should contain %q, got: %s", want, errStr)
		}
	}
}

func TestConstructors(t *testing.T) {
	cause := fmt.Errorf("boom")

	tests := []struct {
		name           string
		err            *StorefrontError
		wantCode       ErrorCode
		wantInMessage  string
		minSuggestions int
	}{
		{"config invalid", NewConfigInvalidError("backend.base_url is required"), ErrCodeConfigInvalid, "backend.base_url", 2},
		{"config parse", NewConfigParseError("/etc/sf.yaml", cause), ErrCodeConfigParse, "/etc/sf.yaml", 1},
		{"storage read", NewStorageReadError("storefront.auth", cause), ErrCodeStorageRead, "storefront.auth", 1},
		{"storage write", NewStorageWriteError("storefront.auth", cause), ErrCodeStorageWrite, "storefront.auth", 2},
		{"storage corrupt", NewStorageCorruptError("storefront.auth", cause), ErrCodeStorageCorrupt, "not a valid", 1},
		{"storage sealed", NewStorageSealedError(cause), ErrCodeStorageSealed, "decrypt", 2},
		{"backend unreachable", NewBackendUnreachableError("https://api.example.com", cause), ErrCodeBackendUnreachable, "api.example.com", 2},
		{"not signed in", NewNotSignedInError(), ErrCodeNotSignedIn, "not signed in", 2},
		{"access denied", NewAccessDeniedError("roles or [admin]"), ErrCodeAccessDenied, "[admin]", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, tt.err.Code)
			}
			if !strings.Contains(tt.err.Message, tt.wantInMessage) {
				t.Errorf("message %q should contain %q", tt.err.Message, tt.wantInMessage)
			}
			if len(tt.err.Suggestions) < tt.minSuggestions {
				t.Errorf("expected at least %d suggestions, got %d", tt.minSuggestions, len(tt.err.Suggestions))
			}
		})
	}
}
