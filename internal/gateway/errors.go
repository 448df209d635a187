package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// HTTPError is a non-2xx backend response.
//
// Message is whatever the backend said. It is meant for logs and must not be
// shown to users verbatim.
type HTTPError struct {
	Endpoint   string
	StatusCode int
	Code       string
	Message    string
}

// errorResponse is the backend's JSON error body.
type errorResponse struct {
	Code    string `json:"code"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func newHTTPError(endpoint string, status int, body []byte) *HTTPError {
	e := &HTTPError{Endpoint: endpoint, StatusCode: status}

	var resp errorResponse
	if err := json.Unmarshal(body, &resp); err == nil {
		e.Code = resp.Code
		e.Message = resp.Message
		if e.Message == "" {
			e.Message = resp.Error
		}
	}
	if e.Message == "" {
		e.Message = strings.TrimSpace(string(body))
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: backend returned %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

// ErrorCode returns a stable code for metrics and logs.
func (e *HTTPError) ErrorCode() string {
	return fmt.Sprintf("BACKEND_HTTP_%d", e.StatusCode)
}

// IsAuthFailure reports whether err is a 401 or 403 from the backend, the
// only failures that start the session refresh protocol.
func IsAuthFailure(err error) bool {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		return false
	}
	return httpErr.StatusCode == http.StatusUnauthorized || httpErr.StatusCode == http.StatusForbidden
}

// StatusCode returns the backend status carried by err, or 0.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}
