package cmd

import (
	"errors"

	"github.com/felixgeelhaar/storefront/internal/auth"
)

// ErrorMessage is what main prints for err. Session errors show only their
// user-facing message; the backend's reasons stay in the logs.
func ErrorMessage(err error) string {
	var authErr *auth.AuthError
	if errors.As(err, &authErr) {
		return auth.UserMessage(err)
	}
	return err.Error()
}
