// Package exitcode maps command errors to process exit codes so scripts
// can tell a rejected password from a dead backend.
package exitcode

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"

	"github.com/felixgeelhaar/storefront/internal/auth"
	sferrors "github.com/felixgeelhaar/storefront/internal/errors"
	"github.com/felixgeelhaar/storefront/internal/gateway"
)

const (
	Success      = 0
	GeneralError = 1

	// UsageError covers bad flags, missing arguments and invalid config.
	UsageError = 2

	// AuthError means there is no usable session: bad credentials, an
	// expired session or a failed OAuth flow.
	AuthError = 3

	// NetworkError means the backend could not be reached.
	NetworkError = 4

	// AccessDenied means the signed-in user lacks the required roles or
	// permissions.
	AccessDenied = 5

	// Interrupted follows the shell convention for SIGINT.
	Interrupted = 130
)

// Exit terminates the process with code.
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with the code DetermineExitCode picks for err.
func ExitWithError(err error) {
	Exit(DetermineExitCode(err))
}

// DetermineExitCode picks an exit code for err. Typed errors decide first;
// message matching is the fallback for errors from flag parsing.
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}

	if errors.Is(err, context.Canceled) {
		return Interrupted
	}

	var sfErr *sferrors.StorefrontError
	if errors.As(err, &sfErr) {
		switch sfErr.Code {
		case sferrors.ErrCodeAccessDenied:
			return AccessDenied
		case sferrors.ErrCodeNotSignedIn:
			return AuthError
		case sferrors.ErrCodeBackendUnreachable:
			return NetworkError
		case sferrors.ErrCodeConfigNotFound, sferrors.ErrCodeConfigInvalid, sferrors.ErrCodeConfigParse, sferrors.ErrCodeBadArgument:
			return UsageError
		}
	}

	var authErr *auth.AuthError
	if errors.As(err, &authErr) {
		// A mutation that failed because the backend is down is a network
		// problem, not a credential problem.
		if isNetwork(err) {
			return NetworkError
		}
		return AuthError
	}

	var httpErr *gateway.HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == 403:
			return AccessDenied
		case gateway.IsAuthFailure(err):
			return AuthError
		case httpErr.StatusCode >= 500:
			return NetworkError
		}
		return GeneralError
	}

	if isNetwork(err) {
		return NetworkError
	}

	msg := strings.ToLower(err.Error())
	for _, usage := range []string{"unknown command", "unknown flag", "invalid argument", "required flag", "accepts ", "requires at least"} {
		if strings.Contains(msg, usage) {
			return UsageError
		}
	}
	return GeneralError
}

func isNetwork(err error) bool {
	var sfErr *sferrors.StorefrontError
	if errors.As(err, &sfErr) && sfErr.Code == sferrors.ErrCodeBackendUnreachable {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// GetExitCodeDescription describes code for help output.
func GetExitCodeDescription(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case UsageError:
		return "Usage error (invalid flags, arguments or configuration)"
	case AuthError:
		return "Not signed in or session expired"
	case NetworkError:
		return "Backend unreachable"
	case AccessDenied:
		return "Access denied"
	case Interrupted:
		return "Interrupted"
	default:
		return "Unknown error"
	}
}
