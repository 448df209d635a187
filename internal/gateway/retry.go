package gateway

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
)

type methodKey struct{}

// withMethod records the request method for retryPolicy, which only sees
// the request context when a call fails before any response arrives.
func withMethod(ctx context.Context, method string) context.Context {
	return context.WithValue(ctx, methodKey{}, method)
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

// retryPolicy retries idempotent calls on connection errors and 5xx. Logins,
// token exchanges and profile mutations are retried only when the connection
// was never established, so the backend cannot apply them twice.
func retryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	method, _ := ctx.Value(methodKey{}).(string)
	if method == "" && resp != nil && resp.Request != nil {
		method = resp.Request.Method
	}
	if idempotent(method) {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	return err != nil && dialFailed(err), nil
}

func dialFailed(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
