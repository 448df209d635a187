package session

import (
	"context"
	"crypto/subtle"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/storefront/internal/auth"
	"github.com/felixgeelhaar/storefront/internal/events"
	"github.com/felixgeelhaar/storefront/internal/gateway"
)

// OAuthStateTTL bounds how long a redirect flow may take.
const OAuthStateTTL = 10 * time.Minute

// OAuthRequest starts a redirect sign-in.
type OAuthRequest struct {
	Role        auth.Role
	RedirectURI string
}

// OAuthCallback carries the query parameters of the provider redirect.
type OAuthCallback struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// CallbackFromQuery reads an OAuthCallback from redirect query parameters.
func CallbackFromQuery(q url.Values) OAuthCallback {
	return OAuthCallback{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	}
}

// BeginOAuth records a pending state and returns the provider URL the
// browser must navigate to. The store does not navigate; the flow resumes
// in CompleteOAuth, possibly in another process. When the backend puts its
// own state in the URL, that state is the one the callback must return.
func (s *Store) BeginOAuth(ctx context.Context, req OAuthRequest) (target string, err error) {
	started := s.now()
	defer func() { s.observe(OpOAuthBegin, started, err) }()

	previous := s.Status()
	s.setStatus(Loading{Operation: OpOAuthBegin})

	pending := pendingOAuth{
		State:       uuid.NewString(),
		Role:        req.Role,
		RedirectURI: req.RedirectURI,
		CreatedAt:   s.now().UTC(),
	}

	target, err = s.gw.StartOAuth(ctx, gateway.OAuthStartRequest{
		Role:        req.Role,
		RedirectURI: req.RedirectURI,
		State:       pending.State,
	})
	if err == nil {
		target, pending.State, err = withState(target, pending.State)
	}
	if err == nil {
		err = s.savePending(ctx, pending)
	}
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("could not start oauth flow")
		authErr := auth.WrapError(auth.ErrOAuthStartFailed, auth.MsgOAuthFailed, err, nil)
		s.fail(authErr.Message, authErr)
		return "", authErr
	}

	s.setStatus(previous)
	return target, nil
}

// withState makes sure the provider URL carries state and returns the state
// it ends up carrying.
func withState(target, state string) (string, string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", "", err
	}
	q := u.Query()
	if existing := q.Get("state"); existing != "" {
		return u.String(), existing, nil
	}
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String(), state, nil
}

// CompleteOAuth finishes a redirect sign-in. Provider errors and state that
// does not match the pending flow fail without calling the backend.
func (s *Store) CompleteOAuth(ctx context.Context, cb OAuthCallback) (err error) {
	started := s.now()
	defer func() { s.observe(OpOAuthFinish, started, err) }()

	logger := s.logger.WithContext(ctx)

	// The pending record is only consumed by a callback that proves it
	// belongs to the flow, so a forged callback cannot cancel it.
	pending, err := s.loadPending(ctx)
	if err != nil {
		authErr := auth.WrapError(auth.ErrOAuthProvider, auth.MsgOAuthFailed, err, nil)
		s.fail(authErr.Message, authErr)
		return authErr
	}
	matched := s.stateMatches(pending, cb.State)
	if matched || s.pendingExpired(pending) {
		s.dropPending(ctx)
	}

	if cb.Error != "" {
		message := auth.MsgOAuthFailed
		if cb.Error == "access_denied" {
			message = auth.MsgOAuthDenied
		}
		logger.Info("oauth provider returned an error", "error", cb.Error, "description", cb.ErrorDescription)
		authErr := auth.NewError(auth.ErrOAuthProvider, message,
			map[string]interface{}{"provider_error": cb.Error, "description": cb.ErrorDescription})
		s.fail(message, authErr)
		return authErr
	}
	if !matched {
		logger.Warn("oauth state mismatch", "has_pending", pending != nil)
		authErr := auth.NewError(auth.ErrOAuthStateMismatch, auth.MsgOAuthStateMismatch, nil)
		s.fail(authErr.Message, authErr)
		return authErr
	}
	if cb.Code == "" {
		authErr := auth.NewError(auth.ErrOAuthProvider, auth.MsgOAuthFailed,
			map[string]interface{}{"reason": "missing code"})
		s.fail(authErr.Message, authErr)
		return authErr
	}

	s.setStatus(Loading{Operation: OpOAuthFinish})

	p, err := s.gw.CompleteOAuth(ctx, gateway.OAuthCompleteRequest{Code: cb.Code, State: cb.State})
	if err != nil {
		logger.WithError(err).Warn("oauth code exchange failed")
		authErr := auth.WrapError(auth.ErrOAuthProvider, auth.MsgOAuthFailed, err, nil)
		s.fail(authErr.Message, authErr)
		return authErr
	}

	id := s.adopt(ctx, p)
	s.publish(ctx, events.EventSessionLogin, id.User.ID, "google")
	s.RefreshOrders(ctx)
	return nil
}

// stateMatches reports whether state belongs to a live pending flow.
func (s *Store) stateMatches(p *pendingOAuth, state string) bool {
	if p == nil || state == "" || s.pendingExpired(p) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(p.State), []byte(state)) == 1
}

func (s *Store) pendingExpired(p *pendingOAuth) bool {
	return p != nil && s.now().Sub(p.CreatedAt) > OAuthStateTTL
}
