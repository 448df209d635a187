package session

import (
	"context"

	"github.com/felixgeelhaar/storefront/internal/auth"
	"github.com/felixgeelhaar/storefront/internal/events"
	"github.com/felixgeelhaar/storefront/internal/gateway"
)

// withRefresh runs call and, when the backend rejects the access token,
// refreshes the session once and retries call once. A second rejection is
// returned as is; there is never more than one refresh per call.
func withRefresh[T any](ctx context.Context, s *Store, call func(context.Context) (T, error)) (T, error) {
	before := s.snapshot()

	v, err := call(ctx)
	if err == nil || !gateway.IsAuthFailure(err) {
		return v, err
	}

	var zero T
	cur := s.snapshot()
	switch {
	case cur == nil:
		return zero, auth.WrapError(auth.ErrNotSignedIn, auth.MsgNotSignedIn, err, nil)
	case before != nil && cur.Session.AccessToken != before.Session.AccessToken:
		// Another call refreshed while this one was in flight.
	case !cur.Session.CanRefresh():
		return zero, s.expire(ctx, err)
	default:
		if err := s.refresh(ctx, cur.Session.RefreshToken); err != nil {
			return zero, err
		}
	}

	return call(ctx)
}

// refresh trades refreshToken for a new session. Concurrent refreshes of
// the same token share one backend call. A failed refresh ends the session.
func (s *Store) refresh(ctx context.Context, refreshToken string) error {
	_, err, _ := s.refreshes.Do(refreshToken, func() (interface{}, error) {
		started := s.now()
		s.setStatus(Loading{Operation: OpRefresh})

		p, err := s.gw.Refresh(ctx, refreshToken)
		s.metrics.RecordRefresh(err)
		s.observe(OpRefresh, started, err)
		if err != nil {
			return nil, s.expire(ctx, err)
		}

		id := s.adopt(ctx, p)
		s.logger.WithContext(ctx).Debug("session refreshed", "user_id", id.User.ID)
		return nil, nil
	})
	return err
}

// expire clears the session after an unrecoverable authentication failure
// and returns the session-expired error.
func (s *Store) expire(ctx context.Context, cause error) error {
	cur := s.snapshot()

	s.logger.WithContext(ctx).WithError(cause).Info("session expired")
	s.clear(ctx, auth.MsgSessionExpired)

	if cur != nil {
		s.publish(ctx, events.EventSessionExpired, cur.User.ID, "")
	}
	return auth.WrapError(auth.ErrSessionExpired, auth.MsgSessionExpired, cause, nil)
}
