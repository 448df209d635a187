package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/felixgeelhaar/storefront/internal/auth"
	sferrors "github.com/felixgeelhaar/storefront/internal/errors"
	"github.com/felixgeelhaar/storefront/internal/storage"
)

// DefaultKey is the storage namespace of the persisted session.
const DefaultKey = "storefront.auth"

// pendingOAuth is a redirect flow waiting for its callback.
type pendingOAuth struct {
	State       string    `json:"state"`
	Role        auth.Role `json:"role,omitempty"`
	RedirectURI string    `json:"redirectUri"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (s *Store) oauthKey() string {
	return s.key + ".oauth"
}

// loadPersisted reads the persisted session. A missing entry yields nil.
// An unreadable record is discarded.
func (s *Store) loadPersisted(ctx context.Context) (*Identity, error) {
	data, err := s.storage.Get(ctx, s.key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if sealed(err) {
		s.discard(ctx, s.key, err)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var payload auth.Payload
	if err := json.Unmarshal(data, &payload); err == nil {
		err = payload.Validate()
	}
	if err != nil {
		s.discard(ctx, s.key, sferrors.NewStorageCorruptError(s.key, err))
		return nil, nil
	}

	payload.Session = payload.Session.Normalize()
	return &Identity{Session: payload.Session, User: payload.User}, nil
}

// sealed reports whether err is a decryption failure, as after the storage
// secret was rotated. Such entries can never be read again.
func sealed(err error) bool {
	var sfErr *sferrors.StorefrontError
	return errors.As(err, &sfErr) && sfErr.Code == sferrors.ErrCodeStorageSealed
}

// discard drops an entry that cannot be read so the visitor starts signed out.
func (s *Store) discard(ctx context.Context, key string, cause error) {
	s.logger.WithError(cause).Warn("discarding unreadable persisted entry", "key", key)
	if err := s.storage.Delete(ctx, key); err != nil {
		s.logger.LogError(ctx, "failed to delete unreadable entry", err)
	}
}

// persist flushes id to storage, or removes the entry when id is nil.
func (s *Store) persist(ctx context.Context, id *Identity) error {
	if id == nil {
		return s.storage.Delete(ctx, s.key)
	}
	data, err := json.Marshal(id.Payload())
	if err != nil {
		return err
	}
	return s.storage.Set(ctx, s.key, data)
}

// flush persists id and logs failures. In-memory state is authoritative, so
// a storage failure does not undo the transition that caused it.
func (s *Store) flush(ctx context.Context, id *Identity) {
	if err := s.persist(ctx, id); err != nil {
		s.logger.LogError(ctx, "failed to persist session", err)
		s.metrics.RecordError(errorCode(err))
	}
}

func (s *Store) savePending(ctx context.Context, p pendingOAuth) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.storage.Set(ctx, s.oauthKey(), data)
}

// loadPending reads the pending OAuth record. A missing or unreadable
// record yields nil.
func (s *Store) loadPending(ctx context.Context) (*pendingOAuth, error) {
	data, err := s.storage.Get(ctx, s.oauthKey())
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if sealed(err) {
		s.discard(ctx, s.oauthKey(), err)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var p pendingOAuth
	if err := json.Unmarshal(data, &p); err != nil {
		s.discard(ctx, s.oauthKey(), err)
		return nil, nil
	}
	return &p, nil
}

func (s *Store) dropPending(ctx context.Context) {
	if err := s.storage.Delete(ctx, s.oauthKey()); err != nil {
		s.logger.LogError(ctx, "failed to delete pending oauth state", err)
	}
}

// errorCode returns the structured code of err, if it has one.
func errorCode(err error) string {
	var coded interface{ ErrorCode() string }
	if errors.As(err, &coded) {
		return coded.ErrorCode()
	}
	return ""
}
