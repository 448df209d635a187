// Package session holds the client session state machine: who is signed
// in, with which tokens, and how that changes on login, OAuth, refresh,
// profile mutation and logout.
//
// A Store is an explicit state object. Every mutation goes through its
// methods and is flushed to the storage backend before the method returns.
package session

import (
	"context"
	"slices"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/felixgeelhaar/storefront/internal/access"
	"github.com/felixgeelhaar/storefront/internal/auth"
	"github.com/felixgeelhaar/storefront/internal/events"
	"github.com/felixgeelhaar/storefront/internal/gateway"
	"github.com/felixgeelhaar/storefront/internal/log"
	"github.com/felixgeelhaar/storefront/internal/metrics"
	"github.com/felixgeelhaar/storefront/internal/storage"
)

// Operation names, used as Loading.Operation and as metric labels.
const (
	OpRestore     = "restore"
	OpInitialize  = "initialize"
	OpLogin       = "login"
	OpOAuthBegin  = "oauth_begin"
	OpOAuthFinish = "oauth_complete"
	OpLogout      = "logout"
	OpRefresh     = "refresh"
	OpProfile     = "update_profile"
	OpPreferences = "update_preferences"
	OpSecurity    = "update_security"
	OpOrders      = "refresh_orders"
)

// refreshSkew is how close to expiry a restored access token may be before
// Initialize refreshes it instead of confirming it with the backend.
const refreshSkew = 30 * time.Second

// Gateway is the subset of the backend client the store needs.
type Gateway interface {
	Login(ctx context.Context, req gateway.LoginRequest) (*auth.Payload, error)
	StartOAuth(ctx context.Context, req gateway.OAuthStartRequest) (string, error)
	CompleteOAuth(ctx context.Context, req gateway.OAuthCompleteRequest) (*auth.Payload, error)
	Logout(ctx context.Context) error
	Refresh(ctx context.Context, refreshToken string) (*auth.Payload, error)
	Me(ctx context.Context) (*auth.Payload, error)
	UpdateProfile(ctx context.Context, req gateway.ProfileUpdate) (*auth.Payload, error)
	UpdatePreferences(ctx context.Context, req gateway.PreferencesUpdate) (*auth.Payload, error)
	UpdateSecurity(ctx context.Context, req gateway.SecurityUpdate) (*auth.Payload, error)
	OrderSummaries(ctx context.Context) ([]auth.OrderSummary, error)
}

// tokenBinder is implemented by *gateway.Client.
type tokenBinder interface {
	WithTokenSource(ts oauth2.TokenSource) *gateway.Client
}

// Options configures a Store.
type Options struct {
	// Gateway is required. A *gateway.Client is rebound so that its
	// authenticated calls use this store's access token.
	Gateway Gateway

	// Storage is required.
	Storage storage.Backend

	// Key is the storage namespace. Defaults to DefaultKey.
	Key string

	Logger  *log.Logger
	Metrics *metrics.Metrics
	Events  events.Publisher

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Store is the session state container.
type Store struct {
	gw      Gateway
	storage storage.Backend
	key     string
	logger  *log.Logger
	metrics *metrics.Metrics
	events  events.Publisher
	now     func() time.Time

	mu      sync.RWMutex
	status  Status
	current *Identity
	orders  []auth.OrderSummary
	subs    map[int]func(Status)
	nextSub int

	inits     singleflight.Group
	refreshes singleflight.Group
}

// New builds a store and restores any persisted session. A restored session
// leaves the store in Loading until Initialize confirms it with the backend.
func New(ctx context.Context, opts Options) (*Store, error) {
	s := &Store{
		gw:      opts.Gateway,
		storage: opts.Storage,
		key:     opts.Key,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		events:  opts.Events,
		now:     opts.Clock,
		status:  Idle{},
		subs:    map[int]func(Status){},
	}
	if s.key == "" {
		s.key = DefaultKey
	}
	if s.logger == nil {
		s.logger = log.DefaultLogger()
	}
	s.logger = s.logger.With("component", "session")
	if s.events == nil {
		s.events = events.Nop{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if binder, ok := opts.Gateway.(tokenBinder); ok {
		s.gw = binder.WithTokenSource(s)
	}

	persisted, err := s.loadPersisted(ctx)
	if err != nil {
		return nil, err
	}
	if persisted != nil {
		s.current = persisted
		s.status = Loading{Operation: OpRestore}
	}
	return s, nil
}

// Key returns the storage namespace of this store.
func (s *Store) Key() string {
	return s.key
}

// Status returns the current status.
func (s *Store) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Identity returns the identity admitted by the current status.
func (s *Store) Identity() (*Identity, bool) {
	id, ok := IdentityOf(s.Status())
	return id.Clone(), ok
}

// Orders returns the last fetched order summaries.
func (s *Store) Orders() []auth.OrderSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.orders)
}

// Token returns the current access token. It implements oauth2.TokenSource
// so the gateway can attach the bearer credential to every request.
func (s *Store) Token() (*oauth2.Token, error) {
	s.mu.RLock()
	cur := s.current
	s.mu.RUnlock()

	if cur == nil || cur.Session.AccessToken == "" {
		return nil, auth.NewError(auth.ErrNotSignedIn, auth.MsgNotSignedIn, nil)
	}
	return &oauth2.Token{
		AccessToken:  cur.Session.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: cur.Session.RefreshToken,
		Expiry:       cur.Session.ExpiresAt,
	}, nil
}

// Subscribe registers fn for every status change. The returned function
// removes the subscription.
func (s *Store) Subscribe(fn func(Status)) (cancel func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// setStatus moves to st without touching the identity.
func (s *Store) setStatus(st Status) {
	s.transition(st, nil)
}

// transition applies mutate and moves to st under one lock, then notifies
// subscribers outside it.
func (s *Store) transition(st Status, mutate func()) {
	s.mu.Lock()
	if mutate != nil {
		mutate()
	}
	s.status = st
	subs := make([]func(Status), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	s.metrics.RecordStatus(st.Name())
	for _, fn := range subs {
		fn(st)
	}
}

// snapshot returns the in-memory session, whatever the status.
func (s *Store) snapshot() *Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// adopt replaces the identity with the backend's payload, moves to
// Authenticated and flushes storage.
func (s *Store) adopt(ctx context.Context, p *auth.Payload) *Identity {
	id := &Identity{Session: p.Session.Normalize(), User: access.Resolve(p.User)}
	s.transition(Authenticated{Session: id.Session, User: id.User}, func() {
		if s.current == nil || s.current.User.ID != id.User.ID {
			s.orders = nil
		}
		s.current = id
	})
	s.flush(ctx, id)
	return id
}

// clear drops the identity, moves to Idle and removes the persisted entry.
func (s *Store) clear(ctx context.Context, notice string) {
	s.transition(Idle{Notice: notice}, func() {
		s.current = nil
		s.orders = nil
	})
	s.flush(ctx, nil)
}

// fail moves to Failed, retaining the in-memory identity when one exists.
func (s *Store) fail(message string, err error) {
	s.mu.RLock()
	retained := s.current.Clone()
	s.mu.RUnlock()
	s.setStatus(Failed{Message: message, Err: err, Retained: retained})
}

// publish emits a session event. Failures are logged only.
func (s *Store) publish(ctx context.Context, eventType, userID, method string) {
	err := s.events.Publish(ctx, events.SessionEvent{
		Type:      eventType,
		UserID:    userID,
		Method:    method,
		Timestamp: s.now().UTC(),
	})
	if err != nil {
		s.logger.WithError(err).Warn("failed to publish session event", "event", eventType)
	}
}

// observe records the outcome of an operation.
func (s *Store) observe(op string, started time.Time, err error) {
	s.metrics.ObserveOperation(op, started, err)
	if err != nil {
		s.metrics.RecordError(errorCode(err))
	}
}

// Initialize confirms the persisted session with the backend. Without a
// persisted session it moves to Idle without any backend call. Concurrent
// calls share one run.
func (s *Store) Initialize(ctx context.Context) error {
	_, err, _ := s.inits.Do(OpInitialize, func() (interface{}, error) {
		return nil, s.initialize(ctx)
	})
	return err
}

func (s *Store) initialize(ctx context.Context) (err error) {
	started := s.now()
	defer func() { s.observe(OpInitialize, started, err) }()

	cur := s.snapshot()
	if cur == nil {
		s.setStatus(Idle{})
		return nil
	}

	s.setStatus(Loading{Operation: OpInitialize})
	logger := s.logger.WithContext(ctx).With("user_id", cur.User.ID)

	if cur.Session.ExpiresWithin(refreshSkew, s.now()) && cur.Session.CanRefresh() {
		logger.Debug("persisted access token expired or about to, refreshing")
		if err := s.refresh(ctx, cur.Session.RefreshToken); err != nil {
			return err
		}
	} else {
		p, err := s.gw.Me(ctx)
		switch {
		case err == nil:
			s.adopt(ctx, p)
		case gateway.IsAuthFailure(err):
			if !cur.Session.CanRefresh() {
				return s.expire(ctx, err)
			}
			if err := s.refresh(ctx, cur.Session.RefreshToken); err != nil {
				return err
			}
		default:
			logger.WithError(err).Warn("could not confirm persisted session")
			s.fail(auth.UserMessage(err), err)
			return err
		}
	}

	s.RefreshOrders(ctx)
	return nil
}

// Credentials are the email sign-in inputs.
type Credentials struct {
	Email    string
	Password string
	Role     auth.Role
}

// LoginWithEmail signs in with email and password. A rejected login moves
// to Failed with a generic message; the backend's reason is only logged.
func (s *Store) LoginWithEmail(ctx context.Context, creds Credentials) (err error) {
	started := s.now()
	defer func() { s.observe(OpLogin, started, err) }()

	s.setStatus(Loading{Operation: OpLogin})

	p, err := s.gw.Login(ctx, gateway.LoginRequest{Email: creds.Email, Password: creds.Password, Role: creds.Role})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Info("login rejected", "email", creds.Email)
		authErr := auth.WrapError(auth.ErrInvalidCredentials, auth.MsgInvalidCredentials, err,
			map[string]interface{}{"email": creds.Email})
		s.fail(authErr.Message, authErr)
		return authErr
	}

	id := s.adopt(ctx, p)
	s.publish(ctx, events.EventSessionLogin, id.User.ID, "password")
	s.RefreshOrders(ctx)
	return nil
}

// Logout invalidates the session on the server when possible, then clears
// all local state unconditionally.
func (s *Store) Logout(ctx context.Context) (err error) {
	started := s.now()
	defer func() { s.observe(OpLogout, started, err) }()

	cur := s.snapshot()
	if cur != nil {
		if err := s.gw.Logout(ctx); err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("server-side logout failed")
		}
	}

	s.clear(ctx, "")
	s.dropPending(ctx)

	if cur != nil {
		s.publish(ctx, events.EventSessionLogout, cur.User.ID, "")
	}
	return nil
}

// ProfileUpdate changes profile fields. Nil fields are left unchanged.
type ProfileUpdate = gateway.ProfileUpdate

// PreferencesUpdate changes preferences. Nil fields are left unchanged.
type PreferencesUpdate = gateway.PreferencesUpdate

// SecurityUpdate toggles two-factor authentication.
type SecurityUpdate = gateway.SecurityUpdate

// UpdateProfile changes the user's profile.
func (s *Store) UpdateProfile(ctx context.Context, upd ProfileUpdate) error {
	return s.mutate(ctx, OpProfile, auth.ErrProfileUpdateFailed, auth.MsgProfileFailed,
		func(ctx context.Context) (*auth.Payload, error) { return s.gw.UpdateProfile(ctx, upd) })
}

// UpdatePreferences changes the user's preferences.
func (s *Store) UpdatePreferences(ctx context.Context, upd PreferencesUpdate) error {
	return s.mutate(ctx, OpPreferences, auth.ErrPreferencesUpdateFailed, auth.MsgPreferencesFailed,
		func(ctx context.Context) (*auth.Payload, error) { return s.gw.UpdatePreferences(ctx, upd) })
}

// UpdateSecurity changes the user's security settings.
func (s *Store) UpdateSecurity(ctx context.Context, upd SecurityUpdate) error {
	return s.mutate(ctx, OpSecurity, auth.ErrSecurityUpdateFailed, auth.MsgSecurityFailed,
		func(ctx context.Context) (*auth.Payload, error) { return s.gw.UpdateSecurity(ctx, upd) })
}

// mutate runs an identity-returning mutation through the refresh protocol.
// The server's response replaces the identity wholesale.
func (s *Store) mutate(ctx context.Context, op, code, message string, call func(context.Context) (*auth.Payload, error)) (err error) {
	started := s.now()
	defer func() { s.observe(op, started, err) }()

	if s.snapshot() == nil {
		return auth.NewError(auth.ErrNotSignedIn, auth.MsgNotSignedIn, map[string]interface{}{"operation": op})
	}

	s.setStatus(Loading{Operation: op})

	p, err := withRefresh(ctx, s, call)
	if err != nil {
		if auth.IsAuthError(err, auth.ErrSessionExpired) {
			return err
		}
		s.logger.WithContext(ctx).WithError(err).Warn("session mutation failed", "operation", op)
		authErr := auth.WrapError(code, message, err, map[string]interface{}{"operation": op})
		s.fail(message, authErr)
		return authErr
	}

	s.adopt(ctx, p)
	return nil
}

// RefreshOrders fetches the order summaries. It is a secondary read:
// failures are logged and never change the session.
func (s *Store) RefreshOrders(ctx context.Context) {
	started := s.now()
	cur := s.snapshot()
	if cur == nil {
		return
	}

	orders, err := s.gw.OrderSummaries(ctx)
	s.observe(OpOrders, started, err)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Debug("could not load order summaries", "user_id", cur.User.ID)
		return
	}

	s.mu.Lock()
	if s.current != nil && s.current.User.ID == cur.User.ID {
		s.orders = orders
	}
	s.mu.Unlock()
}
