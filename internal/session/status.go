package session

import (
	"slices"

	"github.com/felixgeelhaar/storefront/internal/auth"
)

// Status names, used in logs, metrics and templates.
const (
	StatusIdle          = "idle"
	StatusLoading       = "loading"
	StatusAuthenticated = "authenticated"
	StatusError         = "error"
)

// Status is the authentication state of a Store. It is one of Idle,
// Loading, Authenticated or Failed.
type Status interface {
	Name() string
	sealed()
}

// Idle means nobody is signed in. Notice carries a message for the user,
// such as why they were signed out.
type Idle struct {
	Notice string
}

// Loading means an identity-changing request is in flight.
type Loading struct {
	Operation string
}

// Authenticated is the only status that carries an identity.
type Authenticated struct {
	Session auth.Tokens
	User    auth.User
}

// Failed means the last identity-changing operation failed. Message is safe
// to show to the user. Retained is the identity that survived the failure,
// if any; its session is still valid and still persisted.
type Failed struct {
	Message  string
	Err      error
	Retained *Identity
}

func (Idle) Name() string          { return StatusIdle }
func (Loading) Name() string       { return StatusLoading }
func (Authenticated) Name() string { return StatusAuthenticated }
func (Failed) Name() string        { return StatusError }

func (Idle) sealed()          {}
func (Loading) sealed()       {}
func (Authenticated) sealed() {}
func (Failed) sealed()        {}

// Identity returns the signed-in identity.
func (a Authenticated) Identity() *Identity {
	return &Identity{Session: a.Session, User: a.User}
}

// Identity is a session together with the user it belongs to.
type Identity struct {
	Session auth.Tokens
	User    auth.User
}

// Payload returns the persisted record shape.
func (i *Identity) Payload() auth.Payload {
	return auth.Payload{Session: i.Session, User: i.User}
}

// Clone returns a deep copy.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	c.User.Roles = slices.Clone(i.User.Roles)
	c.User.Permissions = slices.Clone(i.User.Permissions)
	c.User.AvailableCoupons = slices.Clone(i.User.AvailableCoupons)
	if i.User.Phone != nil {
		phone := *i.User.Phone
		c.User.Phone = &phone
	}
	if i.User.Preferences.Notifications != nil {
		n := *i.User.Preferences.Notifications
		c.User.Preferences.Notifications = &n
	}
	return &c
}

// IdentityOf returns the identity a status admits: the signed-in identity
// when authenticated, or the retained identity of a failed mutation.
func IdentityOf(st Status) (*Identity, bool) {
	switch s := st.(type) {
	case Authenticated:
		return s.Identity(), true
	case Failed:
		if s.Retained != nil {
			return s.Retained, true
		}
	}
	return nil, false
}

// UserOf returns the user admitted by st, or nil.
func UserOf(st Status) *auth.User {
	if id, ok := IdentityOf(st); ok {
		return &id.User
	}
	return nil
}

// Message returns the user-visible message carried by st, if any.
func Message(st Status) string {
	switch s := st.(type) {
	case Idle:
		return s.Notice
	case Failed:
		return s.Message
	}
	return ""
}
