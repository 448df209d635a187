// Package events publishes session lifecycle events for downstream
// consumers (analytics, fraud checks, audit).
package events

import (
	"context"
	"sync"
	"time"
)

// Event types
const (
	EventSessionLogin   = "session.login"
	EventSessionLogout  = "session.logout"
	EventSessionExpired = "session.expired"
)

// SessionEvent describes a change of who is signed in.
type SessionEvent struct {
	Type      string                 `json:"type"`
	UserID    string                 `json:"user_id"`
	Method    string                 `json:"method,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Publisher delivers session events. Publish failures never affect the
// session itself; callers log them and move on.
type Publisher interface {
	Publish(ctx context.Context, event SessionEvent) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, SessionEvent) error { return nil }
func (Nop) Close() error                                { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []SessionEvent
}

// Publish appends event.
func (r *Recorder) Publish(_ context.Context, event SessionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Close is a no-op.
func (r *Recorder) Close() error { return nil }

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []SessionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SessionEvent(nil), r.events...)
}

// Types returns the type of every published event in order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, len(r.events))
	for i, e := range r.events {
		types[i] = e.Type
	}
	return types
}
