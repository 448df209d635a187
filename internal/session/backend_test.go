package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/storefront/internal/auth"
	"github.com/felixgeelhaar/storefront/internal/events"
	"github.com/felixgeelhaar/storefront/internal/gateway"
	"github.com/felixgeelhaar/storefront/internal/log"
	"github.com/felixgeelhaar/storefront/internal/storage"
)

// fakeBackend is an in-process auth API. It accepts exactly one access
// token and one refresh token at a time, like a backend that rotates both.
type fakeBackend struct {
	mu       sync.Mutex
	calls    map[string]int
	access   string
	refresh  string
	issued   int
	user     auth.User
	password string

	failLogout    bool
	failOrders    bool
	failMutations bool
	oauthURL      string
	meGate        chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		calls:    map[string]int{},
		password: "secret",
		oauthURL: "https://accounts.example.com/o/oauth2/auth?client_id=storefront",
		user: auth.User{
			ID:       "u-1",
			Email:    "ada@example.com",
			FullName: "Ada",
			Roles:    []auth.Role{auth.RoleCustomer},
		},
	}
}

func (b *fakeBackend) count(endpoint string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[endpoint]
}

// issue rotates both tokens. Callers hold b.mu.
func (b *fakeBackend) issue() auth.Payload {
	b.issued++
	b.access = fmt.Sprintf("access-%d", b.issued)
	b.refresh = fmt.Sprintf("refresh-%d", b.issued)
	return b.payloadLocked()
}

func (b *fakeBackend) payloadLocked() auth.Payload {
	return auth.Payload{
		Session: auth.Tokens{AccessToken: b.access, RefreshToken: b.refresh, ExpiresAt: time.Now().Add(time.Hour).UTC()},
		User:    b.user,
	}
}

func reply(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	endpoint := strings.TrimPrefix(r.URL.Path, "/")

	b.mu.Lock()
	b.calls[endpoint]++
	gate := b.meGate
	b.mu.Unlock()

	if endpoint == gateway.EndpointMe && gate != nil {
		<-gate
	}

	var body map[string]any
	if r.ContentLength > 0 {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	bearerOK := r.Header.Get("Authorization") == "Bearer "+b.access && b.access != ""
	unauthorized := func() { reply(w, http.StatusUnauthorized, map[string]string{"message": "token expired"}) }

	switch endpoint {
	case gateway.EndpointLogin:
		if body["password"] != b.password {
			reply(w, http.StatusUnauthorized, map[string]string{"message": "no user ada@example.com with that password"})
			return
		}
		if role, ok := body["role"].(string); ok && role != "" {
			b.user.Roles = []auth.Role{auth.Role(role)}
		}
		reply(w, http.StatusOK, b.issue())

	case gateway.EndpointRefresh:
		if b.refresh == "" || body["refreshToken"] != b.refresh {
			reply(w, http.StatusUnauthorized, map[string]string{"message": "refresh token revoked"})
			return
		}
		reply(w, http.StatusOK, b.issue())

	case gateway.EndpointMe:
		if !bearerOK {
			unauthorized()
			return
		}
		reply(w, http.StatusOK, b.payloadLocked())

	case gateway.EndpointLogout:
		if b.failLogout {
			reply(w, http.StatusBadGateway, nil)
			return
		}
		b.access, b.refresh = "", ""
		w.WriteHeader(http.StatusNoContent)

	case gateway.EndpointOAuthStart:
		reply(w, http.StatusOK, gateway.OAuthStartResponse{URL: b.oauthURL})

	case gateway.EndpointOAuthComplete:
		if body["code"] != "good-code" {
			reply(w, http.StatusBadRequest, map[string]string{"message": "invalid grant"})
			return
		}
		reply(w, http.StatusOK, b.issue())

	case gateway.EndpointProfile, gateway.EndpointPreferences, gateway.EndpointSecurity:
		if !bearerOK {
			unauthorized()
			return
		}
		if b.failMutations {
			reply(w, http.StatusInternalServerError, map[string]string{"message": "db down"})
			return
		}
		if name, ok := body["fullName"].(string); ok {
			b.user.FullName = name
		}
		if theme, ok := body["theme"].(string); ok {
			b.user.Preferences.Theme = theme
		}
		if on, ok := body["enableTwoFactor"].(bool); ok && on {
			b.user.TwoFactorEnabled = true
		}
		b.user.UpdatedAt = time.Now().UTC()
		reply(w, http.StatusOK, b.payloadLocked())

	case gateway.EndpointOrderSummaries:
		if !bearerOK {
			unauthorized()
			return
		}
		if b.failOrders {
			reply(w, http.StatusServiceUnavailable, nil)
			return
		}
		reply(w, http.StatusOK, []auth.OrderSummary{{ID: "o-1", Status: "delivered", Total: 23.4, ItemCount: 3}})

	default:
		http.NotFound(w, r)
	}
}

type harness struct {
	backend *fakeBackend
	storage *storage.Memory
	events  *events.Recorder
	gw      *gateway.Client
	now     time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	b := newFakeBackend()
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)

	gw, err := gateway.New(gateway.Config{BaseURL: srv.URL}, gateway.WithHTTPClient(srv.Client()), gateway.WithLogger(log.Discard()))
	require.NoError(t, err)

	return &harness{
		backend: b,
		storage: storage.NewMemory(),
		events:  &events.Recorder{},
		gw:      gw,
		now:     time.Now(),
	}
}

func (h *harness) store(t *testing.T) *Store {
	t.Helper()
	s, err := New(context.Background(), Options{
		Gateway: h.gw,
		Storage: h.storage,
		Logger:  log.Discard(),
		Events:  h.events,
		Clock:   func() time.Time { return h.now },
	})
	require.NoError(t, err)
	return s
}

// seed persists a session as if a previous run had signed in.
func (h *harness) seed(t *testing.T, tokens auth.Tokens) {
	t.Helper()
	data, err := json.Marshal(auth.Payload{Session: tokens, User: h.backend.user})
	require.NoError(t, err)
	require.NoError(t, h.storage.Set(context.Background(), DefaultKey, data))
}

// signIn makes the backend accept a fresh token pair and seeds storage
// with it.
func (h *harness) signIn(t *testing.T) auth.Tokens {
	t.Helper()
	h.backend.mu.Lock()
	p := h.backend.issue()
	h.backend.mu.Unlock()
	h.seed(t, p.Session)
	return p.Session
}

func (h *harness) persisted(t *testing.T) *auth.Payload {
	t.Helper()
	data, err := h.storage.Get(context.Background(), DefaultKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	require.NoError(t, err)
	var p auth.Payload
	require.NoError(t, json.Unmarshal(data, &p))
	return &p
}
