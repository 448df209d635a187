package web

import (
	"context"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/felixgeelhaar/storefront/internal/log"
	"github.com/felixgeelhaar/storefront/internal/metrics"
	"github.com/felixgeelhaar/storefront/internal/session"
)

// VisitorCookie identifies a browser across requests.
const VisitorCookie = "storefront_visitor"

const visitorCookieMaxAge = 30 * 24 * time.Hour

// Visitor is one browser and the session store it owns.
type Visitor struct {
	ID    string
	Store *session.Store

	limiter *rate.Limiter
}

// StoreFactory opens the session store for a visitor id.
type StoreFactory func(ctx context.Context, visitorID string) (*session.Store, error)

// Registry keeps the stores of recently active visitors in memory. An
// evicted visitor is rebuilt from persisted storage on its next request.
type Registry struct {
	mu      sync.Mutex
	cache   *expirable.LRU[string, *Visitor]
	opens   singleflight.Group
	open    StoreFactory
	active  atomic.Int64
	metrics *metrics.Metrics
	logger  *log.Logger

	loginRate   rate.Limit
	loginBurst  int
	initTimeout time.Duration

	addrMu    sync.Mutex
	addresses *expirable.LRU[string, *rate.Limiter]
	addrRate  rate.Limit
	addrBurst int
}

// NewRegistry creates a registry that holds up to size visitors for ttl
// after their last use.
func NewRegistry(open StoreFactory, cfg Config, m *metrics.Metrics, logger *log.Logger) *Registry {
	r := &Registry{
		open:        open,
		metrics:     m,
		logger:      logger,
		loginRate:   rate.Limit(cfg.LoginRate),
		loginBurst:  cfg.LoginBurst,
		initTimeout: cfg.InitTimeout,
		addrRate:    rate.Limit(cfg.AddressLoginRate),
		addrBurst:   cfg.AddressLoginBurst,
	}
	r.cache = expirable.NewLRU[string, *Visitor](cfg.MaxVisitors, r.evicted, cfg.VisitorTTL)
	r.addresses = expirable.NewLRU[string, *rate.Limiter](cfg.MaxVisitors, nil, cfg.VisitorTTL)
	return r
}

func (r *Registry) evicted(_ string, _ *Visitor) {
	r.metrics.SetActiveVisitors(int(r.active.Add(-1)))
}

// Len returns the number of visitors held in memory.
func (r *Registry) Len() int {
	return r.cache.Len()
}

// Get returns the visitor for id, opening its store on a miss. A restored
// session is confirmed in the background, so the first request of a
// returning visitor may see a loading session. Concurrent misses for one id
// share a single open; misses for different ids do not wait on each other.
func (r *Registry) Get(ctx context.Context, id string) (*Visitor, error) {
	if v, ok := r.cache.Get(id); ok {
		return v, nil
	}

	res, err, _ := r.opens.Do(id, func() (interface{}, error) {
		if v, ok := r.cache.Get(id); ok {
			return v, nil
		}
		store, err := r.open(ctx, id)
		if err != nil {
			return nil, err
		}
		v := &Visitor{
			ID:      id,
			Store:   store,
			limiter: rate.NewLimiter(r.loginRate, r.loginBurst),
		}

		r.mu.Lock()
		if existing, ok := r.cache.Peek(id); ok {
			r.mu.Unlock()
			return existing, nil
		}
		r.cache.Add(id, v)
		r.metrics.SetActiveVisitors(int(r.active.Add(1)))
		r.mu.Unlock()

		if _, restoring := store.Status().(session.Loading); restoring {
			go r.initialize(context.WithoutCancel(ctx), v)
		}
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*Visitor), nil
}

// AllowSignIn charges one sign-in attempt to the visitor and to the client
// address. Both budgets must have room.
func (r *Registry) AllowSignIn(v *Visitor, addr string) bool {
	visitorOK := v.limiter.Allow()

	r.addrMu.Lock()
	limiter, ok := r.addresses.Get(addr)
	if !ok {
		limiter = rate.NewLimiter(r.addrRate, r.addrBurst)
		r.addresses.Add(addr, limiter)
	}
	r.addrMu.Unlock()

	return limiter.Allow() && visitorOK
}

// clientAddress is the host part of the peer address. Forwarding headers
// are not trusted.
func clientAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (r *Registry) initialize(ctx context.Context, v *Visitor) {
	ctx, cancel := context.WithTimeout(ctx, r.initTimeout)
	defer cancel()
	if err := v.Store.Initialize(ctx); err != nil {
		r.logger.DebugContext(ctx, "visitor session not restored", "visitor", v.ID, "error", err.Error())
	}
}

type visitorKey struct{}

// VisitorFrom returns the visitor attached by the middleware.
func VisitorFrom(ctx context.Context) *Visitor {
	v, _ := ctx.Value(visitorKey{}).(*Visitor)
	return v
}

// middleware resolves the visitor cookie, issuing a new id when it is
// missing or malformed, and attaches the visitor to the request context.
func (h *Handler) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ""
		if c, err := r.Cookie(VisitorCookie); err == nil {
			if _, err := uuid.Parse(c.Value); err == nil {
				id = c.Value
			}
		}
		if id == "" {
			id = uuid.NewString()
			http.SetCookie(w, h.cookie(VisitorCookie, id, visitorCookieMaxAge))
		}

		v, err := h.visitors.Get(r.Context(), id)
		if err != nil {
			h.logger.LogError(r.Context(), "failed to open visitor session", err)
			h.renderError(w, r, http.StatusServiceUnavailable, "Your session could not be loaded. Please try again shortly.")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), visitorKey{}, v)))
	})
}

func (h *Handler) cookie(name, value string, maxAge time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
}
