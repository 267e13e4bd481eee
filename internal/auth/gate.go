package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/streamie/streamie/internal/database"
	"github.com/streamie/streamie/internal/httputil"
	"github.com/streamie/streamie/internal/metrics"
)

const (
	SessionCookie   = "session"
	DefaultCacheTTL = 30 * time.Second
)

// ErrNoSession means the request carries no valid session.
var ErrNoSession = errors.New("auth: no valid session")

type UserSummary struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email,omitempty"`
	PhotoURL    string `json:"photoUrl,omitempty"`
}

type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	User      UserSummary
}

type contextKey string

const sessionKey contextKey = "session"

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey).(*Session)
	return s, ok && s != nil
}

func UserIDFromContext(ctx context.Context) string {
	if s, ok := SessionFromContext(ctx); ok {
		return s.UserID
	}
	return ""
}

type cachedSession struct {
	session *Session
	until   time.Time
}

// Gate resolves the session cookie to a session row and remembers the answer
// per session id for a short TTL. A nil cached session is a remembered miss.
type Gate struct {
	db     database.DBTX
	secret string
	ttl    time.Duration
	now    func() time.Time

	mu    sync.Mutex
	cache map[string]cachedSession
}

func NewGate(db database.DBTX, secret string, ttl time.Duration) *Gate {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Gate{
		db:     db,
		secret: secret,
		ttl:    ttl,
		now:    time.Now,
		cache:  make(map[string]cachedSession),
	}
}

// Current returns the request's session, or ErrNoSession.
func (g *Gate) Current(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil || cookie.Value == "" {
		return nil, ErrNoSession
	}
	claims, err := ValidateToken(g.secret, cookie.Value)
	if err != nil {
		return nil, ErrNoSession
	}

	if s, ok := g.cached(claims.SessionID); ok {
		metrics.SessionCacheTotal.WithLabelValues("hit").Inc()
		if s == nil || s.UserID != claims.UserID {
			return nil, ErrNoSession
		}
		return s, nil
	}
	metrics.SessionCacheTotal.WithLabelValues("miss").Inc()

	s, err := g.lookup(r.Context(), claims.SessionID)
	if err != nil {
		if errors.Is(err, ErrNoSession) {
			g.store(claims.SessionID, nil, g.now().Add(g.ttl))
		}
		return nil, err
	}
	if s.UserID != claims.UserID {
		return nil, ErrNoSession
	}

	until := g.now().Add(g.ttl)
	if s.ExpiresAt.Before(until) {
		until = s.ExpiresAt
	}
	g.store(s.ID, s, until)
	return s, nil
}

// Invalidate drops the cached status so the next request reads the row again.
func (g *Gate) Invalidate(sessionID string) {
	g.mu.Lock()
	delete(g.cache, sessionID)
	g.mu.Unlock()
}

func (g *Gate) cached(sessionID string) (*Session, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	entry, ok := g.cache[sessionID]
	if !ok {
		return nil, false
	}
	if !g.now().Before(entry.until) {
		delete(g.cache, sessionID)
		return nil, false
	}
	return entry.session, true
}

func (g *Gate) store(sessionID string, s *Session, until time.Time) {
	g.mu.Lock()
	g.cache[sessionID] = cachedSession{session: s, until: until}
	g.mu.Unlock()
}

func (g *Gate) lookup(ctx context.Context, sessionID string) (*Session, error) {
	s := &Session{ID: sessionID}
	var revoked bool
	err := g.db.QueryRow(ctx,
		`SELECT s.user_id, s.expires_at, s.revoked, u.display_name, u.email, u.photo_url
		 FROM sessions s JOIN users u ON u.id = s.user_id
		 WHERE s.id = $1`,
		sessionID,
	).Scan(&s.UserID, &s.ExpiresAt, &revoked, &s.User.DisplayName, &s.User.Email, &s.User.PhotoURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	if revoked || !g.now().Before(s.ExpiresAt) {
		return nil, ErrNoSession
	}
	s.User.ID = s.UserID
	return s, nil
}

// Sweep removes expired cache entries.
func (g *Gate) Sweep() {
	now := g.now()
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, entry := range g.cache {
		if !now.Before(entry.until) {
			delete(g.cache, id)
		}
	}
}

// Run sweeps the cache every TTL until ctx is done.
func (g *Gate) Run(ctx context.Context) {
	ticker := time.NewTicker(g.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Sweep()
		}
	}
}

// Require rejects requests without a valid session.
func (g *Gate) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := g.Current(r)
		if err != nil {
			if !errors.Is(err, ErrNoSession) {
				slog.Error("auth: resolve session", "error", err)
			}
			httputil.WriteFailure(w, http.StatusUnauthorized, "User not authenticated")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
	})
}

// Optional attaches the session when there is one and never rejects.
func (g *Gate) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := g.Current(r)
		if err != nil {
			if !errors.Is(err, ErrNoSession) {
				slog.Error("auth: resolve session", "error", err)
			}
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
	})
}
