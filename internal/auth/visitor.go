package auth

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

const (
	VisitorCookie = "visitor"
	visitorMaxAge = 365 * 24 * 60 * 60
)

const visitorKey contextKey = "visitor"

func WithVisitor(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, visitorKey, id)
}

// VisitorFromContext returns the anonymous visitor id, or "" outside VisitorMiddleware.
func VisitorFromContext(ctx context.Context) string {
	id, _ := ctx.Value(visitorKey).(string)
	return id
}

// VisitorMiddleware gives every browser a stable anonymous id. A missing or
// malformed cookie is replaced with a fresh uuid.
func VisitorMiddleware(secureCookies bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id string
			if c, err := r.Cookie(VisitorCookie); err == nil {
				if parsed, err := uuid.Parse(c.Value); err == nil {
					id = parsed.String()
				}
			}
			if id == "" {
				id = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     VisitorCookie,
					Value:    id,
					Path:     "/",
					HttpOnly: true,
					Secure:   secureCookies,
					SameSite: http.SameSiteLaxMode,
					MaxAge:   visitorMaxAge,
				})
			}
			next.ServeHTTP(w, r.WithContext(WithVisitor(r.Context(), id)))
		})
	}
}
