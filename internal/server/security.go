package server

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/streamie/streamie/internal/httputil"
)

const imageOrigin = "https://image.tmdb.org"

type SecurityConfig struct {
	BaseURL string
	// PlayerURLTemplate is the embed template; its origin is allowed as a frame source.
	PlayerURLTemplate string
}

func securityHeaders(cfg SecurityConfig) func(http.Handler) http.Handler {
	strictTransport := strings.HasPrefix(cfg.BaseURL, "https://")

	frameSrc := "'none'"
	if origin := originOf(cfg.PlayerURLTemplate); origin != "" {
		frameSrc = origin
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			nonce, err := httputil.NewNonce()
			if err != nil {
				httputil.WriteError(w, http.StatusInternalServerError, "internal error")
				return
			}
			ctx := httputil.ContextWithNonce(r.Context(), nonce)

			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "SAMEORIGIN")
			w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=(), fullscreen=(self)")

			csp := fmt.Sprintf(
				"default-src 'self'; img-src 'self' data: %s; script-src 'self' 'nonce-%s'; style-src 'self' 'nonce-%s'; connect-src 'self'; frame-src %s; frame-ancestors 'self';",
				imageOrigin, nonce, nonce, frameSrc,
			)
			w.Header().Set("Content-Security-Policy", csp)

			if strictTransport {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// originOf returns scheme://host of a URL template, or "" if it has none.
func originOf(template string) string {
	u, err := url.Parse(strings.NewReplacer("{kind}", "movie", "{id}", "1").Replace(template))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
