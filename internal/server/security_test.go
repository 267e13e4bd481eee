package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/streamie/streamie/internal/httputil"
)

func TestSecurityHeaders_CSPContainsNonce(t *testing.T) {
	handler := securityHeaders(SecurityConfig{BaseURL: "https://app.test"})
	var capturedNonce string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedNonce = httputil.NonceFromContext(r.Context())
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	handler(inner).ServeHTTP(rec, req)

	csp := rec.Header().Get("Content-Security-Policy")
	if !strings.Contains(csp, "'nonce-"+capturedNonce+"'") {
		t.Errorf("CSP should contain nonce, got: %s", csp)
	}
	if capturedNonce == "" {
		t.Error("expected non-empty nonce in context")
	}
}

func TestSecurityHeaders_CSPOmitsUnsafeInline(t *testing.T) {
	handler := securityHeaders(SecurityConfig{BaseURL: "https://app.test"})
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	handler(inner).ServeHTTP(rec, req)

	csp := rec.Header().Get("Content-Security-Policy")
	if strings.Contains(csp, "'unsafe-inline'") {
		t.Errorf("CSP should not contain 'unsafe-inline', got: %s", csp)
	}
}

func TestSecurityHeaders_CSPAllowsCatalogImages(t *testing.T) {
	handler := securityHeaders(SecurityConfig{BaseURL: "https://app.test"})
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	handler(inner).ServeHTTP(rec, req)

	csp := rec.Header().Get("Content-Security-Policy")
	if !strings.Contains(csp, "img-src 'self' data: https://image.tmdb.org;") {
		t.Errorf("CSP img-src should include the image CDN, got: %s", csp)
	}
	if !strings.Contains(csp, "connect-src 'self';") {
		t.Errorf("CSP connect-src should be just 'self', got: %s", csp)
	}
}

func TestSecurityHeaders_FrameSrcFromPlayerTemplate(t *testing.T) {
	handler := securityHeaders(SecurityConfig{
		BaseURL:           "https://app.test",
		PlayerURLTemplate: "https://vidsrc.xyz/embed/{kind}/{id}",
	})
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	handler(inner).ServeHTTP(rec, req)

	csp := rec.Header().Get("Content-Security-Policy")
	if !strings.Contains(csp, "frame-src https://vidsrc.xyz;") {
		t.Errorf("CSP frame-src should allow the player origin, got: %s", csp)
	}
}

func TestSecurityHeaders_FrameSrcNoneWithoutPlayer(t *testing.T) {
	handler := securityHeaders(SecurityConfig{BaseURL: "https://app.test"})
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	handler(inner).ServeHTTP(rec, req)

	csp := rec.Header().Get("Content-Security-Policy")
	if !strings.Contains(csp, "frame-src 'none';") {
		t.Errorf("CSP frame-src should be 'none' without a player, got: %s", csp)
	}
}

func TestOriginOf(t *testing.T) {
	tests := map[string]string{
		"https://vidsrc.xyz/embed/{kind}/{id}": "https://vidsrc.xyz",
		"http://localhost:9000/p/{id}":         "http://localhost:9000",
		"/relative/{id}":                       "",
		"":                                     "",
	}
	for in, want := range tests {
		if got := originOf(in); got != want {
			t.Errorf("originOf(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSecurityHeaders_NonceInContext(t *testing.T) {
	handler := securityHeaders(SecurityConfig{BaseURL: "https://app.test"})
	var nonce string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nonce = httputil.NonceFromContext(r.Context())
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	handler(inner).ServeHTTP(rec, req)

	if nonce == "" {
		t.Error("expected non-empty nonce in request context")
	}
}

func TestSecurityHeaders_UniqueNoncePerRequest(t *testing.T) {
	handler := securityHeaders(SecurityConfig{BaseURL: "https://app.test"})
	var nonces []string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nonces = append(nonces, httputil.NonceFromContext(r.Context()))
	})

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		handler(inner).ServeHTTP(rec, req)
	}

	if nonces[0] == nonces[1] || nonces[1] == nonces[2] {
		t.Errorf("expected unique nonces per request, got %v", nonces)
	}
}

func TestSecurityHeaders_PermissionsPolicyDeniesDevices(t *testing.T) {
	handler := securityHeaders(SecurityConfig{BaseURL: "https://app.test"})
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	handler(inner).ServeHTTP(rec, req)

	pp := rec.Header().Get("Permissions-Policy")
	if !strings.Contains(pp, "microphone=()") || !strings.Contains(pp, "camera=()") {
		t.Errorf("Permissions-Policy should deny camera and microphone, got: %s", pp)
	}
	if !strings.Contains(pp, "fullscreen=(self)") {
		t.Errorf("Permissions-Policy should allow fullscreen for the player, got: %s", pp)
	}
}

func TestSecurityHeaders_HSTSOnHTTPS(t *testing.T) {
	handler := securityHeaders(SecurityConfig{BaseURL: "https://app.test"})
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	handler(inner).ServeHTTP(rec, req)

	hsts := rec.Header().Get("Strict-Transport-Security")
	if hsts == "" {
		t.Error("expected HSTS header for HTTPS base URL")
	}
}

func TestSecurityHeaders_NoHSTSOnHTTP(t *testing.T) {
	handler := securityHeaders(SecurityConfig{BaseURL: "http://localhost:8080"})
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	handler(inner).ServeHTTP(rec, req)

	hsts := rec.Header().Get("Strict-Transport-Security")
	if hsts != "" {
		t.Errorf("expected no HSTS for HTTP base URL, got: %s", hsts)
	}
}

func TestSecurityHeaders_FrameAncestorsDefault(t *testing.T) {
	handler := securityHeaders(SecurityConfig{BaseURL: "https://app.test"})
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	handler(inner).ServeHTTP(rec, req)
	csp := rec.Header().Get("Content-Security-Policy")
	if !strings.Contains(csp, "frame-ancestors 'self'") {
		t.Errorf("CSP should contain frame-ancestors 'self', got: %s", csp)
	}
}
