package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/streamie/streamie/internal/database"
	"github.com/streamie/streamie/internal/httputil"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	stateCookie         = "oauth_state"
	stateMaxAge         = 10 * 60
	DefaultUserInfoURL  = "https://www.googleapis.com/oauth2/v2/userinfo"
	maxUserInfoBodySize = 1 << 20
)

// GoogleConfig builds the OAuth2 config for Google sign-in.
func GoogleConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{"openid", "profile", "email"},
		Endpoint:     google.Endpoint,
	}
}

type Handler struct {
	db            database.DBTX
	gate          *Gate
	oauth         *oauth2.Config
	secret        string
	secureCookies bool
	userInfoURL   string
}

// NewHandler wires the sign-in and session endpoints. oauth may be nil, in
// which case sign-in answers 503 and the rest keeps working.
func NewHandler(db database.DBTX, gate *Gate, oauth *oauth2.Config, secret string, secureCookies bool) *Handler {
	return &Handler{
		db:            db,
		gate:          gate,
		oauth:         oauth,
		secret:        secret,
		secureCookies: secureCookies,
		userInfoURL:   DefaultUserInfoURL,
	}
}

func (h *Handler) SetUserInfoURL(url string) {
	h.userInfoURL = url
}

type googleUser struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

type checkAuthResponse struct {
	IsAuthenticated bool         `json:"isAuthenticated"`
	User            *UserSummary `json:"user,omitempty"`
}

type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func (h *Handler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	if h.oauth == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "google sign-in is not configured")
		return
	}
	state, err := httputil.RandomToken(16)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to start sign-in")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/auth/google",
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   stateMaxAge,
	})
	http.Redirect(w, r, h.oauth.AuthCodeURL(state), http.StatusFound)
}

func (h *Handler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	if h.oauth == nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	h.clearCookie(w, stateCookie, "/auth/google")

	cookie, err := r.Cookie(stateCookie)
	state := r.URL.Query().Get("state")
	if err != nil || state == "" || cookie.Value != state {
		slog.Warn("auth: oauth state mismatch")
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		slog.Warn("auth: oauth callback without code", "error", r.URL.Query().Get("error"))
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	token, err := h.oauth.Exchange(r.Context(), code)
	if err != nil {
		slog.Warn("auth: token exchange failed", "error", err)
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	profile, err := h.fetchUserInfo(r.Context(), token)
	if err != nil {
		slog.Warn("auth: fetch userinfo failed", "error", err)
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	userID, err := h.upsertUser(r.Context(), profile)
	if err != nil {
		slog.Error("auth: upsert user", "error", err)
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	if err := h.startSession(r.Context(), w, userID); err != nil {
		slog.Error("auth: create session", "user_id", userID, "error", err)
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	slog.Info("auth: signed in", "user_id", userID)
	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *Handler) CheckAuth(w http.ResponseWriter, r *http.Request) {
	s, err := h.gate.Current(r)
	if err != nil {
		if !errors.Is(err, ErrNoSession) {
			slog.Error("auth: check-auth", "error", err)
		}
		httputil.WriteJSON(w, http.StatusOK, checkAuthResponse{IsAuthenticated: false})
		return
	}
	user := s.User
	httputil.WriteJSON(w, http.StatusOK, checkAuthResponse{IsAuthenticated: true, User: &user})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		if claims, err := ValidateToken(h.secret, cookie.Value); err == nil {
			if err := h.revokeSession(r.Context(), claims.SessionID); err != nil {
				slog.Error("auth: revoke session", "error", err)
			}
			h.gate.Invalidate(claims.SessionID)
		}
	}
	h.clearCookie(w, SessionCookie, "/")
	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *Handler) PingSession(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, successResponse{Success: true})
}

// RefreshSession swaps a valid session for a new one with a fresh expiry.
func (h *Handler) RefreshSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.gate.Current(r)
	if err != nil {
		if !errors.Is(err, ErrNoSession) {
			slog.Error("auth: refresh session", "error", err)
		}
		httputil.WriteJSON(w, http.StatusUnauthorized, successResponse{Success: false, Message: "Session expired"})
		return
	}

	if err := h.revokeSession(r.Context(), s.ID); err != nil {
		slog.Error("auth: revoke session", "error", err)
		httputil.WriteJSON(w, http.StatusInternalServerError, successResponse{Success: false, Message: "Could not refresh session"})
		return
	}
	h.gate.Invalidate(s.ID)

	if err := h.startSession(r.Context(), w, s.UserID); err != nil {
		slog.Error("auth: create session", "user_id", s.UserID, "error", err)
		httputil.WriteJSON(w, http.StatusInternalServerError, successResponse{Success: false, Message: "Could not refresh session"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, successResponse{Success: true})
}

func (h *Handler) fetchUserInfo(ctx context.Context, token *oauth2.Token) (googleUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.userInfoURL, nil)
	if err != nil {
		return googleUser{}, fmt.Errorf("build userinfo request: %w", err)
	}
	resp, err := h.oauth.Client(ctx, token).Do(req)
	if err != nil {
		return googleUser{}, fmt.Errorf("userinfo request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return googleUser{}, fmt.Errorf("userinfo status %d", resp.StatusCode)
	}
	var profile googleUser
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxUserInfoBodySize)).Decode(&profile); err != nil {
		return googleUser{}, fmt.Errorf("decode userinfo: %w", err)
	}
	if profile.ID == "" {
		return googleUser{}, errors.New("userinfo without id")
	}
	return profile, nil
}

func (h *Handler) upsertUser(ctx context.Context, profile googleUser) (string, error) {
	var userID string
	err := h.db.QueryRow(ctx,
		`INSERT INTO users (google_id, display_name, email, photo_url) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (google_id) DO UPDATE SET display_name = EXCLUDED.display_name,
		   email = EXCLUDED.email, photo_url = EXCLUDED.photo_url, updated_at = now()
		 RETURNING id`,
		profile.ID, profile.Name, profile.Email, profile.Picture,
	).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (h *Handler) startSession(ctx context.Context, w http.ResponseWriter, userID string) error {
	sessionID := uuid.NewString()
	expiresAt := time.Now().Add(SessionDuration)
	if _, err := h.db.Exec(ctx,
		"INSERT INTO sessions (id, user_id, expires_at) VALUES ($1, $2, $3)",
		sessionID, userID, expiresAt,
	); err != nil {
		return err
	}

	token, err := GenerateSessionToken(h.secret, userID, sessionID, expiresAt)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(SessionDuration / time.Second),
	})
	return nil
}

func (h *Handler) revokeSession(ctx context.Context, sessionID string) error {
	_, err := h.db.Exec(ctx, "UPDATE sessions SET revoked = true, revoked_at = now() WHERE id = $1", sessionID)
	return err
}

func (h *Handler) clearCookie(w http.ResponseWriter, name, path string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
