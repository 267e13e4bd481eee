package playback

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/streamie/streamie/internal/auth"
	"github.com/streamie/streamie/internal/httputil"
	"github.com/streamie/streamie/internal/recent"
)

// ActivityRecorder appends an entry to a signed-in user's activity log.
type ActivityRecorder interface {
	Record(r *http.Request, userID, action string, itemID int, itemTitle string) error
}

type Handler struct {
	template string
	recents  *recent.Cache
	activity ActivityRecorder
}

func NewHandler(template string) *Handler {
	return &Handler{template: template}
}

// SetRecentCache enables touching the recency list on play.
func (h *Handler) SetRecentCache(c *recent.Cache) {
	h.recents = c
}

func (h *Handler) SetActivityRecorder(a ActivityRecorder) {
	h.activity = a
}

type playResponse struct {
	Success bool   `json:"success"`
	URL     string `json:"url"`
}

func (h *Handler) Play(w http.ResponseWriter, r *http.Request) {
	kind, ok := recent.ParseKind(chi.URLParam(r, "kind"))
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if !ok || err != nil {
		httputil.WriteFailure(w, http.StatusBadRequest, ErrInvalid.Error())
		return
	}
	playURL, err := URL(h.template, kind, id)
	if err != nil {
		httputil.WriteFailure(w, http.StatusBadRequest, err.Error())
		return
	}

	item, hasItem := itemFromQuery(r.URL.Query(), kind, id)

	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		slog.Info("playback: play_restricted", "kind", kind, "item_id", id, "visitor", auth.VisitorFromContext(r.Context()))
		httputil.WriteFailure(w, http.StatusUnauthorized, "login required")
		return
	}

	if h.activity != nil {
		title := ""
		if hasItem {
			title = item.Title
		}
		if err := h.activity.Record(r, userID, "play", id, title); err != nil {
			slog.Warn("playback: record play", "user_id", userID, "item_id", id, "error", err)
		}
	}
	if hasItem && h.recents != nil {
		if _, err := h.recents.Touch(r.Context(), auth.VisitorFromContext(r.Context()), item); err != nil {
			slog.Warn("playback: touch recent", "item_id", id, "error", err)
		}
	}

	httputil.WriteJSON(w, http.StatusOK, playResponse{Success: true, URL: playURL})
}

// itemFromQuery reads the optional item description sent along with a play
// request. ok is false without a usable title.
func itemFromQuery(q url.Values, kind recent.MediaKind, id int) (item recent.Item, ok bool) {
	item = recent.Item{ID: id, Title: q.Get("title"), MediaKind: kind}
	item.PosterPath = optional(q, "poster_path")
	item.BackdropPath = optional(q, "backdrop_path")
	item.ReleaseDate = optional(q, "release_date")
	item.Overview = optional(q, "overview")
	if raw := q.Get("vote_average"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			item.Rating = &v
		}
	}
	if item.Title == "" {
		return item, false
	}
	if msg := item.Validate(); msg != "" {
		slog.Debug("playback: ignoring item description", "item_id", id, "reason", msg)
		return item, false
	}
	return item, true
}

func optional(q url.Values, name string) *string {
	if v := q.Get(name); v != "" {
		return &v
	}
	return nil
}
