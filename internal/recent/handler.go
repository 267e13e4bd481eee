package recent

import (
	"log/slog"
	"net/http"

	"github.com/streamie/streamie/internal/auth"
	"github.com/streamie/streamie/internal/httputil"
)

const maxTouchBodyBytes = 16 << 10

// ActivityRecorder appends an entry to a signed-in user's activity log.
type ActivityRecorder interface {
	Record(r *http.Request, userID, action string, itemID int, itemTitle string) error
}

type Handler struct {
	cache    *Cache
	activity ActivityRecorder
}

func NewHandler(cache *Cache) *Handler {
	return &Handler{cache: cache}
}

func (h *Handler) SetActivityRecorder(a ActivityRecorder) {
	h.activity = a
}

type listResponse struct {
	Success bool   `json:"success"`
	Items   []Item `json:"items"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.cache.List(r.Context(), auth.VisitorFromContext(r.Context()))
	if err != nil {
		slog.Error("recent: list", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "could not load recently watched")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Success: true, Items: items})
}

func (h *Handler) Touch(w http.ResponseWriter, r *http.Request) {
	var item Item
	if err := httputil.DecodeJSON(w, r, maxTouchBodyBytes, &item); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := item.Validate(); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}
	if item.MediaKind == "" {
		item.MediaKind = KindMovie
	}

	items, err := h.cache.Touch(r.Context(), auth.VisitorFromContext(r.Context()), item)
	if err != nil {
		slog.Error("recent: touch", "item_id", item.ID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "could not update recently watched")
		return
	}

	if userID := auth.UserIDFromContext(r.Context()); userID != "" && h.activity != nil {
		if err := h.activity.Record(r, userID, "view", item.ID, item.Title); err != nil {
			slog.Warn("recent: record view", "user_id", userID, "item_id", item.ID, "error", err)
		}
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Success: true, Items: items})
}

func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.cache.Clear(r.Context(), auth.VisitorFromContext(r.Context())); err != nil {
		slog.Error("recent: clear", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "could not clear recently watched")
		return
	}

	if userID := auth.UserIDFromContext(r.Context()); userID != "" && h.activity != nil {
		if err := h.activity.Record(r, userID, "clear_history", 0, ""); err != nil {
			slog.Warn("recent: record clear_history", "user_id", userID, "error", err)
		}
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Success: true, Items: []Item{}})
}
