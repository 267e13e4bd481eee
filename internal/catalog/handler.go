package catalog

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/streamie/streamie/internal/auth"
	"github.com/streamie/streamie/internal/httputil"
	"github.com/streamie/streamie/internal/metrics"
	"github.com/streamie/streamie/internal/retry"
	"github.com/streamie/streamie/internal/validate"
)

// ActivityRecorder appends an entry to a signed-in user's activity log.
type ActivityRecorder interface {
	Record(r *http.Request, userID, action string, itemID int, itemTitle string) error
}

type Handler struct {
	client    *Client
	sequencer *Sequencer
	activity  ActivityRecorder
}

func NewHandler(client *Client) *Handler {
	return &Handler{client: client, sequencer: NewSequencer()}
}

func (h *Handler) SetActivityRecorder(a ActivityRecorder) {
	h.activity = a
}

type searchResponse struct {
	Page[Item]
	Seq   uint64 `json:"seq"`
	Stale bool   `json:"stale,omitempty"`
}

type genresResponse struct {
	Genres []Genre `json:"genres"`
}

type languagesResponse struct {
	Languages []Language `json:"languages"`
}

func (h *Handler) Discover(w http.ResponseWriter, r *http.Request) {
	kind, ok := ParseKind(chi.URLParam(r, "kind"))
	if !ok {
		httputil.WriteError(w, http.StatusBadRequest, "kind must be movie or tv")
		return
	}
	params, err := ParseDiscoverParams(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.client.Discover(r.Context(), kind, params)
	if err != nil {
		h.writeCatalogError(w, r, MessageDiscover, err)
		return
	}
	if params.Page == 1 && params.Filtered() {
		h.record(r, "filter", 0, params.Describe())
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

// Search answers the visitor's latest query only. An older request still in
// flight when a newer one starts is cancelled and answers stale with no results.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if msg := validate.SearchQuery(q); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}
	page, err := intParam(r.URL.Query(), "page", 1, MaxPage)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	var clientSeq uint64
	if raw := r.URL.Query().Get("seq"); raw != "" {
		clientSeq, err = strconv.ParseUint(raw, 10, 64)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, "seq must be a non-negative integer")
			return
		}
	}

	ctx, ticket := h.sequencer.Begin(r.Context(), searchKey(r))
	defer ticket.Done()
	seq := ticket.Seq
	if clientSeq > 0 {
		seq = clientSeq
	}

	result, err := h.client.Search(ctx, q, page)
	if ticket.Stale() {
		metrics.CatalogRequestsTotal.WithLabelValues("search", "stale").Inc()
		httputil.WriteJSON(w, http.StatusOK, searchResponse{Page: Page[Item]{Results: []Item{}}, Seq: seq, Stale: true})
		return
	}
	if err != nil {
		h.writeCatalogError(w, r, MessageSearch, err)
		return
	}
	if len([]rune(q)) >= MinSearchLength {
		h.record(r, "search", 0, q)
	}
	httputil.WriteJSON(w, http.StatusOK, searchResponse{Page: result, Seq: seq})
}

func (h *Handler) Genres(w http.ResponseWriter, r *http.Request) {
	kind, ok := ParseKind(chi.URLParam(r, "kind"))
	if !ok {
		httputil.WriteError(w, http.StatusBadRequest, "kind must be movie or tv")
		return
	}
	genres, err := h.client.Genres(r.Context(), kind)
	if err != nil {
		h.writeCatalogError(w, r, MessageGenres, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, genresResponse{Genres: genres})
}

func (h *Handler) Languages(w http.ResponseWriter, r *http.Request) {
	languages, err := h.client.Languages(r.Context())
	if err != nil {
		h.writeCatalogError(w, r, MessageLanguages, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, languagesResponse{Languages: languages})
}

func (h *Handler) Recommendations(w http.ResponseWriter, r *http.Request) {
	kind, ok := ParseKind(chi.URLParam(r, "kind"))
	if !ok {
		httputil.WriteError(w, http.StatusBadRequest, "kind must be movie or tv")
		return
	}
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		httputil.WriteError(w, http.StatusBadRequest, "id must be a positive integer")
		return
	}
	page, err := intParam(r.URL.Query(), "page", 1, MaxPage)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.client.Recommendations(r.Context(), kind, id, page)
	if err != nil {
		h.writeCatalogError(w, r, MessageRecommendations, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) writeCatalogError(w http.ResponseWriter, r *http.Request, message string, err error) {
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		slog.Debug("catalog: client went away", "path", r.URL.Path)
		return
	}
	var exhausted *retry.Exhausted
	if errors.As(err, &exhausted) {
		httputil.WriteError(w, http.StatusBadGateway, exhausted.UserMessage())
		return
	}
	slog.Warn("catalog: request failed", "path", r.URL.Path, "error", err)
	httputil.WriteError(w, http.StatusBadGateway, retry.UserMessage(message))
}

func (h *Handler) record(r *http.Request, action string, itemID int, itemTitle string) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" || h.activity == nil {
		return
	}
	if err := h.activity.Record(r, userID, action, itemID, itemTitle); err != nil {
		slog.Warn("catalog: record activity", "action", action, "user_id", userID, "error", err)
	}
}

// searchKey identifies whose searches are sequenced: the visitor cookie, or
// the remote address when the request carries none.
func searchKey(r *http.Request) string {
	if v := auth.VisitorFromContext(r.Context()); v != "" {
		return v
	}
	return r.RemoteAddr
}
