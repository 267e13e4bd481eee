package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/streamie/streamie/internal/auth"
	"github.com/streamie/streamie/internal/database"
	"github.com/streamie/streamie/internal/httputil"
	"github.com/streamie/streamie/internal/recent"
)

const maxBodyBytes = 16 << 10

// Movie is a saved item: the catalog fields plus when it was saved.
type Movie struct {
	recent.Item
	SavedAt time.Time `json:"savedAt"`
}

type Handler struct {
	db       database.DBTX
	recorder *Recorder
}

func NewHandler(db database.DBTX, recorder *Recorder) *Handler {
	return &Handler{db: db, recorder: recorder}
}

type moviesResponse struct {
	Success bool    `json:"success"`
	Movies  []Movie `json:"movies"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type activityRequest struct {
	Action    string `json:"action"`
	ItemID    int    `json:"itemId"`
	ItemTitle string `json:"itemTitle"`
}

type activityResponse struct {
	Success  bool       `json:"success"`
	Activity []Activity `json:"activity"`
}

func (h *Handler) ListMovies(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	movies, err := h.savedMovies(r.Context(), userID)
	if err != nil {
		slog.Error("library: list saved movies", "user_id", userID, "error", err)
		httputil.WriteFailure(w, http.StatusInternalServerError, "could not load saved movies")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, moviesResponse{Success: true, Movies: movies})
}

func (h *Handler) SaveMovie(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	var item recent.Item
	if err := httputil.DecodeJSON(w, r, maxBodyBytes, &item); err != nil {
		httputil.WriteFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := item.Validate(); msg != "" {
		httputil.WriteFailure(w, http.StatusBadRequest, msg)
		return
	}
	if item.MediaKind == "" {
		item.MediaKind = recent.KindMovie
	}

	_, err := h.db.Exec(r.Context(),
		`INSERT INTO saved_movies (user_id, movie_id, title, poster_path, backdrop_path, vote_average, release_date, overview, media_type)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (user_id, movie_id) DO UPDATE SET
		   title = EXCLUDED.title,
		   poster_path = EXCLUDED.poster_path,
		   backdrop_path = EXCLUDED.backdrop_path,
		   vote_average = EXCLUDED.vote_average,
		   release_date = EXCLUDED.release_date,
		   overview = EXCLUDED.overview,
		   media_type = EXCLUDED.media_type,
		   saved_at = now()`,
		userID, item.ID, strings.TrimSpace(item.Title), item.PosterPath, item.BackdropPath,
		item.Rating, item.ReleaseDate, item.Overview, string(item.MediaKind),
	)
	if err != nil {
		slog.Error("library: save movie", "user_id", userID, "movie_id", item.ID, "error", err)
		httputil.WriteFailure(w, http.StatusInternalServerError, "could not save movie")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Movie saved"})
}

func (h *Handler) DeleteMovie(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		httputil.WriteFailure(w, http.StatusBadRequest, "id must be a positive integer")
		return
	}

	tag, err := h.db.Exec(r.Context(),
		`DELETE FROM saved_movies WHERE user_id = $1 AND movie_id = $2`,
		userID, id,
	)
	if err != nil {
		slog.Error("library: delete movie", "user_id", userID, "movie_id", id, "error", err)
		httputil.WriteFailure(w, http.StatusInternalServerError, "could not delete movie")
		return
	}
	if tag.RowsAffected() == 0 {
		httputil.WriteFailure(w, http.StatusNotFound, "movie not found")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Movie removed"})
}

func (h *Handler) TrackActivity(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	var req activityRequest
	if err := httputil.DecodeJSON(w, r, maxBodyBytes, &req); err != nil {
		httputil.WriteFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Action == "" {
		httputil.WriteFailure(w, http.StatusBadRequest, "action is required")
		return
	}

	if err := h.recorder.Record(r, userID, req.Action, req.ItemID, req.ItemTitle); err != nil {
		if errors.Is(err, ErrInvalid) {
			httputil.WriteFailure(w, http.StatusBadRequest, strings.TrimPrefix(err.Error(), ErrInvalid.Error()+": "))
			return
		}
		slog.Error("library: track activity", "user_id", userID, "action", req.Action, "error", err)
		httputil.WriteFailure(w, http.StatusInternalServerError, "could not record activity")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.FailureBody{Success: true})
}

func (h *Handler) ListActivity(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	limit := DefaultActivityLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httputil.WriteFailure(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := h.recorder.Recent(r.Context(), userID, limit)
	if err != nil {
		slog.Error("library: list activity", "user_id", userID, "error", err)
		httputil.WriteFailure(w, http.StatusInternalServerError, "could not load activity")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, activityResponse{Success: true, Activity: entries})
}

func (h *Handler) savedMovies(ctx context.Context, userID string) ([]Movie, error) {
	rows, err := h.db.Query(ctx,
		`SELECT movie_id, title, poster_path, backdrop_path, vote_average, release_date, overview, media_type, saved_at
		 FROM saved_movies WHERE user_id = $1 ORDER BY saved_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query saved movies: %w", err)
	}
	defer rows.Close()

	movies := make([]Movie, 0)
	for rows.Next() {
		var m Movie
		var kind string
		if err := rows.Scan(&m.ID, &m.Title, &m.PosterPath, &m.BackdropPath, &m.Rating,
			&m.ReleaseDate, &m.Overview, &kind, &m.SavedAt); err != nil {
			return nil, fmt.Errorf("scan saved movie: %w", err)
		}
		m.MediaKind = recent.MediaKind(kind)
		movies = append(movies, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate saved movies: %w", err)
	}
	return movies, nil
}
