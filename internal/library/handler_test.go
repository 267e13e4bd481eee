package library

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pashagolub/pgxmock/v4"

	"github.com/streamie/streamie/internal/auth"
	"github.com/streamie/streamie/internal/geoip"
	"github.com/streamie/streamie/internal/recent"
)

func newTestRouter(t *testing.T) (http.Handler, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("create pgxmock pool: %v", err)
	}
	geo, _ := geoip.New("")
	h := NewHandler(mock, NewRecorder(mock, geo))

	r := chi.NewRouter()
	r.Get("/api/movies", h.ListMovies)
	r.Post("/api/movies", h.SaveMovie)
	r.Delete("/api/movies/{id}", h.DeleteMovie)
	r.Post("/track-activity", h.TrackActivity)
	r.Get("/api/activity", h.ListActivity)
	return r, mock
}

func signedIn(req *http.Request) *http.Request {
	s := &auth.Session{ID: "sess-1", UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)}
	return req.WithContext(auth.WithSession(req.Context(), s))
}

func decodeFailure(t *testing.T, rec *httptest.ResponseRecorder) (bool, string) {
	t.Helper()
	var body struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body.Success, body.Error
}

func TestListMovies(t *testing.T) {
	router, mock := newTestRouter(t)
	defer mock.Close()

	savedAt := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT movie_id, title`).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"movie_id", "title", "poster_path", "backdrop_path", "vote_average", "release_date", "overview", "media_type", "saved_at"}).
			AddRow(603, "The Matrix", strPtr("/m.jpg"), (*string)(nil), floatPtr(8.2), strPtr("1999-03-31"), (*string)(nil), "movie", savedAt).
			AddRow(1399, "Game of Thrones", (*string)(nil), (*string)(nil), (*float64)(nil), (*string)(nil), (*string)(nil), "tv", savedAt))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, signedIn(httptest.NewRequest(http.MethodGet, "/api/movies", nil)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp moviesResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || len(resp.Movies) != 2 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Movies[0].ID != 603 || *resp.Movies[0].PosterPath != "/m.jpg" || resp.Movies[0].BackdropPath != nil {
		t.Errorf("unexpected first movie %+v", resp.Movies[0])
	}
	if resp.Movies[1].MediaKind != recent.KindShow {
		t.Errorf("expected tv media kind, got %q", resp.Movies[1].MediaKind)
	}
}

func TestListMovies_FlatJSON(t *testing.T) {
	router, mock := newTestRouter(t)
	defer mock.Close()

	mock.ExpectQuery(`SELECT movie_id, title`).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"movie_id", "title", "poster_path", "backdrop_path", "vote_average", "release_date", "overview", "media_type", "saved_at"}).
			AddRow(603, "The Matrix", (*string)(nil), (*string)(nil), (*float64)(nil), (*string)(nil), (*string)(nil), "movie", time.Now()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, signedIn(httptest.NewRequest(http.MethodGet, "/api/movies", nil)))

	body := rec.Body.String()
	for _, field := range []string{`"id":603`, `"title":"The Matrix"`, `"media_type":"movie"`, `"savedAt"`} {
		if !strings.Contains(body, field) {
			t.Errorf("expected body to contain %s, got %s", field, body)
		}
	}
}

func TestListMovies_DatabaseError(t *testing.T) {
	router, mock := newTestRouter(t)
	defer mock.Close()

	mock.ExpectQuery(`SELECT movie_id, title`).WillReturnError(errors.New("connection refused"))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, signedIn(httptest.NewRequest(http.MethodGet, "/api/movies", nil)))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestSaveMovie_Upserts(t *testing.T) {
	router, mock := newTestRouter(t)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO saved_movies`).
		WithArgs("user-1", 603, "The Matrix", strPtr("/m.jpg"), pgxmock.AnyArg(), floatPtr(8.2), pgxmock.AnyArg(), pgxmock.AnyArg(), "movie").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	body := `{"id":603,"title":"The Matrix","poster_path":"/m.jpg","vote_average":8.2}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, signedIn(httptest.NewRequest(http.MethodPost, "/api/movies", strings.NewReader(body))))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp messageResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.Message == "" {
		t.Errorf("unexpected response %+v", resp)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSaveMovie_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"missing id", `{"title":"Alien"}`, "id must be a positive integer"},
		{"missing title", `{"id":348}`, "title is required"},
		{"blank title", `{"id":348,"title":"   "}`, "title is required"},
		{"bad rating", `{"id":348,"title":"Alien","vote_average":11}`, "vote_average must be between 0 and 10"},
		{"bad kind", `{"id":348,"title":"Alien","media_type":"person"}`, "media_type must be movie or tv"},
		{"malformed", `{"id":`, "invalid request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, mock := newTestRouter(t)
			defer mock.Close()

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, signedIn(httptest.NewRequest(http.MethodPost, "/api/movies", strings.NewReader(tt.body))))

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			success, msg := decodeFailure(t, rec)
			if success || msg != tt.wantErr {
				t.Errorf("expected error %q, got success=%v %q", tt.wantErr, success, msg)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("expected no database calls: %v", err)
			}
		})
	}
}

func TestDeleteMovie(t *testing.T) {
	router, mock := newTestRouter(t)
	defer mock.Close()

	mock.ExpectExec(`DELETE FROM saved_movies`).
		WithArgs("user-1", 603).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, signedIn(httptest.NewRequest(http.MethodDelete, "/api/movies/603", nil)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestDeleteMovie_NotFound(t *testing.T) {
	router, mock := newTestRouter(t)
	defer mock.Close()

	mock.ExpectExec(`DELETE FROM saved_movies`).
		WithArgs("user-1", 42).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, signedIn(httptest.NewRequest(http.MethodDelete, "/api/movies/42", nil)))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestDeleteMovie_BadID(t *testing.T) {
	router, mock := newTestRouter(t)
	defer mock.Close()

	for _, id := range []string{"abc", "0", "-5"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, signedIn(httptest.NewRequest(http.MethodDelete, "/api/movies/"+id, nil)))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("id %q: expected 400, got %d", id, rec.Code)
		}
	}
}

func TestTrackActivity(t *testing.T) {
	router, mock := newTestRouter(t)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO activity_log`).
		WithArgs("user-1", ActionView, 348, "Alien", "", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	body := `{"action":"view","itemId":348,"itemTitle":"Alien"}`
	req := signedIn(httptest.NewRequest(http.MethodPost, "/track-activity", strings.NewReader(body)))
	req.Header.Set("User-Agent", chromeUA)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestTrackActivity_RejectsUnknownAction(t *testing.T) {
	router, mock := newTestRouter(t)
	defer mock.Close()

	rec := httptest.NewRecorder()
	body := `{"action":"download","itemId":1}`
	router.ServeHTTP(rec, signedIn(httptest.NewRequest(http.MethodPost, "/track-activity", strings.NewReader(body))))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	_, msg := decodeFailure(t, rec)
	if !strings.Contains(msg, "download") {
		t.Errorf("expected error naming the action, got %q", msg)
	}
}

func TestTrackActivity_RequiresAction(t *testing.T) {
	router, mock := newTestRouter(t)
	defer mock.Close()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, signedIn(httptest.NewRequest(http.MethodPost, "/track-activity", strings.NewReader(`{}`))))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if _, msg := decodeFailure(t, rec); msg != "action is required" {
		t.Errorf("unexpected error %q", msg)
	}
}

func TestListActivity(t *testing.T) {
	router, mock := newTestRouter(t)
	defer mock.Close()

	mock.ExpectQuery(`SELECT action, item_id, item_title`).
		WithArgs("user-1", 5).
		WillReturnRows(pgxmock.NewRows([]string{"action", "item_id", "item_title", "country", "browser", "os", "created_at"}).
			AddRow(ActionSearch, (*int)(nil), strPtr("alien"), "", "Chrome", "Linux", time.Now()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, signedIn(httptest.NewRequest(http.MethodGet, "/api/activity?limit=5", nil)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp activityResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || len(resp.Activity) != 1 || resp.Activity[0].Action != ActionSearch {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestListActivity_BadLimit(t *testing.T) {
	router, mock := newTestRouter(t)
	defer mock.Close()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, signedIn(httptest.NewRequest(http.MethodGet, "/api/activity?limit=zero", nil)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
