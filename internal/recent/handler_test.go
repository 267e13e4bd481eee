package recent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/streamie/streamie/internal/auth"
)

type recordedActivity struct {
	userID string
	action string
}

type fakeRecorder struct {
	calls []recordedActivity
}

func (f *fakeRecorder) Record(_ *http.Request, userID, action string, _ int, _ string) error {
	f.calls = append(f.calls, recordedActivity{userID: userID, action: action})
	return nil
}

func visitorRequest(method, target, body, visitor string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	return req.WithContext(auth.WithVisitor(req.Context(), visitor))
}

func decodeList(t *testing.T, rec *httptest.ResponseRecorder) listResponse {
	t.Helper()
	var resp listResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestHandler_TouchThenList(t *testing.T) {
	h := NewHandler(NewCache(NewMemoryStore()))

	for _, body := range []string{
		`{"id":1,"title":"Alpha","media_type":"movie"}`,
		`{"id":2,"title":"Beta","media_type":"tv","vote_average":8.1}`,
	} {
		rec := httptest.NewRecorder()
		h.Touch(rec, visitorRequest(http.MethodPost, "/api/recent", body, "v1"))
		if rec.Code != http.StatusOK {
			t.Fatalf("touch: expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
	}

	rec := httptest.NewRecorder()
	h.List(rec, visitorRequest(http.MethodGet, "/api/recent", "", "v1"))
	resp := decodeList(t, rec)
	if diff := cmp.Diff([]int{2, 1}, ids(resp.Items)); diff != "" {
		t.Errorf("list mismatch (-want +got):\n%s", diff)
	}
	if resp.Items[0].MediaKind != KindShow {
		t.Errorf("expected tv kind, got %q", resp.Items[0].MediaKind)
	}
}

func TestHandler_TouchDefaultsKindToMovie(t *testing.T) {
	h := NewHandler(NewCache(NewMemoryStore()))
	rec := httptest.NewRecorder()
	h.Touch(rec, visitorRequest(http.MethodPost, "/api/recent", `{"id":9,"title":"Gamma"}`, "v1"))

	resp := decodeList(t, rec)
	if len(resp.Items) != 1 || resp.Items[0].MediaKind != KindMovie {
		t.Errorf("unexpected items %+v", resp.Items)
	}
}

func TestHandler_TouchValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"id":`},
		{"missing id", `{"title":"x"}`},
		{"missing title", `{"id":3}`},
		{"bad kind", `{"id":3,"title":"x","media_type":"person"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(NewCache(NewMemoryStore()))
			rec := httptest.NewRecorder()
			h.Touch(rec, visitorRequest(http.MethodPost, "/api/recent", tt.body, "v1"))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestHandler_ListEmptyIsArray(t *testing.T) {
	h := NewHandler(NewCache(NewMemoryStore()))
	rec := httptest.NewRecorder()
	h.List(rec, visitorRequest(http.MethodGet, "/api/recent", "", "v1"))

	if !strings.Contains(rec.Body.String(), `"items":[]`) {
		t.Errorf("expected empty array, got %s", rec.Body.String())
	}
}

func TestHandler_ClearAnonymousDoesNotRecord(t *testing.T) {
	recorder := &fakeRecorder{}
	h := NewHandler(NewCache(NewMemoryStore()))
	h.SetActivityRecorder(recorder)

	rec := httptest.NewRecorder()
	h.Clear(rec, visitorRequest(http.MethodDelete, "/api/recent", "", "v1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(recorder.calls) != 0 {
		t.Errorf("expected no activity, got %+v", recorder.calls)
	}
}

func TestHandler_ClearSignedInRecordsHistoryClear(t *testing.T) {
	recorder := &fakeRecorder{}
	cache := NewCache(NewMemoryStore())
	h := NewHandler(cache)
	h.SetActivityRecorder(recorder)
	_, _ = cache.Touch(context.Background(), "v1", item(1))

	req := visitorRequest(http.MethodDelete, "/api/recent", "", "v1")
	req = req.WithContext(auth.WithSession(req.Context(), &auth.Session{ID: "s1", UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)}))
	rec := httptest.NewRecorder()
	h.Clear(rec, req)

	if diff := cmp.Diff([]recordedActivity{{userID: "user-1", action: "clear_history"}}, recorder.calls, cmp.AllowUnexported(recordedActivity{})); diff != "" {
		t.Errorf("activity mismatch (-want +got):\n%s", diff)
	}
	got, _ := cache.List(context.Background(), "v1")
	if len(got) != 0 {
		t.Errorf("expected list to be cleared, got %v", ids(got))
	}
}

func TestHandler_TouchSignedInRecordsView(t *testing.T) {
	recorder := &fakeRecorder{}
	h := NewHandler(NewCache(NewMemoryStore()))
	h.SetActivityRecorder(recorder)

	req := visitorRequest(http.MethodPost, "/api/recent", `{"id":7,"title":"Heat"}`, "v1")
	req = req.WithContext(auth.WithSession(req.Context(), &auth.Session{ID: "s1", UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)}))
	rec := httptest.NewRecorder()
	h.Touch(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if diff := cmp.Diff([]recordedActivity{{userID: "user-1", action: "view"}}, recorder.calls, cmp.AllowUnexported(recordedActivity{})); diff != "" {
		t.Errorf("activity mismatch (-want +got):\n%s", diff)
	}
}

func TestHandler_TouchAnonymousDoesNotRecord(t *testing.T) {
	recorder := &fakeRecorder{}
	h := NewHandler(NewCache(NewMemoryStore()))
	h.SetActivityRecorder(recorder)

	rec := httptest.NewRecorder()
	h.Touch(rec, visitorRequest(http.MethodPost, "/api/recent", `{"id":7,"title":"Heat"}`, "v1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(recorder.calls) != 0 {
		t.Errorf("expected no activity, got %+v", recorder.calls)
	}
}
