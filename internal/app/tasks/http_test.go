package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeChecker struct {
	fired int
	err   error
}

func (f *fakeChecker) CheckDue(context.Context) (int, error) {
	return f.fired, f.err
}

func newTestHTTP(t *testing.T) (*Handler, *fakeRepo, *fakeEmitter) {
	t.Helper()
	repo := newFakeRepo()
	em := &fakeEmitter{}
	return NewHandler(newTestService(repo, em), &fakeChecker{fired: 2}), repo, em
}

func doRequest(t *testing.T, h *Handler, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	return rec
}

func TestHTTP_CreateAndGet(t *testing.T) {
	h, _, _ := newTestHTTP(t)

	rec := doRequest(t, h, http.MethodPost, "/api/v1/tasks", "user-1", `{"title":"Buy milk","priority":"high"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create returned %d: %s", rec.Code, rec.Body)
	}
	var created Task
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created task: %v", err)
	}
	if created.Title != "Buy milk" || created.Status != StatusOpen {
		t.Fatalf("created = %+v", created)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/v1/tasks/"+created.ID, "user-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get returned %d", rec.Code)
	}

	// Another user cannot see it.
	rec = doRequest(t, h, http.MethodGet, "/api/v1/tasks/"+created.ID, "user-2", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("cross-user get returned %d", rec.Code)
	}
}

func TestHTTP_MissingIdentity(t *testing.T) {
	h, _, _ := newTestHTTP(t)
	rec := doRequest(t, h, http.MethodGet, "/api/v1/tasks", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing identity returned %d", rec.Code)
	}
}

func TestHTTP_ValidationErrors(t *testing.T) {
	h, _, _ := newTestHTTP(t)

	rec := doRequest(t, h, http.MethodPost, "/api/v1/tasks", "user-1", `{"title":"  "}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("blank title returned %d", rec.Code)
	}
	rec = doRequest(t, h, http.MethodPost, "/api/v1/tasks", "user-1", `not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid JSON returned %d", rec.Code)
	}
	rec = doRequest(t, h, http.MethodPost, "/api/v1/tasks", "user-1", `{"title":"x","priority":"urgent"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid priority returned %d", rec.Code)
	}
}

func TestHTTP_CompleteAndDelete(t *testing.T) {
	h, _, em := newTestHTTP(t)

	rec := doRequest(t, h, http.MethodPost, "/api/v1/tasks", "user-1", `{"title":"Buy milk"}`)
	var created Task
	_ = json.Unmarshal(rec.Body.Bytes(), &created)
	em.events = nil

	rec = doRequest(t, h, http.MethodPost, "/api/v1/tasks/"+created.ID+"/complete", "user-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("complete returned %d", rec.Code)
	}
	var completed Task
	_ = json.Unmarshal(rec.Body.Bytes(), &completed)
	if completed.Status != StatusCompleted {
		t.Fatalf("status = %q", completed.Status)
	}

	rec = doRequest(t, h, http.MethodDelete, "/api/v1/tasks/"+created.ID, "user-1", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete returned %d", rec.Code)
	}
	rec = doRequest(t, h, http.MethodDelete, "/api/v1/tasks/"+created.ID, "user-1", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("double delete returned %d", rec.Code)
	}
}

func TestHTTP_ListIsNeverNull(t *testing.T) {
	h, _, _ := newTestHTTP(t)
	rec := doRequest(t, h, http.MethodGet, "/api/v1/tasks", "user-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list returned %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("empty list body = %q", rec.Body.String())
	}
}

func TestHTTP_CheckReminders(t *testing.T) {
	h, _, _ := newTestHTTP(t)
	rec := doRequest(t, h, http.MethodPost, "/internal/check-reminders", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("check-reminders returned %d", rec.Code)
	}
	var resp map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["reminders_emitted"] != 2 {
		t.Fatalf("response = %v", resp)
	}

	h.Reminders = &fakeChecker{err: errors.New("db down")}
	rec = doRequest(t, h, http.MethodPost, "/internal/check-reminders", "", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("failing check returned %d", rec.Code)
	}
}
