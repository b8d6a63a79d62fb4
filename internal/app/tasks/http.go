package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// ReminderChecker is the periodic firing path, invoked by the external
// cron collaborator through the internal endpoint.
type ReminderChecker interface {
	CheckDue(ctx context.Context) (int, error)
}

type Handler struct {
	Service   *Service
	Reminders ReminderChecker
}

func NewHandler(service *Service, reminders ReminderChecker) *Handler {
	return &Handler{Service: service, Reminders: reminders}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Post("/api/v1/tasks", h.handleCreate)
	r.Get("/api/v1/tasks", h.handleList)
	r.Get("/api/v1/tasks/{taskID}", h.handleGet)
	r.Patch("/api/v1/tasks/{taskID}", h.handleUpdate)
	r.Post("/api/v1/tasks/{taskID}/complete", h.handleComplete)
	r.Delete("/api/v1/tasks/{taskID}", h.handleDelete)

	r.Post("/internal/check-reminders", h.handleCheckReminders)

	return r
}

// userID reads the identity injected by the upstream auth gateway.
// Authentication itself is outside this service.
func userID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-User-ID"))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	if user == "" {
		h.writeError(w, http.StatusUnauthorized, "missing user identity")
		return
	}
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	task, err := h.Service.Create(r.Context(), user, req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, task)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	if user == "" {
		h.writeError(w, http.StatusUnauthorized, "missing user identity")
		return
	}
	list, err := h.Service.List(r.Context(), user)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if list == nil {
		list = []Task{}
	}
	h.writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	if user == "" {
		h.writeError(w, http.StatusUnauthorized, "missing user identity")
		return
	}
	task, err := h.Service.Get(r.Context(), user, chi.URLParam(r, "taskID"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, task)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	if user == "" {
		h.writeError(w, http.StatusUnauthorized, "missing user identity")
		return
	}
	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	task, err := h.Service.Update(r.Context(), user, chi.URLParam(r, "taskID"), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, task)
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	if user == "" {
		h.writeError(w, http.StatusUnauthorized, "missing user identity")
		return
	}
	task, err := h.Service.Complete(r.Context(), user, chi.URLParam(r, "taskID"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, task)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	if user == "" {
		h.writeError(w, http.StatusUnauthorized, "missing user identity")
		return
	}
	if err := h.Service.Delete(r.Context(), user, chi.URLParam(r, "taskID")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCheckReminders(w http.ResponseWriter, r *http.Request) {
	if h.Reminders == nil {
		h.writeError(w, http.StatusInternalServerError, "reminder scheduler is not configured")
		return
	}
	fired, err := h.Reminders.CheckDue(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"reminders_emitted": fired})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrTaskNotFound):
		h.writeError(w, http.StatusNotFound, "task not found")
	case errors.Is(err, ErrTitleRequired), errors.Is(err, ErrInvalidPriority), errors.Is(err, ErrInvalidRecurrence):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}
