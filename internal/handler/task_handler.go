package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"task-manager/internal/middleware"
	"task-manager/internal/model"
	"task-manager/internal/service"
	"task-manager/pkg/apierror"
)

type TaskHandler struct {
	service *service.TaskService
}

func NewTaskHandler(service *service.TaskService) *TaskHandler {
	return &TaskHandler{service: service}
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerIdentity(w, r)
	if !ok {
		return
	}

	var payload model.CreateTaskRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, r, err)
		return
	}
	if err := payload.Normalize(); err != nil {
		writeError(w, r, err)
		return
	}

	task, err := h.service.Create(r.Context(), caller, payload)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusCreated, model.TaskEnvelope{Task: task}, nil)
}

func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerIdentity(w, r)
	if !ok {
		return
	}

	tasks, err := h.service.List(r.Context(), caller)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.TaskList{Tasks: tasks}, nil)
}

func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerIdentity(w, r)
	if !ok {
		return
	}

	task, err := h.service.Get(r.Context(), caller, chi.URLParam(r, "taskID"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.TaskEnvelope{Task: task}, nil)
}

func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerIdentity(w, r)
	if !ok {
		return
	}

	var payload model.UpdateTaskRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, r, err)
		return
	}
	if err := payload.Normalize(); err != nil {
		writeError(w, r, err)
		return
	}

	task, err := h.service.Update(r.Context(), caller, chi.URLParam(r, "taskID"), payload)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.TaskEnvelope{Task: task}, nil)
}

func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerIdentity(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), caller, chi.URLParam(r, "taskID")); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func callerIdentity(w http.ResponseWriter, r *http.Request) (model.Identity, bool) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, apierror.Unauthorized("Authentication token missing"))
	}
	return identity, ok
}
