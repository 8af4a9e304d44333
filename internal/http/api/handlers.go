package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/slok/devagent/internal/app/service"
	"github.com/slok/devagent/internal/model"
)

type createServiceRequest struct {
	Name         string             `json:"name"`
	Type         model.ServiceType  `json:"type"`
	Requirements model.Requirements `json:"requirements"`
}

type updateServiceRequest struct {
	Type         model.ServiceType  `json:"type"`
	Requirements model.Requirements `json:"requirements"`
}

type addFeatureRequest struct {
	FeatureName string                `json:"featureName"`
	Description string                `json:"description"`
	Priority    model.FeaturePriority `json:"priority"`
}

type createTaskRequest struct {
	Type         model.TaskType     `json:"type"`
	ServiceName  string             `json:"serviceName"`
	ServiceType  model.ServiceType  `json:"serviceType"`
	Requirements model.Requirements `json:"requirements"`
}

type agentStatus struct {
	Running    bool        `json:"running"`
	Processing bool        `json:"processing"`
	QueueSize  int         `json:"queueSize"`
	ActiveTask *model.Task `json:"activeTask"`
	// Uptime in seconds.
	Uptime float64 `json:"uptime"`
}

func (h handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h handler) status(w http.ResponseWriter, r *http.Request) {
	st := h.queue.Status()
	uptime := h.now().Sub(h.startedAt).Seconds()

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"status": agentStatus{
			Running:    true,
			Processing: st.Busy,
			QueueSize:  st.QueueSize,
			ActiveTask: st.ActiveTask,
			Uptime:     math.Round(uptime*1000) / 1000,
		},
	})
}

func (h handler) listServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.services.List(r.Context())
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "services": services})
}

func (h handler) getService(w http.ResponseWriter, r *http.Request) {
	svc, err := h.services.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "service": svc})
}

func (h handler) createService(w http.ResponseWriter, r *http.Request) {
	var req createServiceRequest
	if !h.decode(w, r, &req) {
		return
	}

	if req.Name == "" || req.Type == "" {
		writeError(w, http.StatusBadRequest, "service name and type are required")
		return
	}

	svc, err := h.services.Create(r.Context(), service.CreateRequest{
		Name:         req.Name,
		Type:         req.Type,
		Requirements: req.Requirements,
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "service": svc})
}

func (h handler) updateService(w http.ResponseWriter, r *http.Request) {
	var req updateServiceRequest
	if !h.decode(w, r, &req) {
		return
	}

	svc, err := h.services.Update(r.Context(), service.UpdateRequest{
		Name:         chi.URLParam(r, "name"),
		Type:         req.Type,
		Requirements: req.Requirements,
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "service": svc})
}

func (h handler) deleteService(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.services.Delete(r.Context(), name); err != nil {
		h.writeErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Service %s deleted", name),
	})
}

func (h handler) addFeature(w http.ResponseWriter, r *http.Request) {
	var req addFeatureRequest
	if !h.decode(w, r, &req) {
		return
	}

	if req.FeatureName == "" {
		writeError(w, http.StatusBadRequest, "feature name is required")
		return
	}

	svc, f, err := h.services.AddFeature(r.Context(), service.AddFeatureRequest{
		Name:        chi.URLParam(r, "name"),
		FeatureName: req.FeatureName,
		Description: req.Description,
		Priority:    req.Priority,
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "service": svc, "feature": f})
}

func (h handler) listTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "tasks": h.queue.Tasks()})
}

func (h handler) createTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if !h.decode(w, r, &req) {
		return
	}

	if req.Type == "" || req.ServiceName == "" {
		writeError(w, http.StatusBadRequest, "task type and service name are required")
		return
	}

	id, err := h.queue.AddTask(r.Context(), model.Task{
		Type:         req.Type,
		ServiceName:  req.ServiceName,
		ServiceType:  req.ServiceType,
		Requirements: req.Requirements,
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "Task added to queue",
		"taskId":  id,
	})
}

func (h handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// writeErr maps domain errors to HTTP status codes.
func (h handler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, model.ErrNotValid):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.WithCtxValues(r.Context()).Errorf("Request failed: %s", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
