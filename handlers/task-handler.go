package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"taskbot-project/taskbot-service/models"
	"taskbot-project/taskbot-service/services"

	"github.com/gorilla/mux"
)

// TaskHandler exposes read endpoints for dashboards and tooling.
type TaskHandler struct {
	tasks         *services.TaskService
	notifications *services.NotificationService
}

func NewTaskHandler(tasks *services.TaskService, notifications *services.NotificationService) *TaskHandler {
	return &TaskHandler{tasks: tasks, notifications: notifications}
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrUpstream):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (h *TaskHandler) GetTaskByID(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	task, err := h.tasks.GetTask(r.Context(), vars["teamID"], vars["taskID"])
	if err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(task)
}

func (h *TaskHandler) GetTasksForUser(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	tasks, err := h.tasks.ListTasksForUser(r.Context(), vars["teamID"], vars["userID"])
	if err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tasks)
}

func (h *TaskHandler) GetNotificationsForUser(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	notifications, err := h.notifications.GetNotificationsForUser(vars["userID"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(notifications)
}

func (h *TaskHandler) MarkNotificationAsRead(w http.ResponseWriter, r *http.Request) {
	var request struct {
		UserID         string `json:"userId"`
		NotificationID string `json:"notificationId"`
		CreatedAt      string `json:"createdAt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if err := h.notifications.MarkNotificationAsRead(request.UserID, request.NotificationID, request.CreatedAt); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"message": "Notification marked as read"}`))
}
