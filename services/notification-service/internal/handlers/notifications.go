package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/clinicbook/clinicbook/services/notification-service/internal/storage"
)

type NotificationHandler struct {
	repo   *storage.Repository
	logger *slog.Logger
}

func NewNotificationHandler(repo *storage.Repository, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{repo: repo, logger: logger}
}

type notificationResponse struct {
	ID            string `json:"id"`
	AppointmentID string `json:"appointment_id"`
	Type          string `json:"type"`
	Message       string `json:"message"`
	Status        string `json:"status"`
	Read          bool   `json:"read"`
	CreatedAt     string `json:"created_at"`
}

func toResponse(n *storage.Notification) notificationResponse {
	return notificationResponse{
		ID:            n.ID,
		AppointmentID: n.AppointmentID,
		Type:          n.Type,
		Message:       n.Message,
		Status:        string(n.Status),
		Read:          n.Read,
		CreatedAt:     n.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Route dispatches /api/notifications/user/{userId} and
// /api/notifications/{id}/read.
func (h *NotificationHandler) Route(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/notifications/"), "/")
	parts := strings.Split(rest, "/")

	switch {
	case len(parts) == 2 && parts[0] == "user":
		h.listByUser(w, r, parts[1])
	case len(parts) == 2 && parts[1] == "read":
		h.markRead(w, r, parts[0])
	default:
		http.NotFound(w, r)
	}
}

func (h *NotificationHandler) listByUser(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	list, err := h.repo.ListByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("list notifications failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	items := make([]notificationResponse, 0, len(list))
	for _, n := range list {
		items = append(items, toResponse(n))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(items)
}

func (h *NotificationHandler) markRead(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	n, err := h.repo.MarkRead(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "notification not found", http.StatusNotFound)
			return
		}
		h.logger.Error("mark read failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toResponse(n))
}
