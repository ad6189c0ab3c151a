package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/clinicbook/clinicbook/libs/auth"
	"github.com/clinicbook/clinicbook/services/appointment-service/internal/booking"
	"github.com/clinicbook/clinicbook/services/appointment-service/internal/model"
)

type DayOffHandler struct {
	svc    *booking.Service
	logger *slog.Logger
}

func NewDayOffHandler(svc *booking.Service, logger *slog.Logger) *DayOffHandler {
	return &DayOffHandler{svc: svc, logger: logger}
}

type createDayOffRequest struct {
	DoctorID string `json:"doctor_id"`
	DateOff  string `json:"date_off"`
	Reason   string `json:"reason"`
}

type dayOffResponse struct {
	ID        string `json:"id"`
	DoctorID  string `json:"doctor_id"`
	DateOff   string `json:"date_off"`
	Reason    string `json:"reason,omitempty"`
	CreatedBy string `json:"created_by"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

func toDayOffResponse(d *model.DayOff) dayOffResponse {
	return dayOffResponse{
		ID:        d.ID,
		DoctorID:  d.DoctorID,
		DateOff:   d.DateOff.Format("2006-01-02"),
		Reason:    d.Reason,
		CreatedBy: d.CreatedBy,
		Status:    string(d.Status),
		CreatedAt: d.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Create handles POST /api/dayoffs.
func (h *DayOffHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req createDayOffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.DoctorID = strings.TrimSpace(req.DoctorID)
	if req.DoctorID == "" {
		http.Error(w, "doctor_id is required", http.StatusBadRequest)
		return
	}
	date, err := parseDate(req.DateOff)
	if err != nil {
		http.Error(w, "invalid date_off, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	createdBy := req.DoctorID
	if claims := auth.ClaimsFromContext(r.Context()); claims != nil {
		createdBy = claims.Sub
	}

	d, err := h.svc.CreateDayOff(r.Context(), booking.CreateDayOffInput{
		DoctorID:  req.DoctorID,
		DateOff:   date,
		Reason:    strings.TrimSpace(req.Reason),
		CreatedBy: createdBy,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDayOffResponse(d))
}

// Route dispatches /api/dayoffs/{id}/cancel and /api/dayoffs/doctor/{doctorId}.
func (h *DayOffHandler) Route(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/dayoffs/"), "/")
	parts := strings.Split(rest, "/")

	switch {
	case len(parts) == 2 && parts[0] == "doctor":
		h.listByDoctor(w, r, parts[1])
	case len(parts) == 2 && parts[1] == "cancel":
		h.cancel(w, r, parts[0])
	default:
		http.NotFound(w, r)
	}
}

func (h *DayOffHandler) cancel(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	d, err := h.svc.CancelDayOff(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toDayOffResponse(d))
}

func (h *DayOffHandler) listByDoctor(w http.ResponseWriter, r *http.Request, doctorID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	status := model.DayOffStatus(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status"))))
	if status != "" && status != model.DayOffEnabled && status != model.DayOffDisabled {
		http.Error(w, "invalid status filter", http.StatusBadRequest)
		return
	}
	list, err := h.svc.ListDayOffs(r.Context(), doctorID, status)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	items := make([]dayOffResponse, 0, len(list))
	for _, d := range list {
		items = append(items, toDayOffResponse(d))
	}
	writeJSON(w, http.StatusOK, items)
}
