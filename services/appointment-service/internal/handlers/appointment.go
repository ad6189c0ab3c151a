package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/clinicbook/clinicbook/libs/auth"
	"github.com/clinicbook/clinicbook/services/appointment-service/internal/availability"
	"github.com/clinicbook/clinicbook/services/appointment-service/internal/booking"
	"github.com/clinicbook/clinicbook/services/appointment-service/internal/model"
)

type AppointmentHandler struct {
	svc    *booking.Service
	logger *slog.Logger
}

func NewAppointmentHandler(svc *booking.Service, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{svc: svc, logger: logger}
}

type createAppointmentRequest struct {
	ScheduleID string `json:"schedule_id"`
	PatientID  string `json:"patient_id"`
	Date       string `json:"date"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
}

type cancelAppointmentRequest struct {
	Reason string `json:"reason"`
}

type appointmentResponse struct {
	ID           string `json:"id"`
	ScheduleID   string `json:"schedule_id"`
	PatientID    string `json:"patient_id"`
	Status       string `json:"status"`
	Date         string `json:"date"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	InteractedAt string `json:"interacted_at,omitempty"`
	InteractedBy string `json:"interacted_by,omitempty"`
	Reason       string `json:"reason,omitempty"`
	CreatedAt    string `json:"created_at"`

	// NotificationPending reports that the booking committed but its
	// notification event was not published.
	NotificationPending bool `json:"notification_pending,omitempty"`
}

type appointmentInfoResponse struct {
	DoctorName   string `json:"doctor_name"`
	Address      string `json:"address"`
	ClinicName   string `json:"clinic_name"`
	SpecialityID string `json:"speciality_id"`
	Date         string `json:"date"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
}

func toAppointmentResponse(a *model.Appointment) appointmentResponse {
	resp := appointmentResponse{
		ID:           a.ID,
		ScheduleID:   a.ScheduleID,
		PatientID:    a.PatientID,
		Status:       string(a.Status),
		Date:         a.Date.Format("2006-01-02"),
		StartTime:    availability.FormatMinute(a.StartMinute),
		EndTime:      availability.FormatMinute(a.EndMinute),
		InteractedBy: a.InteractedBy,
		Reason:       a.Reason,
		CreatedAt:    a.CreatedAt.UTC().Format(time.RFC3339),
	}
	if a.InteractedAt != nil {
		resp.InteractedAt = a.InteractedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// Collection handles GET and POST /api/appointments.
func (h *AppointmentHandler) Collection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.create(w, r)
	case http.MethodGet:
		h.list(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AppointmentHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ScheduleID = strings.TrimSpace(req.ScheduleID)
	req.PatientID = strings.TrimSpace(req.PatientID)
	if req.ScheduleID == "" || req.PatientID == "" {
		http.Error(w, "schedule_id and patient_id are required", http.StatusBadRequest)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		http.Error(w, "invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	start, err := availability.ParseMinute(req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time, expected HH:MM", http.StatusBadRequest)
		return
	}
	end, err := availability.ParseMinute(req.EndTime)
	if err != nil {
		http.Error(w, "invalid end_time, expected HH:MM", http.StatusBadRequest)
		return
	}

	appt, err := h.svc.CreateAppointment(r.Context(), booking.CreateAppointmentInput{
		ScheduleID:  req.ScheduleID,
		PatientID:   req.PatientID,
		Date:        date,
		StartMinute: start,
		EndMinute:   end,
	})
	if err != nil && !errors.Is(err, booking.ErrNotify) {
		writeError(w, h.logger, err)
		return
	}
	resp := toAppointmentResponse(appt)
	if err != nil {
		h.logger.Warn("appointment booked without notification", "appointment_id", appt.ID, "err", err)
		resp.NotificationPending = true
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *AppointmentHandler) list(w http.ResponseWriter, r *http.Request) {
	scheduleID := strings.TrimSpace(r.URL.Query().Get("schedule_id"))
	patientID := strings.TrimSpace(r.URL.Query().Get("patient_id"))
	list, err := h.svc.ListAppointments(r.Context(), scheduleID, patientID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	items := make([]appointmentResponse, 0, len(list))
	for _, a := range list {
		items = append(items, toAppointmentResponse(a))
	}
	writeJSON(w, http.StatusOK, items)
}

// Route dispatches /api/appointments/{id}, /{id}/cancel and /{id}/info.
func (h *AppointmentHandler) Route(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/appointments/"), "/")
	parts := strings.Split(rest, "/")

	switch {
	case len(parts) == 1:
		h.get(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "cancel":
		h.cancel(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "info":
		h.info(w, r, parts[0])
	default:
		http.NotFound(w, r)
	}
}

func (h *AppointmentHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	appt, err := h.svc.GetAppointment(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *AppointmentHandler) cancel(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req cancelAppointmentRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	actor := "anonymous"
	if claims := auth.ClaimsFromContext(r.Context()); claims != nil {
		actor = claims.Sub
	}

	appt, err := h.svc.CancelAppointment(r.Context(), id, actor, strings.TrimSpace(req.Reason))
	if err != nil && !errors.Is(err, booking.ErrNotify) {
		writeError(w, h.logger, err)
		return
	}
	resp := toAppointmentResponse(appt)
	if err != nil {
		h.logger.Warn("appointment cancelled without notification", "appointment_id", appt.ID, "err", err)
		resp.NotificationPending = true
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AppointmentHandler) info(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	info, err := h.svc.AppointmentInfo(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, appointmentInfoResponse{
		DoctorName:   info.DoctorName,
		Address:      info.Address,
		ClinicName:   info.ClinicName,
		SpecialityID: info.SpecialityID,
		Date:         info.Date.Format("2006-01-02"),
		StartTime:    availability.FormatMinute(info.StartMinute),
		EndTime:      availability.FormatMinute(info.EndMinute),
	})
}
