package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/clinicbook/clinicbook/services/appointment-service/internal/availability"
	"github.com/clinicbook/clinicbook/services/appointment-service/internal/booking"
	"github.com/clinicbook/clinicbook/services/appointment-service/internal/model"
)

type ScheduleHandler struct {
	svc    *booking.Service
	logger *slog.Logger
}

func NewScheduleHandler(svc *booking.Service, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{svc: svc, logger: logger}
}

type scheduleRequest struct {
	DoctorID        string   `json:"doctor_id"`
	WorkingDays     []string `json:"working_days"`
	StartTime       string   `json:"start_time"`
	EndTime         string   `json:"end_time"`
	SlotDuration    int      `json:"slot_duration_minutes"`
	ConsultationFee string   `json:"consultation_fee"`
}

type scheduleResponse struct {
	ID              string   `json:"id"`
	DoctorID        string   `json:"doctor_id"`
	WorkingDays     []string `json:"working_days"`
	StartTime       string   `json:"start_time"`
	EndTime         string   `json:"end_time"`
	SlotDuration    int      `json:"slot_duration_minutes"`
	ConsultationFee string   `json:"consultation_fee"`
	CreatedAt       string   `json:"created_at"`
}

type slotItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func toScheduleResponse(s *model.Schedule) scheduleResponse {
	return scheduleResponse{
		ID:              s.ID,
		DoctorID:        s.DoctorID,
		WorkingDays:     s.WorkingDays,
		StartTime:       availability.FormatMinute(s.StartMinute),
		EndTime:         availability.FormatMinute(s.EndMinute),
		SlotDuration:    s.SlotDurationMinutes,
		ConsultationFee: s.ConsultationFee,
		CreatedAt:       s.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *ScheduleHandler) parseInput(w http.ResponseWriter, r *http.Request) (booking.CreateScheduleInput, bool) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return booking.CreateScheduleInput{}, false
	}
	start, err := availability.ParseMinute(req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time, expected HH:MM", http.StatusBadRequest)
		return booking.CreateScheduleInput{}, false
	}
	end, err := availability.ParseMinute(req.EndTime)
	if err != nil {
		http.Error(w, "invalid end_time, expected HH:MM", http.StatusBadRequest)
		return booking.CreateScheduleInput{}, false
	}
	days := make([]string, 0, len(req.WorkingDays))
	for _, d := range req.WorkingDays {
		days = append(days, strings.ToUpper(strings.TrimSpace(d)))
	}
	return booking.CreateScheduleInput{
		DoctorID:            strings.TrimSpace(req.DoctorID),
		WorkingDays:         days,
		StartMinute:         start,
		EndMinute:           end,
		SlotDurationMinutes: req.SlotDuration,
		ConsultationFee:     strings.TrimSpace(req.ConsultationFee),
	}, true
}

// Create handles POST /api/schedules.
func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	in, ok := h.parseInput(w, r)
	if !ok {
		return
	}
	if in.DoctorID == "" {
		http.Error(w, "doctor_id is required", http.StatusBadRequest)
		return
	}
	sched, err := h.svc.CreateSchedule(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toScheduleResponse(sched))
}

// Route dispatches /api/schedules/{id} and /api/schedules/doctor/... paths.
func (h *ScheduleHandler) Route(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/schedules/"), "/")
	parts := strings.Split(rest, "/")

	switch {
	case len(parts) == 1 && parts[0] != "doctor":
		h.update(w, r, parts[0])
	case len(parts) == 2 && parts[0] == "doctor":
		h.getByDoctor(w, r, parts[1])
	case len(parts) == 3 && parts[0] == "doctor" && parts[2] == "slots":
		h.slots(w, r, parts[1])
	default:
		http.NotFound(w, r)
	}
}

func (h *ScheduleHandler) update(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	in, ok := h.parseInput(w, r)
	if !ok {
		return
	}
	sched, err := h.svc.UpdateSchedule(r.Context(), id, in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleResponse(sched))
}

func (h *ScheduleHandler) getByDoctor(w http.ResponseWriter, r *http.Request, doctorID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sched, err := h.svc.GetScheduleByDoctor(r.Context(), doctorID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleResponse(sched))
}

func (h *ScheduleHandler) slots(w http.ResponseWriter, r *http.Request, doctorID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	date, err := parseDate(r.URL.Query().Get("date"))
	if err != nil {
		http.Error(w, "invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	slots, err := h.svc.AvailableSlots(r.Context(), doctorID, date)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{
			StartTime: availability.FormatMinute(s.StartMinute),
			EndTime:   availability.FormatMinute(s.EndMinute),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date.Format("2006-01-02"), "slots": items})
}

// parseDate reads a YYYY-MM-DD date as midnight UTC.
func parseDate(raw string) (time.Time, error) {
	return time.Parse("2006-01-02", strings.TrimSpace(raw))
}
