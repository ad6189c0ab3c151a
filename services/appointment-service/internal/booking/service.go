// Package booking implements the schedule, day-off and appointment flows:
// registering doctor working hours, computing free slots and taking
// bookings without double-booking a doctor or a patient.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/clinicbook/clinicbook/services/appointment-service/internal/apperr"
	"github.com/clinicbook/clinicbook/services/appointment-service/internal/availability"
	"github.com/clinicbook/clinicbook/services/appointment-service/internal/directory"
	"github.com/clinicbook/clinicbook/services/appointment-service/internal/events"
	"github.com/clinicbook/clinicbook/services/appointment-service/internal/model"
)

type ScheduleStore interface {
	Create(ctx context.Context, s *model.Schedule) error
	Update(ctx context.Context, s *model.Schedule) error
	GetByID(ctx context.Context, id string) (*model.Schedule, error)
	GetByDoctorID(ctx context.Context, doctorID string) (*model.Schedule, error)
}

type DayOffStore interface {
	Create(ctx context.Context, d *model.DayOff) error
	Disable(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*model.DayOff, error)
	HasEnabledDayOff(ctx context.Context, doctorID string, date time.Time) (bool, error)
	ListByDoctor(ctx context.Context, doctorID string, status model.DayOffStatus) ([]*model.DayOff, error)
}

type AppointmentStore interface {
	Create(ctx context.Context, a *model.Appointment) error
	GetByID(ctx context.Context, id string) (*model.Appointment, error)
	UpdateStatus(ctx context.Context, id string, from []model.AppointmentStatus, to model.AppointmentStatus, interactedBy, reason string) (*model.Appointment, error)
	DoctorHasOverlap(ctx context.Context, scheduleID string, date time.Time, startMinute, endMinute int) (bool, error)
	PatientHasOverlap(ctx context.Context, patientID string, date time.Time, startMinute, endMinute int) (bool, error)
	BusyIntervals(ctx context.Context, scheduleID string, date time.Time) ([]availability.Window, error)
	ListBySchedule(ctx context.Context, scheduleID string) ([]*model.Appointment, error)
	ListByPatient(ctx context.Context, patientID string) ([]*model.Appointment, error)
	ListAll(ctx context.Context) ([]*model.Appointment, error)
}

type EventEmitter interface {
	Emit(ctx context.Context, ev events.NotificationEvent) error
}

// ErrNotify marks a booking that persisted but whose notification event
// could not be published. Callers receive the appointment together with an
// error wrapping ErrNotify and must treat the state change as committed.
var ErrNotify = errors.New("notification publish failed")

type Service struct {
	schedules    ScheduleStore
	dayOffs      DayOffStore
	appointments AppointmentStore
	dir          directory.Provider
	emitter      EventEmitter
	logger       *slog.Logger
}

func NewService(schedules ScheduleStore, dayOffs DayOffStore, appointments AppointmentStore, dir directory.Provider, emitter EventEmitter, logger *slog.Logger) *Service {
	return &Service{
		schedules:    schedules,
		dayOffs:      dayOffs,
		appointments: appointments,
		dir:          dir,
		emitter:      emitter,
		logger:       logger,
	}
}

// CreateScheduleInput carries the fields a doctor registers a schedule with.
// Working days use MON..SUN tokens; minutes count from midnight.
type CreateScheduleInput struct {
	DoctorID            string
	WorkingDays         []string
	StartMinute         int
	EndMinute           int
	SlotDurationMinutes int
	ConsultationFee     string
}

func (s *Service) CreateSchedule(ctx context.Context, in CreateScheduleInput) (*model.Schedule, error) {
	if err := validateScheduleInput(in.WorkingDays, in.StartMinute, in.EndMinute, in.SlotDurationMinutes); err != nil {
		return nil, err
	}
	if _, err := s.dir.GetDoctor(ctx, in.DoctorID); err != nil {
		return nil, err
	}
	sched := &model.Schedule{
		ID:                  uuid.NewString(),
		DoctorID:            in.DoctorID,
		WorkingDays:         in.WorkingDays,
		StartMinute:         in.StartMinute,
		EndMinute:           in.EndMinute,
		SlotDurationMinutes: in.SlotDurationMinutes,
		ConsultationFee:     in.ConsultationFee,
	}
	if err := s.schedules.Create(ctx, sched); err != nil {
		return nil, err
	}
	return sched, nil
}

func (s *Service) UpdateSchedule(ctx context.Context, id string, in CreateScheduleInput) (*model.Schedule, error) {
	if err := validateScheduleInput(in.WorkingDays, in.StartMinute, in.EndMinute, in.SlotDurationMinutes); err != nil {
		return nil, err
	}
	existing, err := s.schedules.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	existing.WorkingDays = in.WorkingDays
	existing.StartMinute = in.StartMinute
	existing.EndMinute = in.EndMinute
	existing.SlotDurationMinutes = in.SlotDurationMinutes
	existing.ConsultationFee = in.ConsultationFee
	if err := s.schedules.Update(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

func (s *Service) GetScheduleByDoctor(ctx context.Context, doctorID string) (*model.Schedule, error) {
	return s.schedules.GetByDoctorID(ctx, doctorID)
}

func validateScheduleInput(workingDays []string, startMinute, endMinute, slotDuration int) error {
	if len(workingDays) == 0 {
		return apperr.Validation("working_days must not be empty")
	}
	for _, day := range workingDays {
		if !model.IsWeekdayToken(day) {
			return apperr.Validation("invalid working day %q", day)
		}
	}
	if startMinute < 0 || endMinute > 24*60 || startMinute >= endMinute {
		return apperr.Validation("working hours must satisfy 0 <= start < end <= 24:00")
	}
	if slotDuration <= 0 {
		return apperr.Validation("slot duration must be positive")
	}
	return nil
}

// AvailableSlots computes the free slot grid for a doctor on date. An
// ENABLED day off or a non-working weekday yields an empty grid, not an
// error.
func (s *Service) AvailableSlots(ctx context.Context, doctorID string, date time.Time) ([]availability.Window, error) {
	sched, err := s.schedules.GetByDoctorID(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	off, err := s.dayOffs.HasEnabledDayOff(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	if off {
		return nil, nil
	}
	if !sched.WorksOn(date.Weekday()) {
		return nil, nil
	}
	busy, err := s.appointments.BusyIntervals(ctx, sched.ID, date)
	if err != nil {
		return nil, err
	}
	return availability.Slots(sched.StartMinute, sched.EndMinute, sched.SlotDurationMinutes, busy), nil
}

type CreateDayOffInput struct {
	DoctorID  string
	DateOff   time.Time
	Reason    string
	CreatedBy string
}

func (s *Service) CreateDayOff(ctx context.Context, in CreateDayOffInput) (*model.DayOff, error) {
	if in.DateOff.IsZero() {
		return nil, apperr.Validation("date_off is required")
	}
	if _, err := s.dir.GetDoctor(ctx, in.DoctorID); err != nil {
		return nil, err
	}
	d := &model.DayOff{
		ID:        uuid.NewString(),
		DoctorID:  in.DoctorID,
		DateOff:   in.DateOff,
		Reason:    in.Reason,
		CreatedBy: in.CreatedBy,
		Status:    model.DayOffEnabled,
	}
	if err := s.dayOffs.Create(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) CancelDayOff(ctx context.Context, id string) (*model.DayOff, error) {
	if err := s.dayOffs.Disable(ctx, id); err != nil {
		return nil, err
	}
	return s.dayOffs.GetByID(ctx, id)
}

func (s *Service) ListDayOffs(ctx context.Context, doctorID string, status model.DayOffStatus) ([]*model.DayOff, error) {
	return s.dayOffs.ListByDoctor(ctx, doctorID, status)
}

type CreateAppointmentInput struct {
	ScheduleID  string
	PatientID   string
	Date        time.Time
	StartMinute int
	EndMinute   int
}

// CreateAppointment books a slot. Ordering of the checks is part of the
// contract: an unknown schedule reads as not found before any conflict is
// reported, a vanished doctor before either overlap, and the doctor-side
// conflict before the patient-side one.
func (s *Service) CreateAppointment(ctx context.Context, in CreateAppointmentInput) (*model.Appointment, error) {
	sched, err := s.schedules.GetByID(ctx, in.ScheduleID)
	if err != nil {
		return nil, err
	}
	// A schedule can outlive its doctor's directory record; booking against
	// one must fail, not silently succeed.
	if _, err := s.dir.GetDoctor(ctx, sched.DoctorID); err != nil {
		return nil, err
	}
	if in.StartMinute >= in.EndMinute {
		return nil, apperr.Validation("appointment start must be before end")
	}
	if in.StartMinute < sched.StartMinute || in.EndMinute > sched.EndMinute {
		return nil, apperr.Validation("appointment falls outside the doctor's working hours")
	}
	if !sched.WorksOn(in.Date.Weekday()) {
		return nil, apperr.Validation("doctor does not work on %s", model.WeekdayToken(in.Date.Weekday()))
	}
	off, err := s.dayOffs.HasEnabledDayOff(ctx, sched.DoctorID, in.Date)
	if err != nil {
		return nil, err
	}
	if off {
		return nil, apperr.Conflict("doctor is off on %s", in.Date.Format("2006-01-02"))
	}
	busy, err := s.appointments.DoctorHasOverlap(ctx, sched.ID, in.Date, in.StartMinute, in.EndMinute)
	if err != nil {
		return nil, err
	}
	if busy {
		return nil, apperr.Conflict("doctor already has an appointment in that window")
	}
	taken, err := s.appointments.PatientHasOverlap(ctx, in.PatientID, in.Date, in.StartMinute, in.EndMinute)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperr.Conflict("patient already has an appointment in that window")
	}

	appt := &model.Appointment{
		ID:          uuid.NewString(),
		ScheduleID:  sched.ID,
		PatientID:   in.PatientID,
		Status:      model.AppointmentPending,
		Date:        in.Date,
		StartMinute: in.StartMinute,
		EndMinute:   in.EndMinute,
	}
	if err := s.appointments.Create(ctx, appt); err != nil {
		return nil, err
	}

	notifyErr := s.notify(ctx, appt, events.TypeAppointmentCreated,
		fmt.Sprintf("Your appointment on %s at %s is awaiting payment.",
			appt.Date.Format("2006-01-02"), availability.FormatMinute(appt.StartMinute)))
	return appt, notifyErr
}

// CancelAppointment is idempotent: cancelling an already cancelled
// appointment returns it unchanged and emits nothing.
func (s *Service) CancelAppointment(ctx context.Context, id, actor, reason string) (*model.Appointment, error) {
	current, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == model.AppointmentCancelled {
		return current, nil
	}
	appt, err := s.appointments.UpdateStatus(ctx, id,
		[]model.AppointmentStatus{model.AppointmentPending, model.AppointmentConfirmed},
		model.AppointmentCancelled, actor, reason)
	if err != nil {
		return nil, err
	}
	notifyErr := s.notify(ctx, appt, events.TypeAppointmentCancelled,
		fmt.Sprintf("Your appointment on %s at %s was cancelled.",
			appt.Date.Format("2006-01-02"), availability.FormatMinute(appt.StartMinute)))
	return appt, notifyErr
}

func (s *Service) GetAppointment(ctx context.Context, id string) (*model.Appointment, error) {
	return s.appointments.GetByID(ctx, id)
}

func (s *Service) ListAppointments(ctx context.Context, scheduleID, patientID string) ([]*model.Appointment, error) {
	switch {
	case scheduleID != "":
		return s.appointments.ListBySchedule(ctx, scheduleID)
	case patientID != "":
		return s.appointments.ListByPatient(ctx, patientID)
	default:
		return s.appointments.ListAll(ctx)
	}
}

// AppointmentInfo joins an appointment with its doctor's directory profile
// for the confirmation page and the notification emails.
func (s *Service) AppointmentInfo(ctx context.Context, id string) (*model.AppointmentInfo, error) {
	appt, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	sched, err := s.schedules.GetByID(ctx, appt.ScheduleID)
	if err != nil {
		return nil, err
	}
	doc, err := s.dir.GetDoctor(ctx, sched.DoctorID)
	if err != nil {
		return nil, err
	}
	return &model.AppointmentInfo{
		DoctorName:   doc.FullName,
		Address:      doc.Address,
		ClinicName:   doc.ClinicName,
		SpecialityID: doc.SpecialityID,
		Date:         appt.Date,
		StartMinute:  appt.StartMinute,
		EndMinute:    appt.EndMinute,
	}, nil
}

// notify resolves the patient's contact details and publishes an event.
// Failures here never unwind the booking; they are logged and reported to
// the caller wrapped in ErrNotify while the state change stands.
func (s *Service) notify(ctx context.Context, appt *model.Appointment, eventType, message string) error {
	if s.emitter == nil {
		return nil
	}
	patient, err := s.dir.GetPatient(ctx, appt.PatientID)
	if err != nil {
		s.logger.Error("patient lookup for notification failed", "appointment_id", appt.ID, "err", err)
		return fmt.Errorf("%w: patient lookup: %v", ErrNotify, err)
	}
	ev := events.NotificationEvent{
		EventID:       uuid.NewString(),
		Type:          eventType,
		Message:       message,
		Recipient:     patient.ContactEmail,
		UserID:        patient.OwnerUserID,
		AppointmentID: appt.ID,
		Status:        string(appt.Status),
	}
	if err := s.emitter.Emit(ctx, ev); err != nil {
		s.logger.Error("event publish failed", "appointment_id", appt.ID, "type", eventType, "err", err)
		return fmt.Errorf("%w: %v", ErrNotify, err)
	}
	return nil
}
