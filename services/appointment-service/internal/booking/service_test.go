package booking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clinicbook/clinicbook/services/appointment-service/internal/apperr"
	"github.com/clinicbook/clinicbook/services/appointment-service/internal/availability"
	"github.com/clinicbook/clinicbook/services/appointment-service/internal/directory"
	"github.com/clinicbook/clinicbook/services/appointment-service/internal/events"
	"github.com/clinicbook/clinicbook/services/appointment-service/internal/model"
)

type fakeScheduleStore struct {
	byID map[string]*model.Schedule
}

func (f *fakeScheduleStore) Create(_ context.Context, s *model.Schedule) error {
	f.byID[s.ID] = s
	return nil
}

func (f *fakeScheduleStore) Update(_ context.Context, s *model.Schedule) error {
	if _, ok := f.byID[s.ID]; !ok {
		return apperr.NotFound("schedule %s not found", s.ID)
	}
	f.byID[s.ID] = s
	return nil
}

func (f *fakeScheduleStore) GetByID(_ context.Context, id string) (*model.Schedule, error) {
	s, ok := f.byID[id]
	if !ok {
		return nil, apperr.NotFound("schedule %s not found", id)
	}
	return s, nil
}

func (f *fakeScheduleStore) GetByDoctorID(_ context.Context, doctorID string) (*model.Schedule, error) {
	for _, s := range f.byID {
		if s.DoctorID == doctorID {
			return s, nil
		}
	}
	return nil, apperr.NotFound("no schedule for doctor %s", doctorID)
}

type fakeDayOffStore struct {
	byID map[string]*model.DayOff
}

func (f *fakeDayOffStore) Create(_ context.Context, d *model.DayOff) error {
	f.byID[d.ID] = d
	return nil
}

func (f *fakeDayOffStore) Disable(_ context.Context, id string) error {
	d, ok := f.byID[id]
	if !ok {
		return apperr.NotFound("day off %s not found", id)
	}
	d.Status = model.DayOffDisabled
	return nil
}

func (f *fakeDayOffStore) GetByID(_ context.Context, id string) (*model.DayOff, error) {
	d, ok := f.byID[id]
	if !ok {
		return nil, apperr.NotFound("day off %s not found", id)
	}
	return d, nil
}

func (f *fakeDayOffStore) HasEnabledDayOff(_ context.Context, doctorID string, date time.Time) (bool, error) {
	for _, d := range f.byID {
		if d.DoctorID == doctorID && d.DateOff.Equal(date) && d.Status == model.DayOffEnabled {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeDayOffStore) ListByDoctor(_ context.Context, doctorID string, status model.DayOffStatus) ([]*model.DayOff, error) {
	var out []*model.DayOff
	for _, d := range f.byID {
		if d.DoctorID == doctorID && (status == "" || d.Status == status) {
			out = append(out, d)
		}
	}
	return out, nil
}

type fakeAppointmentStore struct {
	byID map[string]*model.Appointment
}

func (f *fakeAppointmentStore) Create(_ context.Context, a *model.Appointment) error {
	f.byID[a.ID] = a
	return nil
}

func (f *fakeAppointmentStore) GetByID(_ context.Context, id string) (*model.Appointment, error) {
	a, ok := f.byID[id]
	if !ok {
		return nil, apperr.NotFound("appointment %s not found", id)
	}
	return a, nil
}

func (f *fakeAppointmentStore) UpdateStatus(_ context.Context, id string, from []model.AppointmentStatus, to model.AppointmentStatus, interactedBy, reason string) (*model.Appointment, error) {
	a, ok := f.byID[id]
	if !ok {
		return nil, apperr.Conflict("appointment %s cannot transition to %s", id, to)
	}
	allowed := false
	for _, s := range from {
		if a.Status == s {
			allowed = true
		}
	}
	if !allowed {
		return nil, apperr.Conflict("appointment %s cannot transition to %s", id, to)
	}
	now := time.Now().UTC()
	a.Status = to
	a.InteractedAt = &now
	a.InteractedBy = interactedBy
	a.Reason = reason
	return a, nil
}

func (f *fakeAppointmentStore) DoctorHasOverlap(_ context.Context, scheduleID string, date time.Time, start, end int) (bool, error) {
	for _, a := range f.byID {
		if a.ScheduleID == scheduleID && a.Date.Equal(date) && a.Status != model.AppointmentCancelled &&
			a.StartMinute < end && start < a.EndMinute {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAppointmentStore) PatientHasOverlap(_ context.Context, patientID string, date time.Time, start, end int) (bool, error) {
	for _, a := range f.byID {
		if a.PatientID == patientID && a.Date.Equal(date) && a.Status != model.AppointmentCancelled &&
			a.StartMinute < end && start < a.EndMinute {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAppointmentStore) BusyIntervals(_ context.Context, scheduleID string, date time.Time) ([]availability.Window, error) {
	var out []availability.Window
	for _, a := range f.byID {
		if a.ScheduleID == scheduleID && a.Date.Equal(date) && a.Status != model.AppointmentCancelled {
			out = append(out, availability.Window{StartMinute: a.StartMinute, EndMinute: a.EndMinute})
		}
	}
	return out, nil
}

func (f *fakeAppointmentStore) ListBySchedule(_ context.Context, scheduleID string) ([]*model.Appointment, error) {
	var out []*model.Appointment
	for _, a := range f.byID {
		if a.ScheduleID == scheduleID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAppointmentStore) ListByPatient(_ context.Context, patientID string) ([]*model.Appointment, error) {
	var out []*model.Appointment
	for _, a := range f.byID {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAppointmentStore) ListAll(_ context.Context) ([]*model.Appointment, error) {
	var out []*model.Appointment
	for _, a := range f.byID {
		out = append(out, a)
	}
	return out, nil
}

type fakeDirectory struct {
	doctors  map[string]directory.DoctorProfile
	patients map[string]directory.PatientProfile
}

func (f *fakeDirectory) GetDoctor(_ context.Context, id string) (directory.DoctorProfile, error) {
	d, ok := f.doctors[id]
	if !ok {
		return directory.DoctorProfile{}, apperr.NotFound("doctor %s not found", id)
	}
	return d, nil
}

func (f *fakeDirectory) GetPatient(_ context.Context, id string) (directory.PatientProfile, error) {
	p, ok := f.patients[id]
	if !ok {
		return directory.PatientProfile{}, apperr.NotFound("patient %s not found", id)
	}
	return p, nil
}

type fakeEmitter struct {
	emitted []events.NotificationEvent
	err     error
}

func (f *fakeEmitter) Emit(_ context.Context, ev events.NotificationEvent) error {
	if f.err != nil {
		return f.err
	}
	f.emitted = append(f.emitted, ev)
	return nil
}

func newTestService() (*Service, *fakeScheduleStore, *fakeDayOffStore, *fakeAppointmentStore, *fakeEmitter) {
	schedules := &fakeScheduleStore{byID: map[string]*model.Schedule{}}
	dayOffs := &fakeDayOffStore{byID: map[string]*model.DayOff{}}
	appts := &fakeAppointmentStore{byID: map[string]*model.Appointment{}}
	dir := &fakeDirectory{
		doctors: map[string]directory.DoctorProfile{
			"doc-1": {FullName: "Dr. Mina Tran", ClinicName: "Sunrise Clinic", ContactEmail: "mina@clinic.test", OwnerUserID: "user-doc-1"},
			"doc-2": {FullName: "Dr. Quang Pham", ClinicName: "Riverside Clinic", ContactEmail: "quang@clinic.test", OwnerUserID: "user-doc-2"},
		},
		patients: map[string]directory.PatientProfile{
			"pat-1": {FullName: "Alex Vo", ContactEmail: "alex@example.test", OwnerUserID: "user-pat-1"},
			"pat-2": {FullName: "Binh Le", ContactEmail: "binh@example.test", OwnerUserID: "user-pat-2"},
		},
	}
	emitter := &fakeEmitter{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(schedules, dayOffs, appts, dir, emitter, logger), schedules, dayOffs, appts, emitter
}

// monday is a date whose weekday token is MON.
var monday = time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)

func seedSchedule(t *testing.T, schedules *fakeScheduleStore) *model.Schedule {
	t.Helper()
	sched := &model.Schedule{
		ID:                  uuid.NewString(),
		DoctorID:            "doc-1",
		WorkingDays:         []string{"MON", "TUE", "WED"},
		StartMinute:         9 * 60,
		EndMinute:           12 * 60,
		SlotDurationMinutes: 30,
		ConsultationFee:     "150000",
	}
	schedules.byID[sched.ID] = sched
	return sched
}

func TestCreateAppointment_DoctorOverlapRejected(t *testing.T) {
	svc, schedules, _, _, _ := newTestService()
	sched := seedSchedule(t, schedules)

	first, err := svc.CreateAppointment(context.Background(), CreateAppointmentInput{
		ScheduleID: sched.ID, PatientID: "pat-1", Date: monday, StartMinute: 9 * 60, EndMinute: 9*60 + 30,
	})
	if err != nil {
		t.Fatalf("first booking failed: %v", err)
	}
	if first.Status != model.AppointmentPending {
		t.Fatalf("expected PENDING, got %s", first.Status)
	}

	_, err = svc.CreateAppointment(context.Background(), CreateAppointmentInput{
		ScheduleID: sched.ID, PatientID: "pat-2", Date: monday, StartMinute: 9*60 + 15, EndMinute: 9*60 + 45,
	})
	if !apperr.IsConflict(err) {
		t.Fatalf("expected conflict for overlapping booking, got %v", err)
	}

	// Back to back is not an overlap.
	if _, err := svc.CreateAppointment(context.Background(), CreateAppointmentInput{
		ScheduleID: sched.ID, PatientID: "pat-2", Date: monday, StartMinute: 9*60 + 30, EndMinute: 10 * 60,
	}); err != nil {
		t.Fatalf("adjacent booking should succeed: %v", err)
	}
}

func TestCreateAppointment_PatientOverlapRejected(t *testing.T) {
	svc, schedules, _, _, _ := newTestService()
	sched := seedSchedule(t, schedules)

	other := &model.Schedule{
		ID: uuid.NewString(), DoctorID: "doc-2", WorkingDays: []string{"MON"},
		StartMinute: 9 * 60, EndMinute: 12 * 60, SlotDurationMinutes: 30,
	}
	schedules.byID[other.ID] = other

	if _, err := svc.CreateAppointment(context.Background(), CreateAppointmentInput{
		ScheduleID: sched.ID, PatientID: "pat-1", Date: monday, StartMinute: 9 * 60, EndMinute: 9*60 + 30,
	}); err != nil {
		t.Fatalf("first booking failed: %v", err)
	}

	_, err := svc.CreateAppointment(context.Background(), CreateAppointmentInput{
		ScheduleID: other.ID, PatientID: "pat-1", Date: monday, StartMinute: 9 * 60, EndMinute: 9*60 + 30,
	})
	if !apperr.IsConflict(err) {
		t.Fatalf("expected conflict for patient double booking, got %v", err)
	}
}

func TestCreateAppointment_DayOffRejected(t *testing.T) {
	svc, schedules, dayOffs, _, _ := newTestService()
	sched := seedSchedule(t, schedules)
	dayOffs.byID["off-1"] = &model.DayOff{
		ID: "off-1", DoctorID: "doc-1", DateOff: monday, Status: model.DayOffEnabled,
	}

	_, err := svc.CreateAppointment(context.Background(), CreateAppointmentInput{
		ScheduleID: sched.ID, PatientID: "pat-1", Date: monday, StartMinute: 9 * 60, EndMinute: 9*60 + 30,
	})
	if !apperr.IsConflict(err) {
		t.Fatalf("expected conflict on day off, got %v", err)
	}

	slots, err := svc.AvailableSlots(context.Background(), "doc-1", monday)
	if err != nil {
		t.Fatalf("AvailableSlots failed: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("expected no slots on a day off, got %d", len(slots))
	}
}

func TestCreateAppointment_UnknownScheduleNotFound(t *testing.T) {
	svc, _, _, _, _ := newTestService()
	_, err := svc.CreateAppointment(context.Background(), CreateAppointmentInput{
		ScheduleID: "missing", PatientID: "pat-1", Date: monday, StartMinute: 9 * 60, EndMinute: 9*60 + 30,
	})
	if !apperr.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateAppointment_VanishedDoctorNotFound(t *testing.T) {
	svc, schedules, _, appts, emitter := newTestService()
	sched := seedSchedule(t, schedules)
	sched.DoctorID = "doc-gone"

	_, err := svc.CreateAppointment(context.Background(), CreateAppointmentInput{
		ScheduleID: sched.ID, PatientID: "pat-1", Date: monday, StartMinute: 9 * 60, EndMinute: 9*60 + 30,
	})
	if !apperr.IsNotFound(err) {
		t.Fatalf("expected not found for vanished doctor, got %v", err)
	}
	if len(appts.byID) != 0 {
		t.Fatal("no appointment may be persisted for a vanished doctor")
	}
	if len(emitter.emitted) != 0 {
		t.Fatal("no event may be emitted for a vanished doctor")
	}
}

func TestCreateAppointment_EmitFailureReturnsBookingWithSignal(t *testing.T) {
	svc, schedules, _, appts, emitter := newTestService()
	sched := seedSchedule(t, schedules)
	emitter.err = errors.New("broker unreachable")

	appt, err := svc.CreateAppointment(context.Background(), CreateAppointmentInput{
		ScheduleID: sched.ID, PatientID: "pat-1", Date: monday, StartMinute: 9 * 60, EndMinute: 9*60 + 30,
	})
	if !errors.Is(err, ErrNotify) {
		t.Fatalf("expected ErrNotify, got %v", err)
	}
	if appt == nil {
		t.Fatal("booking must be returned despite the publish failure")
	}
	stored, ok := appts.byID[appt.ID]
	if !ok {
		t.Fatal("booking must stay persisted despite the publish failure")
	}
	if stored.Status != model.AppointmentPending {
		t.Fatalf("expected PENDING, got %s", stored.Status)
	}
}

func TestCancelAppointment_FreesSlotAndIsIdempotent(t *testing.T) {
	svc, schedules, _, _, emitter := newTestService()
	sched := seedSchedule(t, schedules)

	appt, err := svc.CreateAppointment(context.Background(), CreateAppointmentInput{
		ScheduleID: sched.ID, PatientID: "pat-1", Date: monday, StartMinute: 10 * 60, EndMinute: 10*60 + 30,
	})
	if err != nil {
		t.Fatalf("booking failed: %v", err)
	}

	before, _ := svc.AvailableSlots(context.Background(), "doc-1", monday)

	cancelled, err := svc.CancelAppointment(context.Background(), appt.ID, "pat-1", "cannot make it")
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if cancelled.Status != model.AppointmentCancelled {
		t.Fatalf("expected CANCELLED, got %s", cancelled.Status)
	}
	if cancelled.InteractedBy != "pat-1" {
		t.Fatalf("expected interacted_by pat-1, got %q", cancelled.InteractedBy)
	}

	after, _ := svc.AvailableSlots(context.Background(), "doc-1", monday)
	if len(after) != len(before)+1 {
		t.Fatalf("cancel should free the slot: before=%d after=%d", len(before), len(after))
	}

	// Re-booking the freed slot must succeed.
	if _, err := svc.CreateAppointment(context.Background(), CreateAppointmentInput{
		ScheduleID: sched.ID, PatientID: "pat-2", Date: monday, StartMinute: 10 * 60, EndMinute: 10*60 + 30,
	}); err != nil {
		t.Fatalf("rebooking freed slot failed: %v", err)
	}

	emittedBefore := len(emitter.emitted)
	again, err := svc.CancelAppointment(context.Background(), appt.ID, "pat-1", "retry")
	if err != nil {
		t.Fatalf("repeated cancel should be a no-op: %v", err)
	}
	if again.Status != model.AppointmentCancelled {
		t.Fatalf("expected CANCELLED, got %s", again.Status)
	}
	if len(emitter.emitted) != emittedBefore {
		t.Fatal("repeated cancel must not emit another event")
	}
}

func TestCreateAppointment_EmitsCreatedEvent(t *testing.T) {
	svc, schedules, _, _, emitter := newTestService()
	sched := seedSchedule(t, schedules)

	appt, err := svc.CreateAppointment(context.Background(), CreateAppointmentInput{
		ScheduleID: sched.ID, PatientID: "pat-1", Date: monday, StartMinute: 9 * 60, EndMinute: 9*60 + 30,
	})
	if err != nil {
		t.Fatalf("booking failed: %v", err)
	}
	if len(emitter.emitted) != 1 {
		t.Fatalf("expected one event, got %d", len(emitter.emitted))
	}
	ev := emitter.emitted[0]
	if ev.Type != events.TypeAppointmentCreated {
		t.Fatalf("expected APPOINTMENT_CREATED, got %s", ev.Type)
	}
	if ev.AppointmentID != appt.ID {
		t.Fatalf("event carries wrong appointment id: %s", ev.AppointmentID)
	}
	if ev.Recipient != "alex@example.test" {
		t.Fatalf("event recipient should be the patient's email, got %q", ev.Recipient)
	}
	if ev.EventID == "" {
		t.Fatal("event id must be set")
	}
}

func TestAvailableSlots_NonWorkingDayEmpty(t *testing.T) {
	svc, schedules, _, _, _ := newTestService()
	seedSchedule(t, schedules)

	sunday := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	slots, err := svc.AvailableSlots(context.Background(), "doc-1", sunday)
	if err != nil {
		t.Fatalf("AvailableSlots failed: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("expected no slots on a non-working day, got %d", len(slots))
	}
}

func TestCreateSchedule_Validation(t *testing.T) {
	svc, _, _, _, _ := newTestService()

	_, err := svc.CreateSchedule(context.Background(), CreateScheduleInput{
		DoctorID: "doc-1", WorkingDays: []string{"MON"}, StartMinute: 10 * 60, EndMinute: 9 * 60, SlotDurationMinutes: 30,
	})
	if !apperr.IsValidation(err) {
		t.Fatalf("expected validation error for inverted hours, got %v", err)
	}

	_, err = svc.CreateSchedule(context.Background(), CreateScheduleInput{
		DoctorID: "doc-1", WorkingDays: []string{"FUNDAY"}, StartMinute: 9 * 60, EndMinute: 12 * 60, SlotDurationMinutes: 30,
	})
	if !apperr.IsValidation(err) {
		t.Fatalf("expected validation error for bad weekday token, got %v", err)
	}

	_, err = svc.CreateSchedule(context.Background(), CreateScheduleInput{
		DoctorID: "doc-unknown", WorkingDays: []string{"MON"}, StartMinute: 9 * 60, EndMinute: 12 * 60, SlotDurationMinutes: 30,
	})
	if !apperr.IsNotFound(err) {
		t.Fatalf("expected not found for unknown doctor, got %v", err)
	}
}
