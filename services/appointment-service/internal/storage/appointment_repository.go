package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/clinicbook/clinicbook/libs/db"
	"github.com/clinicbook/clinicbook/services/appointment-service/internal/apperr"
	"github.com/clinicbook/clinicbook/services/appointment-service/internal/availability"
	"github.com/clinicbook/clinicbook/services/appointment-service/internal/model"
)

// AppointmentRepository persists appointments. Conflict checks exclude
// CANCELLED rows so a cancelled booking frees its slot; the gist exclusion
// constraints on (schedule_id, date, minute range) and (patient_id, date,
// minute range) close the window between the SELECT predicates and the
// insert, surfacing as 23P01 which maps to a Conflict here.
type AppointmentRepository struct {
	pool *db.Pool
}

func NewAppointmentRepository(pool *db.Pool) *AppointmentRepository {
	return &AppointmentRepository{pool: pool}
}

const appointmentColumns = `id, schedule_id, patient_id, status, appointment_date, start_minute, end_minute, interacted_at, interacted_by, reason, created_at`

func (r *AppointmentRepository) Create(ctx context.Context, a *model.Appointment) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointments (id, schedule_id, patient_id, status, appointment_date, start_minute, end_minute)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.ScheduleID, a.PatientID, a.Status, a.Date, a.StartMinute, a.EndMinute,
	)
	if err != nil {
		if IsConflict(err) {
			return apperr.Conflict("time slot is no longer available")
		}
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *AppointmentRepository) GetByID(ctx context.Context, id string) (*model.Appointment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	a, err := scanAppointment(row)
	if err != nil {
		if IsNotFound(err) {
			return nil, apperr.NotFound("appointment %s not found", id)
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return a, nil
}

// UpdateStatus performs a guarded transition: the row must currently be in
// one of the from statuses or no row is updated and a Conflict is returned.
func (r *AppointmentRepository) UpdateStatus(ctx context.Context, id string, from []model.AppointmentStatus, to model.AppointmentStatus, interactedBy, reason string) (*model.Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2, interacted_at = $3, interacted_by = $4, reason = $5
		WHERE id = $1 AND status = ANY($6)
		RETURNING `+appointmentColumns,
		id, to, time.Now().UTC(), interactedBy, reason, statusStrings(from),
	)
	a, err := scanAppointment(row)
	if err != nil {
		if IsNotFound(err) {
			return nil, apperr.Conflict("appointment %s cannot transition to %s", id, to)
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}
	return a, nil
}

// DoctorHasOverlap reports whether any non-cancelled appointment on the
// schedule overlaps [startMinute, endMinute) on date.
func (r *AppointmentRepository) DoctorHasOverlap(ctx context.Context, scheduleID string, date time.Time, startMinute, endMinute int) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE schedule_id = $1 AND appointment_date = $2 AND status <> $3
			  AND start_minute < $5 AND $4 < end_minute
		)`,
		scheduleID, date, model.AppointmentCancelled, startMinute, endMinute,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check doctor overlap: %w", err)
	}
	return exists, nil
}

// PatientHasOverlap reports whether the patient already holds a
// non-cancelled appointment overlapping [startMinute, endMinute) on date,
// with any doctor.
func (r *AppointmentRepository) PatientHasOverlap(ctx context.Context, patientID string, date time.Time, startMinute, endMinute int) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE patient_id = $1 AND appointment_date = $2 AND status <> $3
			  AND start_minute < $5 AND $4 < end_minute
		)`,
		patientID, date, model.AppointmentCancelled, startMinute, endMinute,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check patient overlap: %w", err)
	}
	return exists, nil
}

// BusyIntervals returns the occupied minute windows for a schedule on date,
// excluding cancelled appointments, ordered by start.
func (r *AppointmentRepository) BusyIntervals(ctx context.Context, scheduleID string, date time.Time) ([]availability.Window, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT start_minute, end_minute FROM appointments
		WHERE schedule_id = $1 AND appointment_date = $2 AND status <> $3
		ORDER BY start_minute`,
		scheduleID, date, model.AppointmentCancelled,
	)
	if err != nil {
		return nil, fmt.Errorf("list busy intervals: %w", err)
	}
	defer rows.Close()

	var out []availability.Window
	for rows.Next() {
		var w availability.Window
		if err := rows.Scan(&w.StartMinute, &w.EndMinute); err != nil {
			return nil, fmt.Errorf("scan busy interval: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (r *AppointmentRepository) ListBySchedule(ctx context.Context, scheduleID string) ([]*model.Appointment, error) {
	return r.list(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE schedule_id = $1 ORDER BY appointment_date, start_minute`, scheduleID)
}

func (r *AppointmentRepository) ListByPatient(ctx context.Context, patientID string) ([]*model.Appointment, error) {
	return r.list(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE patient_id = $1 ORDER BY appointment_date, start_minute`, patientID)
}

func (r *AppointmentRepository) ListAll(ctx context.Context) ([]*model.Appointment, error) {
	return r.list(ctx, `SELECT `+appointmentColumns+` FROM appointments ORDER BY created_at DESC`)
}

func (r *AppointmentRepository) list(ctx context.Context, query string, args ...any) ([]*model.Appointment, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var out []*model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAppointment(row rowScanner) (*model.Appointment, error) {
	var a model.Appointment
	err := row.Scan(&a.ID, &a.ScheduleID, &a.PatientID, &a.Status, &a.Date, &a.StartMinute, &a.EndMinute, &a.InteractedAt, &a.InteractedBy, &a.Reason, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func statusStrings(statuses []model.AppointmentStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
