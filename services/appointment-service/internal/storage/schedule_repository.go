package storage

import (
	"context"
	"fmt"

	"github.com/clinicbook/clinicbook/libs/db"
	"github.com/clinicbook/clinicbook/services/appointment-service/internal/apperr"
	"github.com/clinicbook/clinicbook/services/appointment-service/internal/model"
)

// ScheduleRepository persists doctor working schedules. One row per doctor;
// the unique index on doctor_id rejects a second schedule for the same doctor.
type ScheduleRepository struct {
	pool *db.Pool
}

func NewScheduleRepository(pool *db.Pool) *ScheduleRepository {
	return &ScheduleRepository{pool: pool}
}

const scheduleColumns = `id, doctor_id, working_days, start_minute, end_minute, slot_duration_minutes, consultation_fee, created_at`

func (r *ScheduleRepository) Create(ctx context.Context, s *model.Schedule) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO schedules (id, doctor_id, working_days, start_minute, end_minute, slot_duration_minutes, consultation_fee)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.DoctorID, s.WorkingDays, s.StartMinute, s.EndMinute, s.SlotDurationMinutes, s.ConsultationFee,
	)
	if err != nil {
		if IsConflict(err) {
			return apperr.Conflict("doctor %s already has a schedule", s.DoctorID)
		}
		return fmt.Errorf("insert schedule: %w", err)
	}
	return nil
}

func (r *ScheduleRepository) Update(ctx context.Context, s *model.Schedule) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE schedules
		SET working_days = $2, start_minute = $3, end_minute = $4, slot_duration_minutes = $5, consultation_fee = $6
		WHERE id = $1`,
		s.ID, s.WorkingDays, s.StartMinute, s.EndMinute, s.SlotDurationMinutes, s.ConsultationFee,
	)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("schedule %s not found", s.ID)
	}
	return nil
}

func (r *ScheduleRepository) GetByID(ctx context.Context, id string) (*model.Schedule, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = $1`, id)
	s, err := scanSchedule(row)
	if err != nil {
		if IsNotFound(err) {
			return nil, apperr.NotFound("schedule %s not found", id)
		}
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	return s, nil
}

func (r *ScheduleRepository) GetByDoctorID(ctx context.Context, doctorID string) (*model.Schedule, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE doctor_id = $1`, doctorID)
	s, err := scanSchedule(row)
	if err != nil {
		if IsNotFound(err) {
			return nil, apperr.NotFound("no schedule for doctor %s", doctorID)
		}
		return nil, fmt.Errorf("get schedule by doctor: %w", err)
	}
	return s, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (*model.Schedule, error) {
	var s model.Schedule
	err := row.Scan(&s.ID, &s.DoctorID, &s.WorkingDays, &s.StartMinute, &s.EndMinute, &s.SlotDurationMinutes, &s.ConsultationFee, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
