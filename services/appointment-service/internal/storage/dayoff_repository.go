package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/clinicbook/clinicbook/libs/db"
	"github.com/clinicbook/clinicbook/services/appointment-service/internal/apperr"
	"github.com/clinicbook/clinicbook/services/appointment-service/internal/model"
)

// DayOffRepository persists doctor days off. The partial unique index on
// (doctor_id, date_off) WHERE status = 'ENABLED' allows re-registering a
// day off after a previous one was disabled.
type DayOffRepository struct {
	pool *db.Pool
}

func NewDayOffRepository(pool *db.Pool) *DayOffRepository {
	return &DayOffRepository{pool: pool}
}

const dayOffColumns = `id, doctor_id, date_off, reason, created_by, status, created_at`

func (r *DayOffRepository) Create(ctx context.Context, d *model.DayOff) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO day_offs (id, doctor_id, date_off, reason, created_by, status)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		d.ID, d.DoctorID, d.DateOff, d.Reason, d.CreatedBy, d.Status,
	)
	if err != nil {
		if IsConflict(err) {
			return apperr.Conflict("doctor %s already has a day off on %s", d.DoctorID, d.DateOff.Format("2006-01-02"))
		}
		return fmt.Errorf("insert day off: %w", err)
	}
	return nil
}

// Disable marks a day off DISABLED. Disabling an already disabled row is a
// no-op rather than an error so the operation can be retried safely.
func (r *DayOffRepository) Disable(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE day_offs SET status = $2 WHERE id = $1`,
		id, model.DayOffDisabled,
	)
	if err != nil {
		return fmt.Errorf("disable day off: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("day off %s not found", id)
	}
	return nil
}

func (r *DayOffRepository) GetByID(ctx context.Context, id string) (*model.DayOff, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+dayOffColumns+` FROM day_offs WHERE id = $1`, id)
	var d model.DayOff
	err := row.Scan(&d.ID, &d.DoctorID, &d.DateOff, &d.Reason, &d.CreatedBy, &d.Status, &d.CreatedAt)
	if err != nil {
		if IsNotFound(err) {
			return nil, apperr.NotFound("day off %s not found", id)
		}
		return nil, fmt.Errorf("get day off: %w", err)
	}
	return &d, nil
}

// HasEnabledDayOff reports whether the doctor has an ENABLED day off on date.
func (r *DayOffRepository) HasEnabledDayOff(ctx context.Context, doctorID string, date time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM day_offs
			WHERE doctor_id = $1 AND date_off = $2 AND status = $3
		)`,
		doctorID, date, model.DayOffEnabled,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check day off: %w", err)
	}
	return exists, nil
}

func (r *DayOffRepository) ListByDoctor(ctx context.Context, doctorID string, status model.DayOffStatus) ([]*model.DayOff, error) {
	query := `SELECT ` + dayOffColumns + ` FROM day_offs WHERE doctor_id = $1`
	args := []any{doctorID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY date_off DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list day offs: %w", err)
	}
	defer rows.Close()

	var out []*model.DayOff
	for rows.Next() {
		var d model.DayOff
		if err := rows.Scan(&d.ID, &d.DoctorID, &d.DateOff, &d.Reason, &d.CreatedBy, &d.Status, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan day off: %w", err)
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}
