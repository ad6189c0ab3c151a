package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/clinicbook/clinicbook/libs/db"
)

// DeliveryStatus tracks a notification through its send attempt.
type DeliveryStatus string

const (
	DeliveryPending    DeliveryStatus = "PENDING"
	DeliveryProcessing DeliveryStatus = "PROCESSING"
	DeliverySent       DeliveryStatus = "SENT"
	DeliveryFailed     DeliveryStatus = "FAILED"
)

var ErrNotFound = errors.New("notification not found")

type Notification struct {
	ID            string
	EventID       string
	UserID        string
	AppointmentID string
	Type          string
	Message       string
	Recipient     string
	Status        DeliveryStatus
	Error         string
	Read          bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

const notificationColumns = `id, event_id, user_id, appointment_id, type, message, recipient, status, error, read, created_at, updated_at`

// Insert records a notification keyed by its event id. A redelivered event
// hits the unique index on event_id and reports inserted=false so the
// consumer can skip it.
func (r *Repository) Insert(ctx context.Context, n *Notification) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (id, event_id, user_id, appointment_id, type, message, recipient, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id) DO NOTHING`,
		n.ID, n.EventID, n.UserID, n.AppointmentID, n.Type, n.Message, n.Recipient, n.Status,
	)
	if err != nil {
		return false, fmt.Errorf("insert notification: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) GetByEventID(ctx context.Context, eventID string) (*Notification, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE event_id = $1`, eventID)
	n, err := scanNotification(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get notification by event: %w", err)
	}
	return n, nil
}

func (r *Repository) SetStatus(ctx context.Context, id string, status DeliveryStatus, errMsg string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications SET status = $2, error = $3, updated_at = now()
		WHERE id = $1`,
		id, status, errMsg,
	)
	if err != nil {
		return fmt.Errorf("set notification status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) MarkRead(ctx context.Context, id string) (*Notification, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE notifications SET read = TRUE, updated_at = now()
		WHERE id = $1
		RETURNING `+notificationColumns,
		id,
	)
	n, err := scanNotification(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("mark notification read: %w", err)
	}
	return n, nil
}

func (r *Repository) ListByUser(ctx context.Context, userID string) ([]*Notification, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(row rowScanner) (*Notification, error) {
	var n Notification
	err := row.Scan(&n.ID, &n.EventID, &n.UserID, &n.AppointmentID, &n.Type, &n.Message,
		&n.Recipient, &n.Status, &n.Error, &n.Read, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &n, nil
}
