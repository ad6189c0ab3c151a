// Package delivery runs each notification event through its delivery state
// machine: PENDING on receipt, PROCESSING while dispatching, then SENT or
// FAILED. Failures that can succeed on a later attempt are returned to the
// consumer for retry; malformed events are terminal.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/google/uuid"

	"github.com/clinicbook/clinicbook/services/notification-service/internal/appointments"
	"github.com/clinicbook/clinicbook/services/notification-service/internal/email"
	"github.com/clinicbook/clinicbook/services/notification-service/internal/storage"
)

// Event is the payload the appointment service publishes.
type Event struct {
	EventID       string `json:"event_id"`
	Type          string `json:"type"`
	Message       string `json:"message"`
	Recipient     string `json:"recipient"`
	UserID        string `json:"user_id"`
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
}

const (
	TypeAppointmentCreated   = "APPOINTMENT_CREATED"
	TypeAppointmentUpdated   = "APPOINTMENT_UPDATED"
	TypeAppointmentCancelled = "APPOINTMENT_CANCELLED"
	TypeSystemAlert          = "SYSTEM_ALERT"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ErrRetryable wraps failures worth another delivery attempt.
var ErrRetryable = errors.New("retryable delivery failure")

type NotificationStore interface {
	Insert(ctx context.Context, n *storage.Notification) (bool, error)
	GetByEventID(ctx context.Context, eventID string) (*storage.Notification, error)
	SetStatus(ctx context.Context, id string, status storage.DeliveryStatus, errMsg string) error
}

type InfoClient interface {
	GetInfo(ctx context.Context, appointmentID string) (*appointments.Info, error)
}

type Worker struct {
	store  NotificationStore
	info   InfoClient
	sender email.Sender
	logger *slog.Logger
}

func NewWorker(store NotificationStore, info InfoClient, sender email.Sender, logger *slog.Logger) *Worker {
	return &Worker{store: store, info: info, sender: sender, logger: logger}
}

// Handle processes one event. A nil return means the event is settled, in
// SENT or terminal FAILED state; an ErrRetryable-wrapped return asks the
// consumer to redeliver.
func (w *Worker) Handle(ctx context.Context, ev Event) error {
	if ev.EventID == "" || ev.AppointmentID == "" {
		w.logger.Error("dropping malformed event", "event_id", ev.EventID, "type", ev.Type)
		return nil
	}

	n := &storage.Notification{
		ID:            uuid.NewString(),
		EventID:       ev.EventID,
		UserID:        ev.UserID,
		AppointmentID: ev.AppointmentID,
		Type:          ev.Type,
		Message:       ev.Message,
		Recipient:     ev.Recipient,
		Status:        storage.DeliveryPending,
	}
	inserted, err := w.store.Insert(ctx, n)
	if err != nil {
		// The event is consumed even when it cannot be persisted; record a
		// FAILED row on a best-effort basis so the failure stays visible.
		w.logger.Error("persist notification failed", "event_id", ev.EventID, "err", err)
		n.Status = storage.DeliveryFailed
		n.Error = "persist: " + err.Error()
		if _, ferr := w.store.Insert(ctx, n); ferr != nil {
			w.logger.Error("recording failed notification also failed", "event_id", ev.EventID, "err", ferr)
		}
		return nil
	}
	if !inserted {
		existing, err := w.store.GetByEventID(ctx, ev.EventID)
		if err != nil {
			return fmt.Errorf("%w: load deduplicated notification: %v", ErrRetryable, err)
		}
		if existing.Status == storage.DeliverySent {
			w.logger.Info("duplicate event already delivered", "event_id", ev.EventID)
			return nil
		}
		// Redelivery of an unfinished notification; resume it.
		n = existing
	}

	if !emailPattern.MatchString(ev.Recipient) && ev.Type != TypeSystemAlert {
		w.logger.Warn("invalid recipient address", "event_id", ev.EventID, "recipient", ev.Recipient)
		return w.settle(ctx, n.ID, storage.DeliveryFailed, "invalid recipient address", nil)
	}

	if err := w.store.SetStatus(ctx, n.ID, storage.DeliveryProcessing, ""); err != nil {
		return fmt.Errorf("%w: mark processing: %v", ErrRetryable, err)
	}

	switch ev.Type {
	case TypeAppointmentCreated, TypeAppointmentUpdated, TypeAppointmentCancelled:
		if err := w.sendAppointmentEmail(ctx, ev); err != nil {
			return w.settle(ctx, n.ID, storage.DeliveryFailed, err.Error(),
				fmt.Errorf("%w: %v", ErrRetryable, err))
		}
	case TypeSystemAlert:
		w.logger.Info("system alert", "event_id", ev.EventID, "message", ev.Message)
	default:
		w.logger.Error("unknown event type", "event_id", ev.EventID, "type", ev.Type)
		return w.settle(ctx, n.ID, storage.DeliveryFailed, "unknown event type "+ev.Type, nil)
	}

	return w.settle(ctx, n.ID, storage.DeliverySent, "", nil)
}

// settle records the final status. The passed-through error, if any, is the
// result the consumer sees; a status write failure upgrades it to retryable.
func (w *Worker) settle(ctx context.Context, id string, status storage.DeliveryStatus, errMsg string, result error) error {
	if err := w.store.SetStatus(ctx, id, status, errMsg); err != nil {
		return fmt.Errorf("%w: settle notification: %v", ErrRetryable, err)
	}
	return result
}

func (w *Worker) sendAppointmentEmail(ctx context.Context, ev Event) error {
	subject := subjectFor(ev.Type)
	body := ev.Message

	info, err := w.info.GetInfo(ctx, ev.AppointmentID)
	if err != nil {
		return fmt.Errorf("appointment info lookup: %w", err)
	}
	body = fmt.Sprintf("%s\n\nDoctor: %s\nClinic: %s\nAddress: %s\nDate: %s\nTime: %s - %s\n",
		ev.Message, info.DoctorName, info.ClinicName, info.Address,
		info.Date, info.StartTime, info.EndTime)

	if err := w.sender.Send(ev.Recipient, subject, body); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	w.logger.Info("notification delivered", "event_id", ev.EventID, "recipient", ev.Recipient, "type", ev.Type)
	return nil
}

func subjectFor(eventType string) string {
	switch eventType {
	case TypeAppointmentCreated:
		return "Your appointment was booked"
	case TypeAppointmentUpdated:
		return "Your appointment was confirmed"
	case TypeAppointmentCancelled:
		return "Your appointment was cancelled"
	default:
		return "Clinic notification"
	}
}
