// Package lifecycle settles appointment status from payment outcomes. Only
// PENDING appointments can be settled; a replayed gateway callback hits a
// non-PENDING row and is rejected as a conflict.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"github.com/clinicbook/clinicbook/services/appointment-service/internal/apperr"
	"github.com/clinicbook/clinicbook/services/appointment-service/internal/availability"
	"github.com/clinicbook/clinicbook/services/appointment-service/internal/directory"
	"github.com/clinicbook/clinicbook/services/appointment-service/internal/events"
	"github.com/clinicbook/clinicbook/services/appointment-service/internal/model"
)

type AppointmentStore interface {
	GetByID(ctx context.Context, id string) (*model.Appointment, error)
	UpdateStatus(ctx context.Context, id string, from []model.AppointmentStatus, to model.AppointmentStatus, interactedBy, reason string) (*model.Appointment, error)
}

type ScheduleStore interface {
	GetByID(ctx context.Context, id string) (*model.Schedule, error)
}

type EventEmitter interface {
	Emit(ctx context.Context, ev events.NotificationEvent) error
}

type Controller struct {
	appointments AppointmentStore
	schedules    ScheduleStore
	dir          directory.Provider
	emitter      EventEmitter
	logger       *slog.Logger
}

func NewController(appointments AppointmentStore, schedules ScheduleStore, dir directory.Provider, emitter EventEmitter, logger *slog.Logger) *Controller {
	return &Controller{
		appointments: appointments,
		schedules:    schedules,
		dir:          dir,
		emitter:      emitter,
		logger:       logger,
	}
}

// EnsurePayable verifies that a payment may be initiated for the
// appointment: it must exist, be PENDING and carry a positive fee. Returns
// the appointment and the fee in minor units.
func (c *Controller) EnsurePayable(ctx context.Context, appointmentID string) (*model.Appointment, int64, error) {
	appt, err := c.appointments.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, 0, err
	}
	if appt.Status != model.AppointmentPending {
		return nil, 0, apperr.Conflict("appointment %s is %s, only PENDING appointments can be paid", appt.ID, appt.Status)
	}
	sched, err := c.schedules.GetByID(ctx, appt.ScheduleID)
	if err != nil {
		return nil, 0, err
	}
	fee, err := strconv.ParseInt(sched.ConsultationFee, 10, 64)
	if err != nil || fee <= 0 {
		return nil, 0, apperr.Validation("schedule %s has no payable consultation fee", sched.ID)
	}
	return appt, fee, nil
}

// AppointmentStatus returns the current appointment for payment status
// polling.
func (c *Controller) AppointmentStatus(ctx context.Context, appointmentID string) (*model.Appointment, error) {
	return c.appointments.GetByID(ctx, appointmentID)
}

// ApplyPaymentResult settles a PENDING appointment from a gateway result
// code: zero confirms, anything else cancels. The transition is recorded as
// performed by the payment system, not a user.
func (c *Controller) ApplyPaymentResult(ctx context.Context, appointmentID string, resultCode int, gatewayMessage string) (*model.Appointment, error) {
	to := model.AppointmentConfirmed
	eventType := events.TypeAppointmentUpdated
	if resultCode != 0 {
		to = model.AppointmentCancelled
		eventType = events.TypeAppointmentCancelled
	}

	appt, err := c.appointments.UpdateStatus(ctx, appointmentID,
		[]model.AppointmentStatus{model.AppointmentPending}, to,
		model.PaymentSystemActor, gatewayMessage)
	if err != nil {
		if apperr.IsConflict(err) {
			return nil, apperr.Conflict("payment for appointment %s already processed", appointmentID)
		}
		return nil, err
	}
	c.logger.Info("payment result applied",
		"appointment_id", appt.ID, "result_code", resultCode, "status", appt.Status)

	c.notify(ctx, appt, eventType, resultCode)
	return appt, nil
}

func (c *Controller) notify(ctx context.Context, appt *model.Appointment, eventType string, resultCode int) {
	if c.emitter == nil {
		return
	}
	patient, err := c.dir.GetPatient(ctx, appt.PatientID)
	if err != nil {
		c.logger.Error("patient lookup for notification failed", "appointment_id", appt.ID, "err", err)
		return
	}
	message := fmt.Sprintf("Your appointment on %s at %s is confirmed.",
		appt.Date.Format("2006-01-02"), availability.FormatMinute(appt.StartMinute))
	if resultCode != 0 {
		message = fmt.Sprintf("Payment failed, your appointment on %s at %s was cancelled.",
			appt.Date.Format("2006-01-02"), availability.FormatMinute(appt.StartMinute))
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
	if err := c.emitter.Emit(ctx, ev); err != nil {
		c.logger.Error("event publish failed", "appointment_id", appt.ID, "type", eventType, "err", err)
	}
}
