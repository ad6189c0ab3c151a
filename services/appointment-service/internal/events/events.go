// Package events defines the notification events the appointment service
// publishes and the Kafka emitter that carries them.
package events

// Topics the appointment service produces to.
const (
	NotificationsTopic = "appointment.notifications.v1"
)

// Event types consumed by the notification service.
const (
	TypeAppointmentCreated   = "APPOINTMENT_CREATED"
	TypeAppointmentUpdated   = "APPOINTMENT_UPDATED"
	TypeAppointmentCancelled = "APPOINTMENT_CANCELLED"
	TypeSystemAlert          = "SYSTEM_ALERT"
)

// NotificationEvent is the payload published for every appointment state
// change. Recipient carries the patient's contact email resolved at emit
// time; UserID is the account the notification row belongs to.
type NotificationEvent struct {
	EventID       string `json:"event_id"`
	Type          string `json:"type"`
	Message       string `json:"message"`
	Recipient     string `json:"recipient"`
	UserID        string `json:"user_id"`
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
}
