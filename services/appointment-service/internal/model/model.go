package model

import "time"

type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "PENDING"
	AppointmentConfirmed AppointmentStatus = "CONFIRMED"
	AppointmentCancelled AppointmentStatus = "CANCELLED"
)

type DayOffStatus string

const (
	DayOffEnabled  DayOffStatus = "ENABLED"
	DayOffDisabled DayOffStatus = "DISABLED"
)

// PaymentSystemActor is recorded as InteractedBy for gateway-driven status
// changes, so user-driven and system-driven transitions stay distinguishable.
const PaymentSystemActor = "PAYMENT_SYSTEM"

// Schedule is a doctor's recurring weekly availability template.
// Exactly one schedule exists per doctor. Times are minutes from midnight.
type Schedule struct {
	ID                  string
	DoctorID            string
	WorkingDays         []string // MON..SUN tokens
	StartMinute         int
	EndMinute           int
	SlotDurationMinutes int
	ConsultationFee     string // numeric string, e.g. "150000"
	CreatedAt           time.Time
}

// WorksOn reports whether the schedule covers the given weekday.
func (s Schedule) WorksOn(day time.Weekday) bool {
	token := weekdayTokens[day]
	for _, d := range s.WorkingDays {
		if d == token {
			return true
		}
	}
	return false
}

var weekdayTokens = map[time.Weekday]string{
	time.Monday:    "MON",
	time.Tuesday:   "TUE",
	time.Wednesday: "WED",
	time.Thursday:  "THU",
	time.Friday:    "FRI",
	time.Saturday:  "SAT",
	time.Sunday:    "SUN",
}

// WeekdayToken returns the MON..SUN token for a weekday.
func WeekdayToken(day time.Weekday) string {
	return weekdayTokens[day]
}

// IsWeekdayToken reports whether s is a valid MON..SUN token.
func IsWeekdayToken(s string) bool {
	for _, token := range weekdayTokens {
		if token == s {
			return true
		}
	}
	return false
}

// DayOff blocks all of a doctor's slots on a single date. Cancelled day-offs
// are disabled, not deleted, so the audit trail survives.
type DayOff struct {
	ID        string
	DoctorID  string
	DateOff   time.Time // date at midnight UTC
	Reason    string
	CreatedBy string
	Status    DayOffStatus
	CreatedAt time.Time
}

// Appointment is a patient's reservation of one slot. It references its
// schedule one-directionally; "a schedule's appointments" is a query.
type Appointment struct {
	ID           string
	ScheduleID   string
	PatientID    string
	Status       AppointmentStatus
	Date         time.Time // date at midnight UTC
	StartMinute  int
	EndMinute    int
	InteractedAt *time.Time
	InteractedBy string
	Reason       string
	CreatedAt    time.Time
}

// AppointmentInfo is the human-readable detail the notification service
// renders into e-mail bodies.
type AppointmentInfo struct {
	DoctorName   string
	Address      string
	ClinicName   string
	SpecialityID string
	Date         time.Time
	StartMinute  int
	EndMinute    int
}
