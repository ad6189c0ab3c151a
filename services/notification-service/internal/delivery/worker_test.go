package delivery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/clinicbook/clinicbook/services/notification-service/internal/appointments"
	"github.com/clinicbook/clinicbook/services/notification-service/internal/storage"
)

type memStore struct {
	byEventID map[string]*storage.Notification
	byID      map[string]*storage.Notification

	// insertFails makes the next N Insert calls fail; -1 fails all of them.
	insertFails int
}

func newMemStore() *memStore {
	return &memStore{
		byEventID: map[string]*storage.Notification{},
		byID:      map[string]*storage.Notification{},
	}
}

func (m *memStore) Insert(_ context.Context, n *storage.Notification) (bool, error) {
	if m.insertFails != 0 {
		if m.insertFails > 0 {
			m.insertFails--
		}
		return false, errors.New("db down")
	}
	if _, ok := m.byEventID[n.EventID]; ok {
		return false, nil
	}
	cp := *n
	m.byEventID[n.EventID] = &cp
	m.byID[n.ID] = &cp
	return true, nil
}

func (m *memStore) GetByEventID(_ context.Context, eventID string) (*storage.Notification, error) {
	n, ok := m.byEventID[eventID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return n, nil
}

func (m *memStore) SetStatus(_ context.Context, id string, status storage.DeliveryStatus, errMsg string) error {
	n, ok := m.byID[id]
	if !ok {
		return storage.ErrNotFound
	}
	n.Status = status
	n.Error = errMsg
	return nil
}

type memInfoClient struct {
	info *appointments.Info
	err  error
}

func (m *memInfoClient) GetInfo(_ context.Context, _ string) (*appointments.Info, error) {
	return m.info, m.err
}

type memSender struct {
	sent []string
	err  error
}

func (m *memSender) Send(to, _, _ string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, to)
	return nil
}

func testEvent() Event {
	return Event{
		EventID:       "evt-1",
		Type:          TypeAppointmentCreated,
		Message:       "Your appointment is awaiting payment.",
		Recipient:     "alex@example.test",
		UserID:        "user-1",
		AppointmentID: "appt-1",
		Status:        "PENDING",
	}
}

func newTestWorker(store *memStore, info *memInfoClient, sender *memSender) *Worker {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewWorker(store, info, sender, logger)
}

func TestHandle_DeliversAndMarksSent(t *testing.T) {
	store := newMemStore()
	sender := &memSender{}
	w := newTestWorker(store, &memInfoClient{info: &appointments.Info{
		DoctorName: "Dr. Mina Tran", ClinicName: "Sunrise Clinic",
		Date: "2026-03-02", StartTime: "09:00", EndTime: "09:30",
	}}, sender)

	if err := w.Handle(context.Background(), testEvent()); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	n := store.byEventID["evt-1"]
	if n == nil {
		t.Fatal("notification row not persisted")
	}
	if n.Status != storage.DeliverySent {
		t.Fatalf("expected SENT, got %s", n.Status)
	}
	if len(sender.sent) != 1 || sender.sent[0] != "alex@example.test" {
		t.Fatalf("email not sent to recipient: %v", sender.sent)
	}
}

func TestHandle_InvalidRecipientFailsWithoutSending(t *testing.T) {
	store := newMemStore()
	sender := &memSender{}
	w := newTestWorker(store, &memInfoClient{}, sender)

	ev := testEvent()
	ev.Recipient = "not-an-address"
	if err := w.Handle(context.Background(), ev); err != nil {
		t.Fatalf("invalid recipient is terminal, expected nil error: %v", err)
	}
	n := store.byEventID["evt-1"]
	if n.Status != storage.DeliveryFailed {
		t.Fatalf("expected FAILED, got %s", n.Status)
	}
	if len(sender.sent) != 0 {
		t.Fatal("no email may be sent for an invalid recipient")
	}
}

func TestHandle_SendFailureIsRetryable(t *testing.T) {
	store := newMemStore()
	sender := &memSender{err: errors.New("smtp connect refused")}
	w := newTestWorker(store, &memInfoClient{info: &appointments.Info{}}, sender)

	err := w.Handle(context.Background(), testEvent())
	if !errors.Is(err, ErrRetryable) {
		t.Fatalf("expected retryable error, got %v", err)
	}
	if store.byEventID["evt-1"].Status != storage.DeliveryFailed {
		t.Fatalf("expected FAILED, got %s", store.byEventID["evt-1"].Status)
	}

	// A later redelivery with a working relay resumes the same row.
	sender.err = nil
	if err := w.Handle(context.Background(), testEvent()); err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}
	if store.byEventID["evt-1"].Status != storage.DeliverySent {
		t.Fatalf("expected SENT after retry, got %s", store.byEventID["evt-1"].Status)
	}
}

func TestHandle_DuplicateDeliveredEventSkipped(t *testing.T) {
	store := newMemStore()
	sender := &memSender{}
	w := newTestWorker(store, &memInfoClient{info: &appointments.Info{}}, sender)

	if err := w.Handle(context.Background(), testEvent()); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}
	if err := w.Handle(context.Background(), testEvent()); err != nil {
		t.Fatalf("duplicate delivery failed: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("duplicate event must not send again, sent %d times", len(sender.sent))
	}
}

func TestHandle_InfoLookupFailureIsRetryable(t *testing.T) {
	store := newMemStore()
	w := newTestWorker(store, &memInfoClient{err: errors.New("connection refused")}, &memSender{})

	err := w.Handle(context.Background(), testEvent())
	if !errors.Is(err, ErrRetryable) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}

func TestHandle_SystemAlertLogsOnly(t *testing.T) {
	store := newMemStore()
	sender := &memSender{}
	w := newTestWorker(store, &memInfoClient{}, sender)

	ev := testEvent()
	ev.Type = TypeSystemAlert
	ev.Recipient = ""
	if err := w.Handle(context.Background(), ev); err != nil {
		t.Fatalf("system alert failed: %v", err)
	}
	if store.byEventID["evt-1"].Status != storage.DeliverySent {
		t.Fatalf("expected SENT, got %s", store.byEventID["evt-1"].Status)
	}
	if len(sender.sent) != 0 {
		t.Fatal("system alerts must not send email")
	}
}

func TestHandle_UnknownTypeIsTerminalFailure(t *testing.T) {
	store := newMemStore()
	w := newTestWorker(store, &memInfoClient{}, &memSender{})

	ev := testEvent()
	ev.Type = "SOMETHING_ELSE"
	if err := w.Handle(context.Background(), ev); err != nil {
		t.Fatalf("unknown type is terminal, expected nil error: %v", err)
	}
	if store.byEventID["evt-1"].Status != storage.DeliveryFailed {
		t.Fatalf("expected FAILED, got %s", store.byEventID["evt-1"].Status)
	}
}

func TestHandle_PersistFailureRecordsFailedRow(t *testing.T) {
	store := newMemStore()
	store.insertFails = 1
	sender := &memSender{}
	w := newTestWorker(store, &memInfoClient{}, sender)

	if err := w.Handle(context.Background(), testEvent()); err != nil {
		t.Fatalf("persist failure is settled, expected nil error: %v", err)
	}
	n := store.byEventID["evt-1"]
	if n == nil {
		t.Fatal("expected a failure row for the unpersisted event")
	}
	if n.Status != storage.DeliveryFailed {
		t.Fatalf("expected FAILED, got %s", n.Status)
	}
	if n.Error == "" {
		t.Fatal("failure row must carry the persist error")
	}
	if len(sender.sent) != 0 {
		t.Fatal("no email may be sent when the event was never persisted")
	}
}

func TestHandle_PersistFailureWithStoreDownIsStillSettled(t *testing.T) {
	store := newMemStore()
	store.insertFails = -1
	sender := &memSender{}
	w := newTestWorker(store, &memInfoClient{}, sender)

	if err := w.Handle(context.Background(), testEvent()); err != nil {
		t.Fatalf("failure-row write is best effort, expected nil error: %v", err)
	}
	if len(store.byEventID) != 0 {
		t.Fatal("no row can exist while the store is down")
	}
	if len(sender.sent) != 0 {
		t.Fatal("no email may be sent when the event was never persisted")
	}
}
