package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/clinicbook/clinicbook/services/appointment-service/internal/lifecycle"
	"github.com/clinicbook/clinicbook/services/appointment-service/internal/model"
	"github.com/clinicbook/clinicbook/services/appointment-service/internal/payment"
)

type PaymentHandler struct {
	momo      *payment.MoMoClient
	lifecycle *lifecycle.Controller
	logger    *slog.Logger
}

func NewPaymentHandler(momo *payment.MoMoClient, lc *lifecycle.Controller, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{momo: momo, lifecycle: lc, logger: logger}
}

type createPaymentRequest struct {
	AppointmentID string `json:"appointment_id"`
}

type createPaymentResponse struct {
	AppointmentID string `json:"appointment_id"`
	Amount        int64  `json:"amount"`
	PayURL        string `json:"pay_url"`
	Deeplink      string `json:"deeplink,omitempty"`
	QRCodeURL     string `json:"qr_code_url,omitempty"`
}

// Create handles POST /api/payment/momo/create: it checks the appointment
// is payable and asks the gateway for a payment URL.
func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id is required", http.StatusBadRequest)
		return
	}

	appt, fee, err := h.lifecycle.EnsurePayable(r.Context(), req.AppointmentID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	resp, err := h.momo.CreatePayment(r.Context(), appt.ID, fee, "Consultation fee for appointment "+appt.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, createPaymentResponse{
		AppointmentID: appt.ID,
		Amount:        fee,
		PayURL:        resp.PayURL,
		Deeplink:      resp.Deeplink,
		QRCodeURL:     resp.QRCodeURL,
	})
}

// Notify handles POST /api/payment/momo/notify, the gateway's IPN callback.
// The gateway expects 204 once the notification is accepted; a rejected
// signature gets 400 and changes nothing.
func (h *PaymentHandler) Notify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var n payment.IPNNotification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if err := h.momo.VerifyIPN(n); err != nil {
		h.logger.Warn("rejected ipn callback", "order_id", n.OrderID, "err", err)
		writeError(w, h.logger, err)
		return
	}

	if _, err := h.lifecycle.ApplyPaymentResult(r.Context(), n.OrderID, n.ResultCode, n.Message); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Status handles GET /api/payment/appointments/{id}/status.
func (h *PaymentHandler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/payment/appointments/"), "/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "status" {
		http.NotFound(w, r)
		return
	}

	appt, err := h.lifecycle.AppointmentStatus(r.Context(), parts[0])
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	paid := appt.Status == model.AppointmentConfirmed
	writeJSON(w, http.StatusOK, map[string]any{
		"appointment_id": appt.ID,
		"status":         appt.Status,
		"paid":           paid,
	})
}
