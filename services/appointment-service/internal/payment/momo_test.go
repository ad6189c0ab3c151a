package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/clinicbook/clinicbook/services/appointment-service/internal/apperr"
)

func testConfig(endpoint string) MoMoConfig {
	return MoMoConfig{
		Endpoint:    endpoint,
		PartnerCode: "MOMO",
		AccessKey:   "F8BBA842ECF85",
		SecretKey:   "K951B6PE1waDMi640xX08PD3vg6EkVlz",
		IPNURL:      "https://clinic.test/api/payment/momo/notify",
		RedirectURL: "https://clinic.test/payment/result",
	}
}

func TestSignCreate_FieldOrderAndTamperSensitivity(t *testing.T) {
	c := NewMoMoClient(testConfig("https://gateway.test/create"))
	req := createRequest{
		PartnerCode: c.cfg.PartnerCode,
		RequestID:   "req-1",
		Amount:      150000,
		OrderID:     "appt-1",
		OrderInfo:   "Consultation fee",
		RedirectURL: c.cfg.RedirectURL,
		IPNURL:      c.cfg.IPNURL,
		RequestType: requestTypeCaptureWallet,
	}

	sig := c.signCreate(req)
	if len(sig) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(sig))
	}
	if sig != c.signCreate(req) {
		t.Fatal("signature must be deterministic")
	}

	tampered := req
	tampered.Amount = 1
	if c.signCreate(tampered) == sig {
		t.Fatal("changing the amount must change the signature")
	}
}

func TestVerifyIPN(t *testing.T) {
	c := NewMoMoClient(testConfig("https://gateway.test/create"))
	n := IPNNotification{
		PartnerCode:  "MOMO",
		OrderID:      "appt-1",
		RequestID:    "req-1",
		Amount:       150000,
		OrderInfo:    "Consultation fee",
		OrderType:    "momo_wallet",
		TransID:      4014083433,
		ResultCode:   0,
		Message:      "Successful.",
		PayType:      "qr",
		ResponseTime: 1710000000000,
	}
	n.Signature = c.hmacHex("accessKey=" + c.cfg.AccessKey +
		"&amount=150000&extraData=&message=Successful.&orderId=appt-1" +
		"&orderInfo=Consultation fee&orderType=momo_wallet&partnerCode=MOMO" +
		"&payType=qr&requestId=req-1&responseTime=1710000000000&resultCode=0&transId=4014083433")

	if err := c.VerifyIPN(n); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}

	forged := n
	forged.Amount = 1
	if err := c.VerifyIPN(forged); !apperr.IsValidation(err) {
		t.Fatalf("tampered callback should fail validation, got %v", err)
	}

	unsigned := n
	unsigned.Signature = ""
	if err := c.VerifyIPN(unsigned); !apperr.IsValidation(err) {
		t.Fatalf("missing signature should fail validation, got %v", err)
	}
}

func TestCreatePayment(t *testing.T) {
	var got createRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(CreateResponse{
			PayURL:     "https://pay.test/abc",
			ResultCode: 0,
			Message:    "Successful.",
		})
	}))
	defer srv.Close()

	c := NewMoMoClient(testConfig(srv.URL))
	resp, err := c.CreatePayment(context.Background(), "appt-1", 150000, "Consultation fee")
	if err != nil {
		t.Fatalf("CreatePayment failed: %v", err)
	}
	if resp.PayURL != "https://pay.test/abc" {
		t.Fatalf("unexpected pay url %q", resp.PayURL)
	}

	if got.OrderID != "appt-1" || got.Amount != 150000 || got.RequestType != requestTypeCaptureWallet {
		t.Fatalf("unexpected gateway request: %+v", got)
	}
	if got.RequestID == "" {
		t.Fatal("request id must be set")
	}
	if got.Signature == "" || strings.ContainsAny(got.Signature, "ABCDEF") {
		t.Fatalf("signature must be lowercase hex, got %q", got.Signature)
	}
}

func TestCreatePayment_GatewayRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(CreateResponse{ResultCode: 41, Message: "Order already exists"})
	}))
	defer srv.Close()

	c := NewMoMoClient(testConfig(srv.URL))
	_, err := c.CreatePayment(context.Background(), "appt-1", 150000, "Consultation fee")
	if !apperr.IsUpstream(err) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}
