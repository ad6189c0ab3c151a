// Package payment integrates the MoMo wallet gateway. Requests to the
// gateway and callbacks from it are both signed with HMAC-SHA256 over a
// raw string whose fields are concatenated in alphabetical key order.
package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/clinicbook/clinicbook/services/appointment-service/internal/apperr"
)

const requestTypeCaptureWallet = "captureWallet"

type MoMoConfig struct {
	Endpoint    string
	PartnerCode string
	AccessKey   string
	SecretKey   string
	IPNURL      string
	RedirectURL string
}

type MoMoClient struct {
	cfg  MoMoConfig
	http *http.Client
}

func NewMoMoClient(cfg MoMoConfig) *MoMoClient {
	return &MoMoClient{
		cfg: cfg,
		http: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type createRequest struct {
	PartnerCode string `json:"partnerCode"`
	RequestID   string `json:"requestId"`
	Amount      int64  `json:"amount"`
	OrderID     string `json:"orderId"`
	OrderInfo   string `json:"orderInfo"`
	RedirectURL string `json:"redirectUrl"`
	IPNURL      string `json:"ipnUrl"`
	RequestType string `json:"requestType"`
	ExtraData   string `json:"extraData"`
	Lang        string `json:"lang"`
	Signature   string `json:"signature"`
}

// CreateResponse is the gateway's answer to a payment creation request.
type CreateResponse struct {
	PayURL     string `json:"payUrl"`
	Deeplink   string `json:"deeplink"`
	QRCodeURL  string `json:"qrCodeUrl"`
	ResultCode int    `json:"resultCode"`
	Message    string `json:"message"`
}

// CreatePayment asks the gateway for a payment URL. The order id is the
// appointment id so the IPN callback can be routed back to it.
func (c *MoMoClient) CreatePayment(ctx context.Context, orderID string, amount int64, orderInfo string) (*CreateResponse, error) {
	requestID := uuid.NewString()
	req := createRequest{
		PartnerCode: c.cfg.PartnerCode,
		RequestID:   requestID,
		Amount:      amount,
		OrderID:     orderID,
		OrderInfo:   orderInfo,
		RedirectURL: c.cfg.RedirectURL,
		IPNURL:      c.cfg.IPNURL,
		RequestType: requestTypeCaptureWallet,
		ExtraData:   "",
		Lang:        "en",
	}
	req.Signature = c.signCreate(req)

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal momo request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, apperr.Upstream("momo request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperr.Upstream("momo request failed", fmt.Errorf("gateway returned %d", resp.StatusCode))
	}

	var out CreateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperr.Upstream("momo response decode failed", err)
	}
	if out.ResultCode != 0 {
		return nil, apperr.Upstream("momo rejected payment creation", fmt.Errorf("resultCode=%d message=%s", out.ResultCode, out.Message))
	}
	return &out, nil
}

// signCreate builds the creation signature. Field order is fixed by the
// gateway: accessKey, amount, extraData, ipnUrl, orderId, orderInfo,
// partnerCode, redirectUrl, requestId, requestType.
func (c *MoMoClient) signCreate(req createRequest) string {
	raw := "accessKey=" + c.cfg.AccessKey +
		"&amount=" + strconv.FormatInt(req.Amount, 10) +
		"&extraData=" + req.ExtraData +
		"&ipnUrl=" + req.IPNURL +
		"&orderId=" + req.OrderID +
		"&orderInfo=" + req.OrderInfo +
		"&partnerCode=" + req.PartnerCode +
		"&redirectUrl=" + req.RedirectURL +
		"&requestId=" + req.RequestID +
		"&requestType=" + req.RequestType
	return c.hmacHex(raw)
}

// IPNNotification is the callback the gateway posts after the user finishes
// or abandons the payment.
type IPNNotification struct {
	PartnerCode  string `json:"partnerCode"`
	OrderID      string `json:"orderId"`
	RequestID    string `json:"requestId"`
	Amount       int64  `json:"amount"`
	OrderInfo    string `json:"orderInfo"`
	OrderType    string `json:"orderType"`
	TransID      int64  `json:"transId"`
	ResultCode   int    `json:"resultCode"`
	Message      string `json:"message"`
	PayType      string `json:"payType"`
	ResponseTime int64  `json:"responseTime"`
	ExtraData    string `json:"extraData"`
	Signature    string `json:"signature"`
}

// VerifyIPN checks the callback signature against our secret. A forged or
// corrupted callback returns a validation error and must not change any
// appointment state.
func (c *MoMoClient) VerifyIPN(n IPNNotification) error {
	raw := "accessKey=" + c.cfg.AccessKey +
		"&amount=" + strconv.FormatInt(n.Amount, 10) +
		"&extraData=" + n.ExtraData +
		"&message=" + n.Message +
		"&orderId=" + n.OrderID +
		"&orderInfo=" + n.OrderInfo +
		"&orderType=" + n.OrderType +
		"&partnerCode=" + n.PartnerCode +
		"&payType=" + n.PayType +
		"&requestId=" + n.RequestID +
		"&responseTime=" + strconv.FormatInt(n.ResponseTime, 10) +
		"&resultCode=" + strconv.Itoa(n.ResultCode) +
		"&transId=" + strconv.FormatInt(n.TransID, 10)
	expected := c.hmacHex(raw)
	if !hmac.Equal([]byte(expected), []byte(n.Signature)) {
		return apperr.Validation("invalid ipn signature")
	}
	return nil
}

func (c *MoMoClient) hmacHex(raw string) string {
	mac := hmac.New(sha256.New, []byte(c.cfg.SecretKey))
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}
