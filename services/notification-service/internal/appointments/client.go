// Package appointments is the notification service's read-only client for
// the appointment service, used to enrich emails with doctor and clinic
// details.
package appointments

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Info mirrors the appointment service's /api/appointments/{id}/info
// response.
type Info struct {
	DoctorName   string `json:"doctor_name"`
	Address      string `json:"address"`
	ClinicName   string `json:"clinic_name"`
	SpecialityID string `json:"speciality_id"`
	Date         string `json:"date"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
}

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http: &http.Client{
			Timeout:   5 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (c *Client) GetInfo(ctx context.Context, appointmentID string) (*Info, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/appointments/"+appointmentID+"/info", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("appointment info request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("appointment info returned %d for %s", resp.StatusCode, appointmentID)
	}
	var info Info
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("appointment info decode: %w", err)
	}
	return &info, nil
}
