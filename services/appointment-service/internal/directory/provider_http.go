package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/clinicbook/clinicbook/services/appointment-service/internal/apperr"
)

// HTTPProvider looks profiles up over the directory service's internal REST
// API. Requests go through the otelhttp transport so lookups show up as
// child spans of the booking request.
type HTTPProvider struct {
	baseURL string
	http    *http.Client
}

func NewHTTPProvider(baseURL string) *HTTPProvider {
	return &HTTPProvider{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http: &http.Client{
			Timeout:   5 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (p *HTTPProvider) GetDoctor(ctx context.Context, doctorID string) (DoctorProfile, error) {
	var profile DoctorProfile
	if err := p.get(ctx, "/internal/doctors/"+doctorID, "doctor", doctorID, &profile); err != nil {
		return DoctorProfile{}, err
	}
	return profile, nil
}

func (p *HTTPProvider) GetPatient(ctx context.Context, patientID string) (PatientProfile, error) {
	var profile PatientProfile
	if err := p.get(ctx, "/internal/patients/"+patientID, "patient", patientID, &profile); err != nil {
		return PatientProfile{}, err
	}
	return profile, nil
}

func (p *HTTPProvider) get(ctx context.Context, path, kind, id string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return apperr.Upstream("directory lookup failed", err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return apperr.NotFound("%s %s not found", kind, id)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return apperr.Upstream("directory lookup failed", fmt.Errorf("directory returned %d for %s %s", resp.StatusCode, kind, id))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Upstream("directory response decode failed", err)
	}
	return nil
}
