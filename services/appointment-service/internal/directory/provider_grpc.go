//go:build protogen

package directory

import (
	"context"
	"time"

	"github.com/clinicbook/clinicbook/libs/grpcx"
	directoryv1 "github.com/clinicbook/clinicbook/protos/gen/directory/v1"
)

type grpcProvider struct {
	client directoryv1.DirectoryServiceClient
}

// NewGRPCProvider dials the directory service's gRPC endpoint. Returns a nil
// provider when no address is configured so callers can fall back to HTTP.
func NewGRPCProvider(addr string) (Provider, error) {
	if addr == "" {
		return nil, nil
	}
	conn, err := grpcx.Dial(context.Background(), addr, grpcx.DialOptions{Timeout: 3 * time.Second})
	if err != nil {
		return nil, err
	}
	return &grpcProvider{client: directoryv1.NewDirectoryServiceClient(conn)}, nil
}

func (p *grpcProvider) GetDoctor(ctx context.Context, doctorID string) (DoctorProfile, error) {
	resp, err := p.client.GetDoctor(ctx, &directoryv1.DoctorRequest{DoctorId: doctorID})
	if err != nil {
		return DoctorProfile{}, err
	}
	return DoctorProfile{
		FullName:     resp.GetFullName(),
		Address:      resp.GetAddress(),
		ClinicName:   resp.GetClinicName(),
		SpecialityID: resp.GetSpecialityId(),
		ContactEmail: resp.GetContactEmail(),
		OwnerUserID:  resp.GetOwnerUserId(),
	}, nil
}

func (p *grpcProvider) GetPatient(ctx context.Context, patientID string) (PatientProfile, error) {
	resp, err := p.client.GetPatient(ctx, &directoryv1.PatientRequest{PatientId: patientID})
	if err != nil {
		return PatientProfile{}, err
	}
	return PatientProfile{
		FullName:     resp.GetFullName(),
		ContactEmail: resp.GetContactEmail(),
		OwnerUserID:  resp.GetOwnerUserId(),
	}, nil
}
