// Package directory resolves doctor and patient profiles from the clinic
// directory service. The default provider speaks HTTP; a gRPC provider is
// available when the generated proto bindings are built in.
package directory

import "context"

// DoctorProfile is the subset of the directory's doctor record the
// appointment flows need.
type DoctorProfile struct {
	FullName     string `json:"full_name"`
	Address      string `json:"address"`
	ClinicName   string `json:"clinic_name"`
	SpecialityID string `json:"speciality_id"`
	ContactEmail string `json:"contact_email"`
	OwnerUserID  string `json:"owner_user_id"`
}

// PatientProfile carries the patient's display name and notification target.
type PatientProfile struct {
	FullName     string `json:"full_name"`
	ContactEmail string `json:"contact_email"`
	OwnerUserID  string `json:"owner_user_id"`
}

type Provider interface {
	GetDoctor(ctx context.Context, doctorID string) (DoctorProfile, error)
	GetPatient(ctx context.Context, patientID string) (PatientProfile, error)
}
