package user

import (
	"context"
	"time"

	"github.com/rxcare/platform/internal/shared/types"
)

// Role tags a user with its capability set
type Role string

const (
	RolePatient    Role = "patient"
	RolePharmacist Role = "pharmacist"
	RoleAdmin      Role = "admin"
)

// User is the identity record consumed by the workflow. Identity storage
// and authentication live outside this service; only the lookup contract
// is depended on here.
type User struct {
	ID    types.ID `json:"id"`
	Email string   `json:"email"`
	Name  string   `json:"name"`
	Phone string   `json:"phone"`
	Role  Role     `json:"role"`

	// Role-specific payload, keyed by Role.
	Patient    *PatientProfile    `json:"patient,omitempty"`
	Pharmacist *PharmacistProfile `json:"pharmacist,omitempty"`
}

// PatientProfile carries patient-only fields
type PatientProfile struct {
	DateOfBirth    *time.Time `json:"date_of_birth,omitempty"`
	RemindersOptIn bool       `json:"reminders_opt_in"`
}

// PharmacistProfile carries pharmacist-only fields
type PharmacistProfile struct {
	LicenseNumber string `json:"license_number"`
}

// IsPatient reports whether the user holds the patient role
func (u *User) IsPatient() bool {
	return u.Role == RolePatient
}

// IsPharmacist reports whether the user holds the pharmacist role
func (u *User) IsPharmacist() bool {
	return u.Role == RolePharmacist
}

// Directory resolves users by email or id. Implemented externally by the
// identity service; a memory implementation ships for limited mode and tests.
type Directory interface {
	LookupByEmail(ctx context.Context, email string) (*User, error)
	LookupByID(ctx context.Context, id types.ID) (*User, error)
}
