package prescription

import (
	"context"
	"fmt"
	"time"

	"github.com/rxcare/platform/internal/shared/types"
)

// Status defines the review state of a prescription
type Status string

const (
	StatusPending               Status = "PENDING"
	StatusApproved              Status = "APPROVED"
	StatusRejected              Status = "REJECTED"
	StatusRequiresClarification Status = "REQUIRES_CLARIFICATION"
)

// ValidStatus reports whether s is a recognized prescription status
func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusRequiresClarification:
		return true
	}
	return false
}

// Prescription is a patient's uploaded prescription image plus its review
// state. The image itself lives in external storage; ImageRef is the opaque
// reference handed back by that store.
type Prescription struct {
	ID        types.ID  `json:"id"`
	PatientID types.ID  `json:"patient_id"`
	ImageRef  string    `json:"image_ref"`
	Status    Status    `json:"status"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates a pending prescription for an uploaded image
func New(patientID types.ID, imageRef string) (*Prescription, error) {
	if patientID.IsZero() {
		return nil, fmt.Errorf("patient is required")
	}
	if imageRef == "" {
		return nil, fmt.Errorf("image reference is required")
	}

	now := time.Now()
	return &Prescription{
		ID:        types.NewID(),
		PatientID: patientID,
		ImageRef:  imageRef,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Review records a pharmacist's decision. A reviewed prescription may be
// reviewed again (clarification followed by approval is a normal path).
func (p *Prescription) Review(status Status, notes string) error {
	if !ValidStatus(status) {
		return fmt.Errorf("unknown prescription status %q", status)
	}
	if status == StatusPending {
		return fmt.Errorf("cannot review back to pending")
	}

	p.Status = status
	p.Notes = notes
	p.UpdatedAt = time.Now()
	return nil
}

// Repository defines prescription persistence
type Repository interface {
	Create(ctx context.Context, p *Prescription) error
	FindByID(ctx context.Context, id types.ID) (*Prescription, error)
	Update(ctx context.Context, p *Prescription) error
	ListByPatient(ctx context.Context, patientID types.ID) ([]Prescription, error)
	ListByStatus(ctx context.Context, status Status) ([]Prescription, error)
	ListAll(ctx context.Context) ([]Prescription, error)
	DeleteByPatient(ctx context.Context, patientID types.ID) error
}
