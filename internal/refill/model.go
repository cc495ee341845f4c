package refill

import (
	"context"
	"time"

	"github.com/rxcare/platform/internal/shared/errors"
	"github.com/rxcare/platform/internal/shared/types"
)

// Status defines the lifecycle state of a refill request
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusApproved   Status = "APPROVED"
	StatusRejected   Status = "REJECTED"
	StatusFilled     Status = "FILLED"
	StatusDispatched Status = "DISPATCHED"
)

// ValidStatus reports whether s is a recognized refill status
func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusFilled, StatusDispatched:
		return true
	}
	return false
}

// Request is a patient's ask to have an approved prescription filled and
// delivered. A prescription gets at most one request over its lifetime.
type Request struct {
	ID              types.ID      `json:"id"`
	PrescriptionID  types.ID      `json:"prescription_id"`
	PatientID       types.ID      `json:"patient_id"`
	PharmacistID    *types.ID     `json:"pharmacist_id,omitempty"`
	Status          Status        `json:"status"`
	Delivery        types.Address `json:"delivery"`
	RejectionReason string        `json:"rejection_reason,omitempty"`
	RequestedAt     time.Time     `json:"requested_at"`
	ActionedAt      *time.Time    `json:"actioned_at,omitempty"`
}

// New creates a pending refill request with a validated delivery address
func New(prescriptionID, patientID types.ID, delivery types.Address) (*Request, error) {
	delivery.Normalize()
	if problems := delivery.Validate(); len(problems) > 0 {
		return nil, errors.Validation("invalid delivery address", problems)
	}
	return &Request{
		ID:             types.NewID(),
		PrescriptionID: prescriptionID,
		PatientID:      patientID,
		Status:         StatusPending,
		Delivery:       delivery,
		RequestedAt:    time.Now(),
	}, nil
}

// Approve moves a pending request to approved and records the acting
// pharmacist.
func (r *Request) Approve(pharmacistID types.ID) error {
	if r.Status != StatusPending {
		return errors.Conflict("only pending refill requests can be approved")
	}
	now := time.Now()
	r.Status = StatusApproved
	r.PharmacistID = &pharmacistID
	r.ActionedAt = &now
	return nil
}

// Reject moves a pending request to rejected. A reason is required so
// the patient learns why.
func (r *Request) Reject(pharmacistID types.ID, reason string) error {
	if r.Status != StatusPending {
		return errors.Conflict("only pending refill requests can be rejected")
	}
	if reason == "" {
		return errors.BadRequest("a rejection reason is required")
	}
	now := time.Now()
	r.Status = StatusRejected
	r.PharmacistID = &pharmacistID
	r.RejectionReason = reason
	r.ActionedAt = &now
	return nil
}

// MarkFilled moves an approved request to filled
func (r *Request) MarkFilled() error {
	if r.Status != StatusApproved {
		return errors.Conflict("only approved refill requests can be filled")
	}
	now := time.Now()
	r.Status = StatusFilled
	r.ActionedAt = &now
	return nil
}

// MarkDispatched moves a filled request to dispatched. An approved but
// unfilled request may also dispatch, covering fills recorded outside
// the system. The already bool reports an idempotent no-op on a request
// that has dispatched before.
func (r *Request) MarkDispatched() (already bool, err error) {
	if r.Status == StatusDispatched {
		return true, nil
	}
	if r.Status != StatusFilled && r.Status != StatusApproved {
		return false, errors.Conflict("refill request is not ready for dispatch")
	}
	now := time.Now()
	r.Status = StatusDispatched
	r.ActionedAt = &now
	return false, nil
}

// Repository defines refill request persistence
type Repository interface {
	Create(ctx context.Context, r *Request) error
	FindByID(ctx context.Context, id types.ID) (*Request, error)
	// FindByPrescription retrieves the prescription's dispatch-eligible
	// request, one in APPROVED, FILLED or DISPATCHED. A request stuck in
	// PENDING or REJECTED is not found.
	FindByPrescription(ctx context.Context, prescriptionID types.ID) (*Request, error)
	// Update persists an actioned request only when the stored row still
	// holds from. A lost race surfaces as a conflict.
	Update(ctx context.Context, r *Request, from Status) error
	// UpdateStatus flips status only when the stored row still holds
	// from. A lost race surfaces as a conflict.
	UpdateStatus(ctx context.Context, id types.ID, from, to Status) error
	ListByPatient(ctx context.Context, patientID types.ID) ([]Request, error)
	ListByStatus(ctx context.Context, status Status) ([]Request, error)
	ListAll(ctx context.Context) ([]Request, error)
	ExistsForPrescription(ctx context.Context, prescriptionID types.ID) (bool, error)
	// HasPending reports whether the prescription has an unactioned
	// refill request. Used to suppress redundant reminders.
	HasPending(ctx context.Context, prescriptionID types.ID) (bool, error)
}
