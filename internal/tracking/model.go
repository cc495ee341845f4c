package tracking

import (
	"context"
	"time"

	"github.com/rxcare/platform/internal/shared/types"
)

// Status is one step of a prescription's fulfillment timeline. The
// vocabulary is ordered but the ledger is not a strict state machine:
// legacy prescriptions may carry sparse timelines.
type Status string

const (
	StatusUploaded        Status = "UPLOADED"
	StatusApproved        Status = "APPROVED"
	StatusRefillRequested Status = "REFILL_REQUESTED"
	StatusRefillApproved  Status = "REFILL_APPROVED"
	StatusFilling         Status = "FILLING"
	StatusFilled          Status = "FILLED"
	StatusDispatched      Status = "DISPATCHED"
	StatusDelivered       Status = "DELIVERED"
)

// ValidStatus reports whether s is a recognized tracking status
func ValidStatus(s Status) bool {
	switch s {
	case StatusUploaded, StatusApproved, StatusRefillRequested, StatusRefillApproved,
		StatusFilling, StatusFilled, StatusDispatched, StatusDelivered:
		return true
	}
	return false
}

// Event is one immutable entry in a prescription's timeline. Events are
// only ever appended, never updated or deleted.
type Event struct {
	ID             types.ID  `json:"id"`
	PrescriptionID types.ID  `json:"prescription_id"`
	Status         Status    `json:"status"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Repository defines append-only tracking ledger persistence
type Repository interface {
	Append(ctx context.Context, e *Event) error
	ListByPrescription(ctx context.Context, prescriptionID types.ID) ([]Event, error)
	CountByPrescription(ctx context.Context, prescriptionID types.ID) (int, error)
}

// PrescriptionProbe resolves the review status of a prescription. The
// concrete lookup lives in the prescription store; the ledger only needs
// existence and approval.
type PrescriptionProbe interface {
	Status(ctx context.Context, id types.ID) (string, error)
}
