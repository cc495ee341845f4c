package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/rxcare/platform/internal/shared/errors"
	"github.com/rxcare/platform/internal/shared/types"
)

// Inventory is one pharmacist's stock record for one medicine, keyed by
// (medicine, pharmacist). StockQuantity never goes below zero; the only
// write path that decrements it is the atomic reserve.
type Inventory struct {
	MedicineID        types.ID   `json:"medicine_id"`
	PharmacistID      types.ID   `json:"pharmacist_id"`
	MedicineName      string     `json:"medicine_name"`
	StockQuantity     int        `json:"stock_quantity"`
	LowStockThreshold int        `json:"low_stock_threshold"`
	ExpiryDate        *time.Time `json:"expiry_date,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// IsLowStock reports whether the row sits at or below its threshold.
// Derived, never stored.
func (i Inventory) IsLowStock() bool {
	return i.StockQuantity <= i.LowStockThreshold
}

// Need is one line of a reservation: how many units of a medicine a fill
// requires.
type Need struct {
	MedicineID types.ID
	Amount     int
}

// Reservation is the audit record of one applied decrement
type Reservation struct {
	MedicineID   types.ID
	MedicineName string
	Before       int
	After        int
	LowStock     bool
}

// InsufficientStockError rejects a reservation that would oversell a row
type InsufficientStockError struct {
	MedicineID types.ID
	Available  int
	Requested  int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for medicine %s: have %d, need %d",
		e.MedicineID, e.Available, e.Requested)
}

// Unwrap lets callers detect the conflict class with errors.Is
func (e *InsufficientStockError) Unwrap() error {
	return errors.ErrConflict
}

// Repository defines inventory persistence. Reserve is the ledger's
// check-and-decrement: it applies every need or none of them, and two
// concurrent reservations against the same row can never both succeed off
// the same stale balance.
type Repository interface {
	Reserve(ctx context.Context, pharmacistID types.ID, needs []Need) ([]Reservation, error)
	// Release returns previously reserved units to their rows,
	// compensating a fill that failed after the reserve committed.
	Release(ctx context.Context, pharmacistID types.ID, needs []Need) error
	Add(ctx context.Context, inv *Inventory) error
	Update(ctx context.Context, inv *Inventory) error
	Get(ctx context.Context, medicineID, pharmacistID types.ID) (*Inventory, error)
	Delete(ctx context.Context, medicineID, pharmacistID types.ID) error
	ListByPharmacist(ctx context.Context, pharmacistID types.ID) ([]Inventory, error)
	ListLowStock(ctx context.Context, pharmacistID types.ID) ([]Inventory, error)
	ListExpiringWithin(ctx context.Context, pharmacistID types.ID, window time.Duration) ([]Inventory, error)
}
