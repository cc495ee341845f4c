package inventory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rxcare/platform/internal/shared/errors"
	"github.com/rxcare/platform/internal/shared/types"
)

type invKey struct {
	medicineID   types.ID
	pharmacistID types.ID
}

// MemoryRepository is an in-memory inventory store used in limited mode
// and in tests.
type MemoryRepository struct {
	mu   sync.Mutex
	rows map[invKey]*Inventory
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty in-memory inventory store
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: make(map[invKey]*Inventory)}
}

// Reserve validates every need against current stock before touching any
// row, all under one lock. Either every decrement applies or none does.
func (r *MemoryRepository) Reserve(ctx context.Context, pharmacistID types.ID, needs []Need) ([]Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, n := range needs {
		row, ok := r.rows[invKey{n.MedicineID, pharmacistID}]
		if !ok {
			return nil, errors.NotFound("inventory", n.MedicineID.String())
		}
		if row.StockQuantity < n.Amount {
			return nil, &InsufficientStockError{MedicineID: n.MedicineID, Available: row.StockQuantity, Requested: n.Amount}
		}
	}

	out := make([]Reservation, 0, len(needs))
	now := time.Now()
	for _, n := range needs {
		row := r.rows[invKey{n.MedicineID, pharmacistID}]
		before := row.StockQuantity
		row.StockQuantity -= n.Amount
		row.UpdatedAt = now
		out = append(out, Reservation{
			MedicineID:   n.MedicineID,
			MedicineName: row.MedicineName,
			Before:       before,
			After:        row.StockQuantity,
			LowStock:     row.IsLowStock(),
		})
	}
	return out, nil
}

// Release returns previously reserved units to their rows
func (r *MemoryRepository) Release(ctx context.Context, pharmacistID types.ID, needs []Need) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for _, n := range needs {
		row, ok := r.rows[invKey{n.MedicineID, pharmacistID}]
		if !ok {
			return errors.NotFound("inventory", n.MedicineID.String())
		}
		row.StockQuantity += n.Amount
		row.UpdatedAt = now
	}
	return nil
}

// Add inserts a new inventory row
func (r *MemoryRepository) Add(ctx context.Context, inv *Inventory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := invKey{inv.MedicineID, inv.PharmacistID}
	if _, ok := r.rows[key]; ok {
		return errors.Conflict("inventory row already exists")
	}
	cp := *inv
	r.rows[key] = &cp
	return nil
}

// Update overwrites an existing inventory row
func (r *MemoryRepository) Update(ctx context.Context, inv *Inventory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := invKey{inv.MedicineID, inv.PharmacistID}
	if _, ok := r.rows[key]; !ok {
		return errors.NotFound("inventory", inv.MedicineID.String())
	}
	cp := *inv
	r.rows[key] = &cp
	return nil
}

// Get retrieves one inventory row
func (r *MemoryRepository) Get(ctx context.Context, medicineID, pharmacistID types.ID) (*Inventory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[invKey{medicineID, pharmacistID}]
	if !ok {
		return nil, errors.NotFound("inventory", medicineID.String())
	}
	cp := *row
	return &cp, nil
}

// Delete removes one inventory row
func (r *MemoryRepository) Delete(ctx context.Context, medicineID, pharmacistID types.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := invKey{medicineID, pharmacistID}
	if _, ok := r.rows[key]; !ok {
		return errors.NotFound("inventory", medicineID.String())
	}
	delete(r.rows, key)
	return nil
}

// ListByPharmacist lists a pharmacist's inventory by medicine name
func (r *MemoryRepository) ListByPharmacist(ctx context.Context, pharmacistID types.ID) ([]Inventory, error) {
	return r.filter(pharmacistID, func(Inventory) bool { return true }), nil
}

// ListLowStock lists rows at or below their low-stock threshold
func (r *MemoryRepository) ListLowStock(ctx context.Context, pharmacistID types.ID) ([]Inventory, error) {
	return r.filter(pharmacistID, Inventory.IsLowStock), nil
}

// ListExpiringWithin lists rows whose expiry date falls inside the window
func (r *MemoryRepository) ListExpiringWithin(ctx context.Context, pharmacistID types.ID, window time.Duration) ([]Inventory, error) {
	cutoff := time.Now().Add(window)
	return r.filter(pharmacistID, func(inv Inventory) bool {
		return inv.ExpiryDate != nil && !inv.ExpiryDate.After(cutoff)
	}), nil
}

func (r *MemoryRepository) filter(pharmacistID types.ID, keep func(Inventory) bool) []Inventory {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Inventory
	for key, row := range r.rows {
		if key.pharmacistID != pharmacistID {
			continue
		}
		if keep(*row) {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MedicineName < out[j].MedicineName })
	return out
}
