package tracking

import (
	"context"
	"sync"

	"github.com/rxcare/platform/internal/shared/types"
)

// MemoryRepository is an in-memory append-only ledger for limited mode and
// tests. Per-prescription slices preserve append order.
type MemoryRepository struct {
	mu     sync.RWMutex
	events map[types.ID][]Event
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty in-memory ledger
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{events: make(map[types.ID][]Event)}
}

// Append records one tracking event
func (r *MemoryRepository) Append(_ context.Context, e *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[e.PrescriptionID] = append(r.events[e.PrescriptionID], *e)
	return nil
}

// ListByPrescription returns a prescription's events, oldest first
func (r *MemoryRepository) ListByPrescription(_ context.Context, prescriptionID types.ID) ([]Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	src := r.events[prescriptionID]
	out := make([]Event, len(src))
	copy(out, src)
	return out, nil
}

// CountByPrescription returns the number of events for a prescription
func (r *MemoryRepository) CountByPrescription(_ context.Context, prescriptionID types.ID) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.events[prescriptionID]), nil
}
