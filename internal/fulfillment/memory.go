package fulfillment

import (
	"context"
	"sort"
	"sync"

	"github.com/rxcare/platform/internal/shared/errors"
	"github.com/rxcare/platform/internal/shared/types"
)

// MemoryRepository is an in-memory fill history store used in limited
// mode and in tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[types.ID]*History
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty in-memory fill history store
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[types.ID]*History)}
}

// Create stores a fill record
func (r *MemoryRepository) Create(ctx context.Context, h *History) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *h
	cp.Medicines = append([]FilledMedicine(nil), h.Medicines...)
	r.records[h.ID] = &cp
	return nil
}

// FindByID retrieves one fill record
func (r *MemoryRepository) FindByID(ctx context.Context, id types.ID) (*History, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.records[id]
	if !ok {
		return nil, errors.NotFound("fill record", id.String())
	}
	cp := *h
	cp.Medicines = append([]FilledMedicine(nil), h.Medicines...)
	return &cp, nil
}

// LatestByPrescription returns the most recent fill record
func (r *MemoryRepository) LatestByPrescription(ctx context.Context, prescriptionID types.ID) (*History, error) {
	records := r.filter(func(h *History) bool { return h.PrescriptionID == prescriptionID })
	if len(records) == 0 {
		return nil, errors.NotFound("fill record", prescriptionID.String())
	}
	return &records[0], nil
}

// MarkDispatched flips the prescription's FILLED records to DISPATCHED
func (r *MemoryRepository) MarkDispatched(ctx context.Context, prescriptionID types.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, h := range r.records {
		if h.PrescriptionID == prescriptionID && h.Status == StatusFilled {
			h.Status = StatusDispatched
		}
	}
	return nil
}

// ListByPrescription lists a prescription's fill records, newest first
func (r *MemoryRepository) ListByPrescription(ctx context.Context, prescriptionID types.ID) ([]History, error) {
	return r.filter(func(h *History) bool { return h.PrescriptionID == prescriptionID }), nil
}

// ListByPatient lists a patient's fill records, newest first
func (r *MemoryRepository) ListByPatient(ctx context.Context, patientID types.ID) ([]History, error) {
	return r.filter(func(h *History) bool { return h.PatientID == patientID }), nil
}

// ListByPharmacist lists a pharmacist's fill records, newest first
func (r *MemoryRepository) ListByPharmacist(ctx context.Context, pharmacistID types.ID) ([]History, error) {
	return r.filter(func(h *History) bool { return h.PharmacistID == pharmacistID }), nil
}

func (r *MemoryRepository) filter(keep func(*History) bool) []History {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []History
	for _, h := range r.records {
		if keep(h) {
			cp := *h
			cp.Medicines = append([]FilledMedicine(nil), h.Medicines...)
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FilledAt.After(out[j].FilledAt) })
	return out
}
