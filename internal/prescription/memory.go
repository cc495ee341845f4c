package prescription

import (
	"context"
	"sort"
	"sync"

	"github.com/rxcare/platform/internal/shared/errors"
	"github.com/rxcare/platform/internal/shared/types"
)

// MemoryRepository is a mutex-guarded in-memory Repository used in limited
// mode (no database) and by the test suites.
type MemoryRepository struct {
	mu   sync.RWMutex
	rows map[types.ID]Prescription
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty in-memory prescription store
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: make(map[types.ID]Prescription)}
}

// Create inserts a new prescription
func (r *MemoryRepository) Create(_ context.Context, p *Prescription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rows[p.ID]; ok {
		return errors.Conflict("prescription already exists")
	}
	r.rows[p.ID] = *p
	return nil
}

// FindByID retrieves a prescription by ID
func (r *MemoryRepository) FindByID(_ context.Context, id types.ID) (*Prescription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.rows[id]
	if !ok {
		return nil, errors.NotFound("prescription", id.String())
	}
	return &p, nil
}

// Update persists a reviewed prescription
func (r *MemoryRepository) Update(_ context.Context, p *Prescription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rows[p.ID]; !ok {
		return errors.NotFound("prescription", p.ID.String())
	}
	r.rows[p.ID] = *p
	return nil
}

// ListByPatient lists a patient's prescriptions, newest first
func (r *MemoryRepository) ListByPatient(_ context.Context, patientID types.ID) ([]Prescription, error) {
	return r.filter(func(p Prescription) bool { return p.PatientID == patientID }, true), nil
}

// ListByStatus lists prescriptions in a given status, oldest first
func (r *MemoryRepository) ListByStatus(_ context.Context, status Status) ([]Prescription, error) {
	return r.filter(func(p Prescription) bool { return p.Status == status }, false), nil
}

// ListAll lists every prescription, newest first
func (r *MemoryRepository) ListAll(_ context.Context) ([]Prescription, error) {
	return r.filter(func(Prescription) bool { return true }, true), nil
}

// DeleteByPatient removes all prescriptions for a patient
func (r *MemoryRepository) DeleteByPatient(_ context.Context, patientID types.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, p := range r.rows {
		if p.PatientID == patientID {
			delete(r.rows, id)
		}
	}
	return nil
}

func (r *MemoryRepository) filter(keep func(Prescription) bool, newestFirst bool) []Prescription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Prescription
	for _, p := range r.rows {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
