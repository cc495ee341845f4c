package refill

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rxcare/platform/internal/shared/errors"
	"github.com/rxcare/platform/internal/shared/types"
)

// MemoryRepository is an in-memory refill request store used in limited
// mode and in tests.
type MemoryRepository struct {
	mu             sync.Mutex
	requests       map[types.ID]*Request
	byPrescription map[types.ID]types.ID
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty in-memory refill request store
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		requests:       make(map[types.ID]*Request),
		byPrescription: make(map[types.ID]types.ID),
	}
}

// Create stores a refill request, rejecting a second request for the
// same prescription.
func (r *MemoryRepository) Create(ctx context.Context, req *Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byPrescription[req.PrescriptionID]; ok {
		return errors.Conflict("a refill request already exists for this prescription")
	}
	cp := *req
	r.requests[req.ID] = &cp
	r.byPrescription[req.PrescriptionID] = req.ID
	return nil
}

// FindByID retrieves a refill request by ID
func (r *MemoryRepository) FindByID(ctx context.Context, id types.ID) (*Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.requests[id]
	if !ok {
		return nil, errors.NotFound("refill request", id.String())
	}
	cp := *req
	return &cp, nil
}

// FindByPrescription retrieves the prescription's dispatch-eligible request
func (r *MemoryRepository) FindByPrescription(ctx context.Context, prescriptionID types.ID) (*Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byPrescription[prescriptionID]
	if !ok {
		return nil, errors.NotFound("refill request", prescriptionID.String())
	}
	req := r.requests[id]
	switch req.Status {
	case StatusApproved, StatusFilled, StatusDispatched:
	default:
		return nil, errors.NotFound("refill request", prescriptionID.String())
	}
	cp := *req
	return &cp, nil
}

// Update persists an actioned refill request, guarded on the stored row
// still holding from.
func (r *MemoryRepository) Update(ctx context.Context, req *Request, from Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.requests[req.ID]
	if !ok {
		return errors.NotFound("refill request", req.ID.String())
	}
	if stored.Status != from {
		return errors.Conflict("refill request was modified concurrently")
	}
	cp := *req
	r.requests[req.ID] = &cp
	return nil
}

// UpdateStatus flips status only when the stored row still holds from
func (r *MemoryRepository) UpdateStatus(ctx context.Context, id types.ID, from, to Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.requests[id]
	if !ok {
		return errors.NotFound("refill request", id.String())
	}
	if req.Status != from {
		return errors.Conflict("refill request was modified concurrently")
	}
	now := time.Now()
	req.Status = to
	req.ActionedAt = &now
	return nil
}

// ListByPatient lists a patient's refill requests, newest first
func (r *MemoryRepository) ListByPatient(ctx context.Context, patientID types.ID) ([]Request, error) {
	return r.filter(func(req *Request) bool { return req.PatientID == patientID }, newestFirst), nil
}

// ListByStatus lists refill requests in a given status, oldest first
func (r *MemoryRepository) ListByStatus(ctx context.Context, status Status) ([]Request, error) {
	return r.filter(func(req *Request) bool { return req.Status == status }, oldestFirst), nil
}

// ListAll lists every refill request, newest first
func (r *MemoryRepository) ListAll(ctx context.Context) ([]Request, error) {
	return r.filter(func(*Request) bool { return true }, newestFirst), nil
}

// ExistsForPrescription reports whether a request exists in any status
func (r *MemoryRepository) ExistsForPrescription(ctx context.Context, prescriptionID types.ID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byPrescription[prescriptionID]
	return ok, nil
}

// HasPending reports whether the prescription has an unactioned request
func (r *MemoryRepository) HasPending(ctx context.Context, prescriptionID types.ID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byPrescription[prescriptionID]
	if !ok {
		return false, nil
	}
	return r.requests[id].Status == StatusPending, nil
}

type order int

const (
	newestFirst order = iota
	oldestFirst
)

func (r *MemoryRepository) filter(keep func(*Request) bool, o order) []Request {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Request
	for _, req := range r.requests {
		if keep(req) {
			out = append(out, *req)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if o == oldestFirst {
			return out[i].RequestedAt.Before(out[j].RequestedAt)
		}
		return out[i].RequestedAt.After(out[j].RequestedAt)
	})
	return out
}
