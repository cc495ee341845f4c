package reminder

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rxcare/platform/internal/shared/errors"
	"github.com/rxcare/platform/internal/shared/types"
)

// MemoryRepository is an in-memory reminder store used in limited mode
// and in tests.
type MemoryRepository struct {
	mu        sync.Mutex
	reminders map[types.ID]*Reminder
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty in-memory reminder store
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{reminders: make(map[types.ID]*Reminder)}
}

// Create stores a reminder
func (r *MemoryRepository) Create(ctx context.Context, rem *Reminder) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *rem
	r.reminders[rem.ID] = &cp
	return nil
}

// DueOn returns enabled, unsent reminders dated on or before day
func (r *MemoryRepository) DueOn(ctx context.Context, day time.Time) ([]Reminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Reminder
	for _, rem := range r.reminders {
		if rem.Enabled && !rem.Sent && !rem.ReminderDate.After(day) {
			out = append(out, *rem)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReminderDate.Before(out[j].ReminderDate) })
	return out, nil
}

// MarkSent flags a reminder as delivered and records the sent message
func (r *MemoryRepository) MarkSent(ctx context.Context, id types.ID, at time.Time, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rem, ok := r.reminders[id]
	if !ok {
		return errors.NotFound("reminder", id.String())
	}
	rem.Sent = true
	rem.SentAt = &at
	rem.Message = message
	return nil
}

// ListByPatient lists a patient's reminders, soonest first
func (r *MemoryRepository) ListByPatient(ctx context.Context, patientID types.ID) ([]Reminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Reminder
	for _, rem := range r.reminders {
		if rem.PatientID == patientID {
			out = append(out, *rem)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReminderDate.Before(out[j].ReminderDate) })
	return out, nil
}

// SetEnabledByPatient opts a patient's unsent reminders in or out
func (r *MemoryRepository) SetEnabledByPatient(ctx context.Context, patientID types.ID, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rem := range r.reminders {
		if rem.PatientID == patientID && !rem.Sent {
			rem.Enabled = enabled
		}
	}
	return nil
}

// Stats summarizes the reminder backlog against day
func (r *MemoryRepository) Stats(ctx context.Context, day time.Time) (Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tomorrow := day.AddDate(0, 0, 1)
	var s Stats
	for _, rem := range r.reminders {
		s.Total++
		if rem.Enabled {
			s.Enabled++
			if !rem.Sent && !rem.ReminderDate.After(day) {
				s.DueToday++
			}
		}
		if rem.Sent && rem.SentAt != nil && !rem.SentAt.Before(day) && rem.SentAt.Before(tomorrow) {
			s.SentToday++
		}
	}
	return s, nil
}
