package reminder

import (
	"context"
	"time"

	"github.com/rxcare/platform/internal/shared/types"
)

// Reminder is a scheduled nudge to request the next refill before the
// current course runs out. Date fields carry calendar days; times of day
// are irrelevant here.
type Reminder struct {
	ID              types.ID   `json:"id"`
	PrescriptionID  types.ID   `json:"prescription_id"`
	PatientID       types.ID   `json:"patient_id"`
	DaysUntilRefill int        `json:"days_until_refill"`
	ReminderDate    time.Time  `json:"reminder_date"`
	Enabled         bool       `json:"enabled"`
	Sent            bool       `json:"sent"`
	SentAt          *time.Time `json:"sent_at,omitempty"`
	PatientPhone    string     `json:"patient_phone"`
	Message         string     `json:"message"`
	CreatedAt       time.Time  `json:"created_at"`
}

// RefillDueDate is when the course actually runs out. The reminder fires
// three days ahead of it.
func (r Reminder) RefillDueDate() time.Time {
	return r.ReminderDate.AddDate(0, 0, leadDays)
}

// Stats summarizes the reminder backlog for one calendar day
type Stats struct {
	Total     int `json:"total"`
	Enabled   int `json:"enabled"`
	DueToday  int `json:"due_today"`
	SentToday int `json:"sent_today"`
}

// Repository defines reminder persistence
type Repository interface {
	Create(ctx context.Context, r *Reminder) error
	// DueOn returns enabled, unsent reminders dated on or before day.
	DueOn(ctx context.Context, day time.Time) ([]Reminder, error)
	// MarkSent flags a reminder as delivered and persists the message
	// that actually went out.
	MarkSent(ctx context.Context, id types.ID, at time.Time, message string) error
	ListByPatient(ctx context.Context, patientID types.ID) ([]Reminder, error)
	// SetEnabledByPatient opts a patient's unsent reminders in or out.
	SetEnabledByPatient(ctx context.Context, patientID types.ID, enabled bool) error
	// Stats counts against day, a midnight truncation.
	Stats(ctx context.Context, day time.Time) (Stats, error)
}
