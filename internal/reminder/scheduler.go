package reminder

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rxcare/platform/internal/fulfillment"
	"github.com/rxcare/platform/internal/notification"
	"github.com/rxcare/platform/internal/shared/metrics"
	"github.com/rxcare/platform/internal/shared/types"
	"github.com/rxcare/platform/internal/user"
)

// leadDays is how many days before the course runs out the reminder fires
const leadDays = 3

// PendingRefillChecker reports whether a prescription already has an
// unactioned refill request. Implemented by the refill request store.
type PendingRefillChecker interface {
	HasPending(ctx context.Context, prescriptionID types.ID) (bool, error)
}

// LatestFillSource returns the most recent fill record for a
// prescription. Implemented by the fill history store.
type LatestFillSource interface {
	LatestByPrescription(ctx context.Context, prescriptionID types.ID) (*fulfillment.History, error)
}

// Scheduler creates refill reminders after fills and sends the due ones
// in a daily sweep. One reminder failing never stops the sweep.
type Scheduler struct {
	repo     Repository
	users    user.Directory
	refills  PendingRefillChecker
	fills    LatestFillSource
	notifier *notification.Notifier
	sendHour int
	logger   *zap.Logger

	now func() time.Time
}

// NewScheduler creates a reminder scheduler. sendHour is the local hour
// of day (0-23) the daily sweep fires.
func NewScheduler(
	repo Repository,
	users user.Directory,
	refills PendingRefillChecker,
	fills LatestFillSource,
	notifier *notification.Notifier,
	sendHour int,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		repo:     repo,
		users:    users,
		refills:  refills,
		fills:    fills,
		notifier: notifier,
		sendHour: sendHour,
		logger:   logger,
		now:      time.Now,
	}
}

// CreateForFill schedules the reminder for a completed fill and returns
// the date it lands on. The course runs out maxDays from now; the
// reminder lands leadDays ahead of that.
func (s *Scheduler) CreateForFill(ctx context.Context, prescriptionID, patientID types.ID, maxDays int) (time.Time, error) {
	patient, err := s.users.LookupByID(ctx, patientID)
	if err != nil {
		return time.Time{}, err
	}

	now := s.now()
	remindOn := midnight(now).AddDate(0, 0, maxDays-leadDays)
	rem := &Reminder{
		ID:              types.NewID(),
		PrescriptionID:  prescriptionID,
		PatientID:       patientID,
		DaysUntilRefill: maxDays,
		ReminderDate:    remindOn,
		Enabled:         true,
		PatientPhone:    patient.Phone,
		CreatedAt:       now,
	}
	rem.Message = fmt.Sprintf("Hi %s, your medicines will run out on %s. Please request a refill.",
		patient.Name, rem.RefillDueDate().Format("02 Jan 2006"))

	if err := s.repo.Create(ctx, rem); err != nil {
		return time.Time{}, err
	}
	s.logger.Info("refill reminder scheduled",
		zap.String("prescription_id", prescriptionID.String()),
		zap.Time("reminder_date", rem.ReminderDate))
	return remindOn, nil
}

// RunNow sweeps the due reminders once and returns how many were sent
func (s *Scheduler) RunNow(ctx context.Context) (int, error) {
	today := midnight(s.now())
	due, err := s.repo.DueOn(ctx, today)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, rem := range due {
		if s.sendOne(ctx, rem) {
			sent++
		}
	}
	if len(due) > 0 {
		s.logger.Info("reminder sweep finished",
			zap.Int("due", len(due)),
			zap.Int("sent", sent))
	}
	return sent, nil
}

// sendOne delivers a single reminder. The sent flag is only set on a
// delivered message, so a failed one is retried by the next sweep.
func (s *Scheduler) sendOne(ctx context.Context, rem Reminder) bool {
	pending, err := s.refills.HasPending(ctx, rem.PrescriptionID)
	if err != nil {
		s.logger.Warn("pending refill check failed",
			zap.String("reminder_id", rem.ID.String()),
			zap.Error(err))
		return false
	}
	if pending {
		// the patient already asked; mark sent so we stop nagging
		if err := s.repo.MarkSent(ctx, rem.ID, s.now(), rem.Message); err != nil {
			s.logger.Warn("failed to mark superseded reminder",
				zap.String("reminder_id", rem.ID.String()),
				zap.Error(err))
		}
		return false
	}

	message := s.buildMessage(ctx, rem)
	if !s.notifier.Deliver(ctx, notification.RefillReminder(rem.PatientPhone, message)) {
		return false
	}
	if err := s.repo.MarkSent(ctx, rem.ID, s.now(), message); err != nil {
		s.logger.Error("reminder sent but not marked",
			zap.String("reminder_id", rem.ID.String()),
			zap.Error(err))
		return false
	}
	metrics.RecordReminderSent()
	return true
}

// buildMessage renders the reminder at send time so it names the
// medicines from the most recent fill, falling back to the message
// frozen at creation when the lookups fail.
func (s *Scheduler) buildMessage(ctx context.Context, rem Reminder) string {
	patient, err := s.users.LookupByID(ctx, rem.PatientID)
	if err != nil {
		return rem.Message
	}
	latest, err := s.fills.LatestByPrescription(ctx, rem.PrescriptionID)
	if err != nil {
		return rem.Message
	}
	return fmt.Sprintf("Hi %s, the following medicines will run out on %s:\n%sPlease request a refill.",
		patient.Name, rem.RefillDueDate().Format("02 Jan 2006"), fulfillment.MedicineList(latest.Medicines))
}

// Start runs the daily sweep until ctx is cancelled
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		for {
			wait := time.Until(s.nextRun())
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
				if _, err := s.RunNow(ctx); err != nil {
					s.logger.Error("reminder sweep failed", zap.Error(err))
				}
			}
		}
	}()
}

// nextRun is the next occurrence of the send hour
func (s *Scheduler) nextRun() time.Time {
	now := s.now()
	next := time.Date(now.Year(), now.Month(), now.Day(), s.sendHour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Stats reports the reminder backlog against today
func (s *Scheduler) Stats(ctx context.Context) (Stats, error) {
	return s.repo.Stats(ctx, midnight(s.now()))
}

// SetEnabled opts a patient's unsent reminders in or out
func (s *Scheduler) SetEnabled(ctx context.Context, patientID types.ID, enabled bool) error {
	return s.repo.SetEnabledByPatient(ctx, patientID, enabled)
}

// ListForPatient returns a patient's reminders
func (s *Scheduler) ListForPatient(ctx context.Context, patientID types.ID) ([]Reminder, error) {
	return s.repo.ListByPatient(ctx, patientID)
}

// midnight truncates t to its calendar day
func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
