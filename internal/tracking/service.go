package tracking

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rxcare/platform/internal/shared/errors"
	"github.com/rxcare/platform/internal/shared/metrics"
	"github.com/rxcare/platform/internal/shared/types"
)

const prescriptionApproved = "APPROVED"

// Service records tracking events and fans them out to live subscribers
type Service struct {
	repo          Repository
	feed          *Feed
	prescriptions PrescriptionProbe
	logger        *zap.Logger
}

// NewService creates a tracking service
func NewService(repo Repository, feed *Feed, prescriptions PrescriptionProbe, logger *zap.Logger) *Service {
	return &Service{repo: repo, feed: feed, prescriptions: prescriptions, logger: logger}
}

// Record appends one event to a prescription's timeline and publishes it to
// live subscribers. The publish is fire-and-forget; only the append can fail.
func (s *Service) Record(ctx context.Context, prescriptionID types.ID, status Status, notes string) (*Event, error) {
	if !ValidStatus(status) {
		return nil, errors.BadRequest("unknown tracking status")
	}
	if _, err := s.prescriptions.Status(ctx, prescriptionID); err != nil {
		return nil, err
	}

	e := &Event{
		ID:             types.NewID(),
		PrescriptionID: prescriptionID,
		Status:         status,
		Notes:          notes,
		CreatedAt:      time.Now(),
	}
	if err := s.repo.Append(ctx, e); err != nil {
		return nil, err
	}

	metrics.RecordTrackingEvent(string(status))
	s.feed.Publish(*e)
	return e, nil
}

// History returns a prescription's timeline, oldest first. It never mutates
// the ledger; callers wanting the legacy baseline repaired invoke
// EnsureBaseline first.
func (s *Service) History(ctx context.Context, prescriptionID types.ID) ([]Event, error) {
	if _, err := s.prescriptions.Status(ctx, prescriptionID); err != nil {
		return nil, err
	}
	return s.repo.ListByPrescription(ctx, prescriptionID)
}

// EnsureBaseline is an idempotent repair for legacy prescriptions created
// before the ledger existed: when the timeline is empty it appends UPLOADED
// and, for an already approved prescription, APPROVED. Non-empty timelines
// are left untouched.
func (s *Service) EnsureBaseline(ctx context.Context, prescriptionID types.ID) error {
	status, err := s.prescriptions.Status(ctx, prescriptionID)
	if err != nil {
		return err
	}

	n, err := s.repo.CountByPrescription(ctx, prescriptionID)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	if _, err := s.Record(ctx, prescriptionID, StatusUploaded, ""); err != nil {
		return err
	}
	if status == prescriptionApproved {
		if _, err := s.Record(ctx, prescriptionID, StatusApproved, ""); err != nil {
			s.logger.Warn("baseline approval event failed",
				zap.String("prescription_id", prescriptionID.String()),
				zap.Error(err))
		}
	}
	return nil
}

// Subscribe opens a live event channel for a prescription
func (s *Service) Subscribe(prescriptionID types.ID) *Subscriber {
	return s.feed.Subscribe(prescriptionID)
}

// Unsubscribe releases a live event channel
func (s *Service) Unsubscribe(sub *Subscriber) {
	s.feed.Unsubscribe(sub)
}
