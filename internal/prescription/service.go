package prescription

import (
	"context"

	"go.uber.org/zap"

	"github.com/rxcare/platform/internal/shared/errors"
	"github.com/rxcare/platform/internal/shared/types"
	"github.com/rxcare/platform/internal/tracking"
)

// Service handles prescription intake and pharmacist review
type Service struct {
	repo    Repository
	tracker *tracking.Service
	logger  *zap.Logger
}

// NewService creates a prescription service
func NewService(repo Repository, tracker *tracking.Service, logger *zap.Logger) *Service {
	return &Service{repo: repo, tracker: tracker, logger: logger}
}

// Upload stores a new prescription image reference for review
func (s *Service) Upload(ctx context.Context, patientID types.ID, imageRef string) (*Prescription, error) {
	p, err := New(patientID, imageRef)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}

	s.track(ctx, p.ID, tracking.StatusUploaded, "")
	s.logger.Info("prescription uploaded",
		zap.String("prescription_id", p.ID.String()),
		zap.String("patient_id", patientID.String()))
	return p, nil
}

// Review applies a pharmacist's verdict. Approval lands on the timeline;
// a rejection or clarification note reaches the patient through the
// notes field instead.
func (s *Service) Review(ctx context.Context, id types.ID, status Status, notes string) (*Prescription, error) {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := p.Review(status, notes); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}

	if status == StatusApproved {
		s.track(ctx, p.ID, tracking.StatusApproved, "")
	}
	return p, nil
}

// Get retrieves a prescription, enforcing patient ownership
func (s *Service) Get(ctx context.Context, callerID types.ID, callerIsPatient bool, id types.ID) (*Prescription, error) {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if callerIsPatient && p.PatientID != callerID {
		return nil, errors.Forbidden("prescription belongs to another patient")
	}
	return p, nil
}

// ListForPatient returns a patient's prescriptions, newest first
func (s *Service) ListForPatient(ctx context.Context, patientID types.ID) ([]Prescription, error) {
	return s.repo.ListByPatient(ctx, patientID)
}

// ListPending returns the review queue, oldest first
func (s *Service) ListPending(ctx context.Context) ([]Prescription, error) {
	return s.repo.ListByStatus(ctx, StatusPending)
}

func (s *Service) track(ctx context.Context, prescriptionID types.ID, status tracking.Status, notes string) {
	if _, err := s.tracker.Record(ctx, prescriptionID, status, notes); err != nil {
		s.logger.Warn("tracking event failed",
			zap.String("prescription_id", prescriptionID.String()),
			zap.String("status", string(status)),
			zap.Error(err))
	}
}
