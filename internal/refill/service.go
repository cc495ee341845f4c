package refill

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rxcare/platform/internal/fulfillment"
	"github.com/rxcare/platform/internal/inventory"
	"github.com/rxcare/platform/internal/notification"
	"github.com/rxcare/platform/internal/prescription"
	"github.com/rxcare/platform/internal/shared/errors"
	"github.com/rxcare/platform/internal/shared/metrics"
	"github.com/rxcare/platform/internal/shared/types"
	"github.com/rxcare/platform/internal/tracking"
	"github.com/rxcare/platform/internal/user"
)

// ReminderCreator schedules a refill reminder after a completed fill and
// returns the date the reminder lands on. Implemented by the reminder
// scheduler.
type ReminderCreator interface {
	CreateForFill(ctx context.Context, prescriptionID, patientID types.ID, maxDays int) (time.Time, error)
}

// reminders are only worth scheduling for courses of at least a week
const reminderMinDays = 7

// Service orchestrates the refill workflow: request, pharmacist review,
// fill against inventory, and dispatch. Persistence errors fail the
// operation; tracking events, notifications and reminder scheduling are
// best effort and only logged.
type Service struct {
	repo          Repository
	prescriptions prescription.Repository
	inventories   inventory.Repository
	fills         fulfillment.Repository
	tracker       *tracking.Service
	notifier      *notification.Notifier
	users         user.Directory
	reminders     ReminderCreator
	logger        *zap.Logger
}

// NewService creates a refill service
func NewService(
	repo Repository,
	prescriptions prescription.Repository,
	inventories inventory.Repository,
	fills fulfillment.Repository,
	tracker *tracking.Service,
	notifier *notification.Notifier,
	users user.Directory,
	reminders ReminderCreator,
	logger *zap.Logger,
) *Service {
	return &Service{
		repo:          repo,
		prescriptions: prescriptions,
		inventories:   inventories,
		fills:         fills,
		tracker:       tracker,
		notifier:      notifier,
		users:         users,
		reminders:     reminders,
		logger:        logger,
	}
}

// Request creates a refill request for an approved prescription owned by
// the calling patient. A prescription can be requested at most once.
func (s *Service) Request(ctx context.Context, patientID, prescriptionID types.ID, delivery types.Address) (*Request, error) {
	rx, err := s.prescriptions.FindByID(ctx, prescriptionID)
	if err != nil {
		return nil, err
	}
	if rx.PatientID != patientID {
		return nil, errors.Forbidden("prescription belongs to another patient")
	}
	if rx.Status != prescription.StatusApproved {
		return nil, errors.Conflict("prescription is not approved for refills")
	}

	exists, err := s.repo.ExistsForPrescription(ctx, prescriptionID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, errors.Conflict("a refill request already exists for this prescription")
	}

	req, err := New(prescriptionID, patientID, delivery)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, req); err != nil {
		return nil, err
	}

	s.track(ctx, prescriptionID, tracking.StatusRefillRequested, "")
	s.logger.Info("refill requested",
		zap.String("request_id", req.ID.String()),
		zap.String("prescription_id", prescriptionID.String()))
	return req, nil
}

// Approve moves a pending request to approved
func (s *Service) Approve(ctx context.Context, pharmacistID, requestID types.ID) (*Request, error) {
	req, err := s.repo.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := req.Approve(pharmacistID); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, req, StatusPending); err != nil {
		return nil, err
	}

	metrics.RecordRefillTransition(string(StatusPending), string(StatusApproved))
	s.track(ctx, req.PrescriptionID, tracking.StatusRefillApproved, "")
	return req, nil
}

// Reject moves a pending request to rejected and tells the patient why
func (s *Service) Reject(ctx context.Context, pharmacistID, requestID types.ID, reason string) (*Request, error) {
	req, err := s.repo.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := req.Reject(pharmacistID, reason); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, req, StatusPending); err != nil {
		return nil, err
	}

	metrics.RecordRefillTransition(string(StatusPending), string(StatusRejected))
	if patient, lookupErr := s.users.LookupByID(ctx, req.PatientID); lookupErr == nil {
		s.notifier.Deliver(ctx, notification.RefillRejected(patient.Email, patient.Name, reason))
	}
	return req, nil
}

// Fill decrements the pharmacist's stock for every medicine line and
// records the fill. The request is claimed first with a conditional
// status flip, so two pharmacists filling concurrently cannot both
// succeed; the claim and any reserved stock are released if a later
// step fails. enableReminders opts the patient out of the follow-up
// refill reminder when false.
func (s *Service) Fill(ctx context.Context, pharmacistID, requestID types.ID, items []fulfillment.LineItem, enableReminders bool) (*fulfillment.History, error) {
	req, err := s.repo.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	lines := fulfillment.ExpandItems(items)
	if len(lines) == 0 {
		return nil, errors.BadRequest("no medicines consume any stock")
	}

	if err := s.repo.UpdateStatus(ctx, requestID, StatusApproved, StatusFilled); err != nil {
		return nil, err
	}

	s.track(ctx, req.PrescriptionID, tracking.StatusFilling, "")

	needs := make([]inventory.Need, len(lines))
	for i, li := range lines {
		needs[i] = inventory.Need{MedicineID: li.MedicineID, Amount: li.TotalNeeded()}
	}

	reservations, err := s.inventories.Reserve(ctx, pharmacistID, needs)
	if err != nil {
		if errors.IsConflict(err) {
			metrics.RecordFillRejectedStock()
		}
		// release the claim so another attempt can fill
		if revertErr := s.repo.UpdateStatus(ctx, requestID, StatusFilled, StatusApproved); revertErr != nil {
			s.logger.Error("failed to release fill claim",
				zap.String("request_id", requestID.String()),
				zap.Error(revertErr))
		}
		return nil, err
	}

	medicines := make([]fulfillment.FilledMedicine, len(lines))
	for i, li := range lines {
		medicines[i] = fulfillment.FilledMedicine{
			MedicineID:   li.MedicineID,
			MedicineName: reservations[i].MedicineName,
			TimesPerDay:  li.TimesPerDay(),
			Days:         li.Days,
			TotalNeeded:  li.TotalNeeded(),
			StockBefore:  reservations[i].Before,
			StockAfter:   reservations[i].After,
		}
	}

	record := fulfillment.NewHistory(req.PrescriptionID, req.PatientID, pharmacistID, medicines)
	if err := s.fills.Create(ctx, record); err != nil {
		// put the reserved units back and release the claim so the fill
		// as a whole applied nothing
		if relErr := s.inventories.Release(ctx, pharmacistID, needs); relErr != nil {
			s.logger.Error("failed to release reserved stock",
				zap.String("request_id", requestID.String()),
				zap.Error(relErr))
		}
		if revertErr := s.repo.UpdateStatus(ctx, requestID, StatusFilled, StatusApproved); revertErr != nil {
			s.logger.Error("failed to release fill claim",
				zap.String("request_id", requestID.String()),
				zap.Error(revertErr))
		}
		return nil, err
	}

	metrics.RecordFillCompleted()
	metrics.RecordRefillTransition(string(StatusApproved), string(StatusFilled))
	s.track(ctx, req.PrescriptionID, tracking.StatusFilled, "")

	reminderNote := "Reminders disabled."
	if maxDays := fulfillment.MaxDays(lines); maxDays >= reminderMinDays && enableReminders && s.reminders != nil {
		remindOn, err := s.reminders.CreateForFill(ctx, req.PrescriptionID, req.PatientID, maxDays)
		if err != nil {
			s.logger.Warn("reminder scheduling failed",
				zap.String("prescription_id", req.PrescriptionID.String()),
				zap.Error(err))
		} else {
			reminderNote = fmt.Sprintf("A refill reminder is scheduled for %s.", remindOn.Format("02 Jan 2006"))
		}
	}

	if patient, lookupErr := s.users.LookupByID(ctx, req.PatientID); lookupErr == nil {
		s.notifier.Deliver(ctx, notification.MedicineFilled(
			patient.Email, patient.Name, fulfillment.MedicineList(medicines), reminderNote))
	}

	return record, nil
}

// Dispatch marks an order as sent and tells the patient where it is
// heading. ref may be a refill request ID or a prescription ID; the
// latter covers callers that only track prescriptions. Dispatching an
// already dispatched request is a no-op.
func (s *Service) Dispatch(ctx context.Context, ref types.ID) (*Request, error) {
	req, err := s.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}

	prior := req.Status
	already, err := req.MarkDispatched()
	if err != nil {
		return nil, err
	}
	if already {
		return req, nil
	}
	if err := s.repo.Update(ctx, req, prior); err != nil {
		return nil, err
	}
	// the fill records follow the request into DISPATCHED
	if err := s.fills.MarkDispatched(ctx, req.PrescriptionID); err != nil {
		return nil, err
	}

	metrics.RecordRefillTransition(string(prior), string(StatusDispatched))
	s.track(ctx, req.PrescriptionID, tracking.StatusDispatched, "")

	var medicineList string
	if latest, listErr := s.fills.LatestByPrescription(ctx, req.PrescriptionID); listErr == nil {
		medicineList = fulfillment.MedicineList(latest.Medicines)
	}
	if patient, lookupErr := s.users.LookupByID(ctx, req.PatientID); lookupErr == nil {
		s.notifier.Deliver(ctx, notification.MedicineDispatched(
			patient.Email, patient.Name, medicineList, req.Delivery.String()))
	}
	return req, nil
}

// resolve finds a request by its own ID, falling back to prescription ID
func (s *Service) resolve(ctx context.Context, ref types.ID) (*Request, error) {
	req, err := s.repo.FindByID(ctx, ref)
	if err == nil {
		return req, nil
	}
	if !errors.IsNotFound(err) {
		return nil, err
	}
	return s.repo.FindByPrescription(ctx, ref)
}

// MedicineStock is one row of a pharmacist's shelf as shown on a request
// detail.
type MedicineStock struct {
	MedicineID   types.ID `json:"medicine_id"`
	MedicineName string   `json:"medicine_name"`
	InStock      int      `json:"in_stock"`
}

// Detail is a refill request joined with its prescription context, fill
// records, and, for pharmacist callers, their current stock levels.
type Detail struct {
	Request     *Request              `json:"request"`
	PatientName string                `json:"patient_name,omitempty"`
	ImageRef    string                `json:"image_ref,omitempty"`
	Fills       []fulfillment.History `json:"fills"`
	Stock       []MedicineStock       `json:"stock,omitempty"`
}

// Get returns one request with its fill records and prescription context.
// A non-zero pharmacistID adds that pharmacist's stock levels so they can
// judge the fill.
func (s *Service) Get(ctx context.Context, requestID, pharmacistID types.ID) (*Detail, error) {
	req, err := s.repo.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	fills, err := s.fills.ListByPrescription(ctx, req.PrescriptionID)
	if err != nil {
		return nil, err
	}

	detail := &Detail{Request: req, Fills: fills}
	if rx, rxErr := s.prescriptions.FindByID(ctx, req.PrescriptionID); rxErr == nil {
		detail.ImageRef = rx.ImageRef
	}
	if patient, lookupErr := s.users.LookupByID(ctx, req.PatientID); lookupErr == nil {
		detail.PatientName = patient.Name
	}
	if !pharmacistID.IsZero() {
		shelf, invErr := s.inventories.ListByPharmacist(ctx, pharmacistID)
		if invErr != nil {
			return nil, invErr
		}
		detail.Stock = make([]MedicineStock, len(shelf))
		for i, inv := range shelf {
			detail.Stock[i] = MedicineStock{
				MedicineID:   inv.MedicineID,
				MedicineName: inv.MedicineName,
				InStock:      inv.StockQuantity,
			}
		}
	}
	return detail, nil
}

// ListPending returns unactioned requests, oldest first
func (s *Service) ListPending(ctx context.Context) ([]Request, error) {
	return s.repo.ListByStatus(ctx, StatusPending)
}

// ListForPatient returns a patient's requests, newest first
func (s *Service) ListForPatient(ctx context.Context, patientID types.ID) ([]Request, error) {
	return s.repo.ListByPatient(ctx, patientID)
}

// track appends a timeline event, logging instead of failing
func (s *Service) track(ctx context.Context, prescriptionID types.ID, status tracking.Status, notes string) {
	if _, err := s.tracker.Record(ctx, prescriptionID, status, notes); err != nil {
		s.logger.Warn("tracking event failed",
			zap.String("prescription_id", prescriptionID.String()),
			zap.String("status", string(status)),
			zap.Error(err))
	}
}
