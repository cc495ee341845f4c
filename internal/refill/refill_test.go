package refill

import (
	"context"
	"testing"

	apperrors "github.com/rxcare/platform/internal/shared/errors"
	"github.com/rxcare/platform/internal/shared/types"
)

func validAddress() types.Address {
	return types.Address{
		Line1:   "12 MG Road",
		City:    "Bengaluru",
		State:   "Karnataka",
		Pincode: "560001",
		Phone:   "9876543210",
	}
}

func TestNewValidatesAddress(t *testing.T) {
	_, err := New(types.NewID(), types.NewID(), types.Address{Pincode: "abc", Phone: "123"})
	appErr, ok := err.(*apperrors.AppError)
	if !ok {
		t.Fatalf("New() error = %v, want AppError", err)
	}
	for _, field := range []string{"line1", "city", "state", "pincode", "phone"} {
		if _, present := appErr.Details[field]; !present {
			t.Errorf("validation details missing %q: %v", field, appErr.Details)
		}
	}
}

func TestApproveOnlyFromPending(t *testing.T) {
	req, err := New(types.NewID(), types.NewID(), validAddress())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	pharmacist := types.NewID()
	if err := req.Approve(pharmacist); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if req.Status != StatusApproved {
		t.Errorf("Status = %s, want %s", req.Status, StatusApproved)
	}
	if req.PharmacistID == nil || *req.PharmacistID != pharmacist {
		t.Error("Approve() did not record the pharmacist")
	}
	if req.ActionedAt == nil {
		t.Error("Approve() did not record the action time")
	}

	if err := req.Approve(pharmacist); !apperrors.IsConflict(err) {
		t.Errorf("second Approve() error = %v, want conflict", err)
	}
	if _, err := req.MarkDispatched(); err != nil {
		t.Errorf("MarkDispatched() from approved error = %v", err)
	}
}

func TestRejectRequiresReason(t *testing.T) {
	req, _ := New(types.NewID(), types.NewID(), validAddress())

	if err := req.Reject(types.NewID(), ""); err == nil {
		t.Fatal("Reject() without reason succeeded")
	}
	if req.Status != StatusPending {
		t.Errorf("Status = %s after failed reject, want %s", req.Status, StatusPending)
	}

	if err := req.Reject(types.NewID(), "prescription expired"); err != nil {
		t.Fatalf("Reject() error = %v", err)
	}
	if req.RejectionReason != "prescription expired" {
		t.Errorf("RejectionReason = %q", req.RejectionReason)
	}
}

func TestMarkFilledOnlyFromApproved(t *testing.T) {
	req, _ := New(types.NewID(), types.NewID(), validAddress())

	if err := req.MarkFilled(); !apperrors.IsConflict(err) {
		t.Errorf("MarkFilled() from pending error = %v, want conflict", err)
	}

	req.Approve(types.NewID())
	if err := req.MarkFilled(); err != nil {
		t.Fatalf("MarkFilled() error = %v", err)
	}
	if req.Status != StatusFilled {
		t.Errorf("Status = %s, want %s", req.Status, StatusFilled)
	}
}

func TestMarkDispatchedIdempotent(t *testing.T) {
	req, _ := New(types.NewID(), types.NewID(), validAddress())
	req.Approve(types.NewID())
	req.MarkFilled()

	already, err := req.MarkDispatched()
	if err != nil || already {
		t.Fatalf("MarkDispatched() = (%v, %v), want (false, nil)", already, err)
	}

	already, err = req.MarkDispatched()
	if err != nil || !already {
		t.Fatalf("second MarkDispatched() = (%v, %v), want (true, nil)", already, err)
	}
}

func TestMarkDispatchedRejectsPendingAndRejected(t *testing.T) {
	pending, _ := New(types.NewID(), types.NewID(), validAddress())
	if _, err := pending.MarkDispatched(); !apperrors.IsConflict(err) {
		t.Errorf("MarkDispatched() from pending error = %v, want conflict", err)
	}

	rejected, _ := New(types.NewID(), types.NewID(), validAddress())
	rejected.Reject(types.NewID(), "out of stock")
	if _, err := rejected.MarkDispatched(); !apperrors.IsConflict(err) {
		t.Errorf("MarkDispatched() from rejected error = %v, want conflict", err)
	}
}

func TestMemoryRepositoryOneRequestPerPrescription(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	prescriptionID := types.NewID()

	first, _ := New(prescriptionID, types.NewID(), validAddress())
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	second, _ := New(prescriptionID, types.NewID(), validAddress())
	if err := repo.Create(ctx, second); !apperrors.IsConflict(err) {
		t.Fatalf("duplicate Create() error = %v, want conflict", err)
	}

	exists, err := repo.ExistsForPrescription(ctx, prescriptionID)
	if err != nil || !exists {
		t.Errorf("ExistsForPrescription() = (%v, %v), want (true, nil)", exists, err)
	}
}

func TestMemoryRepositoryUpdateStatusOptimistic(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	req, _ := New(types.NewID(), types.NewID(), validAddress())
	req.Approve(types.NewID())
	repo.Create(ctx, req)

	if err := repo.UpdateStatus(ctx, req.ID, StatusApproved, StatusFilled); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	// second claim must lose
	if err := repo.UpdateStatus(ctx, req.ID, StatusApproved, StatusFilled); !apperrors.IsConflict(err) {
		t.Fatalf("stale UpdateStatus() error = %v, want conflict", err)
	}
}

func TestMemoryRepositoryHasPending(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	prescriptionID := types.NewID()

	pending, hasErr := repo.HasPending(ctx, prescriptionID)
	if hasErr != nil || pending {
		t.Fatalf("HasPending() on empty store = (%v, %v)", pending, hasErr)
	}

	req, _ := New(prescriptionID, types.NewID(), validAddress())
	repo.Create(ctx, req)

	pending, _ = repo.HasPending(ctx, prescriptionID)
	if !pending {
		t.Error("HasPending() = false for a pending request")
	}

	repo.UpdateStatus(ctx, req.ID, StatusPending, StatusApproved)
	pending, _ = repo.HasPending(ctx, prescriptionID)
	if pending {
		t.Error("HasPending() = true after the request was actioned")
	}
}

func TestMemoryRepositoryGuardedUpdate(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	pharmacist := types.NewID()

	req, _ := New(types.NewID(), types.NewID(), validAddress())
	repo.Create(ctx, req)

	first, _ := repo.FindByID(ctx, req.ID)
	second, _ := repo.FindByID(ctx, req.ID)
	first.Approve(pharmacist)
	second.Approve(pharmacist)

	if err := repo.Update(ctx, first, StatusPending); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	// the second writer saw PENDING but the row has moved on
	if err := repo.Update(ctx, second, StatusPending); !apperrors.IsConflict(err) {
		t.Fatalf("stale Update() error = %v, want conflict", err)
	}

	stored, _ := repo.FindByID(ctx, req.ID)
	if stored.Status != StatusApproved {
		t.Errorf("Status = %s, want %s", stored.Status, StatusApproved)
	}
}

func TestMemoryRepositoryFindByPrescriptionEligibility(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	prescriptionID := types.NewID()

	req, _ := New(prescriptionID, types.NewID(), validAddress())
	repo.Create(ctx, req)

	if _, err := repo.FindByPrescription(ctx, prescriptionID); !apperrors.IsNotFound(err) {
		t.Fatalf("FindByPrescription() of pending request error = %v, want not found", err)
	}

	repo.UpdateStatus(ctx, req.ID, StatusPending, StatusApproved)
	found, err := repo.FindByPrescription(ctx, prescriptionID)
	if err != nil {
		t.Fatalf("FindByPrescription() error = %v", err)
	}
	if found.ID != req.ID {
		t.Errorf("FindByPrescription() = %s, want %s", found.ID, req.ID)
	}

	rejected, _ := New(types.NewID(), types.NewID(), validAddress())
	rejected.Reject(types.NewID(), "expired")
	repo.Create(ctx, rejected)
	if _, err := repo.FindByPrescription(ctx, rejected.PrescriptionID); !apperrors.IsNotFound(err) {
		t.Fatalf("FindByPrescription() of rejected request error = %v, want not found", err)
	}
}
