package refill

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rxcare/platform/internal/fulfillment"
	"github.com/rxcare/platform/internal/inventory"
	"github.com/rxcare/platform/internal/notification"
	"github.com/rxcare/platform/internal/prescription"
	apperrors "github.com/rxcare/platform/internal/shared/errors"
	"github.com/rxcare/platform/internal/shared/types"
	"github.com/rxcare/platform/internal/tracking"
	"github.com/rxcare/platform/internal/user"
)

type prescriptionProbe struct {
	repo prescription.Repository
}

func (p prescriptionProbe) Status(ctx context.Context, id types.ID) (string, error) {
	rx, err := p.repo.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	return string(rx.Status), nil
}

type recordingReminders struct {
	calls []int
	date  time.Time
}

func (r *recordingReminders) CreateForFill(ctx context.Context, prescriptionID, patientID types.ID, maxDays int) (time.Time, error) {
	r.calls = append(r.calls, maxDays)
	return r.date, nil
}

type capturingProvider struct {
	mu     sync.Mutex
	emails []string
}

func (c *capturingProvider) SendEmail(ctx context.Context, to, subject, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emails = append(c.emails, body)
	return nil
}

func (c *capturingProvider) SendSMS(ctx context.Context, phone, body string) error {
	return nil
}

func (c *capturingProvider) lastEmail(t *testing.T) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.emails) == 0 {
		t.Fatal("no emails delivered")
	}
	return c.emails[len(c.emails)-1]
}

type fixture struct {
	service       *Service
	repo          *MemoryRepository
	prescriptions *prescription.MemoryRepository
	inventories   *inventory.MemoryRepository
	fills         *fulfillment.MemoryRepository
	trackingRepo  *tracking.MemoryRepository
	users         *user.MemoryDirectory
	reminders     *recordingReminders
	outbox        *capturingProvider

	patient    *user.User
	pharmacist *user.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()

	f := &fixture{
		repo:          NewMemoryRepository(),
		prescriptions: prescription.NewMemoryRepository(),
		inventories:   inventory.NewMemoryRepository(),
		fills:         fulfillment.NewMemoryRepository(),
		trackingRepo:  tracking.NewMemoryRepository(),
		users:         user.NewMemoryDirectory(),
		reminders:     &recordingReminders{date: time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)},
		outbox:        &capturingProvider{},
	}

	f.patient = f.users.Add(&user.User{Email: "asha@example.com", Name: "Asha", Phone: "9876543210", Role: user.RolePatient})
	f.pharmacist = f.users.Add(&user.User{Email: "rx@example.com", Name: "Ravi", Role: user.RolePharmacist})

	tracker := tracking.NewService(f.trackingRepo, tracking.NewFeed(), prescriptionProbe{f.prescriptions}, logger)
	notifier := notification.NewNotifier(f.outbox, f.outbox, rate.Inf, 1, logger)

	f.service = NewService(f.repo, f.prescriptions, f.inventories, f.fills, tracker, notifier, f.users, f.reminders, logger)
	return f
}

func (f *fixture) approvedPrescription(t *testing.T) *prescription.Prescription {
	t.Helper()
	rx, err := prescription.New(f.patient.ID, "scans/rx-1.png")
	if err != nil {
		t.Fatalf("prescription.New() error = %v", err)
	}
	if err := rx.Review(prescription.StatusApproved, ""); err != nil {
		t.Fatalf("Review() error = %v", err)
	}
	if err := f.prescriptions.Create(context.Background(), rx); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return rx
}

func (f *fixture) stock(t *testing.T, name string, qty int) types.ID {
	t.Helper()
	id := types.NewID()
	now := time.Now()
	err := f.inventories.Add(context.Background(), &inventory.Inventory{
		MedicineID:        id,
		PharmacistID:      f.pharmacist.ID,
		MedicineName:      name,
		StockQuantity:     qty,
		LowStockThreshold: 5,
		CreatedAt:         now,
		UpdatedAt:         now,
	})
	if err != nil {
		t.Fatalf("stock %s: %v", name, err)
	}
	return id
}

func (f *fixture) timeline(t *testing.T, prescriptionID types.ID) []tracking.Status {
	t.Helper()
	events, err := f.trackingRepo.ListByPrescription(context.Background(), prescriptionID)
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	out := make([]tracking.Status, len(events))
	for i, e := range events {
		out[i] = e.Status
	}
	return out
}

func TestRequestRefusesUnapprovedPrescription(t *testing.T) {
	f := newFixture(t)
	rx, _ := prescription.New(f.patient.ID, "scans/rx-1.png")
	f.prescriptions.Create(context.Background(), rx)

	_, err := f.service.Request(context.Background(), f.patient.ID, rx.ID, validAddress())
	if !apperrors.IsConflict(err) {
		t.Fatalf("Request() on pending prescription error = %v, want conflict", err)
	}
}

func TestRequestRefusesForeignPrescription(t *testing.T) {
	f := newFixture(t)
	rx := f.approvedPrescription(t)

	_, err := f.service.Request(context.Background(), types.NewID(), rx.ID, validAddress())
	appErr, ok := err.(*apperrors.AppError)
	if !ok || appErr.Code != "FORBIDDEN" {
		t.Fatalf("Request() for foreign prescription error = %v, want forbidden", err)
	}
}

func TestRequestOncePerPrescription(t *testing.T) {
	f := newFixture(t)
	rx := f.approvedPrescription(t)
	ctx := context.Background()

	if _, err := f.service.Request(ctx, f.patient.ID, rx.ID, validAddress()); err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if _, err := f.service.Request(ctx, f.patient.ID, rx.ID, validAddress()); !apperrors.IsConflict(err) {
		t.Fatalf("second Request() error = %v, want conflict", err)
	}
}

func TestFillWorkflow(t *testing.T) {
	f := newFixture(t)
	rx := f.approvedPrescription(t)
	ctx := context.Background()
	paracetamol := f.stock(t, "Paracetamol", 50)

	req, err := f.service.Request(ctx, f.patient.ID, rx.ID, validAddress())
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if _, err := f.service.Approve(ctx, f.pharmacist.ID, req.ID); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}

	// morning and night for five days consumes ten units
	record, err := f.service.Fill(ctx, f.pharmacist.ID, req.ID, []fulfillment.LineItem{
		{MedicineID: paracetamol, Morning: true, Night: true, Days: 5},
	}, true)
	if err != nil {
		t.Fatalf("Fill() error = %v", err)
	}
	if len(record.Medicines) != 1 {
		t.Fatalf("fill record has %d medicines, want 1", len(record.Medicines))
	}
	m := record.Medicines[0]
	if m.TotalNeeded != 10 || m.StockBefore != 50 || m.StockAfter != 40 {
		t.Errorf("fill line = need %d, %d -> %d; want need 10, 50 -> 40", m.TotalNeeded, m.StockBefore, m.StockAfter)
	}

	inv, _ := f.inventories.Get(ctx, paracetamol, f.pharmacist.ID)
	if inv.StockQuantity != 40 {
		t.Errorf("stock = %d after fill, want 40", inv.StockQuantity)
	}

	stored, _ := f.repo.FindByID(ctx, req.ID)
	if stored.Status != StatusFilled {
		t.Errorf("request status = %s, want %s", stored.Status, StatusFilled)
	}

	want := []tracking.Status{
		tracking.StatusRefillRequested,
		tracking.StatusRefillApproved,
		tracking.StatusFilling,
		tracking.StatusFilled,
	}
	got := f.timeline(t, rx.ID)
	if len(got) != len(want) {
		t.Fatalf("timeline = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("timeline = %v, want %v", got, want)
		}
	}
}

func TestFillInsufficientStockReleasesClaim(t *testing.T) {
	f := newFixture(t)
	rx := f.approvedPrescription(t)
	ctx := context.Background()
	paracetamol := f.stock(t, "Paracetamol", 5)

	req, _ := f.service.Request(ctx, f.patient.ID, rx.ID, validAddress())
	f.service.Approve(ctx, f.pharmacist.ID, req.ID)

	_, err := f.service.Fill(ctx, f.pharmacist.ID, req.ID, []fulfillment.LineItem{
		{MedicineID: paracetamol, Morning: true, Night: true, Days: 5},
	}, true)
	if !apperrors.IsConflict(err) {
		t.Fatalf("Fill() error = %v, want insufficient stock conflict", err)
	}

	inv, _ := f.inventories.Get(ctx, paracetamol, f.pharmacist.ID)
	if inv.StockQuantity != 5 {
		t.Errorf("stock = %d after failed fill, want 5", inv.StockQuantity)
	}

	stored, _ := f.repo.FindByID(ctx, req.ID)
	if stored.Status != StatusApproved {
		t.Errorf("request status = %s after failed fill, want %s", stored.Status, StatusApproved)
	}

	// a retry with less demand succeeds
	if _, err := f.service.Fill(ctx, f.pharmacist.ID, req.ID, []fulfillment.LineItem{
		{MedicineID: paracetamol, Morning: true, Days: 5},
	}, true); err != nil {
		t.Fatalf("retry Fill() error = %v", err)
	}
}

// failingFills refuses the history write after the stock reservation has
// already been applied.
type failingFills struct {
	*fulfillment.MemoryRepository
}

func (f *failingFills) Create(ctx context.Context, h *fulfillment.History) error {
	return apperrors.Internal(errors.New("history store offline"))
}

func TestFillHistoryFailureReleasesStockAndClaim(t *testing.T) {
	f := newFixture(t)
	rx := f.approvedPrescription(t)
	ctx := context.Background()
	paracetamol := f.stock(t, "Paracetamol", 50)

	broken := &failingFills{f.fills}
	logger := zap.NewNop()
	tracker := tracking.NewService(f.trackingRepo, tracking.NewFeed(), prescriptionProbe{f.prescriptions}, logger)
	notifier := notification.NewNotifier(f.outbox, f.outbox, rate.Inf, 1, logger)
	service := NewService(f.repo, f.prescriptions, f.inventories, broken, tracker, notifier, f.users, f.reminders, logger)

	req, _ := service.Request(ctx, f.patient.ID, rx.ID, validAddress())
	service.Approve(ctx, f.pharmacist.ID, req.ID)

	if _, err := service.Fill(ctx, f.pharmacist.ID, req.ID, []fulfillment.LineItem{
		{MedicineID: paracetamol, Morning: true, Night: true, Days: 5},
	}, true); err == nil {
		t.Fatal("Fill() with a broken history store succeeded")
	}

	// the reserved units came back and the claim was released
	inv, _ := f.inventories.Get(ctx, paracetamol, f.pharmacist.ID)
	if inv.StockQuantity != 50 {
		t.Errorf("stock = %d after failed fill, want 50", inv.StockQuantity)
	}
	stored, _ := f.repo.FindByID(ctx, req.ID)
	if stored.Status != StatusApproved {
		t.Errorf("request status = %s after failed fill, want %s", stored.Status, StatusApproved)
	}
}

func TestFillIgnoresEmptyLines(t *testing.T) {
	f := newFixture(t)
	rx := f.approvedPrescription(t)
	ctx := context.Background()
	paracetamol := f.stock(t, "Paracetamol", 50)

	req, _ := f.service.Request(ctx, f.patient.ID, rx.ID, validAddress())
	f.service.Approve(ctx, f.pharmacist.ID, req.ID)

	_, err := f.service.Fill(ctx, f.pharmacist.ID, req.ID, []fulfillment.LineItem{
		{MedicineID: paracetamol, Days: 7},
		{MedicineID: paracetamol, Morning: true, Days: 0},
	}, true)
	if err == nil {
		t.Fatal("Fill() with only empty lines succeeded")
	}

	stored, _ := f.repo.FindByID(ctx, req.ID)
	if stored.Status != StatusApproved {
		t.Errorf("request status = %s, want %s", stored.Status, StatusApproved)
	}
}

func TestFillSchedulesReminderForLongCourses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rxLong := f.approvedPrescription(t)
	long := f.stock(t, "Metformin", 100)
	reqLong, _ := f.service.Request(ctx, f.patient.ID, rxLong.ID, validAddress())
	f.service.Approve(ctx, f.pharmacist.ID, reqLong.ID)
	if _, err := f.service.Fill(ctx, f.pharmacist.ID, reqLong.ID, []fulfillment.LineItem{
		{MedicineID: long, Morning: true, Days: 30},
	}, true); err != nil {
		t.Fatalf("Fill() error = %v", err)
	}
	if len(f.reminders.calls) != 1 || f.reminders.calls[0] != 30 {
		t.Fatalf("reminder calls = %v, want [30]", f.reminders.calls)
	}
	// the filled email names the reminder date
	if body := f.outbox.lastEmail(t); !strings.Contains(body, "A refill reminder is scheduled for 20 Mar 2026.") {
		t.Errorf("filled email missing reminder date: %q", body)
	}

	rxShort := f.approvedPrescription(t)
	short := f.stock(t, "Azithromycin", 100)
	reqShort, _ := f.service.Request(ctx, f.patient.ID, rxShort.ID, validAddress())
	f.service.Approve(ctx, f.pharmacist.ID, reqShort.ID)
	if _, err := f.service.Fill(ctx, f.pharmacist.ID, reqShort.ID, []fulfillment.LineItem{
		{MedicineID: short, Morning: true, Days: 5},
	}, true); err != nil {
		t.Fatalf("Fill() error = %v", err)
	}
	if len(f.reminders.calls) != 1 {
		t.Errorf("short course scheduled a reminder: %v", f.reminders.calls)
	}
	if body := f.outbox.lastEmail(t); !strings.Contains(body, "Reminders disabled.") {
		t.Errorf("short course email missing opt-out note: %q", body)
	}
}

func TestFillHonorsReminderOptOut(t *testing.T) {
	f := newFixture(t)
	rx := f.approvedPrescription(t)
	ctx := context.Background()
	metformin := f.stock(t, "Metformin", 100)

	req, _ := f.service.Request(ctx, f.patient.ID, rx.ID, validAddress())
	f.service.Approve(ctx, f.pharmacist.ID, req.ID)

	// a month long course, but the patient opted out
	if _, err := f.service.Fill(ctx, f.pharmacist.ID, req.ID, []fulfillment.LineItem{
		{MedicineID: metformin, Morning: true, Days: 30},
	}, false); err != nil {
		t.Fatalf("Fill() error = %v", err)
	}
	if len(f.reminders.calls) != 0 {
		t.Errorf("opted-out fill scheduled reminders: %v", f.reminders.calls)
	}
	if body := f.outbox.lastEmail(t); !strings.Contains(body, "Reminders disabled.") {
		t.Errorf("opted-out email missing note: %q", body)
	}
}

func TestApproveLostRaceConflicts(t *testing.T) {
	f := newFixture(t)
	rx := f.approvedPrescription(t)
	ctx := context.Background()

	req, _ := f.service.Request(ctx, f.patient.ID, rx.ID, validAddress())
	if _, err := f.service.Approve(ctx, f.pharmacist.ID, req.ID); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if _, err := f.service.Approve(ctx, f.pharmacist.ID, req.ID); !apperrors.IsConflict(err) {
		t.Fatalf("second Approve() error = %v, want conflict", err)
	}
	if _, err := f.service.Reject(ctx, f.pharmacist.ID, req.ID, "late"); !apperrors.IsConflict(err) {
		t.Fatalf("Reject() after approval error = %v, want conflict", err)
	}
}

func TestDispatchByPrescriptionID(t *testing.T) {
	f := newFixture(t)
	rx := f.approvedPrescription(t)
	ctx := context.Background()
	paracetamol := f.stock(t, "Paracetamol", 50)

	req, _ := f.service.Request(ctx, f.patient.ID, rx.ID, validAddress())
	f.service.Approve(ctx, f.pharmacist.ID, req.ID)
	f.service.Fill(ctx, f.pharmacist.ID, req.ID, []fulfillment.LineItem{
		{MedicineID: paracetamol, Morning: true, Days: 5},
	}, true)

	// dispatch by prescription id, not request id
	dispatched, err := f.service.Dispatch(ctx, rx.ID)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if dispatched.Status != StatusDispatched {
		t.Errorf("status = %s, want %s", dispatched.Status, StatusDispatched)
	}

	events := f.timeline(t, rx.ID)
	dispatchEvents := 0
	for _, s := range events {
		if s == tracking.StatusDispatched {
			dispatchEvents++
		}
	}
	if dispatchEvents != 1 {
		t.Fatalf("timeline has %d DISPATCHED events, want 1", dispatchEvents)
	}

	// repeat dispatch is a no-op: no second event
	if _, err := f.service.Dispatch(ctx, req.ID); err != nil {
		t.Fatalf("repeat Dispatch() error = %v", err)
	}
	events = f.timeline(t, rx.ID)
	dispatchEvents = 0
	for _, s := range events {
		if s == tracking.StatusDispatched {
			dispatchEvents++
		}
	}
	if dispatchEvents != 1 {
		t.Errorf("repeat dispatch appended a timeline event")
	}
}

func TestDispatchFlipsFillRecords(t *testing.T) {
	f := newFixture(t)
	rx := f.approvedPrescription(t)
	ctx := context.Background()
	paracetamol := f.stock(t, "Paracetamol", 50)

	req, _ := f.service.Request(ctx, f.patient.ID, rx.ID, validAddress())
	f.service.Approve(ctx, f.pharmacist.ID, req.ID)
	f.service.Fill(ctx, f.pharmacist.ID, req.ID, []fulfillment.LineItem{
		{MedicineID: paracetamol, Morning: true, Days: 5},
	}, true)

	if _, err := f.service.Dispatch(ctx, req.ID); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	records, _ := f.fills.ListByPrescription(ctx, rx.ID)
	if len(records) != 1 {
		t.Fatalf("fill records = %d, want 1", len(records))
	}
	if records[0].Status != fulfillment.StatusDispatched {
		t.Errorf("fill record status = %s, want %s", records[0].Status, fulfillment.StatusDispatched)
	}
}

func TestDispatchEmailCarriesMedicineList(t *testing.T) {
	f := newFixture(t)
	rx := f.approvedPrescription(t)
	ctx := context.Background()
	paracetamol := f.stock(t, "Paracetamol", 50)

	req, _ := f.service.Request(ctx, f.patient.ID, rx.ID, validAddress())
	f.service.Approve(ctx, f.pharmacist.ID, req.ID)
	f.service.Fill(ctx, f.pharmacist.ID, req.ID, []fulfillment.LineItem{
		{MedicineID: paracetamol, Morning: true, Night: true, Days: 5},
	}, true)

	if _, err := f.service.Dispatch(ctx, req.ID); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	body := f.outbox.lastEmail(t)
	if !strings.Contains(body, "- Paracetamol (x10)") {
		t.Errorf("dispatched email missing medicine list: %q", body)
	}
	if !strings.Contains(body, "560001") {
		t.Errorf("dispatched email missing delivery address: %q", body)
	}
}

func TestDispatchPendingByPrescriptionNotFound(t *testing.T) {
	f := newFixture(t)
	rx := f.approvedPrescription(t)
	ctx := context.Background()

	if _, err := f.service.Request(ctx, f.patient.ID, rx.ID, validAddress()); err != nil {
		t.Fatalf("Request() error = %v", err)
	}

	// the only request is still PENDING: nothing to dispatch
	if _, err := f.service.Dispatch(ctx, rx.ID); !apperrors.IsNotFound(err) {
		t.Fatalf("Dispatch() of pending-only prescription error = %v, want not found", err)
	}
}

func TestDispatchUnfilledApprovedRequest(t *testing.T) {
	f := newFixture(t)
	rx := f.approvedPrescription(t)
	ctx := context.Background()

	req, _ := f.service.Request(ctx, f.patient.ID, rx.ID, validAddress())
	f.service.Approve(ctx, f.pharmacist.ID, req.ID)

	dispatched, err := f.service.Dispatch(ctx, req.ID)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if dispatched.Status != StatusDispatched {
		t.Errorf("status = %s, want %s", dispatched.Status, StatusDispatched)
	}
}

func TestGetDetailForPharmacist(t *testing.T) {
	f := newFixture(t)
	rx := f.approvedPrescription(t)
	ctx := context.Background()
	f.stock(t, "Paracetamol", 50)

	req, _ := f.service.Request(ctx, f.patient.ID, rx.ID, validAddress())

	detail, err := f.service.Get(ctx, req.ID, f.pharmacist.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if detail.PatientName != "Asha" {
		t.Errorf("PatientName = %q, want Asha", detail.PatientName)
	}
	if detail.ImageRef != "scans/rx-1.png" {
		t.Errorf("ImageRef = %q", detail.ImageRef)
	}
	if len(detail.Stock) != 1 || detail.Stock[0].MedicineName != "Paracetamol" || detail.Stock[0].InStock != 50 {
		t.Errorf("Stock = %+v", detail.Stock)
	}

	// patient callers get no shelf
	asPatient, err := f.service.Get(ctx, req.ID, types.ID(""))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(asPatient.Stock) != 0 {
		t.Errorf("patient view carries stock: %+v", asPatient.Stock)
	}
}
