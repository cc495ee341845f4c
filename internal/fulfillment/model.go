package fulfillment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rxcare/platform/internal/shared/types"
)

// History status values.
const (
	StatusFilled     = "FILLED"
	StatusDispatched = "DISPATCHED"
)

// LineItem is one medicine line of a fill as the pharmacist enters it:
// which parts of the day it is taken and for how many days.
type LineItem struct {
	MedicineID types.ID `json:"medicine_id"`
	Morning    bool     `json:"morning"`
	Afternoon  bool     `json:"afternoon"`
	Night      bool     `json:"night"`
	Days       int      `json:"days"`
}

// TimesPerDay counts the dose slots the item is taken in
func (li LineItem) TimesPerDay() int {
	n := 0
	if li.Morning {
		n++
	}
	if li.Afternoon {
		n++
	}
	if li.Night {
		n++
	}
	return n
}

// TotalNeeded is the unit count the item consumes from stock
func (li LineItem) TotalNeeded() int {
	return li.TimesPerDay() * li.Days
}

// ExpandItems drops the lines that consume nothing. A line with no dose
// slots selected or a non-positive day count contributes zero units, so
// it neither touches stock nor appears in the fill record.
func ExpandItems(items []LineItem) []LineItem {
	out := make([]LineItem, 0, len(items))
	for _, li := range items {
		if li.TimesPerDay() == 0 || li.Days <= 0 {
			continue
		}
		out = append(out, li)
	}
	return out
}

// MaxDays returns the longest day count across the given lines
func MaxDays(items []LineItem) int {
	max := 0
	for _, li := range items {
		if li.Days > max {
			max = li.Days
		}
	}
	return max
}

// FilledMedicine is the persisted record of one line of a completed fill
type FilledMedicine struct {
	ID           types.ID `json:"id"`
	HistoryID    types.ID `json:"-"`
	MedicineID   types.ID `json:"medicine_id"`
	MedicineName string   `json:"medicine_name"`
	TimesPerDay  int      `json:"times_per_day"`
	Days         int      `json:"days"`
	TotalNeeded  int      `json:"total_needed"`
	StockBefore  int      `json:"stock_before"`
	StockAfter   int      `json:"stock_after"`
}

// History is the audit record of one completed fill
type History struct {
	ID             types.ID         `json:"id"`
	PrescriptionID types.ID         `json:"prescription_id"`
	PatientID      types.ID         `json:"patient_id"`
	PharmacistID   types.ID         `json:"pharmacist_id"`
	Status         string           `json:"status"`
	Medicines      []FilledMedicine `json:"medicines"`
	FilledAt       time.Time        `json:"filled_at"`
}

// NewHistory builds a completed fill record from its line records
func NewHistory(prescriptionID, patientID, pharmacistID types.ID, medicines []FilledMedicine) *History {
	h := &History{
		ID:             types.NewID(),
		PrescriptionID: prescriptionID,
		PatientID:      patientID,
		PharmacistID:   pharmacistID,
		Status:         StatusFilled,
		Medicines:      medicines,
		FilledAt:       time.Now(),
	}
	for i := range h.Medicines {
		h.Medicines[i].ID = types.NewID()
		h.Medicines[i].HistoryID = h.ID
	}
	return h
}

// MedicineList renders fill lines for patient-facing messages, one
// "- Name (xN)" line per medicine.
func MedicineList(medicines []FilledMedicine) string {
	var b strings.Builder
	for _, m := range medicines {
		fmt.Fprintf(&b, "- %s (x%d)\n", m.MedicineName, m.TotalNeeded)
	}
	return b.String()
}

// Repository defines fill history persistence. Records are immutable
// except for the dispatch flip.
type Repository interface {
	Create(ctx context.Context, h *History) error
	FindByID(ctx context.Context, id types.ID) (*History, error)
	// LatestByPrescription returns the most recent fill record.
	LatestByPrescription(ctx context.Context, prescriptionID types.ID) (*History, error)
	ListByPrescription(ctx context.Context, prescriptionID types.ID) ([]History, error)
	ListByPatient(ctx context.Context, patientID types.ID) ([]History, error)
	ListByPharmacist(ctx context.Context, pharmacistID types.ID) ([]History, error)
	// MarkDispatched flips the prescription's FILLED records to
	// DISPATCHED. A prescription with no fill records is a no-op.
	MarkDispatched(ctx context.Context, prescriptionID types.ID) error
}
