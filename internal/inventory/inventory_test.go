package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "github.com/rxcare/platform/internal/shared/errors"
	"github.com/rxcare/platform/internal/shared/types"
)

func seedRepo(t *testing.T, pharmacistID types.ID, stocks map[string]int) (*MemoryRepository, map[string]types.ID) {
	t.Helper()
	repo := NewMemoryRepository()
	ids := make(map[string]types.ID, len(stocks))
	now := time.Now()
	for name, qty := range stocks {
		id := types.NewID()
		ids[name] = id
		err := repo.Add(context.Background(), &Inventory{
			MedicineID:        id,
			PharmacistID:      pharmacistID,
			MedicineName:      name,
			StockQuantity:     qty,
			LowStockThreshold: 5,
			CreatedAt:         now,
			UpdatedAt:         now,
		})
		if err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}
	return repo, ids
}

func TestReserveDecrementsStock(t *testing.T) {
	pharmacist := types.NewID()
	repo, ids := seedRepo(t, pharmacist, map[string]int{"Paracetamol": 50})

	res, err := repo.Reserve(context.Background(), pharmacist, []Need{{MedicineID: ids["Paracetamol"], Amount: 10}})
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	if len(res) != 1 {
		t.Fatalf("Reserve() returned %d reservations, want 1", len(res))
	}
	if res[0].Before != 50 || res[0].After != 40 {
		t.Errorf("reservation = %d -> %d, want 50 -> 40", res[0].Before, res[0].After)
	}

	inv, err := repo.Get(context.Background(), ids["Paracetamol"], pharmacist)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if inv.StockQuantity != 40 {
		t.Errorf("StockQuantity = %d, want 40", inv.StockQuantity)
	}
}

func TestReserveInsufficientStock(t *testing.T) {
	pharmacist := types.NewID()
	repo, ids := seedRepo(t, pharmacist, map[string]int{"Paracetamol": 3})

	_, err := repo.Reserve(context.Background(), pharmacist, []Need{{MedicineID: ids["Paracetamol"], Amount: 10}})
	var insufficient *InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("Reserve() error = %v, want InsufficientStockError", err)
	}
	if insufficient.Available != 3 || insufficient.Requested != 10 {
		t.Errorf("error = have %d need %d, want have 3 need 10", insufficient.Available, insufficient.Requested)
	}
	if !apperrors.IsConflict(err) {
		t.Error("insufficient stock should unwrap to a conflict")
	}

	inv, _ := repo.Get(context.Background(), ids["Paracetamol"], pharmacist)
	if inv.StockQuantity != 3 {
		t.Errorf("StockQuantity = %d after failed reserve, want 3", inv.StockQuantity)
	}
}

func TestReserveAllOrNothing(t *testing.T) {
	pharmacist := types.NewID()
	repo, ids := seedRepo(t, pharmacist, map[string]int{"Paracetamol": 50, "Ibuprofen": 2})

	// Second line overdraws, so the first must not be applied either.
	_, err := repo.Reserve(context.Background(), pharmacist, []Need{
		{MedicineID: ids["Paracetamol"], Amount: 10},
		{MedicineID: ids["Ibuprofen"], Amount: 5},
	})
	if err == nil {
		t.Fatal("Reserve() succeeded, want insufficient stock error")
	}

	para, _ := repo.Get(context.Background(), ids["Paracetamol"], pharmacist)
	if para.StockQuantity != 50 {
		t.Errorf("Paracetamol stock = %d after failed reserve, want 50", para.StockQuantity)
	}
}

func TestReserveUnknownMedicine(t *testing.T) {
	pharmacist := types.NewID()
	repo, _ := seedRepo(t, pharmacist, map[string]int{"Paracetamol": 50})

	_, err := repo.Reserve(context.Background(), pharmacist, []Need{{MedicineID: types.NewID(), Amount: 1}})
	if !apperrors.IsNotFound(err) {
		t.Fatalf("Reserve() error = %v, want not found", err)
	}
}

// Concurrent reservations against one row must never drive stock below
// zero: exactly stock/amount of them may succeed.
func TestReserveConcurrentNeverOversells(t *testing.T) {
	pharmacist := types.NewID()
	repo, ids := seedRepo(t, pharmacist, map[string]int{"Paracetamol": 30})

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Reserve(context.Background(), pharmacist, []Need{{MedicineID: ids["Paracetamol"], Amount: 10}})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 3 {
		t.Errorf("%d reservations succeeded, want exactly 3", succeeded)
	}
	inv, _ := repo.Get(context.Background(), ids["Paracetamol"], pharmacist)
	if inv.StockQuantity != 0 {
		t.Errorf("StockQuantity = %d, want 0", inv.StockQuantity)
	}
}

func TestIsLowStock(t *testing.T) {
	tests := []struct {
		name      string
		stock     int
		threshold int
		want      bool
	}{
		{"above threshold", 10, 5, false},
		{"at threshold", 5, 5, true},
		{"below threshold", 2, 5, true},
		{"zero threshold zero stock", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := Inventory{StockQuantity: tt.stock, LowStockThreshold: tt.threshold}
			if got := inv.IsLowStock(); got != tt.want {
				t.Errorf("IsLowStock() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestListLowStock(t *testing.T) {
	pharmacist := types.NewID()
	repo, _ := seedRepo(t, pharmacist, map[string]int{"Paracetamol": 50, "Ibuprofen": 4, "Cetirizine": 5})

	items, err := repo.ListLowStock(context.Background(), pharmacist)
	if err != nil {
		t.Fatalf("ListLowStock() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("ListLowStock() returned %d items, want 2", len(items))
	}
	// sorted by name
	if items[0].MedicineName != "Cetirizine" || items[1].MedicineName != "Ibuprofen" {
		t.Errorf("unexpected low-stock order: %s, %s", items[0].MedicineName, items[1].MedicineName)
	}
}

func TestListExpiringWithin(t *testing.T) {
	pharmacist := types.NewID()
	repo := NewMemoryRepository()
	now := time.Now()

	soon := now.Add(10 * 24 * time.Hour)
	far := now.Add(90 * 24 * time.Hour)
	for name, expiry := range map[string]*time.Time{"Soon": &soon, "Far": &far, "Never": nil} {
		err := repo.Add(context.Background(), &Inventory{
			MedicineID:    types.NewID(),
			PharmacistID:  pharmacist,
			MedicineName:  name,
			StockQuantity: 10,
			ExpiryDate:    expiry,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
		if err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}

	items, err := repo.ListExpiringWithin(context.Background(), pharmacist, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("ListExpiringWithin() error = %v", err)
	}
	if len(items) != 1 || items[0].MedicineName != "Soon" {
		t.Fatalf("ListExpiringWithin() = %+v, want only Soon", items)
	}
}

func TestAddDuplicateConflicts(t *testing.T) {
	pharmacist := types.NewID()
	repo, ids := seedRepo(t, pharmacist, map[string]int{"Paracetamol": 50})

	err := repo.Add(context.Background(), &Inventory{
		MedicineID:   ids["Paracetamol"],
		PharmacistID: pharmacist,
		MedicineName: "Paracetamol",
	})
	if !apperrors.IsConflict(err) {
		t.Fatalf("Add() duplicate error = %v, want conflict", err)
	}
}
