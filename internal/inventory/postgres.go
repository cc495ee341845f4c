package inventory

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rxcare/platform/internal/shared/errors"
	"github.com/rxcare/platform/internal/shared/types"
)

// PostgresRepository provides database operations for inventory
type PostgresRepository struct {
	pool *pgxpool.Pool
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository creates a new inventory repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const inventoryColumns = `medicine_id, pharmacist_id, medicine_name, stock_quantity, low_stock_threshold, expiry_date, created_at, updated_at`

// Reserve decrements stock for every need inside one transaction. Each
// decrement is conditional on the row still holding enough units, so a
// concurrent reservation that got there first makes this one fail and
// roll back with nothing applied.
func (r *PostgresRepository) Reserve(ctx context.Context, pharmacistID types.ID, needs []Need) ([]Reservation, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin reservation")
	}
	defer tx.Rollback(ctx)

	out := make([]Reservation, 0, len(needs))
	for _, n := range needs {
		query := `
			UPDATE inventory
			SET stock_quantity = stock_quantity - $3, updated_at = NOW()
			WHERE medicine_id = $1 AND pharmacist_id = $2 AND stock_quantity >= $3
			RETURNING medicine_name, stock_quantity + $3, stock_quantity, stock_quantity <= low_stock_threshold`

		var res Reservation
		res.MedicineID = n.MedicineID
		err := tx.QueryRow(ctx, query, n.MedicineID, pharmacistID, n.Amount).Scan(
			&res.MedicineName, &res.Before, &res.After, &res.LowStock,
		)
		if err == pgx.ErrNoRows {
			// distinguish a missing row from an overdrawn one
			var available int
			probe := tx.QueryRow(ctx,
				`SELECT stock_quantity FROM inventory WHERE medicine_id = $1 AND pharmacist_id = $2`,
				n.MedicineID, pharmacistID,
			).Scan(&available)
			if probe == pgx.ErrNoRows {
				return nil, errors.NotFound("inventory", n.MedicineID.String())
			}
			if probe != nil {
				return nil, errors.Wrap(probe, "failed to probe inventory")
			}
			return nil, &InsufficientStockError{MedicineID: n.MedicineID, Available: available, Requested: n.Amount}
		}
		if err != nil {
			return nil, errors.Wrap(err, "failed to reserve stock")
		}
		out = append(out, res)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to commit reservation")
	}
	return out, nil
}

// Release returns previously reserved units to their rows
func (r *PostgresRepository) Release(ctx context.Context, pharmacistID types.ID, needs []Need) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin release")
	}
	defer tx.Rollback(ctx)

	for _, n := range needs {
		result, err := tx.Exec(ctx,
			`UPDATE inventory SET stock_quantity = stock_quantity + $3, updated_at = NOW()
				WHERE medicine_id = $1 AND pharmacist_id = $2`,
			n.MedicineID, pharmacistID, n.Amount,
		)
		if err != nil {
			return errors.Wrap(err, "failed to release stock")
		}
		if result.RowsAffected() == 0 {
			return errors.NotFound("inventory", n.MedicineID.String())
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit release")
	}
	return nil
}

// Add inserts a new inventory row
func (r *PostgresRepository) Add(ctx context.Context, inv *Inventory) error {
	query := `
		INSERT INTO inventory (` + inventoryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		inv.MedicineID, inv.PharmacistID, inv.MedicineName, inv.StockQuantity,
		inv.LowStockThreshold, inv.ExpiryDate, inv.CreatedAt, inv.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to add inventory")
	}
	return nil
}

// Update overwrites an inventory row's mutable fields
func (r *PostgresRepository) Update(ctx context.Context, inv *Inventory) error {
	query := `
		UPDATE inventory
		SET medicine_name = $3, stock_quantity = $4, low_stock_threshold = $5, expiry_date = $6, updated_at = $7
		WHERE medicine_id = $1 AND pharmacist_id = $2`

	result, err := r.pool.Exec(ctx, query,
		inv.MedicineID, inv.PharmacistID, inv.MedicineName, inv.StockQuantity,
		inv.LowStockThreshold, inv.ExpiryDate, inv.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update inventory")
	}
	if result.RowsAffected() == 0 {
		return errors.NotFound("inventory", inv.MedicineID.String())
	}
	return nil
}

// Get retrieves one inventory row
func (r *PostgresRepository) Get(ctx context.Context, medicineID, pharmacistID types.ID) (*Inventory, error) {
	query := `SELECT ` + inventoryColumns + ` FROM inventory WHERE medicine_id = $1 AND pharmacist_id = $2`

	inv := &Inventory{}
	err := r.pool.QueryRow(ctx, query, medicineID, pharmacistID).Scan(
		&inv.MedicineID, &inv.PharmacistID, &inv.MedicineName, &inv.StockQuantity,
		&inv.LowStockThreshold, &inv.ExpiryDate, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("inventory", medicineID.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get inventory")
	}
	return inv, nil
}

// Delete removes one inventory row
func (r *PostgresRepository) Delete(ctx context.Context, medicineID, pharmacistID types.ID) error {
	result, err := r.pool.Exec(ctx,
		`DELETE FROM inventory WHERE medicine_id = $1 AND pharmacist_id = $2`,
		medicineID, pharmacistID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to delete inventory")
	}
	if result.RowsAffected() == 0 {
		return errors.NotFound("inventory", medicineID.String())
	}
	return nil
}

// ListByPharmacist lists a pharmacist's inventory by medicine name
func (r *PostgresRepository) ListByPharmacist(ctx context.Context, pharmacistID types.ID) ([]Inventory, error) {
	query := `SELECT ` + inventoryColumns + ` FROM inventory
		WHERE pharmacist_id = $1 ORDER BY medicine_name ASC`
	return r.list(ctx, query, pharmacistID)
}

// ListLowStock lists rows at or below their low-stock threshold
func (r *PostgresRepository) ListLowStock(ctx context.Context, pharmacistID types.ID) ([]Inventory, error) {
	query := `SELECT ` + inventoryColumns + ` FROM inventory
		WHERE pharmacist_id = $1 AND stock_quantity <= low_stock_threshold
		ORDER BY medicine_name ASC`
	return r.list(ctx, query, pharmacistID)
}

// ListExpiringWithin lists rows whose expiry date falls inside the window
func (r *PostgresRepository) ListExpiringWithin(ctx context.Context, pharmacistID types.ID, window time.Duration) ([]Inventory, error) {
	cutoff := time.Now().Add(window)
	query := `SELECT ` + inventoryColumns + ` FROM inventory
		WHERE pharmacist_id = $1 AND expiry_date IS NOT NULL AND expiry_date <= $2
		ORDER BY expiry_date ASC`
	return r.list(ctx, query, pharmacistID, cutoff)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]Inventory, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list inventory")
	}
	defer rows.Close()

	var out []Inventory
	for rows.Next() {
		var inv Inventory
		if err := rows.Scan(
			&inv.MedicineID, &inv.PharmacistID, &inv.MedicineName, &inv.StockQuantity,
			&inv.LowStockThreshold, &inv.ExpiryDate, &inv.CreatedAt, &inv.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan inventory")
		}
		out = append(out, inv)
	}
	return out, nil
}
