package fulfillment

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rxcare/platform/internal/shared/errors"
	"github.com/rxcare/platform/internal/shared/types"
)

// PostgresRepository provides database operations for fill history
type PostgresRepository struct {
	pool *pgxpool.Pool
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository creates a new fill history repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const historyColumns = `id, prescription_id, patient_id, pharmacist_id, status, filled_at`
const medicineColumns = `id, history_id, medicine_id, medicine_name, times_per_day, days, total_needed, stock_before, stock_after`

// Create inserts a fill record and its medicine lines in one transaction
func (r *PostgresRepository) Create(ctx context.Context, h *History) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin fill record")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO fill_history (`+historyColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		h.ID, h.PrescriptionID, h.PatientID, h.PharmacistID, h.Status, h.FilledAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create fill record")
	}

	for _, m := range h.Medicines {
		_, err = tx.Exec(ctx,
			`INSERT INTO filled_medicines (`+medicineColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			m.ID, m.HistoryID, m.MedicineID, m.MedicineName, m.TimesPerDay, m.Days, m.TotalNeeded, m.StockBefore, m.StockAfter,
		)
		if err != nil {
			return errors.Wrap(err, "failed to create filled medicine")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit fill record")
	}
	return nil
}

// FindByID retrieves one fill record with its medicine lines
func (r *PostgresRepository) FindByID(ctx context.Context, id types.ID) (*History, error) {
	h := &History{}
	err := r.pool.QueryRow(ctx,
		`SELECT `+historyColumns+` FROM fill_history WHERE id = $1`, id,
	).Scan(&h.ID, &h.PrescriptionID, &h.PatientID, &h.PharmacistID, &h.Status, &h.FilledAt)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("fill record", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get fill record")
	}
	if err := r.loadMedicines(ctx, h); err != nil {
		return nil, err
	}
	return h, nil
}

// LatestByPrescription returns the most recent fill record
func (r *PostgresRepository) LatestByPrescription(ctx context.Context, prescriptionID types.ID) (*History, error) {
	h := &History{}
	err := r.pool.QueryRow(ctx,
		`SELECT `+historyColumns+` FROM fill_history
			WHERE prescription_id = $1 ORDER BY filled_at DESC LIMIT 1`, prescriptionID,
	).Scan(&h.ID, &h.PrescriptionID, &h.PatientID, &h.PharmacistID, &h.Status, &h.FilledAt)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("fill record", prescriptionID.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get latest fill record")
	}
	if err := r.loadMedicines(ctx, h); err != nil {
		return nil, err
	}
	return h, nil
}

// MarkDispatched flips the prescription's FILLED records to DISPATCHED
func (r *PostgresRepository) MarkDispatched(ctx context.Context, prescriptionID types.ID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE fill_history SET status = $2 WHERE prescription_id = $1 AND status = $3`,
		prescriptionID, StatusDispatched, StatusFilled,
	)
	if err != nil {
		return errors.Wrap(err, "failed to mark fill records dispatched")
	}
	return nil
}

// ListByPrescription lists a prescription's fill records, newest first
func (r *PostgresRepository) ListByPrescription(ctx context.Context, prescriptionID types.ID) ([]History, error) {
	query := `SELECT ` + historyColumns + ` FROM fill_history
		WHERE prescription_id = $1 ORDER BY filled_at DESC`
	return r.list(ctx, query, prescriptionID)
}

// ListByPatient lists a patient's fill records, newest first
func (r *PostgresRepository) ListByPatient(ctx context.Context, patientID types.ID) ([]History, error) {
	query := `SELECT ` + historyColumns + ` FROM fill_history
		WHERE patient_id = $1 ORDER BY filled_at DESC`
	return r.list(ctx, query, patientID)
}

// ListByPharmacist lists a pharmacist's fill records, newest first
func (r *PostgresRepository) ListByPharmacist(ctx context.Context, pharmacistID types.ID) ([]History, error) {
	query := `SELECT ` + historyColumns + ` FROM fill_history
		WHERE pharmacist_id = $1 ORDER BY filled_at DESC`
	return r.list(ctx, query, pharmacistID)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]History, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list fill records")
	}
	defer rows.Close()

	var out []History
	for rows.Next() {
		var h History
		if err := rows.Scan(&h.ID, &h.PrescriptionID, &h.PatientID, &h.PharmacistID, &h.Status, &h.FilledAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan fill record")
		}
		out = append(out, h)
	}
	for i := range out {
		if err := r.loadMedicines(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *PostgresRepository) loadMedicines(ctx context.Context, h *History) error {
	rows, err := r.pool.Query(ctx,
		`SELECT `+medicineColumns+` FROM filled_medicines WHERE history_id = $1 ORDER BY medicine_name ASC`,
		h.ID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to list filled medicines")
	}
	defer rows.Close()

	for rows.Next() {
		var m FilledMedicine
		if err := rows.Scan(&m.ID, &m.HistoryID, &m.MedicineID, &m.MedicineName, &m.TimesPerDay, &m.Days, &m.TotalNeeded, &m.StockBefore, &m.StockAfter); err != nil {
			return errors.Wrap(err, "failed to scan filled medicine")
		}
		h.Medicines = append(h.Medicines, m)
	}
	return nil
}
