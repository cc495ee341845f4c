package prescription

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rxcare/platform/internal/shared/errors"
	"github.com/rxcare/platform/internal/shared/types"
)

// PostgresRepository provides database operations for prescriptions
type PostgresRepository struct {
	pool *pgxpool.Pool
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository creates a new prescription repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const prescriptionColumns = `id, patient_id, image_ref, status, notes, created_at, updated_at`

// Create inserts a new prescription
func (r *PostgresRepository) Create(ctx context.Context, p *Prescription) error {
	query := `
		INSERT INTO prescriptions (` + prescriptionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, query,
		p.ID, p.PatientID, p.ImageRef, p.Status, p.Notes, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create prescription")
	}
	return nil
}

// FindByID retrieves a prescription by ID
func (r *PostgresRepository) FindByID(ctx context.Context, id types.ID) (*Prescription, error) {
	query := `SELECT ` + prescriptionColumns + ` FROM prescriptions WHERE id = $1`

	p := &Prescription{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.PatientID, &p.ImageRef, &p.Status, &p.Notes, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("prescription", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get prescription")
	}
	return p, nil
}

// Update persists a reviewed prescription
func (r *PostgresRepository) Update(ctx context.Context, p *Prescription) error {
	query := `
		UPDATE prescriptions
		SET status = $2, notes = $3, updated_at = $4
		WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, p.ID, p.Status, p.Notes, p.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "failed to update prescription")
	}
	if result.RowsAffected() == 0 {
		return errors.NotFound("prescription", p.ID.String())
	}
	return nil
}

// ListByPatient lists a patient's prescriptions, newest first
func (r *PostgresRepository) ListByPatient(ctx context.Context, patientID types.ID) ([]Prescription, error) {
	query := `SELECT ` + prescriptionColumns + ` FROM prescriptions
		WHERE patient_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, patientID)
}

// ListByStatus lists prescriptions in a given status, oldest first
func (r *PostgresRepository) ListByStatus(ctx context.Context, status Status) ([]Prescription, error) {
	query := `SELECT ` + prescriptionColumns + ` FROM prescriptions
		WHERE status = $1 ORDER BY created_at ASC`
	return r.list(ctx, query, status)
}

// ListAll lists every prescription, newest first
func (r *PostgresRepository) ListAll(ctx context.Context) ([]Prescription, error) {
	query := `SELECT ` + prescriptionColumns + ` FROM prescriptions ORDER BY created_at DESC`
	return r.list(ctx, query)
}

// DeleteByPatient removes all prescriptions for a patient (account cascade)
func (r *PostgresRepository) DeleteByPatient(ctx context.Context, patientID types.ID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM prescriptions WHERE patient_id = $1`, patientID)
	if err != nil {
		return errors.Wrap(err, "failed to delete prescriptions")
	}
	return nil
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]Prescription, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list prescriptions")
	}
	defer rows.Close()

	var out []Prescription
	for rows.Next() {
		var p Prescription
		if err := rows.Scan(&p.ID, &p.PatientID, &p.ImageRef, &p.Status, &p.Notes, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan prescription")
		}
		out = append(out, p)
	}
	return out, nil
}
