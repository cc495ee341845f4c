package refill

import (
	"context"
	stderrors "errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rxcare/platform/internal/shared/errors"
	"github.com/rxcare/platform/internal/shared/types"
)

// PostgresRepository provides database operations for refill requests
type PostgresRepository struct {
	pool *pgxpool.Pool
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository creates a new refill request repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const refillColumns = `id, prescription_id, patient_id, pharmacist_id, status,
	delivery_line1, delivery_line2, delivery_city, delivery_state, delivery_pincode, delivery_phone,
	rejection_reason, requested_at, actioned_at`

// Create inserts a refill request. The unique index on prescription_id
// turns a duplicate request into a conflict.
func (r *PostgresRepository) Create(ctx context.Context, req *Request) error {
	query := `
		INSERT INTO refill_requests (` + refillColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := r.pool.Exec(ctx, query,
		req.ID, req.PrescriptionID, req.PatientID, req.PharmacistID, req.Status,
		req.Delivery.Line1, req.Delivery.Line2, req.Delivery.City, req.Delivery.State,
		req.Delivery.Pincode, req.Delivery.Phone,
		req.RejectionReason, req.RequestedAt, req.ActionedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Conflict("a refill request already exists for this prescription")
		}
		return errors.Wrap(err, "failed to create refill request")
	}
	return nil
}

// FindByID retrieves a refill request by ID
func (r *PostgresRepository) FindByID(ctx context.Context, id types.ID) (*Request, error) {
	query := `SELECT ` + refillColumns + ` FROM refill_requests WHERE id = $1`
	return r.get(ctx, query, id)
}

// FindByPrescription retrieves the prescription's dispatch-eligible request
func (r *PostgresRepository) FindByPrescription(ctx context.Context, prescriptionID types.ID) (*Request, error) {
	query := `SELECT ` + refillColumns + ` FROM refill_requests
		WHERE prescription_id = $1 AND status IN ('APPROVED', 'FILLED', 'DISPATCHED')`
	return r.get(ctx, query, prescriptionID)
}

// Update persists an actioned refill request, guarded on the stored row
// still holding from.
func (r *PostgresRepository) Update(ctx context.Context, req *Request, from Status) error {
	query := `
		UPDATE refill_requests
		SET pharmacist_id = $2, status = $3, rejection_reason = $4, actioned_at = $5
		WHERE id = $1 AND status = $6`

	result, err := r.pool.Exec(ctx, query,
		req.ID, req.PharmacistID, req.Status, req.RejectionReason, req.ActionedAt, from,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update refill request")
	}
	if result.RowsAffected() == 0 {
		return errors.Conflict("refill request was modified concurrently")
	}
	return nil
}

// UpdateStatus flips status only when the stored row still holds from
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id types.ID, from, to Status) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE refill_requests SET status = $3, actioned_at = NOW() WHERE id = $1 AND status = $2`,
		id, from, to,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update refill status")
	}
	if result.RowsAffected() == 0 {
		return errors.Conflict("refill request was modified concurrently")
	}
	return nil
}

// ListByPatient lists a patient's refill requests, newest first
func (r *PostgresRepository) ListByPatient(ctx context.Context, patientID types.ID) ([]Request, error) {
	query := `SELECT ` + refillColumns + ` FROM refill_requests
		WHERE patient_id = $1 ORDER BY requested_at DESC`
	return r.list(ctx, query, patientID)
}

// ListByStatus lists refill requests in a given status, oldest first
func (r *PostgresRepository) ListByStatus(ctx context.Context, status Status) ([]Request, error) {
	query := `SELECT ` + refillColumns + ` FROM refill_requests
		WHERE status = $1 ORDER BY requested_at ASC`
	return r.list(ctx, query, status)
}

// ListAll lists every refill request, newest first
func (r *PostgresRepository) ListAll(ctx context.Context) ([]Request, error) {
	query := `SELECT ` + refillColumns + ` FROM refill_requests ORDER BY requested_at DESC`
	return r.list(ctx, query)
}

// ExistsForPrescription reports whether a request exists in any status
func (r *PostgresRepository) ExistsForPrescription(ctx context.Context, prescriptionID types.ID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM refill_requests WHERE prescription_id = $1)`,
		prescriptionID,
	).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "failed to check refill request")
	}
	return exists, nil
}

// HasPending reports whether the prescription has an unactioned request
func (r *PostgresRepository) HasPending(ctx context.Context, prescriptionID types.ID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM refill_requests WHERE prescription_id = $1 AND status = $2)`,
		prescriptionID, StatusPending,
	).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "failed to check pending refill request")
	}
	return exists, nil
}

func (r *PostgresRepository) get(ctx context.Context, query string, arg any) (*Request, error) {
	req := &Request{}
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&req.ID, &req.PrescriptionID, &req.PatientID, &req.PharmacistID, &req.Status,
		&req.Delivery.Line1, &req.Delivery.Line2, &req.Delivery.City, &req.Delivery.State,
		&req.Delivery.Pincode, &req.Delivery.Phone,
		&req.RejectionReason, &req.RequestedAt, &req.ActionedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("refill request", "")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get refill request")
	}
	return req, nil
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]Request, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list refill requests")
	}
	defer rows.Close()

	var out []Request
	for rows.Next() {
		var req Request
		if err := rows.Scan(
			&req.ID, &req.PrescriptionID, &req.PatientID, &req.PharmacistID, &req.Status,
			&req.Delivery.Line1, &req.Delivery.Line2, &req.Delivery.City, &req.Delivery.State,
			&req.Delivery.Pincode, &req.Delivery.Phone,
			&req.RejectionReason, &req.RequestedAt, &req.ActionedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan refill request")
		}
		out = append(out, req)
	}
	return out, nil
}

// isUniqueViolation reports a postgres unique constraint error (23505)
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return stderrors.As(err, &pgErr) && pgErr.Code == "23505"
}
