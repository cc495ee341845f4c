package tracking

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rxcare/platform/internal/shared/errors"
	"github.com/rxcare/platform/internal/shared/types"
)

// PostgresRepository provides append-only tracking ledger operations
type PostgresRepository struct {
	pool *pgxpool.Pool
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository creates a new tracking repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Append inserts one tracking event
func (r *PostgresRepository) Append(ctx context.Context, e *Event) error {
	query := `
		INSERT INTO tracking_events (id, prescription_id, status, notes, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.pool.Exec(ctx, query, e.ID, e.PrescriptionID, e.Status, e.Notes, e.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "failed to append tracking event")
	}
	return nil
}

// ListByPrescription returns a prescription's events, oldest first
func (r *PostgresRepository) ListByPrescription(ctx context.Context, prescriptionID types.ID) ([]Event, error) {
	query := `
		SELECT id, prescription_id, status, notes, created_at
		FROM tracking_events
		WHERE prescription_id = $1
		ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, prescriptionID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list tracking events")
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.PrescriptionID, &e.Status, &e.Notes, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan tracking event")
		}
		out = append(out, e)
	}
	return out, nil
}

// CountByPrescription returns the number of events for a prescription
func (r *PostgresRepository) CountByPrescription(ctx context.Context, prescriptionID types.ID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM tracking_events WHERE prescription_id = $1`,
		prescriptionID,
	).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count tracking events")
	}
	return n, nil
}
