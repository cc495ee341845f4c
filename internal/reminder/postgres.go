package reminder

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rxcare/platform/internal/shared/errors"
	"github.com/rxcare/platform/internal/shared/types"
)

// PostgresRepository provides database operations for reminders
type PostgresRepository struct {
	pool *pgxpool.Pool
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository creates a new reminder repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const reminderColumns = `id, prescription_id, patient_id, days_until_refill, reminder_date,
	enabled, sent, sent_at, patient_phone, message, created_at`

// Create inserts a reminder
func (r *PostgresRepository) Create(ctx context.Context, rem *Reminder) error {
	query := `
		INSERT INTO refill_reminders (` + reminderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.pool.Exec(ctx, query,
		rem.ID, rem.PrescriptionID, rem.PatientID, rem.DaysUntilRefill, rem.ReminderDate,
		rem.Enabled, rem.Sent, rem.SentAt, rem.PatientPhone, rem.Message, rem.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create reminder")
	}
	return nil
}

// DueOn returns enabled, unsent reminders dated on or before day
func (r *PostgresRepository) DueOn(ctx context.Context, day time.Time) ([]Reminder, error) {
	query := `SELECT ` + reminderColumns + ` FROM refill_reminders
		WHERE reminder_date <= $1 AND enabled AND NOT sent
		ORDER BY reminder_date ASC`
	return r.list(ctx, query, day)
}

// MarkSent flags a reminder as delivered and records the sent message
func (r *PostgresRepository) MarkSent(ctx context.Context, id types.ID, at time.Time, message string) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE refill_reminders SET sent = TRUE, sent_at = $2, message = $3 WHERE id = $1`,
		id, at, message,
	)
	if err != nil {
		return errors.Wrap(err, "failed to mark reminder sent")
	}
	if result.RowsAffected() == 0 {
		return errors.NotFound("reminder", id.String())
	}
	return nil
}

// ListByPatient lists a patient's reminders, soonest first
func (r *PostgresRepository) ListByPatient(ctx context.Context, patientID types.ID) ([]Reminder, error) {
	query := `SELECT ` + reminderColumns + ` FROM refill_reminders
		WHERE patient_id = $1 ORDER BY reminder_date ASC`
	return r.list(ctx, query, patientID)
}

// SetEnabledByPatient opts a patient's unsent reminders in or out
func (r *PostgresRepository) SetEnabledByPatient(ctx context.Context, patientID types.ID, enabled bool) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE refill_reminders SET enabled = $2 WHERE patient_id = $1 AND NOT sent`,
		patientID, enabled,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update reminder settings")
	}
	return nil
}

// Stats summarizes the reminder backlog against day
func (r *PostgresRepository) Stats(ctx context.Context, day time.Time) (Stats, error) {
	var s Stats
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE enabled),
		       COUNT(*) FILTER (WHERE enabled AND NOT sent AND reminder_date <= $1),
		       COUNT(*) FILTER (WHERE sent AND sent_at >= $1 AND sent_at < $1 + INTERVAL '1 day')
		FROM refill_reminders`,
		day,
	).Scan(&s.Total, &s.Enabled, &s.DueToday, &s.SentToday)
	if err != nil && err != pgx.ErrNoRows {
		return Stats{}, errors.Wrap(err, "failed to read reminder stats")
	}
	return s, nil
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]Reminder, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list reminders")
	}
	defer rows.Close()

	var out []Reminder
	for rows.Next() {
		var rem Reminder
		if err := rows.Scan(
			&rem.ID, &rem.PrescriptionID, &rem.PatientID, &rem.DaysUntilRefill, &rem.ReminderDate,
			&rem.Enabled, &rem.Sent, &rem.SentAt, &rem.PatientPhone, &rem.Message, &rem.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan reminder")
		}
		out = append(out, rem)
	}
	return out, nil
}
