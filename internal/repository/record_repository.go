package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/fitbridge/pt-booking-api/internal/models"
)

// RecordRepository provides persistence for booked sessions and their
// exercise items. Session rows are never deleted; attendance is derived at
// read time from the schedule and the exercise count.
//
// The pt_records table carries a partial uniqueness index over
// (trainer, date, start_time) for confirmed contracts: the availability
// check in the service layer is advisory, this constraint is the actual
// double-booking backstop.
type RecordRepository struct {
	db *sqlx.DB
}

// NewRecordRepository creates a new record repository.
func NewRecordRepository(db *sqlx.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

const recordColumns = `r.id, r.contract_id, r.seq, r.date, r.start_time, r.end_time, r.created_at, r.updated_at,
	(SELECT COUNT(*) FROM pt_exercise_items i WHERE i.record_id = r.id) AS exercise_count`

// GetByID loads one record joined with its contract's parties.
func (r *RecordRepository) GetByID(ctx context.Context, id string) (*models.TrainerRecord, error) {
	query := fmt.Sprintf(`SELECT %s, c.trainer_id, c.member_id, u.full_name AS member_name, c.status AS contract_status
		FROM pt_records r
		JOIN pt_contracts c ON c.id = r.contract_id
		JOIN users u ON u.id = c.member_id
		WHERE r.id = $1`, recordColumns)
	var record models.TrainerRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// ListByContract returns a contract's sessions in booking order.
func (r *RecordRepository) ListByContract(ctx context.Context, contractID string) ([]models.PtRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM pt_records r WHERE r.contract_id = $1 ORDER BY r.seq ASC`, recordColumns)
	var records []models.PtRecord
	if err := r.db.SelectContext(ctx, &records, query, contractID); err != nil {
		return nil, fmt.Errorf("list records by contract: %w", err)
	}
	return records, nil
}

// ListByTrainerAndDates returns the trainer's booked sessions on any of the
// given dates in one batched lookup. Only PENDING and CONFIRMED contracts
// count as occupying the calendar.
func (r *RecordRepository) ListByTrainerAndDates(ctx context.Context, trainerID string, dates []string) ([]models.TrainerRecord, error) {
	if len(dates) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT %s, c.trainer_id, c.member_id, u.full_name AS member_name, c.status AS contract_status
		FROM pt_records r
		JOIN pt_contracts c ON c.id = r.contract_id
		JOIN users u ON u.id = c.member_id
		WHERE c.trainer_id = $1 AND c.status IN ('PENDING', 'CONFIRMED') AND r.date = ANY($2)
		ORDER BY r.date ASC, r.start_time ASC`, recordColumns)
	var records []models.TrainerRecord
	if err := r.db.SelectContext(ctx, &records, query, trainerID, pq.Array(dates)); err != nil {
		return nil, fmt.Errorf("list records by trainer and dates: %w", err)
	}
	return records, nil
}

// ListByTrainerRange returns the trainer's calendar between two dates
// inclusive.
func (r *RecordRepository) ListByTrainerRange(ctx context.Context, trainerID, from, to string) ([]models.TrainerRecord, error) {
	query := fmt.Sprintf(`SELECT %s, c.trainer_id, c.member_id, u.full_name AS member_name, c.status AS contract_status
		FROM pt_records r
		JOIN pt_contracts c ON c.id = r.contract_id
		JOIN users u ON u.id = c.member_id
		WHERE c.trainer_id = $1 AND c.status IN ('PENDING', 'CONFIRMED') AND r.date BETWEEN $2 AND $3
		ORDER BY r.date ASC, r.start_time ASC`, recordColumns)
	var records []models.TrainerRecord
	if err := r.db.SelectContext(ctx, &records, query, trainerID, from, to); err != nil {
		return nil, fmt.Errorf("list records by trainer range: %w", err)
	}
	return records, nil
}

// ListExercises returns the items recorded against a session.
func (r *RecordRepository) ListExercises(ctx context.Context, recordID string) ([]models.ExerciseItem, error) {
	const query = `SELECT id, record_id, name, set_count, rep_count, weight, notes FROM pt_exercise_items WHERE record_id = $1 ORDER BY id ASC`
	var items []models.ExerciseItem
	if err := r.db.SelectContext(ctx, &items, query, recordID); err != nil {
		return nil, fmt.Errorf("list exercise items: %w", err)
	}
	return items, nil
}

// ReplaceExercisesWithAudit swaps a session's exercise items and writes the
// audit entry in the same transaction. A mutation that cannot be audited
// must not land, so any failure rolls back both.
func (r *RecordRepository) ReplaceExercisesWithAudit(ctx context.Context, recordID string, items []models.ExerciseItem, entry *models.RecordAuditLog) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace exercises: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM pt_exercise_items WHERE record_id = $1`, recordID); err != nil {
		return fmt.Errorf("clear exercise items: %w", err)
	}

	for i := range items {
		item := &items[i]
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		item.RecordID = recordID
		const insertItem = `INSERT INTO pt_exercise_items (id, record_id, name, set_count, rep_count, weight, notes)
			VALUES (:id, :record_id, :name, :set_count, :rep_count, :weight, :notes)`
		if _, err = tx.NamedExecContext(ctx, insertItem, item); err != nil {
			return fmt.Errorf("insert exercise item: %w", err)
		}
	}

	if err = insertAuditLog(ctx, tx, entry); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit replace exercises: %w", err)
	}
	return nil
}
