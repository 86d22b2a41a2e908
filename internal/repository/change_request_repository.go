package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fitbridge/pt-booking-api/internal/models"
)

// ChangeRequestRepository provides persistence for schedule-change requests.
type ChangeRequestRepository struct {
	db *sqlx.DB
}

// NewChangeRequestRepository creates a new change request repository.
func NewChangeRequestRepository(db *sqlx.DB) *ChangeRequestRepository {
	return &ChangeRequestRepository{db: db}
}

const changeRequestColumns = "id, record_id, requester_id, requested_date, requested_start, requested_end, reason, status, expires_at, responder_id, response_reason, created_at, updated_at"

// Create stores a new pending request.
func (r *ChangeRequestRepository) Create(ctx context.Context, req *models.ScheduleChangeRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now

	const query = `INSERT INTO schedule_change_requests (id, record_id, requester_id, requested_date, requested_start, requested_end, reason, status, expires_at, created_at, updated_at)
		VALUES (:id, :record_id, :requester_id, :requested_date, :requested_start, :requested_end, :reason, :status, :expires_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		return fmt.Errorf("create change request: %w", err)
	}
	return nil
}

// GetByID loads a request by id.
func (r *ChangeRequestRepository) GetByID(ctx context.Context, id string) (*models.ScheduleChangeRequest, error) {
	query := fmt.Sprintf("SELECT %s FROM schedule_change_requests WHERE id = $1", changeRequestColumns)
	var req models.ScheduleChangeRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		return nil, err
	}
	return &req, nil
}

// HasPending reports whether a live pending request already exists for the
// record. Requests past their expiry no longer count.
func (r *ChangeRequestRepository) HasPending(ctx context.Context, recordID string, now time.Time) (bool, error) {
	const query = `SELECT 1 FROM schedule_change_requests WHERE record_id = $1 AND status = 'PENDING' AND expires_at > $2 LIMIT 1`
	var one int
	err := r.db.GetContext(ctx, &one, query, recordID, now)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check pending change request: %w", err)
	}
	return true, nil
}

// UpdateStatusFromPending resolves a request. The status and expiry guards
// are the optimistic check that stops double transitions and
// resolution-after-expiry races: zero affected rows surfaces as
// sql.ErrNoRows. now is the caller's clock so the expiry cutoff matches the
// one the service already derived the status from.
func (r *ChangeRequestRepository) UpdateStatusFromPending(ctx context.Context, id string, status models.ChangeRequestStatus, responderID string, responseReason *string, now time.Time) error {
	const query = `UPDATE schedule_change_requests
		SET status = $2, responder_id = $3, response_reason = $4, updated_at = $5
		WHERE id = $1 AND status = 'PENDING' AND expires_at > $5`
	res, err := r.db.ExecContext(ctx, query, id, status, responderID, responseReason, now.UTC())
	if err != nil {
		return fmt.Errorf("update change request status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update change request status: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ApproveAndApplySlot marks a request APPROVED and overwrites its record's
// slot in one transaction, carrying the same PENDING-and-unexpired guard as
// UpdateStatusFromPending. Approval is the only mutation path for a booked
// slot, so the two writes must land together or not at all.
func (r *ChangeRequestRepository) ApproveAndApplySlot(ctx context.Context, id, responderID string, responseReason *string, recordID string, slot models.ScheduleSlot, now time.Time) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin approve change request: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const approveQuery = `UPDATE schedule_change_requests
		SET status = 'APPROVED', responder_id = $2, response_reason = $3, updated_at = $4
		WHERE id = $1 AND status = 'PENDING' AND expires_at > $4`
	res, err := tx.ExecContext(ctx, approveQuery, id, responderID, responseReason, now.UTC())
	if err != nil {
		return fmt.Errorf("approve change request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("approve change request: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	const slotQuery = `UPDATE pt_records SET date = $2, start_time = $3, end_time = $4, updated_at = $5 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, slotQuery, recordID, slot.Date, slot.StartTime, slot.EndTime, now.UTC()); err != nil {
		return fmt.Errorf("apply approved slot: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit approve change request: %w", err)
	}
	return nil
}

// ListByRecord returns all requests ever filed against a record, newest
// first.
func (r *ChangeRequestRepository) ListByRecord(ctx context.Context, recordID string) ([]models.ScheduleChangeRequest, error) {
	query := fmt.Sprintf("SELECT %s FROM schedule_change_requests WHERE record_id = $1 ORDER BY created_at DESC", changeRequestColumns)
	var requests []models.ScheduleChangeRequest
	if err := r.db.SelectContext(ctx, &requests, query, recordID); err != nil {
		return nil, fmt.Errorf("list change requests: %w", err)
	}
	return requests, nil
}
