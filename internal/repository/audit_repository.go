package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fitbridge/pt-booking-api/internal/models"
)

// AuditRepository persists the immutable record-keeping trail. The table is
// append-only: no update or delete statement exists here.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Insert writes one audit entry.
func (r *AuditRepository) Insert(ctx context.Context, entry *models.RecordAuditLog) error {
	return insertAuditLog(ctx, r.db, entry)
}

// ListByRecord returns a session's audit trail, newest first.
func (r *AuditRepository) ListByRecord(ctx context.Context, recordID string) ([]models.RecordAuditLog, error) {
	const query = `SELECT id, record_id, actor_id, action, old_values, new_values, scheduled_at, out_of_time, anomaly_reason, ip_address, user_agent, created_at
		FROM record_audit_logs WHERE record_id = $1 ORDER BY created_at DESC`
	var entries []models.RecordAuditLog
	if err := r.db.SelectContext(ctx, &entries, query, recordID); err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	return entries, nil
}

// ListAnomalies returns out-of-time entries across all records for staff
// review.
func (r *AuditRepository) ListAnomalies(ctx context.Context, limit int) ([]models.RecordAuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT id, record_id, actor_id, action, old_values, new_values, scheduled_at, out_of_time, anomaly_reason, ip_address, user_agent, created_at
		FROM record_audit_logs WHERE out_of_time = TRUE ORDER BY created_at DESC LIMIT %d`, limit)
	var entries []models.RecordAuditLog
	if err := r.db.SelectContext(ctx, &entries, query); err != nil {
		return nil, fmt.Errorf("list audit anomalies: %w", err)
	}
	return entries, nil
}

// insertAuditLog writes one entry through the given executor so callers can
// couple the audit write with the data write it describes.
func insertAuditLog(ctx context.Context, exec sqlx.ExtContext, entry *models.RecordAuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO record_audit_logs (id, record_id, actor_id, action, old_values, new_values, scheduled_at, out_of_time, anomaly_reason, ip_address, user_agent, created_at)
		VALUES (:id, :record_id, :actor_id, :action, :old_values, :new_values, :scheduled_at, :out_of_time, :anomaly_reason, :ip_address, :user_agent, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, entry); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}
