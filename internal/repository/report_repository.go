package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fitbridge/pt-booking-api/internal/models"
)

// ReportRepository persists attendance-report export jobs.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository creates a new report repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

const reportColumns = "id, params, status, result_path, result_url, created_by, created_at, finished_at, error_message"

// Create inserts a queued job.
func (r *ReportRepository) Create(ctx context.Context, job *models.ReportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO report_jobs (id, params, status, created_by, created_at)
		VALUES (:id, :params, :status, :created_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create report job: %w", err)
	}
	return nil
}

// GetByID loads a job by id.
func (r *ReportRepository) GetByID(ctx context.Context, id string) (*models.ReportJob, error) {
	query := fmt.Sprintf("SELECT %s FROM report_jobs WHERE id = $1", reportColumns)
	var job models.ReportJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, err
	}
	return &job, nil
}

// MarkProcessing flips a queued job to PROCESSING.
func (r *ReportRepository) MarkProcessing(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE report_jobs SET status = 'PROCESSING' WHERE id = $1`, id); err != nil {
		return fmt.Errorf("mark report processing: %w", err)
	}
	return nil
}

// MarkFinished records a successful export.
func (r *ReportRepository) MarkFinished(ctx context.Context, id, resultPath, resultURL string, finishedAt time.Time) error {
	const query = `UPDATE report_jobs SET status = 'FINISHED', result_path = $2, result_url = $3, finished_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, resultPath, resultURL, finishedAt); err != nil {
		return fmt.Errorf("mark report finished: %w", err)
	}
	return nil
}

// MarkFailed records a failed export.
func (r *ReportRepository) MarkFailed(ctx context.Context, id, message string, finishedAt time.Time) error {
	const query = `UPDATE report_jobs SET status = 'FAILED', error_message = $2, finished_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, message, finishedAt); err != nil {
		return fmt.Errorf("mark report failed: %w", err)
	}
	return nil
}
