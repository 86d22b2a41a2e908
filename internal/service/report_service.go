package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fitbridge/pt-booking-api/internal/models"
	appErrors "github.com/fitbridge/pt-booking-api/pkg/errors"
	"github.com/fitbridge/pt-booking-api/pkg/export"
	"github.com/fitbridge/pt-booking-api/pkg/jobs"
	"github.com/fitbridge/pt-booking-api/pkg/storage"
)

type reportJobStore interface {
	Create(ctx context.Context, job *models.ReportJob) error
	GetByID(ctx context.Context, id string) (*models.ReportJob, error)
	MarkProcessing(ctx context.Context, id string) error
	MarkFinished(ctx context.Context, id, resultPath, resultURL string, finishedAt time.Time) error
	MarkFailed(ctx context.Context, id, message string, finishedAt time.Time) error
}

type reportContractStore interface {
	GetByID(ctx context.Context, id string) (*models.PtContract, error)
}

type reportRecordStore interface {
	ListByContract(ctx context.Context, contractID string) ([]models.PtRecord, error)
}

type reportUserStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// ReportService generates attendance reports asynchronously: the handler
// enqueues, the worker renders to CSV or PDF, and downloads go through
// signed expiring tokens.
type ReportService struct {
	jobsRepo  reportJobStore
	contracts reportContractStore
	records   reportRecordStore
	users     reportUserStore
	storage   *storage.LocalStorage
	signer    *storage.SignedURLSigner
	queue     *jobs.Queue
	logger    *zap.Logger
	now       func() time.Time
}

// ReportOption configures the service.
type ReportOption func(*ReportService)

// WithReportClock overrides the clock for deterministic tests.
func WithReportClock(now func() time.Time) ReportOption {
	return func(s *ReportService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewReportService constructs the service. Call StartWorkers before serving
// traffic and Stop on shutdown.
func NewReportService(jobsRepo reportJobStore, contracts reportContractStore, records reportRecordStore, users reportUserStore, store *storage.LocalStorage, signer *storage.SignedURLSigner, queueCfg jobs.QueueConfig, logger *zap.Logger, opts ...ReportOption) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ReportService{
		jobsRepo:  jobsRepo,
		contracts: contracts,
		records:   records,
		users:     users,
		storage:   store,
		signer:    signer,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	queueCfg.Logger = logger
	svc.queue = jobs.NewQueue("attendance-reports", svc.process, queueCfg)
	return svc
}

// StartWorkers launches the background worker pool.
func (s *ReportService) StartWorkers(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the worker pool.
func (s *ReportService) Stop() {
	s.queue.Stop()
}

// CreateAttendanceReport queues a new export job for a contract. The actor
// must be a party to the contract (admins see everything).
func (s *ReportService) CreateAttendanceReport(ctx context.Context, actor *models.JWTClaims, contractID string, format models.ReportFormat) (*models.ReportJob, error) {
	if format != models.ReportFormatCSV && format != models.ReportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	contract, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "contract not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load contract")
	}
	if actor.Role != models.RoleAdmin && !contract.IsParty(actor.UserID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "contract belongs to another member")
	}

	job := &models.ReportJob{
		ID:        uuid.NewString(),
		Params:    models.ReportJobParams{ContractID: contractID, Format: format},
		Status:    models.ReportStatusQueued,
		CreatedBy: actor.UserID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.jobsRepo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report job")
	}

	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "attendance-report", Payload: job.ID}); err != nil {
		s.logger.Error("failed to enqueue report job", zap.String("job_id", job.ID), zap.Error(err))
		_ = s.jobsRepo.MarkFailed(ctx, job.ID, "queue unavailable", s.now().UTC())
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "report queue unavailable")
	}
	return job, nil
}

// Get returns a job's status, scoped to its creator.
func (s *ReportService) Get(ctx context.Context, actor *models.JWTClaims, jobID string) (*models.ReportJob, error) {
	job, err := s.jobsRepo.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	if actor.Role != models.RoleAdmin && job.CreatedBy != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "report belongs to another user")
	}
	return job, nil
}

// Download validates the signed token and opens the generated file.
func (s *ReportService) Download(ctx context.Context, token string) (*os.File, string, error) {
	jobID, relPath, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid or expired download token")
	}
	job, err := s.jobsRepo.GetByID(ctx, jobID)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "report job not found")
	}
	if job.Status != models.ReportStatusFinished || job.ResultPath == nil || *job.ResultPath != relPath {
		return nil, "", appErrors.Clone(appErrors.ErrConflict, "report is not ready")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "report file unavailable")
	}
	return file, relPath, nil
}

// process is the worker-side renderer. Failures mark the job FAILED and
// return the error so the queue retries.
func (s *ReportService) process(ctx context.Context, job jobs.Job) error {
	jobID, _ := job.Payload.(string)
	if jobID == "" {
		jobID = job.ID
	}

	stored, err := s.jobsRepo.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load report job %s: %w", jobID, err)
	}
	if stored.Status == models.ReportStatusFinished {
		return nil
	}
	if err := s.jobsRepo.MarkProcessing(ctx, jobID); err != nil {
		return fmt.Errorf("mark report job processing: %w", err)
	}

	data, filename, err := s.render(ctx, stored)
	if err != nil {
		if markErr := s.jobsRepo.MarkFailed(ctx, jobID, err.Error(), s.now().UTC()); markErr != nil {
			s.logger.Error("failed to mark report failed", zap.String("job_id", jobID), zap.Error(markErr))
		}
		return err
	}

	relPath, err := s.storage.Save(filename, data)
	if err != nil {
		if markErr := s.jobsRepo.MarkFailed(ctx, jobID, "storage write failed", s.now().UTC()); markErr != nil {
			s.logger.Error("failed to mark report failed", zap.String("job_id", jobID), zap.Error(markErr))
		}
		return err
	}

	token, _, err := s.signer.Generate(jobID, relPath)
	if err != nil {
		if markErr := s.jobsRepo.MarkFailed(ctx, jobID, "signing failed", s.now().UTC()); markErr != nil {
			s.logger.Error("failed to mark report failed", zap.String("job_id", jobID), zap.Error(markErr))
		}
		return err
	}
	resultURL := "/api/v1/reports/download?token=" + token

	if err := s.jobsRepo.MarkFinished(ctx, jobID, relPath, resultURL, s.now().UTC()); err != nil {
		return fmt.Errorf("mark report finished: %w", err)
	}
	s.logger.Info("attendance report generated", zap.String("job_id", jobID), zap.String("path", relPath))
	return nil
}

func (s *ReportService) render(ctx context.Context, job *models.ReportJob) ([]byte, string, error) {
	contract, err := s.contracts.GetByID(ctx, job.Params.ContractID)
	if err != nil {
		return nil, "", fmt.Errorf("load contract: %w", err)
	}
	records, err := s.records.ListByContract(ctx, contract.ID)
	if err != nil {
		return nil, "", fmt.Errorf("load sessions: %w", err)
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].Seq < records[j].Seq })

	memberName := contract.MemberID
	if member, err := s.users.FindByID(ctx, contract.MemberID); err == nil {
		memberName = member.FullName
	}

	now := s.now()
	table := export.Table{
		Headers: []string{"Session", "Date", "Start", "End", "Status"},
		Rows:    make([][]string, 0, len(records)),
	}
	for _, rec := range records {
		table.Rows = append(table.Rows, []string{
			fmt.Sprintf("%d", rec.Seq),
			rec.Date,
			rec.StartTime.String(),
			rec.EndTime.String(),
			string(DeriveAttendance(rec, now)),
		})
	}

	filename := fmt.Sprintf("attendance-%s-%s.%s", contract.ID, now.UTC().Format("20060102T150405"), job.Params.Format)
	switch job.Params.Format {
	case models.ReportFormatPDF:
		data, err := export.RenderPDF(table, "Attendance report - "+memberName)
		return data, filename, err
	default:
		data, err := export.RenderCSV(table)
		return data, filename, err
	}
}
