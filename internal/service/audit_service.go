package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fitbridge/pt-booking-api/internal/models"
	appErrors "github.com/fitbridge/pt-booking-api/pkg/errors"
)

// Plausibility windows for exercise record keeping, relative to the
// session's scheduled start. Bounds are inclusive: a write exactly on the
// margin is still in time.
const (
	recordEarlyMargin = 30 * time.Minute
	editEarlyMargin   = 5 * time.Minute
	lateMargin        = 60 * time.Minute
)

// EvaluateAuditWindow classifies a record-keeping action against its
// session's scheduled start. Out-of-time writes are never rejected; they are
// flagged so the trail shows who wrote what outside the plausible window. A
// scheduled start on a future calendar day is always anomalous regardless of
// clock distance.
func EvaluateAuditWindow(action string, scheduledAt, now time.Time) models.AuditWindowResult {
	schedDay := time.Date(scheduledAt.Year(), scheduledAt.Month(), scheduledAt.Day(), 0, 0, 0, 0, scheduledAt.Location())
	nowDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if schedDay.After(nowDay) {
		days := int(schedDay.Sub(nowDay).Hours() / 24)
		reason := fmt.Sprintf("session is scheduled %d day(s) in the future", days)
		return models.AuditWindowResult{OutOfTime: true, Reason: &reason}
	}

	earlyMargin := recordEarlyMargin
	if action == models.AuditActionEdit {
		earlyMargin = editEarlyMargin
	}

	offset := now.Sub(scheduledAt)
	if offset < -earlyMargin {
		reason := fmt.Sprintf("written %d minutes before the scheduled start", int(-offset/time.Minute))
		return models.AuditWindowResult{OutOfTime: true, Reason: &reason}
	}
	if offset > lateMargin {
		reason := fmt.Sprintf("written %d minutes after the scheduled start", int(offset/time.Minute))
		return models.AuditWindowResult{OutOfTime: true, Reason: &reason}
	}
	return models.AuditWindowResult{}
}

type auditRecordStore interface {
	GetByID(ctx context.Context, id string) (*models.TrainerRecord, error)
	ListByContract(ctx context.Context, contractID string) ([]models.PtRecord, error)
	ListExercises(ctx context.Context, recordID string) ([]models.ExerciseItem, error)
	ReplaceExercisesWithAudit(ctx context.Context, recordID string, items []models.ExerciseItem, entry *models.RecordAuditLog) error
}

type auditTrailStore interface {
	ListByRecord(ctx context.Context, recordID string) ([]models.RecordAuditLog, error)
	ListAnomalies(ctx context.Context, limit int) ([]models.RecordAuditLog, error)
}

type auditContractStore interface {
	GetByID(ctx context.Context, id string) (*models.PtContract, error)
	MarkFinished(ctx context.Context, id string) error
}

type auditProductStore interface {
	GetByID(ctx context.Context, id string) (*models.PtProduct, error)
}

// ClientMeta carries request-level client details into the audit trail.
type ClientMeta struct {
	IP        string
	UserAgent string
}

// AuditService writes exercise records with their immutable audit entries
// and serves the trail back to admins.
type AuditService struct {
	records   auditRecordStore
	trail     auditTrailStore
	contracts auditContractStore
	products  auditProductStore
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// AuditOption configures the service.
type AuditOption func(*AuditService)

// WithAuditClock overrides the clock for deterministic tests.
func WithAuditClock(now func() time.Time) AuditOption {
	return func(s *AuditService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithAuditMetrics enables the anomaly counter.
func WithAuditMetrics(metrics *MetricsService) AuditOption {
	return func(s *AuditService) {
		s.metrics = metrics
	}
}

// NewAuditService constructs the service.
func NewAuditService(records auditRecordStore, trail auditTrailStore, contracts auditContractStore, products auditProductStore, logger *zap.Logger, opts ...AuditOption) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &AuditService{
		records:   records,
		trail:     trail,
		contracts: contracts,
		products:  products,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// RecordExercisesResult reports what the write did, including whether it
// landed outside the plausibility window.
type RecordExercisesResult struct {
	Action string                   `json:"action"`
	Items  []models.ExerciseItem    `json:"items"`
	Window models.AuditWindowResult `json:"window"`
}

// RecordExercises replaces a session's exercise items and appends the audit
// entry in the same transaction, so an item set can never change without a
// matching trail row. The first write is a RECORD, later ones are EDITs with
// a tighter early margin. Marking sessions attended flows from here: a
// confirmed contract whose attended count reaches its product's total is
// moved to FINISHED.
func (s *AuditService) RecordExercises(ctx context.Context, actor *models.JWTClaims, recordID string, items []models.ExerciseItem, meta ClientMeta) (*RecordExercisesResult, error) {
	if len(items) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one exercise item is required")
	}
	for i := range items {
		if items[i].Name == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "exercise items require a name")
		}
		if items[i].SetCount <= 0 || items[i].RepCount <= 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "set and rep counts must be positive")
		}
	}

	rec, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if actor.UserID != rec.TrainerID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the contract trainer records exercises")
	}
	if rec.ContractStatus != models.ContractStatusConfirmed && rec.ContractStatus != models.ContractStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrConflict, "contract is not active")
	}

	existing, err := s.records.ListExercises(ctx, recordID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load existing exercises")
	}

	action := models.AuditActionRecord
	if len(existing) > 0 {
		action = models.AuditActionEdit
	}

	for i := range items {
		items[i].ID = uuid.NewString()
		items[i].RecordID = recordID
	}

	oldValues, err := json.Marshal(existing)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode audit values")
	}
	newValues, err := json.Marshal(items)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode audit values")
	}

	scheduledAt, err := rec.Slot().StartInstant()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "session has an unreadable schedule")
	}

	now := s.now()
	window := EvaluateAuditWindow(action, scheduledAt, now)

	entry := &models.RecordAuditLog{
		ID:            uuid.NewString(),
		RecordID:      &rec.PtRecord.ID,
		ActorID:       &actor.UserID,
		Action:        action,
		OldValues:     oldValues,
		NewValues:     newValues,
		ScheduledAt:   scheduledAt,
		OutOfTime:     window.OutOfTime,
		AnomalyReason: window.Reason,
		IPAddress:     meta.IP,
		UserAgent:     meta.UserAgent,
		CreatedAt:     now,
	}

	if err := s.records.ReplaceExercisesWithAudit(ctx, recordID, items, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save exercises")
	}

	if window.OutOfTime {
		s.metrics.RecordAuditAnomaly()
		s.logger.Warn("exercise record written out of time",
			zap.String("record_id", recordID),
			zap.String("actor_id", actor.UserID),
			zap.String("action", action),
			zap.Stringp("reason", window.Reason))
	}

	if action == models.AuditActionRecord && rec.ContractStatus == models.ContractStatusConfirmed {
		s.maybeFinishContract(ctx, rec.ContractID, now)
	}

	return &RecordExercisesResult{Action: action, Items: items, Window: window}, nil
}

// maybeFinishContract moves a confirmed contract to FINISHED once its
// attended count reaches the purchased session total. Failures only log: the
// exercise write has already committed and the derivation re-runs on the
// next recording.
func (s *AuditService) maybeFinishContract(ctx context.Context, contractID string, now time.Time) {
	contract, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		s.logger.Warn("finish check skipped", zap.String("contract_id", contractID), zap.Error(err))
		return
	}
	product, err := s.products.GetByID(ctx, contract.ProductID)
	if err != nil || product.TotalSessions == 0 {
		if err != nil {
			s.logger.Warn("finish check skipped", zap.String("contract_id", contractID), zap.Error(err))
		}
		return
	}
	records, err := s.records.ListByContract(ctx, contractID)
	if err != nil {
		s.logger.Warn("finish check skipped", zap.String("contract_id", contractID), zap.Error(err))
		return
	}
	attended := 0
	for _, rec := range records {
		if DeriveAttendance(rec, now) == models.AttendanceAttended {
			attended++
		}
	}
	if attended < product.TotalSessions {
		return
	}
	if err := s.contracts.MarkFinished(ctx, contractID); err != nil {
		s.logger.Error("failed to finish contract", zap.String("contract_id", contractID), zap.Error(err))
		return
	}
	s.metrics.RecordBookingOutcome("finished")
	s.logger.Info("contract finished", zap.String("contract_id", contractID), zap.Int("attended", attended))
}

// Exercises returns a session's current exercise items.
func (s *AuditService) Exercises(ctx context.Context, actor *models.JWTClaims, recordID string) ([]models.ExerciseItem, error) {
	rec, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if actor.Role != models.RoleAdmin && actor.UserID != rec.TrainerID && actor.UserID != rec.MemberID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "session belongs to another member")
	}
	items, err := s.records.ListExercises(ctx, recordID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exercises")
	}
	return items, nil
}

// Trail returns a record's audit entries, newest first.
func (s *AuditService) Trail(ctx context.Context, recordID string) ([]models.RecordAuditLog, error) {
	entries, err := s.trail.ListByRecord(ctx, recordID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load audit trail")
	}
	return entries, nil
}

// Anomalies returns recent out-of-time entries for the admin review screen.
func (s *AuditService) Anomalies(ctx context.Context, limit int) ([]models.RecordAuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	entries, err := s.trail.ListAnomalies(ctx, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load anomalies")
	}
	return entries, nil
}
