package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fitbridge/pt-booking-api/internal/models"
	appErrors "github.com/fitbridge/pt-booking-api/pkg/errors"
)

type changeRequestStore interface {
	Create(ctx context.Context, req *models.ScheduleChangeRequest) error
	GetByID(ctx context.Context, id string) (*models.ScheduleChangeRequest, error)
	HasPending(ctx context.Context, recordID string, now time.Time) (bool, error)
	UpdateStatusFromPending(ctx context.Context, id string, status models.ChangeRequestStatus, responderID string, responseReason *string, now time.Time) error
	ApproveAndApplySlot(ctx context.Context, id, responderID string, responseReason *string, recordID string, slot models.ScheduleSlot, now time.Time) error
	ListByRecord(ctx context.Context, recordID string) ([]models.ScheduleChangeRequest, error)
}

type changeRequestRecordStore interface {
	GetByID(ctx context.Context, id string) (*models.TrainerRecord, error)
}

type availabilityChecker interface {
	CheckAvailabilityExcluding(ctx context.Context, trainerID string, candidates []models.ScheduleSlot, excludeContractID string) (AvailabilityResult, error)
}

// ChangeRequestService runs the schedule-change workflow: one live pending
// request per session, resolved by the other party, with approval as the
// only path that moves a booked slot.
type ChangeRequestService struct {
	requests changeRequestStore
	records  changeRequestRecordStore
	planner  availabilityChecker
	ttl      time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// ChangeRequestOption configures the service.
type ChangeRequestOption func(*ChangeRequestService)

// WithChangeRequestClock overrides the clock for deterministic tests.
func WithChangeRequestClock(now func() time.Time) ChangeRequestOption {
	return func(s *ChangeRequestService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewChangeRequestService constructs the service. ttl is how long a pending
// request stays answerable before it derives as EXPIRED.
func NewChangeRequestService(requests changeRequestStore, records changeRequestRecordStore, planner availabilityChecker, ttl time.Duration, logger *zap.Logger, opts ...ChangeRequestOption) *ChangeRequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	svc := &ChangeRequestService{
		requests: requests,
		records:  records,
		planner:  planner,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// CreateChangeRequestInput is the payload for filing a request.
type CreateChangeRequestInput struct {
	RecordID       string
	RequestedDate  string
	RequestedStart models.TimeOfDay
	RequestedEnd   models.TimeOfDay
	Reason         string
}

// Create files a schedule-change request against a booked session. Either
// party of the contract may file; the proposed slot must be well formed, the
// contract active, and no other live pending request may exist for the same
// session.
func (s *ChangeRequestService) Create(ctx context.Context, requester *models.JWTClaims, input CreateChangeRequestInput) (*models.ScheduleChangeRequest, error) {
	proposed := models.ScheduleSlot{Date: input.RequestedDate, StartTime: input.RequestedStart, EndTime: input.RequestedEnd}
	if !proposed.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "proposed slot must be a half-hour-aligned interval on a valid date")
	}

	rec, err := s.records.GetByID(ctx, input.RecordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if requester.UserID != rec.TrainerID && requester.UserID != rec.MemberID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only a contract party can request a change")
	}
	if rec.ContractStatus != models.ContractStatusConfirmed && rec.ContractStatus != models.ContractStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrConflict, "schedule changes require a confirmed or finished contract")
	}
	if proposed == rec.Slot() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "proposed slot matches the current one")
	}

	now := s.now()
	pending, err := s.requests.HasPending(ctx, input.RecordID, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check pending requests")
	}
	if pending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a pending change request already exists for this session")
	}

	req := &models.ScheduleChangeRequest{
		ID:             uuid.NewString(),
		RecordID:       input.RecordID,
		RequesterID:    requester.UserID,
		RequestedDate:  input.RequestedDate,
		RequestedStart: input.RequestedStart,
		RequestedEnd:   input.RequestedEnd,
		Reason:         input.Reason,
		Status:         models.ChangeRequestPending,
		ExpiresAt:      now.Add(s.ttl),
	}
	if err := s.requests.Create(ctx, req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create change request")
	}

	s.logger.Info("change request filed",
		zap.String("request_id", req.ID),
		zap.String("record_id", req.RecordID),
		zap.String("requester_id", req.RequesterID))
	return req, nil
}

// Respond resolves a pending request. Only the counterparty may answer, and
// an expired request is answerable by no one. On approval the new slot is
// re-checked against the trainer's calendar and then written together with
// the status in one guarded transaction, so two racing responders cannot
// both win.
func (s *ChangeRequestService) Respond(ctx context.Context, responder *models.JWTClaims, requestID string, approve bool, responseReason *string) (*models.ScheduleChangeRequest, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "change request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load change request")
	}

	rec, err := s.records.GetByID(ctx, req.RecordID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if responder.UserID != rec.TrainerID && responder.UserID != rec.MemberID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only a contract party can respond")
	}
	if responder.UserID == req.RequesterID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "a request is answered by the other party")
	}

	now := s.now()
	switch req.EffectiveStatus(now) {
	case models.ChangeRequestPending:
	case models.ChangeRequestExpired:
		return nil, appErrors.Clone(appErrors.ErrConflict, "change request has expired")
	default:
		return nil, appErrors.Clone(appErrors.ErrConflict, "change request is already resolved")
	}

	if !approve {
		if err := s.requests.UpdateStatusFromPending(ctx, requestID, models.ChangeRequestRejected, responder.UserID, responseReason, now); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrConflict, "change request was resolved concurrently")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject change request")
		}
		return s.reload(ctx, requestID)
	}

	availability, err := s.planner.CheckAvailabilityExcluding(ctx, rec.TrainerID, []models.ScheduleSlot{req.RequestedSlot()}, rec.ContractID)
	if err != nil {
		return nil, err
	}
	if len(availability.Fail) > 0 {
		return nil, appErrors.Clone(appErrors.ErrSlotConflict, "proposed slot now collides with another booking")
	}

	if err := s.requests.ApproveAndApplySlot(ctx, requestID, responder.UserID, responseReason, req.RecordID, req.RequestedSlot(), now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "change request was resolved concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve change request")
	}

	s.logger.Info("change request approved",
		zap.String("request_id", requestID),
		zap.String("record_id", req.RecordID),
		zap.String("responder_id", responder.UserID))
	return s.reload(ctx, requestID)
}

// Cancel withdraws a still-pending request. Only its requester may cancel.
func (s *ChangeRequestService) Cancel(ctx context.Context, requester *models.JWTClaims, requestID string) (*models.ScheduleChangeRequest, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "change request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load change request")
	}
	if requester.UserID != req.RequesterID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the requester can cancel")
	}
	now := s.now()
	if req.EffectiveStatus(now) != models.ChangeRequestPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "change request is no longer pending")
	}
	if err := s.requests.UpdateStatusFromPending(ctx, requestID, models.ChangeRequestCancelled, requester.UserID, nil, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "change request was resolved concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel change request")
	}
	return s.reload(ctx, requestID)
}

// Get returns one request with its effective status, scoped to the actor.
func (s *ChangeRequestService) Get(ctx context.Context, actor *models.JWTClaims, requestID string) (*models.ScheduleChangeRequest, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "change request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load change request")
	}
	if actor.Role != models.RoleAdmin {
		rec, err := s.records.GetByID(ctx, req.RecordID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
		}
		if actor.UserID != rec.TrainerID && actor.UserID != rec.MemberID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "change request belongs to another contract")
		}
	}
	req.Status = req.EffectiveStatus(s.now())
	return req, nil
}

// ListForRecord returns a session's request history with effective statuses.
func (s *ChangeRequestService) ListForRecord(ctx context.Context, actor *models.JWTClaims, recordID string) ([]models.ScheduleChangeRequest, error) {
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
	requests, err := s.requests.ListByRecord(ctx, recordID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list change requests")
	}
	now := s.now()
	for i := range requests {
		requests[i].Status = requests[i].EffectiveStatus(now)
	}
	return requests, nil
}

func (s *ChangeRequestService) reload(ctx context.Context, requestID string) (*models.ScheduleChangeRequest, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload change request")
	}
	req.Status = req.EffectiveStatus(s.now())
	return req, nil
}
