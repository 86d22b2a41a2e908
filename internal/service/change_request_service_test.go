package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fitbridge/pt-booking-api/internal/models"
	appErrors "github.com/fitbridge/pt-booking-api/pkg/errors"
)

type changeRequestStoreStub struct {
	requests map[string]*models.ScheduleChangeRequest
	pending  bool

	created      *models.ScheduleChangeRequest
	statusUpdate *models.ChangeRequestStatus
	appliedSlot  *models.ScheduleSlot
}

func (s *changeRequestStoreStub) Create(_ context.Context, req *models.ScheduleChangeRequest) error {
	s.created = req
	return nil
}

func (s *changeRequestStoreStub) GetByID(_ context.Context, id string) (*models.ScheduleChangeRequest, error) {
	if req, ok := s.requests[id]; ok {
		clone := *req
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (s *changeRequestStoreStub) HasPending(_ context.Context, _ string, _ time.Time) (bool, error) {
	return s.pending, nil
}

func (s *changeRequestStoreStub) UpdateStatusFromPending(_ context.Context, id string, status models.ChangeRequestStatus, responderID string, responseReason *string, now time.Time) error {
	req, ok := s.requests[id]
	if !ok || req.Status != models.ChangeRequestPending || !req.ExpiresAt.After(now) {
		return sql.ErrNoRows
	}
	req.Status = status
	req.ResponderID = &responderID
	req.ResponseReason = responseReason
	s.statusUpdate = &status
	return nil
}

func (s *changeRequestStoreStub) ApproveAndApplySlot(_ context.Context, id, responderID string, responseReason *string, _ string, slot models.ScheduleSlot, now time.Time) error {
	req, ok := s.requests[id]
	if !ok || req.Status != models.ChangeRequestPending || !req.ExpiresAt.After(now) {
		return sql.ErrNoRows
	}
	req.Status = models.ChangeRequestApproved
	req.ResponderID = &responderID
	req.ResponseReason = responseReason
	s.appliedSlot = &slot
	return nil
}

func (s *changeRequestStoreStub) ListByRecord(_ context.Context, _ string) ([]models.ScheduleChangeRequest, error) {
	out := make([]models.ScheduleChangeRequest, 0, len(s.requests))
	for _, req := range s.requests {
		out = append(out, *req)
	}
	return out, nil
}

type changeRequestRecordStoreStub struct {
	record *models.TrainerRecord
}

func (s *changeRequestRecordStoreStub) GetByID(_ context.Context, _ string) (*models.TrainerRecord, error) {
	if s.record == nil {
		return nil, sql.ErrNoRows
	}
	return s.record, nil
}

type availabilityCheckerStub struct {
	fail []models.ScheduleSlot
}

func (s *availabilityCheckerStub) CheckAvailabilityExcluding(_ context.Context, _ string, candidates []models.ScheduleSlot, _ string) (AvailabilityResult, error) {
	if len(s.fail) > 0 {
		return AvailabilityResult{Fail: s.fail}, nil
	}
	return AvailabilityResult{Success: candidates}, nil
}

func changeRequestFixtureRecord() *models.TrainerRecord {
	return &models.TrainerRecord{
		PtRecord: models.PtRecord{
			ID:         "rec-1",
			ContractID: "c-1",
			Date:       "2026-03-09",
			StartTime:  1000,
			EndTime:    1100,
		},
		TrainerID:      "trainer-1",
		MemberID:       "member-1",
		ContractStatus: models.ContractStatusConfirmed,
	}
}

func fixedChangeRequestClock() func() time.Time {
	return func() time.Time { return time.Date(2026, 3, 2, 12, 0, 0, 0, time.Local) }
}

func newChangeRequestFixture(store *changeRequestStoreStub, records *changeRequestRecordStoreStub, planner *availabilityCheckerStub) *ChangeRequestService {
	if store == nil {
		store = &changeRequestStoreStub{}
	}
	if records == nil {
		records = &changeRequestRecordStoreStub{record: changeRequestFixtureRecord()}
	}
	if planner == nil {
		planner = &availabilityCheckerStub{}
	}
	return NewChangeRequestService(store, records, planner, 72*time.Hour, zap.NewNop(),
		WithChangeRequestClock(fixedChangeRequestClock()))
}

func TestChangeRequestCreateSetsExpiry(t *testing.T) {
	store := &changeRequestStoreStub{}
	svc := newChangeRequestFixture(store, nil, nil)

	member := &models.JWTClaims{UserID: "member-1", Role: models.RoleMember}
	req, err := svc.Create(context.Background(), member, CreateChangeRequestInput{
		RecordID:       "rec-1",
		RequestedDate:  "2026-03-10",
		RequestedStart: 1400,
		RequestedEnd:   1500,
		Reason:         "work trip",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ChangeRequestPending, req.Status)
	assert.Equal(t, time.Date(2026, 3, 5, 12, 0, 0, 0, time.Local), req.ExpiresAt)
	require.NotNil(t, store.created)
}

func TestChangeRequestCreateAllowsFinishedContract(t *testing.T) {
	rec := changeRequestFixtureRecord()
	rec.ContractStatus = models.ContractStatusFinished
	store := &changeRequestStoreStub{}
	svc := newChangeRequestFixture(store, &changeRequestRecordStoreStub{record: rec}, nil)

	member := &models.JWTClaims{UserID: "member-1", Role: models.RoleMember}
	req, err := svc.Create(context.Background(), member, CreateChangeRequestInput{
		RecordID:       "rec-1",
		RequestedDate:  "2026-03-10",
		RequestedStart: 1400,
		RequestedEnd:   1500,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ChangeRequestPending, req.Status)
}

func TestChangeRequestCreateRejectsPendingContract(t *testing.T) {
	rec := changeRequestFixtureRecord()
	rec.ContractStatus = models.ContractStatusPending
	svc := newChangeRequestFixture(nil, &changeRequestRecordStoreStub{record: rec}, nil)

	member := &models.JWTClaims{UserID: "member-1", Role: models.RoleMember}
	_, err := svc.Create(context.Background(), member, CreateChangeRequestInput{
		RecordID:       "rec-1",
		RequestedDate:  "2026-03-10",
		RequestedStart: 1400,
		RequestedEnd:   1500,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestChangeRequestCreateRejectsSecondPending(t *testing.T) {
	store := &changeRequestStoreStub{pending: true}
	svc := newChangeRequestFixture(store, nil, nil)

	member := &models.JWTClaims{UserID: "member-1", Role: models.RoleMember}
	_, err := svc.Create(context.Background(), member, CreateChangeRequestInput{
		RecordID:       "rec-1",
		RequestedDate:  "2026-03-10",
		RequestedStart: 1400,
		RequestedEnd:   1500,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestChangeRequestCreateRejectsOutsider(t *testing.T) {
	svc := newChangeRequestFixture(nil, nil, nil)

	outsider := &models.JWTClaims{UserID: "someone-else", Role: models.RoleMember}
	_, err := svc.Create(context.Background(), outsider, CreateChangeRequestInput{
		RecordID:       "rec-1",
		RequestedDate:  "2026-03-10",
		RequestedStart: 1400,
		RequestedEnd:   1500,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func pendingChangeRequest(expiresAt time.Time) *models.ScheduleChangeRequest {
	return &models.ScheduleChangeRequest{
		ID:             "cr-1",
		RecordID:       "rec-1",
		RequesterID:    "member-1",
		RequestedDate:  "2026-03-10",
		RequestedStart: 1400,
		RequestedEnd:   1500,
		Status:         models.ChangeRequestPending,
		ExpiresAt:      expiresAt,
	}
}

func TestChangeRequestApproveAppliesSlot(t *testing.T) {
	store := &changeRequestStoreStub{requests: map[string]*models.ScheduleChangeRequest{
		"cr-1": pendingChangeRequest(time.Date(2026, 3, 5, 12, 0, 0, 0, time.Local)),
	}}
	svc := newChangeRequestFixture(store, nil, nil)

	trainer := &models.JWTClaims{UserID: "trainer-1", Role: models.RoleTrainer}
	resolved, err := svc.Respond(context.Background(), trainer, "cr-1", true, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ChangeRequestApproved, resolved.Status)
	require.NotNil(t, store.appliedSlot)
	assert.Equal(t, "2026-03-10", store.appliedSlot.Date)
	assert.Equal(t, models.TimeOfDay(1400), store.appliedSlot.StartTime)
}

func TestChangeRequestApproveBouncesOnNewCollision(t *testing.T) {
	store := &changeRequestStoreStub{requests: map[string]*models.ScheduleChangeRequest{
		"cr-1": pendingChangeRequest(time.Date(2026, 3, 5, 12, 0, 0, 0, time.Local)),
	}}
	planner := &availabilityCheckerStub{fail: []models.ScheduleSlot{{Date: "2026-03-10", StartTime: 1400, EndTime: 1500}}}
	svc := newChangeRequestFixture(store, nil, planner)

	trainer := &models.JWTClaims{UserID: "trainer-1", Role: models.RoleTrainer}
	_, err := svc.Respond(context.Background(), trainer, "cr-1", true, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSlotConflict.Code, appErrors.FromError(err).Code)
	assert.Nil(t, store.appliedSlot)
}

func TestChangeRequestRespondRejectsRequesterAnswering(t *testing.T) {
	store := &changeRequestStoreStub{requests: map[string]*models.ScheduleChangeRequest{
		"cr-1": pendingChangeRequest(time.Date(2026, 3, 5, 12, 0, 0, 0, time.Local)),
	}}
	svc := newChangeRequestFixture(store, nil, nil)

	requester := &models.JWTClaims{UserID: "member-1", Role: models.RoleMember}
	_, err := svc.Respond(context.Background(), requester, "cr-1", true, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestChangeRequestRespondAfterExpiry(t *testing.T) {
	store := &changeRequestStoreStub{requests: map[string]*models.ScheduleChangeRequest{
		"cr-1": pendingChangeRequest(time.Date(2026, 3, 2, 11, 0, 0, 0, time.Local)),
	}}
	svc := newChangeRequestFixture(store, nil, nil)

	trainer := &models.JWTClaims{UserID: "trainer-1", Role: models.RoleTrainer}
	_, err := svc.Respond(context.Background(), trainer, "cr-1", true, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Nil(t, store.appliedSlot)
}

func TestChangeRequestCancelOnlyRequester(t *testing.T) {
	store := &changeRequestStoreStub{requests: map[string]*models.ScheduleChangeRequest{
		"cr-1": pendingChangeRequest(time.Date(2026, 3, 5, 12, 0, 0, 0, time.Local)),
	}}
	svc := newChangeRequestFixture(store, nil, nil)

	trainer := &models.JWTClaims{UserID: "trainer-1", Role: models.RoleTrainer}
	_, err := svc.Cancel(context.Background(), trainer, "cr-1")
	require.Error(t, err)

	requester := &models.JWTClaims{UserID: "member-1", Role: models.RoleMember}
	resolved, err := svc.Cancel(context.Background(), requester, "cr-1")
	require.NoError(t, err)
	assert.Equal(t, models.ChangeRequestCancelled, resolved.Status)
}

func TestChangeRequestGetDerivesExpired(t *testing.T) {
	store := &changeRequestStoreStub{requests: map[string]*models.ScheduleChangeRequest{
		"cr-1": pendingChangeRequest(time.Date(2026, 3, 2, 11, 0, 0, 0, time.Local)),
	}}
	svc := newChangeRequestFixture(store, nil, nil)

	admin := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
	req, err := svc.Get(context.Background(), admin, "cr-1")
	require.NoError(t, err)
	assert.Equal(t, models.ChangeRequestExpired, req.Status)
}
