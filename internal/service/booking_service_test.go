package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fitbridge/pt-booking-api/internal/models"
	"github.com/fitbridge/pt-booking-api/pkg/config"
	appErrors "github.com/fitbridge/pt-booking-api/pkg/errors"
)

type bookingContractStoreStub struct {
	contract       *models.PtContract
	created        *models.PtContract
	createdRecords []models.PtRecord
	statusUpdates  []models.ContractStatus
	resolveErr     error
}

func (s *bookingContractStoreStub) GetByID(_ context.Context, _ string) (*models.PtContract, error) {
	if s.contract == nil {
		return nil, sql.ErrNoRows
	}
	clone := *s.contract
	return &clone, nil
}

func (s *bookingContractStoreStub) List(_ context.Context, _ models.ContractFilter) ([]models.PtContract, int, error) {
	return nil, 0, nil
}

func (s *bookingContractStoreStub) CreateWithRecords(_ context.Context, contract *models.PtContract, records []models.PtRecord) error {
	s.created = contract
	s.createdRecords = records
	return nil
}

func (s *bookingContractStoreStub) UpdateStatusFromPending(_ context.Context, _ string, status models.ContractStatus, _ *string) error {
	if s.resolveErr != nil {
		return s.resolveErr
	}
	s.statusUpdates = append(s.statusUpdates, status)
	return nil
}

type bookingProductStoreStub struct {
	product *models.PtProduct
}

func (s *bookingProductStoreStub) GetByID(_ context.Context, _ string) (*models.PtProduct, error) {
	if s.product == nil {
		return nil, sql.ErrNoRows
	}
	return s.product, nil
}

type bookingUserStoreStub struct {
	users map[string]*models.User
}

func (s *bookingUserStoreStub) FindByID(_ context.Context, id string) (*models.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func newBookingFixture(contracts *bookingContractStoreStub, product *models.PtProduct, planner *SchedulePlannerService) *BookingService {
	if contracts == nil {
		contracts = &bookingContractStoreStub{}
	}
	users := &bookingUserStoreStub{users: map[string]*models.User{
		"trainer-1": {ID: "trainer-1", Role: models.RoleTrainer, Active: true, FullName: "Sam Park"},
	}}
	return NewBookingService(contracts, &bookingProductStoreStub{product: product}, users, planner, zap.NewNop(),
		WithBookingClock(func() time.Time {
			return time.Date(2026, 3, 1, 9, 0, 0, 0, time.Local)
		}))
}

func emptyCalendarPlanner() *SchedulePlannerService {
	return NewSchedulePlannerService(&plannerRecordStoreStub{}, &plannerContractStoreStub{}, &plannerProductStoreStub{}, &plannerUserStoreStub{}, config.BookingConfig{
		OpenTime:           600,
		CloseTime:          2300,
		ExtensionWarnRatio: 0.8,
	}, zap.NewNop())
}

func TestBookingApplyRegularCreatesEverySession(t *testing.T) {
	contracts := &bookingContractStoreStub{}
	product := &models.PtProduct{ID: "p-1", TotalSessions: 10, DurationHours: 1, Active: true}
	svc := newBookingFixture(contracts, product, emptyCalendarPlanner())

	member := &models.JWTClaims{UserID: "member-1", Role: models.RoleMember}
	result, err := svc.Apply(context.Background(), member, ApplyInput{
		ProductID: "p-1",
		TrainerID: "trainer-1",
		IsRegular: true,
		Schedule: models.DaySchedule{
			"2026-03-02": {1000, 1030},
			"2026-03-04": {1800, 1830},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, models.ContractStatusPending, result.Contract.Status)
	assert.Equal(t, "2026-03-02", result.Contract.StartDate)
	assert.True(t, result.Contract.IsRegular)
	assert.Len(t, result.Contract.WeekTimes, 2)
	require.Len(t, result.Records, 10)
	for i, rec := range result.Records {
		assert.Equal(t, i+1, rec.Seq)
		assert.Equal(t, result.Contract.ID, rec.ContractID)
	}
	assert.True(t, result.ExtensionWarnings.Checked)
	require.NotNil(t, contracts.created)
	assert.Len(t, contracts.createdRecords, 10)
}

func TestBookingApplySurfacesSlotConflicts(t *testing.T) {
	busyRecords := &plannerRecordStoreStub{byDates: []models.TrainerRecord{
		{PtRecord: models.PtRecord{ContractID: "other", Date: "2026-03-02", StartTime: 1000, EndTime: 1100}},
	}}
	planner := NewSchedulePlannerService(busyRecords, &plannerContractStoreStub{}, &plannerProductStoreStub{}, &plannerUserStoreStub{}, config.BookingConfig{
		OpenTime:  600,
		CloseTime: 2300,
	}, zap.NewNop())

	contracts := &bookingContractStoreStub{}
	product := &models.PtProduct{ID: "p-1", TotalSessions: 1, DurationHours: 1, Active: true}
	svc := newBookingFixture(contracts, product, planner)

	member := &models.JWTClaims{UserID: "member-1", Role: models.RoleMember}
	_, err := svc.Apply(context.Background(), member, ApplyInput{
		ProductID: "p-1",
		TrainerID: "trainer-1",
		Schedule: models.DaySchedule{
			"2026-03-02": {1000, 1030},
		},
	})
	require.Error(t, err)

	var conflictErr *SlotConflictError
	require.True(t, errors.As(err, &conflictErr))
	require.Len(t, conflictErr.Fail, 1)
	assert.Equal(t, "2026-03-02", conflictErr.Fail[0].Date)
	assert.Nil(t, contracts.created, "no contract row on conflict")
}

func TestBookingApplyOneOffRequiresExactDayCount(t *testing.T) {
	product := &models.PtProduct{ID: "p-1", TotalSessions: 3, DurationHours: 1, Active: true}
	svc := newBookingFixture(nil, product, emptyCalendarPlanner())

	member := &models.JWTClaims{UserID: "member-1", Role: models.RoleMember}
	_, err := svc.Apply(context.Background(), member, ApplyInput{
		ProductID: "p-1",
		TrainerID: "trainer-1",
		Schedule: models.DaySchedule{
			"2026-03-02": {1000, 1030},
			"2026-03-04": {1000, 1030},
		},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestBookingApplyRejectsPastDates(t *testing.T) {
	product := &models.PtProduct{ID: "p-1", TotalSessions: 1, DurationHours: 1, Active: true}
	svc := newBookingFixture(nil, product, emptyCalendarPlanner())

	member := &models.JWTClaims{UserID: "member-1", Role: models.RoleMember}
	_, err := svc.Apply(context.Background(), member, ApplyInput{
		ProductID: "p-1",
		TrainerID: "trainer-1",
		Schedule: models.DaySchedule{
			"2026-02-20": {1000, 1030},
		},
	})
	require.Error(t, err)
}

func TestBookingRespondConfirm(t *testing.T) {
	contracts := &bookingContractStoreStub{contract: &models.PtContract{
		ID:        "c-1",
		MemberID:  "member-1",
		TrainerID: "trainer-1",
		Status:    models.ContractStatusPending,
	}}
	svc := newBookingFixture(contracts, nil, emptyCalendarPlanner())

	trainer := &models.JWTClaims{UserID: "trainer-1", Role: models.RoleTrainer}
	resolved, err := svc.Respond(context.Background(), trainer, "c-1", true, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ContractStatusConfirmed, resolved.Status)
	assert.True(t, resolved.TrainerConfirmed)
	assert.Equal(t, []models.ContractStatus{models.ContractStatusConfirmed}, contracts.statusUpdates)
}

func TestBookingRespondRejectNeedsReason(t *testing.T) {
	contracts := &bookingContractStoreStub{contract: &models.PtContract{
		ID:        "c-1",
		TrainerID: "trainer-1",
		Status:    models.ContractStatusPending,
	}}
	svc := newBookingFixture(contracts, nil, emptyCalendarPlanner())

	trainer := &models.JWTClaims{UserID: "trainer-1", Role: models.RoleTrainer}
	_, err := svc.Respond(context.Background(), trainer, "c-1", false, nil)
	require.Error(t, err)

	reason := "fully booked"
	resolved, err := svc.Respond(context.Background(), trainer, "c-1", false, &reason)
	require.NoError(t, err)
	assert.Equal(t, models.ContractStatusRejected, resolved.Status)
	require.NotNil(t, resolved.RejectReason)
}

func TestBookingRespondConcurrentResolution(t *testing.T) {
	contracts := &bookingContractStoreStub{
		contract: &models.PtContract{
			ID:        "c-1",
			TrainerID: "trainer-1",
			Status:    models.ContractStatusPending,
		},
		resolveErr: sql.ErrNoRows,
	}
	svc := newBookingFixture(contracts, nil, emptyCalendarPlanner())

	trainer := &models.JWTClaims{UserID: "trainer-1", Role: models.RoleTrainer}
	_, err := svc.Respond(context.Background(), trainer, "c-1", true, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestBookingRespondWrongTrainer(t *testing.T) {
	contracts := &bookingContractStoreStub{contract: &models.PtContract{
		ID:        "c-1",
		TrainerID: "trainer-1",
		Status:    models.ContractStatusPending,
	}}
	svc := newBookingFixture(contracts, nil, emptyCalendarPlanner())

	other := &models.JWTClaims{UserID: "trainer-2", Role: models.RoleTrainer}
	_, err := svc.Respond(context.Background(), other, "c-1", true, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
