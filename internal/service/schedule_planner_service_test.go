package service

import (
	"context"
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

type plannerRecordStoreStub struct {
	byDates    []models.TrainerRecord
	byContract map[string][]models.PtRecord
	err        error
}

func (s *plannerRecordStoreStub) ListByTrainerAndDates(_ context.Context, _ string, _ []string) ([]models.TrainerRecord, error) {
	return s.byDates, s.err
}

func (s *plannerRecordStoreStub) ListByContract(_ context.Context, contractID string) ([]models.PtRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.byContract[contractID], nil
}

type plannerContractStoreStub struct {
	contracts []models.PtContract
	err       error
}

func (s *plannerContractStoreStub) ListRegularConfirmedByTrainer(_ context.Context, _ string) ([]models.PtContract, error) {
	return s.contracts, s.err
}

type plannerProductStoreStub struct {
	products map[string]*models.PtProduct
}

func (s *plannerProductStoreStub) GetByID(_ context.Context, id string) (*models.PtProduct, error) {
	if p, ok := s.products[id]; ok {
		return p, nil
	}
	return nil, errors.New("product missing")
}

type plannerUserStoreStub struct {
	users map[string]*models.User
}

func (s *plannerUserStoreStub) FindByID(_ context.Context, id string) (*models.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, errors.New("user missing")
}

func newPlannerFixture(records *plannerRecordStoreStub, contracts *plannerContractStoreStub, products *plannerProductStoreStub, users *plannerUserStoreStub) *SchedulePlannerService {
	if records == nil {
		records = &plannerRecordStoreStub{}
	}
	if contracts == nil {
		contracts = &plannerContractStoreStub{}
	}
	if products == nil {
		products = &plannerProductStoreStub{}
	}
	if users == nil {
		users = &plannerUserStoreStub{}
	}
	return NewSchedulePlannerService(records, contracts, products, users, config.BookingConfig{
		OpenTime:           600,
		CloseTime:          2300,
		ExtensionWarnRatio: 0.8,
	}, zap.NewNop(), WithPlannerClock(func() time.Time {
		return time.Date(2026, 3, 2, 12, 0, 0, 0, time.Local)
	}))
}

func TestExpandRecurringScheduleWeeklyProgression(t *testing.T) {
	planner := newPlannerFixture(nil, nil, nil, nil)

	// 2026-03-02 is a Monday, 2026-03-04 a Wednesday.
	pattern := models.DaySchedule{
		"2026-03-02": {1000, 1030},
		"2026-03-04": {1800, 1830},
	}
	slots, err := planner.ExpandRecurringSchedule(pattern, 5)
	require.NoError(t, err)
	require.Len(t, slots, 5)

	assert.Equal(t, "2026-03-02", slots[0].Date)
	assert.Equal(t, models.TimeOfDay(1000), slots[0].StartTime)
	assert.Equal(t, models.TimeOfDay(1100), slots[0].EndTime)
	assert.Equal(t, "2026-03-04", slots[1].Date)
	assert.Equal(t, "2026-03-09", slots[2].Date)
	assert.Equal(t, "2026-03-11", slots[3].Date)
	assert.Equal(t, "2026-03-16", slots[4].Date)
}

func TestExpandRecurringScheduleRejectsDuplicateWeekday(t *testing.T) {
	planner := newPlannerFixture(nil, nil, nil, nil)

	// Both dates are Mondays.
	pattern := models.DaySchedule{
		"2026-03-02": {1000, 1030},
		"2026-03-09": {1800, 1830},
	}
	_, err := planner.ExpandRecurringSchedule(pattern, 4)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestExpandRecurringScheduleRejectsGappyMarks(t *testing.T) {
	planner := newPlannerFixture(nil, nil, nil, nil)

	pattern := models.DaySchedule{
		"2026-03-02": {1000, 1100},
	}
	_, err := planner.ExpandRecurringSchedule(pattern, 2)
	require.Error(t, err)
}

func TestValidateBlockAtClosingBoundary(t *testing.T) {
	planner := newPlannerFixture(nil, nil, nil, nil)

	assert.NoError(t, planner.ValidateBlock([]models.TimeOfDay{2200, 2230}, 1))
	assert.Error(t, planner.ValidateBlock([]models.TimeOfDay{2230, 2300}, 1))
	assert.Error(t, planner.ValidateBlock([]models.TimeOfDay{530, 600}, 1))
}

func TestCheckAvailabilityPartition(t *testing.T) {
	records := &plannerRecordStoreStub{
		byDates: []models.TrainerRecord{
			{PtRecord: models.PtRecord{ContractID: "other", Date: "2026-03-02", StartTime: 1000, EndTime: 1100}},
		},
	}
	planner := newPlannerFixture(records, nil, nil, nil)

	result, err := planner.CheckAvailability(context.Background(), "trainer-1", []models.ScheduleSlot{
		{Date: "2026-03-02", StartTime: 1030, EndTime: 1130},
		{Date: "2026-03-02", StartTime: 1100, EndTime: 1200},
		{Date: "2026-03-03", StartTime: 1000, EndTime: 1100},
	})
	require.NoError(t, err)
	require.Len(t, result.Fail, 1)
	assert.Equal(t, models.TimeOfDay(1030), result.Fail[0].StartTime)
	assert.Len(t, result.Success, 2, "back-to-back and other-day slots stay bookable")
}

func TestCheckAvailabilityExcludesOwnContract(t *testing.T) {
	records := &plannerRecordStoreStub{
		byDates: []models.TrainerRecord{
			{PtRecord: models.PtRecord{ContractID: "mine", Date: "2026-03-02", StartTime: 1000, EndTime: 1100}},
		},
	}
	planner := newPlannerFixture(records, nil, nil, nil)

	result, err := planner.CheckAvailabilityExcluding(context.Background(), "trainer-1", []models.ScheduleSlot{
		{Date: "2026-03-02", StartTime: 1000, EndTime: 1100},
	}, "mine")
	require.NoError(t, err)
	assert.Empty(t, result.Fail)
}

func TestCheckExtensionConflictFailOpen(t *testing.T) {
	contracts := &plannerContractStoreStub{err: errors.New("db down")}
	planner := newPlannerFixture(nil, contracts, nil, nil)

	result := planner.CheckExtensionConflict(context.Background(), "trainer-1", models.DaySchedule{
		"2026-03-02": {1000},
	})
	assert.False(t, result.Checked)
	assert.Empty(t, result.Conflicts)
	assert.False(t, result.HasConflict())
}

func TestCheckExtensionConflictWarnsNearCompletion(t *testing.T) {
	// 8 of 10 sessions attended, recurring Mondays at 10:00.
	attended := make([]models.PtRecord, 0, 10)
	for i := 0; i < 10; i++ {
		rec := models.PtRecord{
			ContractID: "c-1",
			Seq:        i + 1,
			Date:       time.Date(2026, 1, 5, 0, 0, 0, 0, time.Local).AddDate(0, 0, 7*i).Format(models.DateLayout),
			StartTime:  1000,
			EndTime:    1100,
		}
		if i < 8 {
			rec.ExerciseCount = 1
		}
		attended = append(attended, rec)
	}
	records := &plannerRecordStoreStub{byContract: map[string][]models.PtRecord{"c-1": attended}}
	contracts := &plannerContractStoreStub{contracts: []models.PtContract{{
		ID:        "c-1",
		MemberID:  "member-1",
		TrainerID: "trainer-1",
		ProductID: "p-1",
		Status:    models.ContractStatusConfirmed,
		IsRegular: true,
		WeekTimes: []models.WeekTime{{Weekday: time.Monday, StartTime: 1000, EndTime: 1100}},
	}}}
	products := &plannerProductStoreStub{products: map[string]*models.PtProduct{
		"p-1": {ID: "p-1", TotalSessions: 10, DurationHours: 1},
	}}
	users := &plannerUserStoreStub{users: map[string]*models.User{
		"member-1": {ID: "member-1", FullName: "Dana Kim"},
	}}
	planner := newPlannerFixture(records, contracts, products, users)

	// New application wants Mondays 10:30, inside the existing 10:00-11:00 hour.
	result := planner.CheckExtensionConflict(context.Background(), "trainer-1", models.DaySchedule{
		"2026-03-02": {1030},
	})
	require.True(t, result.Checked)
	require.Len(t, result.Conflicts, 1)
	conflict := result.Conflicts[0]
	assert.Equal(t, "c-1", conflict.ContractID)
	assert.Equal(t, "Dana Kim", conflict.MemberName)
	assert.Equal(t, 2, conflict.RemainingCount)
	assert.Equal(t, 8, conflict.AttendedSessions)
	assert.InDelta(t, 0.8, conflict.CompletionRatio, 1e-9)
	require.Len(t, conflict.CollidingTimes, 1)
	assert.Equal(t, time.Monday, conflict.CollidingTimes[0].Weekday)
}

func TestCheckExtensionConflictIgnoresBelowRatio(t *testing.T) {
	records := &plannerRecordStoreStub{byContract: map[string][]models.PtRecord{"c-1": {
		{ContractID: "c-1", Date: "2026-01-05", StartTime: 1000, EndTime: 1100, ExerciseCount: 1},
	}}}
	contracts := &plannerContractStoreStub{contracts: []models.PtContract{{
		ID:        "c-1",
		ProductID: "p-1",
		WeekTimes: []models.WeekTime{{Weekday: time.Monday, StartTime: 1000, EndTime: 1100}},
	}}}
	products := &plannerProductStoreStub{products: map[string]*models.PtProduct{
		"p-1": {ID: "p-1", TotalSessions: 10},
	}}
	planner := newPlannerFixture(records, contracts, products, nil)

	result := planner.CheckExtensionConflict(context.Background(), "trainer-1", models.DaySchedule{
		"2026-03-02": {1000},
	})
	require.True(t, result.Checked)
	assert.Empty(t, result.Conflicts)
}
