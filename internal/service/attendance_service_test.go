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
)

func TestDeriveAttendance(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.Local)

	withItems := models.PtRecord{Date: "2026-01-01", StartTime: 900, EndTime: 1000, ExerciseCount: 2}
	assert.Equal(t, models.AttendanceAttended, DeriveAttendance(withItems, now))

	past := models.PtRecord{Date: "2026-03-02", StartTime: 930, EndTime: 1030}
	assert.Equal(t, models.AttendanceAbsent, DeriveAttendance(past, now))

	// Exactly at the scheduled start the session is no longer reserved.
	atStart := models.PtRecord{Date: "2026-03-02", StartTime: 1000, EndTime: 1100}
	assert.Equal(t, models.AttendanceAbsent, DeriveAttendance(atStart, now))

	future := models.PtRecord{Date: "2026-03-02", StartTime: 1030, EndTime: 1130}
	assert.Equal(t, models.AttendanceReserved, DeriveAttendance(future, now))

	// The clock beats the items: exercises recorded ahead of the start
	// (the pre-session audit window allows it) keep the session RESERVED.
	futureWithItems := models.PtRecord{Date: "2026-03-02", StartTime: 1030, EndTime: 1130, ExerciseCount: 1}
	assert.Equal(t, models.AttendanceReserved, DeriveAttendance(futureWithItems, now))
}

func TestComputeAttendanceStatsExcludesReservedFromRate(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.Local)
	records := []models.PtRecord{
		{ID: "a", Date: "2026-02-23", StartTime: 1000, EndTime: 1100, ExerciseCount: 1},
		{ID: "b", Date: "2026-02-25", StartTime: 1000, EndTime: 1100},
		{ID: "c", Date: "2026-03-04", StartTime: 1000, EndTime: 1100},
		{ID: "d", Date: "2026-03-09", StartTime: 1000, EndTime: 1100},
	}

	stats := ComputeAttendanceStats(records, now)
	assert.Equal(t, 1, stats.Attended)
	assert.Equal(t, 1, stats.Absent)
	assert.Equal(t, 2, stats.Reserved)
	assert.Equal(t, 2, stats.CompletedSessions)
	assert.InDelta(t, 0.5, stats.AttendanceRate, 1e-9)
	require.NotNil(t, stats.NextSession)
	assert.Equal(t, "c", stats.NextSession.ID)
}

func TestComputeAttendanceStatsNextSessionAfterMovedSlot(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.Local)
	// Seq 2 was moved past seq 3 by an approved schedule change, so slice
	// order no longer matches date order.
	records := []models.PtRecord{
		{ID: "a", Seq: 1, Date: "2026-02-23", StartTime: 1000, EndTime: 1100, ExerciseCount: 1},
		{ID: "b", Seq: 2, Date: "2026-03-11", StartTime: 1000, EndTime: 1100},
		{ID: "c", Seq: 3, Date: "2026-03-04", StartTime: 1000, EndTime: 1100},
	}

	stats := ComputeAttendanceStats(records, now)
	require.NotNil(t, stats.NextSession)
	assert.Equal(t, "c", stats.NextSession.ID)
}

func TestComputeAttendanceStatsFreshContract(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.Local)
	stats := ComputeAttendanceStats([]models.PtRecord{
		{Date: "2026-03-09", StartTime: 1000, EndTime: 1100},
	}, now)
	assert.Zero(t, stats.CompletedSessions)
	assert.Zero(t, stats.AttendanceRate)
}

type attendanceRecordStoreStub struct {
	record    *models.TrainerRecord
	contract  []models.PtRecord
	rangeRecs []models.TrainerRecord
}

func (s *attendanceRecordStoreStub) GetByID(_ context.Context, _ string) (*models.TrainerRecord, error) {
	if s.record == nil {
		return nil, sql.ErrNoRows
	}
	return s.record, nil
}

func (s *attendanceRecordStoreStub) ListByContract(_ context.Context, _ string) ([]models.PtRecord, error) {
	return s.contract, nil
}

func (s *attendanceRecordStoreStub) ListByTrainerRange(_ context.Context, _, _, _ string) ([]models.TrainerRecord, error) {
	return s.rangeRecs, nil
}

func TestTrainerCalendarSortsAndDerives(t *testing.T) {
	store := &attendanceRecordStoreStub{rangeRecs: []models.TrainerRecord{
		{PtRecord: models.PtRecord{ID: "late", Date: "2026-03-03", StartTime: 1800, EndTime: 1900}},
		{PtRecord: models.PtRecord{ID: "early", Date: "2026-03-03", StartTime: 900, EndTime: 1000}},
		{PtRecord: models.PtRecord{ID: "done", Date: "2026-03-02", StartTime: 900, EndTime: 1000, ExerciseCount: 1}},
	}}
	svc := NewAttendanceService(store, zap.NewNop(), WithAttendanceClock(func() time.Time {
		return time.Date(2026, 3, 2, 12, 0, 0, 0, time.Local)
	}))

	views, err := svc.TrainerCalendar(context.Background(), "trainer-1", "2026-03-02", "2026-03-08")
	require.NoError(t, err)
	require.Len(t, views, 3)
	assert.Equal(t, "done", views[0].ID)
	assert.Equal(t, models.AttendanceAttended, views[0].Status)
	assert.Equal(t, "early", views[1].ID)
	assert.Equal(t, "late", views[2].ID)
	assert.Equal(t, models.AttendanceReserved, views[1].Status)
}

func TestTrainerCalendarRejectsInvertedRange(t *testing.T) {
	svc := NewAttendanceService(&attendanceRecordStoreStub{}, zap.NewNop())
	_, err := svc.TrainerCalendar(context.Background(), "trainer-1", "2026-03-08", "2026-03-02")
	require.Error(t, err)
}
