package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitbridge/pt-booking-api/internal/middleware"
	"github.com/fitbridge/pt-booking-api/internal/models"
	"github.com/fitbridge/pt-booking-api/internal/service"
)

type fakeCalendarStore struct {
	records []models.TrainerRecord
	lastArg struct {
		trainerID string
		from      string
		to        string
	}
}

func (f *fakeCalendarStore) GetByID(context.Context, string) (*models.TrainerRecord, error) {
	return nil, nil
}

func (f *fakeCalendarStore) ListByContract(context.Context, string) ([]models.PtRecord, error) {
	return nil, nil
}

func (f *fakeCalendarStore) ListByTrainerRange(_ context.Context, trainerID, from, to string) ([]models.TrainerRecord, error) {
	f.lastArg.trainerID = trainerID
	f.lastArg.from = from
	f.lastArg.to = to
	return f.records, nil
}

func calendarTestHandler(store *fakeCalendarStore) *TrainerHandler {
	clock := func() time.Time {
		return time.Date(2026, time.March, 2, 12, 0, 0, 0, time.Local)
	}
	return NewTrainerHandler(service.NewAttendanceService(store, nil, service.WithAttendanceClock(clock)), nil)
}

func TestTrainerCalendarRequiresRange(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := calendarTestHandler(&fakeCalendarStore{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/trainers/trainer-1/calendar?from=2026-03-01", nil)
	c.Params = gin.Params{{Key: "id", Value: "trainer-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "trainer-1", Role: models.RoleTrainer})

	handler.Calendar(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTrainerCalendarForbidsOtherTrainers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := calendarTestHandler(&fakeCalendarStore{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/trainers/trainer-2/calendar?from=2026-03-01&to=2026-03-07", nil)
	c.Params = gin.Params{{Key: "id", Value: "trainer-2"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "trainer-1", Role: models.RoleTrainer})

	handler.Calendar(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTrainerCalendarScopesToCurrentUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := &fakeCalendarStore{
		records: []models.TrainerRecord{
			{
				PtRecord:   models.PtRecord{ID: "rec-1", Date: "2026-03-03", StartTime: 1000, EndTime: 1100},
				TrainerID:  "trainer-1",
				MemberID:   "member-1",
				MemberName: "Dana Kim",
			},
		},
	}
	handler := calendarTestHandler(store)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/trainers/trainer-1/calendar?from=2026-03-01&to=2026-03-07", nil)
	c.Params = gin.Params{{Key: "id", Value: "trainer-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "trainer-1", Role: models.RoleTrainer})

	handler.Calendar(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "trainer-1", store.lastArg.trainerID)
	assert.Equal(t, "2026-03-01", store.lastArg.from)
	assert.Equal(t, "2026-03-07", store.lastArg.to)

	var envelope struct {
		Data []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data, 1)
	assert.Equal(t, "rec-1", envelope.Data[0].ID)
	assert.Equal(t, string(models.AttendanceReserved), envelope.Data[0].Status)
}
