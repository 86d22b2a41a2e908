package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitbridge/pt-booking-api/internal/models"
)

func TestChangeRequestRepositoryHasPending(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewChangeRequestRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM schedule_change_requests WHERE record_id = $1 AND status = 'PENDING' AND expires_at > $2 LIMIT 1")).
		WithArgs("r1", now).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	pending, err := repo.HasPending(context.Background(), "r1", now)
	require.NoError(t, err)
	assert.True(t, pending)

	mock.ExpectQuery("SELECT 1 FROM schedule_change_requests").
		WithArgs("r2", now).
		WillReturnError(sql.ErrNoRows)

	pending, err = repo.HasPending(context.Background(), "r2", now)
	require.NoError(t, err)
	assert.False(t, pending)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChangeRequestRepositoryUpdateStatusOptimisticGuard(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewChangeRequestRepository(db)

	now := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND status = 'PENDING' AND expires_at > $5")).
		WithArgs("cr1", models.ChangeRequestApproved, "trainer-1", nil, now.UTC()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateStatusFromPending(context.Background(), "cr1", models.ChangeRequestApproved, "trainer-1", nil, now))

	// A second transition on the same request touches zero rows.
	mock.ExpectExec("UPDATE schedule_change_requests").
		WithArgs("cr1", models.ChangeRequestRejected, "trainer-1", nil, now.UTC()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.UpdateStatusFromPending(context.Background(), "cr1", models.ChangeRequestRejected, "trainer-1", nil, now)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChangeRequestRepositoryApproveGuardsExpiry(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewChangeRequestRepository(db)

	// The request is still PENDING but its expiry passed between the
	// service's status check and the write: the guard touches zero rows and
	// the transaction rolls back without ever reaching the slot update.
	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND status = 'PENDING' AND expires_at > $4")).
		WithArgs("cr1", "trainer-1", nil, now.UTC()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	slot := models.ScheduleSlot{Date: "2024-06-12", StartTime: 1000, EndTime: 1100}
	err := repo.ApproveAndApplySlot(context.Background(), "cr1", "trainer-1", nil, "r1", slot, now)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChangeRequestRepositoryApproveAppliesSlot(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewChangeRequestRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE schedule_change_requests").
		WithArgs("cr1", "trainer-1", nil, now.UTC()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE pt_records").
		WithArgs("r1", "2024-06-12", models.TimeOfDay(1000), models.TimeOfDay(1100), now.UTC()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	slot := models.ScheduleSlot{Date: "2024-06-12", StartTime: 1000, EndTime: 1100}
	require.NoError(t, repo.ApproveAndApplySlot(context.Background(), "cr1", "trainer-1", nil, "r1", slot, now))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChangeRequestRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewChangeRequestRepository(db)

	mock.ExpectExec("INSERT INTO schedule_change_requests").WillReturnResult(sqlmock.NewResult(1, 1))

	req := &models.ScheduleChangeRequest{
		RecordID:       "r1",
		RequesterID:    "m1",
		RequestedDate:  "2024-06-12",
		RequestedStart: 1000,
		RequestedEnd:   1100,
		Status:         models.ChangeRequestPending,
		ExpiresAt:      time.Now().Add(72 * time.Hour),
	}
	require.NoError(t, repo.Create(context.Background(), req))
	assert.NotEmpty(t, req.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
