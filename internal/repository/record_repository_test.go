package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitbridge/pt-booking-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestRecordRepositoryListByTrainerAndDates(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	rows := sqlmock.NewRows([]string{"id", "contract_id", "seq", "date", "start_time", "end_time", "created_at", "updated_at", "exercise_count", "trainer_id", "member_id", "member_name", "contract_status"}).
		AddRow("r1", "c1", 1, "2024-06-03", 1400, 1500, time.Now(), time.Now(), 0, "trainer-1", "m1", "Member One", "CONFIRMED")
	mock.ExpectQuery("SELECT .+ FROM pt_records r").
		WithArgs("trainer-1", sqlmock.AnyArg()).
		WillReturnRows(rows)

	records, err := repo.ListByTrainerAndDates(context.Background(), "trainer-1", []string{"2024-06-03"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.TimeOfDay(1400), records[0].StartTime)
	assert.Equal(t, "Member One", records[0].MemberName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryListByTrainerAndDatesEmpty(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	records, err := repo.ListByTrainerAndDates(context.Background(), "trainer-1", nil)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryReplaceExercisesWithAuditRollsBack(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM pt_exercise_items").
		WithArgs("r1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO pt_exercise_items").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO record_audit_logs").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	entry := &models.RecordAuditLog{Action: models.AuditActionRecord, ScheduledAt: time.Now()}
	err := repo.ReplaceExercisesWithAudit(context.Background(), "r1", []models.ExerciseItem{{Name: "Squat", SetCount: 5, RepCount: 5}}, entry)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryReplaceExercisesWithAuditCommits(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM pt_exercise_items").
		WithArgs("r1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO pt_exercise_items").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO record_audit_logs").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	entry := &models.RecordAuditLog{Action: models.AuditActionRecord, ScheduledAt: time.Now()}
	err := repo.ReplaceExercisesWithAudit(context.Background(), "r1", []models.ExerciseItem{{Name: "Squat", SetCount: 5, RepCount: 5}}, entry)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
