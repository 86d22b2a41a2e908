package repository

import (
	"context"
	"database/sql"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitbridge/pt-booking-api/internal/models"
)

func TestContractRepositoryCreateWithRecordsAtomic(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewContractRepository(db)

	contract := &models.PtContract{
		MemberID:  "m1",
		TrainerID: "t1",
		ProductID: "p1",
		Status:    models.ContractStatusPending,
		IsRegular: true,
		StartDate: "2024-06-03",
		WeekTimes: []models.WeekTime{{Weekday: 1, StartTime: 1400, EndTime: 1500}},
	}
	records := []models.PtRecord{
		{Seq: 1, Date: "2024-06-03", StartTime: 1400, EndTime: 1500},
		{Seq: 2, Date: "2024-06-10", StartTime: 1400, EndTime: 1500},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO pt_contracts").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO pt_week_times").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO pt_records").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO pt_records").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := repo.CreateWithRecords(context.Background(), contract, records)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContractRepositoryCreateWithRecordsCommits(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewContractRepository(db)

	contract := &models.PtContract{MemberID: "m1", TrainerID: "t1", ProductID: "p1", Status: models.ContractStatusPending, StartDate: "2024-06-03"}
	records := []models.PtRecord{{Seq: 1, Date: "2024-06-03", StartTime: 1400, EndTime: 1500}}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO pt_contracts").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO pt_records").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.CreateWithRecords(context.Background(), contract, records))
	assert.NotEmpty(t, contract.ID)
	assert.Equal(t, contract.ID, records[0].ContractID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContractRepositoryUpdateStatusFromPendingGuard(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewContractRepository(db)

	mock.ExpectExec("UPDATE pt_contracts").
		WithArgs("c1", models.ContractStatusConfirmed, true, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatusFromPending(context.Background(), "c1", models.ContractStatusConfirmed, nil)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
