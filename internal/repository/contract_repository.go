package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fitbridge/pt-booking-api/internal/models"
)

// ContractRepository provides persistence for PT contracts and their weekly
// patterns. The contract aggregate (contract + week times + session records)
// is only ever written through this repository so booking creation stays
// all-or-nothing.
type ContractRepository struct {
	db *sqlx.DB
}

// NewContractRepository creates a new contract repository.
func NewContractRepository(db *sqlx.DB) *ContractRepository {
	return &ContractRepository{db: db}
}

const contractColumns = "id, member_id, trainer_id, product_id, status, trainer_confirmed, is_regular, start_date, reject_reason, created_at, updated_at"

// GetByID loads a contract with its weekly patterns.
func (r *ContractRepository) GetByID(ctx context.Context, id string) (*models.PtContract, error) {
	query := fmt.Sprintf("SELECT %s FROM pt_contracts WHERE id = $1", contractColumns)
	var contract models.PtContract
	if err := r.db.GetContext(ctx, &contract, query, id); err != nil {
		return nil, err
	}
	weekTimes, err := r.weekTimes(ctx, id)
	if err != nil {
		return nil, err
	}
	contract.WeekTimes = weekTimes
	return &contract, nil
}

// List returns contracts with optional filtering and pagination.
func (r *ContractRepository) List(ctx context.Context, filter models.ContractFilter) ([]models.PtContract, int, error) {
	base := "FROM pt_contracts WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.MemberID != "" {
		conditions = append(conditions, fmt.Sprintf("member_id = $%d", len(args)+1))
		args = append(args, filter.MemberID)
	}
	if filter.TrainerID != "" {
		conditions = append(conditions, fmt.Sprintf("trainer_id = $%d", len(args)+1))
		args = append(args, filter.TrainerID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.IsRegular != nil {
		conditions = append(conditions, fmt.Sprintf("is_regular = $%d", len(args)+1))
		args = append(args, *filter.IsRegular)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{"created_at": true, "start_date": true, "status": true}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", contractColumns, base, sortBy, order, size, (page-1)*size)
	var contracts []models.PtContract
	if err := r.db.SelectContext(ctx, &contracts, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list contracts: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base), args...); err != nil {
		return nil, 0, fmt.Errorf("count contracts: %w", err)
	}

	return contracts, total, nil
}

// ListRegularConfirmedByTrainer returns the trainer's confirmed recurring
// contracts with their weekly patterns, used by the extension-conflict check.
func (r *ContractRepository) ListRegularConfirmedByTrainer(ctx context.Context, trainerID string) ([]models.PtContract, error) {
	query := fmt.Sprintf("SELECT %s FROM pt_contracts WHERE trainer_id = $1 AND status = $2 AND is_regular = TRUE ORDER BY created_at ASC", contractColumns)
	var contracts []models.PtContract
	if err := r.db.SelectContext(ctx, &contracts, query, trainerID, models.ContractStatusConfirmed); err != nil {
		return nil, fmt.Errorf("list regular contracts: %w", err)
	}
	for i := range contracts {
		weekTimes, err := r.weekTimes(ctx, contracts[i].ID)
		if err != nil {
			return nil, err
		}
		contracts[i].WeekTimes = weekTimes
	}
	return contracts, nil
}

// CreateWithRecords persists a new contract, its weekly patterns, and one
// PtRecord per generated slot inside a single transaction. A partial booking
// must never survive a failure.
func (r *ContractRepository) CreateWithRecords(ctx context.Context, contract *models.PtContract, records []models.PtRecord) (err error) {
	if contract.ID == "" {
		contract.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	contract.CreatedAt = now
	contract.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create contract: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertContract = `INSERT INTO pt_contracts (id, member_id, trainer_id, product_id, status, trainer_confirmed, is_regular, start_date, created_at, updated_at)
		VALUES (:id, :member_id, :trainer_id, :product_id, :status, :trainer_confirmed, :is_regular, :start_date, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insertContract, contract); err != nil {
		return fmt.Errorf("insert contract: %w", err)
	}

	for i := range contract.WeekTimes {
		wt := &contract.WeekTimes[i]
		if wt.ID == "" {
			wt.ID = uuid.NewString()
		}
		wt.ContractID = contract.ID
		const insertWeekTime = `INSERT INTO pt_week_times (id, contract_id, weekday, start_time, end_time)
			VALUES (:id, :contract_id, :weekday, :start_time, :end_time)`
		if _, err = tx.NamedExecContext(ctx, insertWeekTime, wt); err != nil {
			return fmt.Errorf("insert week time: %w", err)
		}
	}

	for i := range records {
		rec := &records[i]
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		rec.ContractID = contract.ID
		rec.CreatedAt = now
		rec.UpdatedAt = now
		const insertRecord = `INSERT INTO pt_records (id, contract_id, seq, date, start_time, end_time, created_at, updated_at)
			VALUES (:id, :contract_id, :seq, :date, :start_time, :end_time, :created_at, :updated_at)`
		if _, err = tx.NamedExecContext(ctx, insertRecord, rec); err != nil {
			return fmt.Errorf("insert record %d: %w", rec.Seq, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create contract: %w", err)
	}
	return nil
}

// UpdateStatusFromPending applies a trainer decision. The status guard makes
// concurrent decisions lose cleanly: zero affected rows surfaces as
// sql.ErrNoRows.
func (r *ContractRepository) UpdateStatusFromPending(ctx context.Context, id string, status models.ContractStatus, rejectReason *string) error {
	const query = `UPDATE pt_contracts
		SET status = $2, trainer_confirmed = $3, reject_reason = $4, updated_at = $5
		WHERE id = $1 AND status = 'PENDING'`
	res, err := r.db.ExecContext(ctx, query, id, status, status == models.ContractStatusConfirmed, rejectReason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update contract status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update contract status: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkFinished flips a confirmed contract to FINISHED once every session is
// attended.
func (r *ContractRepository) MarkFinished(ctx context.Context, id string) error {
	const query = `UPDATE pt_contracts SET status = 'FINISHED', updated_at = $2 WHERE id = $1 AND status = 'CONFIRMED'`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark contract finished: %w", err)
	}
	return nil
}

func (r *ContractRepository) weekTimes(ctx context.Context, contractID string) ([]models.WeekTime, error) {
	const query = `SELECT id, contract_id, weekday, start_time, end_time FROM pt_week_times WHERE contract_id = $1 ORDER BY weekday ASC, start_time ASC`
	var weekTimes []models.WeekTime
	if err := r.db.SelectContext(ctx, &weekTimes, query, contractID); err != nil {
		return nil, fmt.Errorf("list week times: %w", err)
	}
	return weekTimes, nil
}
