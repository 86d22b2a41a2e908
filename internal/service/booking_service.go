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

type bookingContractStore interface {
	GetByID(ctx context.Context, id string) (*models.PtContract, error)
	List(ctx context.Context, filter models.ContractFilter) ([]models.PtContract, int, error)
	CreateWithRecords(ctx context.Context, contract *models.PtContract, records []models.PtRecord) error
	UpdateStatusFromPending(ctx context.Context, id string, status models.ContractStatus, rejectReason *string) error
}

type bookingProductStore interface {
	GetByID(ctx context.Context, id string) (*models.PtProduct, error)
}

type bookingUserStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type bookingPlanner interface {
	ValidateBlock(marks []models.TimeOfDay, durationHours int) error
	ExpandRecurringSchedule(pattern models.DaySchedule, totalCount int) ([]models.ScheduleSlot, error)
	BuildLiteralSlots(pattern models.DaySchedule) ([]models.ScheduleSlot, error)
	CheckAvailability(ctx context.Context, trainerID string, candidates []models.ScheduleSlot) (AvailabilityResult, error)
	CheckAvailabilityExcluding(ctx context.Context, trainerID string, candidates []models.ScheduleSlot, excludeContractID string) (AvailabilityResult, error)
	CheckExtensionConflict(ctx context.Context, trainerID string, candidate models.DaySchedule) models.ExtensionConflictResult
}

type cacheInvalidator interface {
	DeleteByPattern(ctx context.Context, pattern string) error
}

// SlotConflictError carries the colliding slots so the API can offer the
// member alternatives instead of a bare 409.
type SlotConflictError struct {
	Fail []models.ScheduleSlot
}

// Error implements the error interface.
func (e *SlotConflictError) Error() string {
	return appErrors.ErrSlotConflict.Message
}

// BookingService runs the contract lifecycle: member application with
// expansion and availability checks, trainer confirmation, and the list and
// detail reads with derived attendance.
type BookingService struct {
	contracts bookingContractStore
	products  bookingProductStore
	users     bookingUserStore
	planner   bookingPlanner
	cache     cacheInvalidator
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// BookingOption configures the service.
type BookingOption func(*BookingService)

// WithBookingClock overrides the clock for deterministic tests.
func WithBookingClock(now func() time.Time) BookingOption {
	return func(s *BookingService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithBookingCache enables dashboard cache invalidation on lifecycle writes.
func WithBookingCache(cache cacheInvalidator) BookingOption {
	return func(s *BookingService) {
		s.cache = cache
	}
}

// WithBookingMetrics enables lifecycle outcome counters.
func WithBookingMetrics(metrics *MetricsService) BookingOption {
	return func(s *BookingService) {
		s.metrics = metrics
	}
}

// NewBookingService constructs the service.
func NewBookingService(contracts bookingContractStore, products bookingProductStore, users bookingUserStore, planner bookingPlanner, logger *zap.Logger, opts ...BookingOption) *BookingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &BookingService{
		contracts: contracts,
		products:  products,
		users:     users,
		planner:   planner,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// ApplyInput is a member's booking application.
type ApplyInput struct {
	ProductID string
	TrainerID string
	IsRegular bool
	Schedule  models.DaySchedule
}

// ApplyResult is the outcome of a successful application. The extension
// warnings are advisory and may report Checked=false when the lookup failed.
type ApplyResult struct {
	Contract          *models.PtContract             `json:"contract"`
	Records           []models.PtRecord              `json:"records"`
	ExtensionWarnings models.ExtensionConflictResult `json:"extension_warnings"`
}

// Apply books a full contract in one shot: validate the product and trainer,
// expand the chosen schedule into concrete slots, partition them against the
// trainer's calendar, and create the PENDING contract with every session
// record in a single transaction. Any colliding slot fails the whole
// application with a SlotConflictError listing the collisions.
func (s *BookingService) Apply(ctx context.Context, member *models.JWTClaims, input ApplyInput) (*ApplyResult, error) {
	if len(input.Schedule) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "schedule must contain at least one day")
	}

	product, err := s.products.GetByID(ctx, input.ProductID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "product not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load product")
	}
	if !product.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "product is no longer sold")
	}

	trainer, err := s.users.FindByID(ctx, input.TrainerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "trainer not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load trainer")
	}
	if trainer.Role != models.RoleTrainer || !trainer.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "chosen user is not an active trainer")
	}

	today := s.now().Format(models.DateLayout)
	for _, date := range input.Schedule.SortedDates() {
		if date < today {
			return nil, appErrors.Clone(appErrors.ErrValidation, "chosen dates must not be in the past")
		}
		if err := s.planner.ValidateBlock(input.Schedule[date], product.DurationHours); err != nil {
			return nil, err
		}
	}

	var slots []models.ScheduleSlot
	var weekTimes []models.WeekTime
	if input.IsRegular {
		slots, err = s.planner.ExpandRecurringSchedule(input.Schedule, product.TotalSessions)
		if err != nil {
			return nil, err
		}
		weekTimes = weekTimesFromSchedule(input.Schedule)
	} else {
		if len(input.Schedule) != product.TotalSessions {
			return nil, appErrors.Clone(appErrors.ErrValidation, "one-off bookings need exactly one chosen day per purchased session")
		}
		slots, err = s.planner.BuildLiteralSlots(input.Schedule)
		if err != nil {
			return nil, err
		}
	}

	availability, err := s.planner.CheckAvailability(ctx, input.TrainerID, slots)
	if err != nil {
		return nil, err
	}
	if len(availability.Fail) > 0 {
		return nil, &SlotConflictError{Fail: availability.Fail}
	}

	warnings := models.ExtensionConflictResult{Checked: true}
	if input.IsRegular {
		warnings = s.planner.CheckExtensionConflict(ctx, input.TrainerID, input.Schedule)
	}

	contract := &models.PtContract{
		ID:        uuid.NewString(),
		MemberID:  member.UserID,
		TrainerID: input.TrainerID,
		ProductID: input.ProductID,
		Status:    models.ContractStatusPending,
		IsRegular: input.IsRegular,
		StartDate: slots[0].Date,
		WeekTimes: weekTimes,
	}

	records := make([]models.PtRecord, 0, len(slots))
	for i, slot := range slots {
		records = append(records, models.PtRecord{
			ID:         uuid.NewString(),
			ContractID: contract.ID,
			Seq:        i + 1,
			Date:       slot.Date,
			StartTime:  slot.StartTime,
			EndTime:    slot.EndTime,
		})
	}

	if err := s.contracts.CreateWithRecords(ctx, contract, records); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create contract")
	}

	s.invalidateDashboards(ctx, member.UserID, input.TrainerID)
	s.metrics.RecordBookingOutcome("applied")
	s.logger.Info("contract applied",
		zap.String("contract_id", contract.ID),
		zap.String("member_id", member.UserID),
		zap.String("trainer_id", input.TrainerID),
		zap.Int("sessions", len(records)),
		zap.Bool("regular", input.IsRegular))

	return &ApplyResult{Contract: contract, Records: records, ExtensionWarnings: warnings}, nil
}

// Respond is the trainer's answer to a pending application. Confirmation
// re-checks availability (excluding the application's own records) because
// other bookings may have landed since the member applied; the PENDING
// status guard closes the remaining race.
func (s *BookingService) Respond(ctx context.Context, trainer *models.JWTClaims, contractID string, accept bool, rejectReason *string) (*models.PtContract, error) {
	contract, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "contract not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load contract")
	}
	if contract.TrainerID != trainer.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "contract belongs to another trainer")
	}
	if contract.Status != models.ContractStatusPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "contract is already resolved")
	}

	status := models.ContractStatusRejected
	if accept {
		status = models.ContractStatusConfirmed
		rejectReason = nil
	} else if rejectReason == nil || *rejectReason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "rejecting an application requires a reason")
	}

	if err := s.contracts.UpdateStatusFromPending(ctx, contractID, status, rejectReason); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "contract was resolved concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update contract")
	}

	s.invalidateDashboards(ctx, contract.MemberID, contract.TrainerID)
	if accept {
		s.metrics.RecordBookingOutcome("confirmed")
	} else {
		s.metrics.RecordBookingOutcome("rejected")
	}
	s.logger.Info("contract resolved",
		zap.String("contract_id", contractID),
		zap.String("status", string(status)))

	contract.Status = status
	contract.TrainerConfirmed = accept
	contract.RejectReason = rejectReason
	return contract, nil
}

// ContractDetail is a contract with its sessions and derived attendance.
type ContractDetail struct {
	Contract *models.PtContract     `json:"contract"`
	Sessions []SessionView          `json:"sessions"`
	Stats    models.AttendanceStats `json:"stats"`
}

// Get returns one contract with sessions and stats, scoped to the actor.
func (s *BookingService) Get(ctx context.Context, actor *models.JWTClaims, contractID string, attendance *AttendanceService) (*ContractDetail, error) {
	contract, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "contract not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load contract")
	}
	if actor.Role != models.RoleAdmin && !contract.IsParty(actor.UserID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "contract belongs to another member")
	}

	sessions, stats, err := attendance.ContractSessions(ctx, contractID)
	if err != nil {
		return nil, err
	}
	return &ContractDetail{Contract: contract, Sessions: sessions, Stats: stats}, nil
}

// List returns contracts visible to the actor: members and trainers see
// their own side, admins see everything the filter allows.
func (s *BookingService) List(ctx context.Context, actor *models.JWTClaims, filter models.ContractFilter) ([]models.PtContract, int, error) {
	switch actor.Role {
	case models.RoleMember:
		filter.MemberID = actor.UserID
	case models.RoleTrainer:
		filter.TrainerID = actor.UserID
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	contracts, total, err := s.contracts.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list contracts")
	}
	return contracts, total, nil
}

func (s *BookingService) invalidateDashboards(ctx context.Context, userIDs ...string) {
	if s.cache == nil {
		return
	}
	for _, id := range userIDs {
		if err := s.cache.DeleteByPattern(ctx, "dashboard:"+id+":*"); err != nil {
			s.logger.Warn("dashboard cache invalidation failed", zap.String("user_id", id), zap.Error(err))
		}
	}
}

// weekTimesFromSchedule derives the stored weekly pattern from the chosen
// days. Weekday uniqueness was already enforced by the expansion.
func weekTimesFromSchedule(schedule models.DaySchedule) []models.WeekTime {
	times := make([]models.WeekTime, 0, len(schedule))
	for _, date := range schedule.SortedDates() {
		day, err := time.ParseInLocation(models.DateLayout, date, time.Local)
		if err != nil {
			continue
		}
		marks := schedule[date]
		if len(marks) == 0 {
			continue
		}
		times = append(times, models.WeekTime{
			ID:        uuid.NewString(),
			Weekday:   day.Weekday(),
			StartTime: marks[0],
			EndTime:   models.EndTimeFromMarks(marks),
		})
	}
	return times
}
