package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fitbridge/pt-booking-api/internal/models"
	"github.com/fitbridge/pt-booking-api/pkg/config"
	appErrors "github.com/fitbridge/pt-booking-api/pkg/errors"
)

type plannerRecordStore interface {
	ListByTrainerAndDates(ctx context.Context, trainerID string, dates []string) ([]models.TrainerRecord, error)
	ListByContract(ctx context.Context, contractID string) ([]models.PtRecord, error)
}

type plannerContractStore interface {
	ListRegularConfirmedByTrainer(ctx context.Context, trainerID string) ([]models.PtContract, error)
}

type plannerProductStore interface {
	GetByID(ctx context.Context, id string) (*models.PtProduct, error)
}

type plannerUserStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// AvailabilityResult partitions candidate slots into bookable and colliding
// sets. The partition is advisory: it is computed before the booking write
// and is not atomic with it, so the storage layer's uniqueness constraint
// remains the real double-booking guard.
type AvailabilityResult struct {
	Success []models.ScheduleSlot `json:"success"`
	Fail    []models.ScheduleSlot `json:"fail"`
}

// SchedulePlannerService turns chosen days and times into concrete session
// slots: recurring expansion, availability partitioning, and the
// near-completion extension warning.
type SchedulePlannerService struct {
	records   plannerRecordStore
	contracts plannerContractStore
	products  plannerProductStore
	users     plannerUserStore
	cfg       config.BookingConfig
	logger    *zap.Logger
	now       func() time.Time
}

// PlannerOption configures the service.
type PlannerOption func(*SchedulePlannerService)

// WithPlannerClock overrides the clock for deterministic tests.
func WithPlannerClock(now func() time.Time) PlannerOption {
	return func(s *SchedulePlannerService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSchedulePlannerService constructs the planner.
func NewSchedulePlannerService(records plannerRecordStore, contracts plannerContractStore, products plannerProductStore, users plannerUserStore, cfg config.BookingConfig, logger *zap.Logger, opts ...PlannerOption) *SchedulePlannerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.OpenTime == 0 && cfg.CloseTime == 0 {
		cfg.OpenTime = 600
		cfg.CloseTime = 2300
	}
	if cfg.ExtensionWarnRatio <= 0 {
		cfg.ExtensionWarnRatio = 0.8
	}
	svc := &SchedulePlannerService{
		records:   records,
		contracts: contracts,
		products:  products,
		users:     users,
		cfg:       cfg,
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

// weekTemplate is one chosen date interpreted as a weekday+time pattern.
type weekTemplate struct {
	anchor time.Time
	start  models.TimeOfDay
	end    models.TimeOfDay
}

// ExpandRecurringSchedule generates totalCount concrete slots from a weekly
// template. The earliest chosen date is the week-zero anchor; within each
// week the patterns fire in chosen-date order, which fixes the session
// numbering shown to users. Two chosen dates on the same weekday would
// silently double-book that weekday, so ambiguous input is rejected here
// instead of deduplicated.
func (s *SchedulePlannerService) ExpandRecurringSchedule(pattern models.DaySchedule, totalCount int) ([]models.ScheduleSlot, error) {
	if totalCount <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "session count must be positive")
	}
	if len(pattern) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "schedule must contain at least one day")
	}

	templates := make([]weekTemplate, 0, len(pattern))
	seenWeekdays := make(map[time.Weekday]bool)
	for _, date := range pattern.SortedDates() {
		day, err := time.ParseInLocation(models.DateLayout, date, time.Local)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid date %q", date))
		}
		start, end, err := blockFromMarks(pattern[date])
		if err != nil {
			return nil, err
		}
		if seenWeekdays[day.Weekday()] {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("two chosen dates fall on the same weekday (%s)", day.Weekday()))
		}
		seenWeekdays[day.Weekday()] = true
		templates = append(templates, weekTemplate{anchor: day, start: start, end: end})
	}

	slots := make([]models.ScheduleSlot, 0, totalCount)
	for week := 0; len(slots) < totalCount; week++ {
		for _, tpl := range templates {
			if len(slots) == totalCount {
				break
			}
			date := tpl.anchor.AddDate(0, 0, 7*week)
			slots = append(slots, models.ScheduleSlot{
				Date:      date.Format(models.DateLayout),
				StartTime: tpl.start,
				EndTime:   tpl.end,
			})
		}
	}
	return slots, nil
}

// BuildLiteralSlots converts a non-recurring schedule into one slot per
// chosen date, in date order.
func (s *SchedulePlannerService) BuildLiteralSlots(pattern models.DaySchedule) ([]models.ScheduleSlot, error) {
	slots := make([]models.ScheduleSlot, 0, len(pattern))
	for _, date := range pattern.SortedDates() {
		if _, err := time.ParseInLocation(models.DateLayout, date, time.Local); err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid date %q", date))
		}
		start, end, err := blockFromMarks(pattern[date])
		if err != nil {
			return nil, err
		}
		slots = append(slots, models.ScheduleSlot{Date: date, StartTime: start, EndTime: end})
	}
	return slots, nil
}

// ValidateBlock checks that the chosen marks form exactly one contiguous
// full-duration block inside the gym's bookable hours.
func (s *SchedulePlannerService) ValidateBlock(marks []models.TimeOfDay, durationHours int) error {
	if len(marks) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "no time marks chosen")
	}
	expected := models.ExpandToSlotLength(marks[0], durationHours, models.TimeOfDay(s.cfg.OpenTime), models.TimeOfDay(s.cfg.CloseTime))
	if len(expected) != durationHours*2 {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("a %d-hour session starting at %s does not fit the bookable hours", durationHours, marks[0]))
	}
	if len(marks) != len(expected) {
		return appErrors.Clone(appErrors.ErrValidation, "chosen marks do not cover the full session length")
	}
	for i := range marks {
		if marks[i] != expected[i] {
			return appErrors.Clone(appErrors.ErrValidation, "chosen marks must form one contiguous block")
		}
	}
	return nil
}

// CheckAvailability partitions candidates against the trainer's existing
// PENDING and CONFIRMED bookings, loaded in one batched lookup.
func (s *SchedulePlannerService) CheckAvailability(ctx context.Context, trainerID string, candidates []models.ScheduleSlot) (AvailabilityResult, error) {
	return s.partition(ctx, trainerID, candidates, "")
}

// CheckAvailabilityExcluding ignores one contract's own records, used when a
// trainer confirms the application that created those records.
func (s *SchedulePlannerService) CheckAvailabilityExcluding(ctx context.Context, trainerID string, candidates []models.ScheduleSlot, excludeContractID string) (AvailabilityResult, error) {
	return s.partition(ctx, trainerID, candidates, excludeContractID)
}

func (s *SchedulePlannerService) partition(ctx context.Context, trainerID string, candidates []models.ScheduleSlot, excludeContractID string) (AvailabilityResult, error) {
	result := AvailabilityResult{
		Success: make([]models.ScheduleSlot, 0, len(candidates)),
		Fail:    make([]models.ScheduleSlot, 0),
	}
	if len(candidates) == 0 {
		return result, nil
	}

	seen := make(map[string]bool)
	dates := make([]string, 0, len(candidates))
	for _, slot := range candidates {
		if !seen[slot.Date] {
			seen[slot.Date] = true
			dates = append(dates, slot.Date)
		}
	}

	existing, err := s.records.ListByTrainerAndDates(ctx, trainerID, dates)
	if err != nil {
		return AvailabilityResult{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load trainer bookings")
	}

	byDate := make(map[string][]models.TrainerRecord)
	for _, rec := range existing {
		if excludeContractID != "" && rec.ContractID == excludeContractID {
			continue
		}
		byDate[rec.Date] = append(byDate[rec.Date], rec)
	}

	for _, slot := range candidates {
		conflict := false
		for _, rec := range byDate[slot.Date] {
			if models.Overlaps(slot.StartTime, slot.EndTime, rec.StartTime, rec.EndTime) {
				conflict = true
				break
			}
		}
		if conflict {
			result.Fail = append(result.Fail, slot)
		} else {
			result.Success = append(result.Success, slot)
		}
	}
	return result, nil
}

// CheckExtensionConflict warns when a new application's weekly pattern would
// collide with the remaining slots of the trainer's near-complete recurring
// contracts: members extending a finished package usually want to keep their
// time, and a new booking can take it first. The check is advisory and
// fail-open: any lookup error is logged and reported as Checked=false, never
// blocking the booking. New marks are compared with an assumed one-hour
// width.
func (s *SchedulePlannerService) CheckExtensionConflict(ctx context.Context, trainerID string, candidate models.DaySchedule) models.ExtensionConflictResult {
	contracts, err := s.contracts.ListRegularConfirmedByTrainer(ctx, trainerID)
	if err != nil {
		s.logger.Warn("extension conflict lookup failed", zap.String("trainer_id", trainerID), zap.Error(err))
		return models.ExtensionConflictResult{Checked: false}
	}

	candidateTimes := make([]models.WeekTime, 0, len(candidate))
	for date, marks := range candidate {
		day, err := time.ParseInLocation(models.DateLayout, date, time.Local)
		if err != nil || len(marks) == 0 {
			continue
		}
		start := marks[0]
		candidateTimes = append(candidateTimes, models.WeekTime{
			Weekday:   day.Weekday(),
			StartTime: start,
			EndTime:   start + 100,
		})
	}

	now := s.now()
	conflicts := make([]models.ExtensionConflict, 0)
	for _, contract := range contracts {
		conflict, ok := s.extensionConflictFor(ctx, contract, candidateTimes, now)
		if ok {
			conflicts = append(conflicts, conflict)
		}
	}
	return models.ExtensionConflictResult{Checked: true, Conflicts: conflicts}
}

func (s *SchedulePlannerService) extensionConflictFor(ctx context.Context, contract models.PtContract, candidateTimes []models.WeekTime, now time.Time) (models.ExtensionConflict, bool) {
	product, err := s.products.GetByID(ctx, contract.ProductID)
	if err != nil || product.TotalSessions == 0 {
		if err != nil {
			s.logger.Warn("extension check skipped contract", zap.String("contract_id", contract.ID), zap.Error(err))
		}
		return models.ExtensionConflict{}, false
	}
	records, err := s.records.ListByContract(ctx, contract.ID)
	if err != nil {
		s.logger.Warn("extension check skipped contract", zap.String("contract_id", contract.ID), zap.Error(err))
		return models.ExtensionConflict{}, false
	}

	attended := 0
	lastDate := ""
	for _, rec := range records {
		if DeriveAttendance(rec, now) == models.AttendanceAttended {
			attended++
		}
		if rec.Date > lastDate {
			lastDate = rec.Date
		}
	}
	ratio := float64(attended) / float64(product.TotalSessions)
	if ratio < s.cfg.ExtensionWarnRatio {
		return models.ExtensionConflict{}, false
	}

	colliding := make([]models.WeekTime, 0)
	for _, wt := range contract.WeekTimes {
		for _, cand := range candidateTimes {
			if wt.Weekday == cand.Weekday && models.Overlaps(wt.StartTime, wt.EndTime, cand.StartTime, cand.EndTime) {
				colliding = append(colliding, wt)
				break
			}
		}
	}
	if len(colliding) == 0 {
		return models.ExtensionConflict{}, false
	}

	memberName := ""
	if member, err := s.users.FindByID(ctx, contract.MemberID); err == nil {
		memberName = member.FullName
	}

	return models.ExtensionConflict{
		ContractID:       contract.ID,
		MemberName:       memberName,
		RemainingCount:   product.TotalSessions - attended,
		LastSessionDate:  lastDate,
		CollidingTimes:   colliding,
		CompletionRatio:  ratio,
		TotalSessions:    product.TotalSessions,
		AttendedSessions: attended,
	}, true
}

// blockFromMarks validates ordered contiguous half-hour marks and returns
// the block's start and end.
func blockFromMarks(marks []models.TimeOfDay) (models.TimeOfDay, models.TimeOfDay, error) {
	if len(marks) == 0 {
		return 0, 0, appErrors.Clone(appErrors.ErrValidation, "no time marks chosen")
	}
	for i, mark := range marks {
		if !mark.Valid() {
			return 0, 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("time %d is not on a half-hour boundary", mark))
		}
		if i > 0 && mark != marks[i-1].AddHalfHour() {
			return 0, 0, appErrors.Clone(appErrors.ErrValidation, "chosen marks must form one contiguous block")
		}
	}
	return marks[0], models.EndTimeFromMarks(marks), nil
}
