package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fitbridge/pt-booking-api/internal/models"
	appErrors "github.com/fitbridge/pt-booking-api/pkg/errors"
)

type dashboardContractStore interface {
	List(ctx context.Context, filter models.ContractFilter) ([]models.PtContract, int, error)
}

type dashboardRecordStore interface {
	ListByContract(ctx context.Context, contractID string) ([]models.PtRecord, error)
	ListByTrainerRange(ctx context.Context, trainerID, fromDate, toDate string) ([]models.TrainerRecord, error)
}

// MemberDashboard summarises a member's active contracts in one payload.
type MemberDashboard struct {
	Contracts   []MemberDashboardContract `json:"contracts"`
	NextSession *models.PtRecord          `json:"next_session,omitempty"`
	GeneratedAt time.Time                 `json:"generated_at"`
}

// MemberDashboardContract is one contract with its derived progress.
type MemberDashboardContract struct {
	Contract models.PtContract      `json:"contract"`
	Stats    models.AttendanceStats `json:"stats"`
}

// TrainerDashboard is the trainer's day-at-a-glance payload.
type TrainerDashboard struct {
	TodaySessions       []TrainerSessionView `json:"today_sessions"`
	WeekSessionCount    int                  `json:"week_session_count"`
	PendingApplications int                  `json:"pending_applications"`
	GeneratedAt         time.Time            `json:"generated_at"`
}

// DashboardService assembles cached summary payloads. Cache keys are scoped
// per user so booking writes can invalidate with a dashboard:<user>:* sweep.
type DashboardService struct {
	contracts dashboardContractStore
	records   dashboardRecordStore
	cache     *CacheService
	cacheTTL  time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// DashboardOption configures the service.
type DashboardOption func(*DashboardService)

// WithDashboardClock overrides the clock for deterministic tests.
func WithDashboardClock(now func() time.Time) DashboardOption {
	return func(s *DashboardService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewDashboardService constructs the service.
func NewDashboardService(contracts dashboardContractStore, records dashboardRecordStore, cache *CacheService, cacheTTL time.Duration, logger *zap.Logger, opts ...DashboardOption) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	svc := &DashboardService{
		contracts: contracts,
		records:   records,
		cache:     cache,
		cacheTTL:  cacheTTL,
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

// MemberDashboard returns the member's contracts with derived progress and
// the single soonest upcoming session across all of them.
func (s *DashboardService) MemberDashboard(ctx context.Context, memberID string) (*MemberDashboard, error) {
	cacheKey := "dashboard:" + memberID + ":member"
	var cached MemberDashboard
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return &cached, nil
	}

	contracts, _, err := s.contracts.List(ctx, models.ContractFilter{MemberID: memberID, Page: 1, PageSize: 100})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load contracts")
	}

	now := s.now()
	dashboard := &MemberDashboard{
		Contracts:   make([]MemberDashboardContract, 0, len(contracts)),
		GeneratedAt: now.UTC(),
	}
	for _, contract := range contracts {
		if contract.Status == models.ContractStatusRejected {
			continue
		}
		records, err := s.records.ListByContract(ctx, contract.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sessions")
		}
		stats := ComputeAttendanceStats(records, now)
		dashboard.Contracts = append(dashboard.Contracts, MemberDashboardContract{Contract: contract, Stats: stats})
		if stats.NextSession != nil && contract.Status == models.ContractStatusConfirmed {
			if dashboard.NextSession == nil || earlierSession(stats.NextSession, dashboard.NextSession) {
				dashboard.NextSession = stats.NextSession
			}
		}
	}

	if err := s.cache.Set(ctx, cacheKey, dashboard, s.cacheTTL); err != nil {
		s.logger.Debug("dashboard cache write failed", zap.String("member_id", memberID), zap.Error(err))
	}
	return dashboard, nil
}

// TrainerDashboard returns today's calendar plus week and pending counters.
func (s *DashboardService) TrainerDashboard(ctx context.Context, trainerID string) (*TrainerDashboard, error) {
	cacheKey := "dashboard:" + trainerID + ":trainer"
	var cached TrainerDashboard
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return &cached, nil
	}

	now := s.now()
	today := now.Format(models.DateLayout)
	weekEnd := now.AddDate(0, 0, 6).Format(models.DateLayout)

	weekRecords, err := s.records.ListByTrainerRange(ctx, trainerID, today, weekEnd)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load trainer calendar")
	}

	dashboard := &TrainerDashboard{
		TodaySessions:    make([]TrainerSessionView, 0),
		WeekSessionCount: len(weekRecords),
		GeneratedAt:      now.UTC(),
	}
	for _, rec := range weekRecords {
		if rec.Date == today {
			dashboard.TodaySessions = append(dashboard.TodaySessions, TrainerSessionView{
				TrainerRecord: rec,
				Status:        DeriveAttendance(rec.PtRecord, now),
			})
		}
	}

	_, pending, err := s.contracts.List(ctx, models.ContractFilter{
		TrainerID: trainerID,
		Status:    models.ContractStatusPending,
		Page:      1,
		PageSize:  1,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count pending applications")
	}
	dashboard.PendingApplications = pending

	if err := s.cache.Set(ctx, cacheKey, dashboard, s.cacheTTL); err != nil {
		s.logger.Debug("dashboard cache write failed", zap.String("trainer_id", trainerID), zap.Error(err))
	}
	return dashboard, nil
}

func earlierSession(a, b *models.PtRecord) bool {
	if a.Date != b.Date {
		return a.Date < b.Date
	}
	return a.StartTime < b.StartTime
}
