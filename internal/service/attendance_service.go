package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/fitbridge/pt-booking-api/internal/models"
	appErrors "github.com/fitbridge/pt-booking-api/pkg/errors"
)

// DeriveAttendance computes a session's state from evidence instead of a
// stored flag. A session stays RESERVED until its scheduled start instant,
// exclusive, even when the trainer has already recorded exercises ahead of
// time. Past the start, exercise items mean the session ran and no items
// means a no-show.
func DeriveAttendance(rec models.PtRecord, now time.Time) models.AttendanceStatus {
	start, err := rec.Slot().StartInstant()
	if err != nil || now.Before(start) {
		return models.AttendanceReserved
	}
	if rec.ExerciseCount > 0 {
		return models.AttendanceAttended
	}
	return models.AttendanceAbsent
}

// ComputeAttendanceStats folds derived states across a contract's records.
// The rate denominator excludes RESERVED sessions so a fresh contract does
// not start at 0%. NextSession is the still-reserved record with the earliest
// date and start time; an approved schedule change can move a slot out of seq
// order, so seq position is not trusted here.
func ComputeAttendanceStats(records []models.PtRecord, now time.Time) models.AttendanceStats {
	stats := models.AttendanceStats{}
	for i := range records {
		switch DeriveAttendance(records[i], now) {
		case models.AttendanceAttended:
			stats.Attended++
		case models.AttendanceAbsent:
			stats.Absent++
		case models.AttendanceReserved:
			stats.Reserved++
			rec := records[i]
			if stats.NextSession == nil ||
				rec.Date < stats.NextSession.Date ||
				(rec.Date == stats.NextSession.Date && rec.StartTime < stats.NextSession.StartTime) {
				stats.NextSession = &rec
			}
		}
	}
	stats.CompletedSessions = stats.Attended + stats.Absent
	if stats.CompletedSessions > 0 {
		stats.AttendanceRate = float64(stats.Attended) / float64(stats.CompletedSessions)
	}
	return stats
}

type attendanceRecordStore interface {
	GetByID(ctx context.Context, id string) (*models.TrainerRecord, error)
	ListByContract(ctx context.Context, contractID string) ([]models.PtRecord, error)
	ListByTrainerRange(ctx context.Context, trainerID, fromDate, toDate string) ([]models.TrainerRecord, error)
}

// SessionView is a record decorated with its derived attendance state.
type SessionView struct {
	models.PtRecord
	Status models.AttendanceStatus `json:"status"`
}

// TrainerSessionView is a trainer-calendar entry with its derived state.
type TrainerSessionView struct {
	models.TrainerRecord
	Status models.AttendanceStatus `json:"status"`
}

// AttendanceService answers "what happened with this session" questions:
// per-contract stats and the trainer's calendar.
type AttendanceService struct {
	records attendanceRecordStore
	logger  *zap.Logger
	now     func() time.Time
}

// AttendanceOption configures the service.
type AttendanceOption func(*AttendanceService)

// WithAttendanceClock overrides the clock for deterministic tests.
func WithAttendanceClock(now func() time.Time) AttendanceOption {
	return func(s *AttendanceService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewAttendanceService constructs the service.
func NewAttendanceService(records attendanceRecordStore, logger *zap.Logger, opts ...AttendanceOption) *AttendanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &AttendanceService{records: records, logger: logger, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// ContractSessions returns a contract's records in session order, each with
// its derived state, plus the aggregate stats.
func (s *AttendanceService) ContractSessions(ctx context.Context, contractID string) ([]SessionView, models.AttendanceStats, error) {
	records, err := s.records.ListByContract(ctx, contractID)
	if err != nil {
		return nil, models.AttendanceStats{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sessions")
	}
	now := s.now()
	views := make([]SessionView, 0, len(records))
	for _, rec := range records {
		views = append(views, SessionView{PtRecord: rec, Status: DeriveAttendance(rec, now)})
	}
	return views, ComputeAttendanceStats(records, now), nil
}

// TrainerCalendar returns the trainer's booked sessions in a date range,
// sorted by day and start time.
func (s *AttendanceService) TrainerCalendar(ctx context.Context, trainerID, fromDate, toDate string) ([]TrainerSessionView, error) {
	for _, date := range []string{fromDate, toDate} {
		if _, err := time.ParseInLocation(models.DateLayout, date, time.Local); err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "dates must be formatted YYYY-MM-DD")
		}
	}
	if toDate < fromDate {
		return nil, appErrors.Clone(appErrors.ErrValidation, "range end precedes range start")
	}

	records, err := s.records.ListByTrainerRange(ctx, trainerID, fromDate, toDate)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load trainer calendar")
	}

	now := s.now()
	views := make([]TrainerSessionView, 0, len(records))
	for _, rec := range records {
		views = append(views, TrainerSessionView{TrainerRecord: rec, Status: DeriveAttendance(rec.PtRecord, now)})
	}
	sort.SliceStable(views, func(i, j int) bool {
		if views[i].Date != views[j].Date {
			return views[i].Date < views[j].Date
		}
		return views[i].StartTime < views[j].StartTime
	})
	return views, nil
}

// Session returns one record with its derived state, scoped to the actor.
func (s *AttendanceService) Session(ctx context.Context, actor *models.JWTClaims, recordID string) (*TrainerSessionView, error) {
	rec, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if actor.Role != models.RoleAdmin && actor.UserID != rec.TrainerID && actor.UserID != rec.MemberID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "session belongs to another member")
	}
	return &TrainerSessionView{TrainerRecord: *rec, Status: DeriveAttendance(rec.PtRecord, s.now())}, nil
}
