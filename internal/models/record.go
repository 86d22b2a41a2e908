package models

import "time"

// AttendanceStatus is the derived (never stored) state of a booked session.
type AttendanceStatus string

const (
	AttendanceReserved AttendanceStatus = "RESERVED"
	AttendanceAttended AttendanceStatus = "ATTENDED"
	AttendanceAbsent   AttendanceStatus = "ABSENT"
)

// PtRecord is one booked session. It owns exactly one schedule slot and
// zero or more exercise items; only the existence of items matters for
// attendance derivation. Records are created once at application time and
// never deleted.
type PtRecord struct {
	ID         string    `db:"id" json:"id"`
	ContractID string    `db:"contract_id" json:"contract_id"`
	Seq        int       `db:"seq" json:"seq"`
	Date       string    `db:"date" json:"date"`
	StartTime  TimeOfDay `db:"start_time" json:"start_time"`
	EndTime    TimeOfDay `db:"end_time" json:"end_time"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`

	// ExerciseCount is loaded alongside the record for state derivation.
	ExerciseCount int `db:"exercise_count" json:"exercise_count"`
}

// Slot returns the record's persisted schedule slot.
func (r *PtRecord) Slot() ScheduleSlot {
	return ScheduleSlot{Date: r.Date, StartTime: r.StartTime, EndTime: r.EndTime}
}

// TrainerRecord joins a record with its contract's trainer and member for
// calendar and conflict queries.
type TrainerRecord struct {
	PtRecord
	TrainerID      string         `db:"trainer_id" json:"trainer_id"`
	MemberID       string         `db:"member_id" json:"member_id"`
	MemberName     string         `db:"member_name" json:"member_name"`
	ContractStatus ContractStatus `db:"contract_status" json:"contract_status"`
}

// ExerciseItem is one recorded exercise against a session. Its content is
// opaque to the scheduling engine.
type ExerciseItem struct {
	ID       string  `db:"id" json:"id"`
	RecordID string  `db:"record_id" json:"record_id"`
	Name     string  `db:"name" json:"name"`
	SetCount int     `db:"set_count" json:"set_count"`
	RepCount int     `db:"rep_count" json:"rep_count"`
	Weight   float64 `db:"weight" json:"weight"`
	Notes    *string `db:"notes" json:"notes,omitempty"`
}

// AttendanceStats aggregates derived states across a contract's records.
// Rate excludes RESERVED sessions from its denominator.
type AttendanceStats struct {
	Attended          int       `json:"attended"`
	Absent            int       `json:"absent"`
	Reserved          int       `json:"reserved"`
	CompletedSessions int       `json:"completed_sessions"`
	AttendanceRate    float64   `json:"attendance_rate"`
	NextSession       *PtRecord `json:"next_session,omitempty"`
}
