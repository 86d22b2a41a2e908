package models

import "time"

// ContractStatus tracks the lifecycle of a PT contract.
type ContractStatus string

const (
	ContractStatusPending   ContractStatus = "PENDING"
	ContractStatusConfirmed ContractStatus = "CONFIRMED"
	ContractStatusRejected  ContractStatus = "REJECTED"
	ContractStatusFinished  ContractStatus = "FINISHED"
)

// Valid returns true when the status is a supported value.
func (s ContractStatus) Valid() bool {
	switch s {
	case ContractStatusPending, ContractStatusConfirmed, ContractStatusRejected, ContractStatusFinished:
		return true
	default:
		return false
	}
}

// PtContract links one member, one trainer, and a product purchase. A
// contract owns one PtRecord per scheduled session, created at application
// time and never reordered.
type PtContract struct {
	ID               string         `db:"id" json:"id"`
	MemberID         string         `db:"member_id" json:"member_id"`
	TrainerID        string         `db:"trainer_id" json:"trainer_id"`
	ProductID        string         `db:"product_id" json:"product_id"`
	Status           ContractStatus `db:"status" json:"status"`
	TrainerConfirmed bool           `db:"trainer_confirmed" json:"trainer_confirmed"`
	IsRegular        bool           `db:"is_regular" json:"is_regular"`
	StartDate        string         `db:"start_date" json:"start_date"`
	RejectReason     *string        `db:"reject_reason" json:"reject_reason,omitempty"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updated_at"`

	WeekTimes []WeekTime `db:"-" json:"week_times,omitempty"`
}

// IsParty reports whether the given user is the member or trainer side of
// the contract.
func (c *PtContract) IsParty(userID string) bool {
	return c != nil && (c.MemberID == userID || c.TrainerID == userID)
}

// ContractFilter describes query params for listing contracts.
type ContractFilter struct {
	MemberID  string
	TrainerID string
	Status    ContractStatus
	IsRegular *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// ExtensionConflict describes one near-complete recurring contract whose
// weekly pattern collides with a new application.
type ExtensionConflict struct {
	ContractID       string     `json:"contract_id"`
	MemberName       string     `json:"member_name"`
	RemainingCount   int        `json:"remaining_count"`
	LastSessionDate  string     `json:"last_session_date"`
	CollidingTimes   []WeekTime `json:"colliding_times"`
	CompletionRatio  float64    `json:"completion_ratio"`
	TotalSessions    int        `json:"total_sessions"`
	AttendedSessions int        `json:"attended_sessions"`
}

// ExtensionConflictResult is the advisory outcome of the extension check.
// Checked distinguishes "checked, clean" from "check failed": when the
// lookup errors the result is Checked=false with no conflicts, and the
// booking proceeds regardless.
type ExtensionConflictResult struct {
	Checked   bool                `json:"checked"`
	Conflicts []ExtensionConflict `json:"conflicts,omitempty"`
}

// HasConflict reports whether any near-complete contract collides.
func (r ExtensionConflictResult) HasConflict() bool {
	return r.Checked && len(r.Conflicts) > 0
}
