package models

import "time"

// ChangeRequestStatus is the stored workflow state of a schedule-change
// request. EXPIRED is never written; it is derived at read time.
type ChangeRequestStatus string

const (
	ChangeRequestPending   ChangeRequestStatus = "PENDING"
	ChangeRequestApproved  ChangeRequestStatus = "APPROVED"
	ChangeRequestRejected  ChangeRequestStatus = "REJECTED"
	ChangeRequestCancelled ChangeRequestStatus = "CANCELLED"
	ChangeRequestExpired   ChangeRequestStatus = "EXPIRED"
)

// Terminal reports whether the stored status allows no further transition.
func (s ChangeRequestStatus) Terminal() bool {
	switch s {
	case ChangeRequestApproved, ChangeRequestRejected, ChangeRequestCancelled:
		return true
	default:
		return false
	}
}

// ScheduleChangeRequest proposes moving one already-booked slot. Approval is
// the only path by which a PtRecord's slot mutates after creation.
type ScheduleChangeRequest struct {
	ID             string              `db:"id" json:"id"`
	RecordID       string              `db:"record_id" json:"record_id"`
	RequesterID    string              `db:"requester_id" json:"requester_id"`
	RequestedDate  string              `db:"requested_date" json:"requested_date"`
	RequestedStart TimeOfDay           `db:"requested_start" json:"requested_start"`
	RequestedEnd   TimeOfDay           `db:"requested_end" json:"requested_end"`
	Reason         string              `db:"reason" json:"reason"`
	Status         ChangeRequestStatus `db:"status" json:"status"`
	ExpiresAt      time.Time           `db:"expires_at" json:"expires_at"`
	ResponderID    *string             `db:"responder_id" json:"responder_id,omitempty"`
	ResponseReason *string             `db:"response_reason" json:"response_reason,omitempty"`
	CreatedAt      time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time           `db:"updated_at" json:"updated_at"`
}

// RequestedSlot returns the proposed replacement slot.
func (r *ScheduleChangeRequest) RequestedSlot() ScheduleSlot {
	return ScheduleSlot{Date: r.RequestedDate, StartTime: r.RequestedStart, EndTime: r.RequestedEnd}
}

// EffectiveStatus derives EXPIRED for pending requests whose deadline has
// passed; stored terminal states are returned as-is.
func (r *ScheduleChangeRequest) EffectiveStatus(now time.Time) ChangeRequestStatus {
	if r.Status == ChangeRequestPending && now.After(r.ExpiresAt) {
		return ChangeRequestExpired
	}
	return r.Status
}
