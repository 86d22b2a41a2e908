package dto

import "github.com/fitbridge/pt-booking-api/internal/models"

// CreateChangeRequestRequest files a schedule-change proposal for a booked
// session. Times are HHMM half-hour marks.
type CreateChangeRequestRequest struct {
	RecordID       string           `json:"record_id" binding:"required"`
	RequestedDate  string           `json:"requested_date" binding:"required"`
	RequestedStart models.TimeOfDay `json:"requested_start" binding:"required"`
	RequestedEnd   models.TimeOfDay `json:"requested_end" binding:"required"`
	Reason         string           `json:"reason"`
}

// RespondChangeRequestRequest resolves a pending proposal.
type RespondChangeRequestRequest struct {
	Approve        bool    `json:"approve"`
	ResponseReason *string `json:"response_reason,omitempty"`
}
