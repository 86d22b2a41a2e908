package dto

import "github.com/fitbridge/pt-booking-api/internal/models"

// ApplyBookingRequest is the member's application payload. Schedule maps a
// date to the ordered half-hour start marks chosen for that day.
type ApplyBookingRequest struct {
	ProductID string              `json:"product_id" binding:"required"`
	TrainerID string              `json:"trainer_id" binding:"required"`
	IsRegular bool                `json:"is_regular"`
	Schedule  models.DaySchedule  `json:"schedule" binding:"required"`
}

// RespondBookingRequest is the trainer's answer to an application.
type RespondBookingRequest struct {
	Accept       bool    `json:"accept"`
	RejectReason *string `json:"reject_reason,omitempty"`
}

// ListBookingsQuery captures list filters from the query string.
type ListBookingsQuery struct {
	Status    string `form:"status"`
	IsRegular *bool  `form:"is_regular"`
	Page      int    `form:"page,default=1"`
	PageSize  int    `form:"page_size,default=20"`
	SortBy    string `form:"sort_by"`
	SortOrder string `form:"sort_order"`
}
