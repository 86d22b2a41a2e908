package dto

import "github.com/fitbridge/pt-booking-api/internal/models"

// ExerciseItemRequest is one exercise line in a session record.
type ExerciseItemRequest struct {
	Name     string  `json:"name" binding:"required"`
	SetCount int     `json:"set_count" binding:"required,min=1"`
	RepCount int     `json:"rep_count" binding:"required,min=1"`
	Weight   float64 `json:"weight"`
	Notes    *string `json:"notes,omitempty"`
}

// RecordExercisesRequest replaces a session's exercise items wholesale.
type RecordExercisesRequest struct {
	Items []ExerciseItemRequest `json:"items" binding:"required,min=1,dive"`
}

// TrainerCalendarQuery bounds the trainer calendar read.
type TrainerCalendarQuery struct {
	From string `form:"from" binding:"required"`
	To   string `form:"to" binding:"required"`
}

// CheckAvailabilityRequest carries candidate slots for the advisory
// availability pre-check.
type CheckAvailabilityRequest struct {
	Slots []models.ScheduleSlot `json:"slots" binding:"required,min=1"`
}
