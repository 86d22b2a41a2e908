package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fitbridge/pt-booking-api/internal/dto"
	"github.com/fitbridge/pt-booking-api/internal/models"
	"github.com/fitbridge/pt-booking-api/internal/service"
	appErrors "github.com/fitbridge/pt-booking-api/pkg/errors"
	"github.com/fitbridge/pt-booking-api/pkg/response"
)

// TrainerHandler exposes trainer schedule views and the slot pre-check.
type TrainerHandler struct {
	attendance *service.AttendanceService
	planner    *service.SchedulePlannerService
}

// NewTrainerHandler creates a new handler.
func NewTrainerHandler(attendance *service.AttendanceService, planner *service.SchedulePlannerService) *TrainerHandler {
	return &TrainerHandler{attendance: attendance, planner: planner}
}

// Trainers may only read their own calendar; admins may read any.
func trainerScope(c *gin.Context) (string, error) {
	claims := claimsFromContext(c)
	trainerID := c.Param("id")
	if claims.Role != models.RoleAdmin && claims.UserID != trainerID {
		return "", appErrors.Clone(appErrors.ErrForbidden, "calendar belongs to another trainer")
	}
	return trainerID, nil
}

// Calendar godoc
// @Summary Trainer's sessions in a date range with derived attendance
// @Tags Trainers
// @Produce json
// @Param id path string true "Trainer ID"
// @Param from query string true "Range start (YYYY-MM-DD)"
// @Param to query string true "Range end (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /trainers/{id}/calendar [get]
func (h *TrainerHandler) Calendar(c *gin.Context) {
	trainerID, err := trainerScope(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var query dto.TrainerCalendarQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "from and to dates are required"))
		return
	}

	sessions, err := h.attendance.TrainerCalendar(c.Request.Context(), trainerID, query.From, query.To)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, nil)
}

// CheckAvailability godoc
// @Summary Partition candidate slots into bookable and colliding
// @Description Advisory pre-check; the booking write re-validates
// @Tags Trainers
// @Accept json
// @Produce json
// @Param id path string true "Trainer ID"
// @Param payload body dto.CheckAvailabilityRequest true "Candidate slots"
// @Success 200 {object} response.Envelope
// @Router /trainers/{id}/availability [post]
func (h *TrainerHandler) CheckAvailability(c *gin.Context) {
	var req dto.CheckAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid slots payload"))
		return
	}
	for _, slot := range req.Slots {
		if !slot.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "slots must be half-hour aligned with start before end"))
			return
		}
	}

	result, err := h.planner.CheckAvailability(c.Request.Context(), c.Param("id"), req.Slots)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
