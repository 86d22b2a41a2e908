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

// RecordHandler exposes session records and their exercise items.
type RecordHandler struct {
	attendance *service.AttendanceService
	audit      *service.AuditService
}

// NewRecordHandler creates a new handler.
func NewRecordHandler(attendance *service.AttendanceService, audit *service.AuditService) *RecordHandler {
	return &RecordHandler{attendance: attendance, audit: audit}
}

// Get godoc
// @Summary Session detail with derived attendance state
// @Tags Sessions
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /records/{id} [get]
func (h *RecordHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	view, err := h.attendance.Session(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// ListExercises godoc
// @Summary Current exercise items for a session
// @Tags Sessions
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Router /records/{id}/exercises [get]
func (h *RecordHandler) ListExercises(c *gin.Context) {
	claims := claimsFromContext(c)
	items, err := h.audit.Exercises(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// RecordExercises godoc
// @Summary Record or edit a session's exercises
// @Description Replaces the item set and appends an audit entry atomically
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param payload body dto.RecordExercisesRequest true "Exercise items"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /records/{id}/exercises [put]
func (h *RecordHandler) RecordExercises(c *gin.Context) {
	claims := claimsFromContext(c)
	var req dto.RecordExercisesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid exercises payload"))
		return
	}

	items := make([]models.ExerciseItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, models.ExerciseItem{
			Name:     item.Name,
			SetCount: item.SetCount,
			RepCount: item.RepCount,
			Weight:   item.Weight,
			Notes:    item.Notes,
		})
	}

	meta := service.ClientMeta{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
	result, err := h.audit.RecordExercises(c.Request.Context(), claims, c.Param("id"), items, meta)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Trail godoc
// @Summary Audit trail for a session record
// @Tags Audit
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Router /records/{id}/audit [get]
func (h *RecordHandler) Trail(c *gin.Context) {
	entries, err := h.audit.Trail(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}
