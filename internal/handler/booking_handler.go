package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fitbridge/pt-booking-api/internal/dto"
	"github.com/fitbridge/pt-booking-api/internal/models"
	"github.com/fitbridge/pt-booking-api/internal/service"
	appErrors "github.com/fitbridge/pt-booking-api/pkg/errors"
	"github.com/fitbridge/pt-booking-api/pkg/response"
)

// BookingHandler exposes the contract lifecycle endpoints.
type BookingHandler struct {
	bookings   *service.BookingService
	attendance *service.AttendanceService
}

// NewBookingHandler creates a new handler.
func NewBookingHandler(bookings *service.BookingService, attendance *service.AttendanceService) *BookingHandler {
	return &BookingHandler{bookings: bookings, attendance: attendance}
}

// Apply godoc
// @Summary Apply for a PT contract
// @Description Book a coaching package with a chosen trainer and schedule
// @Tags Bookings
// @Accept json
// @Produce json
// @Param payload body dto.ApplyBookingRequest true "Application payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /bookings [post]
func (h *BookingHandler) Apply(c *gin.Context) {
	claims := claimsFromContext(c)
	var req dto.ApplyBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid application payload"))
		return
	}

	result, err := h.bookings.Apply(c.Request.Context(), claims, service.ApplyInput{
		ProductID: req.ProductID,
		TrainerID: req.TrainerID,
		IsRegular: req.IsRegular,
		Schedule:  req.Schedule,
	})
	if err != nil {
		var conflict *service.SlotConflictError
		if errors.As(err, &conflict) {
			c.Header("Cache-Control", "no-store")
			c.JSON(http.StatusConflict, response.Envelope{
				Error: appErrors.ErrSlotConflict,
				Meta:  map[string]interface{}{"fail": conflict.Fail},
			})
			return
		}
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Respond godoc
// @Summary Confirm or reject an application
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Contract ID"
// @Param payload body dto.RespondBookingRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /bookings/{id}/respond [post]
func (h *BookingHandler) Respond(c *gin.Context) {
	claims := claimsFromContext(c)
	var req dto.RespondBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid decision payload"))
		return
	}

	contract, err := h.bookings.Respond(c.Request.Context(), claims, c.Param("id"), req.Accept, req.RejectReason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, contract, nil)
}

// Get godoc
// @Summary Contract detail with sessions and attendance
// @Tags Bookings
// @Produce json
// @Param id path string true "Contract ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /bookings/{id} [get]
func (h *BookingHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	detail, err := h.bookings.Get(c.Request.Context(), claims, c.Param("id"), h.attendance)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// List godoc
// @Summary List contracts visible to the caller
// @Tags Bookings
// @Produce json
// @Param status query string false "Filter by contract status"
// @Param is_regular query bool false "Filter regular contracts"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /bookings [get]
func (h *BookingHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	var query dto.ListBookingsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid list query"))
		return
	}

	filter := models.ContractFilter{
		Status:    models.ContractStatus(query.Status),
		IsRegular: query.IsRegular,
		Page:      query.Page,
		PageSize:  query.PageSize,
		SortBy:    query.SortBy,
		SortOrder: query.SortOrder,
	}
	contracts, total, err := h.bookings.List(c.Request.Context(), claims, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, contracts, &models.Pagination{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
	})
}
