package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fitbridge/pt-booking-api/internal/dto"
	"github.com/fitbridge/pt-booking-api/internal/service"
	appErrors "github.com/fitbridge/pt-booking-api/pkg/errors"
	"github.com/fitbridge/pt-booking-api/pkg/response"
)

// ChangeRequestHandler exposes the schedule-change negotiation endpoints.
type ChangeRequestHandler struct {
	requests *service.ChangeRequestService
}

// NewChangeRequestHandler creates a new handler.
func NewChangeRequestHandler(requests *service.ChangeRequestService) *ChangeRequestHandler {
	return &ChangeRequestHandler{requests: requests}
}

// Create godoc
// @Summary Propose a new time slot for a session
// @Tags ChangeRequests
// @Accept json
// @Produce json
// @Param payload body dto.CreateChangeRequestRequest true "Proposed slot"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /change-requests [post]
func (h *ChangeRequestHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	var req dto.CreateChangeRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid change request payload"))
		return
	}

	created, err := h.requests.Create(c.Request.Context(), claims, service.CreateChangeRequestInput{
		RecordID:       req.RecordID,
		RequestedDate:  req.RequestedDate,
		RequestedStart: req.RequestedStart,
		RequestedEnd:   req.RequestedEnd,
		Reason:         req.Reason,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// Respond godoc
// @Summary Approve or reject a pending change request
// @Description Approval re-checks trainer availability and moves the session atomically
// @Tags ChangeRequests
// @Accept json
// @Produce json
// @Param id path string true "Change request ID"
// @Param payload body dto.RespondChangeRequestRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /change-requests/{id}/respond [post]
func (h *ChangeRequestHandler) Respond(c *gin.Context) {
	claims := claimsFromContext(c)
	var req dto.RespondChangeRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid decision payload"))
		return
	}

	updated, err := h.requests.Respond(c.Request.Context(), claims, c.Param("id"), req.Approve, req.ResponseReason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, updated, nil)
}

// Cancel godoc
// @Summary Cancel one's own pending change request
// @Tags ChangeRequests
// @Produce json
// @Param id path string true "Change request ID"
// @Success 200 {object} response.Envelope
// @Router /change-requests/{id}/cancel [post]
func (h *ChangeRequestHandler) Cancel(c *gin.Context) {
	claims := claimsFromContext(c)
	updated, err := h.requests.Cancel(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, updated, nil)
}

// Get godoc
// @Summary Change request detail
// @Tags ChangeRequests
// @Produce json
// @Param id path string true "Change request ID"
// @Success 200 {object} response.Envelope
// @Router /change-requests/{id} [get]
func (h *ChangeRequestHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	req, err := h.requests.Get(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, req, nil)
}

// ListForRecord godoc
// @Summary Change request history for a session record
// @Tags ChangeRequests
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Router /records/{id}/change-requests [get]
func (h *ChangeRequestHandler) ListForRecord(c *gin.Context) {
	claims := claimsFromContext(c)
	requests, err := h.requests.ListForRecord(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, nil)
}
