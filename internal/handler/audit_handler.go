package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/fitbridge/pt-booking-api/internal/service"
	"github.com/fitbridge/pt-booking-api/pkg/response"
)

// AuditHandler exposes the admin anomaly review endpoints.
type AuditHandler struct {
	audit *service.AuditService
}

// NewAuditHandler creates a new handler.
func NewAuditHandler(audit *service.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// Anomalies godoc
// @Summary Out-of-time exercise record entries
// @Tags Audit
// @Produce json
// @Param limit query int false "Max entries (default 100, cap 500)"
// @Success 200 {object} response.Envelope
// @Router /audit/anomalies [get]
func (h *AuditHandler) Anomalies(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	entries, err := h.audit.Anomalies(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}
