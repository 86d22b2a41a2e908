package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fitbridge/pt-booking-api/internal/models"
	"github.com/fitbridge/pt-booking-api/internal/service"
	appErrors "github.com/fitbridge/pt-booking-api/pkg/errors"
	"github.com/fitbridge/pt-booking-api/pkg/response"
)

// DashboardHandler serves the role-specific home screen payloads.
type DashboardHandler struct {
	dashboards *service.DashboardService
}

// NewDashboardHandler creates a new handler.
func NewDashboardHandler(dashboards *service.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboards: dashboards}
}

// Get godoc
// @Summary Dashboard for the authenticated user
// @Description Members see contract progress and the next session; trainers see today's schedule
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /dashboard [get]
func (h *DashboardHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	switch claims.Role {
	case models.RoleMember:
		dashboard, err := h.dashboards.MemberDashboard(c.Request.Context(), claims.UserID)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, dashboard, nil)
	case models.RoleTrainer:
		dashboard, err := h.dashboards.TrainerDashboard(c.Request.Context(), claims.UserID)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, dashboard, nil)
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "no dashboard for this role"))
	}
}

// Member godoc
// @Summary Member dashboard: contract progress and the next session
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dashboard/member [get]
func (h *DashboardHandler) Member(c *gin.Context) {
	claims := claimsFromContext(c)
	dashboard, err := h.dashboards.MemberDashboard(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dashboard, nil)
}

// Trainer godoc
// @Summary Trainer dashboard: today's schedule and pending applications
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dashboard/trainer [get]
func (h *DashboardHandler) Trainer(c *gin.Context) {
	claims := claimsFromContext(c)
	dashboard, err := h.dashboards.TrainerDashboard(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dashboard, nil)
}
