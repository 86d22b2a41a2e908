package dto

import "github.com/fitbridge/pt-booking-api/internal/models"

// CreateReportRequest queues an attendance-report export for a contract.
type CreateReportRequest struct {
	ContractID string              `json:"contract_id" binding:"required"`
	Format     models.ReportFormat `json:"format" binding:"required,oneof=csv pdf"`
}
