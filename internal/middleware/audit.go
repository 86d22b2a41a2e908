package middleware

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fitbridge/pt-booking-api/internal/models"
	"github.com/fitbridge/pt-booking-api/internal/repository"
)

// AccessAudit records an ACCESS trail entry after sensitive reads succeed,
// used on the admin anomaly and trail endpoints so viewing the audit log is
// itself audited.
func AccessAudit(repo *repository.AuditRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		if c.Writer.Status() >= 400 {
			return
		}

		var actorID *string
		if claims, ok := c.Get(ContextUserKey); ok {
			user := claims.(*models.JWTClaims)
			actorID = &user.UserID
		}

		body, _ := json.Marshal(map[string]interface{}{
			"path":    c.FullPath(),
			"method":  c.Request.Method,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Milliseconds(),
		})

		_ = repo.Insert(c.Request.Context(), &models.RecordAuditLog{
			ID:          uuid.NewString(),
			ActorID:     actorID,
			Action:      models.AuditActionAccess,
			NewValues:   body,
			ScheduledAt: start,
			IPAddress:   c.ClientIP(),
			UserAgent:   c.GetHeader("User-Agent"),
			CreatedAt:   time.Now().UTC(),
		})
	}
}
