package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PtProduct defines a purchasable coaching package: how many sessions, how
// long each one runs, and what it costs.
type PtProduct struct {
	ID            string          `db:"id" json:"id"`
	Name          string          `db:"name" json:"name"`
	TotalSessions int             `db:"total_sessions" json:"total_sessions"`
	DurationHours int             `db:"duration_hours" json:"duration_hours"`
	Price         decimal.Decimal `db:"price" json:"price"`
	Active        bool            `db:"active" json:"active"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}
