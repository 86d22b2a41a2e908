package models

import "time"

// Audit action kinds for exercise-record mutations and ambient events.
const (
	AuditActionRecord = "RECORD"
	AuditActionEdit   = "EDIT"
	AuditActionLogin  = "LOGIN"
	AuditActionLogout = "LOGOUT"
	AuditActionAccess = "ACCESS"
)

// RecordAuditLog is an immutable trail entry for a mutation against a
// session's exercise record. Rows are append-only: the repository exposes no
// update or delete for this table.
type RecordAuditLog struct {
	ID            string    `db:"id" json:"id"`
	RecordID      *string   `db:"record_id" json:"record_id,omitempty"`
	ActorID       *string   `db:"actor_id" json:"actor_id,omitempty"`
	Action        string    `db:"action" json:"action"`
	OldValues     []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues     []byte    `db:"new_values" json:"new_values,omitempty"`
	ScheduledAt   time.Time `db:"scheduled_at" json:"scheduled_at"`
	OutOfTime     bool      `db:"out_of_time" json:"out_of_time"`
	AnomalyReason *string   `db:"anomaly_reason" json:"anomaly_reason,omitempty"`
	IPAddress     string    `db:"ip_address" json:"ip_address"`
	UserAgent     string    `db:"user_agent" json:"user_agent"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// AuditWindowResult is the outcome of the plausibility check for a
// record-keeping action.
type AuditWindowResult struct {
	OutOfTime bool    `json:"out_of_time"`
	Reason    *string `json:"reason,omitempty"`
}
