package models

import "time"

// Audit actions.
const (
	AuditActionLogin          = "LOGIN"
	AuditActionSecretChange   = "SECRET_CHANGE"
	AuditActionProvision      = "PROVISION"
	AuditActionStateChange    = "STATE_CHANGE"
	AuditActionAccountDeleted = "ACCOUNT_DELETE"
)

// AuditLog captures a security relevant event.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	AccountID  *int64    `db:"account_id" json:"account_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	Payload    string    `db:"payload" json:"payload,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
