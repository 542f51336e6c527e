package model

import (
	"encoding/json"
	"time"
)

// AuditEntry is an append-only record of a security or economy event.
type AuditEntry struct {
	ID        int64           `json:"id"`
	UserID    string          `json:"user_id,omitempty"`
	Action    string          `json:"action"`
	Detail    json.RawMessage `json:"detail,omitempty"`
	IPAddress string          `json:"ip_address,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
