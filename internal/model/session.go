package model

import "time"

// SessionData is the server-held half of a player session. The bearer
// token carries only its ID.
type SessionData struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	IPAddress string    `json:"ip_address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at now.
func (s *SessionData) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
