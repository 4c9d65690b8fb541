package models

import "time"

// InviteCode grants trip access without prior participant-list membership.
// Codes have no expiry; they stay valid until explicitly deactivated.
type InviteCode struct {
	Code      string    `json:"code"`
	TripID    string    `json:"trip_id"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}
