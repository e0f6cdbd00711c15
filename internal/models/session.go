package models

import "time"

// Session groups the transient transcript shown on one demo page load.
type Session struct {
	ID        string    `json:"id"`
	OwnerID   int64     `json:"owner_id"`
	VisitorID string    `json:"visitor_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
