// Package domain contains core domain types for the talent manual service.
package domain

import (
	"time"
)

// Client is an anonymous browser identity. One client may run several tabs,
// each with its own conversation.
type Client struct {
	ClientID   string    `json:"client_id"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Idle returns how long the client has been inactive.
func (c *Client) Idle(now time.Time) time.Duration {
	if c.LastSeenAt.IsZero() || now.Before(c.LastSeenAt) {
		return 0
	}
	return now.Sub(c.LastSeenAt)
}
