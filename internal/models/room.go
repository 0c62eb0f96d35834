package models

import (
	"time"

	"github.com/google/uuid"
)

// Room is a capacity-bounded grouping within a session instance. Capacity is
// evaluated dynamically from participant assignments, never stored here.
type Room struct {
	ID         uuid.UUID `json:"id"`
	InstanceID uuid.UUID `json:"instance_id"`
	Name       string    `json:"name"`
	Active     bool      `json:"active"`
	Seq        int64     `json:"-"` // creation order within the instance
	CreatedAt  time.Time `json:"created_at"`
}
