package domain

import "time"

const (
	EventOrderCreated    = "order.created"
	EventListingPromoted = "listing.promoted"
)

type Event struct {
	ID         string    `json:"event_id"`
	Type       string    `json:"type"`
	Key        string    `json:"key"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}
