package notification

import "time"

// Notification is a locally queued record of an inbound live event.
type Notification struct {
	ID        string    `json:"id"`
	Event     string    `json:"event,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
}
