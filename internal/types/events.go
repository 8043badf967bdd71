package types

import "time"

// EventType represents the type of real-time event
type EventType string

const (
	EventImageCreated EventType = "image.created"
)

// Event represents a real-time event that can be sent over WebSocket
type Event struct {
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp string      `json:"timestamp"`
}

// ImageCreatedEvent is sent to the uploader once an image is persisted
type ImageCreatedEvent struct {
	ImageID    string `json:"image_id"`
	UploaderID string `json:"uploader_id"`
	ImageURL   string `json:"image_url"`
	PostURL    string `json:"post_url"`
	CreatedAt  string `json:"created_at"`
}

// NewEvent creates a new event with the current timestamp
func NewEvent(eventType EventType, data interface{}) *Event {
	return &Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
