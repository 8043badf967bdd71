package events

import (
	"github.com/princekumarofficial/gallery-service/internal/types"
)

// WebSocketHub interface for the WebSocket hub
type WebSocketHub interface {
	BroadcastToUser(userID string, event *types.Event)
	IsUserConnected(userID string) bool
}

// EventPublisher pushes upload events to connected clients
type EventPublisher struct {
	hub WebSocketHub
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(hub WebSocketHub) *EventPublisher {
	return &EventPublisher{
		hub: hub,
	}
}

// PublishImageCreated tells the uploader that their image is stored
func (p *EventPublisher) PublishImageCreated(data *types.ImageCreatedEvent) error {
	// Only send if the uploader is connected
	if !p.hub.IsUserConnected(data.UploaderID) {
		return nil
	}

	p.hub.BroadcastToUser(data.UploaderID, types.NewEvent(types.EventImageCreated, data))
	return nil
}
