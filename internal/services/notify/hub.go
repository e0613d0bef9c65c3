package notify

import (
	"context"

	"github.com/xelth-com/eckbackoffice/internal/websocket"
)

// HubSink pushes events to connected dashboards
type HubSink struct {
	hub *websocket.Hub
}

// NewHubSink creates a HubSink
func NewHubSink(hub *websocket.Hub) *HubSink {
	return &HubSink{hub: hub}
}

// Publish implements Sink. Offline users simply miss the push; the stored copy remains.
func (s *HubSink) Publish(ctx context.Context, ev Event) error {
	if ev.RecipientID != nil {
		s.hub.SendToUser(*ev.RecipientID, ev)
		return nil
	}
	s.hub.Broadcast(ev)
	return nil
}
