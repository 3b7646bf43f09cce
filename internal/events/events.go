package events

import "context"

// Event types
const (
	EventEscrowStatusChanged = "escrow_status_changed"
	EventDisputeOpened       = "dispute_opened"
	EventDisputeResolved     = "dispute_resolved"
	EventPayoutSent          = "payout_sent"
	EventNotification        = "notification"
)

// StreamEscrow carries every domain event; the notify bridge and the
// websocket hub both subscribe to it.
const StreamEscrow = "events:escrow"

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
