package events

import (
	"context"

	"github.com/jharkins/wattson/internal/model"
)

// Event topic constants
const (
	TopicEventRecorded  = "sales.event.recorded"
	TopicEventFinalized = "sales.event.finalized"
	TopicEventDeleted   = "sales.event.deleted"
)

// Event types

type EventRecorded struct {
	Event *model.Event `json:"event"`
}

type EventFinalized struct {
	EventID   int64  `json:"event_id"`
	MessageID string `json:"message_id"`
}

type EventDeleted struct {
	EventID   int64  `json:"event_id"`
	DeletedBy string `json:"deleted_by"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
