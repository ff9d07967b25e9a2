package model

import (
	"time"
)

// EventType categorizes a recorded sales activity.
type EventType string

const (
	TypeSet              EventType = "set"
	TypeClosed           EventType = "closed"
	TypeInstallScheduled EventType = "install_sched"
)

// String returns the string representation of the event type.
func (t EventType) String() string {
	return string(t)
}

// IsValid checks whether the event type is a known value.
func (t EventType) IsValid() bool {
	switch t {
	case TypeSet, TypeClosed, TypeInstallScheduled:
		return true
	}
	return false
}

// MessageState tracks the second phase of the two-phase write: an event row
// is inserted first, then the confirmation message id is attached once the
// gateway has posted it.
type MessageState string

const (
	// MessagePending: row inserted, confirmation message not yet attached.
	MessagePending MessageState = "pending"
	// MessageFinalized: confirmation message id attached.
	MessageFinalized MessageState = "finalized"
	// MessageOrphaned: the gateway reported that posting the confirmation
	// failed. The row stays valid; this is a tolerated state, not corruption.
	MessageOrphaned MessageState = "orphaned"
)

// IsValid checks whether the message state is a known value.
func (s MessageState) IsValid() bool {
	switch s {
	case MessagePending, MessageFinalized, MessageOrphaned:
		return true
	}
	return false
}

// Event is one recorded business action: a set, a closed deal, or a
// scheduled installation. Events form an append-mostly ledger; the only
// mutation after insert is the message-id attach, and the only removal path
// is the confirmed deletion workflow.
type Event struct {
	ID           int64        `json:"id"`
	Type         EventType    `json:"type"`
	ActorID      string       `json:"actor_id"`
	ChannelID    string       `json:"channel_id"`
	MessageID    string       `json:"message_id,omitempty"`
	MessageState MessageState `json:"message_state"`
	CreatedAt    time.Time    `json:"created_at"`

	// Variant payload. CustomerName is set for all three types; the rest
	// depend on Type (see Validate).
	CustomerName string     `json:"customer_name,omitempty"`
	SetDate      *time.Time `json:"set_date,omitempty"`
	HasBill      bool       `json:"has_bill,omitempty"`
	SystemSize   *float64   `json:"system_size,omitempty"`
	SetterID     string     `json:"setter_id,omitempty"`
}

// ActorCount is one leaderboard entry: an actor and how many qualifying
// events they recorded in the window.
type ActorCount struct {
	ActorID string `json:"actor_id"`
	Count   int    `json:"count"`
}
