package store

import (
	"context"
	"time"

	"github.com/jharkins/wattson/internal/model"
)

// TimeField selects which timestamp column a window query scans.
type TimeField string

const (
	// ByCreatedAt windows on ledger-insertion time.
	ByCreatedAt TimeField = "created_at"
	// BySetDate windows on the business appointment moment (set events).
	BySetDate TimeField = "set_date"
)

// Store defines the persistence interface for the event ledger.
//
// Append assigns ID and CreatedAt; after it returns the row is immediately
// readable. AttachMessage and AbandonMessage are the only updates, and
// DeleteEvent is the only removal. Query-layer misses surface as
// sql.ErrNoRows; callers decide whether that is an error.
type Store interface {
	// AppendEvent persists a validated draft, filling in e.ID, e.CreatedAt,
	// and e.MessageState.
	AppendEvent(ctx context.Context, e *model.Event) error

	// AttachMessage records the confirmation message id for an event and
	// marks it finalized. Idempotent. Returns sql.ErrNoRows if the event no
	// longer exists.
	AttachMessage(ctx context.Context, id int64, messageID string) error

	// AbandonMessage marks an event as orphaned: the row is durable but the
	// confirmation message could not be posted. Returns sql.ErrNoRows if the
	// event no longer exists.
	AbandonMessage(ctx context.Context, id int64) error

	// GetEvent returns a single event, or sql.ErrNoRows.
	GetEvent(ctx context.Context, id int64) (*model.Event, error)

	// ListRecent returns up to limit events, newest id first.
	ListRecent(ctx context.Context, limit int) ([]*model.Event, error)

	// ListAll returns every event, id ascending.
	ListAll(ctx context.Context) ([]*model.Event, error)

	// DeleteEvent removes an event and reports how many rows were deleted
	// (0 when the row was already gone, 1 on success).
	DeleteEvent(ctx context.Context, id int64) (int64, error)

	// CountByType counts events of the given types whose field timestamp
	// falls in [from, to).
	CountByType(ctx context.Context, types []model.EventType, field TimeField, from, to time.Time) (int, error)

	// TopActors returns per-actor counts for events of the given types in
	// [from, to), ordered by count descending; ties go to the actor whose
	// qualifying event was inserted first.
	TopActors(ctx context.Context, types []model.EventType, field TimeField, from, to time.Time, limit int) ([]model.ActorCount, error)

	// Lifecycle
	Close() error
}
