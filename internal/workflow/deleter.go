// Package workflow implements the interactive deletion flow: a caller is
// shown recent events or a single event, and the first valid action they
// take (within a deadline) settles the prompt.
package workflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jharkins/wattson/internal/events"
	"github.com/jharkins/wattson/internal/export"
	"github.com/jharkins/wattson/internal/model"
	"github.com/jharkins/wattson/internal/store"
)

const (
	// DefaultListLimit caps how many recent events a listing prompt shows.
	DefaultListLimit = 10
	// DefaultListingTimeout bounds how long a listing prompt stays live.
	DefaultListingTimeout = 60 * time.Second
	// DefaultConfirmTimeout bounds how long a confirmation prompt stays live.
	DefaultConfirmTimeout = 30 * time.Second
)

// ErrEventNotFound is returned when a direct deletion names an unknown event.
var ErrEventNotFound = errors.New("event not found")

// UpdateKind discriminates Update payloads.
type UpdateKind string

const (
	// UpdateListing carries the recent events to choose from.
	UpdateListing UpdateKind = "listing"
	// UpdateConfirmation carries the single event awaiting confirmation.
	UpdateConfirmation UpdateKind = "confirmation"
	// UpdateExport carries a ledger export served from a listing prompt.
	UpdateExport UpdateKind = "export"
	// UpdateOutcome is the final update of every flow.
	UpdateOutcome UpdateKind = "outcome"
)

// Result is how a deletion flow ended.
type Result string

const (
	ResultDeleted   Result = "deleted"
	ResultCancelled Result = "cancelled"
	ResultTimedOut  Result = "timed_out"
	// ResultEmpty means there was nothing to list.
	ResultEmpty Result = "empty"
	// ResultConflict means the chosen event was already gone at delete time.
	ResultConflict Result = "conflict"
	ResultError Result = "error"
)

// Update is one step of a deletion flow, streamed to the caller. Names maps
// the actor and setter IDs of the carried events to display names.
type Update struct {
	Kind      UpdateKind        `json:"kind"`
	Events    []*model.Event    `json:"events,omitempty"`
	Event     *model.Event      `json:"event,omitempty"`
	Names     map[string]string `json:"names,omitempty"`
	Export    *export.Export    `json:"export,omitempty"`
	Result    Result            `json:"result,omitempty"`
	EventID   int64             `json:"event_id,omitempty"`
	ExpiresAt time.Time         `json:"expires_at,omitempty"`
}

// Instance is a running deletion flow. Updates closes after the outcome.
type Instance struct {
	Token   string
	Updates <-chan Update
}

// Deleter runs deletion flows.
type Deleter struct {
	store     store.Store
	exporter  *export.Generator
	resolver  export.UsernameResolver
	publisher events.Publisher
	collector *Collector
	logger    *slog.Logger

	listLimit      int
	listingTimeout time.Duration
	confirmTimeout time.Duration
}

func NewDeleter(st store.Store, exporter *export.Generator, resolver export.UsernameResolver, pub events.Publisher, collector *Collector, logger *slog.Logger) *Deleter {
	return &Deleter{
		store:          st,
		exporter:       exporter,
		resolver:       resolver,
		publisher:      pub,
		collector:      collector,
		logger:         logger,
		listLimit:      DefaultListLimit,
		listingTimeout: DefaultListingTimeout,
		confirmTimeout: DefaultConfirmTimeout,
	}
}

// Collector exposes the action router so callers can deliver prompt actions.
func (d *Deleter) Collector() *Collector {
	return d.collector
}

// Start begins a listing flow for actorID: the most recent events are
// offered, and the caller may select one (which moves to a confirmation
// prompt), request an export, or cancel. Serving an export keeps the prompt
// armed for its remaining time.
func (d *Deleter) Start(ctx context.Context, actorID string) (*Instance, error) {
	recent, err := d.store.ListRecent(ctx, d.listLimit)
	if err != nil {
		return nil, fmt.Errorf("listing recent events: %w", err)
	}

	token, err := newToken()
	if err != nil {
		return nil, err
	}

	updates := make(chan Update, 16)
	inst := &Instance{Token: token, Updates: updates}

	if len(recent) == 0 {
		go func() {
			defer close(updates)
			d.send(ctx, updates, Update{Kind: UpdateOutcome, Result: ResultEmpty})
		}()
		return inst, nil
	}

	names := d.displayNames(ctx, recent)
	deadline := time.Now().Add(d.listingTimeout)
	actions := d.collector.Register(token, actorID, d.listingTimeout)

	go func() {
		defer close(updates)
		d.send(ctx, updates, Update{Kind: UpdateListing, Events: recent, Names: names, ExpiresAt: deadline})
		d.runListing(ctx, updates, token, actorID, recent, names, deadline, actions)
	}()

	return inst, nil
}

// StartForEvent begins a confirmation flow for one event named by ID.
func (d *Deleter) StartForEvent(ctx context.Context, actorID string, eventID int64) (*Instance, error) {
	e, err := d.store.GetEvent(ctx, eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading event %d: %w", eventID, err)
	}

	token, err := newToken()
	if err != nil {
		return nil, err
	}

	names := d.displayNames(ctx, []*model.Event{e})
	deadline := time.Now().Add(d.confirmTimeout)
	actions := d.collector.Register(token, actorID, d.confirmTimeout)

	updates := make(chan Update, 16)
	go func() {
		defer close(updates)
		d.send(ctx, updates, Update{Kind: UpdateConfirmation, Event: e, Names: names, ExpiresAt: deadline})
		d.runConfirmation(ctx, updates, actorID, eventID, actions)
	}()

	return &Instance{Token: token, Updates: updates}, nil
}

// runListing drains actions until the prompt settles. Selecting an event
// moves the flow to a confirmation prompt; the delete only runs once the
// caller confirms. An export action does not settle the prompt: the listener
// is re-armed with the remaining time.
func (d *Deleter) runListing(ctx context.Context, updates chan<- Update, token, actorID string, listed []*model.Event, names map[string]string, deadline time.Time, actions <-chan Action) {
	for {
		action, ok := <-actions
		if !ok {
			d.send(ctx, updates, Update{Kind: UpdateOutcome, Result: ResultTimedOut})
			return
		}

		switch action.Kind {
		case ActionSelect:
			var chosen *model.Event
			for _, e := range listed {
				if e.ID == action.EventID {
					chosen = e
					break
				}
			}
			if chosen == nil {
				d.send(ctx, updates, Update{Kind: UpdateOutcome, Result: ResultConflict, EventID: action.EventID})
				return
			}

			confirmDeadline := time.Now().Add(d.confirmTimeout)
			confirmActions := d.collector.Register(token, actorID, d.confirmTimeout)
			d.send(ctx, updates, Update{Kind: UpdateConfirmation, Event: chosen, Names: names, ExpiresAt: confirmDeadline})
			d.runConfirmation(ctx, updates, actorID, chosen.ID, confirmActions)
			return
		case ActionExport:
			exp, err := d.exporter.GenerateCSV(ctx)
			if err != nil {
				d.logger.Error("listing export failed", "err", err)
				d.send(ctx, updates, Update{Kind: UpdateOutcome, Result: ResultError})
				return
			}
			d.send(ctx, updates, Update{Kind: UpdateExport, Export: exp, ExpiresAt: deadline})

			remaining := time.Until(deadline)
			if remaining <= 0 {
				d.send(ctx, updates, Update{Kind: UpdateOutcome, Result: ResultTimedOut})
				return
			}
			actions = d.collector.Register(token, actorID, remaining)
		default:
			d.send(ctx, updates, Update{Kind: UpdateOutcome, Result: ResultCancelled})
			return
		}
	}
}

// runConfirmation settles a confirmation prompt: only an explicit confirm
// deletes, any other action cancels, and a closed channel means the prompt
// expired.
func (d *Deleter) runConfirmation(ctx context.Context, updates chan<- Update, actorID string, eventID int64, actions <-chan Action) {
	action, ok := <-actions
	if !ok {
		d.send(ctx, updates, Update{Kind: UpdateOutcome, Result: ResultTimedOut})
		return
	}
	switch action.Kind {
	case ActionConfirm:
		d.send(ctx, updates, d.deleteEvent(ctx, actorID, eventID))
	default:
		d.send(ctx, updates, Update{Kind: UpdateOutcome, Result: ResultCancelled})
	}
}

// displayNames resolves the distinct actor and setter IDs of evts. A failing
// resolver degrades to the placeholder instead of aborting the flow.
func (d *Deleter) displayNames(ctx context.Context, evts []*model.Event) map[string]string {
	seen := make(map[string]struct{})
	var ids []string
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for _, e := range evts {
		add(e.ActorID)
		add(e.SetterID)
	}
	if len(ids) == 0 {
		return nil
	}

	names, err := d.resolver.ResolveUsernames(ctx, ids)
	if err != nil {
		d.logger.Warn("resolving display names failed", "err", err)
		names = make(map[string]string, len(ids))
		for _, id := range ids {
			names[id] = export.UnknownUser
		}
	}
	return names
}

// deleteEvent performs the delete and renders the outcome.
func (d *Deleter) deleteEvent(ctx context.Context, actorID string, eventID int64) Update {
	n, err := d.store.DeleteEvent(ctx, eventID)
	if err != nil {
		d.logger.Error("deleting event failed", "event_id", eventID, "err", err)
		return Update{Kind: UpdateOutcome, Result: ResultError, EventID: eventID}
	}
	if n == 0 {
		return Update{Kind: UpdateOutcome, Result: ResultConflict, EventID: eventID}
	}

	if err := d.publisher.Publish(ctx, events.TopicEventDeleted, events.EventDeleted{
		EventID:   eventID,
		DeletedBy: actorID,
	}); err != nil {
		d.logger.Warn("publishing deletion event failed", "event_id", eventID, "err", err)
	}

	d.logger.Info("event deleted", "event_id", eventID, "deleted_by", actorID)
	return Update{Kind: UpdateOutcome, Result: ResultDeleted, EventID: eventID}
}

// send delivers an update unless the flow's context is gone.
func (d *Deleter) send(ctx context.Context, updates chan<- Update, u Update) {
	select {
	case updates <- u:
	case <-ctx.Done():
	}
}
