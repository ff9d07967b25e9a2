package workflow

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jharkins/wattson/internal/events"
	"github.com/jharkins/wattson/internal/export"
	"github.com/jharkins/wattson/internal/model"
	"github.com/jharkins/wattson/internal/store"
)

// fakeStore serves fixed events and records deletions.
type fakeStore struct {
	store.Store

	mu      sync.Mutex
	events  map[int64]*model.Event
	deleted []int64
}

func newFakeStore(evts ...*model.Event) *fakeStore {
	f := &fakeStore{events: make(map[int64]*model.Event)}
	for _, e := range evts {
		f.events[e.ID] = e
	}
	return f
}

func (f *fakeStore) ListRecent(ctx context.Context, limit int) ([]*model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Event
	var maxID int64
	for id := range f.events {
		if id > maxID {
			maxID = id
		}
	}
	for id := maxID; id > 0 && len(out) < limit; id-- {
		if e, ok := f.events[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) ListAll(ctx context.Context) ([]*model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Event
	for id := int64(1); len(out) < len(f.events); id++ {
		if e, ok := f.events[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) GetEvent(ctx context.Context, id int64) (*model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return e, nil
}

func (f *fakeStore) DeleteEvent(ctx context.Context, id int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.events[id]; !ok {
		return 0, nil
	}
	delete(f.events, id)
	f.deleted = append(f.deleted, id)
	return 1, nil
}

// recordingPublisher captures published topics and payloads.
type recordingPublisher struct {
	mu        sync.Mutex
	published []string
	payloads  []any
}

func (p *recordingPublisher) Publish(ctx context.Context, topic string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, topic)
	p.payloads = append(p.payloads, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.published...)
}

type staticResolver struct{}

func (staticResolver) ResolveUsernames(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		out[id] = id
	}
	return out, nil
}

type failingResolver struct{}

func (failingResolver) ResolveUsernames(ctx context.Context, ids []string) (map[string]string, error) {
	return nil, errors.New("directory unavailable")
}

func newTestDeleter(st *fakeStore) (*Deleter, *recordingPublisher) {
	pub := &recordingPublisher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gen := export.NewGenerator(st, staticResolver{})
	return NewDeleter(st, gen, staticResolver{}, pub, NewCollector(), logger), pub
}

func setEvent(id int64, actor string) *model.Event {
	setDate := time.Date(2024, 7, 5, 0, 0, 0, 0, time.UTC)
	return &model.Event{
		ID: id, Type: model.TypeSet, ActorID: actor, ChannelID: "chan-1",
		CreatedAt: time.Now().UTC(), CustomerName: "Jane Doe", SetDate: &setDate,
	}
}

func nextUpdate(t *testing.T, inst *Instance) Update {
	t.Helper()
	select {
	case u, ok := <-inst.Updates:
		if !ok {
			t.Fatal("updates channel closed early")
		}
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update")
		return Update{}
	}
}

func TestListingSelectConfirmDeletes(t *testing.T) {
	st := newFakeStore(setEvent(1, "u1"), setEvent(2, "u2"), setEvent(3, "u1"))
	d, pub := newTestDeleter(st)

	inst, err := d.Start(context.Background(), "admin-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	listing := nextUpdate(t, inst)
	if listing.Kind != UpdateListing {
		t.Fatalf("expected listing, got %q", listing.Kind)
	}
	if len(listing.Events) != 3 || listing.Events[0].ID != 3 {
		t.Fatalf("listing should be newest first: %+v", listing.Events)
	}
	if listing.Names["u1"] != "u1" || listing.Names["u2"] != "u2" {
		t.Fatalf("listing should carry resolved names: %v", listing.Names)
	}

	if err := d.Collector().Deliver(inst.Token, "admin-1", Action{Kind: ActionSelect, EventID: 2}); err != nil {
		t.Fatalf("deliver select: %v", err)
	}

	// Selecting must not delete yet: a confirmation prompt comes first.
	confirm := nextUpdate(t, inst)
	if confirm.Kind != UpdateConfirmation || confirm.Event == nil || confirm.Event.ID != 2 {
		t.Fatalf("expected confirmation for event 2, got %+v", confirm)
	}
	st.mu.Lock()
	stillThere := len(st.deleted) == 0
	st.mu.Unlock()
	if !stillThere {
		t.Fatal("event deleted before confirmation")
	}

	if err := d.Collector().Deliver(inst.Token, "admin-1", Action{Kind: ActionConfirm}); err != nil {
		t.Fatalf("deliver confirm: %v", err)
	}

	outcome := nextUpdate(t, inst)
	if outcome.Kind != UpdateOutcome || outcome.Result != ResultDeleted || outcome.EventID != 2 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if _, ok := <-inst.Updates; ok {
		t.Fatal("updates should close after the outcome")
	}

	if got := pub.topics(); len(got) != 1 || got[0] != events.TopicEventDeleted {
		t.Fatalf("published topics: %v", got)
	}
	if len(st.deleted) != 1 || st.deleted[0] != 2 {
		t.Fatalf("deleted ids: %v", st.deleted)
	}
}

func TestListingSelectCancel(t *testing.T) {
	st := newFakeStore(setEvent(1, "u1"))
	d, pub := newTestDeleter(st)

	inst, err := d.Start(context.Background(), "admin-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	nextUpdate(t, inst)

	if err := d.Collector().Deliver(inst.Token, "admin-1", Action{Kind: ActionSelect, EventID: 1}); err != nil {
		t.Fatalf("deliver select: %v", err)
	}
	if got := nextUpdate(t, inst); got.Kind != UpdateConfirmation {
		t.Fatalf("expected confirmation, got %+v", got)
	}

	if err := d.Collector().Deliver(inst.Token, "admin-1", Action{Kind: ActionCancel}); err != nil {
		t.Fatalf("deliver cancel: %v", err)
	}

	outcome := nextUpdate(t, inst)
	if outcome.Result != ResultCancelled {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if len(st.deleted) != 0 || len(pub.topics()) != 0 {
		t.Fatal("cancelled confirmation must not delete or publish")
	}
}

func TestListingSelectConfirmTimeout(t *testing.T) {
	st := newFakeStore(setEvent(1, "u1"))
	d, _ := newTestDeleter(st)
	d.confirmTimeout = 30 * time.Millisecond

	inst, err := d.Start(context.Background(), "admin-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	nextUpdate(t, inst)

	if err := d.Collector().Deliver(inst.Token, "admin-1", Action{Kind: ActionSelect, EventID: 1}); err != nil {
		t.Fatalf("deliver select: %v", err)
	}
	if got := nextUpdate(t, inst); got.Kind != UpdateConfirmation {
		t.Fatalf("expected confirmation, got %+v", got)
	}

	outcome := nextUpdate(t, inst)
	if outcome.Result != ResultTimedOut {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if len(st.deleted) != 0 {
		t.Fatal("unconfirmed selection must not delete")
	}
}

func TestListingSelectUnlistedID(t *testing.T) {
	st := newFakeStore(setEvent(1, "u1"))
	d, _ := newTestDeleter(st)

	inst, err := d.Start(context.Background(), "admin-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	nextUpdate(t, inst)

	if err := d.Collector().Deliver(inst.Token, "admin-1", Action{Kind: ActionSelect, EventID: 42}); err != nil {
		t.Fatalf("deliver select: %v", err)
	}

	outcome := nextUpdate(t, inst)
	if outcome.Result != ResultConflict || outcome.EventID != 42 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestListingEmpty(t *testing.T) {
	d, _ := newTestDeleter(newFakeStore())

	inst, err := d.Start(context.Background(), "admin-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	outcome := nextUpdate(t, inst)
	if outcome.Kind != UpdateOutcome || outcome.Result != ResultEmpty {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestListingCancel(t *testing.T) {
	d, pub := newTestDeleter(newFakeStore(setEvent(1, "u1")))

	inst, err := d.Start(context.Background(), "admin-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	nextUpdate(t, inst)

	if err := d.Collector().Deliver(inst.Token, "admin-1", Action{Kind: ActionCancel}); err != nil {
		t.Fatalf("deliver cancel: %v", err)
	}

	outcome := nextUpdate(t, inst)
	if outcome.Result != ResultCancelled {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if len(pub.topics()) != 0 {
		t.Fatal("cancel should not publish")
	}
}

func TestListingTimeout(t *testing.T) {
	d, _ := newTestDeleter(newFakeStore(setEvent(1, "u1")))
	d.listingTimeout = 30 * time.Millisecond

	inst, err := d.Start(context.Background(), "admin-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	nextUpdate(t, inst)

	outcome := nextUpdate(t, inst)
	if outcome.Result != ResultTimedOut {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestListingExportKeepsPromptLive(t *testing.T) {
	st := newFakeStore(setEvent(1, "u1"), setEvent(2, "u2"))
	d, _ := newTestDeleter(st)

	inst, err := d.Start(context.Background(), "admin-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	nextUpdate(t, inst)

	if err := d.Collector().Deliver(inst.Token, "admin-1", Action{Kind: ActionExport}); err != nil {
		t.Fatalf("deliver export: %v", err)
	}

	exp := nextUpdate(t, inst)
	if exp.Kind != UpdateExport || exp.Export == nil || exp.Export.RowCount != 2 {
		t.Fatalf("unexpected export update: %+v", exp)
	}

	// The prompt is still armed; a select still moves to confirmation.
	if err := d.Collector().Deliver(inst.Token, "admin-1", Action{Kind: ActionSelect, EventID: 1}); err != nil {
		t.Fatalf("deliver select after export: %v", err)
	}
	if got := nextUpdate(t, inst); got.Kind != UpdateConfirmation {
		t.Fatalf("expected confirmation, got %+v", got)
	}
	if err := d.Collector().Deliver(inst.Token, "admin-1", Action{Kind: ActionConfirm}); err != nil {
		t.Fatalf("deliver confirm: %v", err)
	}

	outcome := nextUpdate(t, inst)
	if outcome.Result != ResultDeleted || outcome.EventID != 1 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestListingResolverDegrades(t *testing.T) {
	st := newFakeStore(setEvent(1, "u1"))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gen := export.NewGenerator(st, staticResolver{})
	d := NewDeleter(st, gen, failingResolver{}, &recordingPublisher{}, NewCollector(), logger)

	inst, err := d.Start(context.Background(), "admin-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	listing := nextUpdate(t, inst)
	if listing.Names["u1"] != export.UnknownUser {
		t.Fatalf("failed lookups should fall back to the placeholder: %v", listing.Names)
	}

	if err := d.Collector().Deliver(inst.Token, "admin-1", Action{Kind: ActionCancel}); err != nil {
		t.Fatalf("deliver cancel: %v", err)
	}
	if outcome := nextUpdate(t, inst); outcome.Result != ResultCancelled {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestListingForeignActorIgnored(t *testing.T) {
	d, _ := newTestDeleter(newFakeStore(setEvent(1, "u1")))

	inst, err := d.Start(context.Background(), "admin-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	nextUpdate(t, inst)

	err = d.Collector().Deliver(inst.Token, "intruder", Action{Kind: ActionSelect, EventID: 1})
	if !errors.Is(err, ErrForeignActor) {
		t.Fatalf("expected ErrForeignActor, got %v", err)
	}

	// Owner can still settle the prompt.
	if err := d.Collector().Deliver(inst.Token, "admin-1", Action{Kind: ActionCancel}); err != nil {
		t.Fatalf("owner delivery: %v", err)
	}
	outcome := nextUpdate(t, inst)
	if outcome.Result != ResultCancelled {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestDirectConfirm(t *testing.T) {
	st := newFakeStore(setEvent(7, "u1"))
	d, pub := newTestDeleter(st)

	inst, err := d.StartForEvent(context.Background(), "admin-1", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	confirm := nextUpdate(t, inst)
	if confirm.Kind != UpdateConfirmation || confirm.Event == nil || confirm.Event.ID != 7 {
		t.Fatalf("unexpected confirmation: %+v", confirm)
	}
	if confirm.Names["u1"] != "u1" {
		t.Fatalf("confirmation should carry resolved names: %v", confirm.Names)
	}

	if err := d.Collector().Deliver(inst.Token, "admin-1", Action{Kind: ActionConfirm}); err != nil {
		t.Fatalf("deliver confirm: %v", err)
	}

	outcome := nextUpdate(t, inst)
	if outcome.Result != ResultDeleted || outcome.EventID != 7 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if got := pub.topics(); len(got) != 1 || got[0] != events.TopicEventDeleted {
		t.Fatalf("published topics: %v", got)
	}
}

func TestDirectCancel(t *testing.T) {
	d, _ := newTestDeleter(newFakeStore(setEvent(7, "u1")))

	inst, err := d.StartForEvent(context.Background(), "admin-1", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	nextUpdate(t, inst)

	if err := d.Collector().Deliver(inst.Token, "admin-1", Action{Kind: ActionCancel}); err != nil {
		t.Fatalf("deliver cancel: %v", err)
	}
	outcome := nextUpdate(t, inst)
	if outcome.Result != ResultCancelled {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestDirectTimeout(t *testing.T) {
	d, _ := newTestDeleter(newFakeStore(setEvent(7, "u1")))
	d.confirmTimeout = 30 * time.Millisecond

	inst, err := d.StartForEvent(context.Background(), "admin-1", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	nextUpdate(t, inst)

	outcome := nextUpdate(t, inst)
	if outcome.Result != ResultTimedOut {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestDirectUnknownEvent(t *testing.T) {
	d, _ := newTestDeleter(newFakeStore())

	if _, err := d.StartForEvent(context.Background(), "admin-1", 404); !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}
}

func TestDirectConflict(t *testing.T) {
	st := newFakeStore(setEvent(7, "u1"))
	d, pub := newTestDeleter(st)

	inst, err := d.StartForEvent(context.Background(), "admin-1", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	nextUpdate(t, inst)

	// The event vanishes before the caller confirms.
	st.mu.Lock()
	delete(st.events, 7)
	st.mu.Unlock()

	if err := d.Collector().Deliver(inst.Token, "admin-1", Action{Kind: ActionConfirm}); err != nil {
		t.Fatalf("deliver confirm: %v", err)
	}

	outcome := nextUpdate(t, inst)
	if outcome.Result != ResultConflict || outcome.EventID != 7 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if len(pub.topics()) != 0 {
		t.Fatal("conflict should not publish")
	}
}
