// Package tracker is the application service: it gates callers by role,
// validates and persists activity events, and fronts stats, exports, and the
// deletion workflow.
package tracker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jharkins/wattson/internal/auth"
	"github.com/jharkins/wattson/internal/events"
	"github.com/jharkins/wattson/internal/export"
	"github.com/jharkins/wattson/internal/model"
	"github.com/jharkins/wattson/internal/stats"
	"github.com/jharkins/wattson/internal/store"
	"github.com/jharkins/wattson/internal/workflow"
)

// InputError indicates invalid user input.
type InputError string

func (e InputError) Error() string { return string(e) }

// ErrPermissionDenied means the caller's roles do not grant the operation.
var ErrPermissionDenied = errors.New("permission denied")

// Caller identifies who is invoking an operation.
type Caller struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles"`
}

// SetInput holds transport-agnostic parameters for recording a set.
type SetInput struct {
	ChannelID    string    `json:"channel_id"`
	CustomerName string    `json:"customer_name"`
	SetDate      time.Time `json:"set_date"`
	HasBill      bool      `json:"has_bill"`
}

// ClosedInput holds parameters for recording a closed deal.
type ClosedInput struct {
	ChannelID    string  `json:"channel_id"`
	CustomerName string  `json:"customer_name"`
	SystemSize   float64 `json:"system_size"`
	SetterID     string  `json:"setter_id"`
}

// InstallInput holds parameters for recording a scheduled install.
type InstallInput struct {
	ChannelID    string `json:"channel_id"`
	CustomerName string `json:"customer_name"`
	SetterID     string `json:"setter_id"`
}

// StatsReport bundles the summary counters with today's leaderboard.
type StatsReport struct {
	Summary *stats.Summary     `json:"summary"`
	Leaders []model.ActorCount `json:"leaders"`
}

// ExportFormat selects the export rendering.
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatXLSX ExportFormat = "xlsx"
)

const leaderboardLimit = 10

// Service wires the store, event bus, role policy, and the stats, export,
// and deletion subsystems behind one permission-checked API.
type Service struct {
	store     store.Store
	publisher events.Publisher
	policy    auth.Checker
	stats     *stats.Aggregator
	exporter  *export.Generator
	deleter   *workflow.Deleter
	logger    *slog.Logger
}

func NewService(st store.Store, pub events.Publisher, policy auth.Checker, agg *stats.Aggregator, exporter *export.Generator, deleter *workflow.Deleter, logger *slog.Logger) *Service {
	return &Service{
		store:     st,
		publisher: pub,
		policy:    policy,
		stats:     agg,
		exporter:  exporter,
		deleter:   deleter,
		logger:    logger,
	}
}

// RecordSet appends a set event for the caller.
func (s *Service) RecordSet(ctx context.Context, caller Caller, in SetInput) (*model.Event, error) {
	if !s.policy.Allows(auth.CapRecord, caller.Roles) {
		return nil, ErrPermissionDenied
	}
	if in.SetDate.IsZero() {
		return nil, InputError("set_date is required")
	}

	setDate := in.SetDate
	return s.record(ctx, &model.Event{
		Type:         model.TypeSet,
		ActorID:      caller.ID,
		ChannelID:    in.ChannelID,
		CustomerName: in.CustomerName,
		SetDate:      &setDate,
		HasBill:      in.HasBill,
	})
}

// RecordClosed appends a closed-deal event for the caller.
func (s *Service) RecordClosed(ctx context.Context, caller Caller, in ClosedInput) (*model.Event, error) {
	if !s.policy.Allows(auth.CapClose, caller.Roles) {
		return nil, ErrPermissionDenied
	}

	size := in.SystemSize
	return s.record(ctx, &model.Event{
		Type:         model.TypeClosed,
		ActorID:      caller.ID,
		ChannelID:    in.ChannelID,
		CustomerName: in.CustomerName,
		SystemSize:   &size,
		SetterID:     in.SetterID,
	})
}

// RecordInstall appends an install-scheduled event for the caller.
func (s *Service) RecordInstall(ctx context.Context, caller Caller, in InstallInput) (*model.Event, error) {
	if !s.policy.Allows(auth.CapClose, caller.Roles) {
		return nil, ErrPermissionDenied
	}

	return s.record(ctx, &model.Event{
		Type:         model.TypeInstallScheduled,
		ActorID:      caller.ID,
		ChannelID:    in.ChannelID,
		CustomerName: in.CustomerName,
		SetterID:     in.SetterID,
	})
}

// record validates, persists, and announces a new event.
func (s *Service) record(ctx context.Context, e *model.Event) (*model.Event, error) {
	if err := model.ValidateEvent(e); err != nil {
		return nil, InputError(err.Error())
	}

	if err := s.store.AppendEvent(ctx, e); err != nil {
		return nil, fmt.Errorf("appending event: %w", err)
	}

	if err := s.publisher.Publish(ctx, events.TopicEventRecorded, events.EventRecorded{Event: e}); err != nil {
		s.logger.Warn("publishing recorded event failed", "event_id", e.ID, "err", err)
	}

	s.logger.Info("event recorded", "event_id", e.ID, "type", e.Type, "actor", e.ActorID)
	return e, nil
}

// FinalizeMessage records the chat message that announced an event. A missing
// event is logged and swallowed: the announcement already happened and there
// is nothing useful to surface to the caller.
func (s *Service) FinalizeMessage(ctx context.Context, eventID int64, messageID string) error {
	if messageID == "" {
		return InputError("message_id is required")
	}

	err := s.store.AttachMessage(ctx, eventID, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		s.logger.Warn("finalize skipped, event missing", "event_id", eventID, "message_id", messageID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("attaching message: %w", err)
	}

	if err := s.publisher.Publish(ctx, events.TopicEventFinalized, events.EventFinalized{
		EventID:   eventID,
		MessageID: messageID,
	}); err != nil {
		s.logger.Warn("publishing finalized event failed", "event_id", eventID, "err", err)
	}
	return nil
}

// AbandonMessage marks an event whose announcement never went out. Only
// pending events transition; anything else is logged and swallowed.
func (s *Service) AbandonMessage(ctx context.Context, eventID int64) error {
	err := s.store.AbandonMessage(ctx, eventID)
	if errors.Is(err, sql.ErrNoRows) {
		s.logger.Warn("abandon skipped, event missing or settled", "event_id", eventID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("abandoning message: %w", err)
	}
	return nil
}

// Stats returns the activity summary and today's set leaderboard.
func (s *Service) Stats(ctx context.Context, caller Caller) (*StatsReport, error) {
	if !s.policy.Allows(auth.CapRecord, caller.Roles) {
		return nil, ErrPermissionDenied
	}

	now := time.Now()
	summary, err := s.stats.Summary(ctx, now)
	if err != nil {
		return nil, err
	}
	leaders, err := s.stats.TopActorsToday(ctx, now, leaderboardLimit)
	if err != nil {
		return nil, err
	}
	return &StatsReport{Summary: summary, Leaders: leaders}, nil
}

// Export renders the full ledger in the requested format.
func (s *Service) Export(ctx context.Context, caller Caller, format ExportFormat) (*export.Export, error) {
	if !s.policy.Allows(auth.CapExport, caller.Roles) {
		return nil, ErrPermissionDenied
	}

	switch format {
	case FormatXLSX:
		return s.exporter.GenerateXLSX(ctx)
	case FormatCSV, "":
		return s.exporter.GenerateCSV(ctx)
	default:
		return nil, InputError(fmt.Sprintf("unknown export format %q", format))
	}
}

// StartDeletion opens a deletion flow for the caller. A zero eventID starts
// the listing flow; otherwise the named event goes straight to confirmation.
func (s *Service) StartDeletion(ctx context.Context, caller Caller, eventID int64) (*workflow.Instance, error) {
	if !s.policy.Allows(auth.CapExport, caller.Roles) {
		return nil, ErrPermissionDenied
	}

	if eventID != 0 {
		return s.deleter.StartForEvent(ctx, caller.ID, eventID)
	}
	return s.deleter.Start(ctx, caller.ID)
}

// DeliverAction routes a caller's prompt action to its waiting flow.
func (s *Service) DeliverAction(ctx context.Context, caller Caller, token string, action workflow.Action) error {
	return s.deleter.Collector().Deliver(token, caller.ID, action)
}
