// Package stats computes activity summaries over the event ledger.
//
// Window boundaries are computed in a configured location so that "today"
// and "this month" line up with the team's business day rather than UTC.
// Set events are bucketed by their appointment date (set_date); closes and
// installs are bucketed by when they were recorded (created_at).
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/jharkins/wattson/internal/model"
	"github.com/jharkins/wattson/internal/store"
)

// Summary is a point-in-time snapshot of team activity.
type Summary struct {
	SetsToday         int `json:"sets_today"`
	ClosesThisWeek    int `json:"closes_this_week"`
	ClosesThisMonth   int `json:"closes_this_month"`
	InstallsThisMonth int `json:"installs_this_month"`
}

// Aggregator answers summary and leaderboard queries against a store.
type Aggregator struct {
	store store.Store
	loc   *time.Location
}

func NewAggregator(st store.Store, loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.Local
	}
	return &Aggregator{store: st, loc: loc}
}

// Summary computes all four activity counters relative to now.
func (a *Aggregator) Summary(ctx context.Context, now time.Time) (*Summary, error) {
	dayFrom, dayTo := a.dayWindow(now)
	weekFrom := dayFrom.AddDate(0, 0, -6)
	monthFrom, monthTo := a.monthWindow(now)

	var s Summary
	var err error

	s.SetsToday, err = a.store.CountByType(ctx,
		[]model.EventType{model.TypeSet}, store.BySetDate, dayFrom, dayTo)
	if err != nil {
		return nil, fmt.Errorf("counting sets today: %w", err)
	}

	s.ClosesThisWeek, err = a.store.CountByType(ctx,
		[]model.EventType{model.TypeClosed}, store.ByCreatedAt, weekFrom, dayTo)
	if err != nil {
		return nil, fmt.Errorf("counting closes this week: %w", err)
	}

	s.ClosesThisMonth, err = a.store.CountByType(ctx,
		[]model.EventType{model.TypeClosed}, store.ByCreatedAt, monthFrom, monthTo)
	if err != nil {
		return nil, fmt.Errorf("counting closes this month: %w", err)
	}

	s.InstallsThisMonth, err = a.store.CountByType(ctx,
		[]model.EventType{model.TypeInstallScheduled}, store.ByCreatedAt, monthFrom, monthTo)
	if err != nil {
		return nil, fmt.Errorf("counting installs this month: %w", err)
	}

	return &s, nil
}

// TopActorsToday returns today's set leaderboard, best first. Ties rank the
// earlier recorder first.
func (a *Aggregator) TopActorsToday(ctx context.Context, now time.Time, limit int) ([]model.ActorCount, error) {
	from, to := a.dayWindow(now)
	actors, err := a.store.TopActors(ctx,
		[]model.EventType{model.TypeSet}, store.BySetDate, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("ranking actors: %w", err)
	}
	return actors, nil
}

// dayWindow returns [start of today, start of tomorrow) in the configured
// location. AddDate handles DST days that are not 24 hours long.
func (a *Aggregator) dayWindow(now time.Time) (time.Time, time.Time) {
	local := now.In(a.loc)
	from := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, a.loc)
	return from, from.AddDate(0, 0, 1)
}

// monthWindow returns [first of this month, first of next month).
func (a *Aggregator) monthWindow(now time.Time) (time.Time, time.Time) {
	local := now.In(a.loc)
	from := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, a.loc)
	return from, from.AddDate(0, 1, 0)
}
