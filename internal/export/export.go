// Package export renders the full event ledger as CSV or XLSX, for ad-hoc
// downloads and for periodic off-site backups.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/jharkins/wattson/internal/model"
	"github.com/jharkins/wattson/internal/store"
)

// columns is the CSV header row. Consumers depend on this order.
var columns = []string{
	"id", "type", "user", "message_id", "channel_id", "created_at",
	"customer_name", "set_date", "has_bill", "system_size", "setter_id",
}

// UsernameResolver maps user IDs to display names. Implementations must
// return an entry for every requested ID; unknown users map to a
// placeholder.
type UsernameResolver interface {
	ResolveUsernames(ctx context.Context, ids []string) (map[string]string, error)
}

// UnknownUser is the display name used when a resolver has no name for an ID.
const UnknownUser = "(Unknown User)"

// Export is a rendered ledger snapshot. RowCount is zero when the ledger is
// empty; Data then holds only the header row.
type Export struct {
	Filename string
	Data     []byte
	RowCount int
}

// Generator produces ledger exports.
type Generator struct {
	store    store.Store
	resolver UsernameResolver
}

func NewGenerator(st store.Store, resolver UsernameResolver) *Generator {
	return &Generator{store: st, resolver: resolver}
}

// GenerateCSV renders every event as CSV, oldest first.
func (g *Generator) GenerateCSV(ctx context.Context) (*Export, error) {
	events, err := g.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	names, err := g.resolveNames(ctx, events)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(columns); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for _, e := range events {
		if err := w.Write(eventRow(e, names)); err != nil {
			return nil, fmt.Errorf("write event %d: %w", e.ID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}

	return &Export{
		Filename: exportFilename("csv"),
		Data:     buf.Bytes(),
		RowCount: len(events),
	}, nil
}

// resolveNames looks up a display name for every distinct actor and setter
// in events. Each ID is requested at most once even when it appears in both
// columns.
func (g *Generator) resolveNames(ctx context.Context, events []*model.Event) (map[string]string, error) {
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
	for _, e := range events {
		add(e.ActorID)
		add(e.SetterID)
	}
	if len(ids) == 0 {
		return map[string]string{}, nil
	}

	names, err := g.resolver.ResolveUsernames(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve usernames: %w", err)
	}
	return names, nil
}

// displayName returns the resolved name for id, falling back to the
// placeholder. Empty IDs stay empty.
func displayName(names map[string]string, id string) string {
	if id == "" {
		return ""
	}
	if name, ok := names[id]; ok && name != "" {
		return name
	}
	return UnknownUser
}

// eventRow renders one event in column order.
func eventRow(e *model.Event, names map[string]string) []string {
	setDate := ""
	if e.SetDate != nil {
		setDate = e.SetDate.Format("2006-01-02")
	}
	systemSize := ""
	if e.SystemSize != nil {
		systemSize = strconv.FormatFloat(*e.SystemSize, 'f', -1, 64)
	}

	return []string{
		strconv.FormatInt(e.ID, 10),
		string(e.Type),
		displayName(names, e.ActorID),
		e.MessageID,
		e.ChannelID,
		e.CreatedAt.UTC().Format(time.RFC3339),
		e.CustomerName,
		setDate,
		strconv.FormatBool(e.HasBill),
		systemSize,
		displayName(names, e.SetterID),
	}
}

func exportFilename(ext string) string {
	return fmt.Sprintf("sales-events-%s.%s", time.Now().UTC().Format("20060102-150405"), ext)
}
