package postgres

import (
	"database/sql"
	"time"

	"github.com/jharkins/wattson/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanEvent scans a single row into a model.Event.
// The row must contain columns in the order defined by eventColumns.
func scanEvent(row scannable) (*model.Event, error) {
	var e model.Event
	var (
		messageID    sql.NullString
		customerName sql.NullString
		setDate      sql.NullTime
		systemSize   sql.NullFloat64
		setterID     sql.NullString
	)

	err := row.Scan(
		&e.ID,
		&e.Type,
		&e.ActorID,
		&e.ChannelID,
		&messageID,
		&e.MessageState,
		&e.CreatedAt,
		&customerName,
		&setDate,
		&e.HasBill,
		&systemSize,
		&setterID,
	)
	if err != nil {
		return nil, err
	}

	e.MessageID = messageID.String
	e.CustomerName = customerName.String
	e.SetterID = setterID.String
	if setDate.Valid {
		t := setDate.Time
		e.SetDate = &t
	}
	if systemSize.Valid {
		v := systemSize.Float64
		e.SystemSize = &v
	}

	return &e, nil
}

// scanEvents drains a result set of eventColumns rows.
func scanEvents(rows *sql.Rows) ([]*model.Event, error) {
	var out []*model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// nullString converts an empty string to a NULL value.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullTimePtr converts a nil *time.Time to a NULL value.
func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// nullFloatPtr converts a nil *float64 to a NULL value.
func nullFloatPtr(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
